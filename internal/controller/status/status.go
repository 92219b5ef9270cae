// Package status implements StatusReporter: the priority-tiered app/unit
// status surface described in spec.md §4.8. The tiering mirrors
// cloudnative-pg's status precedence in internal/controller/
// cluster_status.go (trust/condition failures outrank an in-progress
// rollout summary, which outranks the routine per-instance status line)
// except expressed as an ordered list of optional blocks rather than a
// single mutable struct the reconciler fills in as it goes.
package status

import "fmt"

// Name is the Juju status name a Status maps onto.
type Name string

const (
	Active      Name = "active"
	Blocked     Name = "blocked"
	Maintenance Name = "maintenance"
	Waiting     Name = "waiting"
)

// Status is a (name, message) pair the charm framework adopts as-is.
type Status struct {
	Name    Name
	Message string
}

// AppInput is everything needed to compute the app-level status tiers.
type AppInput struct {
	TrustMissing    bool
	AppName         string
	PauseAfterUnknown bool
	InProgress      bool
	// UserInteractionRequired is true when the rollout is stalled on a
	// precheck/compatibility failure or a supervised switchover-style
	// wait, rather than merely in the middle of a routine rollout.
	UserInteractionRequired bool
	BlockedMessage          string
}

// AppStatusHigherPriority returns the highest-priority app-level status
// block that currently applies, or nil if none of tiers 1–4 apply (the
// charm should leave app status to whatever it already has).
func AppStatusHigherPriority(in AppInput) *Status {
	if in.TrustMissing {
		return &Status{
			Name: Blocked,
			Message: fmt.Sprintf(
				"Run `juju trust %s --scope=cluster` to allow the operator to patch the StatefulSet",
				in.AppName),
		}
	}
	if in.PauseAfterUnknown {
		return &Status{
			Name:    Blocked,
			Message: "pause_after_unit_refresh config value is invalid; must be one of none, first, all",
		}
	}
	if in.InProgress {
		name := Maintenance
		if in.UserInteractionRequired {
			name = Blocked
		}
		message := in.BlockedMessage
		if message == "" {
			message = "Refreshing"
		}
		return &Status{Name: name, Message: message}
	}
	return nil
}

// UnitPrecheckInput describes a PrecheckGate failure observed on the
// first refreshing unit.
type UnitPrecheckInput struct {
	IsFirstRefreshingUnit bool
	FailureMessage        string
}

// UnitStatusHigherPriority returns tier 2: a blocked unit status for the
// first refreshing unit's PrecheckGate failure, or nil.
func UnitStatusHigherPriority(in UnitPrecheckInput) *Status {
	if !in.IsFirstRefreshingUnit || in.FailureMessage == "" {
		return nil
	}
	return &Status{
		Name: Blocked,
		Message: fmt.Sprintf(
			"Rollback with `juju refresh`. Pre-refresh check failed: %s", in.FailureMessage),
	}
}

// UnitSummaryInput is everything needed to build the low-priority unit
// active-status summary.
type UnitSummaryInput struct {
	WorkloadName           string
	WorkloadVersion        string
	RestartPending         bool
	CharmRevisionOrVersion string
	InstalledDigest        string
	PinnedDigest            string
}

// UnitStatusLowerPriority builds tier 5: the routine per-unit summary the
// charm adopts if nothing higher-priority applies.
func UnitStatusLowerPriority(in UnitSummaryInput) Status {
	message := fmt.Sprintf("%s %s", in.WorkloadName, in.WorkloadVersion)
	if in.RestartPending {
		message += " (restart pending)"
	}
	if in.CharmRevisionOrVersion != "" {
		message += "; charm " + in.CharmRevisionOrVersion
	}
	if in.InstalledDigest != "" && in.PinnedDigest != "" && in.InstalledDigest != in.PinnedDigest {
		prefix := in.InstalledDigest
		if len(prefix) > 6 {
			prefix = prefix[:6]
		}
		message += fmt.Sprintf("; Unexpected container %s", prefix)
	}
	return Status{Name: Active, Message: message}
}
