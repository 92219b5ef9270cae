// Package partition implements PartitionController: computes the target
// StatefulSet partition from health confirmations, pause_after, and
// pending operator actions, and enforces that the partition only ever
// lowers (the Design Notes call out that the source's loop-variable
// reuse left this ambiguous; this package makes it explicit — see
// FindNextUnit).
//
// The monotonicity write guard follows the same "read current state,
// only write if strictly improving" shape as cloudnative-pg's rollout
// manager (internal/controller/rollout/rollout.go), except the guarded
// resource here is the partition number rather than a time budget.
package partition

import (
	"github.com/canonical/charm-refresh/pkg/refreshk8s"
	"github.com/canonical/charm-refresh/pkg/unit"
	"github.com/canonical/charm-refresh/pkg/version"
)

// NextUnitAllowedChecker reports whether u has declared the next unit
// allowed to refresh, scoped to currentHash.
type NextUnitAllowedChecker func(u unit.Id, currentHash string) bool

// ActionContext describes whatever operator action is driving this
// event, if any.
type ActionContext struct {
	// Present is true if some action is consuming this event (used to
	// decide whether a deny should also fail the action).
	Present bool
	// ResumeRefresh is true if the action is resume-refresh.
	ResumeRefresh bool
	// SkipHealthCheck is true if resume-refresh was run with
	// check-health-of-refreshed-units=false.
	SkipHealthCheck bool
}

// Input is everything PartitionController needs to decide.
type Input struct {
	// Units is the refresh order, highest ordinal first.
	Units                 []refreshk8s.UnitSnapshot
	AppControllerRevision string
	PauseAfter            version.PauseAfter
	// PrecheckStarted is true once PrecheckGate has recorded success (or
	// rollback) for AppControllerRevision.
	PrecheckStarted  bool
	NextUnitAllowed  NextUnitAllowedChecker
	CurrentPartition int32
}

// Decision is PartitionController's output.
type Decision struct {
	// InProgress is false when no unit's revision differs from the app's:
	// there is nothing for this component to do.
	InProgress bool
	Allowed    bool
	// TargetPartition is the partition this decision computes. Only
	// meaningful when InProgress is true.
	TargetPartition int32
	// ShouldWrite is TargetPartition < Input.CurrentPartition: the only
	// condition under which the caller may patch the StatefulSet. This
	// package never raises the partition; the stop-event guard is the
	// sole exception and lives in the top-level refresh.Context.
	ShouldWrite bool
	// BlockingUnit is set when a deny is caused by a specific up-to-date
	// unit not yet declaring the next unit allowed; an action driving
	// this event should fail naming this unit.
	BlockingUnit *unit.Id
}

// FindNextUnit returns the first unit (by descending ordinal) whose
// controller revision differs from appRevision — next_unit_to_refresh.
// found is false if every unit already matches appRevision, in which
// case the returned unit is the lowest-ordinal member of units (the
// "if none" branch the spec's Open Questions section asks to make
// explicit, rather than reusing the loop's last value implicitly).
func FindNextUnit(units []refreshk8s.UnitSnapshot, appRevision string) (u refreshk8s.UnitSnapshot, index int, found bool) {
	for i, candidate := range units {
		if candidate.ControllerRevisionHash != appRevision {
			return candidate, i, true
		}
	}
	if len(units) == 0 {
		return refreshk8s.UnitSnapshot{}, 0, false
	}
	return units[len(units)-1], len(units) - 1, false
}

// upToDateUnits returns the units whose controller revision already
// equals appRevision, in the same (descending-ordinal) order as units.
func upToDateUnits(units []refreshk8s.UnitSnapshot, appRevision string) []refreshk8s.UnitSnapshot {
	out := make([]refreshk8s.UnitSnapshot, 0, len(units))
	for _, u := range units {
		if u.ControllerRevisionHash == appRevision {
			out = append(out, u)
		}
	}
	return out
}

// Decide computes the partition decision described in spec.md §4.6.
func Decide(in Input, action ActionContext) Decision {
	next, nextIndex, found := FindNextUnit(in.Units, in.AppControllerRevision)
	if !found {
		// No unit differs from the app revision: nothing for this
		// component to advance. Leave the partition untouched rather than
		// computing a target from a degenerate "next unit."
		return Decision{InProgress: false}
	}

	// Any up-to-date unit "above" (i.e. with a higher ordinal than)
	// next_unit_to_refresh must have declared the next unit allowed.
	var blocking *unit.Id
	for _, u := range upToDateUnits(in.Units, in.AppControllerRevision) {
		if u.UnitID.Ordinal <= next.UnitID.Ordinal {
			continue
		}
		if !in.NextUnitAllowed(u.UnitID, in.AppControllerRevision) {
			id := u.UnitID
			blocking = &id
			break
		}
	}

	allowed := false
	switch {
	case action.ResumeRefresh && action.SkipHealthCheck:
		allowed = true
	case !in.PrecheckStarted:
		allowed = false
	case blocking != nil:
		allowed = false
	default:
		allowed = in.PauseAfter == version.PauseAfterNone ||
			(in.PauseAfter == version.PauseAfterFirst && nextIndex >= 2) ||
			action.ResumeRefresh
	}

	target := next.UnitID.Ordinal
	if !allowed {
		target = 0
		if nextIndex > 0 {
			target = in.Units[nextIndex-1].UnitID.Ordinal
		}
		if target < 0 {
			target = 0
		}
	}

	decision := Decision{
		InProgress:      true,
		Allowed:         allowed,
		TargetPartition: int32(target),
		ShouldWrite:     int32(target) < in.CurrentPartition,
	}
	if !allowed && action.Present && blocking != nil {
		decision.BlockingUnit = blocking
	}
	return decision
}
