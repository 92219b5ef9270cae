// Package refresh ties VersionModel, StateStore, ClusterProbe,
// RefreshDetector, PrecheckGate, PartitionController, ActionHandler and
// StatusReporter together into the single per-invocation entry point a
// Kubernetes charm calls once per dispatched framework event — the
// "Kubernetes" variant of the narrow polymorphic interface the Design
// Notes describe ({in_progress, next_unit_allowed_to_refresh,
// workload_allowed_to_start, app/unit_status_higher/lower_priority}). The
// machines variant is out of scope for this package; see spec.md §1 and
// §9.
package refresh

import (
	"context"
	"errors"
	"fmt"

	"github.com/canonical/charm-refresh/internal/charmlog"
	"github.com/canonical/charm-refresh/internal/controller/action"
	"github.com/canonical/charm-refresh/internal/controller/detector"
	"github.com/canonical/charm-refresh/internal/controller/partition"
	"github.com/canonical/charm-refresh/internal/controller/precheck"
	"github.com/canonical/charm-refresh/internal/controller/status"
	"github.com/canonical/charm-refresh/pkg/refresherr"
	"github.com/canonical/charm-refresh/pkg/refreshk8s"
	"github.com/canonical/charm-refresh/pkg/state"
	"github.com/canonical/charm-refresh/pkg/unit"
	"github.com/canonical/charm-refresh/pkg/version"
	"github.com/google/uuid"
)

// EventKind classifies the framework event driving one invocation.
type EventKind int

const (
	ConfigChanged EventKind = iota
	RelationChanged
	Stop
	ActionEvent
)

// ActionRequest carries the triggering action's name and parameters, if
// any.
type ActionRequest struct {
	Name         string
	ForceParams  action.ForceRefreshStartParams
	ResumeParams action.ResumeRefreshParams
}

// Event is the single framework event dispatched to Next.
type Event struct {
	Kind EventKind
	// Action is non-nil iff Kind == ActionEvent.
	Action *ActionRequest
	// Departing is only meaningful for Kind == Stop: true if this unit is
	// leaving the relation (scale-down), false if it is merely
	// restarting.
	Departing bool
}

// Hooks are the charm-author-supplied collaborators PrecheckGate and the
// compatibility check delegate to.
type Hooks struct {
	// IsCompatible defaults to version.DefaultCompatible if nil.
	IsCompatible precheck.CompatibilityCheck
	// AfterOneUnitRefreshed runs on the first refreshed unit just before
	// its workload starts.
	AfterOneUnitRefreshed precheck.PreRefreshHook
	// BeforeAnyUnitsRefreshed backs the pre-refresh-check action. If nil,
	// it delegates to AfterOneUnitRefreshed, matching the original
	// implementation's default.
	BeforeAnyUnitsRefreshed precheck.PreRefreshHook
}

// Kubernetes is the Kubernetes-cloud Context: the concrete wiring of
// every component above against a live cluster.
type Kubernetes struct {
	Probe *refreshk8s.Probe
	Store *state.Store

	Self     unit.Id
	IsLeader bool

	// Pinned is the charm-bundle-pinned version/digest this invocation
	// should converge towards.
	Pinned precheck.Pins
	// PinnedWorkloadVersion/InstalledWorkloadVersion feed the
	// compatibility hook; manifest parsing to obtain them is an external
	// collaborator (spec.md §1).
	PinnedWorkloadVersion    string
	InstalledWorkloadVersion string
	InstalledCharm           version.CharmVersion

	Hooks Hooks

	// RollbackCommand is the literal `juju refresh ...` invocation
	// PrecheckGate failures and the pre-refresh-check action surface to
	// the operator.
	RollbackCommand string
}

// Outcome is everything one invocation of Next produces: the statuses
// the charm should adopt, and the result of the triggering action, if
// any.
type Outcome struct {
	InvocationID string

	AppStatus        *status.Status
	UnitStatusHigher *status.Status
	UnitStatusLower  status.Status

	ActionResult *action.Result
	ActionErr    error
}

// WorkloadAllowedToStart reports whether this unit's workload may start.
// On the first refreshed unit, the workload must not start until
// PrecheckGate has recorded success for the current revision (see
// SPEC_FULL.md §4 item 1).
func (k *Kubernetes) WorkloadAllowedToStart(ctx context.Context) (bool, error) {
	snapshot, err := k.Probe.Fetch(ctx, k.Self, k.IsLeader)
	if err != nil {
		return false, err
	}
	detected := detector.Detect(snapshot, func(u unit.Id) (string, bool) {
		return k.Store.PauseAfterConfig(u)
	})
	if !detected.InProgress {
		return true, nil
	}
	if len(snapshot.Units) == 0 {
		return true, nil
	}
	first := snapshot.Units[0]
	if first.UnitID != k.Self {
		return true, nil
	}
	return k.Store.RefreshStarted(k.Self, snapshot.AppControllerRevision), nil
}

// NextUnitAllowedToRefresh reports whether this unit has declared the
// next unit in line allowed to refresh, scoped to the current app
// controller revision (invariant #2). This is the get half of the
// Design Notes' narrow polymorphic interface
// ({..., next_unit_allowed_to_refresh (get/set), ...}): the charm
// author's own health-check code reads it to decide whether it has
// already signaled health for this revision, and sets it via
// SetNextUnitAllowedToRefresh once it has (see
// _examples/original_source/charm_refresh/_main.py's equivalent
// property).
func (k *Kubernetes) NextUnitAllowedToRefresh(ctx context.Context) (bool, error) {
	snapshot, err := k.Probe.Fetch(ctx, k.Self, k.IsLeader)
	if err != nil {
		return false, err
	}
	return k.Store.NextUnitAllowed(k.Self, snapshot.AppControllerRevision), nil
}

// SetNextUnitAllowedToRefresh declares, for the current app controller
// revision, that this unit has confirmed its own health and the unit
// below it in refresh order may proceed. Charm-author health-check code
// calls this once it is satisfied; without it, PartitionController
// (internal/controller/partition) can never see NextUnitAllowed become
// true for any unit and the rollout never advances past the first unit.
func (k *Kubernetes) SetNextUnitAllowedToRefresh(ctx context.Context) error {
	snapshot, err := k.Probe.Fetch(ctx, k.Self, k.IsLeader)
	if err != nil {
		return err
	}
	return k.Store.SetNextUnitAllowed(snapshot.AppControllerRevision)
}

// Next runs one full invocation: PrecheckGate, then action consumption,
// then PartitionController, then StatusReporter — the ordering
// spec.md §5 fixes for a single invocation.
func (k *Kubernetes) Next(ctx context.Context, ev Event) (Outcome, error) {
	invocationID := uuid.NewString()
	log := charmlog.Logger().WithValues("invocation", invocationID, "unit", k.Self.String())

	out := Outcome{InvocationID: invocationID}

	snapshot, err := k.Probe.Fetch(ctx, k.Self, k.IsLeader)
	if err != nil {
		var notTrusted *refresherr.NotTrusted
		if errors.As(err, &notTrusted) {
			log.Info("statefulset patch access denied, aborting", "app", notTrusted.App)
			out.AppStatus = status.AppStatusHigherPriority(status.AppInput{TrustMissing: true, AppName: notTrusted.App})
			return out, nil
		}
		return out, fmt.Errorf("fetching cluster snapshot: %w", err)
	}

	detected := detector.Detect(snapshot, func(u unit.Id) (string, bool) {
		return k.Store.PauseAfterConfig(u)
	})

	// --- Stop-event guard: the only place a partition is ever raised. ---
	// Every unit runs this on its own Stop event, gated only on the
	// tearing-down marker: the patch only ever raises the partition to
	// this unit's own ordinal, so there is no cross-unit race to guard
	// against by restricting it to the leader.
	if ev.Kind == Stop && !ev.Departing {
		tearingDown, err := k.Store.LocalMarkerExists(state.MarkerUnitTearingDown)
		if err != nil {
			return out, fmt.Errorf("checking tearing-down marker: %w", err)
		}
		if !tearingDown && int32(k.Self.Ordinal) > snapshot.Partition {
			if err := k.Probe.SetPartition(ctx, int32(k.Self.Ordinal)); err != nil {
				return out, fmt.Errorf("raising partition on stop event: %w", err)
			}
			log.Info("raised partition as a stop-event safety guard", "partition", k.Self.Ordinal)
		}
	}

	// --- PrecheckGate ---
	var precheckFailure error
	firstUnit, hasFirstUnit := firstUnit(snapshot)
	isFirstUnit := hasFirstUnit && firstUnit.UnitID == k.Self
	precheckRan := false
	var precheckLogs []string

	var forceParams action.ForceRefreshStartParams
	actionIsForceStart := ev.Kind == ActionEvent && ev.Action != nil && ev.Action.Name == "force-refresh-start"
	if actionIsForceStart {
		forceParams = ev.Action.ForceParams
	} else {
		forceParams = action.ForceRefreshStartParams{CheckWorkloadContainer: true, CheckCompatibility: true, RunPreRefreshChecks: true}
	}

	if detected.InProgress && isFirstUnit && !k.Store.RefreshStarted(k.Self, snapshot.AppControllerRevision) {
		original, hasOriginal := k.Store.OriginalVersions()
		compatible := k.Hooks.IsCompatible
		if compatible == nil {
			compatible = func(old, new version.CharmVersion, ow, nw string) bool {
				return version.DefaultCompatible(old, new)
			}
		}

		outcome := precheck.Run(
			k.Pinned,
			precheck.Installed{Charm: k.InstalledCharm, WorkloadContainerDigest: firstUnit.ContainerDigest},
			precheck.Original{
				Charm:                   mustParseOrZero(original.CharmVersion),
				WorkloadContainerDigest: original.WorkloadContainerVersion,
				Present:                 hasOriginal,
			},
			k.InstalledWorkloadVersion, k.PinnedWorkloadVersion,
			compatible,
			k.Hooks.AfterOneUnitRefreshed,
			precheck.ForceParams{
				SkipWorkloadContainerCheck: !forceParams.CheckWorkloadContainer,
				SkipCompatibilityCheck:     !forceParams.CheckCompatibility,
				SkipPreRefreshChecks:       !forceParams.RunPreRefreshChecks,
			},
		)
		precheckRan = true
		precheckLogs = outcome.Logs
		for _, line := range outcome.Logs {
			log.Info(line)
		}
		if outcome.Started {
			if err := k.Store.CreateLocalMarker(state.MarkerRefreshStarted); err != nil {
				return out, fmt.Errorf("recording refresh started locally: %w", err)
			}
			if err := k.Store.SetRefreshStarted(snapshot.AppControllerRevision); err != nil {
				return out, fmt.Errorf("recording refresh started in databag: %w", err)
			}
		} else {
			precheckFailure = outcome.Failure
		}
	}

	// --- Action consumption ---
	if ev.Kind == ActionEvent && ev.Action != nil {
		out.ActionResult, out.ActionErr = k.handleAction(*ev.Action, detected, isFirstUnit, precheckRan, precheckFailure)
		if actionIsForceStart && out.ActionResult != nil {
			out.ActionResult.Logs = precheckLogs
		}
	}

	// --- PartitionController (leader only) ---
	if k.IsLeader {
		decision := partition.Decide(partition.Input{
			Units:                 snapshot.Units,
			AppControllerRevision: snapshot.AppControllerRevision,
			PauseAfter:            detected.EffectivePauseAfter,
			PrecheckStarted:       precheckStartedAnywhere(k, snapshot),
			NextUnitAllowed: func(u unit.Id, hash string) bool {
				return k.Store.NextUnitAllowed(u, hash)
			},
			CurrentPartition: snapshot.Partition,
		}, partition.ActionContext{
			Present:         ev.Kind == ActionEvent && ev.Action != nil,
			ResumeRefresh:   ev.Kind == ActionEvent && ev.Action != nil && ev.Action.Name == "resume-refresh",
			SkipHealthCheck: ev.Kind == ActionEvent && ev.Action != nil && ev.Action.Name == "resume-refresh" && !ev.Action.ResumeParams.CheckHealthOfRefreshedUnits,
		})

		if decision.InProgress && decision.ShouldWrite {
			if err := k.Probe.SetPartition(ctx, decision.TargetPartition); err != nil {
				return out, fmt.Errorf("writing partition: %w", err)
			}
			log.Info("lowered partition", "partition", decision.TargetPartition)
		}

		if !decision.InProgress && !detected.InProgress {
			if err := k.Store.SetOriginalVersions(state.OriginalVersions{
				WorkloadVersion:          k.PinnedWorkloadVersion,
				WorkloadContainerVersion: k.Pinned.WorkloadContainerDigest,
				CharmVersion:             k.Pinned.Charm.String(),
				CharmRevisionRaw:         k.InstalledCharm.String(),
			}); err != nil {
				return out, fmt.Errorf("writing original versions: %w", err)
			}
		}

		if ev.Kind == ActionEvent && ev.Action != nil && decision.BlockingUnit != nil && out.ActionErr == nil && out.ActionResult == nil {
			out.ActionErr = action.FailBlockingUnit(*decision.BlockingUnit)
		}
	}

	// --- StatusReporter ---
	out.AppStatus = status.AppStatusHigherPriority(status.AppInput{
		PauseAfterUnknown:       detected.EffectivePauseAfter == version.PauseAfterUnknown,
		InProgress:              detected.InProgress,
		UserInteractionRequired: precheckFailure != nil,
		BlockedMessage:          precheckBlockedMessage(precheckFailure, k.RollbackCommand),
	})
	out.UnitStatusHigher = status.UnitStatusHigherPriority(status.UnitPrecheckInput{
		IsFirstRefreshingUnit: isFirstUnit,
		FailureMessage:        failureMessage(precheckFailure),
	})
	thisUnitSnapshot, _ := snapshot.UnitByID(k.Self)
	out.UnitStatusLower = status.UnitStatusLowerPriority(status.UnitSummaryInput{
		WorkloadName:           thisUnitSnapshot.WorkloadImageName,
		WorkloadVersion:        k.InstalledWorkloadVersion,
		RestartPending:         thisUnitSnapshot.ControllerRevisionHash != snapshot.AppControllerRevision,
		CharmRevisionOrVersion: k.InstalledCharm.String(),
		InstalledDigest:        thisUnitSnapshot.ContainerDigest,
		PinnedDigest:           k.Pinned.WorkloadContainerDigest,
	})

	return out, nil
}

func (k *Kubernetes) handleAction(
	req ActionRequest,
	detected detector.Result,
	isFirstUnit bool,
	precheckRan bool,
	precheckFailure error,
) (*action.Result, error) {
	switch req.Name {
	case "pre-refresh-check":
		if err := action.ValidatePreRefreshCheck(k.IsLeader, detected.InProgress); err != nil {
			return nil, err
		}
		hook := k.Hooks.BeforeAnyUnitsRefreshed
		if hook == nil {
			hook = k.Hooks.AfterOneUnitRefreshed
		}
		var logs []string
		if hook != nil {
			if err := hook(); err != nil {
				return nil, err
			}
			logs = append(logs, "pre-refresh checks succeeded")
		}
		result := action.PreRefreshCheckResult(k.RollbackCommand, logs)
		return &result, nil

	case "force-refresh-start":
		if err := action.ValidateForceRefreshStart(isFirstUnit, detected.InProgress, req.ForceParams); err != nil {
			return nil, err
		}
		if precheckFailure != nil {
			return nil, precheckFailure
		}
		if !precheckRan {
			return nil, &refresherr.InvalidAction{Reason: "refresh already started for this revision"}
		}
		return &action.Result{Result: "Refresh started"}, nil

	case "resume-refresh":
		if err := action.ValidateResumeRefresh(k.IsLeader, detected.InProgress, detected.EffectivePauseAfter, req.ResumeParams); err != nil {
			return nil, err
		}
		return &action.Result{Result: "Refresh resumed"}, nil

	default:
		return nil, &refresherr.InvalidAction{Reason: fmt.Sprintf("unknown action %q", req.Name)}
	}
}

func firstUnit(snapshot refreshk8s.ClusterSnapshot) (refreshk8s.UnitSnapshot, bool) {
	if len(snapshot.Units) == 0 {
		return refreshk8s.UnitSnapshot{}, false
	}
	return snapshot.Units[0], true
}

// precheckStartedAnywhere reports whether the first unit to refresh has
// recorded PrecheckGate success for the current revision. Only the first
// unit ever writes this flag, so checking its entry is equivalent to
// checking "any unit."
func precheckStartedAnywhere(k *Kubernetes, snapshot refreshk8s.ClusterSnapshot) bool {
	first, ok := firstUnit(snapshot)
	if !ok {
		return false
	}
	return k.Store.RefreshStarted(first.UnitID, snapshot.AppControllerRevision)
}

func failureMessage(err error) string {
	if err == nil {
		return ""
	}
	var precheckErr *refresherr.PrecheckFailed
	if errors.As(err, &precheckErr) {
		return precheckErr.Message
	}
	return err.Error()
}

func precheckBlockedMessage(err error, rollbackCommand string) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Rollback with %s. Pre-refresh check failed: %s", rollbackCommand, failureMessage(err))
}

func mustParseOrZero(raw string) version.CharmVersion {
	if raw == "" {
		return version.CharmVersion{}
	}
	v, err := version.Parse(raw)
	if err != nil {
		return version.CharmVersion{}
	}
	return v
}
