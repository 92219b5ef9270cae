// Package action implements ActionHandler: validation and application of
// the three operator actions (pre-refresh-check, force-refresh-start,
// resume-refresh), following the same "validate preconditions against
// live cluster state, return a structured result or a structured
// failure" shape cloudnative-pg's plugin commands use
// (internal/cmd/plugin), adapted to Juju's action result/failure
// contract instead of stdout/stderr.
package action

import (
	"fmt"

	"github.com/canonical/charm-refresh/pkg/refresherr"
	"github.com/canonical/charm-refresh/pkg/unit"
	"github.com/canonical/charm-refresh/pkg/version"
)

// Result is a successful action outcome.
type Result struct {
	Result string
	Logs   []string
}

// Failure wraps refresherr.InvalidAction with accumulated log lines, the
// way the original implementation's actions log throughout the call and
// only fail at the end.
type Failure struct {
	*refresherr.InvalidAction
	Logs []string
}

// ForceRefreshStartParams mirrors the force-refresh-start action
// parameters.
type ForceRefreshStartParams struct {
	CheckWorkloadContainer bool
	CheckCompatibility     bool
	RunPreRefreshChecks    bool
}

// AnySkipped is true if at least one check parameter is false, the
// precondition force-refresh-start requires.
func (p ForceRefreshStartParams) AnySkipped() bool {
	return !p.CheckWorkloadContainer || !p.CheckCompatibility || !p.RunPreRefreshChecks
}

// ResumeRefreshParams mirrors the resume-refresh action parameter.
// CheckHealthOfRefreshedUnits defaults to true in Juju's action schema.
type ResumeRefreshParams struct {
	CheckHealthOfRefreshedUnits bool
}

// ValidatePreRefreshCheck enforces pre-refresh-check's preconditions:
// leader-only, and refused while a refresh is already in progress (the
// action's purpose is to dry-run checks before any refresh starts).
func ValidatePreRefreshCheck(isLeader, inProgress bool) error {
	if !isLeader {
		return &refresherr.InvalidAction{Reason: "must run on the leader unit"}
	}
	if inProgress {
		return &refresherr.InvalidAction{Reason: "refresh already in progress"}
	}
	return nil
}

// PreRefreshCheckResult builds the success result, embedding
// rollbackCommand verbatim. The command is not derived from
// OriginalVersions: it is the caller's configured string
// (refresh.Kubernetes.RollbackCommand).
func PreRefreshCheckResult(rollbackCommand string, logs []string) Result {
	return Result{
		Result: fmt.Sprintf("Charm and workload are healthy. If a refresh fails, use: %s", rollbackCommand),
		Logs:   logs,
	}
}

// ValidateForceRefreshStart enforces force-refresh-start's preconditions:
// must run on the highest-ordinal unit, requires a refresh in progress,
// and requires at least one check to be skipped (running it with
// everything true would be a no-op the user probably didn't intend).
func ValidateForceRefreshStart(onFirstUnit, inProgress bool, params ForceRefreshStartParams) error {
	if !onFirstUnit {
		return &refresherr.InvalidAction{Reason: "must run on the first unit to refresh"}
	}
	if !inProgress {
		return &refresherr.InvalidAction{Reason: "no refresh in progress"}
	}
	if !params.AnySkipped() {
		return &refresherr.InvalidAction{
			Reason: "at least one of check-workload-container, check-compatibility, " +
				"run-pre-refresh-checks must be false",
		}
	}
	return nil
}

// ValidateResumeRefresh enforces resume-refresh's preconditions:
// leader-only; fails if no refresh is in progress; and fails when
// pause_after is "none" and the caller isn't using the action to
// override health checks (running resume-refresh with pause_after=none
// and the default check-health-of-refreshed-units=true would be
// meaningless, since nothing is paused waiting for it).
func ValidateResumeRefresh(isLeader, inProgress bool, pauseAfter version.PauseAfter, params ResumeRefreshParams) error {
	if !isLeader {
		return &refresherr.InvalidAction{Reason: "must run on the leader unit"}
	}
	if !inProgress {
		return &refresherr.InvalidAction{Reason: "No refresh in progress"}
	}
	if pauseAfter == version.PauseAfterNone && params.CheckHealthOfRefreshedUnits {
		return &refresherr.InvalidAction{Reason: "pause_after is `none`, action not applicable"}
	}
	return nil
}

// FailBlockingUnit builds the InvalidAction failure PartitionController's
// Decision.BlockingUnit should surface through an action that triggered
// this event.
func FailBlockingUnit(u unit.Id) error {
	return &refresherr.InvalidAction{
		Reason: fmt.Sprintf("unit %s has not yet confirmed the next unit is allowed to refresh", u),
	}
}
