// Package precheck implements PrecheckGate: the first-refreshed-unit
// gate that runs the workload-container digest check, the compatibility
// check, and the charm's pre-refresh hooks before the new workload is
// allowed to start — mirroring the ordered-checkers pattern of
// cloudnative-pg's isPodNeedingRollout (internal/controller/
// cluster_upgrade.go), but gating a go/no-go decision instead of
// collecting a rollout reason.
package precheck

import (
	"fmt"

	"github.com/canonical/charm-refresh/pkg/refresherr"
	"github.com/canonical/charm-refresh/pkg/version"
)

// Pins is the charm-bundle-pinned state the normal path checks the
// installed state against.
type Pins struct {
	Charm                   version.CharmVersion
	WorkloadContainerDigest string
}

// Installed is what is actually running on the first unit.
type Installed struct {
	Charm                   version.CharmVersion
	WorkloadContainerDigest string
}

// Original is the rollback anchor (state.OriginalVersions, reduced to the
// two fields the fast path compares).
type Original struct {
	Charm                   version.CharmVersion
	WorkloadContainerDigest string
	// Present is false if OriginalVersions has never been written (e.g.
	// pre-v3 app databag); the fast path never applies in that case.
	Present bool
}

// ForceParams mirrors the force-refresh-start action parameters: setting
// any to true skips the matching check, and the caller must already have
// validated (via ActionHandler) that at least one is true.
type ForceParams struct {
	SkipWorkloadContainerCheck bool
	SkipCompatibilityCheck     bool
	SkipPreRefreshChecks       bool
}

// CompatibilityCheck is the charm-supplied is_compatible hook.
type CompatibilityCheck func(
	oldCharm, newCharm version.CharmVersion,
	oldWorkload, newWorkload string,
) bool

// PreRefreshHook is the charm-supplied after_1_unit_refreshed hook. It
// returns a *refresherr.PrecheckFailed on failure, or any other error for
// an unexpected hook failure the caller should treat as transient.
type PreRefreshHook func() error

// Outcome is what Run produces: whether the gate passed, and if not, the
// failure to surface via status and action result. Logs accumulates
// human-readable lines regardless of success, matching the original
// implementation's pattern of logging each skipped/run check as it
// happens rather than only at the end (see SPEC_FULL.md §4.4).
type Outcome struct {
	Started bool
	Failure error
	Logs    []string
}

// Run executes PrecheckGate for the first unit. oldWorkloadVersion/
// newWorkloadVersion are the workload_version strings (old = Original's
// era, new = the currently pinned one) fed to the compatibility hook.
func Run(
	pins Pins,
	installed Installed,
	original Original,
	oldWorkloadVersion, newWorkloadVersion string,
	compatible CompatibilityCheck,
	preRefresh PreRefreshHook,
	force ForceParams,
) Outcome {
	var logs []string

	// Rollback fast path: unconditional, skips every check.
	if original.Present &&
		original.Charm.EqualString(installed.Charm.String()) &&
		original.WorkloadContainerDigest == installed.WorkloadContainerDigest {
		logs = append(logs, "installed charm and workload container match the last known-good "+
			"(OriginalVersions): recognizing this as a rollback and skipping all checks")
		return Outcome{Started: true, Logs: logs}
	}

	if force.SkipWorkloadContainerCheck {
		logs = append(logs, "workload container check skipped by force-refresh-start")
	} else if installed.WorkloadContainerDigest != pins.WorkloadContainerDigest {
		return Outcome{
			Logs: append(logs, "workload container check failed"),
			Failure: fmt.Errorf(
				"installed workload container (%s) does not match the pinned digest (%s): %w",
				installed.WorkloadContainerDigest, pins.WorkloadContainerDigest,
				&refresherr.PrecheckFailed{Message: "Workload container does not match refresh_versions.toml"}),
		}
	}

	if force.SkipCompatibilityCheck {
		logs = append(logs, "compatibility check skipped by force-refresh-start")
	} else if !compatible(installed.Charm, pins.Charm, oldWorkloadVersion, newWorkloadVersion) {
		return Outcome{
			Logs: append(logs, "compatibility check failed"),
			Failure: &refresherr.PrecheckFailed{Message: "Refresh incompatible with previous version"},
		}
	}

	if force.SkipPreRefreshChecks {
		logs = append(logs, "pre-refresh checks skipped by force-refresh-start")
	} else if preRefresh != nil {
		if err := preRefresh(); err != nil {
			return Outcome{
				Logs:    append(logs, "pre-refresh checks failed"),
				Failure: err,
			}
		}
		logs = append(logs, "pre-refresh checks succeeded")
	}

	return Outcome{Started: true, Logs: logs}
}
