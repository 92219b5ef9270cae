// Package detector implements RefreshDetector: derives in_progress, the
// refresh order, and the cluster-effective pause_after from a
// ClusterSnapshot, the way cloudnative-pg's isPodNeedingRollout derives a
// per-pod rollout decision from a PostgresqlStatus snapshot — except here
// the decision is cluster-wide rather than per-pod.
package detector

import (
	"github.com/canonical/charm-refresh/pkg/refreshk8s"
	"github.com/canonical/charm-refresh/pkg/unit"
	"github.com/canonical/charm-refresh/pkg/version"
)

// Result is RefreshDetector's output.
type Result struct {
	InProgress bool
	// Units is the refresh order, highest ordinal first.
	Units []refreshk8s.UnitSnapshot
	// EffectivePauseAfter is the max over the most-up-to-date units'
	// reported preferences.
	EffectivePauseAfter version.PauseAfter
}

// PauseAfterConfigReader reads a unit's published
// pause_after_unit_refresh_config value.
type PauseAfterConfigReader func(id unit.Id) (raw string, ok bool)

// Detect classifies the snapshot. readConfig is used to fetch each
// most-up-to-date unit's pause_after preference from the databag;
// missing preferences (scale-up, initial install) are excluded from the
// max unless none are present at all, in which case UNKNOWN is used so a
// cluster with no reported preference still blocks rather than silently
// defaulting to "none".
func Detect(snapshot refreshk8s.ClusterSnapshot, readConfig PauseAfterConfigReader) Result {
	inProgress := false
	for _, u := range snapshot.Units {
		if u.ControllerRevisionHash != snapshot.AppControllerRevision {
			inProgress = true
			break
		}
	}

	mostUpToDate := snapshot.MostUpToDateUnits()
	var preferences []version.PauseAfter
	for _, u := range mostUpToDate {
		raw, ok := readConfig(u.UnitID)
		if !ok {
			continue
		}
		preferences = append(preferences, version.ParsePauseAfter(raw))
	}

	effective := version.PauseAfterUnknown
	if len(preferences) > 0 {
		effective = version.MaxPauseAfter(preferences...)
	}

	return Result{
		InProgress:          inProgress,
		Units:               snapshot.Units,
		EffectivePauseAfter: effective,
	}
}
