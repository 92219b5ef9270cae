// Package refreshk8s implements ClusterProbe: the read-only view of
// StatefulSet update revision, per-pod controller-revision labels, per-
// container image digests, and the RBAC self-check, built the way
// cloudnative-pg's controllers read Pods/StatefulSets/Jobs through a
// sigs.k8s.io/controller-runtime client.Client and gather them into a
// single managedResources-shaped snapshot (see
// internal/controller/cluster_status.go's managedResources) before any
// decision logic runs.
package refreshk8s

import (
	"github.com/canonical/charm-refresh/pkg/unit"
)

// UnitSnapshot is the per-unit data ClusterProbe produces for one event.
type UnitSnapshot struct {
	UnitID                 unit.Id
	ControllerRevisionHash string
	ContainerDigest        string
	WorkloadImageName      string
}

// ClusterSnapshot is the full read-only view RefreshDetector,
// PrecheckGate, and PartitionController consume.
type ClusterSnapshot struct {
	AppControllerRevision string
	// Units is ordered highest ordinal first: the refresh order.
	Units            []UnitSnapshot
	ThisUnit         unit.Id
	IsLeader         bool
	RBACPatchAllowed bool
	// Partition is the StatefulSet's current spec.updateStrategy.
	// rollingUpdate.partition, read alongside the rest of the snapshot so
	// PartitionController's monotonicity check has a single consistent
	// read.
	Partition int32
}

// UnitByID returns the snapshot for the given unit, if the probe
// observed it. A unit absent from Units (still Pending, not yet labeled
// with a controller-revision-hash) is not an error: callers must treat it
// as not-yet-healthy rather than panicking on a missing entry.
func (c ClusterSnapshot) UnitByID(id unit.Id) (UnitSnapshot, bool) {
	for _, u := range c.Units {
		if u.UnitID == id {
			return u, true
		}
	}
	return UnitSnapshot{}, false
}

// MostUpToDateRevision is the controller-revision hash of Units[0]: not
// necessarily the app's target revision (during a stop-before-refresh
// these can differ), but the revision the most-refreshed observed units
// share.
func (c ClusterSnapshot) MostUpToDateRevision() string {
	if len(c.Units) == 0 {
		return c.AppControllerRevision
	}
	return c.Units[0].ControllerRevisionHash
}

// MostUpToDateUnits returns the units whose controller revision equals
// MostUpToDateRevision(), in descending-ordinal order.
func (c ClusterSnapshot) MostUpToDateUnits() []UnitSnapshot {
	target := c.MostUpToDateRevision()
	out := make([]UnitSnapshot, 0, len(c.Units))
	for _, u := range c.Units {
		if u.ControllerRevisionHash == target {
			out = append(out, u)
		}
	}
	return out
}
