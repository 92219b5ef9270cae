// Package state implements StateStore: typed views over the two durable
// stores a unit has available — the peer-relation databag (cluster
// visible, eventually consistent) and a per-pod local directory (exists
// iff an event occurred, lost on pod delete).
//
// The charm framework event loop, and the actual relation/databag
// transport, are external collaborators (see spec.md section 1); this
// package only defines the narrow interface this controller needs and
// typed accessors on top of it, the way cloudnative-pg's
// client.Client-based helpers (e.g. controller.UpdateCondition) wrap a
// generic interface rather than owning the transport.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudnative-pg/machinery/pkg/stringset"

	"github.com/canonical/charm-refresh/pkg/unit"
)

// Databag is the narrow read/write surface this controller needs from a
// Juju peer relation. Implementations are last-writer-wins per key, as
// relation data always is; StateStore layers revision-qualified reads on
// top where invariants #2 and #4 require it.
type Databag interface {
	// UnitValue returns this unit's (or another unit's) value for key,
	// and whether it was present at all.
	UnitValue(u unit.Id, key string) (string, bool)
	// SetUnitValue sets a value in the calling unit's own section. Juju
	// enforces that a unit may only write its own section; callers must
	// not pass another unit's Id.
	SetUnitValue(key, value string) error

	// AppValue returns the leader-written, app-scoped value for key.
	AppValue(key string) (string, bool)
	// SetAppValue sets a value in the app section. Must only be called
	// by the leader; Juju rejects the write otherwise.
	SetAppValue(key, value string) error
}

// Keys used in the per-unit databag section.
const (
	KeyPauseAfterUnitRefreshConfig = "pause_after_unit_refresh_config"
	KeyNextUnitAllowedIfHashEquals = "next_unit_allowed_to_refresh_if_app_controller_revision_hash_equals"
	KeyRefreshStartedIfHashIn      = "refresh_started_if_app_controller_revision_hash_in"
)

// Keys used in the app-level (leader-only) databag section.
const (
	KeyOriginalWorkloadVersion          = "original_workload_version"
	KeyOriginalWorkloadContainerVersion = "original_workload_container_version"
	KeyOriginalCharmVersion             = "original_charm_version"
	KeyOriginalCharmRevision            = "original_charm_revision"
)

// Store is the typed view over a Databag plus the per-pod local
// directory. It is intentionally thin: every method is a direct
// projection of a well-known key, so that invariants #2 and #4 (staleness
// of next_unit_allowed and refresh_started outside their revision) are
// enforced once, here, rather than at each call site.
type Store struct {
	bag      Databag
	localDir string
	self     unit.Id
}

// New builds a Store backed by the given databag and local state
// directory. localDir is created on first write if it does not exist.
func New(bag Databag, self unit.Id, localDir string) *Store {
	return &Store{bag: bag, self: self, localDir: localDir}
}

// PauseAfterConfig returns the raw pause_after_unit_refresh_config value
// this unit has published, and whether it has published one at all
// (absent during scale-up or initial install, before config-changed has
// run once).
func (s *Store) PauseAfterConfig(u unit.Id) (string, bool) {
	return s.bag.UnitValue(u, KeyPauseAfterUnitRefreshConfig)
}

// SetPauseAfterConfig publishes this unit's pause_after_unit_refresh
// config value.
func (s *Store) SetPauseAfterConfig(raw string) error {
	return s.bag.SetUnitValue(KeyPauseAfterUnitRefreshConfig, raw)
}

// NextUnitAllowed reports whether u has declared the next unit allowed to
// refresh, scoped to currentHash (invariant #2: a stale hash means
// "absent").
func (s *Store) NextUnitAllowed(u unit.Id, currentHash string) bool {
	value, ok := s.bag.UnitValue(u, KeyNextUnitAllowedIfHashEquals)
	return ok && value == currentHash
}

// SetNextUnitAllowed declares that, as of currentHash, this unit allows
// the next unit in line to refresh.
func (s *Store) SetNextUnitAllowed(currentHash string) error {
	return s.bag.SetUnitValue(KeyNextUnitAllowedIfHashEquals, currentHash)
}

// RefreshStarted reports whether u has recorded PrecheckGate success (or
// rollback recognition) for currentHash (invariant #4: a new `juju
// refresh` invalidates prior entries because the hash changes).
func (s *Store) RefreshStarted(u unit.Id, currentHash string) bool {
	value, ok := s.bag.UnitValue(u, KeyRefreshStartedIfHashIn)
	if !ok {
		return false
	}
	return hashSetFromValue(value).Has(currentHash)
}

// SetRefreshStarted appends currentHash to this unit's
// refresh_started_if_app_controller_revision_hash_in set.
func (s *Store) SetRefreshStarted(currentHash string) error {
	existing, _ := s.bag.UnitValue(s.self, KeyRefreshStartedIfHashIn)
	set := hashSetFromValue(existing)
	if set.Has(currentHash) {
		return nil
	}
	set.Put(currentHash)
	return s.bag.SetUnitValue(KeyRefreshStartedIfHashIn, hashSetToValue(set))
}

// OriginalVersions is the rollback anchor written by the leader whenever
// no refresh is in progress.
type OriginalVersions struct {
	WorkloadVersion          string
	WorkloadContainerVersion string
	CharmVersion             string
	CharmRevisionRaw         string
}

// Empty reports whether no OriginalVersions has ever been written (e.g.
// pre-v3 app databag, or truly first install before the leader's first
// write).
func (o OriginalVersions) Empty() bool {
	return o == OriginalVersions{}
}

// OriginalVersions reads the app-level rollback anchor. ok is false if it
// has never been written.
func (s *Store) OriginalVersions() (OriginalVersions, bool) {
	workload, ok1 := s.bag.AppValue(KeyOriginalWorkloadVersion)
	container, ok2 := s.bag.AppValue(KeyOriginalWorkloadContainerVersion)
	charm, ok3 := s.bag.AppValue(KeyOriginalCharmVersion)
	revision, ok4 := s.bag.AppValue(KeyOriginalCharmRevision)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return OriginalVersions{}, false
	}
	return OriginalVersions{
		WorkloadVersion:          workload,
		WorkloadContainerVersion: container,
		CharmVersion:             charm,
		CharmRevisionRaw:         revision,
	}, true
}

// SetOriginalVersions writes the rollback anchor. Must only be called by
// the leader, and only when in_progress == false (invariant #3); the
// caller (PartitionController's orchestrator) enforces that precondition.
func (s *Store) SetOriginalVersions(v OriginalVersions) error {
	if v.Empty() {
		return fmt.Errorf("refusing to write an empty OriginalVersions")
	}
	for key, value := range map[string]string{
		KeyOriginalWorkloadVersion:          v.WorkloadVersion,
		KeyOriginalWorkloadContainerVersion: v.WorkloadContainerVersion,
		KeyOriginalCharmVersion:             v.CharmVersion,
		KeyOriginalCharmRevision:            v.CharmRevisionRaw,
	} {
		if err := s.bag.SetAppValue(key, value); err != nil {
			return fmt.Errorf("writing original versions: %w", err)
		}
	}
	return nil
}

// Local marker names under the per-pod state directory.
const (
	MarkerUnitTearingDown = "kubernetes_unit_tearing_down"
	MarkerRefreshStarted  = "kubernetes_refresh_started"
)

// LocalMarkerExists reports whether the named marker file exists in the
// per-pod local directory. Presence semantics are "exists iff the event
// occurred"; the directory (and its contents) are lost on pod delete.
func (s *Store) LocalMarkerExists(name string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.localDir, name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// CreateLocalMarker creates the named marker file, creating the local
// directory first if needed. Safe to call more than once.
func (s *Store) CreateLocalMarker(name string) error {
	if err := os.MkdirAll(s.localDir, 0o700); err != nil {
		return fmt.Errorf("creating local state directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(s.localDir, name), os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("creating local marker %q: %w", name, err)
	}
	return f.Close()
}

// hashSetFromValue parses the comma-joined revision-hash set the
// databag stores a string value as, using stringset.Data the way the
// rest of this module's dependency pack represents small unordered
// string sets rather than hand-rolling one.
func hashSetFromValue(value string) stringset.Data {
	if value == "" {
		return stringset.New()
	}
	return stringset.From(strings.Split(value, ","))
}

// hashSetToValue serializes set back to the comma-joined form, sorted
// for a deterministic databag write.
func hashSetToValue(set stringset.Data) string {
	return strings.Join(set.ToSortedList(), ",")
}
