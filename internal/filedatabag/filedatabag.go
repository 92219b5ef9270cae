// Package filedatabag is a JSON-file-backed state.Databag used by the
// charm-refresh CLI. The real Juju peer-relation databag is
// reached through the charm framework's relation-get/relation-set hook
// tools, which spec.md §1 names as an external collaborator this module
// does not implement; this package is the narrow stand-in a CLI needs to
// exercise the controller outside of a running charm, in the same spirit
// as cloudnative-pg's pkg/configfile loading a small JSON/YAML blob from
// disk rather than talking to the Kubernetes API for configuration.
package filedatabag

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/canonical/charm-refresh/pkg/unit"
)

// Databag is a file-backed implementation of state.Databag.
type Databag struct {
	path string
	data fileData
	self unit.Id
}

type fileData struct {
	Units map[string]map[string]string `json:"units"`
	App   map[string]string            `json:"app"`
}

// Load reads (or initializes) the databag file at path, scoped to self
// for writes to the per-unit section.
func Load(path string, self unit.Id) (*Databag, error) {
	d := &Databag{path: path, self: self, data: fileData{
		Units: map[string]map[string]string{},
		App:   map[string]string{},
	}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return nil, fmt.Errorf("reading databag file %q: %w", path, err)
	}
	if err := json.Unmarshal(raw, &d.data); err != nil {
		return nil, fmt.Errorf("parsing databag file %q: %w", path, err)
	}
	if d.data.Units == nil {
		d.data.Units = map[string]map[string]string{}
	}
	if d.data.App == nil {
		d.data.App = map[string]string{}
	}
	return d, nil
}

func (d *Databag) save() error {
	raw, err := json.MarshalIndent(d.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(d.path, raw, 0o600)
}

// UnitValue implements state.Databag.
func (d *Databag) UnitValue(u unit.Id, key string) (string, bool) {
	section, ok := d.data.Units[u.String()]
	if !ok {
		return "", false
	}
	v, ok := section[key]
	return v, ok
}

// SetUnitValue implements state.Databag.
func (d *Databag) SetUnitValue(key, value string) error {
	section, ok := d.data.Units[d.self.String()]
	if !ok {
		section = map[string]string{}
		d.data.Units[d.self.String()] = section
	}
	section[key] = value
	return d.save()
}

// AppValue implements state.Databag.
func (d *Databag) AppValue(key string) (string, bool) {
	v, ok := d.data.App[key]
	return v, ok
}

// SetAppValue implements state.Databag.
func (d *Databag) SetAppValue(key, value string) error {
	d.data.App[key] = value
	return d.save()
}
