// Package unit implements UnitId: a Juju unit identity and the
// descending-ordinal ordering the refresh rollout advances by.
package unit

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Id identifies a single unit of an application: "<app>/<ordinal>".
// Ordinals are non-negative; the unit with the highest ordinal is the
// first to refresh.
type Id struct {
	App     string
	Ordinal int
}

// String renders the canonical "<app>/<ordinal>" form used in Juju
// status output and logs.
func (u Id) String() string {
	return fmt.Sprintf("%s/%d", u.App, u.Ordinal)
}

// Less orders units by ascending ordinal within the same application.
// Use SortDescending (or sort.Slice with !Less) to get the refresh
// order, which runs from the highest ordinal to the lowest.
func (u Id) Less(other Id) bool {
	return u.Ordinal < other.Ordinal
}

// SortDescending sorts units by descending ordinal in place: this is the
// refresh order, highest ordinal first.
func SortDescending(units []Id) {
	sort.Slice(units, func(i, j int) bool {
		return units[i].Ordinal > units[j].Ordinal
	})
}

// ParseID parses the canonical "<app>/<ordinal>" unit name, the form
// JUJU_UNIT_NAME and --unit CLI flags use.
func ParseID(name string) (Id, error) {
	app, ordinalStr, ok := strings.Cut(name, "/")
	if !ok {
		return Id{}, fmt.Errorf("invalid unit name %q: missing \"/\" separator", name)
	}
	ordinal, err := strconv.Atoi(ordinalStr)
	if err != nil {
		return Id{}, fmt.Errorf("invalid unit name %q: %w", name, err)
	}
	return Id{App: app, Ordinal: ordinal}, nil
}
