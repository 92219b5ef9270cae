// Package version implements VersionModel: parsing and ordering of charm
// versions, and the baseline compatibility predicate a charm author's
// is_compatible hook layers on top of.
//
// A charm version string has the form "<track>/<release>", e.g.
// "14/1.12.0" or "14/1.12.0.post1.dev0+71201f4.dirty". The release part
// follows PEP 440 with the restriction that it always carries exactly
// three numeric release components. Go has no PEP 440 parser in this
// module's dependency pack, so the numeric release triple and ordering
// are delegated to github.com/blang/semver, which is already part of the
// teacher's stack; pre/dev/local markers are folded into semver's
// pre-release slot so total ordering within a track still holds.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blang/semver"
)

// CharmVersion is an immutable, parsed charm code version.
type CharmVersion struct {
	raw     string
	track   string
	release [3]uint64
	suffix  string // the part of the PEP 440 string after the release triple, e.g. ".post1.dev0+71201f4.dirty"
	semver  semver.Version
}

// Parse parses a "<track>/<release>" charm version string.
func Parse(version string) (CharmVersion, error) {
	track, rest, ok := strings.Cut(version, "/")
	if !ok {
		return CharmVersion{}, fmt.Errorf("invalid charm version %q: missing track separator \"/\"", version)
	}
	if strings.Contains(rest, "!") {
		return CharmVersion{}, fmt.Errorf("invalid charm version %q: PEP 440 epoch (\"!\" character) not supported", version)
	}

	release, suffix, err := splitRelease(rest)
	if err != nil {
		return CharmVersion{}, fmt.Errorf("invalid charm version %q: %w", version, err)
	}

	sv, err := semver.Make(fmt.Sprintf("%d.%d.%d%s", release[0], release[1], release[2], normalizeSuffix(suffix)))
	if err != nil {
		return CharmVersion{}, fmt.Errorf("invalid charm version %q: %w", version, err)
	}

	return CharmVersion{
		raw:     version,
		track:   track,
		release: release,
		suffix:  suffix,
		semver:  sv,
	}, nil
}

// MustParse is Parse, panicking on error. Used for literals in tests and
// for versions that are known-good at compile time.
func MustParse(version string) CharmVersion {
	v, err := Parse(version)
	if err != nil {
		panic(err)
	}
	return v
}

// splitRelease extracts the three-component numeric release from a PEP
// 440-shaped string and returns it along with whatever follows it
// (pre/post/dev/local markers, verbatim).
func splitRelease(pep440 string) ([3]uint64, string, error) {
	var release [3]uint64

	i := 0
	for part := 0; part < 3; part++ {
		start := i
		for i < len(pep440) && pep440[i] >= '0' && pep440[i] <= '9' {
			i++
		}
		if i == start {
			return release, "", fmt.Errorf(
				"expected 3 number components after track; got %d components instead", part)
		}
		n, err := strconv.ParseUint(pep440[start:i], 10, 64)
		if err != nil {
			return release, "", err
		}
		release[part] = n

		if part < 2 {
			if i >= len(pep440) || pep440[i] != '.' {
				return release, "", fmt.Errorf(
					"expected 3 number components after track; got %d components instead", part+1)
			}
			i++
		}
	}

	suffix := pep440[i:]
	// A fourth numeric release component (e.g. "1.2.3.4") is a PEP 440
	// release, not a pre/post/dev marker; reject it explicitly instead of
	// silently treating "4" as part of the suffix.
	if len(suffix) > 0 && suffix[0] == '.' && len(suffix) > 1 && suffix[1] >= '0' && suffix[1] <= '9' {
		return release, "", fmt.Errorf("expected 3 number components after track; got 4 or more components instead")
	}

	return release, suffix, nil
}

// normalizeSuffix turns a PEP 440 suffix into something semver.Make
// accepts as pre-release/build metadata: everything becomes a
// pre-release component (so that, e.g., "14/1.12.0" orders after
// "14/1.12.0.post1.dev0"), since any non-empty suffix means the version
// is not released.
func normalizeSuffix(suffix string) string {
	if suffix == "" {
		return ""
	}
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, suffix)
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		cleaned = "dev"
	}
	return "-" + cleaned
}

// String returns the original version string.
func (v CharmVersion) String() string { return v.raw }

// Track returns the Charmhub track the version was released to.
func (v CharmVersion) Track() string { return v.track }

// Major is the first component of the release triple. Bumped by the
// charm author when a refresh from an older major is not supported
// without an intermediate charm version.
func (v CharmVersion) Major() uint64 { return v.release[0] }

// Release returns the three-component numeric release.
func (v CharmVersion) Release() [3]uint64 { return v.release }

// IsReleased is true iff the input was exactly the base version, with no
// pre/post/dev/local markers.
func (v CharmVersion) IsReleased() bool { return v.suffix == "" }

// Equal reports whether v and other were parsed from the same version
// string. Use EqualString to compare against a raw version string.
func (v CharmVersion) Equal(other CharmVersion) bool {
	return v.raw == other.raw
}

// EqualString compares the version's canonical string form.
func (v CharmVersion) EqualString(other string) bool {
	return v.raw == other
}

// Compare orders v against other. Both must share a track; cross-track
// comparison returns an error rather than a misleading ordering.
func (v CharmVersion) Compare(other CharmVersion) (int, error) {
	if v.track != other.track {
		return 0, fmt.Errorf(
			"unable to compare versions with different tracks: %q and %q (%q and %q)",
			v.track, other.track, v.raw, other.raw)
	}
	return v.semver.Compare(other.semver), nil
}

// GreaterThanOrEqual reports whether v >= other. Panics on cross-track
// comparison; callers that cannot guarantee a shared track should use
// Compare instead.
func (v CharmVersion) GreaterThanOrEqual(other CharmVersion) bool {
	c, err := v.Compare(other)
	if err != nil {
		panic(err)
	}
	return c >= 0
}

// DefaultCompatible is the baseline compatibility predicate every charm's
// is_compatible hook layers on top of: both versions must be released,
// share a major version, and the new version must not be a downgrade.
// A charm-supplied predicate should call this first and only add
// additional workload-specific checks on a true result, because the
// fast path of a rollback (identical old/new charm and workload) also
// depends on this contract: DefaultCompatible(v, v) is always true for a
// released v.
func DefaultCompatible(oldCharm, newCharm CharmVersion) bool {
	if !oldCharm.IsReleased() || !newCharm.IsReleased() {
		return false
	}
	if oldCharm.Major() != newCharm.Major() {
		return false
	}
	return newCharm.GreaterThanOrEqual(oldCharm)
}

// CompatibilityCheck is the charm-supplied is_compatible hook signature.
// It is called with the new charm version active and should not consult
// any state beyond its parameters.
type CompatibilityCheck func(
	oldCharmVersion, newCharmVersion CharmVersion,
	oldWorkloadVersion, newWorkloadVersion string,
) bool
