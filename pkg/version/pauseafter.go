package version

// PauseAfter is the total-ordered pause_after_unit_refresh preference.
// UNKNOWN dominates the max across units so that an unrecognized config
// value blocks progress via status rather than by silently picking a
// default.
type PauseAfter int

const (
	PauseAfterNone PauseAfter = iota
	PauseAfterFirst
	PauseAfterAll
	PauseAfterUnknown
)

// String renders the config-option spelling (lowercase), or "unknown"
// for values the controller could not classify.
func (p PauseAfter) String() string {
	switch p {
	case PauseAfterNone:
		return "none"
	case PauseAfterFirst:
		return "first"
	case PauseAfterAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParsePauseAfter classifies the raw pause_after_unit_refresh config
// value. Unknown values are tolerated, never an error: they become
// PauseAfterUnknown and are surfaced via status instead of crashing the
// controller.
func ParsePauseAfter(raw string) PauseAfter {
	switch raw {
	case "none":
		return PauseAfterNone
	case "first":
		return PauseAfterFirst
	case "all":
		return PauseAfterAll
	default:
		return PauseAfterUnknown
	}
}

// MaxPauseAfter is the commutative, associative max used to fold a set of
// per-unit preferences into the cluster-effective value. Called with zero
// arguments it returns PauseAfterNone (absent preferences are excluded by
// the caller unless none are present at all, per RefreshDetector).
func MaxPauseAfter(values ...PauseAfter) PauseAfter {
	max := PauseAfterNone
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	return max
}
