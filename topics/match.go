// Package topics implements the pure, stateless topic-matching and
// filter-validation rules shared by every index in this module. Nothing
// here holds state or talks to the network; it only answers "does this
// concrete topic match this filter" and "is this filter well formed".
package topics

import (
	"errors"
	"strings"
)

// SysPrefix is the conventional system-topic prefix. Filters and topics
// starting with this prefix are isolated from the general topic space:
// a subscription to "#" must never receive "$SYS/..." messages.
const SysPrefix = "$SYS/"

// single and multi level wildcard particles.
const (
	singleLevelWildcard = "+"
	multiLevelWildcard  = "#"
)

var (
	// ErrEmptyFilter is returned for a zero-length topic filter.
	ErrEmptyFilter = errors.New("topics: filter must not be empty")
	// ErrWildcardNotWhole is returned when '+' or '#' shares a level with
	// other characters, e.g. "sport+" or "a/#b".
	ErrWildcardNotWhole = errors.New("topics: '+' and '#' must occupy an entire topic level")
	// ErrMultiLevelNotLast is returned when '#' appears anywhere but the
	// final level of a filter.
	ErrMultiLevelNotLast = errors.New("topics: '#' must be the last level of the filter")
)

// IsSysTopic reports whether topic is a system topic ($SYS/...).
func IsSysTopic(topic string) bool {
	return strings.HasPrefix(topic, SysPrefix)
}

// ValidFilter reports whether filter is a structurally valid MQTT topic
// filter: non-empty, '#' only as the terminal level, and '+'/'#' each
// occupying a whole level on their own.
func ValidFilter(filter string) error {
	if filter == "" {
		return ErrEmptyFilter
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == multiLevelWildcard:
			if i != len(levels)-1 {
				return ErrMultiLevelNotLast
			}
		case level == singleLevelWildcard:
			// fine on its own, any position.
		case strings.ContainsAny(level, "+#"):
			return ErrWildcardNotWhole
		}
	}
	return nil
}

// Match reports whether the concrete topic matches filter, per the MQTT
// wildcard rules: '+' matches exactly one level (which may be empty), '#' matches
// zero or more trailing levels and must be the filter's final level.
// Empty levels are significant ("a//b" has three levels, the middle one
// empty) and are preserved by the level split, not collapsed.
//
// System topics (topic starting with SysPrefix) only match filters that
// themselves start with SysPrefix — this is the one place the $SYS
// boundary is enforced structurally, independent of which index routed
// the call here.
func Match(topic, filter string) bool {
	topicIsSys := IsSysTopic(topic)
	filterIsSys := strings.HasPrefix(filter, SysPrefix)
	if topicIsSys != filterIsSys {
		return false
	}

	return matchLevels(splitLevels(topic), splitLevels(filter))
}

func splitLevels(s string) []string {
	return strings.Split(s, "/")
}

func matchLevels(topic, filter []string) bool {
	for i, f := range filter {
		switch {
		case f == multiLevelWildcard:
			// '#' is terminal by construction (ValidFilter rejects
			// anything else); it matches everything from here on,
			// including zero remaining levels.
			return true
		case i >= len(topic):
			return false
		case f == singleLevelWildcard:
			// matches exactly one level, empty or not (e.g. "a//b"
			// against "a/+/b" matches the empty middle level).
		case f != topic[i]:
			return false
		}
	}

	return len(filter) == len(topic)
}
