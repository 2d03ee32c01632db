// Package shift models a subscriber's weekly work shift and expands it
// into the wall-clock points at which reminders fire.
package shift

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidationError reports malformed user input (clock strings, degenerate
// windows, empty day sets). It is safe to surface its message to the user.
type ValidationError struct {
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Input == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %q", e.Reason, e.Input)
}

// Clock is a wall-clock time of day. No date, no timezone.
type Clock struct {
	Hour   int // 0..23
	Minute int // 0..59
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClock parses "HH:MM" (24h). Leading zeroes are optional.
func ParseClock(s string) (Clock, error) {
	raw := s
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Clock{}, &ValidationError{Input: raw, Reason: "expected HH:MM"}
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || h < 0 || h > 23 {
		return Clock{}, &ValidationError{Input: raw, Reason: "invalid hour"}
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || m < 0 || m > 59 {
		return Clock{}, &ValidationError{Input: raw, Reason: "invalid minute"}
	}
	return Clock{Hour: h, Minute: m}, nil
}
