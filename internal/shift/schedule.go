package shift

import "time"

// Schedule is a weekly shift: start/end of the working window plus the
// set of weekdays it applies to. Day indices follow time.Weekday
// (0 = Sunday .. 6 = Saturday).
type Schedule struct {
	Start Clock
	End   Clock
	Days  [7]bool
}

// Validate rejects schedules the expander cannot produce a window for.
// Equal start and end hours are a zero-length window; the original intent
// of such input is ambiguous (empty vs. 24h shift), so it is refused
// rather than guessed at.
func (s Schedule) Validate() error {
	if s.Start.Hour == s.End.Hour {
		return &ValidationError{
			Input:  s.Start.String() + "-" + s.End.String(),
			Reason: "shift start and end fall in the same hour",
		}
	}
	if !s.HasActiveDays() {
		return &ValidationError{Reason: "no active days selected"}
	}
	return nil
}

func (s Schedule) HasActiveDays() bool {
	for _, on := range s.Days {
		if on {
			return true
		}
	}
	return false
}

// ActiveDays returns the active weekdays in ascending order.
func (s Schedule) ActiveDays() []time.Weekday {
	var days []time.Weekday
	for d, on := range s.Days {
		if on {
			days = append(days, time.Weekday(d))
		}
	}
	return days
}
