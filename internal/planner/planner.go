// Package planner computes the full desired trigger set from a registry
// snapshot. It is a pure function of its input: identical snapshots
// always produce identical plans, which is what makes the reconciler's
// replace-everything rebuild meaningful.
package planner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jxoesneon/hermesbot/internal/registry"
	"github.com/jxoesneon/hermesbot/internal/shift"
)

// EveryDay marks a trigger that fires on all weekdays.
const EveryDay time.Weekday = -1

const (
	shiftMessageFormat    = "Hello %s, remember to send the hourly email!"
	fallbackMessageFormat = "Hi %s, looks like you have not updated your subscription, please reply with /subscribe to update it."
)

// Trigger is one recurring firing instruction bound to one subscriber.
type Trigger struct {
	SubscriberID string
	Day          time.Weekday // EveryDay for the unconfigured-subscriber reminder
	Hour         int
	Minute       int
	Message      string
	Fallback     bool
}

// Config tunes the plan without making it stateful.
type Config struct {
	// OffsetMinutes is how long before the top of the hour shift
	// reminders fire. Out-of-range values fall back to the default.
	OffsetMinutes int
	// FallbackHour is when the daily "finish your subscription" reminder
	// fires for subscribers without a schedule.
	FallbackHour int
}

func (c Config) fallbackHour() int {
	if c.FallbackHour < 0 || c.FallbackHour > 23 {
		return 22
	}
	return c.FallbackHour
}

// Plan expands every subscriber into triggers. Subscribers with a stored
// schedule get one trigger per active day per window hour; subscribers
// without one (or with a schedule that no longer parses) get a single
// daily fallback reminder. Output order is deterministic: ascending
// subscriber id, then day, then hour.
func Plan(snapshot map[string]registry.Record, cfg Config) []Trigger {
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Trigger
	for _, id := range ids {
		rec := snapshot[id]
		name := firstName(rec.DisplayName)

		sched, ok := parseSchedule(rec)
		if !ok {
			out = append(out, Trigger{
				SubscriberID: id,
				Day:          EveryDay,
				Hour:         cfg.fallbackHour(),
				Minute:       0,
				Message:      fmt.Sprintf(fallbackMessageFormat, name),
				Fallback:     true,
			})
			continue
		}

		times := shift.ExpandWindow(sched.Start, sched.End, cfg.OffsetMinutes)
		msg := fmt.Sprintf(shiftMessageFormat, name)
		for _, day := range sched.ActiveDays() {
			for _, tt := range times {
				out = append(out, Trigger{
					SubscriberID: id,
					Day:          day,
					Hour:         tt.Hour,
					Minute:       tt.Minute,
					Message:      msg,
				})
			}
		}
	}
	return out
}

// parseSchedule returns the stored schedule if it is present and still
// valid. A record whose schedule fails to parse or validate is treated
// as unconfigured so its owner gets nudged instead of silently skipped.
func parseSchedule(rec registry.Record) (shift.Schedule, bool) {
	if rec.Schedule == nil {
		return shift.Schedule{}, false
	}
	sched, err := rec.Schedule.Schedule()
	if err != nil {
		return shift.Schedule{}, false
	}
	if err := sched.Validate(); err != nil {
		return shift.Schedule{}, false
	}
	return sched, true
}

func firstName(displayName string) string {
	fields := strings.Fields(displayName)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}
