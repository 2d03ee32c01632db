package registry

import (
	"github.com/jxoesneon/hermesbot/internal/shift"
)

// document is the full persisted registry file:
//
//	{"subscribers": {"<id>": {"displayName": ..., "emails": [...], "schedule": {...}}}}
type document struct {
	Subscribers map[string]Record `json:"subscribers"`
}

// Record is one subscriber. DisplayName and Emails are presentation-only;
// the map key is the identity everywhere.
type Record struct {
	DisplayName string       `json:"displayName"`
	Emails      []string     `json:"emails,omitempty"`
	Schedule    *ScheduleDoc `json:"schedule,omitempty"`
}

// ScheduleDoc is the stored shape of a shift schedule. Day keys follow
// time.Weekday indices (day0 = Sunday .. day6 = Saturday); an absent or
// false day is inactive.
type ScheduleDoc struct {
	ShiftStart string `json:"shiftstart"`
	ShiftEnd   string `json:"shiftend"`
	Day0       bool   `json:"day0,omitempty"`
	Day1       bool   `json:"day1,omitempty"`
	Day2       bool   `json:"day2,omitempty"`
	Day3       bool   `json:"day3,omitempty"`
	Day4       bool   `json:"day4,omitempty"`
	Day5       bool   `json:"day5,omitempty"`
	Day6       bool   `json:"day6,omitempty"`
}

// FromSchedule converts a validated domain schedule to its stored form.
func FromSchedule(s shift.Schedule) ScheduleDoc {
	return ScheduleDoc{
		ShiftStart: s.Start.String(),
		ShiftEnd:   s.End.String(),
		Day0:       s.Days[0],
		Day1:       s.Days[1],
		Day2:       s.Days[2],
		Day3:       s.Days[3],
		Day4:       s.Days[4],
		Day5:       s.Days[5],
		Day6:       s.Days[6],
	}
}

// Schedule parses the stored form back into the domain type.
func (d ScheduleDoc) Schedule() (shift.Schedule, error) {
	start, err := shift.ParseClock(d.ShiftStart)
	if err != nil {
		return shift.Schedule{}, err
	}
	end, err := shift.ParseClock(d.ShiftEnd)
	if err != nil {
		return shift.Schedule{}, err
	}
	return shift.Schedule{
		Start: start,
		End:   end,
		Days:  [7]bool{d.Day0, d.Day1, d.Day2, d.Day3, d.Day4, d.Day5, d.Day6},
	}, nil
}

func (r Record) clone() Record {
	cp := r
	if r.Emails != nil {
		cp.Emails = append([]string(nil), r.Emails...)
	}
	if r.Schedule != nil {
		sched := *r.Schedule
		cp.Schedule = &sched
	}
	return cp
}
