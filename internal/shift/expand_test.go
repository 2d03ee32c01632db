package shift

import (
	"errors"
	"reflect"
	"testing"
)

func mustClock(t *testing.T, s string) Clock {
	t.Helper()
	c, err := ParseClock(s)
	if err != nil {
		t.Fatalf("ParseClock(%q): %v", s, err)
	}
	return c
}

func hours(ts []TriggerTime) []int {
	out := make([]int, 0, len(ts))
	for _, tt := range ts {
		out = append(out, tt.Hour)
	}
	return out
}

func TestExpandWindowDayShift(t *testing.T) {
	t.Parallel()
	got := ExpandWindow(mustClock(t, "09:00"), mustClock(t, "17:00"), 5)

	wantHours := []int{8, 9, 10, 11, 12, 13, 14, 15, 16}
	if !reflect.DeepEqual(hours(got), wantHours) {
		t.Fatalf("hours = %v, want %v", hours(got), wantHours)
	}
	for _, tt := range got {
		if tt.Minute != 55 {
			t.Fatalf("minute = %d, want 55", tt.Minute)
		}
	}
}

func TestExpandWindowWrapsMidnight(t *testing.T) {
	t.Parallel()
	got := ExpandWindow(mustClock(t, "23:00"), mustClock(t, "01:00"), 5)

	wantHours := []int{22, 23, 0}
	if !reflect.DeepEqual(hours(got), wantHours) {
		t.Fatalf("hours = %v, want %v", hours(got), wantHours)
	}
}

func TestExpandWindowPreShiftWrapsAtMidnightStart(t *testing.T) {
	t.Parallel()
	got := ExpandWindow(mustClock(t, "00:00"), mustClock(t, "02:00"), 5)

	wantHours := []int{23, 0, 1}
	if !reflect.DeepEqual(hours(got), wantHours) {
		t.Fatalf("hours = %v, want %v", hours(got), wantHours)
	}
}

func TestExpandWindowEqualHoursIsEmpty(t *testing.T) {
	t.Parallel()
	if got := ExpandWindow(Clock{Hour: 9}, Clock{Hour: 9, Minute: 30}, 5); len(got) != 0 {
		t.Fatalf("expected empty window, got %v", got)
	}
}

func TestExpandWindowOffset(t *testing.T) {
	t.Parallel()
	got := ExpandWindow(mustClock(t, "10:00"), mustClock(t, "11:00"), 10)
	want := []TriggerTime{{Hour: 9, Minute: 50}, {Hour: 10, Minute: 50}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	// Out-of-range offsets fall back to the default.
	got = ExpandWindow(mustClock(t, "10:00"), mustClock(t, "11:00"), 0)
	if got[0].Minute != 60-DefaultOffsetMinutes {
		t.Fatalf("minute = %d, want %d", got[0].Minute, 60-DefaultOffsetMinutes)
	}
}

func TestExpandWindowDeterministic(t *testing.T) {
	t.Parallel()
	a := ExpandWindow(mustClock(t, "06:30"), mustClock(t, "15:00"), 5)
	b := ExpandWindow(mustClock(t, "06:30"), mustClock(t, "15:00"), 5)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expansion not deterministic: %v vs %v", a, b)
	}
	if len(a) == 0 || len(a) > 24 {
		t.Fatalf("unexpected window length %d", len(a))
	}
}

func TestParseClock(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "09:00", want: Clock{9, 0}},
		{in: "23:59", want: Clock{23, 59}},
		{in: " 7:05 ", want: Clock{7, 5}},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "12", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseClock(%q): expected error", tt.in)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ParseClock(%q): error %T is not *ValidationError", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseClock(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseClock(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestScheduleValidate(t *testing.T) {
	t.Parallel()
	ok := Schedule{Start: Clock{9, 0}, End: Clock{17, 0}}
	ok.Days[1] = true
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}

	sameHour := Schedule{Start: Clock{9, 0}, End: Clock{9, 30}}
	sameHour.Days[1] = true
	if err := sameHour.Validate(); err == nil {
		t.Fatal("expected rejection of same-hour window")
	}

	noDays := Schedule{Start: Clock{9, 0}, End: Clock{17, 0}}
	if err := noDays.Validate(); err == nil {
		t.Fatal("expected rejection of empty day set")
	}
}
