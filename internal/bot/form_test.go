package bot

import (
	"testing"
)

func TestFormPayloadRoundTrip(t *testing.T) {
	t.Parallel()
	in := formState{Start: "23:00", End: "07:00", Days: 0b0111110}
	out, err := unpackForm(packForm(in))
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestFormPayloadFitsCallbackData(t *testing.T) {
	t.Parallel()
	// Telegram caps callback data at 64 bytes; the longest button prefix
	// is "shift:save:".
	payload := packForm(formState{Start: "23:00", End: "22:00", Days: 0x7f})
	if n := len("shift:save:") + len(payload); n > 64 {
		t.Fatalf("callback data is %d bytes, over the 64 byte limit", n)
	}
}

func TestFormToggle(t *testing.T) {
	t.Parallel()
	f := defaultFormState()
	if f.Days != 0 {
		t.Fatalf("fresh form has days set: %08b", f.Days)
	}
	f = f.toggled(1)
	f = f.toggled(5)
	if !f.dayOn(1) || !f.dayOn(5) || f.dayOn(0) {
		t.Fatalf("toggle result wrong: %08b", f.Days)
	}
	f = f.toggled(1)
	if f.dayOn(1) {
		t.Fatal("second toggle did not clear the day")
	}
}

func TestFormSchedule(t *testing.T) {
	t.Parallel()
	f := formState{Start: "09:00", End: "17:00", Days: 1 << 1}
	s, err := f.schedule()
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if s.Start.Hour != 9 || s.End.Hour != 17 || !s.Days[1] || s.Days[2] {
		t.Fatalf("unexpected schedule: %+v", s)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}

	if _, err := (formState{Start: "9am", End: "17:00"}).schedule(); err == nil {
		t.Fatal("expected parse error for bad clock")
	}
}

func TestParseFormCallback(t *testing.T) {
	t.Parallel()
	tests := []struct {
		data   string
		action string
		day    int
		ok     bool
	}{
		{"shift:cancel", "cancel", -1, true},
		{"shift:save:abc", "save", -1, true},
		{"shift:d0:abc", "toggle", 0, true},
		{"shift:d6:abc", "toggle", 6, true},
		{"shift:d9:abc", "", -1, false},
		{"shift:bogus", "", -1, false},
		{"other:thing", "", -1, false},
		{"", "", -1, false},
	}
	for _, tc := range tests {
		action, day, _, ok := parseFormCallback(tc.data)
		if action != tc.action || day != tc.day || ok != tc.ok {
			t.Errorf("parseFormCallback(%q) = (%q, %d, %v), want (%q, %d, %v)",
				tc.data, action, day, ok, tc.action, tc.day, tc.ok)
		}
	}
}
