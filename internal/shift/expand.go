package shift

// DefaultOffsetMinutes is how many minutes before the top of the hour a
// reminder fires when the config does not say otherwise.
const DefaultOffsetMinutes = 5

// TriggerTime is one wall-clock firing point within a day.
type TriggerTime struct {
	Hour   int
	Minute int
}

// ExpandWindow turns a shift window into the ordered list of firing
// points. Each shift hour gets a reminder offsetMinutes before the top of
// the following hour, and one extra "pre-shift" reminder fires in the
// hour before the shift starts. The terminal hour itself is excluded.
//
// The walk wraps 23 -> 0, so windows crossing midnight work:
//
//	ExpandWindow(23:00, 01:00, 5) -> 22:55, 23:55, 00:55
//
// Equal start/end hours yield an empty window. The loop advances modulo
// 24 every iteration, so it terminates within 24 steps for any input.
func ExpandWindow(start, end Clock, offsetMinutes int) []TriggerTime {
	if start.Hour == end.Hour {
		return nil
	}
	if offsetMinutes < 1 || offsetMinutes > 59 {
		offsetMinutes = DefaultOffsetMinutes
	}
	minute := 60 - offsetMinutes

	pre := start.Hour - 1
	if pre < 0 {
		pre = 23
	}
	out := []TriggerTime{{Hour: pre, Minute: minute}}
	for h := start.Hour; h != end.Hour; h = (h + 1) % 24 {
		out = append(out, TriggerTime{Hour: h, Minute: minute})
	}
	return out
}
