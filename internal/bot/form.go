package bot

import (
	"encoding/base64"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	tele "gopkg.in/telebot.v4"

	"github.com/jxoesneon/hermesbot/internal/shift"
)

// formState is the whole subscription form, small enough to round-trip
// through callback button data. Days is a bitmask indexed by
// time.Weekday (bit 0 = Sunday).
type formState struct {
	Start string `json:"s"`
	End   string `json:"e"`
	Days  uint8  `json:"d"`
}

func defaultFormState() formState {
	return formState{Start: "09:00", End: "17:00"}
}

func (f formState) dayOn(d int) bool { return f.Days&(1<<uint(d)) != 0 }

func (f formState) toggled(d int) formState {
	f.Days ^= 1 << uint(d)
	return f
}

// schedule converts the form into a domain schedule. Validation happens
// at save time, not here.
func (f formState) schedule() (shift.Schedule, error) {
	start, err := shift.ParseClock(f.Start)
	if err != nil {
		return shift.Schedule{}, err
	}
	end, err := shift.ParseClock(f.End)
	if err != nil {
		return shift.Schedule{}, err
	}
	s := shift.Schedule{Start: start, End: end}
	for d := 0; d < 7; d++ {
		s.Days[d] = f.dayOn(d)
	}
	return s, nil
}

// Callback data is limited to 64 bytes by Telegram, so the payload stays
// terse: base64url over compact JSON.
func packForm(f formState) string {
	b, _ := json.Marshal(f)
	return base64.RawURLEncoding.EncodeToString(b)
}

func unpackForm(payload string) (formState, error) {
	b, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return formState{}, fmt.Errorf("decode form payload: %w", err)
	}
	var f formState
	if err := json.Unmarshal(b, &f); err != nil {
		return formState{}, fmt.Errorf("decode form payload: %w", err)
	}
	return f, nil
}

var dayLabels = [7]string{"Su", "Mo", "Tu", "We", "Th", "Fr", "Sa"}

func formText(f formState) string {
	return fmt.Sprintf("%s\n\nShift: %s - %s\nToggle your working days below, adjust the hours with /shift HH:MM HH:MM, then press Save.",
		textFormPrompt, f.Start, f.End)
}

// formMarkup renders the inline keyboard for the current form state. The
// full state rides along in every button so a tap is self-contained.
func formMarkup(f formState) *tele.ReplyMarkup {
	payload := packForm(f)

	days := make([]tele.InlineButton, 0, 7)
	for d := 0; d < 7; d++ {
		label := dayLabels[d]
		if f.dayOn(d) {
			label = "✓" + label
		}
		days = append(days, tele.InlineButton{
			Text: label,
			Data: fmt.Sprintf("shift:d%d:%s", d, payload),
		})
	}

	actions := []tele.InlineButton{
		{Text: "Save", Data: "shift:save:" + payload},
		{Text: "Cancel", Data: "shift:cancel"},
	}

	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{days, actions}}
}

// parseFormCallback splits "shift:<action>:<payload>" callback data. The
// returned day is -1 unless the action is a day toggle.
func parseFormCallback(data string) (action string, day int, payload string, ok bool) {
	rest, found := strings.CutPrefix(data, "shift:")
	if !found {
		return "", -1, "", false
	}
	switch {
	case rest == "cancel":
		return "cancel", -1, "", true
	case strings.HasPrefix(rest, "save:"):
		return "save", -1, strings.TrimPrefix(rest, "save:"), true
	case strings.HasPrefix(rest, "d") && len(rest) > 2 && rest[2] == ':':
		d := int(rest[1] - '0')
		if d < 0 || d > 6 {
			return "", -1, "", false
		}
		return "toggle", d, rest[3:], true
	default:
		return "", -1, "", false
	}
}
