package snooze_test

import (
	"testing"
	"time"

	"github.com/pushbucket/pushbucket/internal/snooze"
)

// Monday 2025-03-10 12:30 local.
func monday(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
}

func TestMuted_NilConfig(t *testing.T) {
	if snooze.Muted(nil, monday(12, 30)) {
		t.Error("nil config must not mute")
	}
}

func TestMuted_SnoozeUntil(t *testing.T) {
	now := monday(12, 30)

	future := now.Add(time.Hour)
	cfg := &snooze.MuteConfig{SnoozeUntil: &future}
	if !snooze.Muted(cfg, now) {
		t.Error("future snoozeUntil must mute")
	}

	past := now.Add(-time.Hour)
	cfg = &snooze.MuteConfig{SnoozeUntil: &past}
	if snooze.Muted(cfg, now) {
		t.Error("expired snoozeUntil must not mute")
	}
}

func TestMuted_WindowBoundsInclusive(t *testing.T) {
	cfg := &snooze.MuteConfig{
		Windows: []snooze.Window{
			{Days: []string{"monday"}, TimeFrom: "09:00", TimeTill: "17:00", Enabled: true},
		},
	}

	cases := []struct {
		name  string
		now   time.Time
		muted bool
	}{
		{"before window", monday(8, 59), false},
		{"lower bound", monday(9, 0), true},
		{"inside", monday(12, 30), true},
		{"upper bound", monday(17, 0), true},
		{"after window", monday(17, 1), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := snooze.Muted(cfg, tc.now); got != tc.muted {
				t.Errorf("Muted at %s = %v, want %v", tc.now.Format("15:04"), got, tc.muted)
			}
		})
	}
}

func TestMuted_DisabledWindow(t *testing.T) {
	cfg := &snooze.MuteConfig{
		Windows: []snooze.Window{
			{Days: []string{"monday"}, TimeFrom: "09:00", TimeTill: "17:00", Enabled: false},
		},
	}

	if snooze.Muted(cfg, monday(12, 30)) {
		t.Error("disabled window must not mute")
	}
}

func TestMuted_WrongDay(t *testing.T) {
	cfg := &snooze.MuteConfig{
		Windows: []snooze.Window{
			{Days: []string{"saturday", "sunday"}, TimeFrom: "00:00", TimeTill: "23:59", Enabled: true},
		},
	}

	if snooze.Muted(cfg, monday(12, 30)) {
		t.Error("window on other days must not mute")
	}
}

func TestMuted_DayNameCaseInsensitive(t *testing.T) {
	cfg := &snooze.MuteConfig{
		Windows: []snooze.Window{
			{Days: []string{"Monday"}, TimeFrom: "09:00", TimeTill: "17:00", Enabled: true},
		},
	}

	if !snooze.Muted(cfg, monday(12, 30)) {
		t.Error("day matching must ignore case")
	}
}

// A window whose from is later than its till spans midnight in intent, but the
// inclusive HH:MM comparison can never satisfy both bounds, so it matches
// nothing on either side of midnight.
func TestMuted_MidnightSpanningWindowNeverMatches(t *testing.T) {
	cfg := &snooze.MuteConfig{
		Windows: []snooze.Window{
			{Days: []string{"monday"}, TimeFrom: "22:00", TimeTill: "06:00", Enabled: true},
		},
	}

	if snooze.Muted(cfg, monday(23, 0)) {
		t.Error("23:00 must not match an inverted window")
	}
	if snooze.Muted(cfg, monday(2, 0)) {
		t.Error("02:00 must not match an inverted window")
	}
}

func TestMuted_FirstMatchingWindowWins(t *testing.T) {
	cfg := &snooze.MuteConfig{
		Windows: []snooze.Window{
			{Days: []string{"monday"}, TimeFrom: "08:00", TimeTill: "10:00", Enabled: false},
			{Days: []string{"monday"}, TimeFrom: "09:00", TimeTill: "11:00", Enabled: true},
		},
	}

	if !snooze.Muted(cfg, monday(9, 30)) {
		t.Error("a later enabled window must still mute")
	}
}
