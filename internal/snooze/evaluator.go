package snooze

import (
	"strings"
	"time"
)

// Muted reports whether the bucket is currently muted for the user.
//
// A nil config means not muted. An absolute SnoozeUntil in the future mutes
// unconditionally. Otherwise the recurring windows are scanned in list order
// and the first enabled window containing now wins.
//
// Window bounds are compared lexicographically as zero-padded "HH:MM"
// strings, both ends inclusive. A window whose TimeFrom is later than its
// TimeTill (crossing midnight) therefore never matches; this mirrors the
// stored configuration format and is a known limitation, not a bug to fix
// here.
func Muted(cfg *MuteConfig, now time.Time) bool {
	if cfg == nil {
		return false
	}

	if cfg.SnoozeUntil != nil && now.Before(*cfg.SnoozeUntil) {
		return true
	}

	weekday := strings.ToLower(now.Weekday().String())
	clock := now.Format("15:04")

	for _, w := range cfg.Windows {
		if !w.Enabled {
			continue
		}
		if !containsDay(w.Days, weekday) {
			continue
		}
		if w.TimeFrom <= clock && clock <= w.TimeTill {
			return true
		}
	}

	return false
}

func containsDay(days []string, day string) bool {
	for _, d := range days {
		if strings.EqualFold(d, day) {
			return true
		}
	}
	return false
}
