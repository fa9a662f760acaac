// Package snooze evaluates per-user bucket mute configuration.
package snooze

import "time"

// Window is a recurring weekly mute window.
//
// Days holds lower-cased English weekday names ("monday" .. "sunday").
// TimeFrom and TimeTill are zero-padded local "HH:MM" strings, both bounds
// inclusive.
type Window struct {
	Days     []string
	TimeFrom string
	TimeTill string
	Enabled  bool
}

// MuteConfig is the mute configuration of a (user, bucket) pair.
type MuteConfig struct {
	UserID   string
	BucketID string

	// SnoozeUntil mutes the bucket absolutely until the given instant.
	SnoozeUntil *time.Time

	// Windows are evaluated in order after SnoozeUntil has passed.
	Windows []Window
}
