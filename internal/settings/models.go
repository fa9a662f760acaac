// Package settings provides typed server and user settings backed by a keyed
// value store.
//
// Settings rows are heterogeneous (text, number, flag). The raw row is turned
// into a tagged Value at the read boundary, so nothing downstream inspects
// multiple nullable columns to guess a type.
package settings

import "errors"

// ErrSettingNotFound is returned when a setting has no stored value.
var ErrSettingNotFound = errors.New("setting not found")

// Kind identifies the type a Value carries.
type Kind string

const (
	KindText   Kind = "text"
	KindNumber Kind = "number"
	KindFlag   Kind = "flag"
)

// Value is a tagged setting value.
type Value struct {
	Kind   Kind
	Text   string
	Number int64
	Flag   bool
}

// TextValue builds a text Value.
func TextValue(s string) Value { return Value{Kind: KindText, Text: s} }

// NumberValue builds a numeric Value.
func NumberValue(n int64) Value { return Value{Kind: KindNumber, Number: n} }

// FlagValue builds a boolean Value.
func FlagValue(b bool) Value { return Value{Kind: KindFlag, Flag: b} }

// AsText returns the text content, reporting whether the value is text.
func (v Value) AsText() (string, bool) {
	return v.Text, v.Kind == KindText
}

// AsNumber returns the numeric content, reporting whether the value is a
// number.
func (v Value) AsNumber() (int64, bool) {
	return v.Number, v.Kind == KindNumber
}

// AsFlag returns the boolean content. Text values "true" and "false" are
// accepted for compatibility with older rows.
func (v Value) AsFlag() (bool, bool) {
	switch v.Kind {
	case KindFlag:
		return v.Flag, true
	case KindText:
		switch v.Text {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// ServerKey identifies a process-wide setting.
type ServerKey string

const (
	// Per-platform push operating modes.
	ServerKeyAPNPush      ServerKey = "ApnPush"
	ServerKeyFirebasePush ServerKey = "FirebasePush"
	ServerKeyWebPush      ServerKey = "WebPush"

	// Passthrough peer configuration.
	ServerKeyPassthroughServer ServerKey = "PushNotificationsPassthroughServer"
	ServerKeyPassthroughToken  ServerKey = "PushPassthroughToken"
)

// UserKey identifies a setting scoped to a user or to one of their devices.
type UserKey string

const (
	UserKeyUnencryptOnBigPayload         UserKey = "UnencryptOnBigPayload"
	UserKeyAutoAddDeleteAction           UserKey = "AutoAddDeleteAction"
	UserKeyAutoAddMarkAsReadAction       UserKey = "AutoAddMarkAsReadAction"
	UserKeyAutoAddOpenNotificationAction UserKey = "AutoAddOpenNotificationAction"
	UserKeyDefaultSnoozes                UserKey = "DefaultSnoozes"
	UserKeyDefaultPostpones              UserKey = "DefaultPostpones"
)

// UserSettingRow is one stored user setting. DeviceID is nil for user-level
// rows; a device-scoped row overrides the user-level row for the same key.
type UserSettingRow struct {
	UserID   string
	DeviceID *string
	Key      UserKey
	Value    Value
}

// PushMode is the per-platform operating policy.
type PushMode string

const (
	// PushModeOff disables push for the platform entirely.
	PushModeOff PushMode = "Off"

	// PushModeLocal leaves delivery to the device; the server never pushes.
	PushModeLocal PushMode = "Local"

	// PushModeOnboard sends through this server's own provider adapters.
	PushModeOnboard PushMode = "Onboard"

	// PushModePassthrough delegates delivery to a remote peer server.
	PushModePassthrough PushMode = "Passthrough"
)

// ParsePushMode parses a stored mode string.
func ParsePushMode(s string) (PushMode, bool) {
	switch PushMode(s) {
	case PushModeOff, PushModeLocal, PushModeOnboard, PushModePassthrough:
		return PushMode(s), true
	}
	return PushModeOff, false
}
