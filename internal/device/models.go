// Package device provides storage for registered push notification devices.
package device

import (
	"errors"
	"time"
)

// Repository errors.
var (
	ErrDeviceNotFound = errors.New("device not found")
)

// Platform represents a push notification platform.
type Platform string

const (
	PlatformIOS     Platform = "IOS"
	PlatformAndroid Platform = "ANDROID"
	PlatformWeb     Platform = "WEB"
)

// UserDevice represents a registered push notification device.
//
// Web devices carry a push subscription (Endpoint/P256DH/Auth) plus the VAPID
// key pair the subscription was created with. Token is the APNs device token
// or FCM registration token for the mobile platforms.
type UserDevice struct {
	ID       string
	UserID   string
	Platform Platform
	Token    string

	// OnlyLocal devices never receive a server-initiated push; the client
	// relies on local OS delivery.
	OnlyLocal bool

	// Web push subscription fields.
	Endpoint   *string
	P256DH     *string
	Auth       *string
	PublicKey  *string
	PrivateKey *string

	LastUsed  *time.Time
	CreatedAt time.Time
}

// TokenLast4 returns the last 4 characters of the token for display purposes.
func (d *UserDevice) TokenLast4() string {
	if len(d.Token) < 4 {
		return d.Token
	}
	return d.Token[len(d.Token)-4:]
}
