// Package relay implements the passthrough wire protocol: delivery of a
// provider-tagged payload to a remote peer server that performs the actual
// push.
package relay

import "encoding/json"

// Platform tags accepted by the notify-external endpoint.
const (
	PlatformIOS     = "IOS"
	PlatformAndroid = "ANDROID"
	PlatformWeb     = "WEB"
)

// Envelope is the wire body POSTed to {server}/notifications/notify-external.
type Envelope struct {
	Platform   string          `json:"platform"`
	Payload    json.RawMessage `json:"payload"`
	DeviceData DeviceData      `json:"deviceData"`
}

// DeviceData carries the addressing material the peer needs to reach the
// device. Token is used for the mobile platforms; the subscription and VAPID
// fields for Web.
type DeviceData struct {
	Token      string `json:"token,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
	P256DH     string `json:"p256dh,omitempty"`
	Auth       string `json:"auth,omitempty"`
	PublicKey  string `json:"publicKey,omitempty"`
	PrivateKey string `json:"privateKey,omitempty"`
}

// IOSPayload is the payload member of an iOS envelope.
type IOSPayload struct {
	RawPayload    json.RawMessage `json:"rawPayload"`
	CustomPayload json.RawMessage `json:"customPayload,omitempty"`
	Priority      int             `json:"priority"`
	Topic         string          `json:"topic"`
}
