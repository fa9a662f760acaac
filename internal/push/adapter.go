// Package push implements the dispatch orchestrator: fan-out of a message to
// per-device notification records and delivery through the provider adapters
// or the passthrough relay.
package push

import (
	"context"

	"github.com/pushbucket/pushbucket/internal/device"
	"github.com/pushbucket/pushbucket/internal/message"
	"github.com/pushbucket/pushbucket/internal/notification"
	"github.com/pushbucket/pushbucket/internal/push/relay"
	"github.com/pushbucket/pushbucket/internal/settings"
)

// PayloadTooLargeMarker is the error signature APNs returns when a payload
// exceeds the size limit. It is the only error class eligible for an
// automatic retry.
const PayloadTooLargeMarker = "PayloadTooLarge"

// Adapter sends notifications through one platform's push provider.
type Adapter interface {
	// Platform returns the platform this adapter serves.
	Platform() device.Platform

	// Send delivers the notification to the device. The returned error text
	// is recorded on the notification record verbatim.
	Send(ctx context.Context, msg *message.Message, n *notification.Notification, dev *device.UserDevice, s settings.DeviceSettings) error

	// ExternalPayload builds the provider payload for delegation to a
	// passthrough peer server.
	ExternalPayload(msg *message.Message, n *notification.Notification, dev *device.UserDevice) (*relay.Envelope, error)

	// DeliverExternal sends a payload received from a passthrough client
	// through the local provider. Used by the receiving half of the relay
	// protocol.
	DeliverExternal(ctx context.Context, env *relay.Envelope) error
}

// UnencryptedSender is implemented by adapters that support an unencrypted
// payload variant, used for the oversized-payload retry.
type UnencryptedSender interface {
	SendUnencrypted(ctx context.Context, msg *message.Message, n *notification.Notification, dev *device.UserDevice, s settings.DeviceSettings) error
}
