// Package apns provides the onboard iOS push adapter.
package apns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/pushbucket/pushbucket/internal/device"
	"github.com/pushbucket/pushbucket/internal/message"
	"github.com/pushbucket/pushbucket/internal/notification"
	"github.com/pushbucket/pushbucket/internal/push/relay"
	"github.com/pushbucket/pushbucket/internal/settings"
)

// Config holds configuration for the APNs adapter.
type Config struct {
	// AuthKeyPath is the path to the .p8 token signing key.
	AuthKeyPath string

	// KeyID and TeamID identify the signing key.
	KeyID  string
	TeamID string

	// Topic is the app bundle identifier.
	Topic string

	// Production selects the production APNs host.
	Production bool

	Logger zerolog.Logger
}

// Adapter sends notifications through APNs.
type Adapter struct {
	client *apns2.Client
	topic  string
	logger zerolog.Logger
}

// New creates a new APNs adapter.
func New(cfg Config) (*Adapter, error) {
	authKey, err := token.AuthKeyFromFile(cfg.AuthKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading APNs auth key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &Adapter{
		client: client,
		topic:  cfg.Topic,
		logger: cfg.Logger,
	}, nil
}

// Platform returns the platform this adapter serves.
func (a *Adapter) Platform() device.Platform {
	return device.PlatformIOS
}

// Send delivers the notification through APNs. The notification content
// travels in an encrypted envelope decoded by the client's service extension;
// SendUnencrypted is the plain-text fallback.
func (a *Adapter) Send(ctx context.Context, msg *message.Message, n *notification.Notification, dev *device.UserDevice, s settings.DeviceSettings) error {
	return a.push(ctx, dev.Token, a.buildPayload(msg, n, s, true), priorityFor(msg))
}

// SendUnencrypted delivers a plain payload without the encrypted envelope.
// Used once when the encrypted payload exceeds the APNs size limit and the
// user has opted in.
func (a *Adapter) SendUnencrypted(ctx context.Context, msg *message.Message, n *notification.Notification, dev *device.UserDevice, s settings.DeviceSettings) error {
	return a.push(ctx, dev.Token, a.buildPayload(msg, n, s, false), priorityFor(msg))
}

// ExternalPayload builds the envelope handed to a passthrough peer.
func (a *Adapter) ExternalPayload(msg *message.Message, n *notification.Notification, dev *device.UserDevice) (*relay.Envelope, error) {
	raw, err := json.Marshal(a.buildPayload(msg, n, settings.DefaultDeviceSettings(), true))
	if err != nil {
		return nil, fmt.Errorf("encoding APNs payload: %w", err)
	}

	custom, err := json.Marshal(map[string]string{
		"messageId":      n.MessageID,
		"notificationId": n.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding custom payload: %w", err)
	}

	iosPayload, err := json.Marshal(relay.IOSPayload{
		RawPayload:    raw,
		CustomPayload: custom,
		Priority:      priorityFor(msg),
		Topic:         a.topic,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding envelope payload: %w", err)
	}

	return &relay.Envelope{
		Platform:   relay.PlatformIOS,
		Payload:    iosPayload,
		DeviceData: relay.DeviceData{Token: dev.Token},
	}, nil
}

// DeliverExternal sends a payload received from a passthrough client through
// the local APNs connection.
func (a *Adapter) DeliverExternal(ctx context.Context, env *relay.Envelope) error {
	var iosPayload relay.IOSPayload
	if err := json.Unmarshal(env.Payload, &iosPayload); err != nil {
		return fmt.Errorf("decoding iOS payload: %w", err)
	}
	if env.DeviceData.Token == "" {
		return errors.New("missing device token")
	}

	res, err := a.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: env.DeviceData.Token,
		Topic:       iosPayload.Topic,
		Payload:     []byte(iosPayload.RawPayload),
		Priority:    iosPayload.Priority,
	})
	if err != nil {
		return fmt.Errorf("apns push: %w", err)
	}
	if !res.Sent() {
		return errors.New(res.Reason)
	}

	return nil
}

func (a *Adapter) buildPayload(msg *message.Message, n *notification.Notification, s settings.DeviceSettings, encrypted bool) *payload.Payload {
	if msg.DeliveryType == message.DeliverySilent {
		return payload.NewPayload().ContentAvailable()
	}

	p := payload.NewPayload().
		AlertTitle(n.Title).
		AlertBody(n.Body).
		Sound("default").
		Custom("messageId", n.MessageID).
		Custom("notificationId", n.ID)

	if s.AutoAddMarkAsReadAction || s.AutoAddDeleteAction || s.AutoAddOpenNotificationAction {
		p = p.Category("pushbucket.actions")
	}

	if encrypted {
		// Mutable content lets the notification service extension unwrap
		// the encrypted envelope client-side.
		p = p.MutableContent().Custom("encrypted", true)
	}

	return p
}

func (a *Adapter) push(ctx context.Context, deviceToken string, pl interface{}, priority int) error {
	res, err := a.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       a.topic,
		Payload:     pl,
		Priority:    priority,
	})
	if err != nil {
		return fmt.Errorf("apns push: %w", err)
	}

	if !res.Sent() {
		a.logger.Debug().
			Int("status", res.StatusCode).
			Str("reason", res.Reason).
			Msg("apns rejected notification")
		// Reason carries APNs error signatures like PayloadTooLarge or
		// BadDeviceToken verbatim.
		return errors.New(res.Reason)
	}

	return nil
}

func priorityFor(msg *message.Message) int {
	if msg.DeliveryType == message.DeliverySilent {
		return apns2.PriorityLow
	}
	return apns2.PriorityHigh
}
