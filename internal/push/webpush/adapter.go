// Package webpush provides the onboard browser push adapter using the Web
// Push protocol with VAPID authentication.
package webpush

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	webpushgo "github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"

	"github.com/pushbucket/pushbucket/internal/device"
	"github.com/pushbucket/pushbucket/internal/message"
	"github.com/pushbucket/pushbucket/internal/notification"
	"github.com/pushbucket/pushbucket/internal/push/relay"
	"github.com/pushbucket/pushbucket/internal/settings"
)

// Config holds configuration for the web push adapter.
type Config struct {
	// Subscriber is the contact address sent in the VAPID claims,
	// usually a mailto: URL.
	Subscriber string

	// TTL is how long the push service may queue an undelivered
	// notification, in seconds.
	TTL int

	Logger zerolog.Logger
}

// Adapter sends notifications to browser push services.
type Adapter struct {
	subscriber string
	ttl        int
	logger     zerolog.Logger
}

// New creates a new web push adapter.
func New(cfg Config) *Adapter {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 3600
	}
	return &Adapter{
		subscriber: cfg.Subscriber,
		ttl:        ttl,
		logger:     cfg.Logger,
	}
}

// Platform returns the platform this adapter serves.
func (a *Adapter) Platform() device.Platform {
	return device.PlatformWeb
}

// notifyBody is the JSON body delivered to the service worker.
type notifyBody struct {
	Title          string `json:"title"`
	Body           string `json:"body"`
	MessageID      string `json:"messageId"`
	NotificationID string `json:"notificationId"`
	BucketID       string `json:"bucketId"`
	Silent         bool   `json:"silent,omitempty"`
}

// Send delivers the notification through the device's push service.
func (a *Adapter) Send(ctx context.Context, msg *message.Message, n *notification.Notification, dev *device.UserDevice, _ settings.DeviceSettings) error {
	if dev.Endpoint == nil || dev.P256DH == nil || dev.Auth == nil {
		return errors.New("device has no web push subscription")
	}
	if dev.PublicKey == nil || dev.PrivateKey == nil {
		return errors.New("device has no VAPID key pair")
	}

	body, err := json.Marshal(a.buildBody(msg, n))
	if err != nil {
		return fmt.Errorf("encoding web push payload: %w", err)
	}

	sub := &webpushgo.Subscription{
		Endpoint: *dev.Endpoint,
		Keys: webpushgo.Keys{
			P256dh: *dev.P256DH,
			Auth:   *dev.Auth,
		},
	}

	return a.send(ctx, body, sub, *dev.PublicKey, *dev.PrivateKey)
}

// ExternalPayload builds the envelope handed to a passthrough peer. The
// subscription and VAPID material travel in deviceData so the peer can
// authenticate against the device's push service.
func (a *Adapter) ExternalPayload(msg *message.Message, n *notification.Notification, dev *device.UserDevice) (*relay.Envelope, error) {
	if dev.Endpoint == nil || dev.P256DH == nil || dev.Auth == nil {
		return nil, errors.New("device has no web push subscription")
	}
	if dev.PublicKey == nil || dev.PrivateKey == nil {
		return nil, errors.New("device has no VAPID key pair")
	}

	raw, err := json.Marshal(a.buildBody(msg, n))
	if err != nil {
		return nil, fmt.Errorf("encoding web push payload: %w", err)
	}

	return &relay.Envelope{
		Platform: relay.PlatformWeb,
		Payload:  raw,
		DeviceData: relay.DeviceData{
			Endpoint:   *dev.Endpoint,
			P256DH:     *dev.P256DH,
			Auth:       *dev.Auth,
			PublicKey:  *dev.PublicKey,
			PrivateKey: *dev.PrivateKey,
		},
	}, nil
}

// DeliverExternal sends a payload received from a passthrough client to the
// push service named in the envelope's device data.
func (a *Adapter) DeliverExternal(ctx context.Context, env *relay.Envelope) error {
	d := env.DeviceData
	if d.Endpoint == "" || d.P256DH == "" || d.Auth == "" {
		return errors.New("missing web push subscription")
	}
	if d.PublicKey == "" || d.PrivateKey == "" {
		return errors.New("missing VAPID key pair")
	}

	sub := &webpushgo.Subscription{
		Endpoint: d.Endpoint,
		Keys: webpushgo.Keys{
			P256dh: d.P256DH,
			Auth:   d.Auth,
		},
	}

	return a.send(ctx, env.Payload, sub, d.PublicKey, d.PrivateKey)
}

func (a *Adapter) send(ctx context.Context, body []byte, sub *webpushgo.Subscription, vapidPublic, vapidPrivate string) error {
	resp, err := webpushgo.SendNotificationWithContext(ctx, body, sub, &webpushgo.Options{
		Subscriber:      a.subscriber,
		VAPIDPublicKey:  vapidPublic,
		VAPIDPrivateKey: vapidPrivate,
		TTL:             a.ttl,
	})
	if err != nil {
		return fmt.Errorf("web push send: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body is drained by the library

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		// The push service no longer knows this subscription.
		return errors.New("subscription expired")
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (a *Adapter) buildBody(msg *message.Message, n *notification.Notification) notifyBody {
	return notifyBody{
		Title:          n.Title,
		Body:           n.Body,
		MessageID:      n.MessageID,
		NotificationID: n.ID,
		BucketID:       msg.BucketID,
		Silent:         msg.DeliveryType == message.DeliverySilent,
	}
}
