// Package fcm provides the onboard Android push adapter backed by Firebase
// Cloud Messaging.
package fcm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/pushbucket/pushbucket/internal/device"
	"github.com/pushbucket/pushbucket/internal/message"
	"github.com/pushbucket/pushbucket/internal/notification"
	"github.com/pushbucket/pushbucket/internal/push/relay"
	"github.com/pushbucket/pushbucket/internal/settings"
)

// Config holds configuration for the FCM adapter.
type Config struct {
	// CredentialsFile is the path to the Firebase service account JSON.
	// When empty, application default credentials are used.
	CredentialsFile string

	Logger zerolog.Logger
}

// Adapter sends notifications through Firebase Cloud Messaging.
type Adapter struct {
	client *messaging.Client
	logger zerolog.Logger
}

// New creates a new FCM adapter.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase messaging: %w", err)
	}

	return &Adapter{client: client, logger: cfg.Logger}, nil
}

// Platform returns the platform this adapter serves.
func (a *Adapter) Platform() device.Platform {
	return device.PlatformAndroid
}

// Send delivers the notification through FCM.
func (a *Adapter) Send(ctx context.Context, msg *message.Message, n *notification.Notification, dev *device.UserDevice, _ settings.DeviceSettings) error {
	fcmMsg := a.buildMessage(msg, n)
	fcmMsg.Token = dev.Token

	if _, err := a.client.Send(ctx, fcmMsg); err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}

// ExternalPayload builds the envelope handed to a passthrough peer. The
// payload is the FCM message object without the device token; the peer fills
// the token in from deviceData before sending.
func (a *Adapter) ExternalPayload(msg *message.Message, n *notification.Notification, dev *device.UserDevice) (*relay.Envelope, error) {
	raw, err := json.Marshal(a.buildMessage(msg, n))
	if err != nil {
		return nil, fmt.Errorf("encoding FCM payload: %w", err)
	}

	return &relay.Envelope{
		Platform:   relay.PlatformAndroid,
		Payload:    raw,
		DeviceData: relay.DeviceData{Token: dev.Token},
	}, nil
}

// DeliverExternal sends a payload received from a passthrough client through
// the local FCM connection.
func (a *Adapter) DeliverExternal(ctx context.Context, env *relay.Envelope) error {
	if env.DeviceData.Token == "" {
		return errors.New("missing device token")
	}

	var fcmMsg messaging.Message
	if err := json.Unmarshal(env.Payload, &fcmMsg); err != nil {
		return fmt.Errorf("decoding FCM payload: %w", err)
	}
	fcmMsg.Token = env.DeviceData.Token

	if _, err := a.client.Send(ctx, &fcmMsg); err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}

func (a *Adapter) buildMessage(msg *message.Message, n *notification.Notification) *messaging.Message {
	data := map[string]string{
		"messageId":      n.MessageID,
		"notificationId": n.ID,
		"bucketId":       msg.BucketID,
	}

	if msg.DeliveryType == message.DeliverySilent {
		// Data-only message, the client decides whether to surface it.
		return &messaging.Message{
			Data: data,
			Android: &messaging.AndroidConfig{
				Priority: "normal",
			},
		}
	}

	return &messaging.Message{
		Data: data,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
}
