package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/pushbucket/pushbucket/internal/notification"
)

// PubSubPublisher publishes notification events to a Pub/Sub topic consumed
// by the realtime subscription fan-out.
type PubSubPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	logger    zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub publisher.
type PubSubConfig struct {
	ProjectID string
	TopicName string
	Logger    zerolog.Logger
}

// notificationCreatedEvent is the wire shape of a created event.
type notificationCreatedEvent struct {
	Event          string    `json:"event"`
	NotificationID string    `json:"notification_id"`
	MessageID      string    `json:"message_id"`
	UserID         string    `json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewPubSubPublisher creates a new Pub/Sub realtime publisher.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &PubSubPublisher{
		client:    client,
		publisher: client.Publisher(cfg.TopicName),
		logger:    cfg.Logger,
	}, nil
}

// PublishNotificationCreated publishes a created event for the notification.
func (p *PubSubPublisher) PublishNotificationCreated(ctx context.Context, n *notification.Notification, userID string) error {
	data, err := json.Marshal(notificationCreatedEvent{
		Event:          "notification_created",
		NotificationID: n.ID,
		MessageID:      n.MessageID,
		UserID:         userID,
		CreatedAt:      n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event":   "notification_created",
			"user_id": userID,
		},
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}

	return nil
}

// Close closes the underlying Pub/Sub client.
func (p *PubSubPublisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}

// Ensure PubSubPublisher implements Publisher.
var _ Publisher = (*PubSubPublisher)(nil)
