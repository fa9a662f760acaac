// Package realtime publishes notification lifecycle events to subscribed
// clients.
package realtime

import (
	"context"

	"github.com/pushbucket/pushbucket/internal/notification"
)

// Publisher publishes notification events. Publish failures are advisory:
// dispatch logs them and carries on.
type Publisher interface {
	PublishNotificationCreated(ctx context.Context, n *notification.Notification, userID string) error
}

// NopPublisher discards all events.
type NopPublisher struct{}

// PublishNotificationCreated discards the event.
func (NopPublisher) PublishNotificationCreated(context.Context, *notification.Notification, string) error {
	return nil
}
