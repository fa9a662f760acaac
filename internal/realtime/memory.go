package realtime

import (
	"context"
	"sync"

	"github.com/pushbucket/pushbucket/internal/notification"
)

// RecordingPublisher records published events in memory. Intended for tests.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []RecordedEvent

	// Err, when set, is returned from every publish.
	Err error
}

// RecordedEvent is one captured publish call.
type RecordedEvent struct {
	NotificationID string
	UserID         string
}

// NewRecordingPublisher creates a new recording publisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

// PublishNotificationCreated records the event.
func (p *RecordingPublisher) PublishNotificationCreated(_ context.Context, n *notification.Notification, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return p.Err
	}

	p.events = append(p.events, RecordedEvent{NotificationID: n.ID, UserID: userID})
	return nil
}

// Events returns a copy of the recorded events.
func (p *RecordingPublisher) Events() []RecordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]RecordedEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Ensure RecordingPublisher implements Publisher.
var _ Publisher = (*RecordingPublisher)(nil)
