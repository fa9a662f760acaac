package redelivery_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushbucket/pushbucket/internal/device"
	"github.com/pushbucket/pushbucket/internal/message"
	"github.com/pushbucket/pushbucket/internal/notification"
	"github.com/pushbucket/pushbucket/internal/push"
	"github.com/pushbucket/pushbucket/internal/redelivery"
)

type resendCall struct {
	NotificationID string
	Title          string
	DeviceID       string
}

// fakeResender records resend calls; FailFor makes one notification fail.
type fakeResender struct {
	mu      sync.Mutex
	calls   []resendCall
	FailFor string
}

func (f *fakeResender) ResendNotification(_ context.Context, _ *message.Message, n *notification.Notification, dev *device.UserDevice) (push.DeliveryDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailFor != "" && n.ID == f.FailFor {
		return push.DeliveryDetail{}, errors.New("provider unavailable")
	}

	f.calls = append(f.calls, resendCall{NotificationID: n.ID, Title: n.Title, DeviceID: dev.ID})
	return push.DeliveryDetail{NotificationID: n.ID, Status: push.StatusSent}, nil
}

type fixture struct {
	records       *redelivery.InMemoryRepository
	messages      *message.InMemoryRepository
	notifications *notification.InMemoryRepository
	devices       *device.InMemoryRepository
	resender      *fakeResender
	scheduler     *redelivery.Scheduler
	now           time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		records:       redelivery.NewInMemoryRepository(),
		messages:      message.NewInMemoryRepository(),
		notifications: notification.NewInMemoryRepository(),
		devices:       device.NewInMemoryRepository(),
		resender:      &fakeResender{},
		now:           time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	f.scheduler = redelivery.NewScheduler(redelivery.SchedulerConfig{
		Records:       f.records,
		Messages:      f.messages,
		Notifications: f.notifications,
		Devices:       f.devices,
		Dispatcher:    f.resender,
		Logger:        zerolog.Nop(),
		Now:           func() time.Time { return f.now },
	})

	return f
}

func (f *fixture) addMessage(t *testing.T, id, locale string) *message.Message {
	t.Helper()
	msg := &message.Message{
		ID:           id,
		BucketID:     "bkt_1",
		DeliveryType: message.DeliveryNormal,
		Locale:       locale,
		Title:        "Disk almost full",
		Body:         "Volume data is at 92%.",
	}
	require.NoError(t, f.messages.Create(context.Background(), msg))
	return msg
}

func (f *fixture) addNotification(t *testing.T, messageID, userID, deviceID string) *notification.Notification {
	t.Helper()
	require.NoError(t, f.devices.Create(context.Background(), &device.UserDevice{
		ID:       deviceID,
		UserID:   userID,
		Platform: device.PlatformIOS,
		Token:    "tok_" + deviceID,
	}))
	n := notification.New(messageID, userID, deviceID, "Disk almost full", "Volume data is at 92%.", f.now.Add(-time.Hour))
	require.NoError(t, f.notifications.Create(context.Background(), n))
	return n
}

// due stores a record whose next fire is already in the past.
func (f *fixture) due(t *testing.T, rec *redelivery.Record) *redelivery.Record {
	t.Helper()
	rec.NextFireAt = f.now.Add(-time.Minute)
	require.NoError(t, f.records.Create(context.Background(), rec))
	return rec
}

func TestRunTick_Empty(t *testing.T) {
	f := newFixture(t)

	result, err := f.scheduler.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Due)
	assert.Empty(t, f.resender.calls)
}

func TestRunTick_NotYetDue(t *testing.T) {
	f := newFixture(t)
	f.addMessage(t, "msg_1", "en-EN")
	f.addNotification(t, "msg_1", "u_1", "dev_1")

	rec := redelivery.NewReminder("msg_1", "u_1", 30, 3, f.now)
	require.NoError(t, f.records.Create(context.Background(), rec))

	result, err := f.scheduler.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Due)
	assert.Empty(t, f.resender.calls)
}

func TestRunTick_ReminderResendsUnread(t *testing.T) {
	f := newFixture(t)
	f.addMessage(t, "msg_1", "it-IT")
	unread := f.addNotification(t, "msg_1", "u_1", "dev_1")
	read := f.addNotification(t, "msg_1", "u_1", "dev_2")
	require.NoError(t, f.notifications.MarkRead(context.Background(), read.ID, f.now))

	rec := f.due(t, redelivery.NewReminder("msg_1", "u_1", 30, 3, f.now.Add(-time.Hour)))

	result, err := f.scheduler.RunTick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Due)
	assert.Equal(t, 1, result.Resent)
	require.Len(t, f.resender.calls, 1)
	assert.Equal(t, unread.ID, f.resender.calls[0].NotificationID)

	// The resent copy carries the localized prefix; the stored record keeps
	// its original title.
	assert.Equal(t, "Promemoria: Disk almost full", f.resender.calls[0].Title)
	stored, err := f.notifications.FindByID(context.Background(), unread.ID)
	require.NoError(t, err)
	assert.Equal(t, "Disk almost full", stored.Title)

	// Bookkeeping advanced.
	after, err := f.records.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.OccurrencesSent)
	assert.True(t, after.NextFireAt.After(f.now), "next fire moves past now")
}

func TestRunTick_ExhaustedRecordDeletedWithoutResend(t *testing.T) {
	f := newFixture(t)
	f.addMessage(t, "msg_1", "en-EN")
	f.addNotification(t, "msg_1", "u_1", "dev_1")

	rec := redelivery.NewReminder("msg_1", "u_1", 30, 2, f.now.Add(-time.Hour))
	rec.OccurrencesSent = 2
	f.due(t, rec)

	result, err := f.scheduler.RunTick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Deleted)
	assert.Empty(t, f.resender.calls, "exhaustion is checked before any resend")

	_, err = f.records.Get(context.Background(), rec.ID)
	assert.ErrorIs(t, err, redelivery.ErrRecordNotFound)
}

func TestRunTick_ReminderAllReadDeleted(t *testing.T) {
	f := newFixture(t)
	f.addMessage(t, "msg_1", "en-EN")
	n := f.addNotification(t, "msg_1", "u_1", "dev_1")
	require.NoError(t, f.notifications.MarkRead(context.Background(), n.ID, f.now))

	rec := f.due(t, redelivery.NewReminder("msg_1", "u_1", 30, 3, f.now.Add(-time.Hour)))

	result, err := f.scheduler.RunTick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Deleted)
	assert.Empty(t, f.resender.calls)

	_, err = f.records.Get(context.Background(), rec.ID)
	assert.ErrorIs(t, err, redelivery.ErrRecordNotFound)
}

func TestRunTick_PostponeResendsOnce(t *testing.T) {
	f := newFixture(t)
	f.addMessage(t, "msg_1", "de-DE")
	n := f.addNotification(t, "msg_1", "u_1", "dev_1")

	f.due(t, redelivery.NewPostpone(n.ID, "u_1", 15, 1, f.now.Add(-time.Hour)))

	result, err := f.scheduler.RunTick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Resent)
	require.Len(t, f.resender.calls, 1)
	assert.Equal(t, "Zurückgestellt: Disk almost full", f.resender.calls[0].Title)
}

func TestRunTick_PostponeOfReadNotificationDeleted(t *testing.T) {
	f := newFixture(t)
	f.addMessage(t, "msg_1", "en-EN")
	n := f.addNotification(t, "msg_1", "u_1", "dev_1")
	require.NoError(t, f.notifications.MarkRead(context.Background(), n.ID, f.now))

	rec := f.due(t, redelivery.NewPostpone(n.ID, "u_1", 15, 1, f.now.Add(-time.Hour)))

	result, err := f.scheduler.RunTick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Deleted)
	assert.Empty(t, f.resender.calls)

	_, err = f.records.Get(context.Background(), rec.ID)
	assert.ErrorIs(t, err, redelivery.ErrRecordNotFound)
}

func TestRunTick_FailureDoesNotBlockOtherRecords(t *testing.T) {
	f := newFixture(t)
	f.addMessage(t, "msg_1", "en-EN")
	f.addMessage(t, "msg_2", "en-EN")
	broken := f.addNotification(t, "msg_1", "u_1", "dev_1")
	healthy := f.addNotification(t, "msg_2", "u_2", "dev_2")
	f.resender.FailFor = broken.ID

	f.due(t, redelivery.NewReminder("msg_1", "u_1", 30, 3, f.now.Add(-time.Hour)))
	f.due(t, redelivery.NewReminder("msg_2", "u_2", 30, 3, f.now.Add(-time.Hour)))

	result, err := f.scheduler.RunTick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Due)
	assert.Equal(t, 1, result.Resent)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, f.resender.calls, 1)
	assert.Equal(t, healthy.ID, f.resender.calls[0].NotificationID)
}

func TestRunTick_DeletedDeviceSkipped(t *testing.T) {
	f := newFixture(t)
	f.addMessage(t, "msg_1", "en-EN")
	f.addNotification(t, "msg_1", "u_1", "dev_1")
	require.NoError(t, f.devices.Delete(context.Background(), "dev_1"))

	f.due(t, redelivery.NewReminder("msg_1", "u_1", 30, 3, f.now.Add(-time.Hour)))

	result, err := f.scheduler.RunTick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Resent)
	assert.Empty(t, f.resender.calls)
}
