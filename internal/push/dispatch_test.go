package push_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushbucket/pushbucket/internal/bucket"
	"github.com/pushbucket/pushbucket/internal/device"
	"github.com/pushbucket/pushbucket/internal/message"
	"github.com/pushbucket/pushbucket/internal/notification"
	"github.com/pushbucket/pushbucket/internal/push"
	"github.com/pushbucket/pushbucket/internal/push/relay"
	"github.com/pushbucket/pushbucket/internal/realtime"
	"github.com/pushbucket/pushbucket/internal/settings"
	"github.com/pushbucket/pushbucket/internal/snooze"
)

// fakeAdapter records delivery calls and fails on demand.
type fakeAdapter struct {
	platform device.Platform

	mu          sync.Mutex
	sendErr     error
	unencErr    error
	titles      []string
	unencrypted int
}

func (f *fakeAdapter) Platform() device.Platform { return f.platform }

func (f *fakeAdapter) Send(_ context.Context, _ *message.Message, n *notification.Notification, _ *device.UserDevice, _ settings.DeviceSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, n.Title)
	return f.sendErr
}

func (f *fakeAdapter) SendUnencrypted(_ context.Context, _ *message.Message, _ *notification.Notification, _ *device.UserDevice, _ settings.DeviceSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unencrypted++
	return f.unencErr
}

func (f *fakeAdapter) ExternalPayload(_ *message.Message, n *notification.Notification, dev *device.UserDevice) (*relay.Envelope, error) {
	payload, _ := json.Marshal(map[string]string{"notificationId": n.ID})
	return &relay.Envelope{
		Platform:   string(f.platform),
		Payload:    payload,
		DeviceData: relay.DeviceData{Token: dev.Token},
	}, nil
}

func (f *fakeAdapter) DeliverExternal(context.Context, *relay.Envelope) error { return nil }

func (f *fakeAdapter) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.titles)
}

type fixture struct {
	notifications *notification.InMemoryRepository
	devices       *device.InMemoryRepository
	buckets       *bucket.InMemoryRepository
	mutes         *snooze.InMemoryRepository
	settingsRepo  *settings.InMemoryRepository
	publisher     *realtime.RecordingPublisher
	adapter       *fakeAdapter
	orchestrator  *push.Orchestrator
}

func newFixture(t *testing.T, relayClient *relay.Client) *fixture {
	t.Helper()

	f := &fixture{
		notifications: notification.NewInMemoryRepository(),
		devices:       device.NewInMemoryRepository(),
		buckets:       bucket.NewInMemoryRepository(),
		mutes:         snooze.NewInMemoryRepository(),
		settingsRepo:  settings.NewInMemoryRepository(),
		publisher:     realtime.NewRecordingPublisher(),
		adapter:       &fakeAdapter{platform: device.PlatformIOS},
	}

	f.orchestrator = push.NewOrchestrator(push.OrchestratorConfig{
		Notifications: f.notifications,
		Devices:       f.devices,
		Permissions:   f.buckets,
		Mutes:         f.mutes,
		Settings: settings.NewService(settings.ServiceConfig{
			Repository: f.settingsRepo,
			Logger:     zerolog.Nop(),
		}),
		Adapters:    []push.Adapter{f.adapter},
		Relay:       relayClient,
		Publisher:   f.publisher,
		Logger:      zerolog.Nop(),
		Concurrency: 2,
		Now:         func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) },
	})

	return f
}

func (f *fixture) addDevice(t *testing.T, id, userID string) *device.UserDevice {
	t.Helper()
	dev := &device.UserDevice{
		ID:       id,
		UserID:   userID,
		Platform: device.PlatformIOS,
		Token:    "tok_" + id,
	}
	require.NoError(t, f.devices.Create(context.Background(), dev))
	f.buckets.Grant("bkt_1", userID)
	return dev
}

func (f *fixture) setMode(t *testing.T, mode settings.PushMode) {
	t.Helper()
	require.NoError(t, f.settingsRepo.SetServerSetting(context.Background(),
		settings.ServerKeyAPNPush, settings.TextValue(string(mode))))
}

func newMessage() *message.Message {
	return &message.Message{
		ID:           "msg_1",
		BucketID:     "bkt_1",
		DeliveryType: message.DeliveryNormal,
		Locale:       "en-EN",
		Title:        "Backup finished",
		Body:         "All volumes are safe.",
	}
}

func TestDispatchMessage_FanOut(t *testing.T) {
	f := newFixture(t, nil)
	f.setMode(t, settings.PushModeOnboard)
	f.addDevice(t, "dev_1", "u_1")
	f.addDevice(t, "dev_2", "u_1")
	f.addDevice(t, "dev_3", "u_2")

	result, err := f.orchestrator.DispatchMessage(context.Background(), newMessage(), push.DispatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.NotificationCount)
	assert.Equal(t, 3, result.SuccessCount)
	assert.Equal(t, 0, result.ErrorCount)
	assert.Equal(t, 3, result.PerPlatformSent[device.PlatformIOS])
	assert.Equal(t, 3, f.adapter.sendCount())

	// One created event per record, regardless of delivery outcome.
	assert.Len(t, f.publisher.Events(), 3)

	// Every record is marked sent and the device's last-used moves.
	for _, d := range result.Details {
		n, err := f.notifications.FindByID(context.Background(), d.NotificationID)
		require.NoError(t, err)
		assert.NotNil(t, n.SentAt)
		assert.Nil(t, n.Error)
	}
	dev, err := f.devices.Get(context.Background(), "dev_1")
	require.NoError(t, err)
	assert.NotNil(t, dev.LastUsed)
}

func TestDispatchMessage_TargetUserFilter(t *testing.T) {
	f := newFixture(t, nil)
	f.setMode(t, settings.PushModeOnboard)
	f.addDevice(t, "dev_1", "u_1")
	f.addDevice(t, "dev_2", "u_2")

	result, err := f.orchestrator.DispatchMessage(context.Background(), newMessage(), push.DispatchOptions{
		TargetUserIDs: []string{"u_2", "u_unknown"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.NotificationCount)
	require.Len(t, f.publisher.Events(), 1)
	assert.Equal(t, "u_2", f.publisher.Events()[0].UserID)
}

func TestDispatchMessage_OnlyLocalDevice(t *testing.T) {
	f := newFixture(t, nil)
	f.setMode(t, settings.PushModeOnboard)
	require.NoError(t, f.devices.Create(context.Background(), &device.UserDevice{
		ID:        "dev_1",
		UserID:    "u_1",
		Platform:  device.PlatformIOS,
		Token:     "tok_dev_1",
		OnlyLocal: true,
	}))
	f.buckets.Grant("bkt_1", "u_1")

	result, err := f.orchestrator.DispatchMessage(context.Background(), newMessage(), push.DispatchOptions{})
	require.NoError(t, err)

	// The record exists but no push is attempted.
	assert.Equal(t, 1, result.NotificationCount)
	assert.Equal(t, 1, result.LocalOnlyCount)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, 0, f.adapter.sendCount())
	assert.Len(t, f.publisher.Events(), 1)
}

func TestDispatchMessage_SnoozedUser(t *testing.T) {
	f := newFixture(t, nil)
	f.setMode(t, settings.PushModeOnboard)
	f.addDevice(t, "dev_1", "u_1")
	f.addDevice(t, "dev_2", "u_2")

	until := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)
	f.mutes.Set(&snooze.MuteConfig{UserID: "u_1", BucketID: "bkt_1", SnoozeUntil: &until})

	result, err := f.orchestrator.DispatchMessage(context.Background(), newMessage(), push.DispatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.NotificationCount)
	assert.Equal(t, 1, result.SnoozedCount)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, f.adapter.sendCount())
}

func TestDispatchMessage_ModeOffIsPolicySkip(t *testing.T) {
	f := newFixture(t, nil)
	// No mode stored: resolves to Off.
	f.addDevice(t, "dev_1", "u_1")

	result, err := f.orchestrator.DispatchMessage(context.Background(), newMessage(), push.DispatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.NotificationCount)
	assert.Equal(t, 1, result.PolicySkips)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Equal(t, 0, f.adapter.sendCount())

	// The skip reason lands on the record.
	n, err := f.notifications.FindByID(context.Background(), result.Details[0].NotificationID)
	require.NoError(t, err)
	require.NotNil(t, n.Error)
	assert.Contains(t, *n.Error, "disabled")
}

func TestDispatchMessage_ModeLocalIsPolicySkip(t *testing.T) {
	f := newFixture(t, nil)
	f.setMode(t, settings.PushModeLocal)
	f.addDevice(t, "dev_1", "u_1")

	result, err := f.orchestrator.DispatchMessage(context.Background(), newMessage(), push.DispatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.PolicySkips)
	assert.Equal(t, 0, f.adapter.sendCount())
}

func TestDispatchMessage_SendFailureRecorded(t *testing.T) {
	f := newFixture(t, nil)
	f.setMode(t, settings.PushModeOnboard)
	f.addDevice(t, "dev_1", "u_1")
	f.adapter.sendErr = errors.New("BadDeviceToken")

	result, err := f.orchestrator.DispatchMessage(context.Background(), newMessage(), push.DispatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.ErrorCount)
	assert.Equal(t, 0, result.PolicySkips)

	n, err := f.notifications.FindByID(context.Background(), result.Details[0].NotificationID)
	require.NoError(t, err)
	require.NotNil(t, n.Error)
	assert.Equal(t, "BadDeviceToken", *n.Error)
}

func TestDispatchMessage_TitlePrefixNotPersisted(t *testing.T) {
	f := newFixture(t, nil)
	f.setMode(t, settings.PushModeOnboard)
	f.addDevice(t, "dev_1", "u_1")

	result, err := f.orchestrator.DispatchMessage(context.Background(), newMessage(), push.DispatchOptions{
		TitlePrefix: "Reminder",
	})
	require.NoError(t, err)

	require.Equal(t, []string{"Reminder: Backup finished"}, f.adapter.titles)

	n, err := f.notifications.FindByID(context.Background(), result.Details[0].NotificationID)
	require.NoError(t, err)
	assert.Equal(t, "Backup finished", n.Title)
}

func TestDispatchMessage_PayloadTooLargeRetry(t *testing.T) {
	f := newFixture(t, nil)
	f.setMode(t, settings.PushModeOnboard)
	f.addDevice(t, "dev_1", "u_1")
	f.adapter.sendErr = errors.New("PayloadTooLarge")

	require.NoError(t, f.settingsRepo.SetUserSetting(context.Background(), settings.UserSettingRow{
		UserID: "u_1",
		Key:    settings.UserKeyUnencryptOnBigPayload,
		Value:  settings.FlagValue(true),
	}))

	result, err := f.orchestrator.DispatchMessage(context.Background(), newMessage(), push.DispatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 0, result.ErrorCount)
	assert.Equal(t, 1, f.adapter.unencrypted)

	n, err := f.notifications.FindByID(context.Background(), result.Details[0].NotificationID)
	require.NoError(t, err)
	assert.NotNil(t, n.SentAt)
	assert.Nil(t, n.Error)
}

func TestDispatchMessage_PayloadTooLargeWithoutOptIn(t *testing.T) {
	f := newFixture(t, nil)
	f.setMode(t, settings.PushModeOnboard)
	f.addDevice(t, "dev_1", "u_1")
	f.adapter.sendErr = errors.New("PayloadTooLarge")

	result, err := f.orchestrator.DispatchMessage(context.Background(), newMessage(), push.DispatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.ErrorCount)
	assert.Equal(t, 0, f.adapter.unencrypted)
}

func TestDispatchMessage_PassthroughMissingConfig(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	relayClient := relay.NewClient(relay.ClientConfig{HTTPClient: http.DefaultClient, Logger: zerolog.Nop()})
	f := newFixture(t, relayClient)
	f.setMode(t, settings.PushModePassthrough)
	f.addDevice(t, "dev_1", "u_1")

	// Server configured, token missing.
	require.NoError(t, f.settingsRepo.SetServerSetting(context.Background(),
		settings.ServerKeyPassthroughServer, settings.TextValue(server.URL)))

	result, err := f.orchestrator.DispatchMessage(context.Background(), newMessage(), push.DispatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.ErrorCount)
	assert.Equal(t, 0, calls, "no network attempt with a half-configured relay")

	n, err := f.notifications.FindByID(context.Background(), result.Details[0].NotificationID)
	require.NoError(t, err)
	require.NotNil(t, n.Error)
	assert.Contains(t, *n.Error, "not configured")
}

func TestDispatchMessage_Passthrough(t *testing.T) {
	var gotAuth string
	var gotEnv relay.Envelope
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotEnv))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	relayClient := relay.NewClient(relay.ClientConfig{HTTPClient: http.DefaultClient, Logger: zerolog.Nop()})
	f := newFixture(t, relayClient)
	f.setMode(t, settings.PushModePassthrough)
	f.addDevice(t, "dev_1", "u_1")

	ctx := context.Background()
	require.NoError(t, f.settingsRepo.SetServerSetting(ctx,
		settings.ServerKeyPassthroughServer, settings.TextValue(server.URL)))
	require.NoError(t, f.settingsRepo.SetServerSetting(ctx,
		settings.ServerKeyPassthroughToken, settings.TextValue("tok_peer")))

	result, err := f.orchestrator.DispatchMessage(ctx, newMessage(), push.DispatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, "Bearer tok_peer", gotAuth)
	assert.Equal(t, string(device.PlatformIOS), gotEnv.Platform)
	assert.Equal(t, "tok_dev_1", gotEnv.DeviceData.Token)

	// Local adapter sends nothing; the peer does the pushing.
	assert.Equal(t, 0, f.adapter.sendCount())
}

func TestResendNotification(t *testing.T) {
	f := newFixture(t, nil)
	f.setMode(t, settings.PushModeOnboard)
	dev := f.addDevice(t, "dev_1", "u_1")

	n := notification.New("msg_1", "u_1", "dev_1", "Backup finished", "All volumes are safe.", time.Now())
	require.NoError(t, f.notifications.Create(context.Background(), n))

	detail, err := f.orchestrator.ResendNotification(context.Background(), newMessage(), n.PresentationCopy("Reminder"), dev)
	require.NoError(t, err)

	assert.Equal(t, push.StatusSent, detail.Status)
	assert.Equal(t, []string{"Reminder: Backup finished"}, f.adapter.titles)

	// No new record and no created event on a resend.
	assert.Empty(t, f.publisher.Events())
}
