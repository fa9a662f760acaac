package push

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushbucket/pushbucket/internal/bucket"
	"github.com/pushbucket/pushbucket/internal/device"
	"github.com/pushbucket/pushbucket/internal/message"
	"github.com/pushbucket/pushbucket/internal/notification"
	"github.com/pushbucket/pushbucket/internal/push/relay"
	"github.com/pushbucket/pushbucket/internal/realtime"
	"github.com/pushbucket/pushbucket/internal/settings"
	"github.com/pushbucket/pushbucket/internal/snooze"
	"github.com/pushbucket/pushbucket/internal/telemetry"
)

// Policy failure reasons recorded on notifications that are skipped without a
// provider call.
const (
	reasonPlatformOff  = "push notifications are disabled for platform"
	reasonLocalMode    = "local mode: device handles delivery"
	reasonNoAdapter    = "no push adapter configured for platform"
	reasonNoPassConfig = "passthrough mode: server or token not configured"
)

// Status classifies the outcome of one per-device delivery.
type Status string

const (
	// StatusSent means the provider or peer accepted the notification.
	StatusSent Status = "sent"

	// StatusFailed means the provider, peer, or configuration rejected it.
	StatusFailed Status = "failed"

	// StatusSnoozed means the bucket was muted for the user; nothing was
	// attempted.
	StatusSnoozed Status = "snoozed"

	// StatusPolicySkip means the platform mode (Off/Local) suppressed the
	// push. Recorded as a failure reason on the record but distinguishable
	// from operational errors.
	StatusPolicySkip Status = "policy_skip"

	// StatusLocalOnly means the device never receives server pushes.
	StatusLocalOnly Status = "local_only"
)

// DeliveryDetail is the per-device outcome of a dispatch.
type DeliveryDetail struct {
	NotificationID string
	DeviceID       string
	Platform       device.Platform
	Status         Status
	Error          string
}

// DispatchResult aggregates a fan-out.
//
// PolicySkips are included in ErrorCount (the record carries a failure
// reason) but reported separately so callers can tell policy outcomes from
// provider failures.
type DispatchResult struct {
	NotificationCount int
	SuccessCount      int
	ErrorCount        int
	SnoozedCount      int
	PolicySkips       int
	LocalOnlyCount    int
	PerPlatformSent   map[device.Platform]int
	Details           []DeliveryDetail
}

// DispatchOptions modify a single fan-out.
type DispatchOptions struct {
	// TargetUserIDs, when non-empty, restricts the fan-out to the
	// intersection of the bucket's authorized users and this set.
	TargetUserIDs []string

	// TitlePrefix, when non-empty, is prepended to the title of the
	// presentation copy handed to the send step. The stored records keep
	// the original title.
	TitlePrefix string
}

// OrchestratorConfig holds the collaborators of the dispatch orchestrator.
type OrchestratorConfig struct {
	Notifications notification.Repository
	Devices       device.Repository
	Permissions   bucket.PermissionService
	Mutes         snooze.Repository
	Settings      *settings.Service
	Adapters      []Adapter
	Relay         *relay.Client
	Publisher     realtime.Publisher
	Metrics       *telemetry.DispatchMetrics
	Logger        zerolog.Logger

	// Concurrency bounds the per-device worker pool. Default: 4.
	Concurrency int

	// SendTimeout bounds one outbound delivery. Default: 30s.
	SendTimeout time.Duration

	// Now is the clock used for snooze evaluation and timestamps.
	// Default: time.Now.
	Now func() time.Time
}

// Orchestrator fans a message out into per-device notification records and
// delivers them through the provider adapters or the passthrough relay.
type Orchestrator struct {
	notifications notification.Repository
	devices       device.Repository
	permissions   bucket.PermissionService
	mutes         snooze.Repository
	settings      *settings.Service
	adapters      map[device.Platform]Adapter
	relay         *relay.Client
	publisher     realtime.Publisher
	metrics       *telemetry.DispatchMetrics
	logger        zerolog.Logger
	retries       []RetryPolicy
	concurrency   int
	sendTimeout   time.Duration
	now           func() time.Time
}

// NewOrchestrator creates a new dispatch orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	sendTimeout := cfg.SendTimeout
	if sendTimeout == 0 {
		sendTimeout = 30 * time.Second
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = realtime.NopPublisher{}
	}

	adapters := make(map[device.Platform]Adapter, len(cfg.Adapters))
	for _, a := range cfg.Adapters {
		adapters[a.Platform()] = a
	}

	return &Orchestrator{
		notifications: cfg.Notifications,
		devices:       cfg.Devices,
		permissions:   cfg.Permissions,
		mutes:         cfg.Mutes,
		settings:      cfg.Settings,
		adapters:      adapters,
		relay:         cfg.Relay,
		publisher:     publisher,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		retries:       []RetryPolicy{NewPayloadTooLargeRetry()},
		concurrency:   concurrency,
		sendTimeout:   sendTimeout,
		now:           now,
	}
}

// snapshot is the read-only state a batch runs against. It is loaded once per
// batch; settings changed mid-batch take effect on the next one.
type snapshot struct {
	modes          map[device.Platform]settings.PushMode
	server         string
	token          string
	mutes          map[string]*snooze.MuteConfig
	deviceSettings map[string]settings.DeviceSettings
}

// DispatchMessage fans a message out to every authorized user's devices.
//
// One notification record is created per (user, device) pair before any push
// attempt. Per-device delivery failures never abort the batch; only
// infrastructure failures (store unreachable) are returned as errors.
func (o *Orchestrator) DispatchMessage(ctx context.Context, msg *message.Message, opts DispatchOptions) (*DispatchResult, error) {
	result := &DispatchResult{PerPlatformSent: make(map[device.Platform]int)}

	userIDs, err := o.permissions.AuthorizedUserIDs(ctx, msg.BucketID)
	if err != nil {
		return nil, fmt.Errorf("resolving authorized users: %w", err)
	}
	userIDs = intersect(userIDs, opts.TargetUserIDs)
	if len(userIDs) == 0 {
		return result, nil
	}

	targets, err := o.devices.DevicesForUsers(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("loading devices: %w", err)
	}
	if len(targets) == 0 {
		return result, nil
	}

	snap, err := o.loadSnapshot(ctx, msg.BucketID, userIDs, targets)
	if err != nil {
		return nil, err
	}

	// Persist every record before the first push attempt.
	records := make([]*notification.Notification, 0, len(targets))
	for _, dev := range targets {
		n := notification.New(msg.ID, dev.UserID, dev.ID, msg.Title, msg.Body, o.now())
		if err := o.notifications.Create(ctx, n); err != nil {
			return nil, fmt.Errorf("creating notification: %w", err)
		}
		records = append(records, n)

		if err := o.publisher.PublishNotificationCreated(ctx, n, dev.UserID); err != nil {
			o.logger.Warn().Err(err).
				Str("notification_id", n.ID).
				Str("user_id", dev.UserID).
				Msg("failed to publish created event")
		}
	}
	result.NotificationCount = len(records)

	type task struct {
		n   *notification.Notification
		dev *device.UserDevice
	}

	tasks := make(chan task, len(records))
	details := make(chan DeliveryDetail, len(records))

	var wg sync.WaitGroup
	for i := 0; i < o.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				details <- o.deliverOne(ctx, snap, msg, t.n.PresentationCopy(opts.TitlePrefix), t.dev)
			}
		}()
	}

	for i, dev := range targets {
		tasks <- task{n: records[i], dev: dev}
	}
	close(tasks)

	go func() {
		wg.Wait()
		close(details)
	}()

	// The collector goroutine is the only writer of the aggregate counters.
	for d := range details {
		o.collect(result, d)
	}

	o.logger.Info().
		Str("message_id", msg.ID).
		Int("notifications", result.NotificationCount).
		Int("sent", result.SuccessCount).
		Int("errors", result.ErrorCount).
		Int("snoozed", result.SnoozedCount).
		Msg("message dispatched")

	return result, nil
}

// ResendNotification re-attempts delivery of one pre-existing notification.
// Used by the deferred-redelivery scheduler; no new record is created and no
// created event is published.
func (o *Orchestrator) ResendNotification(ctx context.Context, msg *message.Message, n *notification.Notification, dev *device.UserDevice) (DeliveryDetail, error) {
	snap, err := o.loadSnapshot(ctx, msg.BucketID, []string{dev.UserID}, []*device.UserDevice{dev})
	if err != nil {
		return DeliveryDetail{}, err
	}

	return o.deliverOne(ctx, snap, msg, n, dev), nil
}

// loadSnapshot reads the settings and mute state a batch runs against.
func (o *Orchestrator) loadSnapshot(ctx context.Context, bucketID string, userIDs []string, targets []*device.UserDevice) (*snapshot, error) {
	mutes, err := o.mutes.GetForUsers(ctx, bucketID, userIDs)
	if err != nil {
		return nil, fmt.Errorf("loading mute configuration: %w", err)
	}

	pairs := make([]settings.DevicePair, 0, len(targets))
	for _, dev := range targets {
		pairs = append(pairs, settings.DevicePair{DeviceID: dev.ID, UserID: dev.UserID})
	}
	deviceSettings, err := o.settings.ResolveDeviceSettings(ctx, pairs)
	if err != nil {
		return nil, fmt.Errorf("resolving device settings: %w", err)
	}

	server, token := o.settings.PassthroughTarget(ctx)

	snap := &snapshot{
		modes:          make(map[device.Platform]settings.PushMode, 3),
		server:         server,
		token:          token,
		mutes:          mutes,
		deviceSettings: deviceSettings,
	}
	for _, platform := range []device.Platform{device.PlatformIOS, device.PlatformAndroid, device.PlatformWeb} {
		snap.modes[platform] = o.settings.PushMode(ctx, platform)
	}

	return snap, nil
}

// deliverOne executes the mode/snooze decision tree for a single device and
// records the outcome on the notification.
func (o *Orchestrator) deliverOne(ctx context.Context, snap *snapshot, msg *message.Message, n *notification.Notification, dev *device.UserDevice) DeliveryDetail {
	detail := DeliveryDetail{
		NotificationID: n.ID,
		DeviceID:       dev.ID,
		Platform:       dev.Platform,
	}

	if dev.OnlyLocal {
		detail.Status = StatusLocalOnly
		return detail
	}

	if snooze.Muted(snap.mutes[dev.UserID], o.now()) {
		o.metrics.RecordSnoozed(ctx)
		detail.Status = StatusSnoozed
		return detail
	}

	switch snap.modes[dev.Platform] {
	case settings.PushModeOff:
		reason := fmt.Sprintf("%s %s", reasonPlatformOff, dev.Platform)
		o.markFailed(ctx, n.ID, reason)
		detail.Status = StatusPolicySkip
		detail.Error = reason
		return detail

	case settings.PushModeLocal:
		o.markFailed(ctx, n.ID, reasonLocalMode)
		detail.Status = StatusPolicySkip
		detail.Error = reasonLocalMode
		return detail

	case settings.PushModeOnboard:
		return o.sendOnboard(ctx, snap, msg, n, dev, detail)

	case settings.PushModePassthrough:
		return o.sendPassthrough(ctx, snap, msg, n, dev, detail)
	}

	// PushMode parsing defaults to Off, so this branch is unreachable; keep
	// the record consistent anyway.
	o.markFailed(ctx, n.ID, reasonPlatformOff)
	detail.Status = StatusPolicySkip
	detail.Error = reasonPlatformOff
	return detail
}

func (o *Orchestrator) sendOnboard(ctx context.Context, snap *snapshot, msg *message.Message, n *notification.Notification, dev *device.UserDevice, detail DeliveryDetail) DeliveryDetail {
	adapter, ok := o.adapters[dev.Platform]
	if !ok {
		reason := fmt.Sprintf("%s %s", reasonNoAdapter, dev.Platform)
		o.logger.Error().Str("platform", string(dev.Platform)).Msg("onboard mode without adapter")
		o.markFailed(ctx, n.ID, reason)
		o.metrics.RecordFailed(ctx, string(dev.Platform))
		detail.Status = StatusFailed
		detail.Error = reason
		return detail
	}

	devSettings := snap.deviceSettings[dev.ID]

	sendCtx, cancel := context.WithTimeout(ctx, o.sendTimeout)
	defer cancel()

	err := adapter.Send(sendCtx, msg, n, dev, devSettings)
	if err != nil {
		if retryErr := o.tryRetry(sendCtx, err, adapter, msg, n, dev, devSettings); retryErr == nil {
			return o.markDelivered(ctx, n, dev, detail)
		}
		o.markFailed(ctx, n.ID, err.Error())
		o.metrics.RecordFailed(ctx, string(dev.Platform))
		detail.Status = StatusFailed
		detail.Error = err.Error()
		return detail
	}

	return o.markDelivered(ctx, n, dev, detail)
}

func (o *Orchestrator) sendPassthrough(ctx context.Context, snap *snapshot, msg *message.Message, n *notification.Notification, dev *device.UserDevice, detail DeliveryDetail) DeliveryDetail {
	if snap.server == "" || snap.token == "" {
		// Fail fast; no network attempt with a half-configured relay.
		o.logger.Error().
			Str("notification_id", n.ID).
			Msg("passthrough mode selected but server or token is not configured")
		o.markFailed(ctx, n.ID, reasonNoPassConfig)
		o.metrics.RecordFailed(ctx, string(dev.Platform))
		detail.Status = StatusFailed
		detail.Error = reasonNoPassConfig
		return detail
	}

	adapter, ok := o.adapters[dev.Platform]
	if !ok {
		reason := fmt.Sprintf("%s %s", reasonNoAdapter, dev.Platform)
		o.markFailed(ctx, n.ID, reason)
		o.metrics.RecordFailed(ctx, string(dev.Platform))
		detail.Status = StatusFailed
		detail.Error = reason
		return detail
	}

	env, err := adapter.ExternalPayload(msg, n, dev)
	if err != nil {
		o.markFailed(ctx, n.ID, err.Error())
		o.metrics.RecordFailed(ctx, string(dev.Platform))
		detail.Status = StatusFailed
		detail.Error = err.Error()
		return detail
	}

	sendCtx, cancel := context.WithTimeout(ctx, o.sendTimeout)
	defer cancel()

	if err := o.relay.Send(sendCtx, snap.server, snap.token, env); err != nil {
		o.markFailed(ctx, n.ID, err.Error())
		o.metrics.RecordFailed(ctx, string(dev.Platform))
		detail.Status = StatusFailed
		detail.Error = err.Error()
		return detail
	}

	o.metrics.RecordRelayed(ctx, string(dev.Platform))
	return o.markDelivered(ctx, n, dev, detail)
}

// tryRetry runs the first applicable retry policy. Returns nil when a retry
// succeeded.
func (o *Orchestrator) tryRetry(ctx context.Context, sendErr error, adapter Adapter, msg *message.Message, n *notification.Notification, dev *device.UserDevice, s settings.DeviceSettings) error {
	for _, policy := range o.retries {
		if !policy.Applicable(sendErr, dev, s) {
			continue
		}

		o.logger.Info().
			Str("notification_id", n.ID).
			Str("device_id", dev.ID).
			Msg("retrying delivery under retry policy")

		if err := policy.Retry(ctx, adapter, msg, n, dev, s); err != nil {
			return err
		}
		return nil
	}
	return sendErr
}

func (o *Orchestrator) markDelivered(ctx context.Context, n *notification.Notification, dev *device.UserDevice, detail DeliveryDetail) DeliveryDetail {
	now := o.now()
	if err := o.notifications.MarkSent(ctx, n.ID, now); err != nil {
		o.logger.Error().Err(err).Str("notification_id", n.ID).Msg("failed to mark notification sent")
	}
	if err := o.devices.UpdateLastUsed(ctx, dev.ID, now); err != nil {
		o.logger.Warn().Err(err).Str("device_id", dev.ID).Msg("failed to update device last_used")
	}

	o.metrics.RecordSent(ctx, string(dev.Platform))
	detail.Status = StatusSent
	return detail
}

func (o *Orchestrator) markFailed(ctx context.Context, id, reason string) {
	if err := o.notifications.MarkFailed(ctx, id, reason); err != nil {
		o.logger.Error().Err(err).Str("notification_id", id).Msg("failed to record delivery error")
	}
}

func (o *Orchestrator) collect(result *DispatchResult, d DeliveryDetail) {
	result.Details = append(result.Details, d)

	switch d.Status {
	case StatusSent:
		result.SuccessCount++
		result.PerPlatformSent[d.Platform]++
	case StatusSnoozed:
		result.SnoozedCount++
	case StatusPolicySkip:
		result.ErrorCount++
		result.PolicySkips++
	case StatusFailed:
		result.ErrorCount++
	case StatusLocalOnly:
		result.LocalOnlyCount++
	}
}

// intersect returns users present in both sets; an empty filter keeps all.
func intersect(userIDs, filter []string) []string {
	if len(filter) == 0 {
		return userIDs
	}

	allowed := make(map[string]bool, len(filter))
	for _, id := range filter {
		allowed[id] = true
	}

	var out []string
	for _, id := range userIDs {
		if allowed[id] {
			out = append(out, id)
		}
	}
	return out
}
