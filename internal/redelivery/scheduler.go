package redelivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/pushbucket/pushbucket/internal/device"
	"github.com/pushbucket/pushbucket/internal/locale"
	"github.com/pushbucket/pushbucket/internal/message"
	"github.com/pushbucket/pushbucket/internal/notification"
	"github.com/pushbucket/pushbucket/internal/push"
	"github.com/pushbucket/pushbucket/internal/telemetry"
)

// Resender re-attempts delivery of an existing notification record.
type Resender interface {
	ResendNotification(ctx context.Context, msg *message.Message, n *notification.Notification, dev *device.UserDevice) (push.DeliveryDetail, error)
}

// SchedulerConfig holds the collaborators of the redelivery scheduler.
type SchedulerConfig struct {
	Records       Repository
	Messages      message.Repository
	Notifications notification.Repository
	Devices       device.Repository
	Dispatcher    Resender
	Metrics       *telemetry.DispatchMetrics
	Logger        zerolog.Logger

	// Now is the clock used for due checks. Default: time.Now.
	Now func() time.Time
}

// Scheduler fires due redelivery records once per minute.
type Scheduler struct {
	records       Repository
	messages      message.Repository
	notifications notification.Repository
	devices       device.Repository
	dispatcher    Resender
	metrics       *telemetry.DispatchMetrics
	logger        zerolog.Logger
	now           func() time.Time

	cron *cron.Cron
}

// NewScheduler creates a new redelivery scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		records:       cfg.Records,
		messages:      cfg.Messages,
		notifications: cfg.Notifications,
		devices:       cfg.Devices,
		dispatcher:    cfg.Dispatcher,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		now:           now,
	}
}

// Start begins the minutely tick. Overlapping ticks are skipped, so a slow
// batch never runs concurrently with the next one.
func (s *Scheduler) Start() error {
	s.cron = cron.New()

	_, err := s.cron.AddJob("* * * * *",
		cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
			if _, err := s.RunTick(context.Background()); err != nil {
				s.logger.Error().Err(err).Msg("redelivery tick failed")
			}
		})),
	)
	if err != nil {
		return fmt.Errorf("scheduling redelivery tick: %w", err)
	}

	s.cron.Start()
	s.logger.Info().Msg("redelivery scheduler started")
	return nil
}

// Stop halts the tick and waits for a running one to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("redelivery scheduler stopped")
}

// TickResult summarizes one tick.
type TickResult struct {
	Due     int
	Resent  int
	Deleted int
	Failed  int
}

// RunTick processes every due record once. A failure on one record never
// blocks the others.
func (s *Scheduler) RunTick(ctx context.Context) (*TickResult, error) {
	now := s.now()

	due, err := s.records.FindDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("finding due records: %w", err)
	}

	result := &TickResult{Due: len(due)}
	for _, rec := range due {
		if err := s.processRecord(ctx, rec, now, result); err != nil {
			result.Failed++
			s.logger.Warn().Err(err).
				Str("record_id", rec.ID).
				Str("kind", string(rec.Kind)).
				Msg("redelivery record failed")
		}
	}

	if result.Due > 0 {
		s.logger.Info().
			Int("due", result.Due).
			Int("resent", result.Resent).
			Int("deleted", result.Deleted).
			Int("failed", result.Failed).
			Msg("redelivery tick complete")
	}

	return result, nil
}

func (s *Scheduler) processRecord(ctx context.Context, rec *Record, now time.Time, result *TickResult) error {
	// Exhaustion is checked before any resend, so the last scheduled fire is
	// the removal, not a delivery.
	if rec.Exhausted() {
		result.Deleted++
		return s.records.Delete(ctx, rec.ID)
	}

	next := rec.NextFireAt.Add(rec.Interval())
	if !next.After(now) {
		next = now.Add(rec.Interval())
	}

	claimed, err := s.records.Advance(ctx, rec.ID, next, now)
	if err != nil {
		return fmt.Errorf("claiming record: %w", err)
	}
	if !claimed {
		return nil
	}

	switch rec.Kind {
	case KindPostpone:
		return s.firePostpone(ctx, rec, result)
	case KindReminder:
		return s.fireReminder(ctx, rec, result)
	default:
		return fmt.Errorf("unknown redelivery kind %q", rec.Kind)
	}
}

func (s *Scheduler) firePostpone(ctx context.Context, rec *Record, result *TickResult) error {
	if rec.NotificationID == nil {
		result.Deleted++
		return s.records.Delete(ctx, rec.ID)
	}

	n, err := s.notifications.FindByID(ctx, *rec.NotificationID)
	if err != nil {
		if errors.Is(err, notification.ErrNotificationNotFound) {
			result.Deleted++
			return s.records.Delete(ctx, rec.ID)
		}
		return fmt.Errorf("loading notification: %w", err)
	}

	// A postpone of a read notification has nothing left to do.
	if !n.Unread() {
		result.Deleted++
		return s.records.Delete(ctx, rec.ID)
	}

	msg, err := s.messages.Get(ctx, n.MessageID)
	if err != nil {
		return fmt.Errorf("loading message: %w", err)
	}

	return s.resend(ctx, rec, msg, []*notification.Notification{n}, locale.KeyPostponed, result)
}

func (s *Scheduler) fireReminder(ctx context.Context, rec *Record, result *TickResult) error {
	if rec.MessageID == nil {
		result.Deleted++
		return s.records.Delete(ctx, rec.ID)
	}

	msg, err := s.messages.Get(ctx, *rec.MessageID)
	if err != nil {
		if errors.Is(err, message.ErrMessageNotFound) {
			result.Deleted++
			return s.records.Delete(ctx, rec.ID)
		}
		return fmt.Errorf("loading message: %w", err)
	}

	unread, err := s.notifications.FindUnreadByMessageAndUser(ctx, *rec.MessageID, rec.UserID)
	if err != nil {
		return fmt.Errorf("loading unread notifications: %w", err)
	}

	// Everything read: the reminder has served its purpose.
	if len(unread) == 0 {
		result.Deleted++
		return s.records.Delete(ctx, rec.ID)
	}

	return s.resend(ctx, rec, msg, unread, locale.KeyReminder, result)
}

// resend delivers presentation copies of the notifications. The stored
// records keep their original titles.
func (s *Scheduler) resend(ctx context.Context, rec *Record, msg *message.Message, targets []*notification.Notification, prefixKey string, result *TickResult) error {
	prefix := locale.Translate(msg.Locale, prefixKey)

	var lastErr error
	for _, n := range targets {
		if n.UserDeviceID == nil {
			continue
		}

		dev, err := s.devices.Get(ctx, *n.UserDeviceID)
		if err != nil {
			if errors.Is(err, device.ErrDeviceNotFound) {
				continue
			}
			lastErr = err
			continue
		}

		s.metrics.RecordResend(ctx, string(rec.Kind))

		detail, err := s.dispatcher.ResendNotification(ctx, msg, n.PresentationCopy(prefix), dev)
		if err != nil {
			lastErr = err
			continue
		}

		result.Resent++
		s.logger.Debug().
			Str("record_id", rec.ID).
			Str("notification_id", n.ID).
			Str("status", string(detail.Status)).
			Msg("notification redelivered")
	}

	return lastErr
}
