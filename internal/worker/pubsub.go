// Package worker provides the pubsub-triggered fan-out for Pushbucket.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/pushbucket/pushbucket/internal/message"
	"github.com/pushbucket/pushbucket/internal/push"
)

// Dispatcher fans a message out to its authorized users' devices.
type Dispatcher interface {
	DispatchMessage(ctx context.Context, msg *message.Message, opts push.DispatchOptions) (*push.DispatchResult, error)
}

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	messages         message.Repository
	dispatcher       Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Messages         message.Repository
	Dispatcher       Dispatcher
	Logger           zerolog.Logger
}

// DispatchJob is the body of a fan-out job published by the message ingest
// surface.
type DispatchJob struct {
	JobType   string `json:"job_type"`
	MessageID string `json:"message_id"`

	// TargetUserIDs, when non-empty, restricts the fan-out.
	TargetUserIDs []string `json:"target_user_ids,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		messages:         cfg.Messages,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("pubsub_message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	var job DispatchJob
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		logger.Error().Err(err).Msg("failed to parse job")
		msg.Nack()
		return
	}

	var err error
	switch job.JobType {
	case "message_created":
		err = h.handleMessageCreated(ctx, job, logger)
	default:
		logger.Warn().Str("job_type", job.JobType).Msg("unknown job type")
		msg.Ack() // Ack unknown jobs to prevent redelivery
		return
	}

	if err != nil {
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
		return
	}

	logger.Info().
		Str("job_type", job.JobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")

	msg.Ack()
}

func (h *PubSubHandler) handleMessageCreated(ctx context.Context, job DispatchJob, logger zerolog.Logger) error {
	if job.MessageID == "" {
		logger.Warn().Msg("job without message id")
		// Malformed beyond repair; redelivery cannot fix it.
		return nil
	}

	msg, err := h.messages.Get(ctx, job.MessageID)
	if err != nil {
		if errors.Is(err, message.ErrMessageNotFound) {
			logger.Warn().Str("message_id", job.MessageID).Msg("message no longer exists")
			return nil
		}
		return fmt.Errorf("loading message: %w", err)
	}

	result, err := h.dispatcher.DispatchMessage(ctx, msg, push.DispatchOptions{
		TargetUserIDs: job.TargetUserIDs,
	})
	if err != nil {
		return fmt.Errorf("dispatching message: %w", err)
	}

	logger.Info().
		Str("message_id", msg.ID).
		Int("notifications", result.NotificationCount).
		Int("sent", result.SuccessCount).
		Int("errors", result.ErrorCount).
		Int("snoozed", result.SnoozedCount).
		Msg("fan-out complete")

	return nil
}
