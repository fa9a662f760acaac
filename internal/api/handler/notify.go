// Package handler provides HTTP handlers for the Pushbucket API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushbucket/pushbucket/internal/api/models"
	"github.com/pushbucket/pushbucket/internal/api/response"
	"github.com/pushbucket/pushbucket/internal/push/relay"
)

// maxEnvelopeBytes bounds the notify-external request body. Provider payloads
// are a few KB; anything near this limit is garbage.
const maxEnvelopeBytes = 64 * 1024

// ExternalDeliverer sends a relayed payload through a local provider
// connection.
type ExternalDeliverer interface {
	DeliverExternal(ctx context.Context, env *relay.Envelope) error
}

// NotifyStats counts notify-external outcomes for the ops endpoint.
type NotifyStats struct {
	delivered atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	since     time.Time
}

// NewNotifyStats creates a zeroed stats collector.
func NewNotifyStats(now time.Time) *NotifyStats {
	return &NotifyStats{since: now}
}

// Snapshot returns the current counter values.
func (s *NotifyStats) Snapshot() models.DispatchStats {
	return models.DispatchStats{
		Delivered: s.delivered.Load(),
		Failed:    s.failed.Load(),
		Rejected:  s.rejected.Load(),
		Since:     s.since,
	}
}

// NotifyHandler handles the receiving half of the passthrough protocol.
type NotifyHandler struct {
	deliverers map[string]ExternalDeliverer
	stats      *NotifyStats
	logger     zerolog.Logger
}

// NewNotifyHandler creates a new NotifyHandler. The deliverers map is keyed
// by envelope platform tag (IOS, ANDROID, WEB).
func NewNotifyHandler(deliverers map[string]ExternalDeliverer, stats *NotifyStats, logger zerolog.Logger) *NotifyHandler {
	return &NotifyHandler{
		deliverers: deliverers,
		stats:      stats,
		logger:     logger,
	}
}

// NotifyExternal handles POST /notifications/notify-external.
func (h *NotifyHandler) NotifyExternal(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxEnvelopeBytes)

	var env relay.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		h.stats.rejected.Add(1)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.BadRequest(w, r, "request body too large")
			return
		}
		response.BadRequest(w, r, "invalid envelope JSON")
		return
	}

	if env.Platform == "" {
		h.stats.rejected.Add(1)
		response.BadRequest(w, r, "missing platform")
		return
	}
	if len(env.Payload) == 0 {
		h.stats.rejected.Add(1)
		response.BadRequest(w, r, "missing payload")
		return
	}

	deliverer, ok := h.deliverers[env.Platform]
	if !ok {
		h.stats.rejected.Add(1)
		response.BadRequest(w, r, "unsupported platform "+env.Platform)
		return
	}

	if err := deliverer.DeliverExternal(r.Context(), &env); err != nil {
		h.stats.failed.Add(1)
		h.logger.Error().Err(err).
			Str("platform", env.Platform).
			Msg("relayed delivery failed")
		response.BadGateway(w, r, err.Error())
		return
	}

	h.stats.delivered.Add(1)
	h.logger.Info().
		Str("platform", env.Platform).
		Msg("relayed notification delivered")
	response.JSON(w, r, http.StatusOK, models.NotifyResult{
		Status:   "delivered",
		Platform: env.Platform,
	})
}
