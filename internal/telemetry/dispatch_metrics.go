package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DispatchMetrics holds the counters recorded by the push dispatch engine.
// A nil *DispatchMetrics is valid and records nothing.
type DispatchMetrics struct {
	sent    metric.Int64Counter
	failed  metric.Int64Counter
	snoozed metric.Int64Counter
	relayed metric.Int64Counter
	resends metric.Int64Counter
}

// NewDispatchMetrics creates the dispatch counters on the given meter.
func NewDispatchMetrics(meter metric.Meter) (*DispatchMetrics, error) {
	sent, err := meter.Int64Counter("push_notifications_sent_total",
		metric.WithDescription("Notifications successfully delivered to a provider"))
	if err != nil {
		return nil, err
	}

	failed, err := meter.Int64Counter("push_notifications_failed_total",
		metric.WithDescription("Notification delivery attempts that ended in an error"))
	if err != nil {
		return nil, err
	}

	snoozed, err := meter.Int64Counter("push_notifications_snoozed_total",
		metric.WithDescription("Deliveries skipped because the bucket was muted"))
	if err != nil {
		return nil, err
	}

	relayed, err := meter.Int64Counter("push_notifications_relayed_total",
		metric.WithDescription("Deliveries delegated to the passthrough peer"))
	if err != nil {
		return nil, err
	}

	resends, err := meter.Int64Counter("push_redelivery_attempts_total",
		metric.WithDescription("Deferred-redelivery resend attempts"))
	if err != nil {
		return nil, err
	}

	return &DispatchMetrics{
		sent:    sent,
		failed:  failed,
		snoozed: snoozed,
		relayed: relayed,
		resends: resends,
	}, nil
}

// RecordSent counts one successful delivery.
func (m *DispatchMetrics) RecordSent(ctx context.Context, platform string) {
	if m == nil {
		return
	}
	m.sent.Add(ctx, 1, metric.WithAttributes(attribute.String("platform", platform)))
}

// RecordFailed counts one failed delivery attempt.
func (m *DispatchMetrics) RecordFailed(ctx context.Context, platform string) {
	if m == nil {
		return
	}
	m.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("platform", platform)))
}

// RecordSnoozed counts one muted skip.
func (m *DispatchMetrics) RecordSnoozed(ctx context.Context) {
	if m == nil {
		return
	}
	m.snoozed.Add(ctx, 1)
}

// RecordRelayed counts one passthrough delegation.
func (m *DispatchMetrics) RecordRelayed(ctx context.Context, platform string) {
	if m == nil {
		return
	}
	m.relayed.Add(ctx, 1, metric.WithAttributes(attribute.String("platform", platform)))
}

// RecordResend counts one deferred-redelivery attempt.
func (m *DispatchMetrics) RecordResend(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.resends.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
