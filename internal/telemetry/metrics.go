package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Chat request outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeUpstream = "upstream_error"
)

// Metrics groups the gateway instruments. A nil *Metrics records nothing.
type Metrics struct {
	chatRequests    metric.Int64Counter
	sessionsCreated metric.Int64Counter
	sessionsEvicted metric.Int64Counter
	providerLatency metric.Float64Histogram
}

// NewMetrics registers the gateway instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	chatRequests, err := meter.Int64Counter(
		"gateway.chat.requests",
		metric.WithDescription("Chat requests by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request counter: %w", err)
	}

	sessionsCreated, err := meter.Int64Counter(
		"gateway.sessions.created",
		metric.WithDescription("Conversations registered in the session store"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session counter: %w", err)
	}

	sessionsEvicted, err := meter.Int64Counter(
		"gateway.sessions.evicted",
		metric.WithDescription("Conversations removed by the sweeper"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create eviction counter: %w", err)
	}

	providerLatency, err := meter.Float64Histogram(
		"gateway.provider.duration",
		metric.WithDescription("AI provider call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider histogram: %w", err)
	}

	return &Metrics{
		chatRequests:    chatRequests,
		sessionsCreated: sessionsCreated,
		sessionsEvicted: sessionsEvicted,
		providerLatency: providerLatency,
	}, nil
}

// ChatRequest counts one handled chat request.
func (m *Metrics) ChatRequest(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.chatRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// SessionCreated counts one new conversation.
func (m *Metrics) SessionCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsCreated.Add(ctx, 1)
}

// SessionsEvicted counts conversations dropped by a sweep run.
func (m *Metrics) SessionsEvicted(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsEvicted.Add(ctx, int64(n))
}

// ProviderCall records the duration of one provider round trip.
func (m *Metrics) ProviderCall(ctx context.Context, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.providerLatency.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(attribute.Bool("error", failed)))
}

// RegisterSessionGauge reports the live session count on every collection.
func RegisterSessionGauge(meter metric.Meter, count func() int) error {
	_, err := meter.Int64ObservableGauge(
		"gateway.sessions.active",
		metric.WithDescription("Conversations currently held in memory"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(count()))
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create session gauge: %w", err)
	}
	return nil
}
