package dreamer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const dreamerInstrumentationName = "github.com/fyrsmithlabs/dreamerd/internal/dreamer"

// Metrics holds consolidation metrics.
type Metrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	dreams   metric.Int64Counter
	duration metric.Float64Histogram
	retries  metric.Int64Histogram
}

// NewMetrics creates a Metrics instance for the dreamer.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(dreamerInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.dreams, err = m.meter.Int64Counter(
		"dreamerd.dreamer.dreams_total",
		metric.WithDescription("Consolidation attempts by outcome (dreamed, retry, dream_failed, persist_error)"),
		metric.WithUnit("{dream}"),
	)
	if err != nil {
		m.logger.Warn("failed to create dreams counter", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"dreamerd.dreamer.dream_duration_seconds",
		metric.WithDescription("Duration of a single consolidation attempt in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.retries, err = m.meter.Int64Histogram(
		"dreamerd.dreamer.retry_count",
		metric.WithDescription("Retry counter values observed on failed attempts"),
		metric.WithUnit("{retry}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5),
	)
	if err != nil {
		m.logger.Warn("failed to create retries histogram", zap.Error(err))
	}
}

// RecordDream records one consolidation attempt.
func (m *Metrics) RecordDream(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if m.dreams != nil {
		m.dreams.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordRetry records the retry counter after a transient failure.
func (m *Metrics) RecordRetry(ctx context.Context, retry int) {
	if m.retries != nil {
		m.retries.Record(ctx, int64(retry))
	}
}
