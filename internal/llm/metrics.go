package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "keyrelay/llm"

// Request outcomes recorded on keyrelay.requests.
const (
	outcomeOK        = "ok"
	outcomeError     = "error"
	outcomeExhausted = "exhausted"
)

// poolMetrics holds the OpenTelemetry instruments for one pooled provider.
// With no SDK installed the global meter is a no-op.
type poolMetrics struct {
	requests    metric.Int64Counter
	quarantines metric.Int64Counter
	reg         metric.Registration
}

func newPoolMetrics(meter metric.Meter, pool *KeyPool) *poolMetrics {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	m, err := buildPoolMetrics(meter, pool)
	if err != nil {
		pool.log().Warn("metrics disabled", "err", err)
		m, _ = buildPoolMetrics(noop.NewMeterProvider().Meter(meterName), pool)
	}
	return m
}

func buildPoolMetrics(meter metric.Meter, pool *KeyPool) (*poolMetrics, error) {
	requests, err := meter.Int64Counter("keyrelay.requests",
		metric.WithDescription("Completion requests served through the key pool, by outcome."))
	if err != nil {
		return nil, err
	}
	quarantines, err := meter.Int64Counter("keyrelay.quarantines",
		metric.WithDescription("Keys taken out of rotation after auth or quota failures."))
	if err != nil {
		return nil, err
	}
	available, err := meter.Int64ObservableGauge("keyrelay.keys.available",
		metric.WithDescription("Keys in the pool that are not quarantined."))
	if err != nil {
		return nil, err
	}
	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(available, int64(pool.AvailableCount()))
		return nil
	}, available)
	if err != nil {
		return nil, err
	}
	return &poolMetrics{requests: requests, quarantines: quarantines, reg: reg}, nil
}

func (m *poolMetrics) request(ctx context.Context, outcome string) {
	m.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *poolMetrics) quarantine(ctx context.Context) {
	m.quarantines.Add(ctx, 1)
}

func (m *poolMetrics) close() error {
	if m.reg == nil {
		return nil
	}
	err := m.reg.Unregister()
	m.reg = nil
	return err
}
