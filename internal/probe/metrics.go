// internal/probe/metrics.go
package probe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/tamzrod/probe-runtime/probe"

// instruments are the per-probe otel counters.
type instruments struct {
	attrs metric.MeasurementOption

	transitions metric.Int64Counter
	emissions   metric.Int64Counter
	failures    metric.Int64Counter
	wakeLocks   metric.Int64UpDownCounter
}

func newInstruments(meter metric.Meter, probeName string, logger *slog.Logger) *instruments {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	inst, err := buildInstruments(meter, probeName)
	if err != nil {
		logger.Warn("probe: metrics disabled", "error", err)
		inst, _ = buildInstruments(noop.NewMeterProvider().Meter(instrumentationName), probeName)
	}
	return inst
}

func buildInstruments(meter metric.Meter, probeName string) (*instruments, error) {
	inst := &instruments{
		attrs: metric.WithAttributes(attribute.String("probe.type", probeName)),
	}

	var err error
	if inst.transitions, err = meter.Int64Counter("probe.transitions",
		metric.WithDescription("Lifecycle transitions by target state"),
	); err != nil {
		return nil, err
	}
	if inst.emissions, err = meter.Int64Counter("probe.emissions",
		metric.WithDescription("Payload deliveries to data listeners"),
	); err != nil {
		return nil, err
	}
	if inst.failures, err = meter.Int64Counter("probe.task_failures",
		metric.WithDescription("Run loop tasks that panicked"),
	); err != nil {
		return nil, err
	}
	if inst.wakeLocks, err = meter.Int64UpDownCounter("probe.wakelocks.held",
		metric.WithDescription("Wake locks currently held by running probes"),
	); err != nil {
		return nil, err
	}
	return inst, nil
}

func (i *instruments) transition(s State) {
	i.transitions.Add(context.Background(), 1, i.attrs,
		metric.WithAttributes(attribute.String("probe.state", s.String())),
	)
}

func (i *instruments) emitted(deliveries int) {
	if deliveries > 0 {
		i.emissions.Add(context.Background(), int64(deliveries), i.attrs)
	}
}

func (i *instruments) failure() {
	i.failures.Add(context.Background(), 1, i.attrs)
}

func (i *instruments) wakeLock(delta int64) {
	i.wakeLocks.Add(context.Background(), delta, i.attrs)
}
