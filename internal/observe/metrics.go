// Package observe exports rtsim tick metrics through OpenTelemetry. A
// Prometheus bridge serves them on /metrics.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"rtsim.ai/internal/sim/rtsim"
)

const meterName = "rtsim.ai/internal/observe"

// stepBuckets are tick step durations in milliseconds.
var stepBuckets = []float64{0.5, 1, 2, 5, 10, 20, 33, 50, 100, 250}

// Metrics records one rtsim world. It implements rtsim.MetricsSink.
type Metrics struct {
	world attribute.Set

	Polled     metric.Int64Counter
	Loaded     metric.Int64Gauge
	Simulated  metric.Int64Gauge
	Npcs       metric.Int64Gauge
	Clients    metric.Int64Gauge
	StepTime   metric.Float64Histogram
	Delivered  metric.Int64Counter
	BuffEvents metric.Int64Counter
	Deaths     metric.Int64Counter
	Panics     metric.Int64Counter
	Tick       metric.Int64Gauge
}

func NewMetrics(mp metric.MeterProvider, worldID string) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{world: attribute.NewSet(attribute.String("world", worldID))}

	if met.Polled, err = m.Int64Counter("rtsim.npc.polled",
		metric.WithDescription("Brain polls run."),
	); err != nil {
		return nil, err
	}
	if met.Loaded, err = m.Int64Gauge("rtsim.npc.loaded",
		metric.WithDescription("NPCs near a connected character."),
	); err != nil {
		return nil, err
	}
	if met.Simulated, err = m.Int64Gauge("rtsim.npc.simulated",
		metric.WithDescription("NPCs polled on the tick-skip schedule this tick."),
	); err != nil {
		return nil, err
	}
	if met.Npcs, err = m.Int64Gauge("rtsim.npc.count",
		metric.WithDescription("NPCs in the registry."),
	); err != nil {
		return nil, err
	}
	if met.Clients, err = m.Int64Gauge("rtsim.clients",
		metric.WithDescription("Connected characters."),
	); err != nil {
		return nil, err
	}
	if met.StepTime, err = m.Float64Histogram("rtsim.tick.duration",
		metric.WithDescription("Wall time of one simulation step."),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(stepBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Delivered, err = m.Int64Counter("rtsim.dialogue.delivered",
		metric.WithDescription("Dialogue turns delivered to NPC inboxes."),
	); err != nil {
		return nil, err
	}
	if met.BuffEvents, err = m.Int64Counter("rtsim.buff.events",
		metric.WithDescription("Events produced by buff resolution."),
	); err != nil {
		return nil, err
	}
	if met.Deaths, err = m.Int64Counter("rtsim.npc.deaths",
		metric.WithDescription("NPCs killed."),
	); err != nil {
		return nil, err
	}
	if met.Panics, err = m.Int64Counter("rtsim.poll.panics",
		metric.WithDescription("Recovered panics in brain polls and buff resolution."),
	); err != nil {
		return nil, err
	}
	if met.Tick, err = m.Int64Gauge("rtsim.tick",
		metric.WithDescription("Last completed tick."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

func (m *Metrics) RecordTick(s rtsim.TickStats) {
	ctx := context.Background()
	opt := metric.WithAttributeSet(m.world)
	m.Polled.Add(ctx, int64(s.Polled), opt)
	m.Loaded.Record(ctx, int64(s.Loaded), opt)
	m.Simulated.Record(ctx, int64(s.Simulated), opt)
	m.Npcs.Record(ctx, int64(s.Npcs), opt)
	m.Clients.Record(ctx, int64(s.Clients), opt)
	m.StepTime.Record(ctx, s.StepMS, opt)
	if s.Delivered > 0 {
		m.Delivered.Add(ctx, int64(s.Delivered), opt)
	}
	if s.BuffEvents > 0 {
		m.BuffEvents.Add(ctx, int64(s.BuffEvents), opt)
	}
	if s.Deaths > 0 {
		m.Deaths.Add(ctx, int64(s.Deaths), opt)
	}
	if s.Panics > 0 {
		m.Panics.Add(ctx, int64(s.Panics), opt)
	}
	m.Tick.Record(ctx, int64(s.Tick), opt)
}
