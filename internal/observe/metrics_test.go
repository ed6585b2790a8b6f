package observe

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"rtsim.ai/internal/sim/rtsim"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp, "w1")
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func findMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	t.Fatalf("metric %q not found", name)
	return nil
}

func TestMetrics_RecordTickAccumulates(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordTick(rtsim.TickStats{Tick: 1, Npcs: 10, Polled: 4, Delivered: 2, StepMS: 1.5})
	m.RecordTick(rtsim.TickStats{Tick: 2, Npcs: 10, Polled: 6, Panics: 1, BuffEvents: 3, StepMS: 3})

	sum, ok := findMetric(t, reader, "rtsim.npc.polled").Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 10 {
		t.Fatalf("polled=%+v", sum)
	}
	if v, _ := sum.DataPoints[0].Attributes.Value("world"); v.AsString() != "w1" {
		t.Fatalf("world attribute=%v", v)
	}

	hist, ok := findMetric(t, reader, "rtsim.tick.duration").Data.(metricdata.Histogram[float64])
	if !ok || hist.DataPoints[0].Count != 2 || hist.DataPoints[0].Sum != 4.5 {
		t.Fatalf("duration=%+v", hist)
	}

	panics := findMetric(t, reader, "rtsim.poll.panics").Data.(metricdata.Sum[int64])
	if panics.DataPoints[0].Value != 1 {
		t.Fatalf("panics=%+v", panics)
	}
	tick := findMetric(t, reader, "rtsim.tick").Data.(metricdata.Gauge[int64])
	if tick.DataPoints[0].Value != 2 {
		t.Fatalf("tick=%+v", tick)
	}
}

func TestProvider_ServesPrometheus(t *testing.T) {
	p, err := NewProvider()
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	m, err := NewMetrics(p, "w1")
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordTick(rtsim.TickStats{Tick: 3, Polled: 5})

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "rtsim_npc_polled") {
		t.Fatalf("scrape missing rtsim_npc_polled:\n%s", body)
	}
}
