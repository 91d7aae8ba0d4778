package tts

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestMetricsRecordAssembly(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.recordAssembly(ctx, 0.02, 12, true)
	m.recordAssembly(ctx, 0.04, 100, false)
	m.recordSynthesis(ctx, 0.3)
	m.recordRequest(ctx, "kana", "ok")
	m.recordRequest(ctx, "text", "malformed_accent")

	rm := collect(t, reader)

	hist := findMetric(rm, "loqa.tts.assembly.duration")
	if hist == nil {
		t.Fatal("assembly histogram missing")
	}
	if h, ok := hist.Data.(metricdata.Histogram[float64]); !ok || h.DataPoints[0].Count != 2 {
		t.Fatalf("unexpected assembly data %+v", hist.Data)
	}

	moras := findMetric(rm, "loqa.tts.moras")
	if moras == nil {
		t.Fatal("mora histogram missing")
	}
	if h, ok := moras.Data.(metricdata.Histogram[int64]); !ok || h.DataPoints[0].Sum != 112 {
		t.Fatalf("unexpected mora data %+v", moras.Data)
	}

	trunc := findMetric(rm, "loqa.tts.truncations")
	if trunc == nil {
		t.Fatal("truncation counter missing")
	}
	if s, ok := trunc.Data.(metricdata.Sum[int64]); !ok || s.DataPoints[0].Value != 1 {
		t.Fatalf("unexpected truncation data %+v", trunc.Data)
	}

	reqs := findMetric(rm, "loqa.tts.requests")
	if reqs == nil {
		t.Fatal("request counter missing")
	}
	if s, ok := reqs.Data.(metricdata.Sum[int64]); !ok || len(s.DataPoints) != 2 {
		t.Fatalf("expected one data point per outcome, got %+v", reqs.Data)
	}
}

func TestMetricsInFlightGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	done := m.begin()
	m.begin()

	gauge := findMetric(collect(t, reader), "loqa.tts.in_flight")
	if gauge == nil {
		t.Fatal("in-flight gauge missing")
	}
	if g, ok := gauge.Data.(metricdata.Gauge[int64]); !ok || g.DataPoints[0].Value != 2 {
		t.Fatalf("unexpected gauge data %+v", gauge.Data)
	}

	done()
	gauge = findMetric(collect(t, reader), "loqa.tts.in_flight")
	if g := gauge.Data.(metricdata.Gauge[int64]); g.DataPoints[0].Value != 1 {
		t.Fatalf("expected 1 in flight, got %d", g.DataPoints[0].Value)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.begin()()
	m.recordRequest(context.Background(), "text", "ok")
	m.recordAssembly(context.Background(), 1, 1, true)
	m.recordSynthesis(context.Background(), 1)
}
