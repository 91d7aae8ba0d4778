package tts

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/loqalabs/loqa-kana/tts"

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics holds the synthesis service instruments.
type Metrics struct {
	// Requests counts handled requests. Attributes: source (text, kana),
	// outcome (ok or an error kind).
	Requests metric.Int64Counter

	AssemblyDuration  metric.Float64Histogram
	SynthesisDuration metric.Float64Histogram

	// Moras records the mora count of every assembled query.
	Moras metric.Int64Histogram

	// Truncations counts queries cut short by the mora limit.
	Truncations metric.Int64Counter

	inFlight atomic.Int64
}

// NewMetrics builds the instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Requests, err = m.Int64Counter("loqa.tts.requests",
		metric.WithDescription("Synthesis requests by source and outcome."),
	); err != nil {
		return nil, err
	}
	if met.AssemblyDuration, err = m.Float64Histogram("loqa.tts.assembly.duration",
		metric.WithDescription("Time spent building the audio query."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("loqa.tts.synthesis.duration",
		metric.WithDescription("Time spent rendering the waveform."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Moras, err = m.Int64Histogram("loqa.tts.moras",
		metric.WithDescription("Moras per assembled query."),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 75, 100, 200),
	); err != nil {
		return nil, err
	}
	if met.Truncations, err = m.Int64Counter("loqa.tts.truncations",
		metric.WithDescription("Queries shortened by the mora limit."),
	); err != nil {
		return nil, err
	}

	gauge, err := m.Int64ObservableGauge("loqa.tts.in_flight",
		metric.WithDescription("Requests currently being processed."),
	)
	if err != nil {
		return nil, err
	}
	if _, err = m.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(gauge, met.inFlight.Load())
		return nil
	}, gauge); err != nil {
		return nil, err
	}
	return met, nil
}

func (m *Metrics) begin() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Add(1)
	return func() { m.inFlight.Add(-1) }
}

func (m *Metrics) recordRequest(ctx context.Context, source, outcome string) {
	if m == nil {
		return
	}
	m.Requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) recordAssembly(ctx context.Context, seconds float64, moras int, truncated bool) {
	if m == nil {
		return
	}
	m.AssemblyDuration.Record(ctx, seconds)
	m.Moras.Record(ctx, int64(moras))
	if truncated {
		m.Truncations.Add(ctx, 1)
	}
}

func (m *Metrics) recordSynthesis(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.SynthesisDuration.Record(ctx, seconds)
}
