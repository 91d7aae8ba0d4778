package runtime

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/loqalabs/loqa-kana/internal/assembler"
	"github.com/loqalabs/loqa-kana/internal/config"
	"github.com/loqalabs/loqa-kana/internal/segment"
	"go.opentelemetry.io/otel/sdk/resource"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildSegmenter(t *testing.T) {
	seg, err := buildSegmenter(config.SegmenterConfig{Mode: "kana", CacheSize: 8}, newLogger())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	cached, ok := seg.(*segment.Cached)
	if !ok {
		t.Fatalf("expected cached segmenter, got %T", seg)
	}
	groups, err := cached.Segment(context.Background(), "コンニチワ")
	if err != nil || len(groups) != 1 {
		t.Fatalf("unexpected segmentation %v %v", groups, err)
	}

	seg, err = buildSegmenter(config.SegmenterConfig{Mode: "kana"}, newLogger())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, ok := seg.(*segment.Kana); !ok {
		t.Fatalf("expected bare kana segmenter, got %T", seg)
	}

	if _, err := buildSegmenter(config.SegmenterConfig{Mode: "mecab"}, newLogger()); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestBuildEngine(t *testing.T) {
	engine, err := buildEngine(config.AcousticConfig{Mode: "mock", SampleRate: 48000, Speakers: []int{3}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if engine.SampleRate() != 48000 || len(engine.Speakers()) != 1 {
		t.Fatalf("unexpected engine rate %d speakers %v", engine.SampleRate(), engine.Speakers())
	}
	if _, err := buildEngine(config.AcousticConfig{Mode: "exec"}); err == nil {
		t.Fatal("expected error for exec mode without command")
	}
	if _, err := buildEngine(config.AcousticConfig{Mode: "grpc"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestBuildPipeline(t *testing.T) {
	cfg := config.Default()
	cfg.Segmenter = config.SegmenterConfig{Mode: "kana", CacheSize: 4}
	asm, engine, err := BuildPipeline(cfg, newLogger())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if engine.SampleRate() != 24000 {
		t.Fatalf("unexpected sample rate %d", engine.SampleRate())
	}
	res, err := asm.Build(context.Background(), assembler.Request{Text: "コンニチワ", Speaker: cfg.Synthesis.DefaultSpeaker})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if res.Query.Kana != "コンニチワ'" {
		t.Fatalf("unexpected kana %q", res.Query.Kana)
	}

	cfg.Acoustic.Mode = "grpc"
	if _, _, err := BuildPipeline(cfg, newLogger()); err == nil {
		t.Fatal("expected error for unknown acoustic mode")
	}
}

func TestReadiness(t *testing.T) {
	r := New(config.Default(), newLogger())

	rec := httptest.NewRecorder()
	r.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before start, got %d", rec.Code)
	}

	r.ready.Store(true)
	rec = httptest.NewRecorder()
	r.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 once ready, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestTraceExporterName(t *testing.T) {
	cases := []struct {
		cfg  config.TelemetryConfig
		want string
	}{
		{config.TelemetryConfig{}, "none"},
		{config.TelemetryConfig{OTLPEndpoint: "collector:4317"}, "otlp"},
		{config.TelemetryConfig{TraceExporter: "stdout", OTLPEndpoint: "collector:4317"}, "stdout"},
		{config.TelemetryConfig{TraceExporter: "none", OTLPEndpoint: "collector:4317"}, "none"},
	}
	for _, tc := range cases {
		if got := traceExporterName(tc.cfg); got != tc.want {
			t.Fatalf("traceExporterName(%+v) = %q, want %q", tc.cfg, got, tc.want)
		}
	}
}

func TestStdoutTracesUseGivenWriter(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	tp, err := newTracerProvider(ctx, config.TelemetryConfig{TraceExporter: "stdout"}, resource.Empty(), &buf, newLogger())
	if err != nil {
		t.Fatalf("tracer provider: %v", err)
	}
	_, span := tp.Tracer("test").Start(ctx, "assembler.build")
	span.End()
	if err := tp.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("assembler.build")) {
		t.Fatalf("expected span in writer, got %q", buf.String())
	}
}

func TestNoneExporterStillAssignsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	tp, err := newTracerProvider(ctx, config.TelemetryConfig{}, resource.Empty(), &buf, newLogger())
	if err != nil {
		t.Fatalf("tracer provider: %v", err)
	}
	defer tp.Shutdown(ctx)
	_, span := tp.Tracer("test").Start(ctx, "tts.request")
	span.End()
	if !span.SpanContext().HasTraceID() {
		t.Fatal("expected a trace id")
	}
	if buf.Len() != 0 {
		t.Fatalf("none exporter wrote %q", buf.String())
	}
}
