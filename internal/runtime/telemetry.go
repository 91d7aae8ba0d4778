package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/loqalabs/loqa-kana/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

const (
	exporterNone   = "none"
	exporterStdout = "stdout"
	exporterOTLP   = "otlp"
)

// setupTelemetry installs the global tracer and meter providers. The returned
// handler serves the Prometheus scrape endpoint and may be nil.
func setupTelemetry(cfg config.Config, logger *slog.Logger) (func(context.Context) error, http.Handler, error) {
	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.RuntimeName),
			semconv.ServiceInstanceID(cfg.Node.ID),
			attribute.String("deployment.environment", cfg.Environment),
			attribute.String("loqa.segmenter", cfg.Segmenter.Mode),
			attribute.String("loqa.acoustic", cfg.Acoustic.Mode),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	// stdout carries the JSON log stream, so span dumps go to stderr.
	tp, err := newTracerProvider(ctx, cfg.Telemetry, res, os.Stderr, logger)
	if err != nil {
		return nil, nil, err
	}
	otel.SetTracerProvider(tp)

	meterProvider, metricHandler := newMeterProvider(res, logger)
	otel.SetMeterProvider(meterProvider)

	shutdown := func(ctx context.Context) error {
		return errors.Join(meterProvider.Shutdown(ctx), tp.Shutdown(ctx))
	}
	return shutdown, metricHandler, nil
}

func traceExporterName(cfg config.TelemetryConfig) string {
	if cfg.TraceExporter != "" {
		return cfg.TraceExporter
	}
	if strings.TrimSpace(cfg.OTLPEndpoint) != "" {
		return exporterOTLP
	}
	return exporterNone
}

// newTracerProvider always returns a provider so spans still carry trace ids
// for the synthesis journal; with the none exporter they are never exported.
func newTracerProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource, stdout io.Writer, logger *slog.Logger) (*sdktrace.TracerProvider, error) {
	ratio := cfg.TraceSampleRatio
	if ratio <= 0 {
		ratio = 1
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	}

	name := traceExporterName(cfg)
	switch name {
	case exporterOTLP:
		endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
		grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, grpcOpts...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Info("telemetry initialized", slog.String("exporter", name), slog.String("endpoint", endpoint))
	case exporterStdout:
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(stdout))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Info("telemetry initialized", slog.String("exporter", name))
	default:
		logger.Info("telemetry initialized", slog.String("exporter", exporterNone))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func newMeterProvider(res *resource.Resource, logger *slog.Logger) (*sdkmetric.MeterProvider, http.Handler) {
	promExporter, err := prometheus.New()
	if err != nil {
		logger.Warn("failed to initialize prometheus exporter", slog.String("error", err.Error()))
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)), nil
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)
	return mp, promhttp.Handler()
}
