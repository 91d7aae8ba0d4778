package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-kana/internal/bus"
	"github.com/loqalabs/loqa-kana/internal/capability"
	"github.com/loqalabs/loqa-kana/internal/config"
	"github.com/loqalabs/loqa-kana/internal/eventstore"
	"github.com/loqalabs/loqa-kana/internal/natsserver"
	"github.com/loqalabs/loqa-kana/internal/protocol"
	"github.com/loqalabs/loqa-kana/internal/tts"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

const pruneInterval = time.Hour

type Runtime struct {
	cfg     config.Config
	logger  *slog.Logger
	ready   atomic.Bool
	bus     *bus.Client
	journal *eventstore.Store
	tts     *tts.Service
	nodes   *capability.Registry
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings up every component, serves until ctx is cancelled and then
// shuts down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return err
	}
	defer embedded.Shutdown()

	busCfg := r.cfg.Bus
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}
	r.bus, err = bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return err
	}
	defer r.bus.Close()

	r.journal, err = eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer r.journal.Close()

	asm, engine, err := BuildPipeline(r.cfg, r.logger)
	if err != nil {
		return err
	}

	metrics, err := tts.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		r.logger.Warn("failed to initialize tts metrics", slog.String("error", err.Error()))
		metrics = nil
	}
	r.tts = tts.NewService(ctx, r.cfg.Synthesis, r.bus, asm, engine, r.journal, metrics, r.logger)
	if err := r.tts.Start(); err != nil {
		return fmt.Errorf("start tts service: %w", err)
	}
	defer r.tts.Close()

	voice := protocol.Voice{
		Speakers:   engine.Speakers(),
		SampleRate: engine.SampleRate(),
		Segmenter:  r.cfg.Segmenter.Mode,
		Acoustic:   r.cfg.Acoustic.Mode,
	}
	r.nodes, err = capability.NewRegistry(ctx, r.cfg.Node, voice, r.bus, r.logger)
	if err != nil {
		return fmt.Errorf("start capability registry: %w", err)
	}
	defer r.nodes.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	servers := []*http.Server{{
		Addr:              fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
	if metricsHandler != nil && r.cfg.Telemetry.PrometheusBind != "" {
		promMux := http.NewServeMux()
		promMux.Handle("/metrics", metricsHandler)
		servers = append(servers, &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           promMux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		r.pruneLoop(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		r.ready.Store(false)
		r.logger.Info("runtime stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				r.logger.Error("http shutdown error", slog.String("error", err.Error()))
			}
		}
		return nil
	})

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", servers[0].Addr),
		slog.String("segmenter", r.cfg.Segmenter.Mode),
		slog.String("acoustic", r.cfg.Acoustic.Mode),
		slog.Int("sample_rate", engine.SampleRate()))

	return g.Wait()
}

func (r *Runtime) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.journal.Prune(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("journal prune failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, req *http.Request) {
	if r.isReady(req.Context()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) isReady(ctx context.Context) bool {
	if !r.ready.Load() {
		return false
	}
	if r.bus != nil && !r.bus.Healthy() {
		return false
	}
	if r.tts != nil && !r.tts.Healthy() {
		return false
	}
	if r.nodes != nil && !r.nodes.Healthy() {
		return false
	}
	if r.journal != nil && !r.journal.Healthy(ctx) {
		return false
	}
	return true
}
