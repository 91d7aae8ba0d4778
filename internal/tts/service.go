// Package tts serves synthesis requests over the bus: it assembles an audio
// query, renders it and publishes the waveform and a status message.
package tts

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-kana/internal/acoustic"
	"github.com/loqalabs/loqa-kana/internal/assembler"
	"github.com/loqalabs/loqa-kana/internal/bus"
	"github.com/loqalabs/loqa-kana/internal/config"
	"github.com/loqalabs/loqa-kana/internal/eventstore"
	"github.com/loqalabs/loqa-kana/internal/kana"
	"github.com/loqalabs/loqa-kana/internal/protocol"
	"github.com/loqalabs/loqa-kana/internal/query"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const stageSynthesis = "synthesis"

type Service struct {
	cfg     config.SynthesisConfig
	bus     *bus.Client
	asm     *assembler.Assembler
	synth   acoustic.Synthesizer
	journal *eventstore.Store
	metrics *Metrics
	subs    []*nats.Subscription
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewService wires the service. journal and metrics may be nil.
func NewService(parent context.Context, cfg config.SynthesisConfig, busClient *bus.Client, asm *assembler.Assembler,
	synth acoustic.Synthesizer, journal *eventstore.Store, metrics *Metrics, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:     cfg,
		bus:     busClient,
		asm:     asm,
		synth:   synth,
		journal: journal,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
		logger:  log.With(slog.String("component", "tts-service")),
		tracer:  otel.Tracer("github.com/loqalabs/loqa-kana/internal/tts"),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	conn := s.bus.Conn()
	reqSub, err := conn.Subscribe(protocol.SubjectTTSRequest, s.handleRequest)
	if err != nil {
		return err
	}
	querySub, err := conn.Subscribe(protocol.SubjectTTSQuery, s.handleQuery)
	if err != nil {
		_ = reqSub.Unsubscribe()
		return err
	}
	s.subs = []*nats.Subscription{reqSub, querySub}
	s.logger.Info("tts service subscribed",
		slog.String("request_subject", protocol.SubjectTTSRequest),
		slog.String("query_subject", protocol.SubjectTTSQuery))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || len(s.subs) == 2 }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.SynthesisRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode tts request", slogError(err))
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.synthesize(req)
	}()
}

func (s *Service) handleQuery(msg *nats.Msg) {
	var req protocol.SynthesisRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode tts query", slogError(err))
		s.respond(msg, protocol.QueryReply{Error: &protocol.ErrorInfo{Kind: protocol.ErrorKindInvalidRequest, Message: err.Error()}})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.answer(msg, req)
	}()
}

func (s *Service) answer(msg *nats.Msg, req protocol.SynthesisRequest) {
	defer s.metrics.begin()()
	ctx, cancel := s.requestContext()
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "tts.query", trace.WithAttributes(attribute.String("session_id", req.SessionID)))
	defer span.End()

	res, _, err := s.assemble(ctx, req)
	reply := protocol.QueryReply{SessionID: req.SessionID}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		reply.Error = errorInfo(err)
	} else {
		reply.Query = &res.Query
		reply.Truncated = res.Truncated
	}
	s.respond(msg, reply)
}

func (s *Service) respond(msg *nats.Msg, reply protocol.QueryReply) {
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Warn("failed to marshal query reply", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to respond to tts query", slogError(err))
	}
}

func (s *Service) synthesize(req protocol.SynthesisRequest) {
	defer s.metrics.begin()()
	ctx, cancel := s.requestContext()
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "tts.request", trace.WithAttributes(attribute.String("session_id", req.SessionID)))
	defer span.End()

	started := time.Now()
	res, speaker, err := s.assemble(ctx, req)
	if err != nil {
		s.fail(ctx, span, req, speaker, started, err)
		return
	}

	synthStart := time.Now()
	wav, err := s.synth.Synthesize(ctx, res.Query, speaker)
	s.metrics.recordSynthesis(ctx, time.Since(synthStart).Seconds())
	if err != nil {
		s.fail(ctx, span, req, speaker, started, &assembler.CollaboratorError{Stage: stageSynthesis, Err: err})
		return
	}

	s.publish(protocol.SubjectTTSAudio, protocol.AudioChunk{
		SessionID:  req.SessionID,
		Target:     req.Target,
		SampleRate: res.Query.OutputSamplingRate,
		Channels:   1,
		Sequence:   0,
		WAV:        wav,
		Final:      true,
	})

	stats := res.Query.Stats()
	s.publish(protocol.SubjectTTSDone, protocol.SynthesisStatus{
		SessionID:     req.SessionID,
		Target:        req.Target,
		Completed:     true,
		Kana:          res.Query.Kana,
		Moras:         stats.Moras,
		SpeechSeconds: stats.SpeechSeconds,
		Truncated:     res.Truncated,
		Timestamp:     time.Now().UTC(),
	})

	proc := time.Since(started).Seconds()
	genRate := 0.0
	if proc > 0 {
		genRate = stats.SpeechSeconds / proc
	}
	s.logger.Info("synthesis complete",
		slog.String("session_id", req.SessionID),
		slog.Int("speaker", speaker),
		slog.Int("moras", stats.Moras),
		slog.Float64("wav_seconds", stats.SpeechSeconds),
		slog.Float64("proc_seconds", proc),
		slog.Float64("gen_rate", genRate),
		slog.Bool("truncated", res.Truncated),
		slog.String("kana", res.Query.Kana))
	s.metrics.recordRequest(ctx, source(req), "ok")
	s.record(ctx, eventstore.Record{
		SessionID:     req.SessionID,
		Target:        req.Target,
		TraceID:       traceID(span),
		Source:        source(req),
		Speaker:       speaker,
		Text:          req.Text,
		Kana:          res.Query.Kana,
		Moras:         stats.Moras,
		SpeechSeconds: stats.SpeechSeconds,
		ProcSeconds:   proc,
		Truncated:     res.Truncated,
	})
}

// assemble builds the query for req and returns the speaker it used.
func (s *Service) assemble(ctx context.Context, req protocol.SynthesisRequest) (assembler.Result, int, error) {
	speaker := s.cfg.DefaultSpeaker
	if req.Speaker != nil {
		speaker = *req.Speaker
	}
	areq := assembler.Request{Text: req.Text, Kana: req.Kana, Speaker: speaker, Speed: req.Speed}

	started := time.Now()
	var (
		res assembler.Result
		err error
	)
	if strings.TrimSpace(req.Kana) != "" {
		res, err = s.asm.BuildFromKana(ctx, areq)
	} else {
		res, err = s.asm.Build(ctx, areq)
	}
	if err != nil {
		return assembler.Result{}, speaker, err
	}
	s.metrics.recordAssembly(ctx, time.Since(started).Seconds(), query.MoraCount(res.Query.AccentPhrases), res.Truncated)
	if res.Truncated {
		s.logger.Warn("mora limit reached",
			slog.String("session_id", req.SessionID),
			slog.Int("limit", s.cfg.MoraLimit),
			slog.Int("dropped_phrases", res.DroppedPhrases))
	}
	return res, speaker, nil
}

func (s *Service) fail(ctx context.Context, span trace.Span, req protocol.SynthesisRequest, speaker int, started time.Time, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	info := errorInfo(err)
	s.logger.Warn("tts synthesis failed",
		slog.String("session_id", req.SessionID),
		slog.String("kind", info.Kind),
		slogError(err))
	s.publish(protocol.SubjectTTSDone, protocol.SynthesisStatus{
		SessionID: req.SessionID,
		Target:    req.Target,
		Error:     info,
		Timestamp: time.Now().UTC(),
	})
	s.metrics.recordRequest(ctx, source(req), info.Kind)
	s.record(ctx, eventstore.Record{
		SessionID:   req.SessionID,
		Target:      req.Target,
		TraceID:     traceID(span),
		Source:      source(req),
		Speaker:     speaker,
		Text:        req.Text,
		Kana:        req.Kana,
		ProcSeconds: time.Since(started).Seconds(),
		Error:       err.Error(),
	})
}

func (s *Service) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal tts message", slog.String("subject", subject), slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish tts message", slog.String("subject", subject), slogError(err))
	}
}

func (s *Service) record(ctx context.Context, rec eventstore.Record) {
	if s.journal == nil {
		return
	}
	// The request context may already be past its deadline.
	ctx = context.WithoutCancel(ctx)
	if err := s.journal.AppendSession(ctx, rec.SessionID, rec.Target); err != nil {
		s.logger.Warn("failed to journal session", slogError(err))
	}
	if err := s.journal.Append(ctx, rec); err != nil {
		s.logger.Warn("failed to journal synthesis", slogError(err))
	}
}

func (s *Service) requestContext() (context.Context, context.CancelFunc) {
	timeout := time.Duration(s.cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return context.WithTimeout(s.ctx, timeout)
}

func source(req protocol.SynthesisRequest) string {
	if strings.TrimSpace(req.Kana) != "" {
		return "kana"
	}
	return "text"
}

func traceID(span trace.Span) string {
	sc := span.SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// errorInfo maps a pipeline error onto the wire error description.
func errorInfo(err error) *protocol.ErrorInfo {
	info := &protocol.ErrorInfo{Kind: protocol.ErrorKindInternal, Message: err.Error()}

	var perr *kana.ParseError
	if errors.As(err, &perr) {
		switch perr.Kind {
		case kana.KindMalformedPhrase:
			info.Kind = protocol.ErrorKindMalformedPhrase
		case kana.KindMalformedAccent:
			info.Kind = protocol.ErrorKindMalformedAccent
		case kana.KindUnrecognizedGlyph:
			info.Kind = protocol.ErrorKindUnrecognizedGlyph
		}
		offset, phrase := perr.Offset, perr.Phrase
		info.Offset, info.Phrase = &offset, &phrase
		return info
	}

	var cerr *assembler.CollaboratorError
	if errors.As(err, &cerr) {
		info.Stage = cerr.Stage
		info.Kind = protocol.ErrorKindCollaborator
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		info.Kind = protocol.ErrorKindTimeout
	case errors.Is(err, acoustic.ErrUnknownSpeaker):
		info.Kind = protocol.ErrorKindUnknownSpeaker
	case errors.Is(err, assembler.ErrInvalidRequest):
		info.Kind = protocol.ErrorKindInvalidRequest
	case errors.Is(err, query.ErrInvalidPhrase):
		info.Kind = protocol.ErrorKindCollaborator
		info.Stage = assembler.StageSegment
	}
	return info
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
