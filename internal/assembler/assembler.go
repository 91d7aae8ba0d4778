// Package assembler builds AudioQuery values from text or kana notation.
package assembler

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/loqalabs/loqa-kana/internal/acoustic"
	"github.com/loqalabs/loqa-kana/internal/config"
	"github.com/loqalabs/loqa-kana/internal/kana"
	"github.com/loqalabs/loqa-kana/internal/query"
	"github.com/loqalabs/loqa-kana/internal/segment"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	upspeakStep = 0.3
	upspeakCap  = 6.5
)

// Options are the per-deployment synthesis constants.
type Options struct {
	BaseSpeedScale    float64
	VolumeScale       float64
	PrePhonemeLength  float64
	PostPhonemeLength float64
	MoraLimit         int
	Upspeak           bool
}

func OptionsFromConfig(cfg config.SynthesisConfig) Options {
	return Options{
		BaseSpeedScale:    cfg.BaseSpeedScale,
		VolumeScale:       cfg.VolumeScale,
		PrePhonemeLength:  cfg.PrePhonemeLength,
		PostPhonemeLength: cfg.PostPhonemeLength,
		MoraLimit:         cfg.MoraLimit,
		Upspeak:           cfg.Upspeak,
	}
}

// Request is one utterance to assemble. Build reads Text; BuildFromKana reads
// Kana. Speed 0 means normal speed.
type Request struct {
	Text    string
	Kana    string
	Speaker int
	Speed   float64
}

// Result carries the assembled query and whether the mora limit cut it short.
type Result struct {
	Query          query.AudioQuery
	Truncated      bool
	DroppedPhrases int
}

// Assembler is stateless apart from its collaborators and is safe for
// concurrent use when they are.
type Assembler struct {
	seg    segment.Segmenter
	engine acoustic.Engine
	opts   Options
	tracer trace.Tracer
}

func New(seg segment.Segmenter, engine acoustic.Engine, opts Options) *Assembler {
	if opts.BaseSpeedScale <= 0 {
		opts.BaseSpeedScale = 1
	}
	if opts.MoraLimit <= 0 {
		opts.MoraLimit = 100
	}
	return &Assembler{
		seg:    seg,
		engine: engine,
		opts:   opts,
		tracer: otel.Tracer("github.com/loqalabs/loqa-kana/internal/assembler"),
	}
}

// Build segments req.Text and fills the phrases through the acoustic engine.
func (a *Assembler) Build(ctx context.Context, req Request) (res Result, err error) {
	ctx, span := a.tracer.Start(ctx, "assembler.build", trace.WithAttributes(attribute.Int("speaker", req.Speaker)))
	defer func() { endSpan(span, res, err) }()

	speed, err := a.speedScale(req.Speed)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return Result{Query: a.newQuery(speed)}, nil
	}
	groups, err := a.seg.Segment(ctx, req.Text)
	if err != nil {
		return Result{}, &CollaboratorError{Stage: StageSegment, Err: err}
	}
	phrases := flatten(groups)
	if len(phrases) == 0 {
		return Result{Query: a.newQuery(speed)}, nil
	}
	if err := query.Validate(phrases); err != nil {
		return Result{}, fmt.Errorf("segmenter output: %w", err)
	}
	return a.complete(ctx, phrases, nil, req.Speaker, speed)
}

// BuildFromKana decodes req.Kana instead of segmenting text. Lengths and
// pitches written explicitly in the notation replace the engine's values.
// Decoding failures are returned as *kana.ParseError.
func (a *Assembler) BuildFromKana(ctx context.Context, req Request) (res Result, err error) {
	ctx, span := a.tracer.Start(ctx, "assembler.build_from_kana", trace.WithAttributes(attribute.Int("speaker", req.Speaker)))
	defer func() { endSpan(span, res, err) }()

	speed, err := a.speedScale(req.Speed)
	if err != nil {
		return Result{}, err
	}
	decoded, err := kana.Decode(req.Kana)
	if err != nil {
		return Result{}, err
	}
	if len(decoded) == 0 {
		return Result{Query: a.newQuery(speed)}, nil
	}
	return a.complete(ctx, query.Clone(decoded), decoded, req.Speaker, speed)
}

func (a *Assembler) complete(ctx context.Context, phrases, explicit []query.AccentPhrase, speaker int, speed float64) (Result, error) {
	query.ResetPlaceholders(phrases)
	filled, err := a.fill(ctx, phrases, speaker)
	if err != nil {
		return Result{}, err
	}
	if explicit != nil {
		restoreExplicit(filled, explicit)
	}
	if a.opts.Upspeak {
		upspeak(filled)
	}
	kept, dropped := truncate(filled, a.opts.MoraLimit)

	q := a.newQuery(speed)
	q.AccentPhrases = kept
	kana.Rekana(&q)
	return Result{Query: q, Truncated: dropped > 0, DroppedPhrases: dropped}, nil
}

func (a *Assembler) fill(ctx context.Context, phrases []query.AccentPhrase, speaker int) ([]query.AccentPhrase, error) {
	withDurations, err := a.engine.FillDurations(ctx, query.Clone(phrases), speaker)
	if err != nil {
		return nil, &CollaboratorError{Stage: StageDurations, Err: err}
	}
	if err := sameShape(phrases, withDurations); err != nil {
		return nil, &CollaboratorError{Stage: StageDurations, Err: err}
	}
	withPitches, err := a.engine.FillPitches(ctx, withDurations, speaker)
	if err != nil {
		return nil, &CollaboratorError{Stage: StagePitches, Err: err}
	}
	if err := sameShape(phrases, withPitches); err != nil {
		return nil, &CollaboratorError{Stage: StagePitches, Err: err}
	}
	silenceUnvoiced(withPitches)
	return withPitches, nil
}

func (a *Assembler) speedScale(speed float64) (float64, error) {
	if speed < 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return 0, fmt.Errorf("speed %v: %w", speed, ErrInvalidRequest)
	}
	if speed == 0 {
		speed = 1
	}
	return speed * a.opts.BaseSpeedScale, nil
}

func (a *Assembler) newQuery(speed float64) query.AudioQuery {
	return query.AudioQuery{
		AccentPhrases:      []query.AccentPhrase{},
		SpeedScale:         speed,
		PitchScale:         0,
		IntonationScale:    1,
		VolumeScale:        a.opts.VolumeScale,
		PrePhonemeLength:   a.opts.PrePhonemeLength,
		PostPhonemeLength:  a.opts.PostPhonemeLength,
		OutputSamplingRate: a.engine.SampleRate(),
		OutputStereo:       false,
	}
}

func endSpan(span trace.Span, res Result, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(
			attribute.Int("phrases", len(res.Query.AccentPhrases)),
			attribute.Int("moras", query.MoraCount(res.Query.AccentPhrases)),
			attribute.Bool("truncated", res.Truncated),
		)
	}
	span.End()
}
