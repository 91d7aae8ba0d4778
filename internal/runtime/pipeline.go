package runtime

import (
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-kana/internal/acoustic"
	"github.com/loqalabs/loqa-kana/internal/assembler"
	"github.com/loqalabs/loqa-kana/internal/config"
	"github.com/loqalabs/loqa-kana/internal/segment"
)

// BuildPipeline constructs the configured segmenter and acoustic engine and
// the assembler over them. The daemon and the kana CLI share it.
func BuildPipeline(cfg config.Config, logger *slog.Logger) (*assembler.Assembler, acoustic.Engine, error) {
	seg, err := buildSegmenter(cfg.Segmenter, logger)
	if err != nil {
		return nil, nil, err
	}
	engine, err := buildEngine(cfg.Acoustic)
	if err != nil {
		return nil, nil, err
	}
	return assembler.New(seg, engine, assembler.OptionsFromConfig(cfg.Synthesis)), engine, nil
}

func buildSegmenter(cfg config.SegmenterConfig, logger *slog.Logger) (segment.Segmenter, error) {
	var (
		seg segment.Segmenter
		err error
	)
	switch cfg.Mode {
	case "kana":
		seg = segment.NewKana()
	case "kagome", "":
		seg, err = segment.NewKagome(logger)
		if err != nil {
			return nil, fmt.Errorf("init kagome segmenter: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown segmenter mode %q", cfg.Mode)
	}
	if cfg.CacheSize > 0 {
		return segment.NewCached(seg, cfg.CacheSize)
	}
	return seg, nil
}

func buildEngine(cfg config.AcousticConfig) (acoustic.Engine, error) {
	switch cfg.Mode {
	case "mock", "":
		return acoustic.NewMockEngine(cfg.SampleRate, cfg.Speakers), nil
	case "exec":
		return acoustic.NewExecEngine(cfg.Command, cfg.SampleRate, cfg.Speakers)
	}
	return nil, fmt.Errorf("unknown acoustic mode %q", cfg.Mode)
}
