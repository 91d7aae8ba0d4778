package segment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Kagome segments mixed kanji and kana text with a morphological analyzer.
// Content words open a new accent phrase; particles, auxiliaries, suffixes and
// dependent words attach to the phrase before them.
type Kagome struct {
	tok    *tokenizer.Tokenizer
	logger *slog.Logger
}

func NewKagome(logger *slog.Logger) (*Kagome, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("create kagome tokenizer: %w", err)
	}
	return &Kagome{tok: t, logger: logger.With(slog.String("component", "segmenter"))}, nil
}

func (k *Kagome) Segment(ctx context.Context, text string) ([]BreathGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		b          groupBuilder
		afterAffix bool
	)
	for _, token := range k.tok.Tokenize(Normalize(text)) {
		surface := strings.TrimSpace(token.Surface)
		if surface == "" {
			continue
		}
		if isBreathBreak(surface) {
			b.close(isQuestion(surface))
			afterAffix = false
			continue
		}
		pos := token.POS()
		if len(pos) > 0 && pos[0] == "記号" {
			continue
		}
		moras := ReadingToMoras(pronunciation(token))
		if len(moras) == 0 {
			k.logger.Debug("skipping token without reading", slog.String("surface", surface))
			continue
		}
		if afterAffix || attaches(pos) {
			b.extend(moras)
		} else {
			b.start(moras)
		}
		afterAffix = len(pos) > 0 && pos[0] == "接頭詞"
	}
	return b.finish(), nil
}

func pronunciation(token tokenizer.Token) string {
	if p, ok := token.Pronunciation(); ok && p != "*" && p != "" {
		return p
	}
	if r, ok := token.Reading(); ok && r != "*" && r != "" {
		return r
	}
	if IsKana(token.Surface) {
		return token.Surface
	}
	return ""
}

func attaches(pos []string) bool {
	if len(pos) == 0 {
		return false
	}
	switch pos[0] {
	case "助詞", "助動詞":
		return true
	}
	if len(pos) > 1 {
		switch pos[1] {
		case "接尾", "非自立":
			return true
		}
	}
	return false
}
