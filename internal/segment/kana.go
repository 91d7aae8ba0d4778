package segment

import (
	"context"
	"strings"
	"unicode"
)

// Kana segments text already written in kana. Whitespace separates accent
// phrases and punctuation closes breath groups; a question mark makes the
// last phrase of its group interrogative.
type Kana struct{}

func NewKana() *Kana { return &Kana{} }

func (k *Kana) Segment(ctx context.Context, text string) ([]BreathGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		b    groupBuilder
		word strings.Builder
	)
	flush := func() {
		if word.Len() == 0 {
			return
		}
		b.start(ReadingToMoras(word.String()))
		word.Reset()
	}
	for _, r := range Normalize(text) {
		switch {
		case strings.ContainsRune(breathBreaks, r):
			flush()
			b.close(r == '?')
		case unicode.IsSpace(r):
			flush()
		default:
			word.WriteRune(r)
		}
	}
	flush()
	return b.finish(), nil
}
