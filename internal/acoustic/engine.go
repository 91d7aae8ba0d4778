// Package acoustic holds the engines that fill accent phrases with timing and
// pitch and render an AudioQuery to a waveform.
package acoustic

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/loqalabs/loqa-kana/internal/query"
)

// ErrUnknownSpeaker is returned when an engine has no voice for the speaker id.
var ErrUnknownSpeaker = errors.New("unknown speaker")

// Filler assigns consonant/vowel lengths and pitches. Implementations return
// new phrases with the same shape as the input and never modify the input.
type Filler interface {
	FillDurations(ctx context.Context, phrases []query.AccentPhrase, speaker int) ([]query.AccentPhrase, error)
	FillPitches(ctx context.Context, phrases []query.AccentPhrase, speaker int) ([]query.AccentPhrase, error)
}

// Synthesizer renders a filled AudioQuery to WAV bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, q query.AudioQuery, speaker int) ([]byte, error)
}

// Engine is the full acoustic collaborator.
type Engine interface {
	Filler
	Synthesizer
	SampleRate() int
	Speakers() []int
}

func checkSpeaker(speakers []int, speaker int) error {
	if len(speakers) == 0 || slices.Contains(speakers, speaker) {
		return nil
	}
	return fmt.Errorf("speaker %d: %w", speaker, ErrUnknownSpeaker)
}
