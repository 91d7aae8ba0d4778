package acoustic

import (
	"context"

	"github.com/loqalabs/loqa-kana/internal/mora"
	"github.com/loqalabs/loqa-kana/internal/query"
)

const (
	pauseLength = 0.3
	basePitch   = 5.6
)

type mockEngine struct {
	sampleRate int
	speakers   []int
}

// NewMockEngine returns a deterministic engine for development and tests. Its
// lengths come from a per-phoneme table and its pitches follow the Tokyo accent
// contour of each phrase; audio is a sine tone that tracks the pitch.
func NewMockEngine(sampleRate int, speakers []int) Engine {
	return &mockEngine{sampleRate: sampleRate, speakers: append([]int(nil), speakers...)}
}

func (m *mockEngine) SampleRate() int { return m.sampleRate }

func (m *mockEngine) Speakers() []int { return append([]int(nil), m.speakers...) }

func (m *mockEngine) FillDurations(ctx context.Context, phrases []query.AccentPhrase, speaker int) ([]query.AccentPhrase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkSpeaker(m.speakers, speaker); err != nil {
		return nil, err
	}
	scale := 1 + 0.03*float64(speaker%5)
	out := query.Clone(phrases)
	for i := range out {
		for j := range out[i].Moras {
			mo := &out[i].Moras[j]
			if mo.Consonant != nil {
				l := consonantLength(*mo.Consonant) * scale
				mo.ConsonantLength = &l
			}
			mo.VowelLength = vowelLength(mo.Vowel) * scale
		}
		if pm := out[i].PauseMora; pm != nil {
			pm.VowelLength = pauseLength
		}
	}
	return out, nil
}

func (m *mockEngine) FillPitches(ctx context.Context, phrases []query.AccentPhrase, speaker int) ([]query.AccentPhrase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkSpeaker(m.speakers, speaker); err != nil {
		return nil, err
	}
	base := basePitch + 0.15*float64(speaker%4)
	out := query.Clone(phrases)
	for i := range out {
		p := &out[i]
		for j := range p.Moras {
			mo := &p.Moras[j]
			if mo.Unvoiced() || mo.Vowel == mora.VowelCL {
				mo.Pitch = 0
				continue
			}
			pitch := base - 0.04*float64(i)
			if high(j, p.Accent) {
				pitch += 0.25
			} else {
				pitch -= 0.1
			}
			if j >= p.Accent {
				pitch -= 0.05 * float64(j-p.Accent+1)
			}
			mo.Pitch = pitch
		}
		if p.PauseMora != nil {
			p.PauseMora.Pitch = 0
		}
	}
	return out, nil
}

// high reports whether mora j (0-based) is high in a phrase accented on mora
// accent (1-based): the first mora is high only for accent 1, and every mora
// after the accent nucleus is low.
func high(j, accent int) bool {
	if j == 0 {
		return accent == 1
	}
	return j < accent
}

func consonantLength(c string) float64 {
	switch c {
	case "s", "sh", "ts", "ch", "h", "hy", "f":
		return 0.09
	case "k", "ky", "kw", "t", "ty", "p", "py":
		return 0.055
	case "y", "w", "r", "ry":
		return 0.04
	}
	return 0.05
}

func vowelLength(v string) float64 {
	switch {
	case v == mora.VowelN:
		return 0.08
	case v == mora.VowelCL:
		return 0.09
	case mora.IsDevoiced(v):
		return 0.06
	}
	return 0.11
}
