package kana

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-kana/internal/mora"
	"github.com/loqalabs/loqa-kana/internal/query"
)

type state int

const (
	stateAccumulating state = iota
	stateAfterAccent
	stateClosed
)

type phraseBuilder struct {
	index         int
	moras         []query.Mora
	accent        int
	interrogative bool
	state         state
}

func (p *phraseBuilder) fail(kind Kind, offset int, format string, args ...any) error {
	return &ParseError{Kind: kind, Phrase: p.index, Offset: offset, Detail: fmt.Sprintf(format, args...)}
}

func (p *phraseBuilder) finish(offset int) (query.AccentPhrase, error) {
	if len(p.moras) == 0 {
		return query.AccentPhrase{}, p.fail(KindMalformedPhrase, offset, "empty accent phrase")
	}
	if p.accent == 0 {
		return query.AccentPhrase{}, p.fail(KindMalformedAccent, offset, "accent phrase has no accent marker")
	}
	out := query.AccentPhrase{Moras: p.moras, Accent: p.accent, IsInterrogative: p.interrogative}
	*p = phraseBuilder{index: p.index + 1}
	return out, nil
}

// Decode parses kana notation into accent phrases. Lengths and pitches the
// notation does not state are set to query.Unfilled. An empty string yields no
// phrases. Failures are *ParseError values.
//
// Besides glyphs, a mora may be written explicitly as
// {c=<consonant> v=<vowel> cl=<seconds> vl=<seconds> p=<log f0>}, where only v
// is required. Explicit values are kept on the returned moras.
func Decode(s string) ([]query.AccentPhrase, error) {
	if s == "" {
		return nil, nil
	}
	runes := []rune(s)
	var (
		phrases []query.AccentPhrase
		p       phraseBuilder
	)
	for i := 0; i < len(runes); {
		r := runes[i]
		if p.state == stateClosed && !isSeparator(r) {
			return nil, p.fail(KindMalformedPhrase, i-1, "interrogative mark must end the phrase")
		}
		switch {
		case isSeparator(r):
			phrase, err := p.finish(i)
			if err != nil {
				return nil, err
			}
			if r == pauseSeparator {
				phrase.PauseMora = query.NewPauseMora()
			}
			phrases = append(phrases, phrase)
			if i == len(runes)-1 {
				return nil, p.fail(KindMalformedPhrase, i, "empty accent phrase after separator")
			}
			i++
		case r == accentMark:
			if len(p.moras) == 0 {
				if !morasAhead(runes, i+1) {
					return nil, p.fail(KindMalformedPhrase, i, "accent phrase has no moras")
				}
				return nil, p.fail(KindMalformedAccent, i, "accent marker before any mora")
			}
			if p.state == stateAfterAccent {
				return nil, p.fail(KindMalformedAccent, i, "second accent marker in phrase")
			}
			p.accent = len(p.moras)
			p.state = stateAfterAccent
			i++
		case r == interrogativeMark || r == '?':
			if len(p.moras) == 0 {
				return nil, p.fail(KindMalformedPhrase, i, "interrogative mark without moras")
			}
			p.interrogative = true
			p.state = stateClosed
			i++
		case r == '{':
			m, size, err := decodeExplicit(runes, i)
			if err != nil {
				return nil, p.fail(KindUnrecognizedGlyph, i, "%v", err)
			}
			p.moras = append(p.moras, m)
			i += size
		case r == devoiceMark:
			if i+1 >= len(runes) {
				return nil, p.fail(KindUnrecognizedGlyph, i, "dangling devoicing marker")
			}
			_, e, size, ok := mora.Match(runes, i+1)
			if !ok || !mora.CanDevoice(e.Vowel) {
				return nil, p.fail(KindUnrecognizedGlyph, i, "devoicing marker before %q", string(runes[i+1]))
			}
			p.moras = append(p.moras, query.NewMora(e.Consonant, mora.Devoice(e.Vowel)))
			i += 1 + size
		default:
			_, e, size, ok := mora.Match(runes, i)
			if !ok {
				return nil, p.fail(KindUnrecognizedGlyph, i, "no mora matches %q", string(r))
			}
			p.moras = append(p.moras, query.NewMora(e.Consonant, e.Vowel))
			i += size
		}
	}
	phrase, err := p.finish(len(runes))
	if err != nil {
		return nil, err
	}
	return append(phrases, phrase), nil
}

// morasAhead reports whether the phrase continuing at runes[from] holds
// anything besides accent and interrogative marks.
func morasAhead(runes []rune, from int) bool {
	for _, r := range runes[from:] {
		switch {
		case isSeparator(r):
			return false
		case r == accentMark || r == interrogativeMark || r == '?':
		default:
			return true
		}
	}
	return false
}

func isSeparator(r rune) bool {
	return r == pauseSeparator || r == noPauseSeparator
}

// decodeExplicit reads a {...} mora starting at runes[at].
func decodeExplicit(runes []rune, at int) (query.Mora, int, error) {
	end := -1
	for j := at + 1; j < len(runes); j++ {
		if runes[j] == '}' {
			end = j
			break
		}
	}
	if end < 0 {
		return query.Mora{}, 0, fmt.Errorf("unterminated explicit mora")
	}
	var (
		consonant, vowel string
		cl, vl, pitch    *float64
		seenC, seenV     bool
	)
	seen := make(map[string]bool, 5)
	for _, field := range strings.Fields(string(runes[at+1 : end])) {
		key, value, ok := strings.Cut(field, "=")
		if !ok || value == "" {
			return query.Mora{}, 0, fmt.Errorf("explicit mora field %q is not key=value", field)
		}
		if seen[key] {
			return query.Mora{}, 0, fmt.Errorf("explicit mora repeats %q", key)
		}
		seen[key] = true
		switch key {
		case "c":
			consonant, seenC = value, true
		case "v":
			vowel, seenV = value, true
		case "cl", "vl", "p":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
				return query.Mora{}, 0, fmt.Errorf("explicit mora %s=%q is not a non-negative number", key, value)
			}
			switch key {
			case "cl":
				cl = &f
			case "vl":
				vl = &f
			default:
				pitch = &f
			}
		default:
			return query.Mora{}, 0, fmt.Errorf("explicit mora has unknown key %q", key)
		}
	}
	if !seenV {
		return query.Mora{}, 0, fmt.Errorf("explicit mora needs a vowel")
	}
	if seenC && !mora.IsConsonant(consonant) {
		return query.Mora{}, 0, fmt.Errorf("unknown consonant %q", consonant)
	}
	if !mora.Known(consonant, vowel) {
		return query.Mora{}, 0, fmt.Errorf("no mora for %q+%q", consonant, vowel)
	}
	if cl != nil && !seenC {
		return query.Mora{}, 0, fmt.Errorf("consonant length without consonant")
	}
	m := query.NewMora(consonant, vowel)
	if cl != nil {
		m.ConsonantLength = cl
	}
	if vl != nil {
		m.VowelLength = *vl
	}
	if pitch != nil {
		if m.Unvoiced() && *pitch != 0 {
			return query.Mora{}, 0, fmt.Errorf("devoiced mora cannot carry pitch %g", *pitch)
		}
		m.Pitch = *pitch
	}
	return m, end - at + 1, nil
}
