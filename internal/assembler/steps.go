package assembler

import (
	"fmt"

	"github.com/loqalabs/loqa-kana/internal/query"
	"github.com/loqalabs/loqa-kana/internal/segment"
)

// flatten turns breath groups into one phrase list. The last phrase of every
// group but the final one gets a pause mora.
func flatten(groups []segment.BreathGroup) []query.AccentPhrase {
	nonEmpty := groups[:0:0]
	for _, g := range groups {
		if len(g.Phrases) > 0 {
			nonEmpty = append(nonEmpty, g)
		}
	}
	var out []query.AccentPhrase
	for gi, g := range nonEmpty {
		for pi, p := range g.Phrases {
			phrase := query.AccentPhrase{
				Accent:          p.Accent,
				IsInterrogative: p.Interrogative,
				Moras:           make([]query.Mora, 0, len(p.Moras)),
			}
			for _, m := range p.Moras {
				phrase.Moras = append(phrase.Moras, query.NewMora(m.Consonant, m.Vowel))
			}
			if pi == len(g.Phrases)-1 && gi < len(nonEmpty)-1 {
				phrase.PauseMora = query.NewPauseMora()
			}
			out = append(out, phrase)
		}
	}
	return out
}

// sameShape checks that the engine kept phrases, accents, moras and pauses.
func sameShape(want, got []query.AccentPhrase) error {
	if len(want) != len(got) {
		return fmt.Errorf("%w: %d phrases in, %d out", errShapeMismatch, len(want), len(got))
	}
	for i := range want {
		w, g := want[i], got[i]
		if w.Accent != g.Accent || len(w.Moras) != len(g.Moras) || (w.PauseMora == nil) != (g.PauseMora == nil) {
			return fmt.Errorf("%w: phrase %d", errShapeMismatch, i)
		}
		for j := range w.Moras {
			if w.Moras[j].Vowel != g.Moras[j].Vowel || w.Moras[j].ConsonantOf() != g.Moras[j].ConsonantOf() {
				return fmt.Errorf("%w: phrase %d mora %d", errShapeMismatch, i, j)
			}
		}
	}
	return nil
}

func silenceUnvoiced(phrases []query.AccentPhrase) {
	for i := range phrases {
		for j := range phrases[i].Moras {
			if phrases[i].Moras[j].Unvoiced() {
				phrases[i].Moras[j].Pitch = 0
			}
		}
		if pm := phrases[i].PauseMora; pm != nil {
			pm.Pitch = 0
		}
	}
}

// restoreExplicit copies every value the kana notation stated over the
// engine's output.
func restoreExplicit(filled, explicit []query.AccentPhrase) {
	for i := range filled {
		for j := range filled[i].Moras {
			f, e := &filled[i].Moras[j], explicit[i].Moras[j]
			if e.ConsonantLength != nil && *e.ConsonantLength != query.Unfilled {
				l := *e.ConsonantLength
				f.ConsonantLength = &l
			}
			if e.VowelLength != query.Unfilled {
				f.VowelLength = e.VowelLength
			}
			if e.Pitch != query.Unfilled && !f.Unvoiced() {
				f.Pitch = e.Pitch
			}
		}
	}
}

// upspeak raises the last voiced mora of a final interrogative phrase.
func upspeak(phrases []query.AccentPhrase) {
	if len(phrases) == 0 || !phrases[len(phrases)-1].IsInterrogative {
		return
	}
	moras := phrases[len(phrases)-1].Moras
	for j := len(moras) - 1; j >= 0; j-- {
		if moras[j].Pitch > 0 {
			if moras[j].Pitch < upspeakCap {
				moras[j].Pitch = min(moras[j].Pitch+upspeakStep, upspeakCap)
			}
			return
		}
	}
}

// truncate keeps phrases while the running mora count stays within limit and
// removes the pause mora from the new final phrase.
func truncate(phrases []query.AccentPhrase, limit int) ([]query.AccentPhrase, int) {
	kept := phrases
	count := 0
	for i, p := range phrases {
		count += len(p.Moras)
		if count > limit {
			kept = phrases[:i]
			break
		}
	}
	if n := len(kept); n > 0 {
		kept[n-1].PauseMora = nil
	} else {
		kept = []query.AccentPhrase{}
	}
	return kept, len(phrases) - len(kept)
}
