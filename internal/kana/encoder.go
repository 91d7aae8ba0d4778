// Package kana converts accent phrases to and from the kana notation: katakana
// glyphs with ' after the accented mora, _ before a devoiced mora, ？ closing an
// interrogative phrase, 、 between phrases split by a pause and / between
// phrases that are not.
package kana

import (
	"strings"

	"github.com/loqalabs/loqa-kana/internal/mora"
	"github.com/loqalabs/loqa-kana/internal/query"
)

const (
	accentMark        = '\''
	devoiceMark       = '_'
	pauseSeparator    = '、'
	noPauseSeparator  = '/'
	interrogativeMark = '？'
)

// Encode renders phrases in kana notation. It never fails: an accent outside
// [1, len(moras)] produces a phrase without a marker, which Decode rejects.
// Callers that need the guarantee run query.Validate first.
func Encode(phrases []query.AccentPhrase) string {
	var b strings.Builder
	for i, p := range phrases {
		for j, m := range p.Moras {
			if mora.IsDevoiced(m.Vowel) {
				b.WriteRune(devoiceMark)
			}
			b.WriteString(mora.GlyphFor(m.ConsonantOf(), mora.Voice(m.Vowel)))
			if j+1 == p.Accent {
				b.WriteRune(accentMark)
			}
		}
		if p.IsInterrogative {
			b.WriteRune(interrogativeMark)
		}
		if i == len(phrases)-1 {
			break
		}
		if p.PauseMora != nil {
			b.WriteRune(pauseSeparator)
		} else {
			b.WriteRune(noPauseSeparator)
		}
	}
	return b.String()
}

// Rekana re-derives q.Kana from its accent phrases.
func Rekana(q *query.AudioQuery) {
	q.Kana = Encode(q.AccentPhrases)
}
