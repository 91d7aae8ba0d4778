package segment

import (
	"strings"
	"unicode"

	"github.com/loqalabs/loqa-kana/internal/mora"
	"golang.org/x/text/unicode/norm"
)

const longVowelMark = 'ー'

// Glyphs that readings use but the lexicon spells differently.
var readingAliases = map[rune]MoraSkeleton{
	'ヲ': {"", "o"},
	'ヰ': {"", "i"},
	'ヱ': {"", "e"},
	'ヂ': {"j", "i"},
	'ヅ': {"z", "u"},
	'ァ': {"", "a"},
	'ィ': {"", "i"},
	'ゥ': {"", "u"},
	'ェ': {"", "e"},
	'ォ': {"", "o"},
	'ャ': {"y", "a"},
	'ュ': {"y", "u"},
	'ョ': {"y", "o"},
	'ヮ': {"w", "a"},
	'ヵ': {"k", "a"},
	'ヶ': {"k", "e"},
}

// Normalize applies NFKC so half-width katakana, full-width ASCII and
// compatibility punctuation reach the segmenters in one form.
func Normalize(text string) string {
	return norm.NFKC.String(text)
}

// ToKatakana maps hiragana to katakana and leaves every other rune alone.
func ToKatakana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'ぁ' && r <= 'ゖ' {
			return r + ('ァ' - 'ぁ')
		}
		return r
	}, s)
}

// IsKana reports whether s is made only of hiragana, katakana and the long
// vowel mark.
func IsKana(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.In(r, unicode.Hiragana, unicode.Katakana) && r != longVowelMark {
			return false
		}
	}
	return true
}

// ReadingToMoras converts a kana reading into moras. The long vowel mark
// repeats the previous vowel; runes with no reading are skipped.
func ReadingToMoras(reading string) []MoraSkeleton {
	runes := []rune(ToKatakana(reading))
	out := make([]MoraSkeleton, 0, len(runes))
	for i := 0; i < len(runes); {
		r := runes[i]
		if r == longVowelMark {
			if n := len(out); n > 0 && mora.CanDevoice(out[n-1].Vowel) {
				out = append(out, MoraSkeleton{Vowel: out[n-1].Vowel})
			}
			i++
			continue
		}
		if _, e, size, ok := mora.Match(runes, i); ok {
			out = append(out, MoraSkeleton{Consonant: e.Consonant, Vowel: e.Vowel})
			i += size
			continue
		}
		if alias, ok := readingAliases[r]; ok {
			out = append(out, alias)
		}
		i++
	}
	return out
}

// devoice marks close vowels i and u as devoiced when they sit between two
// voiceless consonants, and the final su of desu/masu at the end of a breath
// group. Two devoiced moras never follow each other.
func devoice(moras []MoraSkeleton, groupFinal bool) {
	for i := range moras {
		m := &moras[i]
		if m.Vowel != "i" && m.Vowel != "u" {
			continue
		}
		if i > 0 && mora.IsDevoiced(moras[i-1].Vowel) {
			continue
		}
		if !mora.IsVoiceless(m.Consonant) {
			continue
		}
		last := i == len(moras)-1
		switch {
		case !last && mora.IsVoiceless(moras[i+1].Consonant) && moras[i+1].Consonant != "":
			m.Vowel = mora.Devoice(m.Vowel)
		case last && groupFinal && i > 0 && m.Consonant == "s" && m.Vowel == "u" &&
			(moras[i-1] == MoraSkeleton{"d", "e"} || moras[i-1] == MoraSkeleton{"m", "a"}):
			m.Vowel = mora.Devoice(m.Vowel)
		}
	}
}
