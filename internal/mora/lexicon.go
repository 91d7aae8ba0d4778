package mora

import (
	"strings"
	"unicode/utf8"
)

const (
	// VowelN is the moraic nasal ン.
	VowelN = "N"
	// VowelCL is the geminate closure ッ.
	VowelCL = "cl"
	// VowelPause marks a pause mora.
	VowelPause = "pau"
	// PauseText is the glyph carried by pause moras.
	PauseText = "、"
)

// Entry is the phoneme identity of one katakana glyph.
type Entry struct {
	Consonant string
	Vowel     string
}

// Phonemes returns the concatenated consonant and vowel.
func (e Entry) Phonemes() string { return e.Consonant + e.Vowel }

var table = []struct {
	glyph string
	Entry
}{
	{"ヴォ", Entry{"v", "o"}}, {"ヴェ", Entry{"v", "e"}}, {"ヴィ", Entry{"v", "i"}}, {"ヴァ", Entry{"v", "a"}}, {"ヴ", Entry{"v", "u"}},
	{"ン", Entry{"", VowelN}},
	{"ワ", Entry{"w", "a"}}, {"ウォ", Entry{"w", "o"}}, {"ウェ", Entry{"w", "e"}}, {"ウィ", Entry{"w", "i"}},
	{"ロ", Entry{"r", "o"}}, {"レ", Entry{"r", "e"}}, {"ル", Entry{"r", "u"}}, {"リ", Entry{"r", "i"}}, {"ラ", Entry{"r", "a"}},
	{"リョ", Entry{"ry", "o"}}, {"リュ", Entry{"ry", "u"}}, {"リャ", Entry{"ry", "a"}}, {"リェ", Entry{"ry", "e"}},
	{"ヨ", Entry{"y", "o"}}, {"ユ", Entry{"y", "u"}}, {"ヤ", Entry{"y", "a"}}, {"イェ", Entry{"y", "e"}},
	{"モ", Entry{"m", "o"}}, {"メ", Entry{"m", "e"}}, {"ム", Entry{"m", "u"}}, {"ミ", Entry{"m", "i"}}, {"マ", Entry{"m", "a"}},
	{"ミョ", Entry{"my", "o"}}, {"ミュ", Entry{"my", "u"}}, {"ミャ", Entry{"my", "a"}}, {"ミェ", Entry{"my", "e"}},
	{"ポ", Entry{"p", "o"}}, {"ペ", Entry{"p", "e"}}, {"プ", Entry{"p", "u"}}, {"ピ", Entry{"p", "i"}}, {"パ", Entry{"p", "a"}},
	{"ピョ", Entry{"py", "o"}}, {"ピュ", Entry{"py", "u"}}, {"ピャ", Entry{"py", "a"}}, {"ピェ", Entry{"py", "e"}},
	{"ボ", Entry{"b", "o"}}, {"ベ", Entry{"b", "e"}}, {"ブ", Entry{"b", "u"}}, {"ビ", Entry{"b", "i"}}, {"バ", Entry{"b", "a"}},
	{"ビョ", Entry{"by", "o"}}, {"ビュ", Entry{"by", "u"}}, {"ビャ", Entry{"by", "a"}}, {"ビェ", Entry{"by", "e"}},
	{"ホ", Entry{"h", "o"}}, {"ヘ", Entry{"h", "e"}}, {"ヒ", Entry{"h", "i"}}, {"ハ", Entry{"h", "a"}},
	{"ヒョ", Entry{"hy", "o"}}, {"ヒュ", Entry{"hy", "u"}}, {"ヒャ", Entry{"hy", "a"}}, {"ヒェ", Entry{"hy", "e"}},
	{"フ", Entry{"f", "u"}}, {"フォ", Entry{"f", "o"}}, {"フェ", Entry{"f", "e"}}, {"フィ", Entry{"f", "i"}}, {"ファ", Entry{"f", "a"}},
	{"ノ", Entry{"n", "o"}}, {"ネ", Entry{"n", "e"}}, {"ヌ", Entry{"n", "u"}}, {"ニ", Entry{"n", "i"}}, {"ナ", Entry{"n", "a"}},
	{"ニョ", Entry{"ny", "o"}}, {"ニュ", Entry{"ny", "u"}}, {"ニャ", Entry{"ny", "a"}}, {"ニェ", Entry{"ny", "e"}},
	{"ド", Entry{"d", "o"}}, {"デ", Entry{"d", "e"}}, {"ドゥ", Entry{"d", "u"}}, {"ディ", Entry{"d", "i"}}, {"ダ", Entry{"d", "a"}},
	{"デョ", Entry{"dy", "o"}}, {"デュ", Entry{"dy", "u"}}, {"デャ", Entry{"dy", "a"}},
	{"ト", Entry{"t", "o"}}, {"テ", Entry{"t", "e"}}, {"トゥ", Entry{"t", "u"}}, {"ティ", Entry{"t", "i"}}, {"タ", Entry{"t", "a"}},
	{"テョ", Entry{"ty", "o"}}, {"テュ", Entry{"ty", "u"}}, {"テャ", Entry{"ty", "a"}},
	{"ツ", Entry{"ts", "u"}}, {"ツォ", Entry{"ts", "o"}}, {"ツェ", Entry{"ts", "e"}}, {"ツィ", Entry{"ts", "i"}}, {"ツァ", Entry{"ts", "a"}},
	{"ッ", Entry{"", VowelCL}},
	{"チ", Entry{"ch", "i"}}, {"チョ", Entry{"ch", "o"}}, {"チュ", Entry{"ch", "u"}}, {"チャ", Entry{"ch", "a"}}, {"チェ", Entry{"ch", "e"}},
	{"ゾ", Entry{"z", "o"}}, {"ゼ", Entry{"z", "e"}}, {"ズ", Entry{"z", "u"}}, {"ズィ", Entry{"z", "i"}}, {"ザ", Entry{"z", "a"}},
	{"ソ", Entry{"s", "o"}}, {"セ", Entry{"s", "e"}}, {"ス", Entry{"s", "u"}}, {"スィ", Entry{"s", "i"}}, {"サ", Entry{"s", "a"}},
	{"ジ", Entry{"j", "i"}}, {"ジョ", Entry{"j", "o"}}, {"ジュ", Entry{"j", "u"}}, {"ジャ", Entry{"j", "a"}}, {"ジェ", Entry{"j", "e"}},
	{"シ", Entry{"sh", "i"}}, {"ショ", Entry{"sh", "o"}}, {"シュ", Entry{"sh", "u"}}, {"シャ", Entry{"sh", "a"}}, {"シェ", Entry{"sh", "e"}},
	{"ゴ", Entry{"g", "o"}}, {"ゲ", Entry{"g", "e"}}, {"グ", Entry{"g", "u"}}, {"ギ", Entry{"g", "i"}}, {"ガ", Entry{"g", "a"}},
	{"ギョ", Entry{"gy", "o"}}, {"ギュ", Entry{"gy", "u"}}, {"ギャ", Entry{"gy", "a"}}, {"ギェ", Entry{"gy", "e"}},
	{"グヮ", Entry{"gw", "a"}},
	{"コ", Entry{"k", "o"}}, {"ケ", Entry{"k", "e"}}, {"ク", Entry{"k", "u"}}, {"キ", Entry{"k", "i"}}, {"カ", Entry{"k", "a"}},
	{"キョ", Entry{"ky", "o"}}, {"キュ", Entry{"ky", "u"}}, {"キャ", Entry{"ky", "a"}}, {"キェ", Entry{"ky", "e"}},
	{"クヮ", Entry{"kw", "a"}},
	{"オ", Entry{"", "o"}}, {"エ", Entry{"", "e"}}, {"ウ", Entry{"", "u"}}, {"イ", Entry{"", "i"}}, {"ア", Entry{"", "a"}},
}

var (
	byPhonemes  = make(map[string]string, len(table))
	byGlyph     = make(map[string]Entry, len(table))
	consonants  = make(map[string]struct{})
	maxGlyphLen int
)

func init() {
	for _, row := range table {
		byPhonemes[row.Phonemes()] = row.glyph
		byGlyph[row.glyph] = row.Entry
		if row.Consonant != "" {
			consonants[row.Consonant] = struct{}{}
		}
		if n := utf8.RuneCountInString(row.glyph); n > maxGlyphLen {
			maxGlyphLen = n
		}
	}
	byPhonemes[VowelPause] = PauseText
}

// Glyph returns the katakana glyph for a concatenated consonant+vowel string.
// Devoiced vowels are looked up through their voiced form. Strings the table
// does not know are returned unchanged, so Glyph never fails.
func Glyph(phonemes string) string {
	key := phonemes
	if n := len(key); n > 0 && IsDevoiced(key[n-1:]) {
		key = key[:n-1] + strings.ToLower(key[n-1:])
	}
	if glyph, ok := byPhonemes[key]; ok {
		return glyph
	}
	return phonemes
}

// GlyphFor is Glyph for a split consonant and vowel.
func GlyphFor(consonant, vowel string) string {
	return Glyph(consonant + vowel)
}

// Known reports whether consonant and vowel (voiced or devoiced) name a glyph
// in the table.
func Known(consonant, vowel string) bool {
	_, ok := byPhonemes[consonant+Voice(vowel)]
	return ok && vowel != VowelPause
}

// IsConsonant reports whether c is a consonant of the phoneme alphabet.
func IsConsonant(c string) bool {
	_, ok := consonants[c]
	return ok
}

// Match finds the longest glyph starting at runes[at]. size is the number of
// runes consumed; ok is false when no glyph matches.
func Match(runes []rune, at int) (glyph string, entry Entry, size int, ok bool) {
	for n := maxGlyphLen; n > 0; n-- {
		if at+n > len(runes) {
			continue
		}
		candidate := string(runes[at : at+n])
		if e, found := byGlyph[candidate]; found {
			return candidate, e, n, true
		}
	}
	return "", Entry{}, 0, false
}
