package query

import "github.com/loqalabs/loqa-kana/internal/mora"

// Unfilled marks a length or pitch the acoustic engine has not produced yet.
const Unfilled = -1.0

// Mora is one timing unit of speech.
type Mora struct {
	Text            string   `json:"text"`
	Consonant       *string  `json:"consonant"`
	ConsonantLength *float64 `json:"consonant_length"`
	Vowel           string   `json:"vowel"`
	VowelLength     float64  `json:"vowel_length"`
	Pitch           float64  `json:"pitch"`
}

// AccentPhrase is a run of moras sharing one pitch accent.
type AccentPhrase struct {
	Moras           []Mora `json:"moras"`
	Accent          int    `json:"accent"`
	PauseMora       *Mora  `json:"pause_mora"`
	IsInterrogative bool   `json:"is_interrogative"`
}

// AudioQuery is the complete synthesis request for one utterance.
type AudioQuery struct {
	AccentPhrases      []AccentPhrase `json:"accent_phrases"`
	SpeedScale         float64        `json:"speedScale"`
	PitchScale         float64        `json:"pitchScale"`
	IntonationScale    float64        `json:"intonationScale"`
	VolumeScale        float64        `json:"volumeScale"`
	PrePhonemeLength   float64        `json:"prePhonemeLength"`
	PostPhonemeLength  float64        `json:"postPhonemeLength"`
	OutputSamplingRate int            `json:"outputSamplingRate"`
	OutputStereo       bool           `json:"outputStereo"`
	Kana               string         `json:"kana"`
}

// NewMora builds a mora with placeholder timing and pitch. The glyph comes from
// the lexicon; devoiced moras get pitch 0.
func NewMora(consonant, vowel string) Mora {
	m := Mora{
		Text:        mora.GlyphFor(consonant, vowel),
		Vowel:       vowel,
		VowelLength: Unfilled,
		Pitch:       Unfilled,
	}
	if consonant != "" {
		c := consonant
		l := Unfilled
		m.Consonant = &c
		m.ConsonantLength = &l
	}
	if mora.IsDevoiced(vowel) {
		m.Pitch = 0
	}
	return m
}

// NewPauseMora returns the silent mora placed after a phrase that ends with a
// breath pause.
func NewPauseMora() *Mora {
	return &Mora{
		Text:        mora.PauseText,
		Vowel:       mora.VowelPause,
		VowelLength: Unfilled,
		Pitch:       0,
	}
}

// ConsonantOf returns the consonant or "" when the mora has none.
func (m Mora) ConsonantOf() string {
	if m.Consonant == nil {
		return ""
	}
	return *m.Consonant
}

// Unvoiced reports whether the mora carries no pitch.
func (m Mora) Unvoiced() bool {
	return mora.IsDevoiced(m.Vowel) || m.Vowel == mora.VowelPause
}

// ResetPlaceholders clears every fillable value on the phrases in place.
func ResetPlaceholders(phrases []AccentPhrase) {
	for i := range phrases {
		for j := range phrases[i].Moras {
			resetMora(&phrases[i].Moras[j])
		}
		if pm := phrases[i].PauseMora; pm != nil {
			resetMora(pm)
		}
	}
}

func resetMora(m *Mora) {
	if m.Consonant != nil {
		l := Unfilled
		m.ConsonantLength = &l
	} else {
		m.ConsonantLength = nil
	}
	m.VowelLength = Unfilled
	if m.Unvoiced() {
		m.Pitch = 0
	} else {
		m.Pitch = Unfilled
	}
}

// Clone deep-copies phrases so the copy shares no memory with the input.
func Clone(phrases []AccentPhrase) []AccentPhrase {
	if phrases == nil {
		return nil
	}
	out := make([]AccentPhrase, len(phrases))
	for i, p := range phrases {
		out[i] = AccentPhrase{Accent: p.Accent, IsInterrogative: p.IsInterrogative}
		out[i].Moras = make([]Mora, len(p.Moras))
		for j, m := range p.Moras {
			out[i].Moras[j] = cloneMora(m)
		}
		if p.PauseMora != nil {
			pm := cloneMora(*p.PauseMora)
			out[i].PauseMora = &pm
		}
	}
	return out
}

func cloneMora(m Mora) Mora {
	if m.Consonant != nil {
		c := *m.Consonant
		m.Consonant = &c
	}
	if m.ConsonantLength != nil {
		l := *m.ConsonantLength
		m.ConsonantLength = &l
	}
	return m
}

// MoraCount returns the number of moras across phrases, pause moras excluded.
func MoraCount(phrases []AccentPhrase) int {
	n := 0
	for _, p := range phrases {
		n += len(p.Moras)
	}
	return n
}
