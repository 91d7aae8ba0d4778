package query

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func phrase(accent int, moras ...Mora) AccentPhrase {
	return AccentPhrase{Moras: moras, Accent: accent}
}

func TestNewMoraPlaceholders(t *testing.T) {
	m := NewMora("k", "a")
	if m.Text != "カ" || m.ConsonantOf() != "k" {
		t.Fatalf("unexpected mora %+v", m)
	}
	if *m.ConsonantLength != Unfilled || m.VowelLength != Unfilled || m.Pitch != Unfilled {
		t.Fatalf("expected placeholders, got %+v", m)
	}
	d := NewMora("sh", "I")
	if d.Pitch != 0 || d.Text != "シ" {
		t.Fatalf("devoiced mora should have zero pitch, got %+v", d)
	}
	v := NewMora("", "a")
	if v.Consonant != nil || v.ConsonantLength != nil {
		t.Fatalf("vowel-only mora should have no consonant, got %+v", v)
	}
}

func TestMoraJSONShape(t *testing.T) {
	data, err := json.Marshal(NewMora("", "o"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"consonant":null`) || !strings.Contains(s, `"consonant_length":null`) {
		t.Fatalf("expected null consonant fields, got %s", s)
	}
}

func TestValidate(t *testing.T) {
	ok := []AccentPhrase{phrase(2, NewMora("k", "a"), NewMora("", "i"))}
	if err := Validate(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := map[string][]AccentPhrase{
		"empty phrase":   {{Accent: 1}},
		"accent zero":    {phrase(0, NewMora("k", "a"))},
		"accent too big": {phrase(2, NewMora("k", "a"))},
		"final pause": {
			{Moras: []Mora{NewMora("k", "a")}, Accent: 1, PauseMora: NewPauseMora()},
		},
		"devoiced pitch": {phrase(1, Mora{Text: "ス", Consonant: strPtr("s"), ConsonantLength: floatPtr(0.1), Vowel: "U", Pitch: 5})},
		"unpaired":       {phrase(1, Mora{Text: "カ", Consonant: strPtr("k"), Vowel: "a"})},
	}
	for name, phrases := range cases {
		t.Run(name, func(t *testing.T) {
			err := Validate(phrases)
			if !errors.Is(err, ErrInvalidPhrase) {
				t.Fatalf("expected ErrInvalidPhrase, got %v", err)
			}
		})
	}
}

func TestResetPlaceholdersAndClone(t *testing.T) {
	m := NewMora("t", "o")
	*m.ConsonantLength = 0.05
	m.VowelLength = 0.1
	m.Pitch = 5.5
	pm := NewPauseMora()
	pm.VowelLength = 0.3
	phrases := []AccentPhrase{{Moras: []Mora{m}, Accent: 1, PauseMora: pm}, phrase(1, NewMora("", "a"))}

	cloned := Clone(phrases)
	ResetPlaceholders(phrases)

	if got := phrases[0].Moras[0]; *got.ConsonantLength != Unfilled || got.VowelLength != Unfilled || got.Pitch != Unfilled {
		t.Fatalf("expected reset mora, got %+v", got)
	}
	if phrases[0].PauseMora.VowelLength != Unfilled || phrases[0].PauseMora.Pitch != 0 {
		t.Fatalf("expected reset pause mora, got %+v", phrases[0].PauseMora)
	}
	if got := cloned[0].Moras[0]; *got.ConsonantLength != 0.05 || got.Pitch != 5.5 {
		t.Fatalf("clone shares memory with original: %+v", got)
	}
	if cloned[0].PauseMora.VowelLength != 0.3 {
		t.Fatal("clone pause mora was reset")
	}
}

func TestStats(t *testing.T) {
	m := NewMora("k", "a")
	*m.ConsonantLength = 0.1
	m.VowelLength = 0.2
	pm := NewPauseMora()
	pm.VowelLength = 0.3
	q := AudioQuery{
		AccentPhrases:     []AccentPhrase{{Moras: []Mora{m}, Accent: 1, PauseMora: pm}, phrase(1, NewMora("", "a"))},
		SpeedScale:        2,
		PrePhonemeLength:  0.1,
		PostPhonemeLength: 0.1,
	}
	st := q.Stats()
	if st.Moras != 2 {
		t.Fatalf("expected 2 moras, got %d", st.Moras)
	}
	// (0.1 + 0.1 + 0.1 + 0.2) / 2; the pause mora is left out.
	if math.Abs(st.SpeechSeconds-0.25) > 1e-9 {
		t.Fatalf("expected 0.25s, got %f", st.SpeechSeconds)
	}
}

func strPtr(s string) *string      { return &s }
func floatPtr(f float64) *float64 { return &f }
