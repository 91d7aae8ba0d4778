package query

import (
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-kana/internal/mora"
)

// ErrInvalidPhrase reports accent phrases that break the data model invariants.
var ErrInvalidPhrase = errors.New("invalid accent phrase")

// Validate checks the structural invariants of phrases: every phrase has moras
// and an accent in range, consonant and consonant length are paired, unvoiced
// moras have zero pitch, and the final phrase carries no pause mora.
func Validate(phrases []AccentPhrase) error {
	for i, p := range phrases {
		if len(p.Moras) == 0 {
			return fmt.Errorf("phrase %d has no moras: %w", i, ErrInvalidPhrase)
		}
		if p.Accent < 1 || p.Accent > len(p.Moras) {
			return fmt.Errorf("phrase %d: accent %d outside [1,%d]: %w", i, p.Accent, len(p.Moras), ErrInvalidPhrase)
		}
		for j, m := range p.Moras {
			if err := validateMora(m); err != nil {
				return fmt.Errorf("phrase %d mora %d: %v: %w", i, j, err, ErrInvalidPhrase)
			}
		}
		if pm := p.PauseMora; pm != nil {
			if i == len(phrases)-1 {
				return fmt.Errorf("final phrase %d carries a pause mora: %w", i, ErrInvalidPhrase)
			}
			if pm.Vowel != mora.VowelPause || pm.Consonant != nil || pm.Pitch != 0 {
				return fmt.Errorf("phrase %d: malformed pause mora: %w", i, ErrInvalidPhrase)
			}
		}
	}
	return nil
}

func validateMora(m Mora) error {
	if !mora.IsVowel(m.Vowel) || m.Vowel == mora.VowelPause {
		return fmt.Errorf("unknown vowel %q", m.Vowel)
	}
	if (m.Consonant == nil) != (m.ConsonantLength == nil) {
		return errors.New("consonant and consonant_length must be set together")
	}
	if m.Consonant != nil && !mora.IsConsonant(*m.Consonant) {
		return fmt.Errorf("unknown consonant %q", *m.Consonant)
	}
	if m.Unvoiced() && m.Pitch != 0 {
		return fmt.Errorf("devoiced vowel %q has pitch %g", m.Vowel, m.Pitch)
	}
	return nil
}
