// Package segment splits Japanese text into breath groups of accent phrase
// skeletons: mora identities and accent positions without timing or pitch.
package segment

import "context"

// MoraSkeleton names the phonemes of one mora.
type MoraSkeleton struct {
	Consonant string
	Vowel     string
}

// PhraseSkeleton is an accent phrase before the acoustic engine fills it.
type PhraseSkeleton struct {
	Accent        int
	Moras         []MoraSkeleton
	Interrogative bool
}

// BreathGroup is a run of phrases spoken without a pause.
type BreathGroup struct {
	Phrases []PhraseSkeleton
}

// Segmenter turns text into breath groups.
type Segmenter interface {
	Segment(ctx context.Context, text string) ([]BreathGroup, error)
}

func cloneGroups(groups []BreathGroup) []BreathGroup {
	out := make([]BreathGroup, len(groups))
	for i, g := range groups {
		phrases := make([]PhraseSkeleton, len(g.Phrases))
		for j, p := range g.Phrases {
			p.Moras = append([]MoraSkeleton(nil), p.Moras...)
			phrases[j] = p
		}
		out[i] = BreathGroup{Phrases: phrases}
	}
	return out
}
