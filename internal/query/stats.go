package query

// Stats summarises an AudioQuery for logging and the synthesis journal.
type Stats struct {
	Moras         int     `json:"moras"`
	SpeechSeconds float64 `json:"speech_seconds"`
}

// Stats computes the mora count and the expected speech length in seconds:
// padding plus the consonant and vowel lengths of every mora, over the speed
// scale. Pause moras and unfilled lengths do not count.
func (q AudioQuery) Stats() Stats {
	total := q.PrePhonemeLength + q.PostPhonemeLength
	for _, p := range q.AccentPhrases {
		for _, m := range p.Moras {
			if m.ConsonantLength != nil && *m.ConsonantLength > 0 {
				total += *m.ConsonantLength
			}
			if m.VowelLength > 0 {
				total += m.VowelLength
			}
		}
	}
	speed := q.SpeedScale
	if speed <= 0 {
		speed = 1
	}
	return Stats{Moras: MoraCount(q.AccentPhrases), SpeechSeconds: total / speed}
}
