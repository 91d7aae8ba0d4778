package segment

import "strings"

// Breath group terminators after NFKC normalization.
const breathBreaks = "、。,.!?…\n"

func isBreathBreak(s string) bool {
	return s != "" && strings.Trim(s, breathBreaks) == ""
}

func isQuestion(s string) bool {
	return strings.ContainsRune(s, '?')
}

// groupBuilder collects phrases into breath groups. Phrases receive their
// accent and devoicing when their group closes.
type groupBuilder struct {
	groups  []BreathGroup
	current []PhraseSkeleton
}

func (b *groupBuilder) start(moras []MoraSkeleton) {
	if len(moras) == 0 {
		return
	}
	b.current = append(b.current, PhraseSkeleton{Moras: moras})
}

// extend appends moras to the open phrase, starting one when none is open.
func (b *groupBuilder) extend(moras []MoraSkeleton) {
	if len(b.current) == 0 {
		b.start(moras)
		return
	}
	last := &b.current[len(b.current)-1]
	last.Moras = append(last.Moras, moras...)
}

func (b *groupBuilder) close(question bool) {
	if len(b.current) == 0 {
		return
	}
	for i := range b.current {
		p := &b.current[i]
		devoice(p.Moras, i == len(b.current)-1)
		// Heiban: the pitch stays high through the final mora.
		p.Accent = len(p.Moras)
	}
	if question {
		b.current[len(b.current)-1].Interrogative = true
	}
	b.groups = append(b.groups, BreathGroup{Phrases: b.current})
	b.current = nil
}

func (b *groupBuilder) finish() []BreathGroup {
	b.close(false)
	return b.groups
}
