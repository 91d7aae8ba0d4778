package segment

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func phonemes(moras []MoraSkeleton) []string {
	out := make([]string, len(moras))
	for i, m := range moras {
		out[i] = m.Consonant + m.Vowel
	}
	return out
}

func TestReadingToMoras(t *testing.T) {
	cases := map[string][]string{
		"コンニチワ":  {"ko", "N", "ni", "chi", "wa"},
		"きょうは":   {"kyo", "u", "ha"},
		"ラーメン":   {"ra", "a", "me", "N"},
		"ヲヂ":     {"o", "ji"},
		"ガッコー":   {"ga", "cl", "ko", "o"},
		"ABCアイ":  {"a", "i"},
		"ーア":     {"a"},
		"ティーカップ": {"ti", "i", "ka", "cl", "pu"},
	}
	for in, want := range cases {
		if got := phonemes(ReadingToMoras(in)); !reflect.DeepEqual(got, want) {
			t.Fatalf("ReadingToMoras(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDevoice(t *testing.T) {
	moras := ReadingToMoras("シタ")
	devoice(moras, false)
	if moras[0].Vowel != "I" {
		t.Fatalf("expected devoiced shi, got %+v", moras)
	}

	moras = ReadingToMoras("デス")
	devoice(moras, true)
	if moras[1].Vowel != "U" {
		t.Fatalf("expected devoiced final su, got %+v", moras)
	}

	moras = ReadingToMoras("デス")
	devoice(moras, false)
	if moras[1].Vowel != "u" {
		t.Fatalf("non-final su must stay voiced, got %+v", moras)
	}

	moras = ReadingToMoras("キクキ")
	devoice(moras, false)
	if got := phonemes(moras); !reflect.DeepEqual(got, []string{"kI", "ku", "ki"}) {
		t.Fatalf("devoiced moras must not be adjacent, got %v", got)
	}
}

func TestKanaSegmenter(t *testing.T) {
	groups, err := NewKana().Segment(context.Background(), "きょうは いい てんき、 げんきですか？")
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 breath groups, got %d", len(groups))
	}
	if len(groups[0].Phrases) != 3 || len(groups[1].Phrases) != 1 {
		t.Fatalf("unexpected phrase counts %+v", groups)
	}
	first := groups[0].Phrases[0]
	if first.Accent != len(first.Moras) || first.Interrogative {
		t.Fatalf("unexpected first phrase %+v", first)
	}
	last := groups[1].Phrases[0]
	if !last.Interrogative {
		t.Fatal("expected interrogative final phrase")
	}
	if got := phonemes(last.Moras); !reflect.DeepEqual(got, []string{"ge", "N", "ki", "de", "sU", "ka"}) {
		t.Fatalf("unexpected moras %v", got)
	}
}

func TestKanaSegmenterEmpty(t *testing.T) {
	groups, err := NewKana().Segment(context.Background(), " 、。 ")
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("expected no groups, got %+v", groups)
	}
}

func TestKanaSegmenterHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewKana().Segment(ctx, "あ"); err == nil {
		t.Fatal("expected context error")
	}
}

func TestKagomeSegmenter(t *testing.T) {
	k, err := NewKagome(newLogger())
	if err != nil {
		t.Fatalf("new kagome: %v", err)
	}
	groups, err := k.Segment(context.Background(), "こんにちは、元気ですか？")
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 breath groups, got %+v", groups)
	}
	last := groups[1].Phrases[len(groups[1].Phrases)-1]
	if !last.Interrogative {
		t.Fatalf("expected interrogative phrase, got %+v", last)
	}
	for _, g := range groups {
		for _, p := range g.Phrases {
			if p.Accent < 1 || p.Accent > len(p.Moras) {
				t.Fatalf("accent out of range in %+v", p)
			}
		}
	}
	if got := phonemes(groups[0].Phrases[0].Moras); got[0] != "ko" || got[1] != "N" {
		t.Fatalf("unexpected reading %v", got)
	}
}

type countingSegmenter struct {
	calls int
}

func (c *countingSegmenter) Segment(ctx context.Context, text string) ([]BreathGroup, error) {
	c.calls++
	return []BreathGroup{{Phrases: []PhraseSkeleton{{Accent: 1, Moras: []MoraSkeleton{{Vowel: "a"}}}}}}, nil
}

func TestCachedSegmenter(t *testing.T) {
	next := &countingSegmenter{}
	c, err := NewCached(next, 4)
	if err != nil {
		t.Fatalf("new cached: %v", err)
	}
	first, _ := c.Segment(context.Background(), "あ")
	first[0].Phrases[0].Moras[0].Vowel = "o"

	second, err := c.Segment(context.Background(), "あ")
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if next.calls != 1 {
		t.Fatalf("expected one underlying call, got %d", next.calls)
	}
	if second[0].Phrases[0].Moras[0].Vowel != "a" {
		t.Fatal("cached result was mutated through a caller copy")
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 cached entry, got %d", c.Len())
	}
	if _, err := NewCached(next, 0); err == nil {
		t.Fatal("expected error for zero cache size")
	}
}
