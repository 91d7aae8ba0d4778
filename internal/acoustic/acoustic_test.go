package acoustic

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-kana/internal/query"
)

func samplePhrases() []query.AccentPhrase {
	return []query.AccentPhrase{
		{
			Moras:     []query.Mora{query.NewMora("k", "a"), query.NewMora("sh", "I"), query.NewMora("", "N")},
			Accent:    1,
			PauseMora: query.NewPauseMora(),
		},
		{
			Moras:  []query.Mora{query.NewMora("", "a"), query.NewMora("m", "e"), query.NewMora("", "cl"), query.NewMora("t", "a")},
			Accent: 4,
		},
	}
}

func TestMockFillDurations(t *testing.T) {
	e := NewMockEngine(24000, []int{0, 1})
	in := samplePhrases()
	out, err := e.FillDurations(context.Background(), in, 0)
	if err != nil {
		t.Fatalf("fill durations: %v", err)
	}
	if in[0].Moras[0].VowelLength != query.Unfilled {
		t.Fatal("input phrases were modified")
	}
	for _, p := range out {
		for _, m := range p.Moras {
			if m.VowelLength <= 0 {
				t.Fatalf("expected vowel length, got %+v", m)
			}
			if m.Consonant != nil && *m.ConsonantLength <= 0 {
				t.Fatalf("expected consonant length, got %+v", m)
			}
		}
	}
	if out[0].PauseMora.VowelLength != pauseLength {
		t.Fatalf("unexpected pause length %v", out[0].PauseMora.VowelLength)
	}
}

func TestMockFillPitches(t *testing.T) {
	e := NewMockEngine(24000, nil)
	out, err := e.FillPitches(context.Background(), samplePhrases(), 2)
	if err != nil {
		t.Fatalf("fill pitches: %v", err)
	}
	first := out[0].Moras
	if first[1].Pitch != 0 {
		t.Fatalf("devoiced mora must have zero pitch, got %v", first[1].Pitch)
	}
	if first[0].Pitch <= first[2].Pitch {
		t.Fatalf("accent 1 phrase should fall after the first mora: %v %v", first[0].Pitch, first[2].Pitch)
	}
	second := out[1].Moras
	if second[0].Pitch >= second[1].Pitch {
		t.Fatalf("heiban phrase should rise after the first mora: %v %v", second[0].Pitch, second[1].Pitch)
	}
	if second[2].Pitch != 0 {
		t.Fatalf("geminate closure should be silent, got %v", second[2].Pitch)
	}
	if out[0].PauseMora.Pitch != 0 {
		t.Fatal("pause mora pitch must be zero")
	}
}

func TestMockUnknownSpeaker(t *testing.T) {
	e := NewMockEngine(24000, []int{0})
	if _, err := e.FillDurations(context.Background(), samplePhrases(), 9); !errors.Is(err, ErrUnknownSpeaker) {
		t.Fatalf("expected ErrUnknownSpeaker, got %v", err)
	}
	if _, err := e.Synthesize(context.Background(), query.AudioQuery{}, 9); !errors.Is(err, ErrUnknownSpeaker) {
		t.Fatalf("expected ErrUnknownSpeaker, got %v", err)
	}
}

func TestMockSynthesizeWav(t *testing.T) {
	e := NewMockEngine(16000, nil)
	ctx := context.Background()
	phrases, err := e.FillDurations(ctx, samplePhrases(), 0)
	if err != nil {
		t.Fatalf("fill durations: %v", err)
	}
	phrases, err = e.FillPitches(ctx, phrases, 0)
	if err != nil {
		t.Fatalf("fill pitches: %v", err)
	}
	q := query.AudioQuery{
		AccentPhrases:      phrases,
		SpeedScale:         1,
		IntonationScale:    1,
		VolumeScale:        1,
		PrePhonemeLength:   0.1,
		PostPhonemeLength:  0.1,
		OutputSamplingRate: 16000,
		OutputStereo:       true,
	}
	data, err := e.Synthesize(ctx, q, 0)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		t.Fatal("expected a valid wav file")
	}
	if dec.SampleRate != 16000 || dec.NumChans != 2 || dec.BitDepth != 16 {
		t.Fatalf("unexpected wav format rate=%d chans=%d depth=%d", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	if len(data) < 44+int(q.Stats().SpeechSeconds*16000)*4/2 {
		t.Fatalf("wav shorter than expected: %d bytes", len(data))
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "engine.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\ncat >/dev/null\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestExecEngineFill(t *testing.T) {
	script := writeScript(t, `echo '{"accent_phrases":[{"moras":[{"text":"ア","consonant":null,"consonant_length":null,"vowel":"a","vowel_length":0.2,"pitch":5.5}],"accent":1,"pause_mora":null}]}'`)
	e, err := NewExecEngine("/bin/sh "+script, 24000, nil)
	if err != nil {
		t.Fatalf("new exec engine: %v", err)
	}
	out, err := e.FillDurations(context.Background(), samplePhrases()[:1], 0)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if len(out) != 1 || out[0].Moras[0].VowelLength != 0.2 {
		t.Fatalf("unexpected response %+v", out)
	}
}

func TestExecEngineSynthesize(t *testing.T) {
	// "UklGRg==" is base64 for "RIFF".
	script := writeScript(t, `echo '{"wav_base64":"UklGRg=="}'`)
	e, err := NewExecEngine("/bin/sh "+script, 24000, nil)
	if err != nil {
		t.Fatalf("new exec engine: %v", err)
	}
	data, err := e.Synthesize(context.Background(), query.AudioQuery{}, 0)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(data) != "RIFF" {
		t.Fatalf("unexpected payload %q", data)
	}
}

func TestExecEngineErrors(t *testing.T) {
	if _, err := NewExecEngine("", 24000, nil); err == nil {
		t.Fatal("expected error for empty command")
	}
	script := writeScript(t, `echo '{"error":"model not loaded"}'`)
	e, err := NewExecEngine("/bin/sh "+script, 24000, nil)
	if err != nil {
		t.Fatalf("new exec engine: %v", err)
	}
	if _, err := e.FillPitches(context.Background(), samplePhrases(), 0); err == nil || err.Error() != "model not loaded" {
		t.Fatalf("expected engine error, got %v", err)
	}
	failing := writeScript(t, "exit 3\n")
	e, _ = NewExecEngine("/bin/sh "+failing, 24000, nil)
	if _, err := e.FillPitches(context.Background(), samplePhrases(), 0); err == nil {
		t.Fatal("expected error for failing command")
	}
}
