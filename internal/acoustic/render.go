package acoustic

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-kana/internal/query"
)

func (m *mockEngine) Synthesize(ctx context.Context, q query.AudioQuery, speaker int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkSpeaker(m.speakers, speaker); err != nil {
		return nil, err
	}
	rate := q.OutputSamplingRate
	if rate <= 0 {
		rate = m.sampleRate
	}
	channels := 1
	if q.OutputStereo {
		channels = 2
	}
	samples := renderTone(q, rate)
	return encodeWav(samples, rate, channels)
}

// renderTone produces mono 16-bit samples: silence for pauses, consonants and
// the pre/post padding, and a sine at each mora's pitch for voiced vowels.
func renderTone(q query.AudioQuery, rate int) []int {
	speed := q.SpeedScale
	if speed <= 0 {
		speed = 1
	}
	amplitude := math.Min(0.3*q.VolumeScale, 1) * math.MaxInt16
	mean := meanPitch(q.AccentPhrases)

	var (
		out   []int
		phase float64
	)
	silence := func(seconds float64) {
		n := int(math.Max(seconds, 0) / speed * float64(rate))
		out = append(out, make([]int, n)...)
		phase = 0
	}
	tone := func(seconds, pitch float64) {
		n := int(math.Max(seconds, 0) / speed * float64(rate))
		p := mean + (pitch-mean)*q.IntonationScale
		hz := math.Exp(p) * math.Pow(2, q.PitchScale)
		step := 2 * math.Pi * hz / float64(rate)
		for i := 0; i < n; i++ {
			out = append(out, int(amplitude*math.Sin(phase)))
			phase += step
		}
	}

	silence(q.PrePhonemeLength)
	for _, p := range q.AccentPhrases {
		for _, mo := range p.Moras {
			if mo.ConsonantLength != nil {
				silence(*mo.ConsonantLength)
			}
			if mo.Pitch > 0 {
				tone(mo.VowelLength, mo.Pitch)
			} else {
				silence(mo.VowelLength)
			}
		}
		if p.PauseMora != nil {
			silence(p.PauseMora.VowelLength)
		}
	}
	silence(q.PostPhonemeLength)
	return out
}

func meanPitch(phrases []query.AccentPhrase) float64 {
	var sum float64
	var n int
	for _, p := range phrases {
		for _, mo := range p.Moras {
			if mo.Pitch > 0 {
				sum += mo.Pitch
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func encodeWav(mono []int, sampleRate, channels int) ([]byte, error) {
	file, err := os.CreateTemp(os.TempDir(), "loqa_kana_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	data := mono
	if channels == 2 {
		data = make([]int, 0, len(mono)*2)
		for _, s := range mono {
			data = append(data, s, s)
		}
	}
	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	out, err := os.ReadFile(file.Name())
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	return out, nil
}
