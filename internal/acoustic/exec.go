package acoustic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/loqalabs/loqa-kana/internal/query"
	"github.com/mattn/go-shellwords"
)

const (
	opDurations = "durations"
	opPitches   = "pitches"
	opSynthesis = "synthesis"
)

type execEngine struct {
	cmd        []string
	sampleRate int
	speakers   []int
	mu         sync.Mutex
}

type execRequest struct {
	Op            string               `json:"op"`
	Speaker       int                  `json:"speaker"`
	SampleRate    int                  `json:"sample_rate"`
	AccentPhrases []query.AccentPhrase `json:"accent_phrases,omitempty"`
	Query         *query.AudioQuery    `json:"query,omitempty"`
}

type execResponse struct {
	AccentPhrases []query.AccentPhrase `json:"accent_phrases"`
	WavBase64     string               `json:"wav_base64"`
	Error         string               `json:"error"`
}

// NewExecEngine runs an external program once per call. The program reads one
// JSON request on stdin and writes one JSON response on stdout.
func NewExecEngine(command string, sampleRate int, speakers []int) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse acoustic command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("acoustic command empty")
	}
	return &execEngine{cmd: args, sampleRate: sampleRate, speakers: append([]int(nil), speakers...)}, nil
}

func (e *execEngine) SampleRate() int { return e.sampleRate }

func (e *execEngine) Speakers() []int { return append([]int(nil), e.speakers...) }

func (e *execEngine) FillDurations(ctx context.Context, phrases []query.AccentPhrase, speaker int) ([]query.AccentPhrase, error) {
	return e.fill(ctx, opDurations, phrases, speaker)
}

func (e *execEngine) FillPitches(ctx context.Context, phrases []query.AccentPhrase, speaker int) ([]query.AccentPhrase, error) {
	return e.fill(ctx, opPitches, phrases, speaker)
}

func (e *execEngine) fill(ctx context.Context, op string, phrases []query.AccentPhrase, speaker int) ([]query.AccentPhrase, error) {
	if err := checkSpeaker(e.speakers, speaker); err != nil {
		return nil, err
	}
	resp, err := e.call(ctx, execRequest{Op: op, Speaker: speaker, SampleRate: e.sampleRate, AccentPhrases: phrases})
	if err != nil {
		return nil, err
	}
	return resp.AccentPhrases, nil
}

func (e *execEngine) Synthesize(ctx context.Context, q query.AudioQuery, speaker int) ([]byte, error) {
	if err := checkSpeaker(e.speakers, speaker); err != nil {
		return nil, err
	}
	resp, err := e.call(ctx, execRequest{Op: opSynthesis, Speaker: speaker, SampleRate: e.sampleRate, Query: &q})
	if err != nil {
		return nil, err
	}
	wavBytes, err := base64.StdEncoding.DecodeString(resp.WavBase64)
	if err != nil {
		return nil, fmt.Errorf("decode acoustic wav: %w", err)
	}
	return wavBytes, nil
}

func (e *execEngine) call(ctx context.Context, req execRequest) (execResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		return execResponse{}, err
	}
	command := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	command.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return execResponse{}, fmt.Errorf("acoustic command %s failed: %w: %s", req.Op, err, stderr.String())
	}
	var resp execResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return execResponse{}, fmt.Errorf("decode acoustic response: %w", err)
	}
	if resp.Error != "" {
		return execResponse{}, errors.New(resp.Error)
	}
	return resp, nil
}
