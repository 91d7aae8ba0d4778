package protocol

import (
	"time"

	"github.com/loqalabs/loqa-kana/internal/query"
)

// SynthesisRequest asks for speech. When Kana is set it is decoded instead of
// segmenting Text.
type SynthesisRequest struct {
	SessionID string  `json:"session_id"`
	Text      string  `json:"text,omitempty"`
	Kana      string  `json:"kana,omitempty"`
	Speaker   *int    `json:"speaker,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	Target    string  `json:"target,omitempty"`
}

// AudioChunk carries a rendered WAV file for a session.
type AudioChunk struct {
	SessionID  string `json:"session_id"`
	Target     string `json:"target,omitempty"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Sequence   int    `json:"sequence"`
	WAV        []byte `json:"wav"`
	Final      bool   `json:"final"`
}

// SynthesisStatus reports the outcome of a SynthesisRequest.
type SynthesisStatus struct {
	SessionID     string     `json:"session_id"`
	Target        string     `json:"target,omitempty"`
	Completed     bool       `json:"completed"`
	Error         *ErrorInfo `json:"error,omitempty"`
	Kana          string     `json:"kana,omitempty"`
	Moras         int        `json:"moras"`
	SpeechSeconds float64    `json:"speech_seconds"`
	Truncated     bool       `json:"truncated,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}

// QueryReply answers a request on SubjectTTSQuery.
type QueryReply struct {
	SessionID string            `json:"session_id"`
	Query     *query.AudioQuery `json:"query,omitempty"`
	Truncated bool              `json:"truncated,omitempty"`
	Error     *ErrorInfo        `json:"error,omitempty"`
}

// ErrorInfo describes a failed request. Offset and Phrase are set for kana
// notation errors.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
	Offset  *int   `json:"offset,omitempty"`
	Phrase  *int   `json:"phrase,omitempty"`
}

// Voice describes what a node can synthesize.
type Voice struct {
	Speakers   []int  `json:"speakers"`
	SampleRate int    `json:"sample_rate"`
	Segmenter  string `json:"segmenter"`
	Acoustic   string `json:"acoustic"`
}

// NodeAnnouncement is published when a node joins the bus.
type NodeAnnouncement struct {
	NodeID    string    `json:"node_id"`
	Voice     Voice     `json:"voice"`
	Timestamp time.Time `json:"timestamp"`
}

type NodeHeartbeat struct {
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NodeInfo is one entry of the reply to SubjectNodeList.
type NodeInfo struct {
	ID       string    `json:"id"`
	Voice    Voice     `json:"voice"`
	LastSeen time.Time `json:"last_seen"`
	Healthy  bool      `json:"healthy"`
}

const (
	SubjectTTSRequest = "tts.request"
	SubjectTTSQuery   = "tts.query"
	SubjectTTSAudio   = "tts.audio"
	SubjectTTSDone    = "tts.done"

	SubjectNodeAnnounce  = "ctrl.node.announce"
	SubjectNodeHeartbeat = "ctrl.node.heartbeat" // suffixed with the node id
	SubjectNodeList      = "ctrl.node.list"
)

// Error kinds used in ErrorInfo.Kind.
const (
	ErrorKindMalformedPhrase   = "malformed_phrase"
	ErrorKindMalformedAccent   = "malformed_accent"
	ErrorKindUnrecognizedGlyph = "unrecognized_glyph"
	ErrorKindInvalidRequest    = "invalid_request"
	ErrorKindUnknownSpeaker    = "unknown_speaker"
	ErrorKindCollaborator      = "collaborator"
	ErrorKindTimeout           = "timeout"
	ErrorKindInternal          = "internal"
)
