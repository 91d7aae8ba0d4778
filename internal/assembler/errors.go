package assembler

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest reports a request the assembler refuses before doing work.
var ErrInvalidRequest = errors.New("invalid synthesis request")

var errShapeMismatch = errors.New("acoustic engine changed the phrase structure")

// Stages at which a collaborator can fail.
const (
	StageSegment   = "segment"
	StageDurations = "durations"
	StagePitches   = "pitches"
)

// CollaboratorError wraps a failure of the segmenter or the acoustic engine.
type CollaboratorError struct {
	Stage string
	Err   error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }
