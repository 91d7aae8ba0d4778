package kana

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedPhrase   = errors.New("malformed accent phrase")
	ErrMalformedAccent   = errors.New("malformed accent")
	ErrUnrecognizedGlyph = errors.New("unrecognized glyph")
)

// Kind classifies a ParseError.
type Kind int

const (
	KindMalformedPhrase Kind = iota + 1
	KindMalformedAccent
	KindUnrecognizedGlyph
)

func (k Kind) String() string {
	switch k {
	case KindMalformedPhrase:
		return "malformed phrase"
	case KindMalformedAccent:
		return "malformed accent"
	case KindUnrecognizedGlyph:
		return "unrecognized glyph"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseError locates a decoding failure. Offset counts characters (runes) from
// the start of the input; Phrase is the zero-based index of the phrase being
// read.
type ParseError struct {
	Kind   Kind
	Phrase int
	Offset int
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("kana: %s at offset %d (phrase %d): %s", e.Kind, e.Offset, e.Phrase, e.Detail)
}

func (e *ParseError) Unwrap() error {
	switch e.Kind {
	case KindMalformedPhrase:
		return ErrMalformedPhrase
	case KindMalformedAccent:
		return ErrMalformedAccent
	case KindUnrecognizedGlyph:
		return ErrUnrecognizedGlyph
	}
	return nil
}
