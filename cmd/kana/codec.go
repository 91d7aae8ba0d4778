package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/loqalabs/loqa-kana/internal/kana"
	"github.com/loqalabs/loqa-kana/internal/query"
	"github.com/spf13/cobra"
	"golang.org/x/text/width"
)

func encodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode [file]",
		Short: "Print the kana notation of accent phrases or an audio query read as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			phrases, err := parsePhrases(data)
			if err != nil {
				return err
			}
			if err := query.Validate(phrases); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), kana.Encode(phrases))
			return nil
		},
	}
}

func decodeCmd() *cobra.Command {
	var compact bool
	cmd := &cobra.Command{
		Use:   "decode [kana]",
		Short: "Decode kana notation into accent phrases",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) == 1 {
				text = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = strings.TrimRight(string(data), "\r\n")
			}
			phrases, err := kana.Decode(text)
			if err != nil {
				var perr *kana.ParseError
				if errors.As(err, &perr) {
					fmt.Fprint(cmd.ErrOrStderr(), caret(text, perr.Offset))
				}
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(phrases)
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "print JSON on one line")
	return cmd
}

func readInput(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(stdin)
}

// parsePhrases accepts either a bare phrase array or an audio query object.
func parsePhrases(data []byte) ([]query.AccentPhrase, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty input")
	}
	if trimmed[0] == '[' {
		var phrases []query.AccentPhrase
		if err := json.Unmarshal(trimmed, &phrases); err != nil {
			return nil, fmt.Errorf("parse accent phrases: %w", err)
		}
		return phrases, nil
	}
	var q query.AudioQuery
	if err := json.Unmarshal(trimmed, &q); err != nil {
		return nil, fmt.Errorf("parse audio query: %w", err)
	}
	return q.AccentPhrases, nil
}

// caret underlines the character at offset, counting wide glyphs as two
// columns.
func caret(text string, offset int) string {
	var b strings.Builder
	b.WriteString(text)
	b.WriteByte('\n')
	for i, r := range []rune(text) {
		if i >= offset {
			break
		}
		b.WriteString(strings.Repeat(" ", columns(r)))
	}
	b.WriteString("^\n")
	return b.String()
}

func columns(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	}
	return 1
}
