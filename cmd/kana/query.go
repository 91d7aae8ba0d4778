package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/loqalabs/loqa-kana/internal/assembler"
	"github.com/loqalabs/loqa-kana/internal/config"
	"github.com/loqalabs/loqa-kana/internal/runtime"
	"github.com/spf13/cobra"
)

func queryCmd() *cobra.Command {
	var (
		configPath string
		fromKana   bool
		segmenter  string
		speaker    int
		speed      float64
		upspeak    bool
	)
	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Build an audio query from text or kana notation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("segmenter") {
				cfg.Segmenter.Mode = segmenter
			}
			if cmd.Flags().Changed("upspeak") {
				cfg.Synthesis.Upspeak = upspeak
			}
			if !cmd.Flags().Changed("speaker") {
				speaker = cfg.Synthesis.DefaultSpeaker
			}

			input := ""
			if len(args) == 1 {
				input = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				input = strings.TrimRight(string(data), "\r\n")
			}

			asm, err := newAssembler(cfg)
			if err != nil {
				return err
			}
			req := assembler.Request{Text: input, Kana: input, Speaker: speaker, Speed: speed}
			var res assembler.Result
			if fromKana {
				res, err = asm.BuildFromKana(cmd.Context(), req)
			} else {
				res, err = asm.Build(cmd.Context(), req)
			}
			if err != nil {
				return err
			}
			if res.Truncated {
				fmt.Fprintf(cmd.ErrOrStderr(), "mora limit %d reached, %d phrases dropped\n", cfg.Synthesis.MoraLimit, res.DroppedPhrases)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res.Query)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to configuration file")
	cmd.Flags().BoolVar(&fromKana, "kana", false, "treat input as kana notation")
	cmd.Flags().StringVar(&segmenter, "segmenter", "kagome", "text segmenter: kagome or kana")
	cmd.Flags().IntVar(&speaker, "speaker", 0, "speaker id")
	cmd.Flags().Float64Var(&speed, "speed", 0, "speed multiplier (0 means normal)")
	cmd.Flags().BoolVar(&upspeak, "upspeak", false, "raise the end of interrogative sentences")
	return cmd
}

func newAssembler(cfg config.Config) (*assembler.Assembler, error) {
	asm, _, err := runtime.BuildPipeline(cfg, slog.New(slog.DiscardHandler))
	return asm, err
}
