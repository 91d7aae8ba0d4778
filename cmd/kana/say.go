package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-kana/internal/bus"
	"github.com/loqalabs/loqa-kana/internal/config"
	"github.com/loqalabs/loqa-kana/internal/protocol"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

func sayCmd() *cobra.Command {
	var (
		servers []string
		out     string
		asKana  bool
		speaker int
		speed   float64
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "say <text>",
		Short: "Ask a running loqa-kana daemon to synthesize speech and save the WAV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client, err := bus.Connect(ctx, config.BusConfig{Servers: servers, ConnectTimeout: 2000}, slog.New(slog.DiscardHandler))
			if err != nil {
				return err
			}
			defer client.Close()

			req := protocol.SynthesisRequest{SessionID: uuid.NewString(), Speed: speed}
			if asKana {
				req.Kana = args[0]
			} else {
				req.Text = args[0]
			}
			if cmd.Flags().Changed("speaker") {
				req.Speaker = &speaker
			}

			audio := make(chan *nats.Msg, 4)
			done := make(chan *nats.Msg, 4)
			for subject, ch := range map[string]chan *nats.Msg{protocol.SubjectTTSAudio: audio, protocol.SubjectTTSDone: done} {
				sub, err := client.Conn().ChanSubscribe(subject, ch)
				if err != nil {
					return err
				}
				defer sub.Unsubscribe()
			}
			data, err := json.Marshal(req)
			if err != nil {
				return err
			}
			if err := client.Conn().Publish(protocol.SubjectTTSRequest, data); err != nil {
				return err
			}

			var wav []byte
			for {
				select {
				case msg := <-audio:
					var chunk protocol.AudioChunk
					if json.Unmarshal(msg.Data, &chunk) == nil && chunk.SessionID == req.SessionID {
						wav = append(wav, chunk.WAV...)
					}
				case msg := <-done:
					var status protocol.SynthesisStatus
					if json.Unmarshal(msg.Data, &status) != nil || status.SessionID != req.SessionID {
						continue
					}
					if status.Error != nil {
						return fmt.Errorf("%s: %s", status.Error.Kind, status.Error.Message)
					}
					// Audio is published before the status, but the two
					// subscriptions are delivered independently.
					if len(wav) == 0 {
						select {
						case msg := <-audio:
							var chunk protocol.AudioChunk
							if json.Unmarshal(msg.Data, &chunk) == nil && chunk.SessionID == req.SessionID {
								wav = append(wav, chunk.WAV...)
							}
						case <-ctx.Done():
							return ctx.Err()
						}
					}
					if err := os.WriteFile(out, wav, 0o644); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d moras\t%.2fs\t%s\n", status.Kana, status.Moras, status.SpeechSeconds, out)
					return nil
				case <-ctx.Done():
					if errors.Is(ctx.Err(), context.DeadlineExceeded) {
						return fmt.Errorf("no reply within %s", timeout)
					}
					return ctx.Err()
				}
			}
		},
	}
	cmd.Flags().StringSliceVar(&servers, "server", []string{nats.DefaultURL}, "NATS server URL")
	cmd.Flags().StringVarP(&out, "out", "o", "out.wav", "output WAV path")
	cmd.Flags().BoolVar(&asKana, "kana", false, "treat the argument as kana notation")
	cmd.Flags().IntVar(&speaker, "speaker", 0, "speaker id (daemon default when unset)")
	cmd.Flags().Float64Var(&speed, "speed", 0, "speed multiplier (0 means normal)")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "how long to wait for the daemon")
	return cmd
}
