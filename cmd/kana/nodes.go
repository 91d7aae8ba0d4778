package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/loqalabs/loqa-kana/internal/bus"
	"github.com/loqalabs/loqa-kana/internal/capability"
	"github.com/loqalabs/loqa-kana/internal/config"
	"github.com/loqalabs/loqa-kana/internal/protocol"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

func nodesCmd() *cobra.Command {
	var (
		servers []string
		speaker int
	)
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List synthesis nodes on the bus and their speakers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			client, err := bus.Connect(ctx, config.BusConfig{Servers: servers, ConnectTimeout: 2000}, slog.New(slog.DiscardHandler))
			if err != nil {
				return err
			}
			defer client.Close()

			raw, err := client.Request(ctx, protocol.SubjectNodeList, nil)
			if err != nil {
				return err
			}
			var nodes []protocol.NodeInfo
			if err := json.Unmarshal(raw, &nodes); err != nil {
				return fmt.Errorf("decode node list: %w", err)
			}
			if cmd.Flags().Changed("speaker") {
				nodes = slices.DeleteFunc(nodes, func(n protocol.NodeInfo) bool { return !capability.WithSpeaker(speaker)(n) })
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "NODE\tHEALTHY\tSPEAKERS\tRATE\tSEGMENTER\tACOUSTIC\tLAST SEEN")
			for _, n := range nodes {
				speakers := make([]string, len(n.Voice.Speakers))
				for i, s := range n.Voice.Speakers {
					speakers[i] = fmt.Sprint(s)
				}
				if len(speakers) == 0 {
					speakers = []string{"any"}
				}
				fmt.Fprintf(w, "%s\t%t\t%s\t%d\t%s\t%s\t%s\n", n.ID, n.Healthy, strings.Join(speakers, ","),
					n.Voice.SampleRate, n.Voice.Segmenter, n.Voice.Acoustic, n.LastSeen.Local().Format(time.TimeOnly))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&servers, "server", []string{nats.DefaultURL}, "NATS server URL")
	cmd.Flags().IntVar(&speaker, "speaker", 0, "only list healthy nodes serving this speaker")
	return cmd
}
