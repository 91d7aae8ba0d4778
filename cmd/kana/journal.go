package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/loqalabs/loqa-kana/internal/config"
	"github.com/loqalabs/loqa-kana/internal/eventstore"
	"github.com/spf13/cobra"
)

func journalCmd() *cobra.Command {
	var (
		configPath string
		session    string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Summarize the synthesis journal or list one session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			store, err := eventstore.Open(cmd.Context(), cfg.EventStore, slog.New(slog.DiscardHandler))
			if err != nil {
				return err
			}
			defer store.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()

			if session == "" {
				sum, err := store.Summarize(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "requests\t%d\n", sum.Requests)
				fmt.Fprintf(w, "failures\t%d\n", sum.Failures)
				fmt.Fprintf(w, "moras\t%d\n", sum.Moras)
				fmt.Fprintf(w, "speech\t%.1fs\n", sum.SpeechSeconds)
				return nil
			}

			records, err := store.ListSession(cmd.Context(), session, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "TIME\tTARGET\tSOURCE\tSPEAKER\tMORAS\tSECONDS\tKANA\tERROR")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.2f\t%s\t%s\n",
					r.CreatedAt.Local().Format(time.DateTime), r.Target, r.Source, r.Speaker, r.Moras, r.SpeechSeconds, r.Kana, r.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to configuration file")
	cmd.Flags().StringVar(&session, "session", "", "list the records of one session")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to list")
	return cmd
}
