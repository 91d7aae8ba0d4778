// Command kana converts between accent phrases and kana notation and builds
// audio queries from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "kana",
		Short:         "Kana notation and audio query tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(encodeCmd())
	cmd.AddCommand(decodeCmd())
	cmd.AddCommand(queryCmd())
	cmd.AddCommand(sayCmd())
	cmd.AddCommand(journalCmd())
	cmd.AddCommand(nodesCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return cmd
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
