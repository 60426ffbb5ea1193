package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for prefixscan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefixscan",
		Short: "Extract every word behind an autocomplete API",
		Long: `prefixscan extracts the full word list of an autocomplete API.

It queries short prefixes first and only expands a prefix when the API
returned a full page of suggestions, so the word list is complete while
the number of API calls stays small. Rate-limit responses are retried
with backoff.

The built-in variants v1, v2 and v3 target the public test API; more
variants can be defined in a .prefixscan configuration file.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
