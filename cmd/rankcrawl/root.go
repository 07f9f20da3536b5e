package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for rankcrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rankcrawl",
		Short: "Extract university rankings from rendered ranking sites",
		Long: `rankcrawl drives a headless browser through university ranking sites and
writes the rankings it finds to CSV.

It selects the requested ranking indicator on each page, follows the
pagination to the last page, and for categorized sources visits every
subject listed on the landing page. Runs are stored in a local history
database so that later runs can be compared.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewDedupCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewSourcesCmd())
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

// getVerboseFlag reads the persistent verbose flag from cmd or its root.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}
