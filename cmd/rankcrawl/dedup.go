package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/rankcrawl/internal/dataset"
)

// NewDedupCmd creates the dedup command.
func NewDedupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedup <file>",
		Short: "Remove duplicate rows from a rankings CSV",
		Long: `Dedup removes exact duplicate rows from a CSV written by 'rankcrawl crawl'.

A row is a duplicate when every column equals an earlier row. The first
occurrence is kept and the order of the remaining rows is preserved.
Running dedup on its own output changes nothing.

Examples:
  # De-duplicate in place
  rankcrawl dedup categorized_rankings.csv

  # Write the result to another file
  rankcrawl dedup categorized_rankings.csv -o unique.csv`,
		Args: cobra.ExactArgs(1),
		RunE: runDedupCmd,
	}

	cmd.Flags().StringP("output", "o", "",
		"Output file path (default: overwrite the input file)")

	return cmd
}

// runDedupCmd executes the dedup command.
func runDedupCmd(cmd *cobra.Command, args []string) error {
	in := args[0]
	out, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	if out == "" {
		out = in
	}

	stats, err := dataset.DedupCSVFile(cmd.Context(), in, out)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Read %d rows (%s layout), removed %d duplicates, wrote %d rows to %s\n",
		stats.Read, stats.Layout, stats.Removed(), stats.Written, out)
	return nil
}
