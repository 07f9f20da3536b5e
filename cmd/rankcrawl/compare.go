package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/nao1215/rankcrawl/internal/config"
	"github.com/nao1215/rankcrawl/internal/database"
	"github.com/nao1215/rankcrawl/internal/dataset"
	"github.com/nao1215/rankcrawl/internal/report"
)

// NewCompareCmd creates the compare command.
// This command compares stored runs of a source from the history database.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [source]",
		Short: "Compare the rankings of two stored runs",
		Long: `Compare shows how the rankings of a source changed between two runs.

Every crawl is stored in the history database (unless --no-db was used).
By default the latest run is compared with the one before it. Entries are
matched by category, subcategory and university name, and reported as
added, removed or moved.

Examples:
  # Compare the latest two runs of a source
  rankcrawl compare gras-2024

  # List the stored runs of a source
  rankcrawl compare --list gras-2024

  # Compare the latest run with a specific older run
  rankcrawl compare --with-run-id 3 gras-2024

  # Output the comparison as Markdown
  rankcrawl compare --markdown arwu-2024

  # List all sources with stored runs
  rankcrawl compare --list-sources

  # Delete a stored run
  rankcrawl compare --delete-run 3`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	// History flags
	cmd.Flags().BoolP("list", "l", false,
		"List the stored runs of the specified source")
	cmd.Flags().BoolP("list-sources", "L", false,
		"List all sources with stored runs")
	cmd.Flags().Int64("delete-run", 0,
		"Delete the stored run with this ID")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	// Comparison target flags
	cmd.Flags().Int64P("with-run-id", "i", 0,
		"Compare the latest run with this run ID (use --list to see IDs)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output the comparison in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output the comparison in Markdown format")

	return cmd
}

// compareOptions holds the flags of one compare invocation.
type compareOptions struct {
	source      string
	list        bool
	listSources bool
	deleteRun   int64
	withRunID   int64
	json        bool
	markdown    bool
	dbDir       string
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseCompareFlags(cmd, args)
	if err != nil {
		return err
	}

	// Validate before opening the database so a bad invocation does not
	// create an empty one.
	if err := opts.validate(); err != nil {
		return err
	}

	db, err := database.Open(opts.dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case opts.listSources:
		return listSources(ctx, out, db)
	case opts.deleteRun > 0:
		if err := db.DeleteRun(ctx, opts.deleteRun); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted run %d\n", opts.deleteRun)
		return nil
	case opts.list:
		return listRunHistory(ctx, out, db, opts.source)
	default:
		return runComparison(ctx, out, db, opts)
	}
}

func parseCompareFlags(cmd *cobra.Command, args []string) (compareOptions, error) {
	var (
		opts compareOptions
		err  error
	)
	flags := cmd.Flags()

	if opts.list, err = flags.GetBool("list"); err != nil {
		return opts, err
	}
	if opts.listSources, err = flags.GetBool("list-sources"); err != nil {
		return opts, err
	}
	if opts.deleteRun, err = flags.GetInt64("delete-run"); err != nil {
		return opts, err
	}
	if opts.withRunID, err = flags.GetInt64("with-run-id"); err != nil {
		return opts, err
	}
	if opts.json, err = flags.GetBool("json"); err != nil {
		return opts, err
	}
	if opts.markdown, err = flags.GetBool("markdown"); err != nil {
		return opts, err
	}
	if opts.dbDir, err = flags.GetString("db-dir"); err != nil {
		return opts, err
	}
	if opts.dbDir == "" {
		opts.dbDir = config.XDGDataDir()
	}
	if len(args) > 0 {
		opts.source = args[0]
	}
	return opts, nil
}

func (o compareOptions) validate() error {
	if o.json && o.markdown {
		return config.ErrConflictingReportFormats
	}
	if o.listSources || o.deleteRun > 0 {
		return nil
	}
	if o.source == "" {
		return errors.New("source is required (use --list-sources to see stored sources)")
	}
	return nil
}

// listSources prints every source with stored runs.
func listSources(ctx context.Context, out io.Writer, db *database.RunDB) error {
	sources, err := db.ListSources(ctx)
	if err != nil {
		return err
	}

	if len(sources) == 0 {
		fmt.Fprintln(out, "No runs found in the database.")
		fmt.Fprintln(out, "\nUse 'rankcrawl crawl <source>' to crawl a source.")
		return nil
	}

	fmt.Fprintf(out, "Sources with stored runs (%d):\n\n", len(sources))
	for _, s := range sources {
		fmt.Fprintf(out, "  • %s\n", s)
	}
	fmt.Fprintln(out, "\nUse 'rankcrawl compare --list <source>' to see the runs of a source.")
	return nil
}

// listRunHistory prints the stored runs of source, newest first.
func listRunHistory(ctx context.Context, out io.Writer, db *database.RunDB, source string) error {
	runs, err := db.GetRunHistory(ctx, source)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintf(out, "No runs found for %s\n", source)
		fmt.Fprintln(out, "\nUse 'rankcrawl crawl' to crawl this source.")
		return nil
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.SetTitle("Runs of %s (%d)", source, len(runs))
	tw.AppendHeader(table.Row{"ID", "Started", "Duration", "Tasks", "Records", "Failed", "Abandoned"})
	for _, r := range runs {
		tw.AppendRow(table.Row{
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Summary.Duration.Round(time.Millisecond),
			r.Summary.Tasks,
			r.Records,
			r.Failures,
			r.Abandoned,
		})
	}
	fmt.Fprintln(out, tw.Render())

	fmt.Fprintln(out, "\nUse 'rankcrawl compare <source>' to compare the latest two runs.")
	fmt.Fprintln(out, "Use 'rankcrawl compare --with-run-id <id> <source>' to compare with a specific run.")
	return nil
}

// runComparison compares the latest run of a source with the previous
// run, or with the run given by --with-run-id.
func runComparison(ctx context.Context, out io.Writer, db *database.RunDB, opts compareOptions) error {
	ids, err := db.GetLatestRunIDs(ctx, opts.source, 2)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("no runs found for %s", opts.source)
	}

	currentID := ids[0]
	var previousID int64
	switch {
	case opts.withRunID > 0:
		previousID = opts.withRunID
	case len(ids) < 2:
		return fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(ids))
	default:
		previousID = ids[1]
	}
	if previousID == currentID {
		return fmt.Errorf("run %d is the latest run of %s; choose an older run", previousID, opts.source)
	}

	previous, err := db.GetRun(ctx, previousID)
	if err != nil {
		return err
	}
	if previous.Source != opts.source {
		return fmt.Errorf("run %d belongs to %s, not %s", previousID, previous.Source, opts.source)
	}
	current, err := db.GetRun(ctx, currentID)
	if err != nil {
		return err
	}

	prevRecords, err := db.GetRunRecords(ctx, previousID)
	if err != nil {
		return err
	}
	curRecords, err := db.GetRunRecords(ctx, currentID)
	if err != nil {
		return err
	}

	c := &report.Comparison{
		Source:       opts.source,
		PreviousRun:  previousID,
		PreviousAt:   previous.StartedAt,
		CurrentRun:   currentID,
		CurrentAt:    current.StartedAt,
		Diff:         dataset.Compare(prevRecords, curRecords),
		PreviousSize: len(prevRecords),
		CurrentSize:  len(curRecords),
	}

	var w report.Writer
	switch {
	case opts.json:
		w = report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case opts.markdown:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out)
	}
	if _, err := w.WriteComparison(c); err != nil {
		return err
	}

	if !opts.json {
		return warnIncompleteRuns(ctx, out, db, previous, current)
	}
	return nil
}

// warnIncompleteRuns points out runs with failed tasks: entries missing
// from them may be crawl gaps rather than ranking changes.
func warnIncompleteRuns(ctx context.Context, out io.Writer, db *database.RunDB, runs ...database.RunMetadata) error {
	for _, r := range runs {
		if r.Failures == 0 && r.Abandoned == 0 {
			continue
		}
		failures, err := db.GetRunFailures(ctx, r.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nNote: run %d is incomplete (%d failed, %d abandoned tasks).\n", r.ID, r.Failures, r.Abandoned)
		for _, f := range failures {
			fmt.Fprintf(out, "  - %s: %s\n", f.Task.Tag(), f.ReasonText)
		}
	}
	return nil
}
