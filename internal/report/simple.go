package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/nao1215/rankcrawl/internal/model"
)

// maxMessageWidth bounds failure messages in terminal tables.
const maxMessageWidth = 60

// SimpleWriter renders plain terminal tables.
type SimpleWriter struct {
	baseWriter

	// verbose adds a per-task table and the list of skipped rows.
	verbose bool

	// style is the go-pretty table style.
	style table.Style
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose adds per-task details to the output.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithStyle sets the table style, e.g. table.StyleRounded.
func WithStyle(style table.Style) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.style = style
	}
}

// NewSimpleWriter creates a SimpleWriter that writes to output.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		style:      table.StyleLight,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *SimpleWriter) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(w.style)
	t.SetTitle("%s", title)
	return t
}

// Write renders the run summary, the records per subject and the failures.
func (w *SimpleWriter) Write(result *model.RunResult) (int, error) {
	var sb strings.Builder
	s := result.Summary()

	summary := w.newTable("Run " + s.Source)
	summary.AppendRows([]table.Row{
		{"Status", status(result)},
		{"Started", formatTime(s.StartedAt)},
		{"Duration", s.Duration.Round(time.Second).String()},
		{"Tasks", s.Tasks},
		{"Succeeded", s.Succeeded},
		{"Failed", s.Failed},
		{"Abandoned", s.Abandoned},
		{"Pages", s.Pages},
		{"Records", s.Records},
		{"Skipped rows", s.SkippedRow},
	})
	summary.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	sb.WriteString(summary.Render())
	sb.WriteString("\n")

	if order, counts := recordsPerSubject(result); len(order) > 1 {
		subjects := w.newTable("Records per subject")
		subjects.AppendHeader(table.Row{"Category", "Subject", "Records"})
		for _, tag := range order {
			subjects.AppendRow(table.Row{tag.Category, tag.Subcategory, counts[tag]})
		}
		subjects.AppendFooter(table.Row{"", "Total", len(result.Records)})
		sb.WriteString("\n")
		sb.WriteString(subjects.Render())
		sb.WriteString("\n")
	}

	if w.verbose {
		w.writeTasks(&sb, result)
	}

	if len(result.Failures) > 0 {
		failures := w.newTable("Failures")
		failures.AppendHeader(table.Row{"Task", "Reason", "Kept", "Message"})
		for _, f := range result.Failures {
			failures.AppendRow(table.Row{
				f.Task.Tag().String(),
				f.Reason.String(),
				f.RecordsKept,
				truncateString(f.Message, maxMessageWidth),
			})
		}
		sb.WriteString("\n")
		sb.WriteString(failures.Render())
		sb.WriteString("\n")
	}

	if len(result.Abandoned) > 0 {
		sb.WriteString(fmt.Sprintf("\n%d task(s) were not attempted:\n", len(result.Abandoned)))
		for _, task := range result.Abandoned {
			sb.WriteString("  - " + task.String() + "\n")
		}
	}

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeTasks(sb *strings.Builder, result *model.RunResult) {
	tasks := w.newTable("Tasks")
	tasks.AppendHeader(table.Row{"#", "Task", "Pages", "Records", "Skipped", "Result"})
	var skipped []string
	for i, rep := range result.Reports {
		if rep == nil {
			continue
		}
		outcome := "ok"
		if rep.Failure != nil {
			outcome = rep.Failure.Reason.String()
		}
		tasks.AppendRow(table.Row{i + 1, rep.Task.Tag().String(), rep.Pages, len(rep.Records), len(rep.Skips), outcome})
		for _, sk := range rep.Skips {
			skipped = append(skipped, fmt.Sprintf("%s page %d row %d: %s", rep.Task.Tag(), sk.Page, sk.Row, sk.Reason))
		}
	}
	sb.WriteString("\n")
	sb.WriteString(tasks.Render())
	sb.WriteString("\n")

	if len(skipped) > 0 {
		sb.WriteString("\nSkipped rows:\n")
		for _, line := range skipped {
			sb.WriteString("  - " + line + "\n")
		}
	}
}

// WriteComparison renders the added, removed and changed entries.
func (w *SimpleWriter) WriteComparison(c *Comparison) (int, error) {
	var sb strings.Builder

	head := w.newTable("Compare " + c.Source)
	head.AppendHeader(table.Row{"", "Run", "Date", "Records"})
	head.AppendRow(table.Row{"Previous", c.PreviousRun, formatTime(c.PreviousAt), c.PreviousSize})
	head.AppendRow(table.Row{"Current", c.CurrentRun, formatTime(c.CurrentAt), c.CurrentSize})
	sb.WriteString(head.Render())
	sb.WriteString("\n")

	if c.Diff.Empty() {
		sb.WriteString("\nNo changes.\n")
		return io.WriteString(w.output, sb.String())
	}

	if len(c.Diff.Changed) > 0 {
		t := w.newTable(fmt.Sprintf("Rank changes (%d)", len(c.Diff.Changed)))
		t.AppendHeader(table.Row{"Subject", "University", "Before", "After"})
		for _, ch := range c.Diff.Changed {
			tag := model.TaskTag{Category: ch.Category, Subcategory: ch.Subcategory}
			t.AppendRow(table.Row{tag.String(), ch.EntityName, ch.OldRank, ch.NewRank})
		}
		sb.WriteString("\n")
		sb.WriteString(t.Render())
		sb.WriteString("\n")
	}

	for _, section := range []struct {
		title   string
		records []model.RankingRecord
	}{
		{title: "Added", records: c.Diff.Added},
		{title: "Removed", records: c.Diff.Removed},
	} {
		if len(section.records) == 0 {
			continue
		}
		t := w.newTable(fmt.Sprintf("%s (%d)", section.title, len(section.records)))
		t.AppendHeader(table.Row{"Subject", "University", "Rank"})
		for _, rec := range section.records {
			tag := model.TaskTag{Category: rec.Category, Subcategory: rec.Subcategory}
			t.AppendRow(table.Row{tag.String(), rec.EntityName, rec.RankText})
		}
		sb.WriteString("\n")
		sb.WriteString(t.Render())
		sb.WriteString("\n")
	}

	return io.WriteString(w.output, sb.String())
}
