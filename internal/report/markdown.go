package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/rankcrawl/internal/model"
)

// maxPieSlices bounds the subjects drawn in the records pie chart.
const maxPieSlices = 12

// MarkdownWriter renders GitHub flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that writes to output.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write renders the run summary.
func (w *MarkdownWriter) Write(result *model.RunResult) (int, error) {
	md := markdown.NewMarkdown(w.output)
	s := result.Summary()

	md.H1("Crawl Report: " + s.Source)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Status", status(result)},
			{"Started", formatTime(s.StartedAt)},
			{"Duration", s.Duration.String()},
			{"Tasks", strconv.Itoa(s.Tasks)},
			{"Succeeded", strconv.Itoa(s.Succeeded)},
			{"Failed", strconv.Itoa(s.Failed)},
			{"Abandoned", strconv.Itoa(s.Abandoned)},
			{"Pages", strconv.Itoa(s.Pages)},
			{"Records", strconv.Itoa(s.Records)},
			{"Skipped rows", strconv.Itoa(s.SkippedRow)},
		},
	})
	md.PlainText("")

	w.writeAlert(md, result)
	w.writeSubjects(md, result)
	w.writeFailures(md, result)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by rankcrawl*")

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, result *model.RunResult) {
	switch {
	case len(result.Abandoned) > 0:
		md.Cautionf("The run was aborted. %d task(s) were not attempted; the records below are partial.", len(result.Abandoned))
	case len(result.Failures) > 0:
		md.Warningf("%d task(s) failed. Records extracted before each failure are kept.", len(result.Failures))
	case len(result.Records) == 0:
		md.Note("The run finished without extracting any record.")
	default:
		md.Tip("All tasks completed.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeSubjects(md *markdown.Markdown, result *model.RunResult) {
	order, counts := recordsPerSubject(result)
	if len(order) < 2 {
		return
	}

	md.H2("Records per Subject")
	md.PlainText("")

	rows := make([][]string, 0, len(order))
	for _, tag := range order {
		rows = append(rows, []string{tag.Category, tag.Subcategory, strconv.Itoa(counts[tag])})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Category", "Subject", "Records"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(order) > maxPieSlices {
		return
	}
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Records per Subject"),
		piechart.WithShowData(true),
	)
	for _, tag := range order {
		chart.LabelAndIntValue(tag.Subcategory, uint64(counts[tag])) //nolint:gosec // counts are positive
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, result *model.RunResult) {
	if len(result.Failures) == 0 && len(result.Abandoned) == 0 {
		return
	}

	md.H2("Failures")
	md.PlainText("")

	if len(result.Failures) > 0 {
		rows := make([][]string, 0, len(result.Failures))
		for _, f := range result.Failures {
			rows = append(rows, []string{
				f.Task.Tag().String(),
				"`" + f.Reason.String() + "`",
				strconv.Itoa(f.RecordsKept),
				truncateString(f.Message, maxMessageWidth),
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Task", "Reason", "Records kept", "Message"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	if len(result.Abandoned) > 0 {
		md.PlainText("Not attempted:")
		md.PlainText("")
		items := make([]string, 0, len(result.Abandoned))
		for _, task := range result.Abandoned {
			items = append(items, task.String())
		}
		md.BulletList(items...)
		md.PlainText("")
	}
}

// WriteComparison renders the difference between two runs.
func (w *MarkdownWriter) WriteComparison(c *Comparison) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Ranking Changes: " + c.Source)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"", "Run", "Date", "Records"},
		Rows: [][]string{
			{"Previous", strconv.FormatInt(c.PreviousRun, 10), formatTime(c.PreviousAt), strconv.Itoa(c.PreviousSize)},
			{"Current", strconv.FormatInt(c.CurrentRun, 10), formatTime(c.CurrentAt), strconv.Itoa(c.CurrentSize)},
		},
	})
	md.PlainText("")

	if c.Diff.Empty() {
		md.Tip("No changes between the two runs.")
		return len(md.String()), md.Build()
	}

	if len(c.Diff.Changed) > 0 {
		md.H2(fmt.Sprintf("Rank Changes (%d)", len(c.Diff.Changed)))
		md.PlainText("")
		rows := make([][]string, 0, len(c.Diff.Changed))
		for _, ch := range c.Diff.Changed {
			tag := model.TaskTag{Category: ch.Category, Subcategory: ch.Subcategory}
			rows = append(rows, []string{tag.String(), ch.EntityName, ch.OldRank, ch.NewRank})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Subject", "University", "Before", "After"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	writeRecords := func(title string, records []model.RankingRecord) {
		if len(records) == 0 {
			return
		}
		md.H2(fmt.Sprintf("%s (%d)", title, len(records)))
		md.PlainText("")
		rows := make([][]string, 0, len(records))
		for _, rec := range records {
			tag := model.TaskTag{Category: rec.Category, Subcategory: rec.Subcategory}
			rows = append(rows, []string{tag.String(), rec.EntityName, rec.RankText})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Subject", "University", "Rank"},
			Rows:   rows,
		})
		md.PlainText("")
	}
	writeRecords("Added", c.Diff.Added)
	writeRecords("Removed", c.Diff.Removed)

	return len(md.String()), md.Build()
}
