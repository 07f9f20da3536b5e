package report

import (
	"io"
	"time"

	"github.com/nao1215/rankcrawl/internal/dataset"
	"github.com/nao1215/rankcrawl/internal/model"
)

// Writer renders reports to a destination.
type Writer interface {
	// Write renders the summary of a crawl run.
	Write(result *model.RunResult) (int, error)

	// WriteComparison renders the difference between two runs.
	WriteComparison(c *Comparison) (int, error)
}

// Comparison describes two stored runs of one source and what changed
// between them.
type Comparison struct {
	Source       string       `json:"source"`
	PreviousRun  int64        `json:"previous_run"`
	PreviousAt   time.Time    `json:"previous_at"`
	CurrentRun   int64        `json:"current_run"`
	CurrentAt    time.Time    `json:"current_at"`
	Diff         dataset.Diff `json:"diff"`
	PreviousSize int          `json:"previous_records"`
	CurrentSize  int          `json:"current_records"`
}

// MultiWriter writes to several Writers in turn and stops at the first
// error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write renders result with every writer.
func (m *MultiWriter) Write(result *model.RunResult) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(result)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteComparison renders c with every writer.
func (m *MultiWriter) WriteComparison(c *Comparison) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteComparison(c)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// status describes how a run ended.
func status(result *model.RunResult) string {
	switch {
	case len(result.Abandoned) > 0:
		return "Aborted"
	case len(result.Failures) > 0:
		return "Completed with failures"
	default:
		return "Complete"
	}
}

// recordsPerSubject counts records per tag in first-seen order.
func recordsPerSubject(result *model.RunResult) ([]model.TaskTag, map[model.TaskTag]int) {
	var order []model.TaskTag
	counts := make(map[model.TaskTag]int)
	for _, rec := range result.Records {
		tag := model.TaskTag{Category: rec.Category, Subcategory: rec.Subcategory}
		if _, ok := counts[tag]; !ok {
			order = append(order, tag)
		}
		counts[tag]++
	}
	return order, counts
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05 MST")
}

// truncateString shortens s to maxLen runes, ending with "...".
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
