package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/rankcrawl/internal/model"
)

// JSONWriter renders reports as JSON.
type JSONWriter struct {
	baseWriter

	indent  string
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint indents the output by two spaces.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = "  "
	}
}

// WithVersion records the program version in run reports.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that writes to output.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport wraps a run with its summary and the program version.
type JSONReport struct {
	Version string           `json:"version,omitempty"`
	Status  string           `json:"status"`
	Summary model.RunSummary `json:"summary"`
	Result  *model.RunResult `json:"result"`
}

// Write renders result wrapped in a JSONReport.
func (w *JSONWriter) Write(result *model.RunResult) (int, error) {
	return w.writeJSON(JSONReport{
		Version: w.version,
		Status:  status(result),
		Summary: result.Summary(),
		Result:  result,
	})
}

// WriteComparison renders c as JSON.
func (w *JSONWriter) WriteComparison(c *Comparison) (int, error) {
	return w.writeJSON(c)
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent != "" {
		data, err = json.MarshalIndent(v, "", w.indent)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}
