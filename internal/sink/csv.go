package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/nao1215/rankcrawl/internal/model"
)

// ErrUnknownHeader is returned by ReadCSV for files whose header matches
// neither layout.
var ErrUnknownHeader = errors.New("unrecognized csv header")

// Layout selects the CSV columns.
type Layout int

const (
	// LayoutCategorized writes category,sub-category,university,ranking.
	LayoutCategorized Layout = iota

	// LayoutFlat writes university,ranking.
	LayoutFlat
)

var (
	categorizedHeader = []string{"category", "sub-category", "university", "ranking"}
	flatHeader        = []string{"university", "ranking"}
)

// String returns the configuration name of the layout.
func (l Layout) String() string {
	if l == LayoutFlat {
		return "flat"
	}
	return "categorized"
}

// ParseLayout parses a configuration name.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "categorized", "category", "hierarchy":
		return LayoutCategorized, nil
	case "flat":
		return LayoutFlat, nil
	default:
		return LayoutFlat, fmt.Errorf("unknown layout %q", s)
	}
}

// Header returns the column names of the layout.
func (l Layout) Header() []string {
	if l == LayoutFlat {
		return slices.Clone(flatHeader)
	}
	return slices.Clone(categorizedHeader)
}

func (l Layout) row(rec model.RankingRecord) []string {
	if l == LayoutFlat {
		return []string{rec.EntityName, rec.RankText}
	}
	return []string{rec.Category, rec.Subcategory, rec.EntityName, rec.RankText}
}

// CSVWriter writes records as CSV rows. The header is written before the
// first row, or on Flush when there are no rows. It is safe for
// concurrent use.
type CSVWriter struct {
	mu            sync.Mutex
	w             *csv.Writer
	closer        io.Closer
	layout        Layout
	headerWritten bool
	count         int
}

// NewCSVWriter creates a CSVWriter on w.
func NewCSVWriter(w io.Writer, layout Layout) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w), layout: layout}
}

// CreateCSV creates (or truncates) the file at path, and its directory,
// and returns a CSVWriter on it. Close the writer to flush and close the
// file.
func CreateCSV(path string, layout Layout) (*CSVWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	cw := NewCSVWriter(f, layout)
	cw.closer = f
	return cw, nil
}

// Layout returns the writer's layout.
func (c *CSVWriter) Layout() Layout {
	return c.layout
}

// Append writes rec as one row.
func (c *CSVWriter) Append(ctx context.Context, rec model.RankingRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writeHeaderLocked(); err != nil {
		return err
	}
	if err := c.w.Write(c.layout.row(rec)); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	c.count++
	return nil
}

// WriteAll writes records and flushes.
func (c *CSVWriter) WriteAll(ctx context.Context, records []model.RankingRecord) error {
	for _, rec := range records {
		if err := c.Append(ctx, rec); err != nil {
			return err
		}
	}
	return c.Flush()
}

// Count returns the number of rows written.
func (c *CSVWriter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Flush writes buffered rows to the underlying writer.
func (c *CSVWriter) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writeHeaderLocked(); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

// Close flushes and closes the underlying file, if the writer owns one.
func (c *CSVWriter) Close() error {
	err := c.Flush()
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
		c.closer = nil
	}
	return err
}

func (c *CSVWriter) writeHeaderLocked() error {
	if c.headerWritten {
		return nil
	}
	if err := c.w.Write(c.layout.Header()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	c.headerWritten = true
	return nil
}

// ReadCSV reads records written in either layout and reports which one
// the file uses.
func ReadCSV(r io.Reader) ([]model.RankingRecord, Layout, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, LayoutFlat, fmt.Errorf("%w: empty file", ErrUnknownHeader)
		}
		return nil, LayoutFlat, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var layout Layout
	switch {
	case slices.Equal(header, categorizedHeader):
		layout = LayoutCategorized
	case slices.Equal(header, flatHeader):
		layout = LayoutFlat
	default:
		return nil, LayoutFlat, fmt.Errorf("%w: %s", ErrUnknownHeader, strings.Join(header, ","))
	}
	cr.FieldsPerRecord = len(header)

	records := make([]model.RankingRecord, 0)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, layout, fmt.Errorf("read csv row: %w", err)
		}
		if layout == LayoutFlat {
			records = append(records, model.RankingRecord{EntityName: row[0], RankText: row[1]})
			continue
		}
		records = append(records, model.RankingRecord{
			Category:    row[0],
			Subcategory: row[1],
			EntityName:  row[2],
			RankText:    row[3],
		})
	}
	return records, layout, nil
}

// ReadCSVFile reads the CSV file at path.
func ReadCSVFile(path string) ([]model.RankingRecord, Layout, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, LayoutFlat, err
	}
	defer f.Close()
	return ReadCSV(f)
}
