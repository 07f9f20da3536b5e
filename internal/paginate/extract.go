package paginate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nao1215/rankcrawl/internal/model"
	"github.com/nao1215/rankcrawl/internal/render"
)

// Selectors locate the parts of a ranking table.
type Selectors struct {
	// Row matches each data row of the table.
	Row string `yaml:"row,omitempty"`

	// Name matches the entity name inside a row. The default only accepts
	// names wrapped in a link, which excludes decorative rows.
	Name string `yaml:"name,omitempty"`

	// Cell matches the cells of a row. The rank is read from the last one.
	Cell string `yaml:"cell,omitempty"`

	// MinCells is the minimum number of cells of a valid row.
	MinCells int `yaml:"minCells,omitempty"`

	// Next matches the "next page" control.
	Next string `yaml:"next,omitempty"`

	// DisabledClass marks the next control as disabled on the last page.
	DisabledClass string `yaml:"disabledClass,omitempty"`

	// LoadMore matches the "load more" button in load-more mode.
	LoadMore string `yaml:"loadMore,omitempty"`
}

// DefaultSelectors returns the selectors used by ShanghaiRanking tables.
func DefaultSelectors() Selectors {
	return Selectors{
		Row:           "table tr[data-v-ae1ab4a8]",
		Name:          "a > span.univ-name",
		Cell:          "td",
		MinCells:      1,
		Next:          "ul.ant-pagination li.ant-pagination-next",
		DisabledClass: "ant-pagination-disabled",
		LoadMore:      `button[data-name="LOAD_MORE"]`,
	}
}

// WithDefaults returns s with empty fields filled from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	d := DefaultSelectors()
	if s.Row == "" {
		s.Row = d.Row
	}
	if s.Name == "" {
		s.Name = d.Name
	}
	if s.Cell == "" {
		s.Cell = d.Cell
	}
	if s.MinCells <= 0 {
		s.MinCells = d.MinCells
	}
	if s.Next == "" {
		s.Next = d.Next
	}
	if s.DisabledClass == "" {
		s.DisabledClass = d.DisabledClass
	}
	if s.LoadMore == "" {
		s.LoadMore = d.LoadMore
	}
	return s
}

// Extract maps every row of the current page to a record tagged with tag.
// Rows without a name or a rank are returned as skips. The only errors are
// those of the session itself.
func Extract(ctx context.Context, s render.Session, sel Selectors, tag model.TaskTag) ([]model.RankingRecord, []model.ExtractionSkip, error) {
	sel = sel.WithDefaults()

	rows, err := s.FindAll(ctx, sel.Row)
	if err != nil {
		return nil, nil, fmt.Errorf("find rows: %w", err)
	}

	records := make([]model.RankingRecord, 0, len(rows))
	var skips []model.ExtractionSkip
	for i, row := range rows {
		cand, err := candidate(ctx, row, sel, i)
		if err != nil {
			return records, skips, err
		}
		rec, skip, ok := cand.ToRecord(tag, sel.MinCells)
		if !ok {
			skips = append(skips, skip)
			continue
		}
		records = append(records, rec)
	}
	return records, skips, nil
}

// candidate reads the raw texts of one row. A row that disappears while
// it is read yields an empty candidate.
func candidate(ctx context.Context, row render.Element, sel Selectors, index int) (model.PageRowCandidate, error) {
	cand := model.PageRowCandidate{Index: index}

	names, err := row.FindAll(ctx, sel.Name)
	if err != nil {
		return cand, rowError(err)
	}
	if len(names) > 0 {
		if cand.Name, err = names[0].Text(ctx); err != nil {
			return model.PageRowCandidate{Index: index}, rowError(err)
		}
	}

	cells, err := row.FindAll(ctx, sel.Cell)
	if err != nil {
		return model.PageRowCandidate{Index: index}, rowError(err)
	}
	cand.Cells = len(cells)
	if len(cells) > 0 {
		if cand.Rank, err = cells[len(cells)-1].Text(ctx); err != nil {
			return model.PageRowCandidate{Index: index}, rowError(err)
		}
	}
	return cand, nil
}

// rowError drops errors that only affect the current row.
func rowError(err error) error {
	if errors.Is(err, render.ErrStaleElement) || errors.Is(err, render.ErrElementNotFound) {
		return nil
	}
	return err
}

// hasClass reports whether the space separated class list contains name.
func hasClass(classes, name string) bool {
	for _, c := range strings.Fields(classes) {
		if c == name {
			return true
		}
	}
	return false
}
