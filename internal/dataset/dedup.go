// Package dataset post-processes crawl output: exact-row de-duplication
// and comparison of two runs.
package dataset

import (
	"context"
	"fmt"

	"github.com/nao1215/rankcrawl/internal/model"
	"github.com/nao1215/rankcrawl/internal/sink"
)

// Dedup returns records without exact duplicates, keeping the first
// occurrence of each (category, subcategory, entity, rank) tuple in
// order. Applying it twice gives the same result as applying it once.
func Dedup(records []model.RankingRecord) []model.RankingRecord {
	seen := make(map[model.RecordKey]struct{}, len(records))
	out := make([]model.RankingRecord, 0, len(records))
	for _, rec := range records {
		k := rec.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// DedupStats reports what DedupCSVFile did.
type DedupStats struct {
	Layout  sink.Layout
	Read    int
	Written int
}

// Removed returns the number of dropped duplicates.
func (s DedupStats) Removed() int {
	return s.Read - s.Written
}

// DedupCSVFile de-duplicates the CSV file at in and writes the result to
// out in the same layout. in and out may be the same path.
func DedupCSVFile(ctx context.Context, in, out string) (DedupStats, error) {
	records, layout, err := sink.ReadCSVFile(in)
	if err != nil {
		return DedupStats{}, fmt.Errorf("read %s: %w", in, err)
	}
	unique := Dedup(records)

	w, err := sink.CreateCSV(out, layout)
	if err != nil {
		return DedupStats{}, err
	}
	if err := w.WriteAll(ctx, unique); err != nil {
		_ = w.Close()
		return DedupStats{}, fmt.Errorf("write %s: %w", out, err)
	}
	if err := w.Close(); err != nil {
		return DedupStats{}, fmt.Errorf("write %s: %w", out, err)
	}

	return DedupStats{Layout: layout, Read: len(records), Written: len(unique)}, nil
}
