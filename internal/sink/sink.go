// Package sink receives extracted records.
//
// Every Sink is safe for concurrent Append; records from different workers
// arrive in no particular order.
package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/nao1215/rankcrawl/internal/model"
)

// Sink accepts records.
type Sink interface {
	Append(ctx context.Context, rec model.RankingRecord) error
}

// Memory keeps records in memory.
type Memory struct {
	mu      sync.Mutex
	records []model.RankingRecord
}

// NewMemory creates an empty Memory sink.
func NewMemory() *Memory {
	return &Memory{records: make([]model.RankingRecord, 0)}
}

// Append stores rec.
func (m *Memory) Append(ctx context.Context, rec model.RankingRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of the stored records in arrival order.
func (m *Memory) Records() []model.RankingRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.RankingRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type multi []Sink

// Multi returns a Sink that appends to every sink in order. All sinks
// receive the record even if one fails; the errors are joined.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Append(ctx context.Context, rec model.RankingRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a function to the Sink interface. The function must be
// safe for concurrent use.
type Func func(ctx context.Context, rec model.RankingRecord) error

// Append calls f.
func (f Func) Append(ctx context.Context, rec model.RankingRecord) error {
	return f(ctx, rec)
}
