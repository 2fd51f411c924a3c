package dataload

import (
	"context"
	"sync"

	"tabula/core/ir"
)

// MemorySource keeps rows in process, keyed by table FQN. Safe for
// concurrent use; handy for tests and tooling that stage data before a
// real save target exists.
type MemorySource struct {
	mu   sync.RWMutex
	data map[string][]Row
}

// NewMemorySource returns an empty store.
func NewMemorySource() *MemorySource {
	return &MemorySource{data: make(map[string][]Row)}
}

func (s *MemorySource) Load(_ context.Context, table *ir.Table) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tracker := newKeyTracker(table)
	stored := s.data[table.FQN]
	out := make([]Row, 0, len(stored))
	for _, row := range stored {
		if err := tracker.add(row, "memory:"+table.FQN); err != nil {
			return nil, err
		}
		copied := make(Row, len(row))
		for k, v := range row {
			copied[k] = v
		}
		out = append(out, copied)
	}
	return out, nil
}

func (s *MemorySource) Save(_ context.Context, table *ir.Table, rows []Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]Row, 0, len(rows))
	for _, row := range rows {
		copied := make(Row, len(row))
		for k, v := range row {
			copied[k] = v
		}
		stored = append(stored, copied)
	}
	s.data[table.FQN] = stored
	return nil
}
