// Package dataload implements the data sources named by load/save
// annotations: glob-matched CSV file sets (Map), SQLite tables (DB), and
// an in-process store (Memory).
package dataload

import (
	"context"
	"fmt"

	"tabula/core/ir"
)

// Row is one record, keyed by column name. Values keep their textual form;
// interpretation belongs to the consumer, which knows the field types.
type Row map[string]string

// Source reads and writes the rows backing one table.
type Source interface {
	Load(ctx context.Context, table *ir.Table) ([]Row, error)
	Save(ctx context.Context, table *ir.Table, rows []Row) error
}

// DuplicateKeyError reports two providers contributing the same primary
// key. Loading fails outright; neither row wins.
type DuplicateKeyError struct {
	Key    string
	First  string
	Second string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %q: contributed by both %s and %s", e.Key, e.First, e.Second)
}

// keyTracker enforces primary-key uniqueness across row providers.
// provider is a file path or another source descriptor used in the error.
type keyTracker struct {
	column string
	seen   map[string]string
}

func newKeyTracker(table *ir.Table) *keyTracker {
	pk := table.PKField()
	if pk == nil {
		return nil
	}
	return &keyTracker{column: pk.Name, seen: make(map[string]string)}
}

func (k *keyTracker) add(row Row, provider string) error {
	if k == nil {
		return nil
	}
	key, ok := row[k.column]
	if !ok {
		return fmt.Errorf("row from %s is missing key column %s", provider, k.column)
	}
	if first, dup := k.seen[key]; dup {
		return &DuplicateKeyError{Key: key, First: first, Second: provider}
	}
	k.seen[key] = provider
	return nil
}
