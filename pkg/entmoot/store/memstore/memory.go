package memstore

import (
	"context"
	"sync"

	"github.com/cognicore/entmoot/pkg/entmoot/ast"
	"github.com/cognicore/entmoot/pkg/entmoot/store"
)

var _ store.Store = (*Store)(nil)

// Store is the default in-memory implementation of store.Store.
type Store struct {
	mu     sync.RWMutex
	order  []string
	tables map[string]*table
}

type table struct {
	rows []ast.Tuple
	keys map[string]struct{}
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		tables: make(map[string]*table),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

func (s *Store) table(name string) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{keys: make(map[string]struct{})}
		s.tables[name] = t
		s.order = append(s.order, name)
	}
	return t
}

// Insert appends a tuple unless an equal one is stored.
func (s *Store) Insert(ctx context.Context, name string, tuple ast.Tuple) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(name)
	key := tuple.Key()
	if _, dup := t.keys[key]; dup {
		return false, nil
	}
	t.keys[key] = struct{}{}
	t.rows = append(t.rows, copyTuple(tuple))
	return true, nil
}

// Retract removes every tuple equal to tuple.
func (s *Store) Retract(ctx context.Context, name string, tuple ast.Tuple) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[name]
	if !ok {
		return 0, nil
	}
	key := tuple.Key()
	if _, ok := t.keys[key]; !ok {
		return 0, nil
	}
	delete(t.keys, key)

	kept := t.rows[:0]
	removed := 0
	for _, row := range t.rows {
		if row.Equal(tuple) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	t.rows = kept
	return removed, nil
}

// Scan returns a copy of the table's rows in insertion order.
func (s *Store) Scan(ctx context.Context, name string) ([]ast.Tuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[name]
	if !ok {
		return nil, nil
	}
	out := make([]ast.Tuple, len(t.rows))
	copy(out, t.rows)
	return out, nil
}

// Tables returns table names in first-touch order.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}

func copyTuple(t ast.Tuple) ast.Tuple {
	out := make(ast.Tuple, len(t))
	copy(out, t)
	return out
}
