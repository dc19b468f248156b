package store

import (
	"context"
	"sync"

	"github.com/getkayan/kcasbin/rule"
	"github.com/google/uuid"
)

// MemoryStore provides an in-memory implementation of Store.
// This is useful for testing, development, and simple single-instance deployments.
// Rules get random UUID keys, like the document stores.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   []rule.Rule
	closed bool
}

// NewMemoryStore creates a new in-memory rule store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make([]rule.Rule, 0),
	}
}

// Find returns the rules matching the pattern in insertion order.
func (s *MemoryStore) Find(ctx context.Context, p rule.Pattern) ([]rule.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	return findRows(s.rows, p), nil
}

// Insert appends the rules.
func (s *MemoryStore) Insert(ctx context.Context, rules ...rule.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.rows = insertRows(s.rows, rules)
	return nil
}

// Delete removes all rules matching the pattern.
func (s *MemoryStore) Delete(ctx context.Context, p rule.Pattern) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	var n int64
	s.rows, n = deleteRows(s.rows, p)
	return n, nil
}

// Transaction runs fn against a private copy of the rows and publishes the
// copy only if fn succeeds. The store stays locked for the duration.
func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx := &memoryTx{rows: append([]rule.Rule(nil), s.rows...)}
	if err := fn(tx); err != nil {
		return err
	}
	s.rows = tx.rows
	return nil
}

// Ping reports ErrClosed after Close.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close drops the rows.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.rows = nil
	return nil
}

// memoryTx works on the copy taken by MemoryStore.Transaction. The parent
// lock is held, so it needs none of its own.
type memoryTx struct {
	rows []rule.Rule
}

func (t *memoryTx) Find(ctx context.Context, p rule.Pattern) ([]rule.Rule, error) {
	return findRows(t.rows, p), nil
}

func (t *memoryTx) Insert(ctx context.Context, rules ...rule.Rule) error {
	t.rows = insertRows(t.rows, rules)
	return nil
}

func (t *memoryTx) Delete(ctx context.Context, p rule.Pattern) (int64, error) {
	var n int64
	t.rows, n = deleteRows(t.rows, p)
	return n, nil
}

// Transaction nests into the running transaction.
func (t *memoryTx) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (t *memoryTx) Ping(ctx context.Context) error { return nil }

func (t *memoryTx) Close() error { return nil }

func findRows(rows []rule.Rule, p rule.Pattern) []rule.Rule {
	var result []rule.Rule
	for _, r := range rows {
		if p.Matches(r) {
			result = append(result, cloneRule(r))
		}
	}
	return result
}

func insertRows(rows []rule.Rule, rules []rule.Rule) []rule.Rule {
	for _, r := range rules {
		r = cloneRule(r)
		r.ID = uuid.NewString()
		rows = append(rows, r)
	}
	return rows
}

// deleteRows builds a new slice so a transaction copy never shares a
// backing array with the published rows.
func deleteRows(rows []rule.Rule, p rule.Pattern) ([]rule.Rule, int64) {
	kept := make([]rule.Rule, 0, len(rows))
	var n int64
	for _, r := range rows {
		if p.Matches(r) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	return kept, n
}

func cloneRule(r rule.Rule) rule.Rule {
	out := rule.Rule{ID: r.ID, Ptype: r.Ptype}
	for i, v := range r.V {
		if v != nil {
			val := *v
			out.V[i] = &val
		}
	}
	return out
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)
