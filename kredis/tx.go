package kredis

import (
	"context"

	"github.com/getkayan/kcasbin/rule"
	"github.com/getkayan/kcasbin/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisTx buffers writes for Store.Transaction. Reads see the committed
// data overlaid with the buffered writes.
type redisTx struct {
	parent   *Store
	reader   reader
	ops      []func(pipe redis.Pipeliner)
	inserted []rule.Rule
	deleted  map[string]bool
}

func (t *redisTx) Find(ctx context.Context, p rule.Pattern) ([]rule.Rule, error) {
	committed, err := t.parent.find(ctx, t.reader, p)
	if err != nil {
		return nil, err
	}

	var result []rule.Rule
	for _, r := range committed {
		if !t.deleted[r.ID] {
			result = append(result, r)
		}
	}
	for _, r := range t.inserted {
		if p.Matches(r) {
			result = append(result, r)
		}
	}
	return result, nil
}

func (t *redisTx) Insert(ctx context.Context, rules ...rule.Rule) error {
	for _, r := range rules {
		id := uuid.NewString()
		r.ID = id
		t.inserted = append(t.inserted, r)
		t.ops = append(t.ops, func(pipe redis.Pipeliner) {
			t.parent.queueInsert(ctx, pipe, id, r)
		})
	}
	return nil
}

func (t *redisTx) Delete(ctx context.Context, p rule.Pattern) (int64, error) {
	matches, err := t.Find(ctx, p)
	if err != nil {
		return 0, err
	}

	for _, r := range matches {
		id := r.ID
		t.deleted[id] = true
		t.ops = append(t.ops, func(pipe redis.Pipeliner) {
			t.parent.queueDelete(ctx, pipe, id)
		})
	}

	kept := t.inserted[:0]
	for _, r := range t.inserted {
		if !t.deleted[r.ID] {
			kept = append(kept, r)
		}
	}
	t.inserted = kept

	return int64(len(matches)), nil
}

// Transaction nests into the running transaction.
func (t *redisTx) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

func (t *redisTx) Ping(ctx context.Context) error { return nil }

func (t *redisTx) Close() error { return nil }
