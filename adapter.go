// Package kcasbin is a casbin policy adapter that keeps rules in a
// row-oriented store.
//
// Each policy line becomes one row with a ptype column and the positional
// columns v0..v6. The adapter implements casbin's persist.Adapter,
// persist.BatchAdapter and persist.FilteredAdapter interfaces, plus their
// context-aware variants, on top of any store.Store: relational databases
// through kgorm, Redis through kredis, or the in-memory store.
//
//	cfg, _ := config.LoadConfig()
//	a, err := kcasbin.NewAdapter(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer a.Close()
//	e, err := casbin.NewEnforcer("rbac_model.conf", a)
//
// SavePolicy, AddPolicies and RemovePolicies run in one store transaction
// and leave the store untouched on failure. The adapter does not serialize
// concurrent callers: two SavePolicy calls racing each other can lose
// updates.
package kcasbin

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	"github.com/getkayan/kcasbin/config"
	"github.com/getkayan/kcasbin/rule"
	"github.com/getkayan/kcasbin/store"
	"github.com/getkayan/kcasbin/telemetry"
	"go.uber.org/zap"
)

// ErrClosed is returned by operations on a closed adapter.
var ErrClosed = errors.New("kcasbin: adapter closed")

// savedSections are the model sections SavePolicy persists.
var savedSections = []string{"p", "g"}

// Adapter persists casbin policies in a store.Store.
type Adapter struct {
	store     store.Store
	ownsStore bool
	log       *zap.Logger
	telemetry *telemetry.Provider

	mu       sync.Mutex
	closed   bool
	filtered atomic.Bool
}

// NewAdapter opens the store named by cfg.DBType, creates the rule table
// unless cfg.SkipAutoMigrate is set, and checks the connection. The adapter
// owns the store and closes it on Close.
func NewAdapter(cfg *config.Config, opts ...Option) (*Adapter, error) {
	if cfg == nil {
		return nil, errors.New("kcasbin: nil config")
	}

	a := newAdapter(opts)
	ctx := context.Background()

	s, err := store.Open(ctx, cfg.DBType, cfg.DSN, store.Options{
		Schema:      rule.NewSchema(cfg.TableName),
		AutoMigrate: !cfg.SkipAutoMigrate,
		Logger:      a.log,
	})
	if err != nil {
		return nil, fmt.Errorf("kcasbin: open %s store: %w", cfg.DBType, err)
	}
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("kcasbin: ping %s store: %w", cfg.DBType, err)
	}

	a.store = s
	a.ownsStore = true

	a.log.Info("policy adapter ready",
		zap.String("store", cfg.DBType),
		zap.String("table", rule.NewSchema(cfg.TableName).Table),
	)
	return a, nil
}

// NewAdapterWithStore wraps a store the caller already opened, such as a
// kgorm.Repository around an existing *gorm.DB. Close leaves the store open.
func NewAdapterWithStore(s store.Store, opts ...Option) *Adapter {
	a := newAdapter(opts)
	a.store = s
	return a
}

func newAdapter(opts []Option) *Adapter {
	a := &Adapter{log: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Store returns the underlying store.
func (a *Adapter) Store() store.Store {
	return a.store
}

// Close releases the store if the adapter opened it. Calling Close more
// than once is a no-op.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if !a.ownsStore {
		return nil
	}
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("kcasbin: close: %w", err)
	}
	return nil
}

// IsFiltered reports whether the last load was a filtered one. A filtered
// adapter holds only part of the rule set; casbin refuses to SavePolicy
// through it, and callers bypassing the enforcer must do the same.
func (a *Adapter) IsFiltered() bool {
	return a.filtered.Load()
}

// IsFilteredCtx is IsFiltered for context-aware callers.
func (a *Adapter) IsFilteredCtx(ctx context.Context) bool {
	return a.IsFiltered()
}

// LoadPolicy loads all policy rules from the storage.
func (a *Adapter) LoadPolicy(m model.Model) error {
	return a.LoadPolicyCtx(context.Background(), m)
}

// LoadPolicyCtx loads all policy rules from the storage.
func (a *Adapter) LoadPolicyCtx(ctx context.Context, m model.Model) error {
	return a.run(ctx, "load_policy", telemetry.SpanOptions{}, func(ctx context.Context, s store.Store) (int64, error) {
		n, err := loadRules(ctx, s, rule.Pattern{}, m)
		if err != nil {
			return 0, err
		}
		a.filtered.Store(false)
		return n, nil
	})
}

// LoadFilteredPolicy loads only the rules matching filter. See Filter for
// the accepted filter shapes. A nil filter loads everything.
func (a *Adapter) LoadFilteredPolicy(m model.Model, filter interface{}) error {
	return a.LoadFilteredPolicyCtx(context.Background(), m, filter)
}

// LoadFilteredPolicyCtx loads only the rules matching filter.
func (a *Adapter) LoadFilteredPolicyCtx(ctx context.Context, m model.Model, filter interface{}) error {
	if f, ok := filter.(*Filter); filter == nil || ok && f == nil {
		return a.LoadPolicyCtx(ctx, m)
	}

	p, err := patternFor(filter)
	if err != nil {
		return err
	}

	return a.run(ctx, "load_filtered_policy", telemetry.SpanOptions{Ptype: p.Ptype}, func(ctx context.Context, s store.Store) (int64, error) {
		n, err := loadRules(ctx, s, p, m)
		if err != nil {
			return 0, err
		}
		a.filtered.Store(true)
		return n, nil
	})
}

// SavePolicy replaces every stored rule with the p and g sections of the
// model. The clear and the insert share one transaction.
func (a *Adapter) SavePolicy(m model.Model) error {
	return a.SavePolicyCtx(context.Background(), m)
}

// SavePolicyCtx replaces every stored rule with the rules of the model.
func (a *Adapter) SavePolicyCtx(ctx context.Context, m model.Model) error {
	return a.run(ctx, "save_policy", telemetry.SpanOptions{}, func(ctx context.Context, s store.Store) (int64, error) {
		rules, err := rulesFromModel(m)
		if err != nil {
			return 0, err
		}

		err = a.inTransaction(ctx, s, "save_policy", func(tx store.Store) error {
			if _, err := tx.Delete(ctx, rule.Pattern{}); err != nil {
				return err
			}
			return tx.Insert(ctx, rules...)
		})
		return int64(len(rules)), err
	})
}

// AddPolicy adds a policy rule to the storage.
func (a *Adapter) AddPolicy(sec string, ptype string, rl []string) error {
	return a.AddPolicyCtx(context.Background(), sec, ptype, rl)
}

// AddPolicyCtx adds a policy rule to the storage.
func (a *Adapter) AddPolicyCtx(ctx context.Context, sec string, ptype string, rl []string) error {
	opts := telemetry.SpanOptions{Section: sec, Ptype: ptype, Rules: 1}
	return a.run(ctx, "add_policy", opts, func(ctx context.Context, s store.Store) (int64, error) {
		r, err := rule.FromTuple(ptype, rl)
		if err != nil {
			return 0, err
		}
		if err := s.Insert(ctx, r); err != nil {
			return 0, err
		}
		return 1, nil
	})
}

// AddPolicies adds policy rules to the storage in one transaction.
func (a *Adapter) AddPolicies(sec string, ptype string, rules [][]string) error {
	return a.AddPoliciesCtx(context.Background(), sec, ptype, rules)
}

// AddPoliciesCtx adds policy rules to the storage in one transaction.
func (a *Adapter) AddPoliciesCtx(ctx context.Context, sec string, ptype string, rules [][]string) error {
	if len(rules) == 0 {
		return nil
	}

	opts := telemetry.SpanOptions{Section: sec, Ptype: ptype, Rules: len(rules)}
	return a.run(ctx, "add_policies", opts, func(ctx context.Context, s store.Store) (int64, error) {
		rows, err := rule.FromTuples(ptype, rules)
		if err != nil {
			return 0, err
		}

		err = a.inTransaction(ctx, s, "add_policies", func(tx store.Store) error {
			return tx.Insert(ctx, rows...)
		})
		if err != nil {
			return 0, err
		}
		return int64(len(rows)), nil
	})
}

// RemovePolicy removes the rows matching the rule. Only the rule's own
// fields constrain the match.
func (a *Adapter) RemovePolicy(sec string, ptype string, rl []string) error {
	return a.RemovePolicyCtx(context.Background(), sec, ptype, rl)
}

// RemovePolicyCtx removes the rows matching the rule.
func (a *Adapter) RemovePolicyCtx(ctx context.Context, sec string, ptype string, rl []string) error {
	opts := telemetry.SpanOptions{Section: sec, Ptype: ptype, Rules: 1}
	return a.run(ctx, "remove_policy", opts, func(ctx context.Context, s store.Store) (int64, error) {
		r, err := rule.FromTuple(ptype, rl)
		if err != nil {
			return 0, err
		}
		return s.Delete(ctx, rule.Example(r))
	})
}

// RemovePolicies removes policy rules from the storage in one transaction.
func (a *Adapter) RemovePolicies(sec string, ptype string, rules [][]string) error {
	return a.RemovePoliciesCtx(context.Background(), sec, ptype, rules)
}

// RemovePoliciesCtx removes policy rules from the storage in one transaction.
func (a *Adapter) RemovePoliciesCtx(ctx context.Context, sec string, ptype string, rules [][]string) error {
	if len(rules) == 0 {
		return nil
	}

	opts := telemetry.SpanOptions{Section: sec, Ptype: ptype, Rules: len(rules)}
	return a.run(ctx, "remove_policies", opts, func(ctx context.Context, s store.Store) (int64, error) {
		rows, err := rule.FromTuples(ptype, rules)
		if err != nil {
			return 0, err
		}

		var removed int64
		err = a.inTransaction(ctx, s, "remove_policies", func(tx store.Store) error {
			removed = 0
			for _, r := range rows {
				n, err := tx.Delete(ctx, rule.Example(r))
				if err != nil {
					return err
				}
				removed += n
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
		return removed, nil
	})
}

// RemoveFilteredPolicy removes the rules of ptype whose fields, starting at
// fieldIndex, equal fieldValues. An empty value leaves its position
// unconstrained, following the casbin engine's own filtered removal, so it
// never narrows the match to rows storing "".
func (a *Adapter) RemoveFilteredPolicy(sec string, ptype string, fieldIndex int, fieldValues ...string) error {
	return a.RemoveFilteredPolicyCtx(context.Background(), sec, ptype, fieldIndex, fieldValues...)
}

// RemoveFilteredPolicyCtx removes the rules matching the field filter.
func (a *Adapter) RemoveFilteredPolicyCtx(ctx context.Context, sec string, ptype string, fieldIndex int, fieldValues ...string) error {
	opts := telemetry.SpanOptions{Section: sec, Ptype: ptype, FieldIndex: &fieldIndex}
	return a.run(ctx, "remove_filtered_policy", opts, func(ctx context.Context, s store.Store) (int64, error) {
		return s.Delete(ctx, rule.FieldPattern(ptype, fieldIndex, fieldValues...))
	})
}

// run wraps one operation with the closed check, a span, metrics and logs.
func (a *Adapter) run(ctx context.Context, op string, opts telemetry.SpanOptions, fn func(ctx context.Context, s store.Store) (int64, error)) error {
	s, err := a.handle()
	if err != nil {
		return err
	}

	ctx, span := a.telemetry.StartSpan(ctx, op, opts)
	start := time.Now()
	n, err := fn(ctx, s)
	telemetry.EndSpan(span, err)
	a.telemetry.RecordOperation(ctx, op, n, time.Since(start), err)

	if err != nil {
		a.log.Error("policy operation failed",
			zap.String("operation", op),
			zap.String("ptype", opts.Ptype),
			zap.Error(err),
		)
		return fmt.Errorf("kcasbin: %s: %w", op, err)
	}

	a.log.Debug("policy operation",
		zap.String("operation", op),
		zap.String("ptype", opts.Ptype),
		zap.Int64("rules", n),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// inTransaction runs fn in one store transaction. The store rolls back on
// error; the error is returned as is.
func (a *Adapter) inTransaction(ctx context.Context, s store.Store, op string, fn func(tx store.Store) error) error {
	err := s.Transaction(ctx, fn)
	if err != nil {
		a.log.Warn("transaction rolled back", zap.String("operation", op), zap.Error(err))
	}
	return err
}

func (a *Adapter) handle() (store.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}
	return a.store, nil
}

// loadRules reads the matching rows and appends every one of them to the
// model. Identical rows load as identical tuples.
func loadRules(ctx context.Context, s store.Store, p rule.Pattern, m model.Model) (int64, error) {
	rules, err := s.Find(ctx, p)
	if err != nil {
		return 0, err
	}

	for _, r := range rules {
		if err := addToModel(m, r); err != nil {
			return 0, err
		}
	}
	return int64(len(rules)), nil
}

// addToModel appends the rule to its assertion. Policy rules must fill the
// assertion's tokens exactly.
func addToModel(m model.Model, r rule.Rule) error {
	if r.Ptype == "" {
		return fmt.Errorf("rule %s has no ptype", r.ID)
	}

	sec := SectionOf(r.Ptype)
	ast, err := m.GetAssertion(sec, r.Ptype)
	if err != nil {
		return err
	}

	tuple := r.Tuple()
	if sec == "p" && len(tuple) != len(ast.Tokens) {
		return fmt.Errorf("invalid policy rule size: expected %d, got %d, rule: %s", len(ast.Tokens), len(tuple), r)
	}
	return m.AddPolicy(sec, r.Ptype, tuple)
}

// rulesFromModel flattens the p and g sections, ptypes in sorted order.
func rulesFromModel(m model.Model) ([]rule.Rule, error) {
	var rules []rule.Rule
	for _, sec := range savedSections {
		astMap := m[sec]
		for _, ptype := range slices.Sorted(maps.Keys(astMap)) {
			for _, tuple := range astMap[ptype].Policy {
				r, err := rule.FromTuple(ptype, tuple)
				if err != nil {
					return nil, err
				}
				rules = append(rules, r)
			}
		}
	}
	return rules, nil
}

// Compile-time interface check
var (
	_ persist.Adapter         = (*Adapter)(nil)
	_ persist.BatchAdapter    = (*Adapter)(nil)
	_ persist.FilteredAdapter = (*Adapter)(nil)
	_ persist.ContextAdapter  = (*Adapter)(nil)
)
