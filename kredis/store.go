// Package kredis stores casbin rules in Redis as documents.
//
// Each rule is a hash under "<table>:rule:<uuid>" holding the ptype and only
// the set positional fields, so an absent hash field is the document form of
// a NULL column. A set under "<table>:ids" indexes the rule keys. Writes go
// through MULTI/EXEC with the index key watched, so a batch is applied
// completely or not at all.
//
// Importing the package registers the "redis" provider; the DSN is a redis
// URL such as redis://localhost:6379/0.
package kredis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/getkayan/kcasbin/rule"
	"github.com/getkayan/kcasbin/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// maxWatchRetries bounds optimistic transaction retries.
const maxWatchRetries = 3

func init() {
	store.Register("redis", func(ctx context.Context, dsn string, opts store.Options) (store.Store, error) {
		redisOpts, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("redis store: parse dsn: %w", err)
		}

		s := NewStore(redis.NewClient(redisOpts), opts.Schema)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	})
}

// reader is the read side shared by the client and a watched transaction.
type reader interface {
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// Store implements store.Store using Redis.
type Store struct {
	client *redis.Client
	schema rule.Schema
	prefix string

	closeOnce sync.Once
	closeErr  error
}

// NewStore creates a Redis-backed rule store. Keys are prefixed with the
// schema's table name.
func NewStore(client *redis.Client, schema rule.Schema) *Store {
	if schema.Table == "" {
		schema = rule.NewSchema("")
	}
	return &Store{
		client: client,
		schema: schema,
		prefix: schema.Table + ":",
	}
}

// Client returns the underlying client.
func (s *Store) Client() *redis.Client {
	return s.client
}

func (s *Store) indexKey() string {
	return s.prefix + "ids"
}

func (s *Store) ruleKey(id string) string {
	return s.prefix + "rule:" + id
}

// Find returns the rules matching the pattern. Redis sets are unordered, so
// no order is guaranteed.
func (s *Store) Find(ctx context.Context, p rule.Pattern) ([]rule.Rule, error) {
	return s.find(ctx, s.client, p)
}

// Insert writes all rules in one MULTI/EXEC block.
func (s *Store) Insert(ctx context.Context, rules ...rule.Rule) error {
	if len(rules) == 0 {
		return nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, r := range rules {
			s.queueInsert(ctx, pipe, uuid.NewString(), r)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store: insert failed: %w", err)
	}
	return nil
}

// Delete removes the matching rules atomically.
func (s *Store) Delete(ctx context.Context, p rule.Pattern) (int64, error) {
	var n int64
	err := s.watch(ctx, func(tx *redis.Tx) error {
		matches, err := s.find(ctx, tx, p)
		if err != nil {
			return err
		}
		n = int64(len(matches))
		if n == 0 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, r := range matches {
				s.queueDelete(ctx, pipe, r.ID)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Transaction runs fn with reads against the watched index and writes
// buffered until fn returns. The buffered writes are applied in one
// MULTI/EXEC; if fn fails nothing is sent.
func (s *Store) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	return s.watch(ctx, func(rtx *redis.Tx) error {
		t := &redisTx{parent: s, reader: rtx, deleted: make(map[string]bool)}
		if err := fn(t); err != nil {
			return err
		}
		if len(t.ops) == 0 {
			return nil
		}

		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, op := range t.ops {
				op(pipe)
			}
			return nil
		})
		return err
	})
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}

// watch retries fn while a concurrent writer touches the index key.
func (s *Store) watch(ctx context.Context, fn func(tx *redis.Tx) error) error {
	var err error
	for i := 0; i < maxWatchRetries; i++ {
		err = s.client.Watch(ctx, fn, s.indexKey())
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("redis store: transaction aborted after %d attempts: %w", maxWatchRetries, err)
}

// find reads the index, then fetches every indexed hash in one pipeline.
func (s *Store) find(ctx context.Context, rd reader, p rule.Pattern) ([]rule.Rule, error) {
	ids, err := rd.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = rd.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.ruleKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var result []rule.Rule
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		r := s.decode(id, fields)
		if p.Matches(r) {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *Store) queueInsert(ctx context.Context, pipe redis.Pipeliner, id string, r rule.Rule) {
	pipe.HSet(ctx, s.ruleKey(id), s.encode(r))
	pipe.SAdd(ctx, s.indexKey(), id)
}

func (s *Store) queueDelete(ctx context.Context, pipe redis.Pipeliner, id string) {
	pipe.Del(ctx, s.ruleKey(id))
	pipe.SRem(ctx, s.indexKey(), id)
}

func (s *Store) encode(r rule.Rule) map[string]any {
	fields := map[string]any{s.schema.Ptype.Name: r.Ptype}
	for i, v := range r.V {
		if v != nil {
			fields[s.schema.Fields[i].Name] = *v
		}
	}
	return fields
}

func (s *Store) decode(id string, fields map[string]string) rule.Rule {
	r := rule.Rule{ID: id, Ptype: fields[s.schema.Ptype.Name]}
	for i, col := range s.schema.Fields {
		if v, ok := fields[col.Name]; ok {
			r.V[i] = &v
		}
	}
	return r
}

// Compile-time interface check
var _ store.Store = (*Store)(nil)
