package kredis

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/getkayan/kcasbin/rule"
	"github.com/getkayan/kcasbin/store"
	"github.com/getkayan/kcasbin/store/storetest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(client, rule.NewSchema("")), mr
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := newTestStore(t)
		return s
	})
}

func TestOpenFromRegistry(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := store.Open(context.Background(), "redis", "redis://"+mr.Addr()+"/0", store.Options{
		Schema: rule.NewSchema("tenant_rules"),
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Insert(context.Background(), storetest.MustRule(t, "p", "alice")))

	members, err := mr.SMembers("tenant_rules:ids")
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestOpenUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = store.Open(context.Background(), "redis", "redis://"+addr, store.Options{})
	assert.Error(t, err)
}

func TestOpenBadDSN(t *testing.T) {
	_, err := store.Open(context.Background(), "redis", "http://nope", store.Options{})
	assert.Error(t, err)
}

func TestUnsetFieldsAreAbsent(t *testing.T) {
	s, mr := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, storetest.MustRule(t, "g", "alice", "admin")))

	rules, err := s.Find(ctx, rule.Pattern{})
	require.NoError(t, err)
	require.Len(t, rules, 1)

	keys, err := mr.HKeys(s.ruleKey(rules[0].ID))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ptype", "v0", "v1"}, keys)
}

func TestTransactionSeesOwnWrites(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, storetest.MustRule(t, "p", "alice", "data1", "read")))

	err := s.Transaction(ctx, func(tx store.Store) error {
		require.NoError(t, tx.Insert(ctx, storetest.MustRule(t, "p", "bob", "data2", "write")))

		rules, err := tx.Find(ctx, rule.FieldPattern("p", 0))
		require.NoError(t, err)
		assert.Len(t, rules, 2)

		n, err := tx.Delete(ctx, rule.FieldPattern("p", 0, "bob"))
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		rules, err = tx.Find(ctx, rule.Pattern{})
		require.NoError(t, err)
		assert.Equal(t, []string{"p, alice, data1, read"}, storetest.Lines(rules))
		return nil
	})
	require.NoError(t, err)

	rules, err := s.Find(ctx, rule.Pattern{})
	require.NoError(t, err)
	assert.Equal(t, []string{"p, alice, data1, read"}, storetest.Lines(rules))
}

func TestTransactionRetriesOnConcurrentWrite(t *testing.T) {
	s, mr := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer other.Close()
	intruder := NewStore(other, rule.NewSchema(""))

	attempts := 0
	err := s.Transaction(ctx, func(tx store.Store) error {
		attempts++
		if attempts == 1 {
			require.NoError(t, intruder.Insert(ctx, storetest.MustRule(t, "p", "intruder")))
		}
		return tx.Insert(ctx, storetest.MustRule(t, "p", "alice"))
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	rules, err := s.Find(ctx, rule.Pattern{})
	require.NoError(t, err)
	assert.Equal(t, []string{"p, alice", "p, intruder"}, storetest.Lines(rules))
}

// commandLog records which commands went out alone and which were pipelined.
type commandLog struct {
	mu        sync.Mutex
	single    []string
	pipelines [][]string
}

func (l *commandLog) DialHook(next redis.DialHook) redis.DialHook { return next }

func (l *commandLog) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		l.mu.Lock()
		l.single = append(l.single, strings.ToLower(cmd.Name()))
		l.mu.Unlock()
		return next(ctx, cmd)
	}
}

func (l *commandLog) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		names := make([]string, len(cmds))
		for i, cmd := range cmds {
			names[i] = strings.ToLower(cmd.Name())
		}
		l.mu.Lock()
		l.pipelines = append(l.pipelines, names)
		l.mu.Unlock()
		return next(ctx, cmds)
	}
}

// reads returns the pipelines that fetched rule hashes.
func (l *commandLog) reads() [][]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var reads [][]string
	for _, names := range l.pipelines {
		for _, name := range names {
			if name == "hgetall" {
				reads = append(reads, names)
				break
			}
		}
	}
	return reads
}

func (l *commandLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.single, l.pipelines = nil, nil
}

func TestFindFetchesRulesInOnePipeline(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx,
		storetest.MustRule(t, "p", "alice", "data1", "read"),
		storetest.MustRule(t, "p", "bob", "data2", "write"),
		storetest.MustRule(t, "g", "alice", "admin"),
	))

	log := &commandLog{}
	s.Client().AddHook(log)

	rules, err := s.Find(ctx, rule.Pattern{})
	require.NoError(t, err)
	assert.Len(t, rules, 3)

	assert.NotContains(t, log.single, "hgetall")
	reads := log.reads()
	require.Len(t, reads, 1)
	assert.Equal(t, []string{"hgetall", "hgetall", "hgetall"}, reads[0])

	log.reset()
	err = s.Transaction(ctx, func(tx store.Store) error {
		found, err := tx.Find(ctx, rule.FieldPattern("p", 0, "bob"))
		require.Len(t, found, 1)
		return err
	})
	require.NoError(t, err)
	assert.NotContains(t, log.single, "hgetall")
	assert.Len(t, log.reads(), 1)
}

func TestFindEmptyIndexSkipsPipeline(t *testing.T) {
	s, _ := newTestStore(t)
	log := &commandLog{}
	s.Client().AddHook(log)

	rules, err := s.Find(context.Background(), rule.Pattern{})
	require.NoError(t, err)
	assert.Empty(t, rules)
	assert.Empty(t, log.reads())
}
