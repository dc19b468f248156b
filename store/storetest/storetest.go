// Package storetest holds the behaviour every store.Store must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/getkayan/kcasbin/rule"
	"github.com/getkayan/kcasbin/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

var errAbort = errors.New("storetest: abort")

// Run executes the conformance suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAndFind", func(t *testing.T) { testInsertAndFind(t, newStore(t)) })
	t.Run("NullFields", func(t *testing.T) { testNullFields(t, newStore(t)) })
	t.Run("FindByPattern", func(t *testing.T) { testFindByPattern(t, newStore(t)) })
	t.Run("DeleteByPattern", func(t *testing.T) { testDeleteByPattern(t, newStore(t)) })
	t.Run("DeleteAll", func(t *testing.T) { testDeleteAll(t, newStore(t)) })
	t.Run("TransactionCommit", func(t *testing.T) { testTransactionCommit(t, newStore(t)) })
	t.Run("TransactionRollback", func(t *testing.T) { testTransactionRollback(t, newStore(t)) })
	t.Run("CloseTwice", func(t *testing.T) { testCloseTwice(t, newStore(t)) })
}

// MustRule builds a rule or fails the test.
func MustRule(t *testing.T, ptype string, tuple ...string) rule.Rule {
	t.Helper()
	r, err := rule.FromTuple(ptype, tuple)
	require.NoError(t, err)
	return r
}

// Lines renders found rules as sorted CSV lines for order-free comparison.
func Lines(rules []rule.Rule) []string {
	lines := make([]string, 0, len(rules))
	for _, r := range rules {
		lines = append(lines, r.String())
	}
	sort.Strings(lines)
	return lines
}

func seed(t *testing.T, s store.Store) {
	t.Helper()
	require.NoError(t, s.Insert(context.Background(),
		MustRule(t, "p", "alice", "data1", "read"),
		MustRule(t, "p", "bob", "data2", "write"),
		MustRule(t, "g", "alice", "data2_admin"),
	))
}

func testInsertAndFind(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	seed(t, s)

	rules, err := s.Find(ctx, rule.Pattern{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"g, alice, data2_admin",
		"p, alice, data1, read",
		"p, bob, data2, write",
	}, Lines(rules))

	ids := map[string]bool{}
	for _, r := range rules {
		assert.NotEmpty(t, r.ID)
		ids[r.ID] = true
	}
	assert.Len(t, ids, 3, "ids must be unique")
}

func testNullFields(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx,
		MustRule(t, "p"),
		MustRule(t, "p", "a", "b", "c", "d", "e", "f", "g"),
		MustRule(t, "p", "x", ""),
	))

	rules, err := s.Find(ctx, rule.Pattern{Ptype: "p"})
	require.NoError(t, err)
	require.Len(t, rules, 3)

	arity := map[int][]string{}
	for _, r := range rules {
		arity[r.Arity()] = r.Tuple()
	}
	assert.Equal(t, []string{}, arity[0])
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g"}, arity[7])
	assert.Equal(t, []string{"x", ""}, arity[2])
}

func testFindByPattern(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	seed(t, s)

	rules, err := s.Find(ctx, rule.FieldPattern("p", 0, "alice"))
	require.NoError(t, err)
	assert.Equal(t, []string{"p, alice, data1, read"}, Lines(rules))

	rules, err = s.Find(ctx, rule.FieldPattern("", 0, "alice"))
	require.NoError(t, err)
	assert.Equal(t, []string{"g, alice, data2_admin", "p, alice, data1, read"}, Lines(rules))

	rules, err = s.Find(ctx, rule.FieldPattern("p", 2, "delete"))
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func testDeleteByPattern(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	seed(t, s)

	n, err := s.Delete(ctx, rule.FieldPattern("p", 1, "data2"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rules, err := s.Find(ctx, rule.Pattern{})
	require.NoError(t, err)
	assert.Equal(t, []string{"g, alice, data2_admin", "p, alice, data1, read"}, Lines(rules))

	n, err = s.Delete(ctx, rule.FieldPattern("p", 1, "nothing"))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func testDeleteAll(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	seed(t, s)

	n, err := s.Delete(ctx, rule.Pattern{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	rules, err := s.Find(ctx, rule.Pattern{})
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func testTransactionCommit(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	seed(t, s)

	err := s.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.Delete(ctx, rule.Pattern{}); err != nil {
			return err
		}
		return tx.Insert(ctx, MustRule(t, "p", "carol", "data3", "read"))
	})
	require.NoError(t, err)

	rules, err := s.Find(ctx, rule.Pattern{})
	require.NoError(t, err)
	assert.Equal(t, []string{"p, carol, data3, read"}, Lines(rules))
}

func testTransactionRollback(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	seed(t, s)

	err := s.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.Delete(ctx, rule.Pattern{}); err != nil {
			return err
		}
		if err := tx.Insert(ctx, MustRule(t, "p", "carol", "data3", "read")); err != nil {
			return err
		}
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)

	rules, err := s.Find(ctx, rule.Pattern{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"g, alice, data2_admin",
		"p, alice, data1, read",
		"p, bob, data2, write",
	}, Lines(rules))
}

func testCloseTwice(t *testing.T, s store.Store) {
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
