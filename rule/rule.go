// Package rule defines the persisted form of a casbin policy line.
//
// A policy line is a ptype plus an ordered tuple of up to MaxFields values.
// Stores keep it as a fixed-width row: one ptype column and the nullable
// positional columns v0..v6. This package converts between the two shapes
// and builds the match patterns used for filtered reads and deletes.
//
// # Null semantics
//
// Field n of a Rule is set if and only if the source tuple had more than n
// elements. Reading a Rule back drops trailing unset fields; an unset field
// in the middle of a row comes back as an empty string so positions keep
// their meaning.
package rule

import (
	"errors"
	"fmt"
	"strings"
)

// MaxFields is the number of positional columns (v0..v6).
const MaxFields = 7

// ErrTooManyFields is returned when a tuple does not fit in MaxFields columns.
var ErrTooManyFields = errors.New("rule: tuple has more fields than supported")

// Rule is one stored policy line.
type Rule struct {
	// ID is assigned by the store and is empty for rules not yet persisted.
	ID    string
	Ptype string
	V     [MaxFields]*string
}

// FromTuple flattens a ptype and tuple into a Rule.
func FromTuple(ptype string, tuple []string) (Rule, error) {
	if len(tuple) > MaxFields {
		return Rule{}, fmt.Errorf("%w: %d > %d", ErrTooManyFields, len(tuple), MaxFields)
	}

	r := Rule{Ptype: ptype}
	for i := range tuple {
		v := tuple[i]
		r.V[i] = &v
	}
	return r, nil
}

// FromTuples maps every tuple of a batch, failing on the first bad one.
func FromTuples(ptype string, tuples [][]string) ([]Rule, error) {
	rules := make([]Rule, 0, len(tuples))
	for _, t := range tuples {
		r, err := FromTuple(ptype, t)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Arity returns the number of fields up to and including the last set one.
func (r Rule) Arity() int {
	for i := MaxFields - 1; i >= 0; i-- {
		if r.V[i] != nil {
			return i + 1
		}
	}
	return 0
}

// Tuple rebuilds the ordered tuple stored in the rule.
func (r Rule) Tuple() []string {
	n := r.Arity()
	tuple := make([]string, n)
	for i := 0; i < n; i++ {
		if r.V[i] != nil {
			tuple[i] = *r.V[i]
		}
	}
	return tuple
}

// Line returns the ptype followed by the tuple, one row of a casbin CSV
// policy file.
func (r Rule) Line() []string {
	return append([]string{r.Ptype}, r.Tuple()...)
}

// Field returns the value at position i and whether it is set.
func (r Rule) Field(i int) (string, bool) {
	if i < 0 || i >= MaxFields || r.V[i] == nil {
		return "", false
	}
	return *r.V[i], true
}

// String renders the rule the way casbin CSV policy files do.
func (r Rule) String() string {
	return strings.Join(r.Line(), ", ")
}
