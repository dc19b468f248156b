package kcasbin

import (
	"errors"
	"fmt"

	"github.com/getkayan/kcasbin/rule"
)

// ErrUnsupportedFilter is returned by LoadFilteredPolicy for filter values
// it cannot turn into a rule pattern.
var ErrUnsupportedFilter = errors.New("kcasbin: unsupported filter")

// Filter selects rules by exact field values. Empty fields match anything.
//
// LoadFilteredPolicy also accepts *Filter, a rule.Pattern, and a
// map[string]string keyed by column name ("ptype", "v0".."v6").
type Filter struct {
	Ptype string
	V0    string
	V1    string
	V2    string
	V3    string
	V4    string
	V5    string
	V6    string
}

// Pattern converts the filter to a rule pattern.
func (f Filter) Pattern() rule.Pattern {
	p := rule.Pattern{Ptype: f.Ptype}
	for i, v := range [rule.MaxFields]string{f.V0, f.V1, f.V2, f.V3, f.V4, f.V5, f.V6} {
		if v != "" {
			val := v
			p.V[i] = &val
		}
	}
	return p
}

func patternFor(filter interface{}) (rule.Pattern, error) {
	switch f := filter.(type) {
	case Filter:
		return f.Pattern(), nil
	case *Filter:
		if f == nil {
			return rule.Pattern{}, nil
		}
		return f.Pattern(), nil
	case rule.Pattern:
		return f, nil
	case map[string]string:
		p, ok := rule.Where(rule.NewSchema(""), f)
		if !ok {
			return rule.Pattern{}, fmt.Errorf("%w: unknown column in %v", ErrUnsupportedFilter, f)
		}
		return p, nil
	default:
		return rule.Pattern{}, fmt.Errorf("%w: %T", ErrUnsupportedFilter, filter)
	}
}
