package rule

// Pattern is a partial rule used as a read or delete predicate.
// An empty Ptype and nil fields are wildcards.
type Pattern struct {
	Ptype string
	V     [MaxFields]*string
}

// Condition is one column equality of a pattern.
type Condition struct {
	Column string
	Value  string
}

// Example turns a rule into a match-by-example pattern. Only set fields
// constrain the match, an empty string included.
func Example(r Rule) Pattern {
	p := Pattern{Ptype: r.Ptype}
	for i, v := range r.V {
		if v != nil {
			val := *v
			p.V[i] = &val
		}
	}
	return p
}

// FieldPattern maps fieldValues onto the positions starting at fieldIndex.
// Positions outside 0..MaxFields-1 are ignored, and so are empty values,
// which casbin treats as "any value".
func FieldPattern(ptype string, fieldIndex int, fieldValues ...string) Pattern {
	p := Pattern{Ptype: ptype}
	for pos := 0; pos < MaxFields; pos++ {
		if fieldIndex <= pos && pos < fieldIndex+len(fieldValues) {
			v := fieldValues[pos-fieldIndex]
			if v == "" {
				continue
			}
			p.V[pos] = &v
		}
	}
	return p
}

// Where builds a pattern from column values keyed by schema column names.
// Empty values are wildcards. Unknown columns are reported through ok.
func Where(s Schema, values map[string]string) (p Pattern, ok bool) {
	for col, v := range values {
		switch {
		case col == s.Ptype.Name:
			p.Ptype = v
		default:
			i := s.FieldIndex(col)
			if i < 0 {
				return Pattern{}, false
			}
			if v != "" {
				val := v
				p.V[i] = &val
			}
		}
	}
	return p, true
}

// IsEmpty reports whether the pattern matches every rule.
func (p Pattern) IsEmpty() bool {
	if p.Ptype != "" {
		return false
	}
	for _, v := range p.V {
		if v != nil {
			return false
		}
	}
	return true
}

// Matches reports whether r satisfies every constraint of the pattern.
func (p Pattern) Matches(r Rule) bool {
	if p.Ptype != "" && p.Ptype != r.Ptype {
		return false
	}
	for i, want := range p.V {
		if want == nil {
			continue
		}
		if r.V[i] == nil || *r.V[i] != *want {
			return false
		}
	}
	return true
}

// Conditions lists the constrained columns in schema order.
func (p Pattern) Conditions(s Schema) []Condition {
	var conds []Condition
	if p.Ptype != "" {
		conds = append(conds, Condition{Column: s.Ptype.Name, Value: p.Ptype})
	}
	for i, v := range p.V {
		if v != nil {
			conds = append(conds, Condition{Column: s.Fields[i].Name, Value: *v})
		}
	}
	return conds
}
