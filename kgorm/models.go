package kgorm

import (
	"strconv"

	"github.com/getkayan/kcasbin/rule"
)

// gormCasbinRule is the relational row shape: a numeric surrogate key,
// a required ptype and seven nullable positional columns. Column names
// match rule.NewSchema.
type gormCasbinRule struct {
	ID    uint    `gorm:"primaryKey;autoIncrement"`
	Ptype string  `gorm:"size:100;not null"`
	V0    *string `gorm:"size:100"`
	V1    *string `gorm:"size:100"`
	V2    *string `gorm:"size:100"`
	V3    *string `gorm:"size:100"`
	V4    *string `gorm:"size:100"`
	V5    *string `gorm:"size:100"`
	V6    *string `gorm:"size:100"`
}

// TableName returns the default table name. Repositories override it with
// the schema's table on every query.
func (gormCasbinRule) TableName() string {
	return rule.DefaultTable
}

func (g *gormCasbinRule) fields() [rule.MaxFields]**string {
	return [rule.MaxFields]**string{&g.V0, &g.V1, &g.V2, &g.V3, &g.V4, &g.V5, &g.V6}
}

// toCoreRule converts a GORM model to the core rule type.
func toCoreRule(g *gormCasbinRule) rule.Rule {
	r := rule.Rule{
		ID:    strconv.FormatUint(uint64(g.ID), 10),
		Ptype: g.Ptype,
	}
	for i, f := range g.fields() {
		r.V[i] = *f
	}
	return r
}

// fromCoreRule converts a core rule to a GORM model. The ID is left for
// the database to assign.
func fromCoreRule(r rule.Rule) gormCasbinRule {
	g := gormCasbinRule{Ptype: r.Ptype}
	for i, f := range g.fields() {
		if r.V[i] != nil {
			v := *r.V[i]
			*f = &v
		}
	}
	return g
}
