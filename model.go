package kcasbin

import (
	"strings"

	"github.com/casbin/casbin/v2/model"
)

// RBACModel is the model used when no model file is given: subjects,
// objects and actions, with one level of role inheritance.
const RBACModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// LoadModel reads a casbin model file, or returns RBACModel when path is
// empty.
func LoadModel(path string) (model.Model, error) {
	if path == "" {
		return model.NewModelFromString(RBACModel)
	}
	return model.NewModelFromFile(path)
}

// SectionOf returns the model section a ptype belongs to: "g", "g2" and so
// on are role definitions, everything else is a policy.
func SectionOf(ptype string) string {
	if strings.HasPrefix(ptype, "g") {
		return "g"
	}
	return "p"
}
