// Package api exposes an adapter's policy operations over HTTP.
package api

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"slices"

	"github.com/casbin/casbin/v2/model"
	"github.com/getkayan/kcasbin"
	"github.com/getkayan/kcasbin/rule"
	"github.com/labstack/echo/v4"
)

// PolicyAdapter is the subset of *kcasbin.Adapter the handler drives.
type PolicyAdapter interface {
	LoadPolicyCtx(ctx context.Context, m model.Model) error
	LoadFilteredPolicyCtx(ctx context.Context, m model.Model, filter interface{}) error
	AddPoliciesCtx(ctx context.Context, sec string, ptype string, rules [][]string) error
	RemovePoliciesCtx(ctx context.Context, sec string, ptype string, rules [][]string) error
	RemoveFilteredPolicyCtx(ctx context.Context, sec string, ptype string, fieldIndex int, fieldValues ...string) error
}

// ModelFactory returns an empty model for each read.
type ModelFactory func() (model.Model, error)

// Policy is one rule as rendered by the API.
type Policy struct {
	Ptype string   `json:"ptype"`
	Rule  []string `json:"rule"`
}

type Handler struct {
	adapter  PolicyAdapter
	newModel ModelFactory
}

func NewHandler(a PolicyAdapter, newModel ModelFactory) *Handler {
	return &Handler{adapter: a, newModel: newModel}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/healthz", h.HandleHealth)
	g.GET("/policies", h.HandleListPolicies)
	g.POST("/policies", h.HandleAddPolicies)
	g.POST("/policies/delete", h.HandleRemovePolicies)
	g.POST("/policies/delete-filtered", h.HandleRemoveFilteredPolicy)
}

func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleListPolicies loads every rule, or only the rules matching the ptype
// and v0..v6 query parameters when any of them is present.
func (h *Handler) HandleListPolicies(c echo.Context) error {
	m, err := h.newModel()
	if err != nil {
		return h.Error(c, http.StatusInternalServerError, "Model unavailable", err)
	}

	ctx := c.Request().Context()
	if filter := queryFilter(c); filter != nil {
		err = h.adapter.LoadFilteredPolicyCtx(ctx, m, filter)
	} else {
		err = h.adapter.LoadPolicyCtx(ctx, m)
	}
	if err != nil {
		return h.Error(c, statusFor(err), "Load failed", err)
	}

	return c.JSON(http.StatusOK, policiesOf(m))
}

type rulesBody struct {
	Ptype string     `json:"ptype"`
	Rules [][]string `json:"rules"`
}

func (h *Handler) HandleAddPolicies(c echo.Context) error {
	body, err := bindRules(c)
	if err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}

	if err := h.adapter.AddPoliciesCtx(c.Request().Context(), kcasbin.SectionOf(body.Ptype), body.Ptype, body.Rules); err != nil {
		return h.Error(c, statusFor(err), "Add failed", err)
	}
	return c.JSON(http.StatusCreated, map[string]int{"added": len(body.Rules)})
}

func (h *Handler) HandleRemovePolicies(c echo.Context) error {
	body, err := bindRules(c)
	if err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}

	if err := h.adapter.RemovePoliciesCtx(c.Request().Context(), kcasbin.SectionOf(body.Ptype), body.Ptype, body.Rules); err != nil {
		return h.Error(c, statusFor(err), "Remove failed", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) HandleRemoveFilteredPolicy(c echo.Context) error {
	var body struct {
		Ptype       string   `json:"ptype"`
		FieldIndex  *int     `json:"field_index"`
		FieldValues []string `json:"field_values"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}
	if body.Ptype == "" || body.FieldIndex == nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", errors.New("ptype and field_index are required"))
	}

	err := h.adapter.RemoveFilteredPolicyCtx(c.Request().Context(), kcasbin.SectionOf(body.Ptype), body.Ptype, *body.FieldIndex, body.FieldValues...)
	if err != nil {
		return h.Error(c, statusFor(err), "Remove failed", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "removed"})
}

// Error writes the error response.
func (h *Handler) Error(c echo.Context, code int, message string, err error) error {
	resp := map[string]interface{}{
		"status": message,
		"code":   code,
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	return c.JSON(code, resp)
}

func bindRules(c echo.Context) (rulesBody, error) {
	var body rulesBody
	if err := c.Bind(&body); err != nil {
		return body, err
	}
	if body.Ptype == "" {
		return body, errors.New("ptype is required")
	}
	return body, nil
}

// queryFilter collects the ptype and v0..v6 query parameters, or returns
// nil when none is set.
func queryFilter(c echo.Context) map[string]string {
	schema := rule.NewSchema("")
	filter := map[string]string{}
	for _, col := range schema.Columns() {
		if col.Type == rule.TypeKey {
			continue
		}
		if v := c.QueryParam(col.Name); v != "" {
			filter[col.Name] = v
		}
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}

// policiesOf lists the p and g rules of m, ptypes in sorted order.
func policiesOf(m model.Model) []Policy {
	policies := []Policy{}
	for _, sec := range []string{"p", "g"} {
		for _, ptype := range slices.Sorted(maps.Keys(m[sec])) {
			for _, r := range m[sec][ptype].Policy {
				policies = append(policies, Policy{Ptype: ptype, Rule: r})
			}
		}
	}
	return policies
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, rule.ErrTooManyFields), errors.Is(err, kcasbin.ErrUnsupportedFilter):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
