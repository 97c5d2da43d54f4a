package permission

import (
	"fmt"
	"strings"
)

// Effect is the outcome an override forces.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Override replaces the generic rule for holders of one resource type on a
// path pattern. Pattern is either an exact path or a prefix ending in "/*",
// which matches any deeper path but not the prefix itself.
type Override struct {
	Pattern string
	Holder  ResourceType
	Effect  Effect
}

func (o Override) matches(path string) bool {
	if strings.HasSuffix(o.Pattern, "/*") {
		prefix := strings.TrimSuffix(o.Pattern, "*")
		return strings.HasPrefix(path, prefix) && len(path) > len(prefix)
	}
	return path == normalizePath(o.Pattern)
}

// ExaminationOverrides is the carve-out for the screens shared between the
// examination desk and vaccination reception. Rows are evaluated in order and
// the first row whose holder the user has wins.
var ExaminationOverrides = []Override{
	{Pattern: "/examination", Holder: Examination, Effect: EffectAllow},
	{Pattern: "/examination", Holder: VaccinationReception, Effect: EffectDeny},
	{Pattern: "/examination/history/*", Holder: VaccinationReception, Effect: EffectAllow},
}

// Denial reasons reported in Decision.Reason.
const (
	ReasonOverride   = "override"
	ReasonPermission = "missing_permission"
	ReasonRole       = "missing_role"
	ReasonDepartment = "wrong_department"
	ReasonUnknown    = "unknown_route"
)

// Decision is the result of evaluating one path for one subject.
type Decision struct {
	Allowed bool
	Route   string
	Reason  string
}

// Policy combines the route table with the override rules.
type Policy struct {
	routes    *RouteTable
	overrides []Override
}

// NewPolicy creates a policy. Overrides are copied.
func NewPolicy(routes *RouteTable, overrides []Override) *Policy {
	o := make([]Override, len(overrides))
	copy(o, overrides)
	return &Policy{routes: routes, overrides: o}
}

// DefaultPolicy returns the embedded route table with the examination
// carve-out applied.
func DefaultPolicy() (*Policy, error) {
	routes, err := DefaultRoutes()
	if err != nil {
		return nil, fmt.Errorf("load default routes: %w", err)
	}
	return NewPolicy(routes, ExaminationOverrides), nil
}

// Routes exposes the underlying table.
func (p *Policy) Routes() *RouteTable {
	return p.routes
}

// Allow decides whether s may open path.
func (p *Policy) Allow(s Subject, path string) Decision {
	path = normalizePath(path)

	for _, o := range p.overrides {
		if s.Grants.Has(o.Holder) && o.matches(path) {
			d := Decision{Allowed: o.Effect == EffectAllow, Route: o.Pattern}
			if !d.Allowed {
				d.Reason = ReasonOverride
			}
			return d
		}
	}

	req, ok := p.routes.Lookup(path)
	if !ok {
		return Decision{Reason: ReasonUnknown}
	}
	d := Decision{Route: req.Path}

	for _, rt := range req.RequiredPermissions {
		if !s.Grants.Has(rt) {
			d.Reason = ReasonPermission
			return d
		}
	}
	if !Evaluate(s.Grants, req.RequiredPermissions, s.Roles, req.RequiredRoles) {
		d.Reason = ReasonRole
		return d
	}
	if len(req.RequiredDepartments) > 0 && !inDepartments(s.Department, req.RequiredDepartments) {
		d.Reason = ReasonDepartment
		return d
	}
	d.Allowed = true
	return d
}
