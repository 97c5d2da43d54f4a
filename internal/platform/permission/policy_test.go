package permission

import (
	"strings"
	"testing"
)

func mustDefaultPolicy(t *testing.T) *Policy {
	t.Helper()
	p, err := DefaultPolicy()
	if err != nil {
		t.Fatalf("DefaultPolicy: %v", err)
	}
	return p
}

func TestPolicy_ExaminationCarveOut(t *testing.T) {
	p := mustDefaultPolicy(t)

	vaccReception := Subject{Grants: Grants{VaccinationReception: AccessRead}}
	examOnly := Subject{Grants: Grants{Examination: AccessRead}}

	if d := p.Allow(vaccReception, "/examination"); d.Allowed {
		t.Errorf("expected vaccination-reception holder to be denied /examination, got %+v", d)
	}
	if d := p.Allow(vaccReception, "/examination/history/x"); !d.Allowed {
		t.Errorf("expected vaccination-reception holder to be allowed /examination/history/x, got %+v", d)
	}
	if d := p.Allow(examOnly, "/examination"); !d.Allowed {
		t.Errorf("expected examination holder to be allowed /examination, got %+v", d)
	}
}

func TestPolicy_CarveOutBothGrants(t *testing.T) {
	p := mustDefaultPolicy(t)
	both := Subject{Grants: Grants{Examination: AccessRead, VaccinationReception: AccessRead}}

	if d := p.Allow(both, "/examination"); !d.Allowed {
		t.Errorf("expected examination grant to win over the vaccination-reception deny, got %+v", d)
	}
}

func TestPolicy_CarveOutDoesNotMatchHistoryRoot(t *testing.T) {
	p := mustDefaultPolicy(t)
	vaccReception := Subject{Grants: Grants{VaccinationReception: AccessRead}}

	if d := p.Allow(vaccReception, "/examination/history"); d.Allowed {
		t.Errorf("expected the bare history list to follow the generic rule, got %+v", d)
	}
}

func TestPolicy_DenyReasonIsOverride(t *testing.T) {
	p := mustDefaultPolicy(t)
	d := p.Allow(Subject{Grants: Grants{VaccinationReception: AccessRead}}, "/examination/")
	if d.Allowed || d.Reason != ReasonOverride {
		t.Errorf("expected override denial, got %+v", d)
	}
}

func TestPolicy_GenericRule(t *testing.T) {
	p := mustDefaultPolicy(t)

	tests := []struct {
		name    string
		subject Subject
		path    string
		allowed bool
		reason  string
	}{
		{
			name:    "home needs nothing",
			subject: Subject{},
			path:    "/",
			allowed: true,
		},
		{
			name:    "missing resource type",
			subject: Subject{Grants: Grants{Billing: AccessFull}, Roles: []Role{RoleAdmin}},
			path:    "/inventory",
			reason:  ReasonPermission,
		},
		{
			name:    "role required and held",
			subject: Subject{Grants: Grants{Billing: AccessWrite}, Roles: []Role{RoleCashier}},
			path:    "/billing/payments",
			allowed: true,
		},
		{
			name:    "role required and missing",
			subject: Subject{Grants: Grants{Billing: AccessWrite}, Roles: []Role{RoleNurse}},
			path:    "/billing/payments/42",
			reason:  ReasonRole,
		},
		{
			name:    "inherits parent requirement",
			subject: Subject{Grants: Grants{Reception: AccessRead}},
			path:    "/reception/patients/123/edit",
			allowed: true,
		},
		{
			name:    "department required and matching",
			subject: Subject{Grants: Grants{Pharmacy: AccessRead}, Department: DeptPharmacy},
			path:    "/pharmacy",
			allowed: true,
		},
		{
			name:    "department required and different",
			subject: Subject{Grants: Grants{Pharmacy: AccessRead}, Department: DeptReception},
			path:    "/pharmacy",
			reason:  ReasonDepartment,
		},
		{
			name:    "query string ignored",
			subject: Subject{Grants: Grants{Inventory: AccessRead}},
			path:    "/inventory?page=2",
			allowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Allow(tt.subject, tt.path)
			if d.Allowed != tt.allowed {
				t.Fatalf("expected allowed=%v, got %+v", tt.allowed, d)
			}
			if !tt.allowed && d.Reason != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, d.Reason)
			}
		})
	}
}

func TestPolicy_UnknownRouteWithoutRoot(t *testing.T) {
	table, err := NewRouteTable([]Requirement{{Path: "/billing", RequiredPermissions: []ResourceType{Billing}}})
	if err != nil {
		t.Fatalf("NewRouteTable: %v", err)
	}
	p := NewPolicy(table, nil)

	d := p.Allow(Subject{Grants: Grants{Billing: AccessRead}}, "/elsewhere")
	if d.Allowed || d.Reason != ReasonUnknown {
		t.Errorf("expected unknown route denial, got %+v", d)
	}
}

func TestRouteTable_LongestPrefix(t *testing.T) {
	table, err := DefaultRoutes()
	if err != nil {
		t.Fatalf("DefaultRoutes: %v", err)
	}

	tests := map[string]string{
		"/examination":               "/examination",
		"/examination/history/42":    "/examination/history",
		"/":                       "/",
		"/admin/users/7":          "/admin/users",
		"/vaccination/follow-up/": "/vaccination/follow-up",
	}
	for path, want := range tests {
		req, ok := table.Lookup(path)
		if !ok {
			t.Errorf("Lookup(%q): expected a match", path)
			continue
		}
		if req.Path != want {
			t.Errorf("Lookup(%q) = %q, want %q", path, req.Path, want)
		}
	}
}

func TestRouteTable_RootMatchesOnlyItself(t *testing.T) {
	table, err := DefaultRoutes()
	if err != nil {
		t.Fatalf("DefaultRoutes: %v", err)
	}
	for _, path := range []string{"/examinations", "/vaccination/unknown-stage", "/admin", "/secret"} {
		if req, ok := table.Lookup(path); ok {
			t.Errorf("Lookup(%q): expected no match, got %q", path, req.Path)
		}
	}
}

func TestPolicy_UnlistedScreensDenied(t *testing.T) {
	p := mustDefaultPolicy(t)
	everything := Grants{}
	for _, rt := range AllResourceTypes() {
		everything[rt] = AccessFull
	}

	for _, path := range []string{"/admin", "/vaccination", "/vaccination/x", "/secret"} {
		for _, s := range []Subject{{}, {Grants: everything, Roles: []Role{RoleAdmin}}} {
			d := p.Allow(s, path)
			if d.Allowed || d.Reason != ReasonUnknown {
				t.Errorf("Allow(%q) with %d grants: expected unknown route denial, got %+v", path, len(s.Grants), d)
			}
		}
	}
}

func TestLoadRoutes_Errors(t *testing.T) {
	tests := map[string]string{
		"relative path": "routes:\n  - path: billing\n",
		"duplicate":     "routes:\n  - path: /a\n  - path: /a/\n",
		"unknown type":  "routes:\n  - path: /a\n    requiredPermissions: [surgery]\n",
		"unknown field": "routes:\n  - path: /a\n    roles: [admin]\n",
	}
	for name, doc := range tests {
		if _, err := LoadRoutes(strings.NewReader(doc)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestRouteTable_PathsLongestFirst(t *testing.T) {
	table, err := DefaultRoutes()
	if err != nil {
		t.Fatalf("DefaultRoutes: %v", err)
	}
	paths := table.Paths()
	for i := 1; i < len(paths); i++ {
		if len(paths[i]) > len(paths[i-1]) {
			t.Fatalf("paths not sorted longest first: %q before %q", paths[i-1], paths[i])
		}
	}
}
