// Package admin manages console accounts, departments and resource-type
// grants.
package admin

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/hms/console/internal/domain"
	"github.com/hms/console/internal/platform/apiclient"
	"github.com/hms/console/internal/platform/permission"
	"github.com/hms/console/pkg/pagination"
)

const (
	usersPath       = "/admin/users"
	departmentsPath = "/admin/departments"
)

// MinPasswordLength applies to passwords set by administrators.
const MinPasswordLength = 10

var (
	usernamePattern = regexp.MustCompile(`^[a-z][a-z0-9._-]{2,31}$`)
	deptCodePattern = regexp.MustCompile(`^[a-z][a-z0-9-]{1,31}$`)
)

var knownRoles = map[permission.Role]bool{
	permission.RoleAdmin: true, permission.RoleDoctor: true, permission.RoleNurse: true,
	permission.RoleReceptionist: true, permission.RolePharmacist: true,
	permission.RoleCashier: true, permission.RoleManager: true,
}

type Service struct {
	api apiclient.Dispatcher
}

func NewService(api apiclient.Dispatcher) *Service {
	return &Service{api: api}
}

// -- Accounts --

func (s *Service) ListUsers(ctx context.Context, p pagination.Params, search string, dept permission.Department) (*pagination.Page[Account], error) {
	q := url.Values{}
	if search = strings.TrimSpace(search); search != "" {
		q.Set("search", search)
	}
	if dept != "" {
		q.Set("department", string(dept))
	}
	return apiclient.GetPage[Account](ctx, s.api, usersPath, p, q)
}

func (s *Service) GetUser(ctx context.Context, id string) (*Account, error) {
	if id == "" {
		return nil, domain.Invalidf("user id is required")
	}
	a, err := apiclient.GetAs[Account](ctx, s.api, userPath(id), nil)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &a, nil
}

func (s *Service) CreateUser(ctx context.Context, a *Account) (*Account, error) {
	a.Username = strings.ToLower(strings.TrimSpace(a.Username))
	if !usernamePattern.MatchString(a.Username) {
		return nil, domain.Invalidf("invalid username: %q", a.Username)
	}
	if strings.TrimSpace(a.FullName) == "" {
		return nil, domain.Invalidf("fullName is required")
	}
	if len(a.Password) < MinPasswordLength {
		return nil, domain.Invalidf("password must be at least %d characters", MinPasswordLength)
	}
	if err := ValidateRoles(a.Roles); err != nil {
		return nil, err
	}
	if err := ValidateGrants(a.Permissions); err != nil {
		return nil, err
	}
	a.Active = true

	created, err := apiclient.PostAs[Account](ctx, s.api, usersPath, a)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	created.Password = ""
	return &created, nil
}

// SetGrants replaces a user's resource-type grants.
func (s *Service) SetGrants(ctx context.Context, id string, grants permission.Grants) (*Account, error) {
	if id == "" {
		return nil, domain.Invalidf("user id is required")
	}
	if err := ValidateGrants(grants); err != nil {
		return nil, err
	}
	a, err := apiclient.PutAs[Account](ctx, s.api, userPath(id)+"/permissions", map[string]permission.Grants{"permissions": grants})
	if err != nil {
		return nil, fmt.Errorf("set grants for user %s: %w", id, err)
	}
	return &a, nil
}

// SetRoles replaces a user's roles.
func (s *Service) SetRoles(ctx context.Context, id string, roles []permission.Role) (*Account, error) {
	if id == "" {
		return nil, domain.Invalidf("user id is required")
	}
	if err := ValidateRoles(roles); err != nil {
		return nil, err
	}
	a, err := apiclient.PutAs[Account](ctx, s.api, userPath(id)+"/roles", map[string][]permission.Role{"roles": roles})
	if err != nil {
		return nil, fmt.Errorf("set roles for user %s: %w", id, err)
	}
	return &a, nil
}

// SetActive enables or disables sign-in for a user.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*Account, error) {
	if id == "" {
		return nil, domain.Invalidf("user id is required")
	}
	a, err := apiclient.PutAs[Account](ctx, s.api, userPath(id)+"/active", map[string]bool{"active": active})
	if err != nil {
		return nil, fmt.Errorf("set active for user %s: %w", id, err)
	}
	return &a, nil
}

// ValidateRoles requires at least one role, all known.
func ValidateRoles(roles []permission.Role) error {
	if len(roles) == 0 {
		return domain.Invalidf("at least one role is required")
	}
	for _, r := range roles {
		if !knownRoles[r] {
			return domain.Invalidf("unknown role: %s", r)
		}
	}
	return nil
}

// ValidateGrants requires every grant to name a known resource type and a
// known access modifier.
func ValidateGrants(g permission.Grants) error {
	for rt, m := range g {
		if !rt.IsKnown() {
			return domain.Invalidf("unknown resource type: %s", rt)
		}
		if !m.IsValid() {
			return domain.Invalidf("invalid access modifier %q for %s", m, rt)
		}
	}
	return nil
}

// -- Departments --

func (s *Service) ListDepartments(ctx context.Context) ([]Department, error) {
	depts, err := apiclient.GetAs[[]Department](ctx, s.api, departmentsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return depts, nil
}

func (s *Service) CreateDepartment(ctx context.Context, d *Department) (*Department, error) {
	d.Code = permission.Department(strings.ToLower(strings.TrimSpace(string(d.Code))))
	if !deptCodePattern.MatchString(string(d.Code)) {
		return nil, domain.Invalidf("invalid department code: %q", d.Code)
	}
	if strings.TrimSpace(d.Name) == "" {
		return nil, domain.Invalidf("department name is required")
	}
	created, err := apiclient.PostAs[Department](ctx, s.api, departmentsPath, d)
	if err != nil {
		return nil, fmt.Errorf("create department: %w", err)
	}
	return &created, nil
}

func userPath(id string) string {
	return usersPath + "/" + url.PathEscape(id)
}
