// Package session owns the console's authentication state: who is signed in,
// the token pair, and where to send the user after a forced login.
package session

import (
	"github.com/hms/console/internal/platform/permission"
)

// User is the signed-in account as returned by the current-user endpoint.
type User struct {
	ID          string                `json:"id"`
	Username    string                `json:"username"`
	FullName    string                `json:"fullName"`
	Email       string                `json:"email,omitempty"`
	Roles       []permission.Role     `json:"roles"`
	Department  permission.Department `json:"department,omitempty"`
	Permissions permission.Grants     `json:"permissions"`
}

// Subject projects the user onto what the permission evaluator reads.
func (u *User) Subject() permission.Subject {
	if u == nil {
		return permission.Subject{}
	}
	return permission.Subject{
		Grants:     u.Permissions,
		Roles:      u.Roles,
		Department: u.Department,
	}
}

// HasRole reports whether the user carries any of the given roles.
func (u *User) HasRole(roles ...permission.Role) bool {
	if u == nil {
		return false
	}
	return permission.HasAnyRole(u.Roles, roles...)
}

// Credentials are posted to the login endpoint.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
