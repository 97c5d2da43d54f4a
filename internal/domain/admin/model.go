package admin

import (
	"github.com/hms/console/internal/platform/permission"
)

// Account is a console user as managed by administrators.
type Account struct {
	ID          string                `json:"id,omitempty"`
	Username    string                `json:"username"`
	FullName    string                `json:"fullName"`
	Email       string                `json:"email,omitempty"`
	Roles       []permission.Role     `json:"roles"`
	Department  permission.Department `json:"department,omitempty"`
	Permissions permission.Grants     `json:"permissions"`
	Active      bool                  `json:"active"`
	Password    string                `json:"password,omitempty"`
}

// Department is an organisational unit.
type Department struct {
	ID   string                `json:"id,omitempty"`
	Code permission.Department `json:"code"`
	Name string                `json:"name"`
	Head string                `json:"headUserId,omitempty"`
}
