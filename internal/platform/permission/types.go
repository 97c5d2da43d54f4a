package permission

import "strings"

// ResourceType is a named permission domain a user may be granted access to.
type ResourceType string

const (
	Reception            ResourceType = "reception"
	VaccinationReception ResourceType = "vaccination-reception"
	Vaccination          ResourceType = "vaccination"
	Examination          ResourceType = "examination"
	Inventory            ResourceType = "inventory"
	Pharmacy             ResourceType = "pharmacy"
	Billing              ResourceType = "billing"
	UserManagement       ResourceType = "user-management"
	DepartmentManagement ResourceType = "department-management"
	Report               ResourceType = "report"
)

var knownResourceTypes = map[ResourceType]bool{
	Reception: true, VaccinationReception: true, Vaccination: true,
	Examination: true, Inventory: true, Pharmacy: true, Billing: true,
	UserManagement: true, DepartmentManagement: true, Report: true,
}

// AllResourceTypes lists the resource types in menu order.
func AllResourceTypes() []ResourceType {
	return []ResourceType{
		Reception, VaccinationReception, Vaccination, Examination, Inventory,
		Pharmacy, Billing, UserManagement, DepartmentManagement, Report,
	}
}

// IsKnown reports whether rt is one of the hospital's resource types.
func (rt ResourceType) IsKnown() bool {
	return knownResourceTypes[rt]
}

// AccessModifier qualifies a grant. Modifiers are ordered: read < write < full.
type AccessModifier string

const (
	AccessRead  AccessModifier = "read"
	AccessWrite AccessModifier = "write"
	AccessFull  AccessModifier = "full"
)

// IsValid reports whether m is one of the known modifiers.
func (m AccessModifier) IsValid() bool {
	return m.rank() > 0
}

func (m AccessModifier) rank() int {
	switch AccessModifier(strings.ToLower(string(m))) {
	case AccessRead:
		return 1
	case AccessWrite:
		return 2
	case AccessFull:
		return 3
	default:
		return 0
	}
}

// Role is a user role as issued by the backend.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleDoctor       Role = "doctor"
	RoleNurse        Role = "nurse"
	RoleReceptionist Role = "receptionist"
	RolePharmacist   Role = "pharmacist"
	RoleCashier      Role = "cashier"
	RoleManager      Role = "manager"
)

// Department is the organisational unit a user belongs to.
type Department string

const (
	DeptReception      Department = "reception"
	DeptVaccination    Department = "vaccination"
	DeptExamination    Department = "examination"
	DeptPharmacy       Department = "pharmacy"
	DeptAccounting     Department = "accounting"
	DeptAdministration Department = "administration"
)

// Grants maps each granted resource type to its access modifier.
type Grants map[ResourceType]AccessModifier

// Has reports whether the resource type is granted at any level.
func (g Grants) Has(rt ResourceType) bool {
	_, ok := g[rt]
	return ok
}

// Allows reports whether rt is granted at min level or above.
func (g Grants) Allows(rt ResourceType, min AccessModifier) bool {
	m, ok := g[rt]
	if !ok {
		return false
	}
	return m.rank() >= min.rank()
}

// Subject is everything the evaluator needs to know about a user.
type Subject struct {
	Grants     Grants
	Roles      []Role
	Department Department
}
