package permission

// Evaluate grants access when the user holds every required resource type
// and, if any roles are required, at least one of them.
func Evaluate(grants Grants, requiredPermissions []ResourceType, roles []Role, requiredRoles []Role) bool {
	for _, rt := range requiredPermissions {
		if !grants.Has(rt) {
			return false
		}
	}
	if len(requiredRoles) == 0 {
		return true
	}
	return HasAnyRole(roles, requiredRoles...)
}

// HasAnyRole reports whether roles contains at least one of wanted.
func HasAnyRole(roles []Role, wanted ...Role) bool {
	for _, w := range wanted {
		for _, r := range roles {
			if r == w {
				return true
			}
		}
	}
	return false
}

func inDepartments(d Department, allowed []Department) bool {
	for _, a := range allowed {
		if a == d {
			return true
		}
	}
	return false
}
