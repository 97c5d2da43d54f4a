package middleware

// Echo context keys shared by the middleware chain and the gateway handlers.
const (
	KeyRequestID = "request_id"
	KeySessionID = "session_id"
	KeyUsername  = "username"
	KeyUserRoles = "user_roles"
)

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
