package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// AuditEntry records who opened which screen or called which backend resource.
type AuditEntry struct {
	SessionID  string
	Username   string
	UserRoles  []string
	Surface    string // screen or api
	Resource   string
	Action     string // read, create, update, delete
	Path       string
	Method     string
	IPAddress  string
	UserAgent  string
	StatusCode int
	RequestID  string
	Timestamp  time.Time
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every screen bootstrap and proxied backend call after it
// completes. Entries also go to recorder when one is given.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			surface, resource := classifyPath(req.URL.Path)
			if surface == "" {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			roles, _ := c.Get(KeyUserRoles).([]string)
			entry := AuditEntry{
				SessionID:  stringValue(c.Get(KeySessionID)),
				Username:   stringValue(c.Get(KeyUsername)),
				UserRoles:  roles,
				Surface:    surface,
				Resource:   resource,
				Action:     httpMethodToAction(req.Method),
				Path:       req.URL.Path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: status,
				RequestID:  stringValue(c.Get(KeyRequestID)),
				Timestamp:  time.Now().UTC(),
			}

			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			evt := logger.Info()
			if status == http.StatusForbidden {
				evt = logger.Warn()
			}
			evt.
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("session_id", entry.SessionID).
				Str("user", entry.Username).
				Strs("user_roles", entry.UserRoles).
				Str("surface", entry.Surface).
				Str("resource", entry.Resource).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("console_access")

			return err
		}
	}
}

// classifyPath returns the audited surface and the first resource segment.
//
//	/screens/examination/history/4 -> screen, examination
//	/api/patients/12               -> api, patients
func classifyPath(path string) (surface, resource string) {
	var rest string
	switch {
	case strings.HasPrefix(path, "/screens/") || path == "/screens":
		surface, rest = "screen", strings.TrimPrefix(path, "/screens")
	case strings.HasPrefix(path, "/api/"):
		surface, rest = "api", strings.TrimPrefix(path, "/api")
	default:
		return "", ""
	}
	rest = strings.TrimPrefix(rest, "/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		rest = "home"
	}
	return surface, rest
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
