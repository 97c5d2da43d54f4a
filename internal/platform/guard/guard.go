// Package guard gates screens on the session state and the permission policy,
// and filters the sidebar with the same policy.
package guard

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/console/internal/platform/permission"
	"github.com/hms/console/internal/session"
)

// KeyPermissionDenied is the warning toast shown when a screen is refused.
const KeyPermissionDenied = "permission.denied"

// Outcome is what the caller should do with a screen request.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeAllow    Outcome = "allow"
	OutcomeRedirect Outcome = "redirect"
)

// Decision is the result of a guard check.
type Decision struct {
	Outcome    Outcome `json:"outcome"`
	Redirect   string  `json:"redirect,omitempty"`
	MessageKey string  `json:"messageKey,omitempty"`
	Route      string  `json:"route,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// Session is the part of a session the guard reads and writes.
type Session interface {
	State() session.State
	SaveRedirect(path string)
}

// Guard evaluates screen access.
type Guard struct {
	policy *permission.Policy
	menu   []MenuItem
	logger zerolog.Logger
}

// New creates a guard over policy with the embedded sidebar.
func New(policy *permission.Policy, logger zerolog.Logger) (*Guard, error) {
	menu, err := DefaultMenu()
	if err != nil {
		return nil, err
	}
	return &Guard{policy: policy, menu: menu, logger: logger.With().Str("component", "guard").Logger()}, nil
}

// Policy returns the guard's permission policy.
func (g *Guard) Policy() *permission.Policy { return g.policy }

// Check decides what happens when s opens path. An anonymous user is sent to
// the login screen and path is saved as redirectUrl; a denied user is sent home
// with a warning and keeps the session.
func (g *Guard) Check(s Session, path string) Decision {
	st := s.State()
	switch st.Status() {
	case session.StatusUninitialized:
		return Decision{Outcome: OutcomePending}
	case session.StatusAnonymous:
		s.SaveRedirect(path)
		return Decision{Outcome: OutcomeRedirect, Redirect: session.LoginRoute}
	}

	d := g.policy.Allow(st.User.Subject(), path)
	if !d.Allowed {
		g.logger.Debug().
			Str("user", st.User.Username).
			Str("path", path).
			Str("reason", d.Reason).
			Msg("screen denied")
		return Decision{
			Outcome:    OutcomeRedirect,
			Redirect:   session.HomeRoute,
			MessageKey: KeyPermissionDenied,
			Route:      d.Route,
			Reason:     d.Reason,
		}
	}
	return Decision{Outcome: OutcomeAllow, Route: d.Route}
}

// Resolver returns the session for an echo request.
type Resolver func(c echo.Context) (Session, error)

// ContextKeyDecision holds the Decision of an allowed request.
const ContextKeyDecision = "guard.decision"

// Middleware guards every route below mount. The screen path is the request
// path with mount stripped. Refusals are written as a JSON Decision.
func (g *Guard) Middleware(mount string, resolve Resolver, onDenied func(c echo.Context, d Decision)) echo.MiddlewareFunc {
	mount = strings.TrimRight(mount, "/")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, err := resolve(c)
			if err != nil {
				return err
			}
			path := strings.TrimPrefix(c.Request().URL.Path, mount)
			if path == "" {
				path = "/"
			}

			d := g.Check(s, path)
			switch {
			case d.Outcome == OutcomeAllow:
				c.Set(ContextKeyDecision, d)
				return next(c)
			case d.Outcome == OutcomePending:
				c.Response().Header().Set("Retry-After", "1")
				return c.JSON(http.StatusServiceUnavailable, d)
			case d.Redirect == session.LoginRoute:
				return c.JSON(http.StatusUnauthorized, d)
			default:
				if onDenied != nil {
					onDenied(c, d)
				}
				return c.JSON(http.StatusForbidden, d)
			}
		}
	}
}
