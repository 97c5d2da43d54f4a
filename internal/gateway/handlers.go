package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hms/console/internal/platform/guard"
	"github.com/hms/console/internal/platform/middleware"
	"github.com/hms/console/internal/platform/permission"
	"github.com/hms/console/internal/platform/websocket"
	"github.com/hms/console/internal/session"
)

const contextKeyBrowser = "gateway.browser"

func browserFrom(c echo.Context) *Browser {
	b, _ := c.Get(contextKeyBrowser).(*Browser)
	return b
}

// sessions resolves the browser session from the cookie, creating one when
// the cookie is missing, invalid or names an expired record.
func (s *Server) sessions() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			b := s.resume(c)
			if b == nil {
				created, err := s.registry.Create(ctx)
				if err != nil {
					return err
				}
				if err := s.setCookie(c, created); err != nil {
					return err
				}
				b = created
			} else if rec := b.Binding().Record(); time.Since(rec.UpdatedAt) > s.cfg.SessionTTL/2 {
				b.Binding().Touch()
				if err := s.setCookie(c, b); err != nil {
					return err
				}
			}

			c.Set(contextKeyBrowser, b)
			c.Set(middleware.KeySessionID, b.ID())
			if err := b.ensureInit(ctx); err != nil {
				s.logger.Warn().Err(err).Str("session_id", b.ID()).Msg("session init failed")
			}
			setUser(c, b.Manager().User())
			return next(c)
		}
	}
}

func (s *Server) resume(c echo.Context) *Browser {
	ck, err := c.Cookie(CookieName)
	if err != nil || ck.Value == "" {
		return nil
	}
	id, err := s.cookies.Parse(ck.Value)
	if err != nil {
		s.logger.Debug().Err(err).Msg("session cookie rejected")
		return nil
	}
	b, err := s.registry.Open(c.Request().Context(), id)
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			s.logger.Error().Err(err).Str("session_id", id).Msg("open browser session")
		}
		return nil
	}
	return b
}

func (s *Server) setCookie(c echo.Context, b *Browser) error {
	ck, err := s.cookies.Issue(b.ID())
	if err != nil {
		return err
	}
	c.SetCookie(ck)
	return nil
}

func setUser(c echo.Context, u *session.User) {
	if u == nil {
		c.Set(middleware.KeyUsername, "")
		c.Set(middleware.KeyUserRoles, []string(nil))
		return
	}
	roles := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		roles[i] = string(r)
	}
	c.Set(middleware.KeyUsername, u.Username)
	c.Set(middleware.KeyUserRoles, roles)
}

type sessionView struct {
	User           *session.User `json:"user"`
	Location       string        `json:"location,omitempty"`
	Redirect       string        `json:"redirect,omitempty"`
	TokenExpiresAt *time.Time    `json:"tokenExpiresAt,omitempty"`
}

func (s *Server) login(c echo.Context) error {
	b := browserFrom(c)
	var cr session.Credentials
	if err := c.Bind(&cr); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, KeyInvalidJSON)
	}

	user, err := b.Manager().Login(c.Request().Context(), cr)
	if err != nil {
		var le *session.LoginError
		if errors.As(err, &le) {
			status := http.StatusUnauthorized
			if le.MessageKey == session.KeyCredentialsRequired {
				status = http.StatusBadRequest
			}
			return echo.NewHTTPError(status, le.MessageKey)
		}
		return backendError(err)
	}

	if err := s.setCookie(c, b); err != nil {
		return err
	}
	setUser(c, user)
	return respond(c, http.StatusOK, sessionView{User: user, Location: b.Binding().Location()})
}

func (s *Server) logout(c echo.Context) error {
	b := browserFrom(c)
	b.Manager().Logout(c.Request().Context())
	setUser(c, nil)
	return respond(c, http.StatusOK, sessionView{Location: b.Binding().Location()})
}

func (s *Server) me(c echo.Context) error {
	b := browserFrom(c)
	user := b.Manager().User()
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, KeyAuthRequired)
	}
	view := sessionView{User: user, Location: b.Binding().Location(), Redirect: b.Manager().Redirect()}
	if exp, err := b.Manager().TokenExpiry(); err == nil {
		view.TokenExpiresAt = &exp
	}
	return respond(c, http.StatusOK, view)
}

func (s *Server) navigation(c echo.Context) error {
	return respond(c, http.StatusOK, s.guard.Navigation(browserFrom(c).Manager().User()))
}

func (s *Server) resolveSession(c echo.Context) (guard.Session, error) {
	b := browserFrom(c)
	if b == nil {
		return nil, errors.New("gateway: no browser session on request")
	}
	return b.Manager(), nil
}

// denied warns the browser and sends it home; the session is kept.
func (s *Server) denied(c echo.Context, d guard.Decision) {
	b := browserFrom(c)
	s.hub.Toast(b.ID(), websocket.LevelWarning, d.MessageKey)
	b.Manager().Navigator().Navigate(d.Redirect)
}

type screenView struct {
	Path        string                  `json:"path"`
	Route       string                  `json:"route"`
	Requirement *permission.Requirement `json:"requirement,omitempty"`
	User        *session.User           `json:"user"`
}

func screenPath(c echo.Context) string {
	path := strings.TrimPrefix(c.Request().URL.Path, "/screens")
	if path == "" {
		return "/"
	}
	return path
}

// screen bootstraps any guarded screen: it records the location and returns
// what the screen was admitted under.
func (s *Server) screen(c echo.Context) error {
	b := browserFrom(c)
	path := screenPath(c)
	d, _ := c.Get(guard.ContextKeyDecision).(guard.Decision)
	b.Binding().SetLocation(path)

	view := screenView{Path: path, Route: d.Route, User: b.Manager().User()}
	if req, ok := s.guard.Policy().Routes().Lookup(path); ok {
		view.Requirement = &req
	}
	return respond(c, http.StatusOK, view)
}

// proxy forwards /api/<path> to the backend as the session's user. The
// backend envelope is returned unchanged; failures are also toasted to the
// browser under their message key.
func (s *Server) proxy(c echo.Context) error {
	b := browserFrom(c)
	if b.Manager().User() == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, KeyAuthRequired)
	}

	req := c.Request()
	path := strings.TrimPrefix(req.URL.Path, "/api")
	if path == "" {
		path = "/"
	}
	if req.URL.RawQuery != "" {
		path += "?" + req.URL.RawQuery
	}

	var body any
	if req.Body != nil {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return err
		}
		if len(bytes.TrimSpace(raw)) > 0 {
			if !json.Valid(raw) {
				return echo.NewHTTPError(http.StatusBadRequest, KeyInvalidJSON)
			}
			body = json.RawMessage(raw)
		}
	}

	env, err := b.Manager().Client().Do(req.Context(), req.Method, path, body, nil)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, env)
}

// resolveTopic fixes a socket to the browser session it connected with.
func (s *Server) resolveTopic(c echo.Context) (string, error) {
	b := browserFrom(c)
	if b == nil {
		return "", echo.NewHTTPError(http.StatusUnauthorized, KeyAuthRequired)
	}
	return b.ID(), nil
}

func (s *Server) reportLocation(topic, path string) {
	if b, ok := s.registry.Lookup(topic); ok {
		b.Binding().SetLocation(path)
	}
}
