package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hms/console/internal/platform/apiclient"
	"github.com/hms/console/internal/platform/permission"
)

func writeEnvelope(w http.ResponseWriter, status, code int, key string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"StatusCode": code, "MessageKey": key, "Data": data})
}

// fakeAuthBackend accepts alice/secret, issues "good" access tokens and
// rejects every other bearer token.
type fakeAuthBackend struct {
	logoutStatus int
	logoutAuth   atomic.Value
	refreshes    atomic.Int32
	logouts      atomic.Int32
}

func (b *fakeAuthBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/auth/login":
		var cr Credentials
		_ = json.NewDecoder(r.Body).Decode(&cr)
		if cr.Username != "alice" || cr.Password != "secret" {
			writeEnvelope(w, http.StatusOK, 400, "auth.invalid_credentials", nil)
			return
		}
		writeEnvelope(w, http.StatusOK, 200, "ok", apiclient.TokenPair{AccessToken: "good", RefreshToken: "r1"})
	case "/auth/refresh-token":
		b.refreshes.Add(1)
		writeEnvelope(w, http.StatusUnauthorized, 401, "auth.refresh_expired", nil)
	case "/auth/logout":
		b.logouts.Add(1)
		b.logoutAuth.Store(r.Header.Get("Authorization"))
		if b.logoutStatus != 0 {
			http.Error(w, "down", b.logoutStatus)
			return
		}
		writeEnvelope(w, http.StatusOK, 200, "ok", nil)
	case "/auth/current-user":
		if r.Header.Get("Authorization") != "Bearer good" {
			writeEnvelope(w, http.StatusUnauthorized, 401, "auth.expired", nil)
			return
		}
		writeEnvelope(w, http.StatusOK, 200, "ok", User{
			ID:          "u1",
			Username:    "alice",
			Roles:       []permission.Role{permission.RoleNurse},
			Department:  permission.DeptVaccination,
			Permissions: permission.Grants{permission.Vaccination: permission.AccessWrite},
		})
	default:
		http.NotFound(w, r)
	}
}

func newTestManager(t *testing.T, backend http.Handler, nav Navigator) *Manager {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	return NewManager(Config{
		API:       apiclient.DefaultConfig(srv.URL),
		Navigator: nav,
		Logger:    zerolog.Nop(),
	})
}

func TestManager_InitWithoutTokensIsAnonymous(t *testing.T) {
	m := newTestManager(t, &fakeAuthBackend{}, nil)
	if got := m.State().Status(); got != StatusUninitialized {
		t.Fatalf("expected uninitialized before Init, got %s", got)
	}
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got := m.State().Status(); got != StatusAnonymous {
		t.Errorf("expected anonymous, got %s", got)
	}
}

func TestManager_InitRestoresUser(t *testing.T) {
	m := newTestManager(t, &fakeAuthBackend{}, nil)
	m.Client().Tokens().Save(apiclient.TokenPair{AccessToken: "good", RefreshToken: "r1"})

	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	st := m.State()
	if st.Status() != StatusAuthenticated {
		t.Fatalf("expected authenticated, got %s", st.Status())
	}
	if st.Loading {
		t.Error("expected loading to be cleared")
	}
	if !st.User.Subject().Grants.Has(permission.Vaccination) {
		t.Errorf("expected vaccination grant, got %+v", st.User.Permissions)
	}
}

func TestManager_LoginNavigatesHome(t *testing.T) {
	nav := NewRecordingNavigator(LoginRoute)
	m := newTestManager(t, &fakeAuthBackend{}, nav)

	user, err := m.Login(context.Background(), Credentials{Username: "alice", Password: "secret"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("expected alice, got %q", user.Username)
	}
	if nav.Location() != HomeRoute {
		t.Errorf("expected navigation to %s, got %s", HomeRoute, nav.Location())
	}
	if m.State().Status() != StatusAuthenticated {
		t.Errorf("expected authenticated, got %s", m.State().Status())
	}
}

func TestManager_LoginRejected(t *testing.T) {
	nav := NewRecordingNavigator(LoginRoute)
	backend := &fakeAuthBackend{}
	m := newTestManager(t, backend, nav)

	_, err := m.Login(context.Background(), Credentials{Username: "alice", Password: "wrong"})
	var le *LoginError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LoginError, got %v", err)
	}
	if le.MessageKey != "auth.invalid_credentials" {
		t.Errorf("expected auth.invalid_credentials, got %q", le.MessageKey)
	}
	if m.State().Status() != StatusAnonymous {
		t.Errorf("expected anonymous, got %s", m.State().Status())
	}
	if len(nav.History()) != 0 {
		t.Errorf("expected no navigation, got %v", nav.History())
	}
	if backend.refreshes.Load() != 0 {
		t.Errorf("expected no refresh during login, got %d", backend.refreshes.Load())
	}
}

func TestManager_LoginRequiresCredentials(t *testing.T) {
	m := newTestManager(t, &fakeAuthBackend{}, nil)
	_, err := m.Login(context.Background(), Credentials{Username: "alice"})
	var le *LoginError
	if !errors.As(err, &le) || le.MessageKey != KeyCredentialsRequired {
		t.Errorf("expected %s, got %v", KeyCredentialsRequired, err)
	}
}

func TestManager_RefreshFailureExpiresAndRedirects(t *testing.T) {
	nav := NewRecordingNavigator("/vaccination/injection")
	backend := &fakeAuthBackend{}
	m := newTestManager(t, backend, nav)
	m.Client().Tokens().Save(apiclient.TokenPair{AccessToken: "stale", RefreshToken: "r0"})

	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: expected a rejected session to be silent, got %v", err)
	}
	if backend.refreshes.Load() != 1 {
		t.Errorf("expected one refresh attempt, got %d", backend.refreshes.Load())
	}
	if nav.Location() != LoginRoute {
		t.Errorf("expected navigation to %s, got %s", LoginRoute, nav.Location())
	}
	if m.Redirect() != "/vaccination/injection" {
		t.Errorf("expected redirectUrl to be saved, got %q", m.Redirect())
	}
	if !m.Client().Tokens().Load().Empty() {
		t.Error("expected tokens to be cleared")
	}

	if _, err := m.Login(context.Background(), Credentials{Username: "alice", Password: "secret"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if nav.Location() != "/vaccination/injection" {
		t.Errorf("expected return to the saved screen, got %s", nav.Location())
	}
	if m.Redirect() != "" {
		t.Errorf("expected redirectUrl to be consumed, got %q", m.Redirect())
	}
}

func TestManager_LogoutClearsEvenWhenBackendFails(t *testing.T) {
	nav := NewRecordingNavigator(HomeRoute)
	backend := &fakeAuthBackend{logoutStatus: http.StatusServiceUnavailable}
	m := newTestManager(t, backend, nav)
	if _, err := m.Login(context.Background(), Credentials{Username: "alice", Password: "secret"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	m.Logout(context.Background())

	if m.State().Status() != StatusAnonymous {
		t.Errorf("expected anonymous after logout, got %s", m.State().Status())
	}
	if !m.Client().Tokens().Load().Empty() {
		t.Error("expected tokens to be cleared")
	}
	if nav.Location() != LoginRoute {
		t.Errorf("expected %s, got %s", LoginRoute, nav.Location())
	}
	if backend.logouts.Load() != 1 {
		t.Errorf("expected one backend logout call, got %d", backend.logouts.Load())
	}
	if got, _ := backend.logoutAuth.Load().(string); got != "Bearer good" {
		t.Errorf("expected logout to carry the old token, got %q", got)
	}
	if backend.refreshes.Load() != 0 {
		t.Errorf("expected no refresh from logout, got %d", backend.refreshes.Load())
	}
}

func TestManager_LogoutWithoutTokensSkipsBackend(t *testing.T) {
	backend := &fakeAuthBackend{}
	m := newTestManager(t, backend, nil)
	m.Logout(context.Background())
	if backend.logouts.Load() != 0 {
		t.Errorf("expected no backend call, got %d", backend.logouts.Load())
	}
}

func TestManager_SaveRedirectIgnoresLogin(t *testing.T) {
	m := newTestManager(t, &fakeAuthBackend{}, nil)
	m.SaveRedirect(LoginRoute)
	if m.Redirect() != "" {
		t.Errorf("expected login route to be ignored, got %q", m.Redirect())
	}
	m.SaveRedirect("/billing")
	if m.Redirect() != "/billing" {
		t.Errorf("expected /billing, got %q", m.Redirect())
	}
}

func TestManager_TokenExpiryWithoutSession(t *testing.T) {
	m := newTestManager(t, &fakeAuthBackend{}, nil)
	if _, err := m.TokenExpiry(); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
}
