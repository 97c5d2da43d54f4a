package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hms/console/internal/platform/apiclient"
)

// ErrNotAuthenticated is returned by operations that need a signed-in user.
var ErrNotAuthenticated = errors.New("session: not authenticated")

// LoginError is a rejected login. MessageKey is the backend's translation key.
type LoginError struct {
	MessageKey string
	Err        error
}

func (e *LoginError) Error() string {
	return "login rejected: " + e.MessageKey
}

func (e *LoginError) Unwrap() error { return e.Err }

// Message keys produced by the console itself.
const (
	KeyCredentialsRequired = "auth.credentials_required"
	KeyLoginFailed         = "auth.login_failed"
	KeySessionExpired      = "auth.session_expired"
)

// RedirectStore holds the single redirectUrl entry.
type RedirectStore interface {
	LoadRedirect() string
	SaveRedirect(path string)
}

type memoryRedirect struct {
	mu   sync.Mutex
	path string
}

func (r *memoryRedirect) LoadRedirect() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

func (r *memoryRedirect) SaveRedirect(path string) {
	r.mu.Lock()
	r.path = path
	r.mu.Unlock()
}

// Status is the coarse lifecycle position of a session.
type Status int

const (
	StatusUninitialized Status = iota
	StatusAnonymous
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "uninitialized"
	}
}

// State is a snapshot of the session flags.
type State struct {
	Initialized bool
	Loading     bool
	User        *User
}

// Status derives the lifecycle position from the flags.
func (s State) Status() Status {
	switch {
	case !s.Initialized:
		return StatusUninitialized
	case s.User != nil:
		return StatusAuthenticated
	default:
		return StatusAnonymous
	}
}

// Config wires a Manager.
type Config struct {
	API       apiclient.Config
	Tokens    apiclient.TokenStore
	Redirects RedirectStore
	Navigator Navigator
	Logger    zerolog.Logger
	// ClientOptions are appended after the manager's own client options.
	ClientOptions []apiclient.Option
}

// Manager is the explicitly owned session handle. It is created per browser
// session by the gateway and once per process by the CLI, and passed to the
// guard and handlers that need it.
type Manager struct {
	cfg       apiclient.Config
	client    *apiclient.Client
	tokens    apiclient.TokenStore
	redirects RedirectStore
	nav       Navigator
	logger    zerolog.Logger

	mu          sync.RWMutex
	initialized bool
	loading     bool
	loggingIn   bool
	user        *User
}

// NewManager builds a manager and its API client. The client's refresh
// interceptor reports failures back to Expire.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		cfg:       cfg.API,
		tokens:    cfg.Tokens,
		redirects: cfg.Redirects,
		nav:       cfg.Navigator,
		logger:    cfg.Logger.With().Str("component", "session").Logger(),
	}
	if m.tokens == nil {
		m.tokens = apiclient.NewMemoryTokenStore()
	}
	if m.redirects == nil {
		m.redirects = &memoryRedirect{}
	}
	if m.nav == nil {
		m.nav = NewRecordingNavigator(HomeRoute)
	}

	opts := []apiclient.Option{
		apiclient.WithTokenStore(m.tokens),
		apiclient.WithLogger(cfg.Logger),
		apiclient.WithLoginScreen(m.onLoginScreen),
		apiclient.WithRefreshFailure(m.Expire),
	}
	m.client = apiclient.New(cfg.API, append(opts, cfg.ClientOptions...)...)
	return m
}

// Client returns the dispatcher bound to this session.
func (m *Manager) Client() *apiclient.Client { return m.client }

// Navigator returns the session's navigator.
func (m *Manager) Navigator() Navigator { return m.nav }

// State returns a snapshot of the session flags.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return State{Initialized: m.initialized, Loading: m.loading, User: m.user}
}

// User returns the signed-in user, or nil.
func (m *Manager) User() *User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user
}

// Init fetches the current user. Without a stored access token no call is
// made. A rejected token leaves the session anonymous without an error; any
// other failure is returned, and the session is still marked initialized so
// guards do not wait forever.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	m.loading = true
	m.mu.Unlock()

	var (
		user *User
		err  error
	)
	if !m.tokens.Load().Empty() {
		user, err = m.fetchUser(ctx)
	}

	m.mu.Lock()
	m.loading = false
	m.initialized = true
	m.user = user
	m.mu.Unlock()

	if err != nil {
		if errors.Is(err, apiclient.ErrRefreshFailed) || apiclient.IsUnauthorized(err) {
			m.logger.Debug().Err(err).Msg("stored session rejected")
			return nil
		}
		return fmt.Errorf("init session: %w", err)
	}
	if user != nil {
		m.logger.Debug().Str("user", user.Username).Msg("session restored")
	}
	return nil
}

// Login exchanges credentials for a token pair, loads the profile and
// navigates to the saved redirectUrl or home. On rejection the session stays
// anonymous and a *LoginError carries the backend's message key.
func (m *Manager) Login(ctx context.Context, cr Credentials) (*User, error) {
	if cr.Username == "" || cr.Password == "" {
		return nil, &LoginError{MessageKey: KeyCredentialsRequired}
	}

	m.mu.Lock()
	m.loggingIn = true
	m.loading = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.loggingIn = false
		m.loading = false
		m.initialized = true
		m.mu.Unlock()
	}()

	var pair apiclient.TokenPair
	if _, err := m.client.Post(ctx, m.cfg.LoginPath, cr, &pair); err != nil {
		if key := apiclient.MessageKeyOf(err); key != "" {
			return nil, &LoginError{MessageKey: key, Err: err}
		}
		if apiclient.StatusOf(err) == http.StatusUnauthorized {
			return nil, &LoginError{MessageKey: KeyLoginFailed, Err: err}
		}
		return nil, fmt.Errorf("login: %w", err)
	}
	if pair.Empty() {
		return nil, &LoginError{MessageKey: KeyLoginFailed, Err: errors.New("login response carried no access token")}
	}
	m.tokens.Save(pair)

	user, err := m.fetchUser(ctx)
	if err != nil {
		m.tokens.Save(apiclient.TokenPair{})
		return nil, fmt.Errorf("load profile: %w", err)
	}

	m.mu.Lock()
	m.user = user
	m.mu.Unlock()

	target := m.redirects.LoadRedirect()
	m.redirects.SaveRedirect("")
	if target == "" || target == LoginRoute {
		target = HomeRoute
	}
	m.logger.Info().Str("user", user.Username).Str("redirect", target).Msg("user signed in")
	m.nav.Navigate(target)
	return user, nil
}

// Logout clears local state unconditionally, navigates to the login screen,
// then tells the backend. A backend failure is logged and otherwise ignored.
func (m *Manager) Logout(ctx context.Context) {
	pair := m.tokens.Load()
	username := m.clear()
	m.redirects.SaveRedirect("")
	m.nav.Navigate(LoginRoute)

	if pair.Empty() {
		return
	}
	ctx = apiclient.WithBearer(ctx, pair.AccessToken)
	body := map[string]string{"refreshToken": pair.RefreshToken}
	if _, err := m.client.Post(ctx, m.cfg.LogoutPath, body, nil); err != nil {
		m.logger.Warn().Err(err).Str("user", username).Msg("backend logout failed")
		return
	}
	m.logger.Info().Str("user", username).Msg("user signed out")
}

// Expire ends the session after a failed token refresh. The current location
// is kept as redirectUrl so the user returns to it after signing in again.
func (m *Manager) Expire(err error) {
	if loc := m.nav.Location(); loc != "" && loc != LoginRoute {
		m.redirects.SaveRedirect(loc)
	}
	username := m.clear()
	m.logger.Warn().Err(err).Str("user", username).Msg("session expired")
	m.nav.Navigate(LoginRoute)
}

// SaveRedirect records where to return after the next login.
func (m *Manager) SaveRedirect(path string) {
	if path == "" || path == LoginRoute {
		return
	}
	m.redirects.SaveRedirect(path)
}

// Redirect returns the saved redirectUrl.
func (m *Manager) Redirect() string {
	return m.redirects.LoadRedirect()
}

// TokenExpiry returns the access token's exp claim.
func (m *Manager) TokenExpiry() (time.Time, error) {
	pair := m.tokens.Load()
	if pair.Empty() {
		return time.Time{}, ErrNotAuthenticated
	}
	return apiclient.AccessTokenExpiry(pair.AccessToken)
}

func (m *Manager) fetchUser(ctx context.Context) (*User, error) {
	var u User
	if _, err := m.client.Get(ctx, m.cfg.CurrentUserPath, &u); err != nil {
		return nil, err
	}
	if u.ID == "" && u.Username == "" {
		return nil, errors.New("current user response is empty")
	}
	return &u, nil
}

// clear drops the user and tokens and returns the previous username.
func (m *Manager) clear() string {
	m.tokens.Save(apiclient.TokenPair{})
	m.mu.Lock()
	defer m.mu.Unlock()
	var name string
	if m.user != nil {
		name = m.user.Username
	}
	m.user = nil
	m.initialized = true
	return name
}

// onLoginScreen tells the refresh interceptor that a 401 is a login failure.
func (m *Manager) onLoginScreen() bool {
	m.mu.RLock()
	loggingIn := m.loggingIn
	m.mu.RUnlock()
	return loggingIn || m.nav.Location() == LoginRoute
}
