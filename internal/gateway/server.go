// Package gateway is the console's browser-facing server. Each browser gets a
// signed session cookie, its own session manager and refresh interceptor, a
// guarded screen tree and an authenticated proxy to the hospital backend.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/hms/console/internal/config"
	"github.com/hms/console/internal/platform/apiclient"
	"github.com/hms/console/internal/platform/db"
	"github.com/hms/console/internal/platform/guard"
	"github.com/hms/console/internal/platform/middleware"
	"github.com/hms/console/internal/platform/permission"
	"github.com/hms/console/internal/platform/websocket"
	"github.com/hms/console/internal/session"
)

// DefaultBodyLimit caps proxied request bodies.
const DefaultBodyLimit = "2M"

// Options wires a Server.
type Options struct {
	Config *config.Config
	Logger zerolog.Logger
	// Store holds browser session records. Nil means an in-memory store.
	Store session.Store
	// Policy defaults to permission.DefaultPolicy.
	Policy        *permission.Policy
	AuditRecorder middleware.AuditRecorder
	// Probes are added to the health endpoint next to the built-in ones.
	Probes        []db.Probe
	ClientOptions []apiclient.Option
}

// Server is the assembled gateway.
type Server struct {
	cfg      *config.Config
	logger   zerolog.Logger
	echo     *echo.Echo
	hub      *websocket.Hub
	guard    *guard.Guard
	registry *Registry
	cookies  *SessionCookies
}

// New assembles the middleware chain and routes.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("gateway: config is required")
	}
	cfg := opts.Config
	logger := opts.Logger

	policy := opts.Policy
	if policy == nil {
		p, err := permission.DefaultPolicy()
		if err != nil {
			return nil, fmt.Errorf("load permission policy: %w", err)
		}
		policy = p
	}
	g, err := guard.New(policy, logger)
	if err != nil {
		return nil, fmt.Errorf("build guard: %w", err)
	}

	store := opts.Store
	if store == nil {
		store = session.NewMemoryStore()
	}
	hub := websocket.NewHub(logger)

	s := &Server{
		cfg:    cfg,
		logger: logger.With().Str("component", "gateway").Logger(),
		hub:    hub,
		guard:  g,
		registry: NewRegistry(RegistryConfig{
			Store:         store,
			Hub:           hub,
			API:           cfg.API(),
			TTL:           cfg.SessionTTL,
			Logger:        logger,
			ClientOptions: opts.ClientOptions,
		}),
		cookies: NewSessionCookies(cfg.SessionSecret, cfg.SessionTTL, cfg.TLSEnabled),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{"Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))

	// Health check
	probes := append([]db.Probe{
		{Name: "sessions", Detail: func() any { return s.registry.Stats() }},
		{Name: "websocket", Detail: func() any { return map[string]int{"clients": hub.ClientCount()} }},
	}, opts.Probes...)
	e.GET("/health", db.HealthHandler(probes...))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = apiclient.DefaultConfig("").RequestTimeout
	}

	app := e.Group("",
		s.sessions(),
		middleware.RateLimit(rateLimitCfg),
		middleware.RequestTimeout(requestTimeout),
		middleware.BodyLimit(DefaultBodyLimit),
		middleware.Audit(logger, opts.AuditRecorder),
	)

	auth := app.Group("/auth")
	auth.POST("/login", s.login)
	auth.POST("/logout", s.logout)
	auth.GET("/me", s.me)
	app.GET("/nav", s.navigation)

	screens := app.Group("/screens", g.Middleware("/screens", s.resolveSession, s.denied))
	s.registerScreens(screens)

	app.Any("/api/*", s.proxy)

	ws := websocket.NewHandler(hub, s.resolveTopic, s.reportLocation, s.checkOrigin)
	ws.RegisterRoutes(app)

	s.echo = e
	return s, nil
}

func (s *Server) Echo() *echo.Echo         { return s.echo }
func (s *Server) Registry() *Registry      { return s.registry }
func (s *Server) Hub() *websocket.Hub      { return s.hub }
func (s *Server) Guard() *guard.Guard      { return s.guard }
func (s *Server) Cookies() *SessionCookies { return s.cookies }

// Start serves on addr until Shutdown, over TLS when configured.
func (s *Server) Start(addr string) error {
	var err error
	if s.cfg.TLSEnabled {
		err = s.echo.StartTLS(addr, s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	} else {
		err = s.echo.Start(addr)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// RunSweeper evicts idle sessions until ctx is done.
func (s *Server) RunSweeper(ctx context.Context, interval time.Duration) {
	s.registry.Run(ctx, interval)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(s.cfg.CORSOrigins, "*") {
		return true
	}
	return slices.Contains(s.cfg.CORSOrigins, origin)
}
