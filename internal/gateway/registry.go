package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/console/internal/platform/apiclient"
	"github.com/hms/console/internal/platform/websocket"
	"github.com/hms/console/internal/session"
)

// Browser is one browser session: its stored record, its session manager and
// the manager's own refresh interceptor.
type Browser struct {
	id       string
	binding  *session.Binding
	manager  *session.Manager
	lastSeen atomic.Int64

	initMu sync.Mutex
}

func (b *Browser) ID() string                { return b.id }
func (b *Browser) Manager() *session.Manager { return b.manager }
func (b *Browser) Binding() *session.Binding { return b.binding }

// ensureInit loads the current user once per manager. Concurrent first
// requests wait for the same Init.
func (b *Browser) ensureInit(ctx context.Context) error {
	if b.manager.State().Initialized {
		return nil
	}
	b.initMu.Lock()
	defer b.initMu.Unlock()
	if b.manager.State().Initialized {
		return nil
	}
	return b.manager.Init(ctx)
}

func (b *Browser) touch(now time.Time) {
	b.lastSeen.Store(now.UnixNano())
}

// RegistryConfig wires a Registry.
type RegistryConfig struct {
	Store         session.Store
	Hub           *websocket.Hub
	API           apiclient.Config
	TTL           time.Duration
	Logger        zerolog.Logger
	ClientOptions []apiclient.Option
}

// Registry keeps the live browser sessions of this process. Records outlive a
// restart in the Store; managers are rebuilt from them on first use.
type Registry struct {
	cfg    RegistryConfig
	logger zerolog.Logger
	now    func() time.Time

	mu   sync.Mutex
	live map[string]*Browser
}

func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "registry").Logger(),
		now:    time.Now,
		live:   make(map[string]*Browser),
	}
}

// Create starts a new anonymous browser session.
func (r *Registry) Create(ctx context.Context) (*Browser, error) {
	now := r.now().UTC()
	rec := &session.Record{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(r.cfg.TTL),
	}
	if err := r.cfg.Store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("create browser session: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.attach(rec)
	r.logger.Debug().Str("session_id", rec.ID).Msg("browser session created")
	return b, nil
}

// Open returns the live session id, restoring it from the store if needed.
// An unknown or expired id yields session.ErrSessionNotFound.
func (r *Registry) Open(ctx context.Context, id string) (*Browser, error) {
	r.mu.Lock()
	b, ok := r.live[id]
	r.mu.Unlock()
	if ok {
		b.touch(r.now())
		return b, nil
	}

	rec, err := r.cfg.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.live[id]; ok {
		b.touch(r.now())
		return b, nil
	}
	return r.attach(rec), nil
}

// Lookup returns a live session without touching the store.
func (r *Registry) Lookup(id string) (*Browser, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.live[id]
	return b, ok
}

// attach builds the manager for rec. Callers hold r.mu.
func (r *Registry) attach(rec *session.Record) *Browser {
	binding := session.NewBinding(r.cfg.Store, rec, r.cfg.TTL, r.cfg.Logger)
	logger := r.cfg.Logger.With().Str("session_id", rec.ID).Logger()
	b := &Browser{id: rec.ID, binding: binding}
	b.manager = session.NewManager(session.Config{
		API:           r.cfg.API,
		Tokens:        binding,
		Redirects:     binding,
		Navigator:     &hubNavigator{topic: rec.ID, hub: r.cfg.Hub, binding: binding},
		Logger:        logger,
		ClientOptions: r.cfg.ClientOptions,
	})
	b.touch(r.now())
	r.live[rec.ID] = b
	return b
}

// Close forgets a session everywhere.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	delete(r.live, id)
	r.mu.Unlock()
	if err := r.cfg.Store.Delete(ctx, id); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		return fmt.Errorf("close browser session %s: %w", id, err)
	}
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Sweep drops sessions idle for longer than the TTL from memory and purges
// expired records from the store.
func (r *Registry) Sweep(ctx context.Context) {
	cutoff := r.now().Add(-r.cfg.TTL).UnixNano()
	r.mu.Lock()
	evicted := 0
	for id, b := range r.live {
		if b.lastSeen.Load() < cutoff {
			delete(r.live, id)
			evicted++
		}
	}
	r.mu.Unlock()

	if err := r.cfg.Store.Cleanup(ctx); err != nil {
		r.logger.Error().Err(err).Msg("session store cleanup failed")
	}
	if evicted > 0 {
		r.logger.Info().Int("evicted", evicted).Msg("idle browser sessions evicted")
	}
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Stats summarises the live sessions and their refresh interceptors.
type Stats struct {
	Live            int   `json:"live"`
	Authenticated   int   `json:"authenticated"`
	RefreshCycles   int64 `json:"refreshCycles"`
	RefreshFailures int64 `json:"refreshFailures"`
	RefreshWaiting  int   `json:"refreshWaiting"`
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	browsers := make([]*Browser, 0, len(r.live))
	for _, b := range r.live {
		browsers = append(browsers, b)
	}
	r.mu.Unlock()

	st := Stats{Live: len(browsers)}
	for _, b := range browsers {
		if b.manager.User() != nil {
			st.Authenticated++
		}
		rf := b.manager.Client().Refresher()
		st.RefreshCycles += rf.Cycles()
		st.RefreshFailures += rf.Failures()
		st.RefreshWaiting += rf.Pending()
	}
	return st
}
