package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hms/console/internal/platform/apiclient"
)

const bindingWriteTimeout = 5 * time.Second

// Binding exposes one stored Record to a Manager as its token and redirect
// store. Every change is written through to the Store and slides the expiry.
type Binding struct {
	store  Store
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time

	mu  sync.Mutex
	rec Record
}

// NewBinding wraps rec. ttl <= 0 leaves ExpiresAt untouched.
func NewBinding(store Store, rec *Record, ttl time.Duration, logger zerolog.Logger) *Binding {
	return &Binding{store: store, ttl: ttl, logger: logger, now: time.Now, rec: *rec}
}

// Record returns a copy of the current record.
func (b *Binding) Record() Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rec
}

func (b *Binding) Load() apiclient.TokenPair {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rec.Tokens
}

func (b *Binding) Save(p apiclient.TokenPair) {
	b.update(func(r *Record) { r.Tokens = p })
}

func (b *Binding) LoadRedirect() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rec.RedirectURL
}

func (b *Binding) SaveRedirect(path string) {
	b.update(func(r *Record) { r.RedirectURL = path })
}

// SetLocation records the screen the browser last reported.
func (b *Binding) SetLocation(path string) {
	b.update(func(r *Record) { r.Location = path })
}

// Location returns the last reported screen.
func (b *Binding) Location() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rec.Location
}

// Touch slides the expiry without changing anything else.
func (b *Binding) Touch() {
	b.update(func(*Record) {})
}

func (b *Binding) update(fn func(*Record)) {
	b.mu.Lock()
	fn(&b.rec)
	now := b.now()
	b.rec.UpdatedAt = now
	if b.ttl > 0 {
		b.rec.ExpiresAt = now.Add(b.ttl)
	}
	rec := b.rec
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), bindingWriteTimeout)
	defer cancel()
	if err := b.store.Save(ctx, &rec); err != nil {
		b.logger.Error().Err(err).Str("session_id", rec.ID).Msg("persist session")
	}
}
