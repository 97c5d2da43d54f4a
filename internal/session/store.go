package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hms/console/internal/platform/apiclient"
)

// ErrSessionNotFound is returned when a session ID is unknown or expired.
var ErrSessionNotFound = errors.New("session not found")

// Record is the persisted half of a gateway browser session. The user profile
// is not stored; it is fetched again from the backend on Init.
type Record struct {
	ID          string              `json:"id"`
	Tokens      apiclient.TokenPair `json:"tokens"`
	RedirectURL string              `json:"redirectUrl,omitempty"`
	Location    string              `json:"location,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
	ExpiresAt   time.Time           `json:"expiresAt"`
}

// Expired reports whether the record is past its expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Store persists gateway session records.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	Cleanup(ctx context.Context) error
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record), now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return errors.New("session record id is required")
	}
	s.mu.Lock()
	s.records[rec.ID] = *rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok || rec.Expired(s.now()) {
		return nil, ErrSessionNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
	return nil
}

// Cleanup removes expired records.
func (s *MemoryStore) Cleanup(_ context.Context) error {
	now := s.now()
	s.mu.Lock()
	for id, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, id)
		}
	}
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored records, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
