package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPair is the credential pair issued by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Empty reports whether no access token is held.
func (p TokenPair) Empty() bool {
	return p.AccessToken == ""
}

// TokenStore persists the current token pair. Implementations must be safe
// for concurrent use.
type TokenStore interface {
	Load() TokenPair
	Save(TokenPair)
}

// MemoryTokenStore keeps the pair in process memory.
type MemoryTokenStore struct {
	mu   sync.RWMutex
	pair TokenPair
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load() TokenPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair
}

func (s *MemoryTokenStore) Save(p TokenPair) {
	s.mu.Lock()
	s.pair = p
	s.mu.Unlock()
}

// AccessTokenExpiry reads the exp claim of an access token without verifying
// its signature. The console never trusts the claims; the backend does.
func AccessTokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("access token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}

type bearerKey struct{}

// WithBearer pins the access token used for calls made with ctx, overriding
// the store. Logout uses it to authenticate after local state is cleared.
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, token)
}

// bearerTransport attaches the stored access token to every outgoing request.
// It reads the store on each round trip so replays pick up refreshed tokens.
type bearerTransport struct {
	base   http.RoundTripper
	tokens TokenStore
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, pinned := req.Context().Value(bearerKey{}).(string)
	if !pinned {
		token = t.tokens.Load().AccessToken
	}
	if token == "" {
		return t.base.RoundTrip(req)
	}
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(out)
}
