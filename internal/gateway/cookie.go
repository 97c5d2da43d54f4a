package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the browser session cookie.
const CookieName = "hms_session"

const cookieIssuer = "hms-console"

// SessionCookies signs and verifies the session cookie: an HS256 JWT whose
// jti is the session ID.
type SessionCookies struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewSessionCookies(secret string, ttl time.Duration, secure bool) *SessionCookies {
	return &SessionCookies{secret: []byte(secret), ttl: ttl, secure: secure, now: time.Now}
}

// Issue returns a cookie carrying id.
func (s *SessionCookies) Issue(id string) (*http.Cookie, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:        id,
		Issuer:    cookieIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session cookie: %w", err)
	}
	return &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		Expires:  now.Add(s.ttl),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Parse verifies value and returns the session ID.
func (s *SessionCookies) Parse(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(value, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cookieIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("verify session cookie: %w", err)
	}
	if claims.ID == "" {
		return "", errors.New("session cookie has no session id")
	}
	return claims.ID, nil
}

// Clear returns a cookie that deletes the session cookie.
func (s *SessionCookies) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
