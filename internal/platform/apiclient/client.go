// Package apiclient is the console's only path to the hospital backend. Every
// call is normalised to the {StatusCode, MessageKey, Data} envelope and goes
// through the token-refresh interceptor.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hms/console/pkg/pagination"
)

// Config locates the backend and its auth endpoints.
type Config struct {
	BaseURL         string
	LoginPath       string
	LogoutPath      string
	RefreshPath     string
	CurrentUserPath string
	RequestTimeout  time.Duration
	RefreshTimeout  time.Duration
}

// DefaultConfig returns the backend's standard auth endpoint layout.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:         baseURL,
		LoginPath:       "/auth/login",
		LogoutPath:      "/auth/logout",
		RefreshPath:     "/auth/refresh-token",
		CurrentUserPath: "/auth/current-user",
		RequestTimeout:  30 * time.Second,
		RefreshTimeout:  DefaultRefreshTimeout,
	}
}

// Dispatcher sends one call and returns its envelope. *Client implements it;
// domain services depend on this interface only.
type Dispatcher interface {
	Do(ctx context.Context, method, path string, body, out any) (*Envelope[json.RawMessage], error)
}

// Client is an envelope-normalising HTTP client for the hospital backend.
type Client struct {
	cfg       Config
	http      *http.Client
	tokens    TokenStore
	refresher *Refresher
	logger    zerolog.Logger

	transport     http.RoundTripper
	onLoginScreen func() bool
	onFailure     func(error)
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithTokenStore(s TokenStore) Option {
	return func(c *Client) { c.tokens = s }
}

// WithTransport replaces the network transport under the interceptor.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

// WithLoginScreen supplies the "is the user on the login screen" probe.
func WithLoginScreen(fn func() bool) Option {
	return func(c *Client) { c.onLoginScreen = fn }
}

// WithRefreshFailure is called when a refresh cycle fails.
func WithRefreshFailure(fn func(error)) Option {
	return func(c *Client) { c.onFailure = fn }
}

// New creates a client.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		tokens: NewMemoryTokenStore(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cfg.BaseURL = strings.TrimRight(c.cfg.BaseURL, "/")

	base := c.transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.refresher = NewRefresher(&bearerTransport{base: base, tokens: c.tokens}, c.refreshTokens, RefresherConfig{
		RefreshPath:   c.cfg.RefreshPath,
		Timeout:       c.cfg.RefreshTimeout,
		OnLoginScreen: c.onLoginScreen,
		OnFailure:     c.onFailure,
		Logger:        c.logger.With().Str("component", "refresher").Logger(),
	})
	c.http = &http.Client{Transport: c.refresher, Timeout: c.cfg.RequestTimeout}
	return c
}

// Config returns the client's configuration.
func (c *Client) Config() Config { return c.cfg }

// Tokens returns the token store the client authenticates with.
func (c *Client) Tokens() TokenStore { return c.tokens }

// Refresher exposes the interceptor for health reporting.
func (c *Client) Refresher() *Refresher { return c.refresher }

// Do sends one call. body is JSON-encoded when non-nil; the envelope's Data is
// decoded into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) (*Envelope[json.RawMessage], error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug().Str("method", method).Str("path", path).Msg("backend request")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	env, ok := decodeEnvelope(raw)
	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	switch {
	case !ok && !success:
		return nil, &HTTPError{Status: resp.StatusCode, Body: raw}
	case !ok:
		return nil, fmt.Errorf("%s %s: response is not an envelope (status %d)", method, path, resp.StatusCode)
	case !success || !env.OK():
		status := env.StatusCode
		if status == 0 {
			status = resp.StatusCode
		}
		if env.MessageKey == "" && !success {
			return env, &HTTPError{Status: resp.StatusCode, Body: raw}
		}
		return env, &BusinessError{HTTPStatus: resp.StatusCode, StatusCode: status, MessageKey: env.MessageKey}
	}

	if out != nil && hasData(env.Data) {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env, fmt.Errorf("decode %s %s data: %w", method, path, err)
		}
	}
	return env, nil
}

func (c *Client) Get(ctx context.Context, path string, out any) (*Envelope[json.RawMessage], error) {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) (*Envelope[json.RawMessage], error) {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) (*Envelope[json.RawMessage], error) {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) (*Envelope[json.RawMessage], error) {
	return c.Do(ctx, http.MethodPatch, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) (*Envelope[json.RawMessage], error) {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshTokens is the interceptor's RefreshFunc.
func (c *Client) refreshTokens(ctx context.Context) error {
	current := c.tokens.Load()
	if current.RefreshToken == "" {
		return ErrNoRefreshToken
	}
	var next TokenPair
	if _, err := c.Post(ctx, c.cfg.RefreshPath, refreshRequest{RefreshToken: current.RefreshToken}, &next); err != nil {
		return err
	}
	if next.AccessToken == "" {
		return fmt.Errorf("refresh response carried no access token")
	}
	if next.RefreshToken == "" {
		next.RefreshToken = current.RefreshToken
	}
	c.tokens.Save(next)
	return nil
}

// WithQuery appends encoded query values to path.
func WithQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

// GetAs fetches path and decodes Data as T.
func GetAs[T any](ctx context.Context, d Dispatcher, path string, q url.Values) (T, error) {
	var out T
	_, err := d.Do(ctx, http.MethodGet, WithQuery(path, q), nil, &out)
	return out, err
}

// PostAs posts body and decodes Data as T.
func PostAs[T any](ctx context.Context, d Dispatcher, path string, body any) (T, error) {
	var out T
	_, err := d.Do(ctx, http.MethodPost, path, body, &out)
	return out, err
}

// PutAs puts body and decodes Data as T.
func PutAs[T any](ctx context.Context, d Dispatcher, path string, body any) (T, error) {
	var out T
	_, err := d.Do(ctx, http.MethodPut, path, body, &out)
	return out, err
}

// DeleteAs deletes path and decodes Data as T.
func DeleteAs[T any](ctx context.Context, d Dispatcher, path string) (T, error) {
	var out T
	_, err := d.Do(ctx, http.MethodDelete, path, nil, &out)
	return out, err
}

// GetPage fetches one page of a grid. Extra filters are merged into the query.
func GetPage[T any](ctx context.Context, d Dispatcher, path string, p pagination.Params, filters url.Values) (*pagination.Page[T], error) {
	q := p.Values()
	for k, vs := range filters {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	page, err := GetAs[pagination.Page[T]](ctx, d, path, q)
	if err != nil {
		return nil, err
	}
	if page.TotalPages == 0 && page.TotalItems > 0 {
		page.TotalPages = pagination.TotalPages(page.TotalItems, page.PageSize)
	}
	if page.Data == nil {
		page.Data = []T{}
	}
	return &page, nil
}
