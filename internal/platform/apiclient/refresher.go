package apiclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRefreshTimeout bounds a single refresh call so a stuck backend cannot
// leave the interceptor in the refreshing state.
const DefaultRefreshTimeout = 15 * time.Second

// RefreshFunc obtains and stores a new token pair.
type RefreshFunc func(ctx context.Context) error

// RefresherConfig wires the interceptor to the application.
type RefresherConfig struct {
	// RefreshPath is the refresh-token endpoint path; requests to it never
	// start a refresh cycle.
	RefreshPath string
	Timeout     time.Duration
	// OnLoginScreen reports whether the user is currently on the login screen,
	// where a 401 is a failed login rather than an expired session.
	OnLoginScreen func() bool
	// OnFailure is called once per failed cycle, after every waiter has been
	// rejected.
	OnFailure func(err error)
	Logger    zerolog.Logger
}

// waiter is a request parked behind the in-flight refresh.
type waiter struct {
	req  *http.Request
	done chan error
}

type retriedKey struct{}

// markRetried flags ctx so a replayed request is never refreshed again.
func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func isRetried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

// Refresher is an http.RoundTripper that turns a burst of 401 responses into a
// single refresh call. While a refresh is in flight, further eligible 401s
// wait in a FIFO queue; when it completes every waiter is released with the
// same outcome and replays its own request once.
type Refresher struct {
	base    http.RoundTripper
	refresh RefreshFunc
	cfg     RefresherConfig

	mu         sync.Mutex
	refreshing bool
	queue      []waiter

	// onRelease, when set, observes each waiter as it is released.
	onRelease func(req *http.Request)

	cycles   atomic.Int64
	failures atomic.Int64
}

// NewRefresher wraps base. refresh is invoked at most once at a time.
func NewRefresher(base http.RoundTripper, refresh RefreshFunc, cfg RefresherConfig) *Refresher {
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRefreshTimeout
	}
	return &Refresher{base: base, refresh: refresh, cfg: cfg}
}

// RoundTrip implements http.RoundTripper.
func (r *Refresher) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !r.eligible(req) {
		return resp, nil
	}
	discard(resp)

	r.mu.Lock()
	if r.refreshing {
		w := waiter{req: req, done: make(chan error, 1)}
		r.queue = append(r.queue, w)
		r.mu.Unlock()
		return r.await(req, w.done)
	}
	r.refreshing = true
	r.mu.Unlock()

	refreshErr := r.runRefresh(req.Context())

	r.mu.Lock()
	queue := r.queue
	r.queue = nil
	r.refreshing = false
	r.mu.Unlock()

	var shared error
	if refreshErr != nil {
		shared = &RefreshError{Err: refreshErr}
	}
	for _, w := range queue {
		w.done <- shared
		if r.onRelease != nil {
			r.onRelease(w.req)
		}
	}

	if shared != nil {
		r.failures.Add(1)
		r.cfg.Logger.Warn().Err(refreshErr).Int("waiters", len(queue)).Msg("token refresh failed")
		if r.cfg.OnFailure != nil {
			r.cfg.OnFailure(shared)
		}
		return nil, shared
	}
	r.cfg.Logger.Debug().Int("waiters", len(queue)).Msg("token refreshed")
	return r.replay(req)
}

// Cycles returns the number of refresh calls issued so far.
func (r *Refresher) Cycles() int64 { return r.cycles.Load() }

// Failures returns the number of refresh cycles that failed.
func (r *Refresher) Failures() int64 { return r.failures.Load() }

// Pending returns the number of requests waiting on the in-flight refresh.
func (r *Refresher) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

func (r *Refresher) eligible(req *http.Request) bool {
	if isRetried(req.Context()) {
		return false
	}
	if r.cfg.RefreshPath != "" && strings.HasSuffix(strings.TrimRight(req.URL.Path, "/"), strings.TrimRight(r.cfg.RefreshPath, "/")) {
		return false
	}
	if r.cfg.OnLoginScreen != nil && r.cfg.OnLoginScreen() {
		return false
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return false
	}
	return true
}

func (r *Refresher) runRefresh(parent context.Context) error {
	r.cycles.Add(1)
	// The refresh serves every queued request, so it must outlive the
	// triggering caller's cancellation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.cfg.Timeout)
	defer cancel()
	return r.refresh(ctx)
}

func (r *Refresher) await(req *http.Request, wait <-chan error) (*http.Response, error) {
	select {
	case err := <-wait:
		if err != nil {
			return nil, err
		}
		return r.replay(req)
	case <-req.Context().Done():
		return nil, req.Context().Err()
	}
}

// replay sends req again, marked so that another 401 is returned as-is.
func (r *Refresher) replay(req *http.Request) (*http.Response, error) {
	ctx := markRetried(req.Context())
	out := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	out.Header.Del("Authorization")
	return r.base.RoundTrip(out)
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
