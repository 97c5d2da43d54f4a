// Package domaintest provides an in-memory backend for service tests.
package domaintest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/hms/console/internal/platform/apiclient"
)

// Call is one request seen by the Dispatcher.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Body   json.RawMessage
}

// Decode unmarshals the request body into v.
func (c Call) Decode(v any) error {
	return json.Unmarshal(c.Body, v)
}

// Responder produces the Data of a reply, or an error.
type Responder func(call Call) (any, error)

// Dispatcher implements apiclient.Dispatcher over registered responders. Data
// goes through a JSON round trip, as it would over the wire.
type Dispatcher struct {
	mu     sync.Mutex
	routes map[string]Responder
	calls  []Call
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{routes: make(map[string]Responder)}
}

// On registers r for method and path. path has no query string.
func (d *Dispatcher) On(method, path string, r Responder) {
	d.mu.Lock()
	d.routes[method+" "+path] = r
	d.mu.Unlock()
}

// Reply registers a fixed reply.
func (d *Dispatcher) Reply(method, path string, data any) {
	d.On(method, path, func(Call) (any, error) { return data, nil })
}

// Fail registers a business error.
func (d *Dispatcher) Fail(method, path string, status int, key string) {
	d.On(method, path, func(Call) (any, error) {
		return nil, &apiclient.BusinessError{HTTPStatus: http.StatusOK, StatusCode: status, MessageKey: key}
	})
}

// Calls returns every call so far, oldest first.
func (d *Dispatcher) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// Count returns how many calls were made to method and path.
func (d *Dispatcher) Count(method, path string) int {
	n := 0
	for _, c := range d.Calls() {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

func (d *Dispatcher) Do(ctx context.Context, method, path string, body, out any) (*apiclient.Envelope[json.RawMessage], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	call := Call{Method: method, Path: path}
	if p, q, ok := strings.Cut(path, "?"); ok {
		call.Path = p
		call.Query, _ = url.ParseQuery(q)
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		call.Body = raw
	}

	d.mu.Lock()
	d.calls = append(d.calls, call)
	r, ok := d.routes[method+" "+call.Path]
	d.mu.Unlock()
	if !ok {
		return nil, &apiclient.HTTPError{Status: http.StatusNotFound}
	}

	data, err := r(call)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal reply: %w", err)
	}
	env := &apiclient.Envelope[json.RawMessage]{StatusCode: http.StatusOK, MessageKey: "ok", Data: raw}
	if out != nil && data != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return env, fmt.Errorf("decode %s %s data: %w", method, path, err)
		}
	}
	return env, nil
}
