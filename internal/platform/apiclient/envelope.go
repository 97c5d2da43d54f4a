package apiclient

import (
	"bytes"
	"encoding/json"
)

// Envelope is the uniform wrapper returned by every backend call.
type Envelope[T any] struct {
	StatusCode int    `json:"StatusCode"`
	MessageKey string `json:"MessageKey"`
	Data       T      `json:"Data"`
}

// OK reports whether the envelope carries a success status. Backends that omit
// the status on success are treated as successful.
func (e *Envelope[T]) OK() bool {
	return e.StatusCode == 0 || (e.StatusCode >= 200 && e.StatusCode < 300)
}

// decodeEnvelope parses body into an envelope. The second result is false when
// the body is not an envelope at all.
func decodeEnvelope(body []byte) (*Envelope[json.RawMessage], bool) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, false
	}
	_, hasStatus := probe["StatusCode"]
	_, hasKey := probe["MessageKey"]
	_, hasData := probe["Data"]
	if !hasStatus && !hasKey && !hasData {
		return nil, false
	}
	var env Envelope[json.RawMessage]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, false
	}
	return &env, true
}

// hasData reports whether raw holds a non-null JSON value.
func hasData(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}
