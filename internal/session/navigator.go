package session

import "sync"

// Well-known routes.
const (
	LoginRoute = "/login"
	HomeRoute  = "/"
)

// Navigator is the screen the user is looking at. The gateway implements it by
// pushing events to the browser; the CLI records the last route.
type Navigator interface {
	Location() string
	Navigate(path string)
}

// RecordingNavigator keeps the current location and the navigation history in
// memory.
type RecordingNavigator struct {
	mu      sync.Mutex
	current string
	history []string
}

// NewRecordingNavigator starts at location.
func NewRecordingNavigator(location string) *RecordingNavigator {
	return &RecordingNavigator{current: location}
}

func (n *RecordingNavigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *RecordingNavigator) Navigate(path string) {
	n.mu.Lock()
	n.current = path
	n.history = append(n.history, path)
	n.mu.Unlock()
}

// History returns every route navigated to, oldest first.
func (n *RecordingNavigator) History() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.history))
	copy(out, n.history)
	return out
}
