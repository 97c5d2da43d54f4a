package gateway

import (
	"github.com/hms/console/internal/platform/websocket"
	"github.com/hms/console/internal/session"
)

// hubNavigator is a browser session's Navigator: the location is what the
// browser last reported, and navigating pushes an event to its sockets.
type hubNavigator struct {
	topic   string
	hub     *websocket.Hub
	binding *session.Binding
}

func (n *hubNavigator) Location() string {
	return n.binding.Location()
}

func (n *hubNavigator) Navigate(path string) {
	n.binding.SetLocation(path)
	n.hub.Navigate(n.topic, path)
}
