// Package websocket pushes console events to browsers. Each browser session is
// one topic; the gateway publishes navigation and toast events to it and the
// browser reports the screen it is on.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Event types pushed to the browser.
const (
	EventNavigate = "navigate"
	EventToast    = "toast"
)

// Toast levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Event is a message sent to a browser session.
type Event struct {
	Type       string          `json:"type"`
	Topic      string          `json:"-"`
	Path       string          `json:"path,omitempty"`
	Level      string          `json:"level,omitempty"`
	MessageKey string          `json:"messageKey,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound message from the browser.
type ClientMessage struct {
	Action string `json:"action"`
	Path   string `json:"path,omitempty"`
}

// ActionLocation reports the screen the browser is showing.
const ActionLocation = "location"

// EventPublisher publishes events to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one browser tab connected to a session topic.
type Client struct {
	ID    string
	Topic string
	Send  chan []byte
	hub   *Hub
	conn  Conn
}

// Hub tracks connected clients by session topic.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "ws").Logger(),
	}
}

// Register adds a client under its topic.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	if h.clients[client.Topic] == nil {
		h.clients[client.Topic] = make(map[*Client]struct{})
	}
	h.clients[client.Topic][client] = struct{}{}
}

// Unregister removes a client and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	if subscribers, ok := h.clients[client.Topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, client.Topic)
		}
	}
	delete(h.all, client)
	close(client.Send)
}

// Broadcast sends an event to every tab of one session.
func (h *Hub) Broadcast(topic string, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn().Str("client", client.ID).Msg("send buffer full, event dropped")
		}
	}
}

// BroadcastAll sends an event to every connected tab.
func (h *Hub) BroadcastAll(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.all {
		select {
		case client.Send <- data:
		default:
		}
	}
}

// Publish implements EventPublisher.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event.Topic, event)
	return nil
}

// Navigate tells every tab of a session to open path.
func (h *Hub) Navigate(topic, path string) {
	h.Broadcast(topic, Event{Type: EventNavigate, Path: path})
}

// Toast shows a translated notification in every tab of a session.
func (h *Hub) Toast(topic, level, messageKey string) {
	h.Broadcast(topic, Event{Type: EventToast, Level: level, MessageKey: messageKey})
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of tabs connected for a session.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// TopicResolver returns the session topic for an upgrade request.
type TopicResolver func(c echo.Context) (string, error)

// LocationFunc receives the screen a browser reports for its session.
type LocationFunc func(topic, path string)

// Handler upgrades HTTP connections and routes browser messages.
type Handler struct {
	hub        *Hub
	resolve    TopicResolver
	onLocation LocationFunc
	upgrader   gorillawebsocket.Upgrader
}

// NewHandler creates a handler. checkOrigin may be nil to use the gorilla
// default same-origin check.
func NewHandler(hub *Hub, resolve TopicResolver, onLocation LocationFunc, checkOrigin func(r *http.Request) bool) *Handler {
	u := upgrader
	u.CheckOrigin = checkOrigin
	return &Handler{hub: hub, resolve: resolve, onLocation: onLocation, upgrader: u}
}

// RegisterRoutes registers the WebSocket endpoint.
func (wsh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect)
}

// HandleConnect resolves the session, upgrades the connection and starts the
// read and write pumps.
func (wsh *Handler) HandleConnect(c echo.Context) error {
	topic, err := wsh.resolve(c)
	if err != nil {
		return err
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:    uuid.New().String(),
		Topic: topic,
		Send:  make(chan []byte, 64),
		hub:   wsh.hub,
		conn:  &gorillaConnAdapter{ws},
	}
	wsh.hub.Register(client)

	go wsh.writePump(client)
	go wsh.readPump(client)
	return nil
}

// ProcessMessage handles one inbound browser message.
func (wsh *Handler) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case ActionLocation:
		if msg.Path != "" && wsh.onLocation != nil {
			wsh.onLocation(client.Topic, msg.Path)
		}
	}
}

func (wsh *Handler) readPump(client *Client) {
	defer func() {
		wsh.hub.Unregister(client)
		client.conn.Close()
	}()

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		wsh.ProcessMessage(client, msg)
	}
}

func (wsh *Handler) writePump(client *Client) {
	defer client.conn.Close()

	for message := range client.Send {
		if err := client.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
}

// gorillaConnAdapter wraps a gorilla/websocket.Conn to satisfy Conn.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
