// Package websocket pushes due session reminders to an owner's open
// connections. A connection is subscribed to its owner's topic and nothing
// else; clients cannot choose topics.
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

	"github.com/caseload/caseload/internal/platform/auth"
	"github.com/caseload/caseload/internal/platform/notification"
)

// EventReminder is the event type of a delivered session reminder.
const EventReminder = "session.reminder"

// Event is the JSON frame written to clients.
type Event struct {
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one open connection.
type Client struct {
	ID    string
	Topic string
	Send  chan []byte
	conn  Conn
}

func newClient(conn Conn, topic string) *Client {
	return &Client{ID: uuid.NewString(), Topic: topic, Send: make(chan []byte, 64), conn: conn}
}

// Hub tracks clients by topic. It implements notification.Sender.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Client]struct{}
	logger zerolog.Logger
	now    func() time.Time
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{topics: make(map[string]map[*Client]struct{}), logger: logger, now: time.Now}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[c.Topic] == nil {
		h.topics[c.Topic] = make(map[*Client]struct{})
	}
	h.topics[c.Topic][c] = struct{}{}
}

// Unregister removes c and closes its Send channel. Repeated calls are no-ops.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[c.Topic]
	if !ok {
		return
	}
	if _, ok := subs[c]; !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.topics, c.Topic)
	}
	close(c.Send)
}

// Broadcast queues ev for every client on topic and returns how many
// accepted it. A client with a full buffer misses the event.
func (h *Hub) Broadcast(topic string, ev Event) int {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket: marshal event")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for c := range h.topics[topic] {
		select {
		case c.Send <- data:
			sent++
		default:
			h.logger.Warn().Str("client_id", c.ID).Msg("websocket: client buffer full, event dropped")
		}
	}
	return sent
}

// Send pushes a rendered reminder to the owner's open connections. Having no
// open connection is not an error.
func (h *Hub) Send(_ context.Context, msg notification.Message) error {
	h.Broadcast(msg.Topic, Event{
		Type:      EventReminder,
		Title:     msg.Title,
		Body:      msg.Body,
		Data:      msg.Data,
		Timestamp: h.now().UTC(),
	})
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.topics {
		n += len(subs)
	}
	return n
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Handler upgrades authenticated requests to WebSocket connections.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler accepts browser connections only from allowedOrigins. Requests
// without an Origin header are not browser requests and are accepted.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

func (wsh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.Connect)
}

// Connect subscribes the connection to the caller's owner topic.
func (wsh *Handler) Connect(c echo.Context) error {
	owner, err := auth.OwnerID(c)
	if err != nil {
		return err
	}
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		return nil
	}

	client := newClient(ws, notification.OwnerTopic(owner))
	wsh.hub.Register(client)

	go wsh.writePump(client)
	go wsh.readPump(client)
	return nil
}

// readPump discards inbound frames and unregisters the client once the
// connection closes.
func (wsh *Handler) readPump(c *Client) {
	defer func() {
		wsh.hub.Unregister(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (wsh *Handler) writePump(c *Client) {
	defer c.conn.Close()
	for msg := range c.Send {
		if err := c.conn.WriteMessage(gorillawebsocket.TextMessage, msg); err != nil {
			return
		}
	}
}
