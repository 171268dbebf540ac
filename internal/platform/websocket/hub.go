// Package websocket streams revenue-cycle events to connected dashboards.
// Clients are bound to their organization and subscribe to event types;
// the hub implements notification.Publisher.
package websocket

import (
	"context"
	"net/http"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/auth"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/notification"
)

// AllEvents subscribes a client to every event type of its organization.
const AllEvents = "*"

// ClientMessage is an inbound subscribe/unsubscribe request. Topics are
// event types such as "kpi.alert".
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

type Client struct {
	ID             string
	OrganizationID uuid.UUID
	Send           chan []byte

	topics map[string]struct{}
}

func NewClient(org uuid.UUID, buffer int) *Client {
	return &Client{
		ID:             uuid.NewString(),
		OrganizationID: org,
		Send:           make(chan []byte, buffer),
		topics:         make(map[string]struct{}),
	}
}

// Hub tracks clients per organization. A slow client drops events rather
// than blocking publishers.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.OrganizationID] == nil {
		h.clients[c.OrganizationID] = make(map[*Client]struct{})
	}
	h.clients[c.OrganizationID][c] = struct{}{}
}

// Unregister removes c and closes its Send channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.OrganizationID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.OrganizationID)
	}
	close(c.Send)
}

func (h *Hub) ProcessMessage(c *Client, msg ClientMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, t := range msg.Topics {
			c.topics[t] = struct{}{}
		}
	case "unsubscribe":
		for _, t := range msg.Topics {
			delete(c.topics, t)
		}
	}
}

// Publish delivers evt to subscribers in the event's organization.
func (h *Hub) Publish(_ context.Context, evt notification.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[evt.OrganizationID] {
		if !c.wants(string(evt.Type)) {
			continue
		}
		select {
		case c.Send <- data:
		default:
			h.logger.Warn().Str("client_id", c.ID).Str("type", string(evt.Type)).Msg("websocket client buffer full, event dropped")
		}
	}
	return nil
}

func (c *Client) wants(topic string) bool {
	if _, ok := c.topics[AllEvents]; ok {
		return true
	}
	_, ok := c.topics[topic]
	return ok
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// SubscriberCount returns how many clients of org receive topic.
func (h *Hub) SubscriberCount(org uuid.UUID, topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients[org] {
		if c.wants(topic) {
			n++
		}
	}
	return n
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.HandleConnect)
}

// HandleConnect upgrades the request and binds the client to the caller's
// organization.
func (h *Handler) HandleConnect(c echo.Context) error {
	org := auth.OrganizationFromContext(c.Request().Context())
	if org == uuid.Nil {
		return echo.NewHTTPError(http.StatusForbidden, "organization required")
	}
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := NewClient(org, 256)
	h.hub.Register(client)

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
	}()
	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		h.hub.ProcessMessage(client, msg)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()
	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
}
