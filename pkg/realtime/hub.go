// Package realtime pushes workspace events to WebSocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"nebulaone/internal/metrics"
	"nebulaone/pkg/domain"
)

// Message types on the wire.
const (
	TypeConnected   = "connected"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeChatMessage = "chat_message"
	TypeTimeline    = "timeline"
	TypeError       = "error"
)

const (
	DefaultPingInterval = 30 * time.Second

	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
	sendBuffer     = 32
)

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type connectedEvent struct {
	Type      string    `json:"type"`
	ClientID  string    `json:"clientId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Clients   int       `json:"clients"`
}

type pongEvent struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Echo      json.RawMessage `json:"echo"`
}

type chatEvent struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

type timelineEvent struct {
	Type string              `json:"type"`
	Item domain.TimelineItem `json:"item"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Options configures a Hub.
type Options struct {
	// PingInterval is the liveness probe period. A client that has not
	// answered the previous probe when the next one fires is closed.
	PingInterval time.Duration
	// AllowedOrigins lists browser origins allowed to connect. "*" allows
	// any origin; an empty list only allows same-host requests.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Hub tracks connected clients and fans out events to them.
type Hub struct {
	upgrader websocket.Upgrader
	interval time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	id    string
	hub   *Hub
	conn  *websocket.Conn
	send  chan any
	done  chan struct{}
	alive atomic.Bool
	once  sync.Once
}

// NewHub builds a hub. Call Run to start liveness probing.
func NewHub(opts Options) *Hub {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &Hub{
		interval: opts.PingInterval,
		logger:   opts.Logger,
		clients:  make(map[*client]struct{}),
	}
	origins := opts.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return originAllowed(r, origins) },
	}
	return h
}

func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan any, sendBuffer),
		done: make(chan struct{}),
	}
	c.alive.Store(true)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnected()
	h.logger.Info("websocket client connected", "client_id", c.id, "clients", count)

	go c.writeLoop()
	c.enqueue(connectedEvent{
		Type:      TypeConnected,
		ClientID:  c.id,
		Message:   "Connected to NebulaOne realtime updates",
		Timestamp: time.Now().UTC(),
		Clients:   count,
	})
	c.readLoop()
}

// Broadcast queues v for every connected client.
func (h *Hub) Broadcast(v any) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.enqueue(v)
	}
}

// PublishTimeline announces a new timeline item.
func (h *Hub) PublishTimeline(item domain.TimelineItem) {
	h.Broadcast(timelineEvent{Type: TypeTimeline, Item: item})
}

// Run probes clients every PingInterval until ctx is done, then closes
// every connection.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case <-ticker.C:
			h.probe()
		}
	}
}

func (h *Hub) probe() {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.alive.Swap(false) {
			h.logger.Info("websocket client unresponsive, terminating", "client_id", c.id)
			metrics.WSTerminated()
			c.close()
			continue
		}
		if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			c.close()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range targets {
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.close()
	}
}

func (c *client) enqueue(v any) {
	select {
	case <-c.done:
	case c.send <- v:
	default:
		// Slow consumer: it will re-fetch state over REST.
		c.hub.logger.Warn("websocket send buffer full, dropping client", "client_id", c.id)
		c.close()
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
		c.hub.mu.Lock()
		delete(c.hub.clients, c)
		c.hub.mu.Unlock()
		metrics.WSDisconnected()
		c.hub.logger.Info("websocket client disconnected", "client_id", c.id)
	})
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case v := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(v); err != nil {
				c.hub.logger.Warn("websocket write failed", "client_id", c.id, "error", err)
				c.close()
				return
			}
		}
	}
}

func (c *client) readLoop() {
	defer c.close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read failed", "client_id", c.id, "error", err)
			}
			return
		}
		c.handle(raw)
	}
}

func (c *client) handle(raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		metrics.WSMessage("invalid")
		c.enqueue(errorEvent{Type: TypeError, Message: "invalid message"})
		return
	}
	now := time.Now().UTC()
	switch msg.Type {
	case TypePing:
		metrics.WSMessage(TypePing)
		echo := msg.Data
		if len(echo) == 0 {
			echo = json.RawMessage("null")
		}
		c.enqueue(pongEvent{Type: TypePong, Timestamp: now, Echo: echo})
	case TypeChatMessage:
		metrics.WSMessage(TypeChatMessage)
		c.enqueue(chatEvent{Type: TypeChatMessage, Data: msg.Data, Timestamp: now})
	default:
		metrics.WSMessage("unknown")
		c.enqueue(errorEvent{Type: TypeError, Message: "unknown message type " + strconv.Quote(msg.Type)})
	}
}
