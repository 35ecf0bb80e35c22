package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/teamplan/scheduler/internal/notification"
)

// Frame is the server-to-client message envelope.
type Frame struct {
	Type   string `json:"type"`
	UserID string `json:"user_id,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// client owns one socket. Every outgoing frame funnels through send so
// writeLoop is the only goroutine ever writing the connection; gorilla
// forbids concurrent writers.
type client struct {
	conn *websocket.Conn
	send chan Frame
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan Frame, 32),
		done: make(chan struct{}),
	}
}

// enqueue reports false when the client is stopped or its buffer is
// full. Callers drop the socket on false; clients reconnect and replay
// via REST.
func (c *client) enqueue(frame Frame) bool {
	select {
	case <-c.done:
		return false
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

func (c *client) writeLoop() {
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			if err := c.conn.WriteJSON(frame); err != nil {
				c.stop()
				return
			}
		}
	}
}

// Hub is the per-user connection registry. Writes to the registry are
// rare (connect/disconnect); reads happen on every published message.
type Hub struct {
	mu      sync.Mutex
	sockets map[uuid.UUID]map[*client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		sockets: make(map[uuid.UUID]map[*client]struct{}),
		logger:  logger,
	}
}

// Register wraps the connection in a client and starts its writer.
func (h *Hub) Register(userID uuid.UUID, conn *websocket.Conn) *client {
	c := newClient(conn)
	go c.writeLoop()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sockets[userID] == nil {
		h.sockets[userID] = make(map[*client]struct{})
	}
	h.sockets[userID][c] = struct{}{}
	return c
}

func (h *Hub) Unregister(userID uuid.UUID, c *client) {
	c.stop()
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.sockets[userID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.sockets, userID)
		}
	}
}

// ConnectionCount reports live sockets for a user.
func (h *Hub) ConnectionCount(userID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sockets[userID])
}

// Deliver enqueues the frame on every live socket of the user, dropping
// sockets too slow to drain their buffer.
func (h *Hub) Deliver(userID uuid.UUID, frame Frame) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.sockets[userID]))
	for c := range h.sockets[userID] {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if !c.enqueue(frame) {
			h.logger.Debug("dropping slow socket", "user_id", userID)
			h.Unregister(userID, c)
		}
	}
}

// Run subscribes to the notifications channel and fans published
// payloads out to the target user's connections. Blocks until the
// context is cancelled; meant to run as one long-lived goroutine per
// process.
func (h *Hub) Run(ctx context.Context, rdb *redis.Client) {
	sub := rdb.Subscribe(ctx, notification.Channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var payload notification.Payload
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn("undecodable pub/sub message", "error", err)
				continue
			}
			h.Deliver(payload.UserID, Frame{Type: "notification", Data: payload})
		}
	}
}
