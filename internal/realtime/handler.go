package realtime

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/teamplan/scheduler/internal"
)

// PrincipalLoader resolves the access token passed as a query
// parameter. Browsers cannot set Authorization headers on WebSocket
// upgrades, hence the query parameter.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, accessToken string) (internal.Principal, error)
}

// Handler upgrades /ws/notifications connections and keeps them
// registered in the hub for the pub/sub fanout.
type Handler struct {
	hub      *Hub
	loader   PrincipalLoader
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(hub *Hub, loader PrincipalLoader, logger *slog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		loader: loader,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Token auth is the access check; the origin header is not.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token query parameter required", http.StatusUnauthorized)
		return
	}
	principal, err := h.loader.LoadPrincipal(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := h.hub.Register(principal.ID, conn)
	h.logger.Info("websocket connected", "user_id", principal.ID)

	if !c.enqueue(Frame{Type: "connected", UserID: principal.ID.String()}) {
		h.hub.Unregister(principal.ID, c)
		return
	}

	go h.readLoop(principal, c)
}

// readLoop answers ping frames and ignores everything else the client
// sends. Exits on the first read error, unregistering the socket.
func (h *Handler) readLoop(principal internal.Principal, c *client) {
	defer func() {
		h.hub.Unregister(principal.ID, c)
		h.logger.Info("websocket disconnected", "user_id", principal.ID)
	}()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType == websocket.TextMessage && string(data) == "ping" {
			if !c.enqueue(Frame{Type: "pong"}) {
				return
			}
		}
	}
}
