// Package transport owns the WebSocket boundary: socket accept, the client
// read/write pump pair, and graceful teardown of all live connections.
package transport

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gatherly/videochat/internal/v1/logging"
	"github.com/gatherly/videochat/internal/v1/metrics"
	"github.com/gatherly/videochat/internal/v1/ratelimit"
	"github.com/gatherly/videochat/internal/v1/registry"
	"github.com/gatherly/videochat/internal/v1/signaling"
	"github.com/gatherly/videochat/internal/v1/types"
)

// Hub accepts WebSocket connections and tracks every live client for
// shutdown. Room membership itself lives in the registry; the hub only owns
// connection lifecycles.
type Hub struct {
	registry *registry.Registry
	router   *signaling.Router
	limiter  *ratelimit.RateLimiter
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewHub wires the transport to the room registry and the signaling router.
// A nil limiter disables rate limiting (dev mode).
func NewHub(reg *registry.Registry, router *signaling.Router, limiter *ratelimit.RateLimiter) *Hub {
	return &Hub{
		registry: reg,
		router:   router,
		limiter:  limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Identifiers from the URL are trusted and CORS is permissive;
			// the origin check follows suit.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*Client]struct{}),
	}
}

// ServeWs handles GET /ws/:roomId/:userId. It validates the identifiers,
// applies the accept rate limit, upgrades, registers the client and starts
// its pumps.
func (h *Hub) ServeWs(c *gin.Context) {
	if !h.limiter.CheckWebSocket(c) {
		return // response already written
	}

	room := types.RoomID(c.Param("roomId"))
	user := types.UserID(c.Param("userId"))
	if room == "" || user == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room_id and user_id are required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logging.Warn(c.Request.Context(), "WebSocket upgrade failed",
			zap.String("roomId", string(room)), zap.Error(err))
		return
	}

	h.HandleConnection(conn, room, user)
}

// HandleConnection takes an established WebSocket connection and runs its
// lifecycle. Split from ServeWs so tests can drive it with a mock connection.
func (h *Hub) HandleConnection(conn wsConnection, room types.RoomID, user types.UserID) {
	client := newClient(h, conn, room, user)

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	h.registry.Register(room, user, client)
	metrics.IncConnection()
	logging.Info(client.logContext(), "Connection established")

	go client.writePump()
	go client.readPump()
}

func (h *Hub) dropClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Shutdown disconnects every live client. Each client's read loop performs
// its own unregister and disconnect broadcast; Shutdown only initiates the
// teardown.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	logging.Info(ctx, "Shutting down hub", zap.Int("connections", len(clients)))

	for _, c := range clients {
		c.Disconnect()
		c.conn.Close()
	}

	return nil
}
