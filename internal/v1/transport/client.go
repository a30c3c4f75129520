package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gatherly/videochat/internal/v1/logging"
	"github.com/gatherly/videochat/internal/v1/metrics"
	"github.com/gatherly/videochat/internal/v1/types"

	"go.uber.org/zap"
)

// wsConnection defines the interface for WebSocket connection operations.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

var (
	// ErrConnectionClosed is returned by Send after Disconnect.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned when the peer stops draining its socket.
	ErrSendBufferFull = errors.New("send buffer full")
)

const (
	sendBufferSize = 256
	writeWait      = 10 * time.Second
)

// Client is one live WebSocket connection bound to a (room, user) pair.
// It implements types.Peer. Outbound frames go through a buffered channel
// so senders never block on the peer's socket.
type Client struct {
	conn wsConnection
	hub  *Hub
	room types.RoomID
	user types.UserID

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	send      chan []byte
}

func newClient(hub *Hub, conn wsConnection, room types.RoomID, user types.UserID) *Client {
	return &Client{
		conn: conn,
		hub:  hub,
		room: room,
		user: user,
		send: make(chan []byte, sendBufferSize),
	}
}

// Send queues one outbound frame. A non-nil error means the connection is
// dead or wedged; the caller unregisters it and moves on.
func (c *Client) Send(data []byte) (err error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConnectionClosed
	}
	c.mu.RUnlock()

	// Disconnect may close the channel between the check above and the send.
	defer func() {
		if r := recover(); r != nil {
			err = ErrConnectionClosed
		}
	}()

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Disconnect marks the client closed and closes the send channel, which
// drives the writePump to flush, emit a close frame, and close the socket.
// Safe to call more than once.
func (c *Client) Disconnect() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.send)
	})
}

// readPump reads frames in arrival order and hands each to the signaling
// router. Any read error drives the full cleanup path: unregister, disconnect
// broadcast to the remaining room, socket close.
func (c *Client) readPump() {
	ctx := c.logContext()

	defer func() {
		c.hub.registry.Unregister(c.room, c.user, c)
		c.hub.router.HandleDisconnect(ctx, c.room, c.user)
		c.Disconnect()
		c.conn.Close()
		c.hub.dropClient(c)
		metrics.DecConnection()
		logging.Info(ctx, "Connection closed")
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warn(ctx, "Unexpected connection close", zap.Error(err))
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		c.hub.router.HandleFrame(ctx, c.room, c.user, c, data)
	}
}

// writePump owns all writes to the socket. It exits when the send channel
// closes (after emitting a close frame) or on the first write error.
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logging.Error(c.logContext(), "error writing message", zap.Error(err))
			return
		}
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) logContext() context.Context {
	ctx := context.WithValue(context.Background(), logging.RoomIDKey, string(c.room))
	return context.WithValue(ctx, logging.UserIDKey, string(c.user))
}
