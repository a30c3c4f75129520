package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// mockConn is a scriptable wsConnection. ReadMessage delivers queued frames
// and then blocks until the connection is closed.
type mockConn struct {
	inbound chan []byte

	mu       sync.Mutex
	written  [][]byte
	closed   bool
	closedCh chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		inbound:  make(chan []byte, 16),
		closedCh: make(chan struct{}),
	}
}

// queue schedules one inbound text frame.
func (c *mockConn) queue(frame string) {
	c.inbound <- []byte(frame)
}

func (c *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return websocket.TextMessage, data, nil
	case <-c.closedCh:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (c *mockConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed && messageType != websocket.CloseMessage {
		return errors.New("use of closed network connection")
	}
	if messageType == websocket.TextMessage {
		c.written = append(c.written, data)
	}
	return nil
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closedCh)
	}
	return nil
}

func (c *mockConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *mockConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *mockConn) writtenFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

// waitClosed blocks until the connection closes or the timeout elapses.
func (c *mockConn) waitClosed(timeout time.Duration) bool {
	select {
	case <-c.closedCh:
		return true
	case <-time.After(timeout):
		return false
	}
}
