package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gatherly/videochat/internal/v1/registry"
	"github.com/gatherly/videochat/internal/v1/signaling"
	"github.com/gatherly/videochat/internal/v1/types"
)

// memStore is a minimal in-memory HistoryStore for transport tests.
type memStore struct {
	mu       sync.Mutex
	messages map[types.RoomID][]types.RoomMessage
}

func newMemStore() *memStore {
	return &memStore{messages: make(map[types.RoomID][]types.RoomMessage)}
}

func (s *memStore) InsertMessage(ctx context.Context, room types.RoomID, user types.UserID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[room] = append(s.messages[room], types.RoomMessage{
		UserID: string(user), Message: message, Timestamp: time.Now().UTC(),
	})
	return nil
}

func (s *memStore) Messages(ctx context.Context, room types.RoomID) ([]types.RoomMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.RoomMessage(nil), s.messages[room]...), nil
}

func newTestHub() (*Hub, *registry.Registry) {
	reg := registry.New()
	router := signaling.NewRouter(reg, newMemStore())
	return NewHub(reg, router, nil), reg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestHub_ConnectionRegistersAndRoutesChat(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub, reg := newTestHub()

	aliceConn := newMockConn()
	bobConn := newMockConn()
	hub.HandleConnection(aliceConn, "R1", "alice")
	hub.HandleConnection(bobConn, "R1", "bob")

	waitFor(t, time.Second, func() bool { return len(reg.TargetsIn("R1")) == 2 })

	aliceConn.queue(`{"message":"hello"}`)

	waitFor(t, time.Second, func() bool { return len(bobConn.writtenFrames()) == 1 })

	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(bobConn.writtenFrames()[0], &frame))
	assert.Equal(t, "alice", frame["user_id"])
	assert.Equal(t, "hello", frame["message"])

	require.NoError(t, hub.Shutdown(context.Background()))
	waitFor(t, time.Second, func() bool { return len(reg.TargetsIn("R1")) == 0 })
}

func TestHub_DisconnectCleansUpAndNotifies(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub, reg := newTestHub()

	aliceConn := newMockConn()
	bobConn := newMockConn()
	hub.HandleConnection(aliceConn, "R1", "alice")
	hub.HandleConnection(bobConn, "R1", "bob")
	waitFor(t, time.Second, func() bool { return len(reg.TargetsIn("R1")) == 2 })

	// Drop alice's socket: read loop exits, cleanup runs.
	aliceConn.Close()

	waitFor(t, time.Second, func() bool { return len(reg.TargetsFor("R1", "alice")) == 0 })
	waitFor(t, time.Second, func() bool { return len(bobConn.writtenFrames()) == 1 })

	var notice map[string]interface{}
	require.NoError(t, json.Unmarshal(bobConn.writtenFrames()[0], &notice))
	assert.Equal(t, "alice", notice["user_id"])
	assert.Equal(t, "User alice has disconnected.", notice["message"])

	require.NoError(t, hub.Shutdown(context.Background()))
	waitFor(t, time.Second, func() bool { return len(reg.TargetsIn("R1")) == 0 })
}

func TestHub_ShutdownClosesAllConnections(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub, reg := newTestHub()

	conns := []*mockConn{newMockConn(), newMockConn(), newMockConn()}
	hub.HandleConnection(conns[0], "R1", "alice")
	hub.HandleConnection(conns[1], "R1", "bob")
	hub.HandleConnection(conns[2], "R2", "carol")
	waitFor(t, time.Second, func() bool {
		return len(reg.TargetsIn("R1")) == 2 && len(reg.TargetsIn("R2")) == 1
	})

	require.NoError(t, hub.Shutdown(context.Background()))

	for i, conn := range conns {
		assert.True(t, conn.waitClosed(time.Second), "conn %d not closed", i)
	}
	waitFor(t, time.Second, func() bool {
		return len(reg.TargetsIn("R1")) == 0 && len(reg.TargetsIn("R2")) == 0
	})
}

func TestHub_ServeWs_RejectsNonWebSocketRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub, _ := newTestHub()

	r := gin.New()
	r.GET("/ws/:roomId/:userId", hub.ServeWs)

	// A plain GET without the websocket handshake headers fails the upgrade.
	req := httptest.NewRequest(http.MethodGet, "/ws/room1/alice", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestClient_SendAfterDisconnect(t *testing.T) {
	hub, _ := newTestHub()
	client := newClient(hub, newMockConn(), "R1", "alice")

	client.Disconnect()
	assert.ErrorIs(t, client.Send([]byte("x")), ErrConnectionClosed)

	// Disconnect is idempotent.
	client.Disconnect()
}

func TestClient_SendBufferFull(t *testing.T) {
	hub, _ := newTestHub()
	client := newClient(hub, newMockConn(), "R1", "alice")

	// No writePump draining: the buffer eventually fills.
	var err error
	for i := 0; i <= sendBufferSize; i++ {
		err = client.Send([]byte("x"))
		if err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, ErrSendBufferFull)
}
