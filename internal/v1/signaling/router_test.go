package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherly/videochat/internal/v1/registry"
	"github.com/gatherly/videochat/internal/v1/types"
)

// mockPeer records every frame sent to it.
type mockPeer struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (p *mockPeer) Send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("connection reset")
	}
	p.frames = append(p.frames, data)
	return nil
}

func (p *mockPeer) Disconnect() {}

func (p *mockPeer) received() []map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(p.frames))
	for _, f := range p.frames {
		var m map[string]interface{}
		if err := json.Unmarshal(f, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// fakeStore is an in-memory HistoryStore.
type fakeStore struct {
	mu       sync.Mutex
	messages map[types.RoomID][]types.RoomMessage
	insertErr error
	readErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: make(map[types.RoomID][]types.RoomMessage)}
}

func (s *fakeStore) InsertMessage(ctx context.Context, room types.RoomID, user types.UserID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.messages[room] = append(s.messages[room], types.RoomMessage{
		UserID:    string(user),
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

func (s *fakeStore) Messages(ctx context.Context, room types.RoomID) ([]types.RoomMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	return append([]types.RoomMessage(nil), s.messages[room]...), nil
}

func newTestRouter(t *testing.T) (*Router, *registry.Registry, *fakeStore) {
	t.Helper()
	reg := registry.New()
	store := newFakeStore()
	return NewRouter(reg, store), reg, store
}

func TestRouter_ChatBroadcastIncludesSender(t *testing.T) {
	router, reg, store := newTestRouter(t)
	ctx := context.Background()

	alice := &mockPeer{}
	bob := &mockPeer{}
	reg.Register("R1", "alice", alice)
	reg.Register("R1", "bob", bob)

	router.HandleFrame(ctx, "R1", "alice", alice, []byte(`{"message":"hello"}`))

	for _, p := range []*mockPeer{alice, bob} {
		frames := p.received()
		require.Len(t, frames, 1)
		assert.Equal(t, "alice", frames[0]["user_id"])
		assert.Equal(t, "hello", frames[0]["message"])
		_, err := time.Parse(time.RFC3339, frames[0]["timestamp"].(string))
		assert.NoError(t, err)
		assert.NotContains(t, frames[0], "type")
	}

	stored, err := store.Messages(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "hello", stored[0].Message)
}

func TestRouter_NewUserReplaysHistoryBeforePresence(t *testing.T) {
	router, reg, store := newTestRouter(t)
	ctx := context.Background()

	earlier := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.messages["R1"] = []types.RoomMessage{
		{UserID: "bob", Message: "earlier", Timestamp: earlier},
	}

	carol := &mockPeer{}
	reg.Register("R1", "carol", carol)

	router.HandleFrame(ctx, "R1", "carol", carol, []byte(`{"type":"new-user","message":"user connected"}`))

	frames := carol.received()
	require.Len(t, frames, 2)

	assert.Equal(t, "chat-history", frames[0]["type"])
	assert.Equal(t, "bob", frames[0]["user_id"])
	assert.Equal(t, "earlier", frames[0]["message"])
	assert.Equal(t, "2024-01-01T00:00:00Z", frames[0]["timestamp"])

	assert.Equal(t, "new-user", frames[1]["type"])
	assert.Equal(t, "carol", frames[1]["user_id"])
	assert.Equal(t, "user connected", frames[1]["message"])
}

func TestRouter_NewUserReplayOrder(t *testing.T) {
	router, reg, store := newTestRouter(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		store.messages["R1"] = append(store.messages["R1"], types.RoomMessage{
			UserID:    "bob",
			Message:   fmt.Sprintf("msg-%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}

	joiner := &mockPeer{}
	reg.Register("R1", "dave", joiner)
	router.HandleFrame(ctx, "R1", "dave", joiner, []byte(`{"type":"new-user","message":"user connected"}`))

	frames := joiner.received()
	require.Len(t, frames, 6) // 5 history + 1 presence
	for i := 0; i < 5; i++ {
		assert.Equal(t, "chat-history", frames[i]["type"])
		assert.Equal(t, fmt.Sprintf("msg-%d", i), frames[i]["message"])
	}
}

func TestRouter_DirectedOfferOnlyReachesTarget(t *testing.T) {
	router, reg, _ := newTestRouter(t)
	ctx := context.Background()

	x := &mockPeer{}
	y := &mockPeer{}
	z := &mockPeer{}
	reg.Register("R2", "x", x)
	reg.Register("R2", "y", y)
	reg.Register("R2", "z", z)

	router.HandleFrame(ctx, "R2", "x", x, []byte(`{"type":"offer","to":"y","offer":{"sdp":"..."}}`))

	frames := y.received()
	require.Len(t, frames, 1)
	assert.Equal(t, "offer", frames[0]["type"])
	assert.Equal(t, "x", frames[0]["user_id"])
	assert.Equal(t, map[string]interface{}{"sdp": "..."}, frames[0]["offer"])

	assert.Empty(t, z.received())
	assert.Empty(t, x.received())
}

func TestRouter_AnswerAndIceCandidateRelay(t *testing.T) {
	router, reg, _ := newTestRouter(t)
	ctx := context.Background()

	x := &mockPeer{}
	y := &mockPeer{}
	reg.Register("R2", "x", x)
	reg.Register("R2", "y", y)

	router.HandleFrame(ctx, "R2", "y", y, []byte(`{"type":"answer","to":"x","answer":{"sdp":"a"}}`))
	router.HandleFrame(ctx, "R2", "y", y, []byte(`{"type":"ice-candidate","to":"x","candidate":{"c":"1"}}`))

	frames := x.received()
	require.Len(t, frames, 2)
	assert.Equal(t, "answer", frames[0]["type"])
	assert.Equal(t, map[string]interface{}{"sdp": "a"}, frames[0]["answer"])
	assert.Equal(t, "ice-candidate", frames[1]["type"])
	assert.Equal(t, map[string]interface{}{"c": "1"}, frames[1]["candidate"])
}

func TestRouter_DirectedFrameToMissingTargetIsDropped(t *testing.T) {
	router, reg, _ := newTestRouter(t)
	ctx := context.Background()

	x := &mockPeer{}
	reg.Register("R2", "x", x)

	// Absent target user and missing "to" field: both dropped silently.
	router.HandleFrame(ctx, "R2", "x", x, []byte(`{"type":"offer","to":"ghost","offer":{}}`))
	router.HandleFrame(ctx, "R2", "x", x, []byte(`{"type":"offer","offer":{}}`))

	assert.Empty(t, x.received())
}

func TestRouter_DirectedFrameReachesAllTargetTabs(t *testing.T) {
	router, reg, _ := newTestRouter(t)
	ctx := context.Background()

	x := &mockPeer{}
	tab1 := &mockPeer{}
	tab2 := &mockPeer{}
	reg.Register("R2", "x", x)
	reg.Register("R2", "y", tab1)
	reg.Register("R2", "y", tab2)

	router.HandleFrame(ctx, "R2", "x", x, []byte(`{"type":"offer","to":"y","offer":{"sdp":"s"}}`))

	assert.Len(t, tab1.received(), 1)
	assert.Len(t, tab2.received(), 1)
}

func TestRouter_MalformedFrameKeepsConnectionUsable(t *testing.T) {
	router, reg, _ := newTestRouter(t)
	ctx := context.Background()

	alice := &mockPeer{}
	reg.Register("R1", "alice", alice)

	router.HandleFrame(ctx, "R1", "alice", alice, []byte(`{not json`))
	assert.Empty(t, alice.received())

	// The connection still works afterwards.
	router.HandleFrame(ctx, "R1", "alice", alice, []byte(`{"message":"still here"}`))
	require.Len(t, alice.received(), 1)
}

func TestRouter_UnknownTypeFallsThroughToChat(t *testing.T) {
	router, reg, store := newTestRouter(t)
	ctx := context.Background()

	alice := &mockPeer{}
	reg.Register("R1", "alice", alice)

	router.HandleFrame(ctx, "R1", "alice", alice, []byte(`{"type":"wave","message":"hi"}`))

	frames := alice.received()
	require.Len(t, frames, 1)
	assert.Equal(t, "hi", frames[0]["message"])

	stored, _ := store.Messages(ctx, "R1")
	assert.Len(t, stored, 1)
}

func TestRouter_StoreErrorDropsChatWithoutBroadcast(t *testing.T) {
	router, reg, store := newTestRouter(t)
	ctx := context.Background()
	store.insertErr = errors.New("redis down")

	alice := &mockPeer{}
	bob := &mockPeer{}
	reg.Register("R1", "alice", alice)
	reg.Register("R1", "bob", bob)

	router.HandleFrame(ctx, "R1", "alice", alice, []byte(`{"message":"lost"}`))

	assert.Empty(t, alice.received())
	assert.Empty(t, bob.received())
}

func TestRouter_OversizeChatIsRejected(t *testing.T) {
	router, reg, store := newTestRouter(t)
	ctx := context.Background()

	alice := &mockPeer{}
	reg.Register("R1", "alice", alice)

	payload, err := json.Marshal(map[string]string{"message": strings.Repeat("a", types.MaxChatMessageLength+1)})
	require.NoError(t, err)
	router.HandleFrame(ctx, "R1", "alice", alice, payload)

	assert.Empty(t, alice.received())
	stored, _ := store.Messages(ctx, "R1")
	assert.Empty(t, stored)
}

func TestRouter_DisconnectNoticeBroadcastNotPersisted(t *testing.T) {
	router, reg, store := newTestRouter(t)
	ctx := context.Background()

	bob := &mockPeer{}
	reg.Register("R1", "bob", bob)

	router.HandleDisconnect(ctx, "R1", "alice")

	frames := bob.received()
	require.Len(t, frames, 1)
	assert.Equal(t, "alice", frames[0]["user_id"])
	assert.Equal(t, "User alice has disconnected.", frames[0]["message"])
	assert.NotContains(t, frames[0], "type")

	stored, _ := store.Messages(ctx, "R1")
	assert.Empty(t, stored)
}

func TestRouter_SendFailureUnregistersDeadConnection(t *testing.T) {
	router, reg, _ := newTestRouter(t)
	ctx := context.Background()

	alice := &mockPeer{}
	dead := &mockPeer{fail: true}
	bob := &mockPeer{}
	reg.Register("R1", "alice", alice)
	reg.Register("R1", "dead", dead)
	reg.Register("R1", "bob", bob)

	router.HandleFrame(ctx, "R1", "alice", alice, []byte(`{"message":"hello"}`))

	// Live peers still got the frame.
	assert.Len(t, alice.received(), 1)
	assert.Len(t, bob.received(), 1)

	// The dead connection is gone from the registry.
	assert.Empty(t, reg.TargetsFor("R1", "dead"))
}

func TestRouter_HistoryReplayFailureStillAnnouncesPresence(t *testing.T) {
	router, reg, store := newTestRouter(t)
	ctx := context.Background()
	store.readErr = errors.New("redis down")

	carol := &mockPeer{}
	reg.Register("R1", "carol", carol)

	router.HandleFrame(ctx, "R1", "carol", carol, []byte(`{"type":"new-user","message":"user connected"}`))

	frames := carol.received()
	require.Len(t, frames, 1)
	assert.Equal(t, "new-user", frames[0]["type"])
}
