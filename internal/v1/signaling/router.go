package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gatherly/videochat/internal/v1/logging"
	"github.com/gatherly/videochat/internal/v1/metrics"
	"github.com/gatherly/videochat/internal/v1/types"
)

// Router dispatches decoded frames for one room. It never returns errors to
// the connection: failures are contained to the offending frame, logged, and
// the connection stays open.
type Router struct {
	registry types.RegistryView
	store    types.HistoryStore
	now      func() time.Time
}

// NewRouter wires the router to the live connection registry and the
// encrypted message store.
func NewRouter(registry types.RegistryView, store types.HistoryStore) *Router {
	return &Router{
		registry: registry,
		store:    store,
		now:      time.Now,
	}
}

// HandleFrame processes one inbound frame from (room, user, sender).
// Frames from a single connection arrive here in order; the transport calls
// this synchronously from its read loop.
func (r *Router) HandleFrame(ctx context.Context, room types.RoomID, user types.UserID, sender types.Peer, data []byte) {
	frame, err := DecodeFrame(data)
	if err != nil {
		metrics.FramesRouted.WithLabelValues("unknown", "malformed").Inc()
		logging.Error(ctx, "Dropping malformed frame",
			zap.String("roomId", string(room)),
			zap.String("userId", string(user)),
			zap.Error(err))
		return
	}

	switch kind := frame.Kind(); kind {
	case KindNewUser:
		r.handleNewUser(ctx, room, user, sender, frame)
	case KindOffer, KindAnswer, KindIceCandidate:
		r.relay(ctx, room, user, kind, frame)
	default:
		r.handleChat(ctx, room, user, frame)
	}
}

// HandleDisconnect broadcasts the synthetic disconnect notice to the
// connections remaining in the room. The notice is not persisted; only
// messages a user actually typed belong in history.
func (r *Router) HandleDisconnect(ctx context.Context, room types.RoomID, user types.UserID) {
	notice := chatFrame{
		UserID:    string(user),
		Message:   fmt.Sprintf("User %s has disconnected.", user),
		Timestamp: wireTimestamp(r.now()),
	}
	r.broadcast(ctx, room, notice)
}

// handleNewUser replays history to the joining connection, then announces
// the join to everyone in the room. Replay strictly precedes any live frame
// delivered to this connection because both happen on its read goroutine.
func (r *Router) handleNewUser(ctx context.Context, room types.RoomID, user types.UserID, sender types.Peer, frame *Frame) {
	r.replayHistory(ctx, room, user, sender)

	notice := presenceFrame{
		Type:    string(KindNewUser),
		UserID:  string(user),
		Message: frame.Message,
	}
	r.broadcast(ctx, room, notice)
	metrics.FramesRouted.WithLabelValues(string(KindNewUser), "ok").Inc()
}

func (r *Router) replayHistory(ctx context.Context, room types.RoomID, user types.UserID, sender types.Peer) {
	messages, err := r.store.Messages(ctx, room)
	if err != nil {
		logging.Error(ctx, "History replay failed",
			zap.String("roomId", string(room)),
			zap.String("userId", string(user)),
			zap.Error(err))
		return
	}

	for _, msg := range messages {
		data, err := json.Marshal(historyFrame{
			Type:      "chat-history",
			UserID:    msg.UserID,
			Message:   msg.Message,
			Timestamp: wireTimestamp(msg.Timestamp),
		})
		if err != nil {
			continue
		}
		if err := sender.Send(data); err != nil {
			// The joiner died mid-replay; its read loop will clean up.
			logging.Warn(ctx, "Aborting history replay, send failed",
				zap.String("roomId", string(room)),
				zap.String("userId", string(user)),
				zap.Error(err))
			return
		}
	}
}

// handleChat validates, persists and broadcasts a chat message. A store
// failure drops the frame entirely: nothing is broadcast that history would
// not replay.
func (r *Router) handleChat(ctx context.Context, room types.RoomID, user types.UserID, frame *Frame) {
	if err := types.ValidateChatMessage(frame.Message); err != nil {
		metrics.FramesRouted.WithLabelValues(string(KindChat), "invalid").Inc()
		logging.Warn(ctx, "Rejecting chat message",
			zap.String("roomId", string(room)),
			zap.String("userId", string(user)),
			zap.Error(err))
		return
	}

	if err := r.store.InsertMessage(ctx, room, user, frame.Message); err != nil {
		metrics.FramesRouted.WithLabelValues(string(KindChat), "store_error").Inc()
		logging.Error(ctx, "Dropping chat message, store append failed",
			zap.String("roomId", string(room)),
			zap.String("userId", string(user)),
			zap.Error(err))
		return
	}

	r.broadcast(ctx, room, chatFrame{
		UserID:    string(user),
		Message:   frame.Message,
		Timestamp: wireTimestamp(r.now()),
	})
	metrics.FramesRouted.WithLabelValues(string(KindChat), "ok").Inc()
}

// relay forwards a directed signaling frame to every connection of the
// target user. A missing or absent target drops the frame with a warn log;
// the sender gets no error frame.
func (r *Router) relay(ctx context.Context, room types.RoomID, sender types.UserID, kind FrameKind, frame *Frame) {
	if frame.To == "" {
		metrics.FramesRouted.WithLabelValues(string(kind), "dropped").Inc()
		logging.Warn(ctx, "Dropping signaling frame without target",
			zap.String("roomId", string(room)),
			zap.String("userId", string(sender)),
			zap.String("frameType", string(kind)))
		return
	}

	target := types.UserID(frame.To)
	peers := r.registry.TargetsFor(room, target)
	if len(peers) == 0 {
		metrics.FramesRouted.WithLabelValues(string(kind), "dropped").Inc()
		logging.Warn(ctx, "Dropping signaling frame, target not in room",
			zap.String("roomId", string(room)),
			zap.String("userId", string(sender)),
			zap.String("targetId", string(target)),
			zap.String("frameType", string(kind)))
		return
	}

	out := relayFrame{Type: string(kind), UserID: string(sender)}
	switch kind {
	case KindOffer:
		out.Offer = frame.payload()
	case KindAnswer:
		out.Answer = frame.payload()
	case KindIceCandidate:
		out.Candidate = frame.payload()
	}

	data, err := json.Marshal(out)
	if err != nil {
		logging.Error(ctx, "Failed to encode relay frame", zap.Error(err))
		return
	}

	for _, p := range peers {
		if err := p.Send(data); err != nil {
			r.registry.Unregister(room, target, p)
			logging.Warn(ctx, "Removed dead connection during relay",
				zap.String("roomId", string(room)),
				zap.String("targetId", string(target)),
				zap.Error(err))
		}
	}
	metrics.FramesRouted.WithLabelValues(string(kind), "ok").Inc()
}

// broadcast sends one frame to every connection in the room, including all
// of the sender's own connections. Send failures remove the dead connection
// and the broadcast continues.
func (r *Router) broadcast(ctx context.Context, room types.RoomID, frame interface{}) {
	data, err := json.Marshal(frame)
	if err != nil {
		logging.Error(ctx, "Failed to encode broadcast frame", zap.Error(err))
		return
	}

	for _, t := range r.registry.TargetsIn(room) {
		if err := t.Peer.Send(data); err != nil {
			r.registry.Unregister(room, t.User, t.Peer)
			logging.Warn(ctx, "Removed dead connection during broadcast",
				zap.String("roomId", string(room)),
				zap.String("userId", string(t.User)),
				zap.Error(err))
		}
	}
}
