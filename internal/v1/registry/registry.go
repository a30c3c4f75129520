// Package registry tracks live peers per room. It is the single source of
// truth for "who is connected where" and exists so the signaling router can
// enumerate delivery targets without holding transport locks.
package registry

import (
	"sync"

	"github.com/gatherly/videochat/internal/v1/metrics"
	"github.com/gatherly/videochat/internal/v1/types"
)

// Registry is a concurrency-safe map of room -> user -> live peers.
// A user may hold several peers at once (multiple tabs or devices); each is
// tracked and addressed independently.
type Registry struct {
	mu    sync.RWMutex
	rooms map[types.RoomID]map[types.UserID][]types.Peer
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		rooms: make(map[types.RoomID]map[types.UserID][]types.Peer),
	}
}

// Register adds a peer for the given user in the given room, creating the
// room and user entries on first use.
func (r *Registry) Register(room types.RoomID, user types.UserID, p types.Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, ok := r.rooms[room]
	if !ok {
		users = make(map[types.UserID][]types.Peer)
		r.rooms[room] = users
		metrics.ActiveRooms.Inc()
	}
	users[user] = append(users[user], p)
	metrics.RoomConnections.WithLabelValues(string(room)).Inc()
}

// Unregister removes one peer for the given user. Removing the last peer of
// a user drops the user entry; dropping the last user drops the room. Unknown
// rooms, users or peers are ignored, so double-unregister is safe.
func (r *Registry) Unregister(room types.RoomID, user types.UserID, p types.Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, ok := r.rooms[room]
	if !ok {
		return
	}
	peers, ok := users[user]
	if !ok {
		return
	}

	for i, existing := range peers {
		if existing == p {
			peers = append(peers[:i], peers[i+1:]...)
			metrics.RoomConnections.WithLabelValues(string(room)).Dec()
			break
		}
	}

	if len(peers) == 0 {
		delete(users, user)
	} else {
		users[user] = peers
	}

	if len(users) == 0 {
		delete(r.rooms, room)
		metrics.ActiveRooms.Dec()
		metrics.RoomConnections.DeleteLabelValues(string(room))
	}
}

// TargetsIn returns a snapshot of every peer in the room together with the
// user it belongs to. The snapshot is safe to iterate while peers keep
// joining and leaving; delivery to a peer that left after the snapshot
// surfaces as a send error at the transport.
func (r *Registry) TargetsIn(room types.RoomID) []types.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users, ok := r.rooms[room]
	if !ok {
		return nil
	}

	var targets []types.Target
	for user, peers := range users {
		for _, p := range peers {
			targets = append(targets, types.Target{User: user, Peer: p})
		}
	}
	return targets
}

// TargetsFor returns a snapshot of the peers belonging to one user in a room.
// An absent user yields an empty slice.
func (r *Registry) TargetsFor(room types.RoomID, user types.UserID) []types.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users, ok := r.rooms[room]
	if !ok {
		return nil
	}
	peers := users[user]
	if len(peers) == 0 {
		return nil
	}

	out := make([]types.Peer, len(peers))
	copy(out, peers)
	return out
}

// RoomCount returns the number of rooms with at least one live peer.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// UserCount returns the number of distinct users in a room.
func (r *Registry) UserCount(room types.RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}
