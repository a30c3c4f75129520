package types

import (
	"context"
	"errors"
	"time"
)

// --- Core Domain Types ---

// RoomID is the opaque identifier of a conversation room.
type RoomID string

// UserID identifies a user inside a room. Identifiers arrive in the
// WebSocket URL and are trusted as-is.
type UserID string

// MaxChatMessageLength bounds the cleartext size of a single chat message.
const MaxChatMessageLength = 1000

// RoomMessage is a single chat message as seen by callers of the message
// store: the message field holds cleartext, decryption already happened.
type RoomMessage struct {
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ValidateChatMessage ensures chat messages are safe to store.
func ValidateChatMessage(msg string) error {
	if len(msg) == 0 {
		return errors.New("chat message cannot be empty")
	}
	if len(msg) > MaxChatMessageLength {
		return errors.New("chat message cannot exceed 1000 characters")
	}
	return nil
}

// --- Shared Interfaces ---

// Peer is the write side of one live WebSocket connection bound to a
// (room, user) pair. Send must not block on network I/O; a non-nil error
// means the connection is dead and should be unregistered.
type Peer interface {
	Send(data []byte) error
	Disconnect()
}

// Target pairs a connection with the user it belongs to, as enumerated by
// the registry.
type Target struct {
	User UserID
	Peer Peer
}

// RegistryView is the slice of the room registry the signaling router needs:
// snapshot enumeration plus removal of dead connections.
type RegistryView interface {
	TargetsIn(room RoomID) []Target
	TargetsFor(room RoomID, user UserID) []Peer
	Unregister(room RoomID, user UserID, p Peer)
}

// HistoryStore persists encrypted chat history, one document per room.
type HistoryStore interface {
	InsertMessage(ctx context.Context, room RoomID, user UserID, message string) error
	Messages(ctx context.Context, room RoomID) ([]RoomMessage, error)
}
