// Package signaling classifies inbound WebSocket frames and routes them:
// history replay on join, directed WebRTC relay, chat store-and-broadcast,
// synthetic disconnect notices.
package signaling

import (
	"encoding/json"
	"fmt"
	"time"
)

// FrameKind is the closed set of inbound frame classifications.
type FrameKind string

const (
	KindChat         FrameKind = "chat"
	KindNewUser      FrameKind = "new-user"
	KindOffer        FrameKind = "offer"
	KindAnswer       FrameKind = "answer"
	KindIceCandidate FrameKind = "ice-candidate"
)

// Frame is one decoded inbound message. Signaling payloads stay opaque:
// offers, answers and candidates are relayed without inspection.
type Frame struct {
	Type      string          `json:"type,omitempty"`
	To        string          `json:"to,omitempty"`
	Message   string          `json:"message,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// DecodeFrame parses one inbound text frame.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	return &f, nil
}

// Kind classifies the frame. An absent or unknown type field means chat,
// preserving the frontend's historical behavior.
func (f *Frame) Kind() FrameKind {
	switch f.Type {
	case string(KindNewUser):
		return KindNewUser
	case string(KindOffer):
		return KindOffer
	case string(KindAnswer):
		return KindAnswer
	case string(KindIceCandidate):
		return KindIceCandidate
	default:
		return KindChat
	}
}

// payload returns the signaling payload for a directed frame.
func (f *Frame) payload() json.RawMessage {
	switch f.Kind() {
	case KindOffer:
		return f.Offer
	case KindAnswer:
		return f.Answer
	case KindIceCandidate:
		return f.Candidate
	default:
		return nil
	}
}

// --- Outbound frame shapes ---

// chatFrame is a live chat broadcast or a disconnect notice. No type field:
// the frontend treats untyped frames as chat.
type chatFrame struct {
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// historyFrame carries one replayed message to a joining connection.
type historyFrame struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// presenceFrame announces a new user to the whole room.
type presenceFrame struct {
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// relayFrame forwards a signaling payload to the target user, rewriting the
// sender into user_id. Exactly one of the payload fields is set.
type relayFrame struct {
	Type      string          `json:"type"`
	UserID    string          `json:"user_id"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

func wireTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
