// Package v1 defines the CommuNet realtime protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// TypeMessageSend requests routing of a new direct message (client -> server).
	TypeMessageSend = "message_send"
	// TypeMessageNew pushes a newly delivered message (server -> receiver).
	TypeMessageNew = "message_new"
	// TypeDeliveryAck reports the push outcome of a send back to the sender (server -> client).
	TypeDeliveryAck = "delivery_ack"

	// TypeTyping signals an ephemeral typing state change (client -> server).
	TypeTyping = "typing"
	// TypeTypingStatus relays a peer's typing state (server -> client).
	TypeTypingStatus = "typing_status"

	// TypeMarkRead acknowledges a message as read (client -> server).
	TypeMarkRead = "mark_read"
	// TypeReadReceipt informs the original sender a message was read (server -> client).
	TypeReadReceipt = "read_receipt"

	// TypePresenceSnapshot broadcasts the full set of online users (server -> all clients).
	TypePresenceSnapshot = "presence_snapshot"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeMessageSend,
		TypeMessageNew,
		TypeDeliveryAck,
		TypeTyping,
		TypeTypingStatus,
		TypeMarkRead,
		TypeReadReceipt,
		TypePresenceSnapshot,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// MessageSendPayload requests sending a direct message to a receiver.
type MessageSendPayload struct {
	ReceiverID    string `json:"receiver_id"`
	Content       string `json:"content"`
	AttachmentRef string `json:"attachment_ref,omitempty"`
}

// MessagePayload is the full message record pushed to an online receiver
// and returned by the REST history endpoint.
type MessagePayload struct {
	ID            string     `json:"id"`
	SenderID      string     `json:"sender_id"`
	ReceiverID    string     `json:"receiver_id"`
	Content       string     `json:"content"`
	AttachmentRef string     `json:"attachment_ref,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	DeliveryState string     `json:"delivery_state"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
}

// DeliveryAckPayload reports whether a sent message reached a live receiver.
// Delivered=false is a normal outcome, not an error: the message stays
// persisted and is picked up on the receiver's next history fetch.
type DeliveryAckPayload struct {
	MessageID string `json:"message_id"`
	Delivered bool   `json:"delivered"`
}

// TypingPayload signals the caller started or stopped composing to a peer.
type TypingPayload struct {
	ReceiverID string `json:"receiver_id"`
	IsTyping   bool   `json:"is_typing"`
}

// TypingStatusPayload relays a typing state change to the peer.
type TypingStatusPayload struct {
	FromUserID string `json:"from_user_id"`
	IsTyping   bool   `json:"is_typing"`
}

// MarkReadPayload acknowledges a single message as read by the caller.
type MarkReadPayload struct {
	MessageID string `json:"message_id"`
}

// ReadReceiptPayload informs the original sender that a message was read.
type ReadReceiptPayload struct {
	MessageID string    `json:"message_id"`
	ReadBy    string    `json:"read_by"`
	ReadAt    time.Time `json:"read_at"`
}

// PresenceSnapshotPayload carries the full online-user list.
// It is broadcast to every connected client on each presence change.
type PresenceSnapshotPayload struct {
	Online []string `json:"online"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
