package realtime

import (
	"context"
	"time"
)

// Delivery states of a persisted message.
const (
	// DeliveryStateSent: persisted only, receiver was offline at route time.
	DeliveryStateSent = "sent"
	// DeliveryStateDelivered: pushed to a live receiver connection.
	DeliveryStateDelivered = "delivered"
	// DeliveryStateRead: receiver acknowledged the message.
	DeliveryStateRead = "read"
)

// Message is the canonical persisted message representation.
// ID is assigned once at creation and never reused; it is the dedup key
// for client-side reconciliation.
type Message struct {
	ID            string
	SenderID      string
	ReceiverID    string
	Content       string
	AttachmentRef string
	CreatedAt     time.Time
	DeliveryState string
	ReadAt        *time.Time
}

// MessageStore persists and queries messages.
//
// Requirements:
//   - Create assigns a unique id and stores the message with state "sent".
//   - State transitions are conditional: MarkDelivered only upgrades "sent",
//     MarkRead only fires once even under concurrent calls.
//   - History returns both directions of a pair ordered by (created_at, id).
//   - Conversations returns one summary per peer the user has exchanged
//     messages with, newest conversation first.
type MessageStore interface {
	Create(ctx context.Context, in CreateMessageInput) (Message, error)
	MarkDelivered(ctx context.Context, messageID string) error
	MarkRead(ctx context.Context, messageID, readerID string, now time.Time) (Message, error)
	History(ctx context.Context, in HistoryInput) (HistoryResult, error)
	Conversations(ctx context.Context, userID string) ([]Conversation, error)
	Close() error
}

// CreateMessageInput describes a message create request.
// Now is the server-authoritative creation timestamp.
type CreateMessageInput struct {
	SenderID      string
	ReceiverID    string
	Content       string
	AttachmentRef string
	Now           time.Time
}

// HistoryInput describes a conversation history request between two users.
type HistoryInput struct {
	UserID  string
	PeerID  string
	AfterID string
	Limit   int
}

// HistoryResult contains the retrieved history window.
type HistoryResult struct {
	Messages []Message
	HasMore  bool
}

// Conversation summarizes one peer relationship for the inbox view:
// the most recent message in either direction plus how many inbound
// messages the user has not read yet.
type Conversation struct {
	PeerID      string
	LastMessage Message
	Unread      int
}
