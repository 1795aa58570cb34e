package realtime

import (
	"context"
	"sort"
	"sync"
	"time"
)

const memMaxMessagesPerPair = 10_000

// InMemoryStore is a dev/test fallback when a database is not configured.
// It implements the same conditional state transitions as the Postgres store.
type InMemoryStore struct {
	mu   sync.Mutex
	byID map[string]*Message
}

// NewInMemoryStore constructs an in-memory MessageStore implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID: make(map[string]*Message),
	}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// Create persists a message with a fresh ULID and state "sent".
func (s *InMemoryStore) Create(ctx context.Context, in CreateMessageInput) (Message, error) {
	if in.SenderID == "" || in.ReceiverID == "" || in.Content == "" {
		return Message{}, ErrInvalidMessage
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewMessageID(now)
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:            id,
		SenderID:      in.SenderID,
		ReceiverID:    in.ReceiverID,
		Content:       in.Content,
		AttachmentRef: in.AttachmentRef,
		CreatedAt:     now,
		DeliveryState: DeliveryStateSent,
	}

	s.mu.Lock()
	s.byID[id] = &msg
	s.mu.Unlock()

	return msg, nil
}

// MarkDelivered upgrades "sent" to "delivered". Messages already delivered
// or read are left untouched (the transition is one-way).
func (s *InMemoryStore) MarkDelivered(ctx context.Context, messageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[messageID]
	if !ok {
		return ErrNotFound
	}
	if m.DeliveryState == DeliveryStateSent {
		m.DeliveryState = DeliveryStateDelivered
	}
	return nil
}

// MarkRead transitions sent|delivered -> read exactly once.
// Only the message receiver may mark it read; anyone else gets ErrNotFound
// to avoid leaking message existence.
func (s *InMemoryStore) MarkRead(ctx context.Context, messageID, readerID string, now time.Time) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[messageID]
	if !ok || m.ReceiverID != readerID {
		return Message{}, ErrNotFound
	}
	if m.DeliveryState == DeliveryStateRead {
		return *m, ErrAlreadyRead
	}

	m.DeliveryState = DeliveryStateRead
	ts := now
	m.ReadAt = &ts
	return *m, nil
}

// History returns both directions between UserID and PeerID ordered by
// (created_at, id), with optional paging by AfterID.
func (s *InMemoryStore) History(ctx context.Context, in HistoryInput) (HistoryResult, error) {
	if in.UserID == "" || in.PeerID == "" {
		return HistoryResult{}, ErrInvalidMessage
	}
	if err := ctx.Err(); err != nil {
		return HistoryResult{}, err
	}

	limit := historyLimit(in.Limit)
	fetch := limit + 1

	s.mu.Lock()
	snap := make([]Message, 0, 64)
	for _, m := range s.byID {
		if (m.SenderID == in.UserID && m.ReceiverID == in.PeerID) ||
			(m.SenderID == in.PeerID && m.ReceiverID == in.UserID) {
			snap = append(snap, *m)
		}
	}
	s.mu.Unlock()

	sort.Slice(snap, func(i, j int) bool {
		if !snap[i].CreatedAt.Equal(snap[j].CreatedAt) {
			return snap[i].CreatedAt.Before(snap[j].CreatedAt)
		}
		return snap[i].ID < snap[j].ID
	})

	if in.AfterID != "" {
		start := 0
		for i := range snap {
			if snap[i].ID == in.AfterID {
				start = i + 1
				break
			}
		}
		snap = snap[start:]
	}

	if len(snap) > memMaxMessagesPerPair {
		snap = snap[len(snap)-memMaxMessagesPerPair:]
	}
	if len(snap) > fetch {
		snap = snap[:fetch]
	}

	hasMore := len(snap) > limit
	if hasMore {
		snap = snap[:limit]
	}

	return HistoryResult{Messages: snap, HasMore: hasMore}, nil
}

// Conversations folds all messages touching userID into one summary per
// peer, ordered by the last message's recency (newest first).
func (s *InMemoryStore) Conversations(ctx context.Context, userID string) ([]Conversation, error) {
	if userID == "" {
		return nil, ErrInvalidMessage
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	byPeer := make(map[string]*Conversation)
	for _, m := range s.byID {
		var peer string
		switch userID {
		case m.SenderID:
			peer = m.ReceiverID
		case m.ReceiverID:
			peer = m.SenderID
		default:
			continue
		}

		c, ok := byPeer[peer]
		if !ok {
			c = &Conversation{PeerID: peer, LastMessage: *m}
			byPeer[peer] = c
		} else if laterMessage(*m, c.LastMessage) {
			c.LastMessage = *m
		}
		if m.ReceiverID == userID && m.DeliveryState != DeliveryStateRead {
			c.Unread++
		}
	}
	s.mu.Unlock()

	out := make([]Conversation, 0, len(byPeer))
	for _, c := range byPeer {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return laterMessage(out[i].LastMessage, out[j].LastMessage)
	})
	return out, nil
}

func laterMessage(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}
