package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	v1 "github.com/animeshkarmakar7/CommuNet/contracts/realtime/v1"
)

// Router decides where a message goes right now and records the outcome.
//
// Ordering: callers invoke Route sequentially per connection (the gateway's
// read loop), so per-sender order is preserved. No ordering is guaranteed
// across different senders; receivers sort by (created_at, id).
type Router struct {
	log      *slog.Logger
	store    MessageStore
	registry *Registry
	typing   *TypingLeases
}

// NewRouter constructs a Router. The typing-lease TTL bounds how long a
// typing indicator survives without a fresh signal.
func NewRouter(log *slog.Logger, store MessageStore, registry *Registry, typingTTL time.Duration) *Router {
	r := &Router{
		log:      log,
		store:    store,
		registry: registry,
	}
	r.typing = NewTypingLeases(typingTTL, r.typingExpired)
	return r
}

// Close cancels outstanding typing leases.
func (r *Router) Close() {
	r.typing.Close()
}

// SendInput is a message submitted for routing, from the live channel or REST.
type SendInput struct {
	SenderID      string
	ReceiverID    string
	Content       string
	AttachmentRef string
}

// DeliveryOutcome reports what happened to a routed message.
type DeliveryOutcome struct {
	Message   Message
	Delivered bool
}

// Route validates, persists, and — when the receiver has a live connection —
// pushes a message. senderConn may be nil for REST-originated sends; when
// present, a delivery ack is queued on it.
//
// Correctness requirements honored here:
//   - The push happens only after durable persistence succeeds.
//   - The message is never echoed back to the sender's own connection.
//   - An offline receiver is a normal outcome (ack delivered:false), not an error.
func (r *Router) Route(ctx context.Context, authUserID string, senderConn *Client, in SendInput) (DeliveryOutcome, error) {
	in.SenderID = strings.TrimSpace(in.SenderID)
	in.ReceiverID = strings.TrimSpace(in.ReceiverID)

	if in.SenderID == "" || in.ReceiverID == "" || strings.TrimSpace(in.Content) == "" {
		return DeliveryOutcome{}, ErrInvalidMessage
	}
	if len([]rune(in.Content)) > maxMessageChars {
		return DeliveryOutcome{}, fmt.Errorf("%w: content too long (max %d chars)", ErrInvalidMessage, maxMessageChars)
	}
	if in.SenderID != authUserID {
		return DeliveryOutcome{}, ErrUnauthorizedSender
	}

	now := time.Now().UTC()
	msg, err := r.store.Create(ctx, CreateMessageInput{
		SenderID:      in.SenderID,
		ReceiverID:    in.ReceiverID,
		Content:       in.Content,
		AttachmentRef: in.AttachmentRef,
		Now:           now,
	})
	if err != nil {
		return DeliveryOutcome{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	delivered := r.pushNewMessage(ctx, msg)
	if delivered {
		msg.DeliveryState = DeliveryStateDelivered
		if err := r.store.MarkDelivered(ctx, msg.ID); err != nil {
			// The receiver already has the message; losing the state upgrade
			// is recoverable (the next read receipt supersedes it).
			r.log.Warn("router.mark_delivered.fail", "message_id", msg.ID, "err", err)
		}
		metricMessagesRouted.WithLabelValues(outcomeDelivered).Inc()
	} else {
		metricMessagesRouted.WithLabelValues(outcomeOffline).Inc()
	}

	if senderConn != nil {
		ack := mustEnvelope(v1.TypeDeliveryAck, v1.DeliveryAckPayload{
			MessageID: msg.ID,
			Delivered: delivered,
		}, now)
		if !senderConn.Enqueue(ack) {
			metricPushesDropped.Inc()
		}
	}

	return DeliveryOutcome{Message: msg, Delivered: delivered}, nil
}

// pushNewMessage pushes msg to the receiver's live connection, if any.
// Self-addressed messages are never pushed (no-echo-to-sender).
func (r *Router) pushNewMessage(_ context.Context, msg Message) bool {
	rc, ok := r.registry.Lookup(msg.ReceiverID)
	if !ok || rc.UserID == msg.SenderID {
		return false
	}

	pushed := msg
	pushed.DeliveryState = DeliveryStateDelivered
	env := mustEnvelope(v1.TypeMessageNew, messagePayload(pushed), msg.CreatedAt)

	if !rc.Enqueue(env) {
		metricPushesDropped.Inc()
		r.log.Info("router.push.drop", "message_id", msg.ID, "receiver_id", msg.ReceiverID)
		return false
	}
	return true
}

// RouteTyping relays an ephemeral typing signal to the peer, best-effort.
// No persistence, no acknowledgment, silently a no-op when the peer is
// offline. Redundant signals (same state as the live lease) are suppressed.
func (r *Router) RouteTyping(fromUserID, toUserID string, isTyping bool) {
	fromUserID = strings.TrimSpace(fromUserID)
	toUserID = strings.TrimSpace(toUserID)
	if fromUserID == "" || toUserID == "" || fromUserID == toUserID {
		return
	}

	if !r.typing.Set(fromUserID, toUserID, isTyping) {
		return
	}
	r.pushTypingStatus(fromUserID, toUserID, isTyping)
}

// typingExpired is the lease-expiry callback: the typist went silent without
// an explicit stop, so the peer is told typing ended.
func (r *Router) typingExpired(typist, peer string) {
	r.pushTypingStatus(typist, peer, false)
}

func (r *Router) pushTypingStatus(fromUserID, toUserID string, isTyping bool) {
	rc, ok := r.registry.Lookup(toUserID)
	if !ok {
		return
	}

	env := mustEnvelope(v1.TypeTypingStatus, v1.TypingStatusPayload{
		FromUserID: fromUserID,
		IsTyping:   isTyping,
	}, time.Now().UTC())

	if !rc.Enqueue(env) {
		metricPushesDropped.Inc()
	}
}

// RouteReadReceipt marks a message read and notifies the original sender's
// live connection, if any. Repeated receipts for the same message are
// idempotent no-ops.
func (r *Router) RouteReadReceipt(ctx context.Context, readerID, messageID string) error {
	readerID = strings.TrimSpace(readerID)
	messageID = strings.TrimSpace(messageID)
	if readerID == "" || messageID == "" {
		return ErrInvalidMessage
	}

	now := time.Now().UTC()
	msg, err := r.store.MarkRead(ctx, messageID, readerID, now)
	if err != nil {
		if errors.Is(err, ErrAlreadyRead) {
			return nil
		}
		return err
	}

	sc, ok := r.registry.Lookup(msg.SenderID)
	if !ok {
		return nil
	}

	readAt := now
	if msg.ReadAt != nil {
		readAt = *msg.ReadAt
	}
	env := mustEnvelope(v1.TypeReadReceipt, v1.ReadReceiptPayload{
		MessageID: msg.ID,
		ReadBy:    readerID,
		ReadAt:    readAt,
	}, now)

	if !sc.Enqueue(env) {
		metricPushesDropped.Inc()
	}
	return nil
}

// ---- envelope helpers ----

func messagePayload(m Message) v1.MessagePayload {
	return v1.MessagePayload{
		ID:            m.ID,
		SenderID:      m.SenderID,
		ReceiverID:    m.ReceiverID,
		Content:       m.Content,
		AttachmentRef: m.AttachmentRef,
		CreatedAt:     m.CreatedAt,
		DeliveryState: m.DeliveryState,
		ReadAt:        m.ReadAt,
	}
}

// mustEnvelope wraps a payload that is always marshalable (our own types).
func mustEnvelope(typ string, payload any, ts time.Time) v1.Envelope {
	raw, _ := json.Marshal(payload)
	id, _ := NewEnvelopeID(ts)
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      id,
		TS:      ts,
		Payload: raw,
	}
}
