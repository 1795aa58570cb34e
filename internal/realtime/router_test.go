package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	v1 "github.com/animeshkarmakar7/CommuNet/contracts/realtime/v1"
)

func newTestRouter(t *testing.T) (*Router, *Registry, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore()
	reg := NewRegistry(testLogger())
	r := NewRouter(testLogger(), store, reg, time.Hour)
	t.Cleanup(r.Close)
	return r, reg, store
}

func drainOne(t *testing.T, c *Client) v1.Envelope {
	t.Helper()
	select {
	case env := <-c.Send:
		return env
	case <-time.After(time.Second):
		t.Fatalf("no envelope queued for %s", c.UserID)
		return v1.Envelope{}
	}
}

func decodePayload(t *testing.T, env v1.Envelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		t.Fatalf("decode %s payload: %v", env.Type, err)
	}
}

func TestRoute_DeliveredWhenReceiverOnline(t *testing.T) {
	r, reg, store := newTestRouter(t)

	sender := NewClient("u1", "s1", time.Now(), 8)
	receiver := NewClient("u2", "s2", time.Now(), 8)
	reg.Register(sender)
	reg.Register(receiver)

	out, err := r.Route(context.Background(), "u1", sender, SendInput{
		SenderID: "u1", ReceiverID: "u2", Content: "hi",
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !out.Delivered {
		t.Fatalf("expected delivered outcome")
	}

	// Exactly one push, to the receiver, already stamped delivered.
	env := drainOne(t, receiver)
	if env.Type != v1.TypeMessageNew {
		t.Fatalf("receiver got %s, want message_new", env.Type)
	}
	var mp v1.MessagePayload
	decodePayload(t, env, &mp)
	if mp.SenderID != "u1" || mp.ReceiverID != "u2" || mp.Content != "hi" {
		t.Fatalf("unexpected payload: %+v", mp)
	}
	if mp.DeliveryState != DeliveryStateDelivered {
		t.Fatalf("pushed state = %q, want delivered", mp.DeliveryState)
	}
	select {
	case extra := <-receiver.Send:
		t.Fatalf("receiver got a second envelope: %s", extra.Type)
	default:
	}

	// The sender gets the ack, never a copy of the message.
	ackEnv := drainOne(t, sender)
	if ackEnv.Type != v1.TypeDeliveryAck {
		t.Fatalf("sender got %s, want delivery_ack", ackEnv.Type)
	}
	var ack v1.DeliveryAckPayload
	decodePayload(t, ackEnv, &ack)
	if ack.MessageID != out.Message.ID || !ack.Delivered {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	// Persisted state caught up with the push.
	hist, err := store.History(context.Background(), HistoryInput{UserID: "u1", PeerID: "u2"})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist.Messages) != 1 || hist.Messages[0].DeliveryState != DeliveryStateDelivered {
		t.Fatalf("unexpected history: %+v", hist.Messages)
	}
}

func TestRoute_OfflineReceiverIsNormalOutcome(t *testing.T) {
	r, reg, store := newTestRouter(t)

	sender := NewClient("u1", "s1", time.Now(), 8)
	reg.Register(sender)

	out, err := r.Route(context.Background(), "u1", sender, SendInput{
		SenderID: "u1", ReceiverID: "u2", Content: "hi",
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if out.Delivered {
		t.Fatalf("expected delivered=false for offline receiver")
	}

	ackEnv := drainOne(t, sender)
	var ack v1.DeliveryAckPayload
	decodePayload(t, ackEnv, &ack)
	if ack.Delivered {
		t.Fatalf("ack should report delivered=false")
	}

	hist, _ := store.History(context.Background(), HistoryInput{UserID: "u1", PeerID: "u2"})
	if len(hist.Messages) != 1 || hist.Messages[0].DeliveryState != DeliveryStateSent {
		t.Fatalf("offline message should persist as sent, got %+v", hist.Messages)
	}
}

func TestRoute_NoEchoToSelf(t *testing.T) {
	r, reg, _ := newTestRouter(t)

	sender := NewClient("u1", "s1", time.Now(), 8)
	reg.Register(sender)

	out, err := r.Route(context.Background(), "u1", sender, SendInput{
		SenderID: "u1", ReceiverID: "u1", Content: "note to self",
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if out.Delivered {
		t.Fatalf("self-addressed message must not count as delivered")
	}

	// Only the ack may arrive on the sender's connection.
	env := drainOne(t, sender)
	if env.Type != v1.TypeDeliveryAck {
		t.Fatalf("sender got %s, want delivery_ack", env.Type)
	}
	select {
	case extra := <-sender.Send:
		t.Fatalf("message echoed to sender: %s", extra.Type)
	default:
	}
}

func TestRoute_Validation(t *testing.T) {
	r, _, _ := newTestRouter(t)

	cases := []struct {
		name string
		in   SendInput
		want error
	}{
		{"empty content", SendInput{SenderID: "u1", ReceiverID: "u2", Content: "   "}, ErrInvalidMessage},
		{"missing receiver", SendInput{SenderID: "u1", Content: "hi"}, ErrInvalidMessage},
		{"missing sender", SendInput{ReceiverID: "u2", Content: "hi"}, ErrInvalidMessage},
		{"too long", SendInput{SenderID: "u1", ReceiverID: "u2", Content: strings.Repeat("x", maxMessageChars+1)}, ErrInvalidMessage},
		{"spoofed sender", SendInput{SenderID: "u9", ReceiverID: "u2", Content: "hi"}, ErrUnauthorizedSender},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Route(context.Background(), "u1", nil, tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRoute_ContentAtLimitAccepted(t *testing.T) {
	r, _, _ := newTestRouter(t)

	_, err := r.Route(context.Background(), "u1", nil, SendInput{
		SenderID: "u1", ReceiverID: "u2", Content: strings.Repeat("й", maxMessageChars),
	})
	if err != nil {
		t.Fatalf("content at the rune limit should pass: %v", err)
	}
}

type failingStore struct {
	InMemoryStore
}

func (s *failingStore) Create(context.Context, CreateMessageInput) (Message, error) {
	return Message{}, errors.New("connection refused")
}

func TestRoute_StoreFailureMeansNoPush(t *testing.T) {
	store := &failingStore{}
	reg := NewRegistry(testLogger())
	r := NewRouter(testLogger(), store, reg, time.Hour)
	defer r.Close()

	receiver := NewClient("u2", "s2", time.Now(), 8)
	reg.Register(receiver)

	_, err := r.Route(context.Background(), "u1", nil, SendInput{
		SenderID: "u1", ReceiverID: "u2", Content: "hi",
	})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}

	select {
	case env := <-receiver.Send:
		t.Fatalf("push happened despite persistence failure: %s", env.Type)
	default:
	}
}

func TestRoute_PerSenderOrderPreserved(t *testing.T) {
	r, reg, _ := newTestRouter(t)

	receiver := NewClient("u2", "s2", time.Now(), 64)
	reg.Register(receiver)

	contents := []string{"one", "two", "three", "four"}
	for _, c := range contents {
		if _, err := r.Route(context.Background(), "u1", nil, SendInput{
			SenderID: "u1", ReceiverID: "u2", Content: c,
		}); err != nil {
			t.Fatalf("Route(%q): %v", c, err)
		}
	}

	for _, want := range contents {
		env := drainOne(t, receiver)
		var mp v1.MessagePayload
		decodePayload(t, env, &mp)
		if mp.Content != want {
			t.Fatalf("got %q, want %q", mp.Content, want)
		}
	}
}

func TestRouteReadReceipt_Idempotent(t *testing.T) {
	r, reg, store := newTestRouter(t)

	sender := NewClient("u1", "s1", time.Now(), 8)
	reg.Register(sender)

	msg, err := store.Create(context.Background(), CreateMessageInput{
		SenderID: "u1", ReceiverID: "u2", Content: "hi",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := r.RouteReadReceipt(context.Background(), "u2", msg.ID); err != nil {
		t.Fatalf("first receipt: %v", err)
	}

	env := drainOne(t, sender)
	if env.Type != v1.TypeReadReceipt {
		t.Fatalf("sender got %s, want read_receipt", env.Type)
	}
	var rp v1.ReadReceiptPayload
	decodePayload(t, env, &rp)
	if rp.MessageID != msg.ID || rp.ReadBy != "u2" || rp.ReadAt.IsZero() {
		t.Fatalf("unexpected receipt: %+v", rp)
	}

	// Repeating the receipt is a silent no-op: no error, no second push.
	if err := r.RouteReadReceipt(context.Background(), "u2", msg.ID); err != nil {
		t.Fatalf("repeated receipt: %v", err)
	}
	select {
	case extra := <-sender.Send:
		t.Fatalf("duplicate receipt pushed: %s", extra.Type)
	default:
	}
}

func TestRouteReadReceipt_OnlyReceiverMayMark(t *testing.T) {
	r, _, store := newTestRouter(t)

	msg, err := store.Create(context.Background(), CreateMessageInput{
		SenderID: "u1", ReceiverID: "u2", Content: "hi",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := r.RouteReadReceipt(context.Background(), "u3", msg.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := r.RouteReadReceipt(context.Background(), "u2", "nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// u1 sends "hi" while u2 is online, then "bye" after u2 disconnects; u2's
// next history fetch sees both exactly once, in creation order.
func TestRoute_ConversationScenario(t *testing.T) {
	r, reg, store := newTestRouter(t)
	ctx := context.Background()

	u1 := NewClient("u1", "s1", time.Now(), 16)
	u2 := NewClient("u2", "s2", time.Now(), 16)
	reg.Register(u1)
	reg.Register(u2)

	out, err := r.Route(ctx, "u1", u1, SendInput{SenderID: "u1", ReceiverID: "u2", Content: "hi"})
	if err != nil {
		t.Fatalf("send hi: %v", err)
	}
	if !out.Delivered {
		t.Fatalf("hi should be delivered while u2 is online")
	}
	if env := drainOne(t, u2); env.Type != v1.TypeMessageNew {
		t.Fatalf("u2 got %s, want message_new", env.Type)
	}

	reg.Unregister(u2)
	u2.Close()

	out, err = r.Route(ctx, "u1", u1, SendInput{SenderID: "u1", ReceiverID: "u2", Content: "bye"})
	if err != nil {
		t.Fatalf("send bye: %v", err)
	}
	if out.Delivered {
		t.Fatalf("bye should not be delivered after u2 disconnected")
	}

	// u2 reconnects and fetches history: both messages, exactly once, in order.
	hist, err := store.History(ctx, HistoryInput{UserID: "u2", PeerID: "u1"})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist.Messages) != 2 {
		t.Fatalf("history has %d messages, want 2", len(hist.Messages))
	}
	if hist.Messages[0].Content != "hi" || hist.Messages[1].Content != "bye" {
		t.Fatalf("history order: %q, %q", hist.Messages[0].Content, hist.Messages[1].Content)
	}
	if hist.Messages[0].DeliveryState != DeliveryStateDelivered || hist.Messages[1].DeliveryState != DeliveryStateSent {
		t.Fatalf("states: %q, %q", hist.Messages[0].DeliveryState, hist.Messages[1].DeliveryState)
	}
}
