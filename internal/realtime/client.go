package realtime

import (
	"sync"
	"time"

	v1 "github.com/animeshkarmakar7/CommuNet/contracts/realtime/v1"
)

// Client represents one connected websocket session for an authenticated user.
//
// Design notes:
// - Send is intentionally NOT closed by the server to avoid panics from concurrent routers.
// - done is used to signal goroutines to stop.
// - Close is idempotent.
type Client struct {
	UserID      string
	SessionID   string
	ConnectedAt time.Time
	Send        chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(userID, sessionID string, connectedAt time.Time, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		UserID:      userID,
		SessionID:   sessionID,
		ConnectedAt: connectedAt,
		Send:        make(chan v1.Envelope, sendQueueSize),
		done:        make(chan struct{}),
	}
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop (idempotent).
// It does NOT close Send to keep routing safe under concurrency.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Enqueue attempts a non-blocking push onto the client's send queue.
// It returns false when the client is shutting down or the queue is full.
func (c *Client) Enqueue(env v1.Envelope) bool {
	if c == nil {
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.Send <- env:
		return true
	default:
		return false
	}
}
