package realtime

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry is the authoritative, process-local answer to
// "does user X have a live connection, and which one?".
//
// Concurrency guarantees:
// - Register/Unregister/Lookup/Snapshot are safe under concurrent use.
// - At most one Client is associated with a userId at any instant.
// - A stale unregister never evicts a fresher registration (reference guard).
//
// Presence is process-local by design: running more than one server process
// breaks presence tracking. There is no shared backplane.
type Registry struct {
	log *slog.Logger

	mu     sync.RWMutex
	byUser map[string]*Client
}

// NewRegistry constructs an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:    log,
		byUser: make(map[string]*Client),
	}
}

// Register inserts or overwrites the entry for the client's user.
// It always succeeds and returns the superseded client, if any, so the
// caller can close the now-unroutable previous connection.
func (r *Registry) Register(c *Client) (prev *Client) {
	if r == nil || c == nil || c.UserID == "" {
		return nil
	}

	r.mu.Lock()
	prev = r.byUser[c.UserID]
	if prev == c {
		prev = nil
	}
	r.byUser[c.UserID] = c
	online := len(r.byUser)
	r.mu.Unlock()

	metricOnlineUsers.Set(float64(online))
	r.log.Info("registry.register", "user_id", c.UserID, "session_id", c.SessionID, "superseded", prev != nil)
	return prev
}

// Unregister removes the entry for the client's user only if the stored
// connection is the one being unregistered. The guard prevents a stale
// disconnect racing a fresher reconnect from evicting the new connection.
func (r *Registry) Unregister(c *Client) bool {
	if r == nil || c == nil || c.UserID == "" {
		return false
	}

	r.mu.Lock()
	cur, ok := r.byUser[c.UserID]
	if !ok || cur != c {
		r.mu.Unlock()
		return false
	}
	delete(r.byUser, c.UserID)
	online := len(r.byUser)
	r.mu.Unlock()

	metricOnlineUsers.Set(float64(online))
	r.log.Info("registry.unregister", "user_id", c.UserID, "session_id", c.SessionID)
	return true
}

// Lookup returns the live connection for userID, if any. Pure read.
func (r *Registry) Lookup(userID string) (*Client, bool) {
	if r == nil || userID == "" {
		return nil, false
	}

	r.mu.RLock()
	c, ok := r.byUser[userID]
	r.mu.RUnlock()
	return c, ok
}

// Snapshot returns the sorted set of currently online user ids.
func (r *Registry) Snapshot() []string {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	out := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		out = append(out, id)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Clients returns all currently registered connections.
// Used to broadcast presence snapshots.
func (r *Registry) Clients() []*Client {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	out := make([]*Client, 0, len(r.byUser))
	for _, c := range r.byUser {
		out = append(out, c)
	}
	r.mu.RUnlock()
	return out
}
