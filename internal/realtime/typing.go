package realtime

import (
	"sync"
	"time"
)

type typingKey struct {
	typist string
	peer   string
}

// typingLease pairs the expiry timer with a generation number. Every
// create/refresh bumps the generation; a timer callback carrying an older
// generation was superseded and must not fire.
type typingLease struct {
	tm  *time.Timer
	gen uint64
}

// TypingLeases tracks ephemeral "user X is composing to user Y" claims with
// a fixed TTL per (typist, peer) pair. Expiry is a scheduled cancellation on
// the server, not a client-guessed timeout: if no fresh typing=true arrives
// within the TTL, the expire callback fires as if typing=false was received.
type TypingLeases struct {
	ttl    time.Duration
	expire func(typist, peer string)

	mu     sync.Mutex
	leases map[typingKey]*typingLease
	gen    uint64
	closed bool
}

// NewTypingLeases constructs a lease tracker. expire is invoked with the
// internal lock held so expiry serializes with Set; it must not call back
// into the tracker.
func NewTypingLeases(ttl time.Duration, expire func(typist, peer string)) *TypingLeases {
	if ttl <= 0 {
		ttl = typingLeaseTTL
	}
	return &TypingLeases{
		ttl:    ttl,
		expire: expire,
		leases: make(map[typingKey]*typingLease),
	}
}

// Set updates the lease for (typist, peer). A true state creates or extends
// the lease; a false state cancels it. It reports whether the observable
// typing state changed (used to suppress redundant relays).
func (t *TypingLeases) Set(typist, peer string, isTyping bool) bool {
	if t == nil || typist == "" || peer == "" {
		return false
	}
	key := typingKey{typist: typist, peer: peer}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}

	l, active := t.leases[key]

	if !isTyping {
		if !active {
			return false
		}
		l.tm.Stop()
		delete(t.leases, key)
		return true
	}

	t.gen++
	gen := t.gen

	if active {
		// Refresh: retire the old timer and arm a fresh one. An already
		// fired timer stuck behind the mutex now carries a stale
		// generation and will be ignored.
		l.tm.Stop()
		l.gen = gen
		l.tm = time.AfterFunc(t.ttl, func() { t.expired(key, gen) })
		return false
	}

	t.leases[key] = &typingLease{
		gen: gen,
		tm:  time.AfterFunc(t.ttl, func() { t.expired(key, gen) }),
	}
	return true
}

// Active reports whether a live lease exists for (typist, peer).
func (t *TypingLeases) Active(typist, peer string) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.leases[typingKey{typist: typist, peer: peer}]
	return ok
}

// Close cancels all outstanding leases without firing their callbacks.
func (t *TypingLeases) Close() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for key, l := range t.leases {
		l.tm.Stop()
		delete(t.leases, key)
	}
}

// expired runs when a lease's timer fires. The generation check rejects
// callbacks whose lease was refreshed or replaced after the timer went off,
// and firing expire under the lock means no Set can interleave between the
// lease's removal and the typing=false relay.
func (t *TypingLeases) expired(key typingKey, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.leases[key]
	if !ok || l.gen != gen || t.closed {
		return
	}
	delete(t.leases, key)

	if t.expire != nil {
		t.expire(key.typist, key.peer)
	}
}
