package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// User is a registered account. PasswordHash is the PHC Argon2id string and
// must never leave this package.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u User) error
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	// ListOtherUsers returns every account except excludeID, ordered by name.
	ListOtherUsers(ctx context.Context, excludeID string) ([]User, error)
}

// Session is a server-side record of an issued bearer token.
// Only the SHA-256 hash of the token is stored, never the plain token.
type Session struct {
	TokenHash string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionStore persists issued sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, tokenHash string) (Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
}

// Store combines both persistence concerns behind one constructor-friendly surface.
type Store interface {
	UserStore
	SessionStore
	Close() error
}

// InMemoryStore is a dev/test fallback when a database is not configured.
type InMemoryStore struct {
	mu       sync.Mutex
	byID     map[string]User
	byEmail  map[string]string // normalized email -> user id
	sessions map[string]Session
}

// NewInMemoryStore constructs an empty in-memory Store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:     make(map[string]User),
		byEmail:  make(map[string]string),
		sessions: make(map[string]Session),
	}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser inserts a new account, failing on a duplicate email.
func (s *InMemoryStore) CreateUser(ctx context.Context, u User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := normalizeEmail(u.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[key]; taken {
		return ErrEmailTaken
	}
	s.byID[u.ID] = u
	s.byEmail[key] = u.ID
	return nil
}

// GetUserByEmail looks an account up by normalized email.
func (s *InMemoryStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return s.byID[id], nil
}

// GetUserByID looks an account up by id.
func (s *InMemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

// ListOtherUsers returns all accounts except excludeID, ordered by name then id.
func (s *InMemoryStore) ListOtherUsers(ctx context.Context, excludeID string) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	out := make([]User, 0, len(s.byID))
	for _, u := range s.byID {
		if u.ID == excludeID {
			continue
		}
		out = append(out, u)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SaveSession stores an issued session keyed by token hash.
func (s *InMemoryStore) SaveSession(ctx context.Context, sess Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.sessions[sess.TokenHash] = sess
	s.mu.Unlock()
	return nil
}

// GetSession returns the session for tokenHash, if any.
func (s *InMemoryStore) GetSession(ctx context.Context, tokenHash string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[tokenHash]
	if !ok {
		return Session{}, ErrInvalidToken
	}
	return sess, nil
}

// DeleteSession removes a session; deleting a missing session is not an error.
func (s *InMemoryStore) DeleteSession(ctx context.Context, tokenHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.sessions, tokenHash)
	s.mu.Unlock()
	return nil
}
