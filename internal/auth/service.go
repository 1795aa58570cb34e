// Package auth implements CommuNet accounts and bearer-token sessions.
//
// Tokens are opaque random strings; only their SHA-256 hash is persisted.
// The realtime gateway and the REST API both resolve identities through
// Service.Verify.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	defaultTokenTTL   = 24 * time.Hour
	defaultTokenBytes = 32
)

// Service implements registration, login, and credential verification.
type Service struct {
	log   *slog.Logger
	store Store

	tokenTTL   time.Duration
	tokenBytes int
}

// Option configures Service behavior.
type Option func(*Service)

// WithTokenTTL overrides the session lifetime (default 24h).
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// NewService constructs a Service over the given store.
func NewService(log *slog.Logger, store Store, opts ...Option) *Service {
	s := &Service{
		log:        log,
		store:      store,
		tokenTTL:   defaultTokenTTL,
		tokenBytes: defaultTokenBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Issued is the result of a successful registration or login.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}

// RegisterInput describes a registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Register creates an account and issues a session token.
func (s *Service) Register(ctx context.Context, now time.Time, in RegisterInput) (User, Issued, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return User{}, Issued{}, fmt.Errorf("auth: missing or invalid registration fields")
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, Issued{}, err
	}

	id, err := newUserID(now)
	if err != nil {
		return User{}, Issued{}, err
	}

	u := User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return User{}, Issued{}, err
	}

	issued, err := s.issueToken(ctx, now, u.ID)
	if err != nil {
		return User{}, Issued{}, err
	}

	s.log.Info("auth.register", "user_id", u.ID)
	return u, issued, nil
}

// Login verifies credentials and issues a session token.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, now time.Time, email, password string) (User, Issued, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, Issued{}, ErrInvalidCredentials
		}
		return User{}, Issued{}, err
	}

	ok, err := VerifyPassword(password, u.PasswordHash)
	if err != nil {
		return User{}, Issued{}, err
	}
	if !ok {
		return User{}, Issued{}, ErrInvalidCredentials
	}

	issued, err := s.issueToken(ctx, now, u.ID)
	if err != nil {
		return User{}, Issued{}, err
	}

	s.log.Info("auth.login", "user_id", u.ID)
	return u, issued, nil
}

// Verify resolves a bearer credential to a user id.
// It satisfies the realtime gateway's AuthVerifier interface.
func (s *Service) Verify(ctx context.Context, credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	// Sanity bounds to avoid hashing pathological inputs.
	if credential == "" || len(credential) > 4096 {
		return "", ErrInvalidToken
	}

	sess, err := s.store.GetSession(ctx, hashTokenHex(credential))
	if err != nil {
		return "", err
	}
	if !sess.ExpiresAt.After(time.Now().UTC()) {
		return "", ErrTokenExpired
	}
	return sess.UserID, nil
}

// Logout revokes the session behind a credential. Revoking an unknown
// credential is a no-op.
func (s *Service) Logout(ctx context.Context, credential string) error {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil
	}
	return s.store.DeleteSession(ctx, hashTokenHex(credential))
}

// GetUser returns the account for id.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	return s.store.GetUserByID(ctx, id)
}

// ListOthers returns every account except userID (the user-search surface).
func (s *Service) ListOthers(ctx context.Context, userID string) ([]User, error) {
	return s.store.ListOtherUsers(ctx, userID)
}

func (s *Service) issueToken(ctx context.Context, now time.Time, userID string) (Issued, error) {
	raw := make([]byte, s.tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return Issued{}, fmt.Errorf("token: %w", err)
	}
	token := hex.EncodeToString(raw)

	sess := Session{
		TokenHash: hashTokenHex(token),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.tokenTTL),
	}
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return Issued{}, err
	}

	return Issued{Token: token, ExpiresAt: sess.ExpiresAt}, nil
}

// hashTokenHex returns the SHA-256 hex digest used as the server-side
// session key. The plain token never touches storage.
func hashTokenHex(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
