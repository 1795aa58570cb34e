package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model mirrors the realtime stores: the pgx pool belongs to the
// caller, Close() is a no-op.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "communet").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("auth: empty schema")
		}
		if !authIdentRE.MatchString(schema) {
			return errors.New("auth: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "communet",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("auth: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// CreateUser inserts a new account, mapping the unique-email violation to ErrEmailTaken.
func (s *PostgresStore) CreateUser(ctx context.Context, u User) error {
	users := s.ident("users")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+users+` (id, name, email, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Name, normalizeEmail(u.Email), u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 = unique_violation
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

// GetUserByEmail looks an account up by normalized email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	users := s.ident("users")

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at
		   FROM `+users+`
		  WHERE email = $1`,
		normalizeEmail(email),
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// GetUserByID looks an account up by id.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	users := s.ident("users")

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at
		   FROM `+users+`
		  WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// ListOtherUsers returns every account except excludeID, ordered by name then id.
func (s *PostgresStore) ListOtherUsers(ctx context.Context, excludeID string) ([]User, error) {
	users := s.ident("users")

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, email, password_hash, created_at
		   FROM `+users+`
		  WHERE id <> $1
		  ORDER BY name ASC, id ASC`,
		excludeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]User, 0, 32)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SaveSession stores an issued session keyed by token hash.
func (s *PostgresStore) SaveSession(ctx context.Context, sess Session) error {
	sessions := s.ident("sessions")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+sessions+` (token_hash, user_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		sess.TokenHash, sess.UserID, sess.CreatedAt, sess.ExpiresAt,
	)
	return err
}

// GetSession returns the session for tokenHash, if any.
func (s *PostgresStore) GetSession(ctx context.Context, tokenHash string) (Session, error) {
	sessions := s.ident("sessions")

	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT token_hash, user_id, created_at, expires_at
		   FROM `+sessions+`
		  WHERE token_hash = $1`,
		tokenHash,
	).Scan(&sess.TokenHash, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

// DeleteSession removes a session; deleting a missing session is not an error.
func (s *PostgresStore) DeleteSession(ctx context.Context, tokenHash string) error {
	sessions := s.ident("sessions")

	_, err := s.pool.Exec(ctx, `DELETE FROM `+sessions+` WHERE token_hash = $1`, tokenHash)
	return err
}

var authIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func (s *PostgresStore) ident(table string) string {
	return pgx.Identifier{s.schema, table}.Sanitize()
}
