package realtime

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a MessageStore backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Concurrency model:
// - Single-row conditional updates provide the required atomicity: delivery
//   upgrades match on the current state, so two concurrent read receipts (or
//   a racing delivered/read pair) cannot double-apply.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "communet").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("realtime: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("realtime: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed MessageStore.
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
		return nil, errors.New("realtime: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Create persists a message with a fresh ULID and state "sent".
func (s *PostgresStore) Create(ctx context.Context, in CreateMessageInput) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, errors.New("realtime: nil store")
	}
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

	messages := pgIdent(s.schema, "messages")

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+messages+` (
		     id, sender_id, receiver_id, content, attachment_ref, created_at, delivery_state
		   ) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`,
		id, in.SenderID, in.ReceiverID, in.Content, in.AttachmentRef, now, DeliveryStateSent,
	); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	return Message{
		ID:            id,
		SenderID:      in.SenderID,
		ReceiverID:    in.ReceiverID,
		Content:       in.Content,
		AttachmentRef: in.AttachmentRef,
		CreatedAt:     now,
		DeliveryState: DeliveryStateSent,
	}, nil
}

// MarkDelivered upgrades "sent" to "delivered". The match on the current
// state makes the transition one-way and race-safe.
func (s *PostgresStore) MarkDelivered(ctx context.Context, messageID string) error {
	if s == nil || s.pool == nil {
		return errors.New("realtime: nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	messages := pgIdent(s.schema, "messages")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+messages+`
		    SET delivery_state = $2
		  WHERE id = $1 AND delivery_state = $3`,
		messageID, DeliveryStateDelivered, DeliveryStateSent,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// No transition: the message is either missing or already past "sent".
	var one int
	err = s.pool.QueryRow(ctx,
		`SELECT 1 FROM `+messages+` WHERE id = $1`, messageID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// MarkRead transitions sent|delivered -> read exactly once, guarded by the
// receiver check and the state condition.
func (s *PostgresStore) MarkRead(ctx context.Context, messageID, readerID string, now time.Time) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, errors.New("realtime: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	messages := pgIdent(s.schema, "messages")

	var m Message
	err := s.pool.QueryRow(ctx,
		`UPDATE `+messages+`
		    SET delivery_state = $3,
		        read_at = $4
		  WHERE id = $1 AND receiver_id = $2 AND delivery_state <> $3
		RETURNING id, sender_id, receiver_id, content, COALESCE(attachment_ref, ''), created_at, delivery_state, read_at`,
		messageID, readerID, DeliveryStateRead, now,
	).Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.AttachmentRef, &m.CreatedAt, &m.DeliveryState, &m.ReadAt)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Message{}, err
	}

	// Distinguish "already read" from "not found / not the receiver".
	err = s.pool.QueryRow(ctx,
		`SELECT id, sender_id, receiver_id, content, COALESCE(attachment_ref, ''), created_at, delivery_state, read_at
		   FROM `+messages+`
		  WHERE id = $1 AND receiver_id = $2`,
		messageID, readerID,
	).Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.AttachmentRef, &m.CreatedAt, &m.DeliveryState, &m.ReadAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, err
	}
	return m, ErrAlreadyRead
}

// History returns both directions between UserID and PeerID ordered by
// (created_at, id) ASC, with optional paging by AfterID.
func (s *PostgresStore) History(ctx context.Context, in HistoryInput) (HistoryResult, error) {
	if s == nil || s.pool == nil {
		return HistoryResult{}, errors.New("realtime: nil store")
	}
	if in.UserID == "" || in.PeerID == "" {
		return HistoryResult{}, ErrInvalidMessage
	}
	if err := ctx.Err(); err != nil {
		return HistoryResult{}, err
	}

	limit := historyLimit(in.Limit)
	fetch := limit + 1

	messages := pgIdent(s.schema, "messages")

	var (
		rows pgx.Rows
		err  error
	)

	if in.AfterID == "" {
		rows, err = s.pool.Query(ctx,
			`SELECT id, sender_id, receiver_id, content, COALESCE(attachment_ref, ''), created_at, delivery_state, read_at
			   FROM `+messages+`
			  WHERE (sender_id = $1 AND receiver_id = $2)
			     OR (sender_id = $2 AND receiver_id = $1)
			  ORDER BY created_at ASC, id ASC
			  LIMIT $3`,
			in.UserID, in.PeerID, fetch,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, sender_id, receiver_id, content, COALESCE(attachment_ref, ''), created_at, delivery_state, read_at
			   FROM `+messages+`
			  WHERE ((sender_id = $1 AND receiver_id = $2)
			     OR (sender_id = $2 AND receiver_id = $1))
			    AND id > $3
			  ORDER BY created_at ASC, id ASC
			  LIMIT $4`,
			in.UserID, in.PeerID, in.AfterID, fetch,
		)
	}
	if err != nil {
		return HistoryResult{}, err
	}
	defer rows.Close()

	msgs := make([]Message, 0, fetch)
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID,
			&m.SenderID,
			&m.ReceiverID,
			&m.Content,
			&m.AttachmentRef,
			&m.CreatedAt,
			&m.DeliveryState,
			&m.ReadAt,
		); err != nil {
			return HistoryResult{}, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return HistoryResult{}, err
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}

	return HistoryResult{Messages: msgs, HasMore: hasMore}, nil
}

// Conversations returns one summary per peer, newest conversation first.
// DISTINCT ON picks the latest message per peer; unread counts come from a
// second aggregate query merged in Go.
func (s *PostgresStore) Conversations(ctx context.Context, userID string) ([]Conversation, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("realtime: nil store")
	}
	if userID == "" {
		return nil, ErrInvalidMessage
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (peer)
		        peer, id, sender_id, receiver_id, content, COALESCE(attachment_ref, ''), created_at, delivery_state, read_at
		   FROM (
		        SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS peer,
		               id, sender_id, receiver_id, content, attachment_ref, created_at, delivery_state, read_at
		          FROM `+messages+`
		         WHERE sender_id = $1 OR receiver_id = $1
		   ) t
		  ORDER BY peer, created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := make([]Conversation, 0, 16)
	for rows.Next() {
		var c Conversation
		m := &c.LastMessage
		if err := rows.Scan(
			&c.PeerID,
			&m.ID,
			&m.SenderID,
			&m.ReceiverID,
			&m.Content,
			&m.AttachmentRef,
			&m.CreatedAt,
			&m.DeliveryState,
			&m.ReadAt,
		); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	unread, err := s.pool.Query(ctx,
		`SELECT sender_id, COUNT(*)
		   FROM `+messages+`
		  WHERE receiver_id = $1 AND delivery_state <> $2
		  GROUP BY sender_id`,
		userID, DeliveryStateRead,
	)
	if err != nil {
		return nil, err
	}
	defer unread.Close()

	counts := make(map[string]int, len(convs))
	for unread.Next() {
		var peer string
		var n int
		if err := unread.Scan(&peer, &n); err != nil {
			return nil, err
		}
		counts[peer] = n
	}
	if err := unread.Err(); err != nil {
		return nil, err
	}

	for i := range convs {
		convs[i].Unread = counts[convs[i].PeerID]
	}

	sort.Slice(convs, func(i, j int) bool {
		return laterMessage(convs[i].LastMessage, convs[j].LastMessage)
	})
	return convs, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
