// Package message provides PostgreSQL-backed storage for chat messages.
// Clients poll for new messages over HTTP; there is no push channel, so
// the store is the single source of truth for conversation history.
package message

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/koibridge/match-app/internal/cohort"
)

// DefaultListLimit is how many messages a read returns when the client
// does not ask for a specific count.
const DefaultListLimit = 50

// Message is one chat message in a session.
type Message struct {
	ID        int64
	SessionID string
	UserID    string
	Cohort    cohort.Cohort
	Body      string
	CreatedAt time.Time
	Read      bool
}

// Store manages chat messages in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a message store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append stores a new message and bumps the session's last_message_at.
// The body is trimmed; empty bodies are rejected.
func (s *Store) Append(ctx context.Context, sessionID, userID string, c cohort.Cohort, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("message: empty body")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("message: begin: %w", err)
	}
	defer tx.Rollback()

	msg := &Message{
		SessionID: sessionID,
		UserID:    userID,
		Cohort:    c,
		Body:      body,
	}

	const insert = `
		INSERT INTO chat_messages (session_id, user_id, cohort, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err = tx.QueryRowContext(ctx, insert, sessionID, userID, c.String(), body).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("message: insert: %w", err)
	}

	const touch = `UPDATE chat_sessions SET last_message_at = NOW() WHERE session_id = $1`
	if _, err := tx.ExecContext(ctx, touch, sessionID); err != nil {
		return nil, fmt.Errorf("message: touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("message: commit: %w", err)
	}
	return msg, nil
}

// List returns the newest `limit` messages of a session in chronological
// order (oldest first). A non-positive limit falls back to DefaultListLimit.
func (s *Store) List(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	const query = `
		SELECT id, session_id, user_id, cohort, body, created_at, read
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("message: list %s: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var c string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &c, &m.Body, &m.CreatedAt, &m.Read); err != nil {
			return nil, fmt.Errorf("message: scan: %w", err)
		}
		m.Cohort = cohort.Cohort(c)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message: rows: %w", err)
	}

	// Query returned newest first; flip to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
