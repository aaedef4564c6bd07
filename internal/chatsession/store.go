// Package chatsession provides PostgreSQL-backed storage for chat sessions
// created by the matchmaker. The matchmaker only creates sessions; once
// created they are owned by the messaging side, which appends messages and
// keeps last_message_at fresh.
package chatsession

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/koibridge/match-app/internal/cohort"
)

// StatusActive is the only session status the matchmaker produces.
// Sessions leave it through End when a participant closes the chat.
const StatusActive = "active"

// Session represents an active chat between two matched users.
type Session struct {
	ID            string
	UserA         string
	UserB         string
	CohortA       cohort.Cohort
	CohortB       cohort.Cohort
	Status        string
	CreatedAt     time.Time
	LastMessageAt time.Time
}

// Partner returns the other participant's user ID, or "" if the given
// user is not a participant.
func (s *Session) Partner(userID string) string {
	if userID == s.UserA {
		return s.UserB
	}
	if userID == s.UserB {
		return s.UserA
	}
	return ""
}

// IsParticipant checks if a user is part of this session.
func (s *Session) IsParticipant(userID string) bool {
	return userID == s.UserA || userID == s.UserB
}

// Store manages chat sessions in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a session store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new active session binding the two matched users.
func (s *Store) Create(ctx context.Context, userA, userB string, cohortA, cohortB cohort.Cohort) (*Session, error) {
	now := time.Now().UTC()
	session := &Session{
		ID:            NewSessionID(userA, userB, now),
		UserA:         userA,
		UserB:         userB,
		CohortA:       cohortA,
		CohortB:       cohortB,
		Status:        StatusActive,
		CreatedAt:     now,
		LastMessageAt: now,
	}

	const query = `
		INSERT INTO chat_sessions (session_id, user_a, user_b, cohort_a, cohort_b, status, created_at, last_message_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.UserA,
		session.UserB,
		session.CohortA.String(),
		session.CohortB.String(),
		session.Status,
		session.CreatedAt,
		session.LastMessageAt,
	)
	if err != nil {
		return nil, fmt.Errorf("chatsession: insert: %w", err)
	}
	return session, nil
}

// Get retrieves a session by ID. Returns nil if not found.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	const query = `
		SELECT session_id, user_a, user_b, cohort_a, cohort_b, status, created_at, last_message_at
		FROM chat_sessions
		WHERE session_id = $1`

	var session Session
	var cohortA, cohortB string
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID,
		&session.UserA,
		&session.UserB,
		&cohortA,
		&cohortB,
		&session.Status,
		&session.CreatedAt,
		&session.LastMessageAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chatsession: get %s: %w", sessionID, err)
	}

	session.CohortA = cohort.Cohort(cohortA)
	session.CohortB = cohort.Cohort(cohortB)
	return &session, nil
}

// FindActiveByUser returns the most recent active session the user
// participates in, or nil. The matchmaker uses this to resolve polls from
// a user whose waiting record was consumed by the partner's match attempt.
func (s *Store) FindActiveByUser(ctx context.Context, userID string) (*Session, error) {
	const query = `
		SELECT session_id, user_a, user_b, cohort_a, cohort_b, status, created_at, last_message_at
		FROM chat_sessions
		WHERE status = $1 AND (user_a = $2 OR user_b = $2)
		ORDER BY created_at DESC
		LIMIT 1`

	var session Session
	var cohortA, cohortB string
	err := s.db.QueryRowContext(ctx, query, StatusActive, userID).Scan(
		&session.ID,
		&session.UserA,
		&session.UserB,
		&cohortA,
		&cohortB,
		&session.Status,
		&session.CreatedAt,
		&session.LastMessageAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chatsession: find active for %s: %w", userID, err)
	}

	session.CohortA = cohort.Cohort(cohortA)
	session.CohortB = cohort.Cohort(cohortB)
	return &session, nil
}

// End marks a session as ended. Called by the messaging side when either
// participant leaves the chat, which also makes the user matchable again.
func (s *Store) End(ctx context.Context, sessionID string) error {
	const query = `UPDATE chat_sessions SET status = 'ended' WHERE session_id = $1`
	if _, err := s.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("chatsession: end %s: %w", sessionID, err)
	}
	return nil
}
