// Package matchmaking implements the cross-cohort pairing core: a request
// either claims the oldest opposite-cohort waiter and opens a chat session,
// or joins its own cohort's waiting queue. Clients poll RequestMatch until
// paired or they cancel; all waiting state lives in the queue store, so any
// node can serve any poll.
package matchmaking

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/koibridge/match-app/internal/chatsession"
	"github.com/koibridge/match-app/internal/cohort"
	"github.com/koibridge/match-app/internal/metrics"
	"github.com/koibridge/match-app/internal/queue"
)

// QueueStore is the waiting-queue dependency. Its ClaimOldest must be
// atomic: two concurrent matchers can never claim the same record.
type QueueStore interface {
	Enqueue(ctx context.Context, userID string, c cohort.Cohort) (int64, error)
	ClaimOldest(ctx context.Context, c cohort.Cohort) (*queue.Entry, error)
	Remove(ctx context.Context, userID string) (bool, error)
	Restore(ctx context.Context, e *queue.Entry) error
	Depth(ctx context.Context, c cohort.Cohort) (int64, error)
}

// SessionStore materializes chat sessions and resolves polls from users
// who were matched by their partner's request.
type SessionStore interface {
	Create(ctx context.Context, userA, userB string, cohortA, cohortB cohort.Cohort) (*chatsession.Session, error)
	FindActiveByUser(ctx context.Context, userID string) (*chatsession.Session, error)
}

// MatchResult is the outcome of one match attempt.
type MatchResult struct {
	Matched            bool
	SessionID          string // set when Matched
	PartnerID          string // set when Matched
	OwnPosition        int64  // 1-based queue position when not matched
	OppositeQueueDepth int64
}

// Stats describes the waiting queues from one cohort's point of view.
type Stats struct {
	OppositeQueueDepth   int64
	SameCohortQueueDepth int64
	EstimatedWaitSeconds int
}

// Service is the matchmaking core.
type Service struct {
	queue     QueueStore
	sessions  SessionStore
	publisher Publisher
	estimator EstimatorConfig
}

// NewService creates a matchmaking service. publisher may be nil to
// disable lifecycle events.
func NewService(q QueueStore, sessions SessionStore, publisher Publisher, estimator EstimatorConfig) *Service {
	return &Service{
		queue:     q,
		sessions:  sessions,
		publisher: publisher,
		estimator: estimator,
	}
}

// RequestMatch attempts to pair the user with the oldest opposite-cohort
// waiter. On a hit it creates the chat session, removes both waiting
// records and notifies both sides; on a miss it (idempotently) enqueues
// the user. A failed call leaves the caller's queue state unchanged, so
// retrying is always safe.
func (s *Service) RequestMatch(ctx context.Context, userID string, c cohort.Cohort) (*MatchResult, error) {
	if err := validate(userID, c); err != nil {
		return nil, err
	}
	opposite := c.Opposite()

	// A partner's match attempt may already have consumed this user's
	// waiting record and created the session; resolve the poll from the
	// session store so both sides see the same sessionId.
	existing, err := s.sessions.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if existing != nil {
		return &MatchResult{
			Matched:   true,
			SessionID: existing.ID,
			PartnerID: existing.Partner(userID),
		}, nil
	}

	claimed, err := s.claimCandidate(ctx, userID, opposite)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if claimed == nil {
		pos, err := s.queue.Enqueue(ctx, userID, c)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		s.refreshDepthGauge(ctx, c)
		return &MatchResult{Matched: false, OwnPosition: pos, OppositeQueueDepth: 0}, nil
	}

	session, err := s.sessions.Create(ctx, userID, claimed.UserID, c, opposite)
	if err != nil {
		// Put the claimed waiter back at their original position so the
		// failed attempt costs nobody their place in line.
		if restoreErr := s.queue.Restore(ctx, claimed); restoreErr != nil {
			log.Printf("[matchmaking] restore %s after session failure: %v", claimed.UserID, restoreErr)
		}
		return nil, fmt.Errorf("%w: create session: %v", ErrUnavailable, err)
	}

	// The requester may still hold a waiting record from an earlier poll.
	if _, err := s.queue.Remove(ctx, userID); err != nil {
		log.Printf("[matchmaking] self-dequeue %s: %v", userID, err)
	}

	waited := time.Since(time.UnixMilli(claimed.JoinedAt))
	metrics.MatchesTotal.Inc()
	metrics.MatchWaitSeconds.Observe(waited.Seconds())
	s.refreshDepthGauge(ctx, c)
	s.refreshDepthGauge(ctx, opposite)

	now := time.Now().Unix()
	publishMatchFound(s.publisher,
		MatchFoundEvent{SessionID: session.ID, PartnerID: claimed.UserID, Cohort: c.String(), MatchedAt: now},
		MatchFoundEvent{SessionID: session.ID, PartnerID: userID, Cohort: opposite.String(), MatchedAt: now},
		userID, claimed.UserID)

	oppositeDepth, err := s.queue.Depth(ctx, opposite)
	if err != nil {
		oppositeDepth = 0 // depth is advisory; the match already stands
	}

	log.Printf("[matchmaking] matched %s (%s) with %s (%s) session=%s waited=%s",
		userID, c, claimed.UserID, opposite, session.ID, waited.Round(time.Millisecond))

	return &MatchResult{
		Matched:            true,
		SessionID:          session.ID,
		PartnerID:          claimed.UserID,
		OppositeQueueDepth: oppositeDepth,
	}, nil
}

// claimCandidate pops opposite-cohort waiters until it finds one that is
// not the requester. A user can only show up in the opposite queue after
// switching cohorts between polls; their stale record is simply dropped.
func (s *Service) claimCandidate(ctx context.Context, userID string, opposite cohort.Cohort) (*queue.Entry, error) {
	for {
		claimed, err := s.queue.ClaimOldest(ctx, opposite)
		if err != nil {
			return nil, err
		}
		if claimed == nil {
			return nil, nil
		}
		if claimed.UserID != userID {
			return claimed, nil
		}
		log.Printf("[matchmaking] dropped stale opposite-cohort record for %s", userID)
	}
}

// Cancel removes the user's waiting record. Cancelling a user who is not
// waiting is a no-op success.
func (s *Service) Cancel(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty userId", ErrInvalidArgument)
	}

	removed, err := s.queue.Remove(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !removed {
		return nil
	}

	metrics.CancellationsTotal.Inc()
	for _, c := range []cohort.Cohort{cohort.KR, cohort.JP} {
		s.refreshDepthGauge(ctx, c)
	}

	if err := publishCancelled(s.publisher, CancelledEvent{UserID: userID, CancelledAt: time.Now().Unix()}); err != nil {
		log.Printf("[matchmaking] publish cancelled for %s: %v", userID, err)
	}

	log.Printf("[matchmaking] cancelled waiting record for %s", userID)
	return nil
}

// Stats reports queue depths and the advisory wait estimate for a cohort.
func (s *Service) Stats(ctx context.Context, c cohort.Cohort) (*Stats, error) {
	if err := validateCohort(c); err != nil {
		return nil, err
	}

	oppositeDepth, err := s.queue.Depth(ctx, c.Opposite())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	sameDepth, err := s.queue.Depth(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &Stats{
		OppositeQueueDepth:   oppositeDepth,
		SameCohortQueueDepth: sameDepth,
		EstimatedWaitSeconds: estimateWait(oppositeDepth, sameDepth, s.estimator),
	}, nil
}

func (s *Service) refreshDepthGauge(ctx context.Context, c cohort.Cohort) {
	depth, err := s.queue.Depth(ctx, c)
	if err != nil {
		return
	}
	metrics.QueueDepth.WithLabelValues(c.String()).Set(float64(depth))
}

func validate(userID string, c cohort.Cohort) error {
	if userID == "" {
		return fmt.Errorf("%w: empty userId", ErrInvalidArgument)
	}
	return validateCohort(c)
}

func validateCohort(c cohort.Cohort) error {
	if c != cohort.KR && c != cohort.JP {
		return fmt.Errorf("%w: invalid cohort %q", ErrInvalidArgument, string(c))
	}
	return nil
}
