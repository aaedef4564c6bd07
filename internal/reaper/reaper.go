// Package reaper removes abandoned waiting records. A client that stops
// polling without cancelling leaves its record in the queue; the reaper
// sweeps records older than the waiting deadline so they stop inflating
// positions and wait estimates.
package reaper

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/koibridge/match-app/internal/cohort"
	"github.com/koibridge/match-app/internal/metrics"
	"github.com/koibridge/match-app/internal/queue"
)

// Config holds reaper tuning.
type Config struct {
	Interval   time.Duration // how often to sweep
	WaitingTTL time.Duration // max age of a waiting record
}

// DefaultConfig mirrors the client behavior: clients give up after five
// minutes of waiting, so records older than that are abandoned.
func DefaultConfig() Config {
	return Config{
		Interval:   30 * time.Second,
		WaitingTTL: 5 * time.Minute,
	}
}

// Publisher notifies a user that their waiting record expired. May be nil.
type Publisher interface {
	PublishMatchExpired(userID string, data []byte) error
}

// ExpiredEvent is published on match.expired.<user_id> for each reaped record.
type ExpiredEvent struct {
	UserID    string `json:"user_id"`
	JoinedAt  int64  `json:"joined_at"`  // unix milliseconds
	ExpiredAt int64  `json:"expired_at"` // unix seconds
}

// Reaper sweeps stale waiting records on an interval.
type Reaper struct {
	queue  *queue.Store
	pub    Publisher
	config Config
}

// New creates a reaper over the given queue store.
func New(q *queue.Store, pub Publisher, config Config) *Reaper {
	return &Reaper{queue: q, pub: pub, config: config}
}

// Run sweeps until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	log.Printf("[reaper] started (interval=%s, waiting_ttl=%s)", r.config.Interval, r.config.WaitingTTL)

	for {
		select {
		case <-ctx.Done():
			log.Println("[reaper] stopped")
			return
		case <-ticker.C:
			if removed := r.Sweep(ctx); removed > 0 {
				log.Printf("[reaper] removed %d stale waiting records", removed)
			}
		}
	}
}

// Sweep removes all waiting records older than the waiting TTL and
// returns how many were removed.
func (r *Reaper) Sweep(ctx context.Context) int {
	cutoff := time.Now().Add(-r.config.WaitingTTL)
	removed := 0

	for _, c := range []cohort.Cohort{cohort.KR, cohort.JP} {
		stale, err := r.queue.Stale(ctx, c, cutoff)
		if err != nil {
			log.Printf("[reaper] stale scan %s: %v", c, err)
			continue
		}

		for _, entry := range stale {
			ok, err := r.queue.Remove(ctx, entry.UserID)
			if err != nil {
				log.Printf("[reaper] remove %s: %v", entry.UserID, err)
				continue
			}
			if !ok {
				continue // matched or cancelled between scan and remove
			}

			removed++
			metrics.ExpiredTotal.Inc()
			r.notifyExpired(entry)
		}

		if depth, err := r.queue.Depth(ctx, c); err == nil {
			metrics.QueueDepth.WithLabelValues(c.String()).Set(float64(depth))
		}
	}

	return removed
}

func (r *Reaper) notifyExpired(entry queue.Entry) {
	if r.pub == nil {
		return
	}

	data, err := json.Marshal(ExpiredEvent{
		UserID:    entry.UserID,
		JoinedAt:  entry.JoinedAt,
		ExpiredAt: time.Now().Unix(),
	})
	if err != nil {
		log.Printf("[reaper] marshal expired event for %s: %v", entry.UserID, err)
		return
	}
	if err := r.pub.PublishMatchExpired(entry.UserID, data); err != nil {
		log.Printf("[reaper] publish expired for %s: %v", entry.UserID, err)
	}
}
