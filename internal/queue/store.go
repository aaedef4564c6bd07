// Package queue implements the Redis-backed cohort waiting queue. Each
// cohort has a sorted set of waiting user IDs (score = enqueue time in
// milliseconds) plus a per-user hash describing the waiting record:
//
//	Key: match:queue:<cohort>   Sorted set, score = joined_at (ms)
//	Key: match:waiting:<uid>    Hash {user_id, cohort, joined_at}
//
// The claim of the oldest waiter is a single Lua script, so two
// concurrent matchers can never pop the same record.
package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/koibridge/match-app/internal/cohort"
)

const (
	keyQueuePrefix   = "match:queue:"   // + <cohort> -> sorted set of user IDs
	keyWaitingPrefix = "match:waiting:" // + <user_id> -> hash

	// recordTTL is a safety net on the per-user hash so abandoned records
	// cannot outlive a dead reaper. The reaper enforces the real waiting
	// deadline well before this expires.
	recordTTL = 15 * time.Minute
)

// Entry is one waiting record in the queue.
type Entry struct {
	UserID   string
	Cohort   cohort.Cohort
	JoinedAt int64 // unix milliseconds
}

// Store manages the waiting-queue data structures in Redis.
type Store struct {
	rdb           *redis.Client
	enqueueScript *redis.Script
	claimScript   *redis.Script
	removeScript  *redis.Script
}

// NewStore creates a waiting-queue store backed by Redis.
func NewStore(rdb *redis.Client) *Store {
	return &Store{
		rdb:           rdb,
		enqueueScript: redis.NewScript(enqueueLua),
		claimScript:   redis.NewScript(claimOldestLua),
		removeScript:  redis.NewScript(removeLua),
	}
}

// enqueueLua inserts a waiting record unless one already exists for the
// user. An existing record keeps its original score, so repeated match
// polls never push a user to the back of the line. Returns the joined_at
// score actually in effect.
const enqueueLua = `
local queue_key = KEYS[1]
local waiting_key = KEYS[2]
local user_id = ARGV[1]
local country = ARGV[2]
local now_ms = ARGV[3]
local ttl = ARGV[4]

local existing = redis.call('ZSCORE', queue_key, user_id)
if existing then
    redis.call('EXPIRE', waiting_key, ttl)
    return existing
end

redis.call('ZADD', queue_key, now_ms, user_id)
redis.call('HSET', waiting_key, 'user_id', user_id, 'cohort', country, 'joined_at', now_ms)
redis.call('EXPIRE', waiting_key, ttl)
return now_ms
`

// claimOldestLua pops the oldest member of a cohort queue and deletes its
// waiting hash in one atomic step. Returns {user_id, joined_at} or false
// when the queue is empty.
const claimOldestLua = `
local queue_key = KEYS[1]
local waiting_prefix = ARGV[1]

local oldest = redis.call('ZRANGE', queue_key, 0, 0, 'WITHSCORES')
if #oldest == 0 then
    return false
end

local user_id = oldest[1]
local joined_at = oldest[2]

redis.call('ZREM', queue_key, user_id)
redis.call('DEL', waiting_prefix .. user_id)

return {user_id, joined_at}
`

// removeLua deletes a user's waiting record from both structures. It does
// not trust the waiting hash to still exist: the hash carries a TTL and can
// expire while the queue member survives, so the member is removed from
// both cohort queues directly. Returns 1 if a queue entry was removed,
// 0 if the user was not queued.
const removeLua = `
local waiting_key = KEYS[1]
local kr_queue = KEYS[2]
local jp_queue = KEYS[3]
local user_id = ARGV[1]

redis.call('DEL', waiting_key)
return redis.call('ZREM', kr_queue, user_id) + redis.call('ZREM', jp_queue, user_id)
`

func queueKey(c cohort.Cohort) string {
	return keyQueuePrefix + c.String()
}

func waitingKey(userID string) string {
	return keyWaitingPrefix + userID
}

// Enqueue adds a waiting record for the user, or keeps the existing one
// (same position) if the user is already queued. It returns the user's
// 1-based position within the cohort queue.
func (s *Store) Enqueue(ctx context.Context, userID string, c cohort.Cohort) (int64, error) {
	return s.enqueueAt(ctx, userID, c, time.Now().UnixMilli())
}

// Restore re-inserts a previously claimed entry with its original join
// time, so a failed match attempt does not cost the waiter their place.
func (s *Store) Restore(ctx context.Context, e *Entry) error {
	_, err := s.enqueueAt(ctx, e.UserID, e.Cohort, e.JoinedAt)
	return err
}

func (s *Store) enqueueAt(ctx context.Context, userID string, c cohort.Cohort, joinedAtMs int64) (int64, error) {
	ttl := int(recordTTL.Seconds())
	keys := []string{queueKey(c), waitingKey(userID)}
	args := []interface{}{userID, c.String(), joinedAtMs, ttl}

	if err := s.enqueueScript.Run(ctx, s.rdb, keys, args...).Err(); err != nil {
		return 0, fmt.Errorf("queue: enqueue %s: %w", userID, err)
	}

	rank, err := s.rdb.ZRank(ctx, queueKey(c), userID).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: rank %s: %w", userID, err)
	}
	return rank + 1, nil
}

// ClaimOldest atomically removes and returns the oldest waiting record in
// the given cohort. Returns nil when the queue is empty.
func (s *Store) ClaimOldest(ctx context.Context, c cohort.Cohort) (*Entry, error) {
	res, err := s.claimScript.Run(ctx, s.rdb, []string{queueKey(c)}, keyWaitingPrefix).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: claim oldest %s: %w", c, err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return nil, fmt.Errorf("queue: claim oldest %s: unexpected reply %v", c, res)
	}

	userID, _ := vals[0].(string)
	joinedAt, err := toInt64(vals[1])
	if err != nil {
		return nil, fmt.Errorf("queue: claim oldest %s: bad score: %w", c, err)
	}

	return &Entry{UserID: userID, Cohort: c, JoinedAt: joinedAt}, nil
}

// Remove deletes the user's waiting record. Removing an absent record is
// a no-op, so cancellation is idempotent. Reports whether a queue entry
// was actually removed; an entry whose waiting hash already expired is
// still removable.
func (s *Store) Remove(ctx context.Context, userID string) (bool, error) {
	keys := []string{waitingKey(userID), queueKey(cohort.KR), queueKey(cohort.JP)}
	res, err := s.removeScript.Run(ctx, s.rdb, keys, userID).Int()
	if err != nil {
		return false, fmt.Errorf("queue: remove %s: %w", userID, err)
	}
	return res > 0, nil
}

// Depth returns the number of waiting users in the cohort.
func (s *Store) Depth(ctx context.Context, c cohort.Cohort) (int64, error) {
	n, err := s.rdb.ZCard(ctx, queueKey(c)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: depth %s: %w", c, err)
	}
	return n, nil
}

// Position returns the user's 1-based position in their cohort queue, or
// 0 if the user is not queued.
func (s *Store) Position(ctx context.Context, userID string) (int64, error) {
	entry, err := s.Entry(ctx, userID)
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return 0, nil
	}

	rank, err := s.rdb.ZRank(ctx, queueKey(entry.Cohort), userID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("queue: position %s: %w", userID, err)
	}
	return rank + 1, nil
}

// Entry retrieves a user's waiting record. Returns nil if not queued.
func (s *Store) Entry(ctx context.Context, userID string) (*Entry, error) {
	result, err := s.rdb.HGetAll(ctx, waitingKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: get entry %s: %w", userID, err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	joinedAt, _ := strconv.ParseInt(result["joined_at"], 10, 64)
	return &Entry{
		UserID:   userID,
		Cohort:   cohort.Cohort(result["cohort"]),
		JoinedAt: joinedAt,
	}, nil
}

// Stale returns the waiting records in the cohort that joined before the
// given cutoff, oldest first. Used by the reaper to expire abandoned
// records whose clients stopped polling without cancelling.
func (s *Store) Stale(ctx context.Context, c cohort.Cohort, cutoff time.Time) ([]Entry, error) {
	maxScore := strconv.FormatInt(cutoff.UnixMilli(), 10)
	members, err := s.rdb.ZRangeByScoreWithScores(ctx, queueKey(c), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + maxScore,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: stale scan %s: %w", c, err)
	}

	entries := make([]Entry, 0, len(members))
	for _, m := range members {
		uid, _ := m.Member.(string)
		entries = append(entries, Entry{
			UserID:   uid,
			Cohort:   c,
			JoinedAt: int64(m.Score),
		})
	}
	return entries, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
