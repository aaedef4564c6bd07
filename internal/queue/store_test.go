package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/koibridge/match-app/internal/cohort"
)

// setupTestStore creates a Store connected to a test Redis instance.
// Requires Redis running on localhost:6379. Tests are skipped if unavailable.
func setupTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid conflicts
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: Redis not available: %v", err)
	}

	rdb.FlushDB(ctx)

	t.Cleanup(func() {
		rdb.FlushDB(ctx)
		rdb.Close()
	})

	return NewStore(rdb), ctx
}

func enqueueTestUser(t *testing.T, s *Store, ctx context.Context, userID string, c cohort.Cohort) int64 {
	t.Helper()
	pos, err := s.Enqueue(ctx, userID, c)
	if err != nil {
		t.Fatalf("failed to enqueue %s: %v", userID, err)
	}
	return pos
}

func TestEnqueue_AssignsPositionsInOrder(t *testing.T) {
	s, ctx := setupTestStore(t)

	if pos := enqueueTestUser(t, s, ctx, "kim", cohort.KR); pos != 1 {
		t.Errorf("expected position 1, got %d", pos)
	}
	if pos := enqueueTestUser(t, s, ctx, "lee", cohort.KR); pos != 2 {
		t.Errorf("expected position 2, got %d", pos)
	}
	if pos := enqueueTestUser(t, s, ctx, "park", cohort.KR); pos != 3 {
		t.Errorf("expected position 3, got %d", pos)
	}

	// A different cohort has its own queue.
	if pos := enqueueTestUser(t, s, ctx, "yuki", cohort.JP); pos != 1 {
		t.Errorf("expected position 1 in JP queue, got %d", pos)
	}
}

func TestEnqueue_IsIdempotent(t *testing.T) {
	s, ctx := setupTestStore(t)

	enqueueTestUser(t, s, ctx, "kim", cohort.KR)
	first := enqueueTestUser(t, s, ctx, "lee", cohort.KR)

	// Re-enqueueing must not duplicate the record or move the user back.
	second := enqueueTestUser(t, s, ctx, "lee", cohort.KR)
	if first != second {
		t.Errorf("position changed on re-enqueue: %d -> %d", first, second)
	}

	depth, err := s.Depth(ctx, cohort.KR)
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth != 2 {
		t.Errorf("expected depth 2, got %d", depth)
	}
}

func TestClaimOldest_FIFOOrder(t *testing.T) {
	s, ctx := setupTestStore(t)

	enqueueTestUser(t, s, ctx, "first", cohort.KR)
	time.Sleep(2 * time.Millisecond)
	enqueueTestUser(t, s, ctx, "second", cohort.KR)
	time.Sleep(2 * time.Millisecond)
	enqueueTestUser(t, s, ctx, "third", cohort.KR)

	for _, want := range []string{"first", "second", "third"} {
		entry, err := s.ClaimOldest(ctx, cohort.KR)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if entry == nil {
			t.Fatalf("expected entry %q, got nil", want)
		}
		if entry.UserID != want {
			t.Errorf("expected %q, got %q", want, entry.UserID)
		}
		if entry.Cohort != cohort.KR {
			t.Errorf("expected cohort KR, got %s", entry.Cohort)
		}
	}
}

func TestClaimOldest_EmptyQueue(t *testing.T) {
	s, ctx := setupTestStore(t)

	entry, err := s.ClaimOldest(ctx, cohort.JP)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry != nil {
		t.Errorf("expected nil on empty queue, got %+v", entry)
	}
}

func TestClaimOldest_RemovesWaitingRecord(t *testing.T) {
	s, ctx := setupTestStore(t)

	enqueueTestUser(t, s, ctx, "kim", cohort.KR)

	if _, err := s.ClaimOldest(ctx, cohort.KR); err != nil {
		t.Fatalf("claim: %v", err)
	}

	entry, err := s.Entry(ctx, "kim")
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if entry != nil {
		t.Errorf("waiting record should be gone after claim, got %+v", entry)
	}

	depth, _ := s.Depth(ctx, cohort.KR)
	if depth != 0 {
		t.Errorf("expected empty queue after claim, depth=%d", depth)
	}
}

// TestClaimOldest_NoDoubleClaim verifies the atomic-claim guarantee: with
// N waiters and many concurrent claimers, every waiter is claimed exactly
// once.
func TestClaimOldest_NoDoubleClaim(t *testing.T) {
	s, ctx := setupTestStore(t)

	const waiters = 20
	for i := 0; i < waiters; i++ {
		enqueueTestUser(t, s, ctx, fmt.Sprintf("user-%02d", i), cohort.KR)
	}

	var mu sync.Mutex
	claimed := make(map[string]int)

	var wg sync.WaitGroup
	for i := 0; i < waiters*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := s.ClaimOldest(ctx, cohort.KR)
			if err != nil || entry == nil {
				return
			}
			mu.Lock()
			claimed[entry.UserID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(claimed) != waiters {
		t.Errorf("expected %d distinct claims, got %d", waiters, len(claimed))
	}
	for uid, n := range claimed {
		if n != 1 {
			t.Errorf("user %s claimed %d times", uid, n)
		}
	}

	depth, _ := s.Depth(ctx, cohort.KR)
	if depth != 0 {
		t.Errorf("expected empty queue, depth=%d", depth)
	}
}

func TestRemove_IsIdempotent(t *testing.T) {
	s, ctx := setupTestStore(t)

	enqueueTestUser(t, s, ctx, "kim", cohort.KR)

	removed, err := s.Remove(ctx, "kim")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Error("expected first remove to report removal")
	}

	removed, err = s.Remove(ctx, "kim")
	if err != nil {
		t.Fatalf("second remove should not error: %v", err)
	}
	if removed {
		t.Error("second remove should be a no-op")
	}

	depth, _ := s.Depth(ctx, cohort.KR)
	if depth != 0 {
		t.Errorf("expected empty queue after remove, depth=%d", depth)
	}
}

// TestRemove_QueueEntryWithExpiredHash covers the hash-TTL safety net:
// when the per-user hash expires while its queue member survives, the
// member must still be removable or it would inflate depths forever and
// stay claimable.
func TestRemove_QueueEntryWithExpiredHash(t *testing.T) {
	s, ctx := setupTestStore(t)

	enqueueTestUser(t, s, ctx, "ghost", cohort.KR)

	// Simulate the hash TTL firing.
	if err := s.rdb.Del(ctx, waitingKey("ghost")).Err(); err != nil {
		t.Fatalf("del hash: %v", err)
	}

	removed, err := s.Remove(ctx, "ghost")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Error("expected the orphaned queue entry to be removed")
	}

	depth, _ := s.Depth(ctx, cohort.KR)
	if depth != 0 {
		t.Errorf("expected empty queue after removal, depth=%d", depth)
	}
}

func TestPosition_ReflectsQueueState(t *testing.T) {
	s, ctx := setupTestStore(t)

	enqueueTestUser(t, s, ctx, "kim", cohort.KR)
	time.Sleep(2 * time.Millisecond)
	enqueueTestUser(t, s, ctx, "lee", cohort.KR)

	pos, err := s.Position(ctx, "lee")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos != 2 {
		t.Errorf("expected position 2, got %d", pos)
	}

	// kim matched away: lee moves up.
	if _, err := s.ClaimOldest(ctx, cohort.KR); err != nil {
		t.Fatalf("claim: %v", err)
	}
	pos, _ = s.Position(ctx, "lee")
	if pos != 1 {
		t.Errorf("expected position 1 after head claimed, got %d", pos)
	}

	// Unknown users have no position.
	pos, err = s.Position(ctx, "ghost")
	if err != nil {
		t.Fatalf("position for unknown user: %v", err)
	}
	if pos != 0 {
		t.Errorf("expected 0 for unknown user, got %d", pos)
	}
}

func TestRestore_KeepsOriginalJoinTime(t *testing.T) {
	s, ctx := setupTestStore(t)

	enqueueTestUser(t, s, ctx, "old", cohort.KR)
	claimed, err := s.ClaimOldest(ctx, cohort.KR)
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	enqueueTestUser(t, s, ctx, "new", cohort.KR)

	// Restoring the claimed waiter must put them back at the front.
	if err := s.Restore(ctx, claimed); err != nil {
		t.Fatalf("restore: %v", err)
	}

	entry, err := s.ClaimOldest(ctx, cohort.KR)
	if err != nil || entry == nil {
		t.Fatalf("claim after restore: %v", err)
	}
	if entry.UserID != "old" {
		t.Errorf("expected restored waiter at front, got %q", entry.UserID)
	}
	if entry.JoinedAt != claimed.JoinedAt {
		t.Errorf("join time changed on restore: %d -> %d", claimed.JoinedAt, entry.JoinedAt)
	}
}

func TestStale_ReturnsOnlyOldEntries(t *testing.T) {
	s, ctx := setupTestStore(t)

	enqueueTestUser(t, s, ctx, "old", cohort.JP)
	time.Sleep(5 * time.Millisecond)
	cutoff := time.Now()
	time.Sleep(5 * time.Millisecond)
	enqueueTestUser(t, s, ctx, "fresh", cohort.JP)

	stale, err := s.Stale(ctx, cohort.JP, cutoff)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("expected 1 stale entry, got %d", len(stale))
	}
	if stale[0].UserID != "old" {
		t.Errorf("expected stale entry 'old', got %q", stale[0].UserID)
	}
}
