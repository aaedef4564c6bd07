package chatsession

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewSessionID builds a session ID from both participant IDs, the creation
// time, and a random suffix. The participant/timestamp prefix keeps IDs
// debuggable; the uuid fragment makes them collision-free even when two
// matches complete in the same millisecond.
func NewSessionID(userA, userB string, now time.Time) string {
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("%s_%s_%d_%s", userA, userB, now.UnixMilli(), suffix)
}
