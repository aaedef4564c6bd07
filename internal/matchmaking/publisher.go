package matchmaking

import (
	"encoding/json"
	"fmt"
	"log"
)

// Publisher is the event sink for match lifecycle notifications. The NATS
// client satisfies it; a nil Publisher disables events (single-process
// deployments and tests).
type Publisher interface {
	PublishMatchFound(userID string, data []byte) error
	PublishMatchCancelled(userID string, data []byte) error
}

// MatchFoundEvent is published to both users' match.found subjects when a
// pair forms.
type MatchFoundEvent struct {
	SessionID string `json:"session_id"`
	PartnerID string `json:"partner_id"`
	Cohort    string `json:"cohort"`     // the receiver's cohort
	MatchedAt int64  `json:"matched_at"` // unix seconds
}

// CancelledEvent is published when a waiting record is removed by an
// explicit cancellation.
type CancelledEvent struct {
	UserID      string `json:"user_id"`
	CancelledAt int64  `json:"cancelled_at"` // unix seconds
}

// publishMatchFound notifies both sides of a new pair. Publish failures
// are logged, not returned: the match already exists and the clients will
// learn about it on their next poll anyway.
func publishMatchFound(pub Publisher, requester, partner MatchFoundEvent, requesterID, partnerID string) {
	if pub == nil {
		return
	}

	data, err := json.Marshal(requester)
	if err != nil {
		log.Printf("[matchmaking] marshal match.found for %s: %v", requesterID, err)
		return
	}
	if err := pub.PublishMatchFound(requesterID, data); err != nil {
		log.Printf("[matchmaking] publish match.found for %s: %v", requesterID, err)
	}

	data, err = json.Marshal(partner)
	if err != nil {
		log.Printf("[matchmaking] marshal match.found for %s: %v", partnerID, err)
		return
	}
	if err := pub.PublishMatchFound(partnerID, data); err != nil {
		log.Printf("[matchmaking] publish match.found for %s: %v", partnerID, err)
	}
}

func publishCancelled(pub Publisher, event CancelledEvent) error {
	if pub == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("matchmaking: marshal cancelled event: %w", err)
	}
	return pub.PublishMatchCancelled(event.UserID, data)
}
