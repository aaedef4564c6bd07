package chatsession

import (
	"strings"
	"testing"
	"time"
)

func TestNewSessionID_ContainsParticipants(t *testing.T) {
	now := time.Now()
	id := NewSessionID("kim", "yuki", now)

	if !strings.HasPrefix(id, "kim_yuki_") {
		t.Errorf("expected participant prefix, got %s", id)
	}
}

func TestNewSessionID_UniqueAtSameInstant(t *testing.T) {
	now := time.Now()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewSessionID("kim", "yuki", now)
		if seen[id] {
			t.Fatalf("duplicate session ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestSession_PartnerAndParticipant(t *testing.T) {
	s := &Session{UserA: "kim", UserB: "yuki"}

	if p := s.Partner("kim"); p != "yuki" {
		t.Errorf("expected partner yuki, got %q", p)
	}
	if p := s.Partner("yuki"); p != "kim" {
		t.Errorf("expected partner kim, got %q", p)
	}
	if p := s.Partner("stranger"); p != "" {
		t.Errorf("expected empty partner for non-participant, got %q", p)
	}

	if !s.IsParticipant("kim") || !s.IsParticipant("yuki") {
		t.Error("participants not recognized")
	}
	if s.IsParticipant("stranger") {
		t.Error("non-participant recognized as participant")
	}
}
