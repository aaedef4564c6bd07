package messaging

import (
	"testing"
	"time"
)

// setupTestClient connects to a local NATS server. Tests are skipped when
// no server is running.
func setupTestClient(t *testing.T) *NATSClient {
	t.Helper()

	config := DefaultNATSConfig()
	config.Name = "koibridge-test"

	client, err := NewNATSClient(config)
	if err != nil {
		t.Skipf("skipping: NATS not available: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func waitFor(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()

	select {
	case data := <-ch:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestMatchFound_RoundTrip(t *testing.T) {
	client := setupTestClient(t)

	received := make(chan []byte, 1)
	if err := client.SubscribeMatchFound("u1", func(data []byte) {
		received <- data
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	payload := []byte(`{"session_id":"s1","partner_id":"u2"}`)
	if err := client.PublishMatchFound("u1", payload); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if got := waitFor(t, received); string(got) != string(payload) {
		t.Errorf("payload mismatch: %s", got)
	}
}

// TestMatchFound_PerUserSubjects verifies that users only receive their
// own match.found events.
func TestMatchFound_PerUserSubjects(t *testing.T) {
	client := setupTestClient(t)

	received := make(chan []byte, 2)
	if err := client.SubscribeMatchFound("mine", func(data []byte) {
		received <- data
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := client.PublishMatchFound("someone-else", []byte(`other`)); err != nil {
		t.Fatalf("publish other: %v", err)
	}
	if err := client.PublishMatchFound("mine", []byte(`mine`)); err != nil {
		t.Fatalf("publish mine: %v", err)
	}

	// Messages on one connection are ordered: receiving "mine" proves the
	// other user's event was never delivered here.
	if got := waitFor(t, received); string(got) != "mine" {
		t.Errorf("received another user's event: %s", got)
	}
}

func TestMatchExpired_RoundTrip(t *testing.T) {
	client := setupTestClient(t)

	received := make(chan []byte, 1)
	if err := client.SubscribeMatchExpired("u9", func(data []byte) {
		received <- data
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	payload := []byte(`{"user_id":"u9"}`)
	if err := client.PublishMatchExpired("u9", payload); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if got := waitFor(t, received); string(got) != string(payload) {
		t.Errorf("payload mismatch: %s", got)
	}
}

func TestUnsubscribeMatchFound(t *testing.T) {
	client := setupTestClient(t)

	if err := client.UnsubscribeMatchFound("nobody"); err == nil {
		t.Error("expected error unsubscribing without a subscription")
	}

	if err := client.SubscribeMatchFound("u5", func([]byte) {}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := client.UnsubscribeMatchFound("u5"); err != nil {
		t.Errorf("unsubscribe: %v", err)
	}
	if err := client.UnsubscribeMatchFound("u5"); err == nil {
		t.Error("expected error on repeated unsubscribe")
	}
}
