// Package messaging provides a NATS client wrapper for match lifecycle
// events. The matchmaking core publishes here so that downstream
// collaborators (push notifications, the chat front end) can react without
// polling; subscriptions are per-user subjects.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns for match lifecycle events.
const (
	SubjectMatchFound     = "match.found"     // + .<user_id>
	SubjectMatchCancelled = "match.cancelled" // + .<user_id>
	SubjectMatchExpired   = "match.expired"   // + .<user_id>
)

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "koibridge",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// PublishMatchFound publishes a match result to a user's match.found subject.
func (c *NATSClient) PublishMatchFound(userID string, data []byte) error {
	return c.Publish(SubjectMatchFound+"."+userID, data)
}

// PublishMatchCancelled notifies that a user's waiting record was cancelled.
func (c *NATSClient) PublishMatchCancelled(userID string, data []byte) error {
	return c.Publish(SubjectMatchCancelled+"."+userID, data)
}

// PublishMatchExpired notifies that a user's waiting record was reaped
// after exceeding the waiting deadline.
func (c *NATSClient) PublishMatchExpired(userID string, data []byte) error {
	return c.Publish(SubjectMatchExpired+"."+userID, data)
}

// SubscribeMatchFound subscribes to the match.found.<userID> subject and
// passes the raw message data to the handler.
func (c *NATSClient) SubscribeMatchFound(userID string, handler func(data []byte)) error {
	return c.subscribe(SubjectMatchFound+"."+userID, handler)
}

// SubscribeMatchExpired subscribes to the match.expired.<userID> subject.
func (c *NATSClient) SubscribeMatchExpired(userID string, handler func(data []byte)) error {
	return c.subscribe(SubjectMatchExpired+"."+userID, handler)
}

// UnsubscribeMatchFound unsubscribes from the match.found.<userID> subject.
func (c *NATSClient) UnsubscribeMatchFound(userID string) error {
	return c.unsubscribe(SubjectMatchFound + "." + userID)
}

func (c *NATSClient) subscribe(subject string, handler func(data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
}

// unsubscribe removes and unsubscribes from a specific subject.
func (c *NATSClient) unsubscribe(subject string) error {
	c.mu.Lock()
	sub, ok := c.subs[subject]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for subject %s", subject)
	}
	delete(c.subs, subject)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", subject, err)
	}
	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
