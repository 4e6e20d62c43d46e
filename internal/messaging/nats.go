// Package messaging publishes session events over NATS so read-only views
// running in other processes can follow a chat session.
package messaging

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/peerchat/chat-client/internal/session"
)

// SubjectEvents is the subject prefix for session events: + .<user_id>
const SubjectEvents = "chatclient.events"

// EventSubject returns the subject events for userID are published on.
func EventSubject(userID string) string {
	return SubjectEvents + "." + userID
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
		Name:          "chatclient",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// EventBus is a session.Notifier backed by NATS.
type EventBus struct {
	conn   *nats.Conn
	logger zerolog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewEventBus connects to NATS. It returns an error if the initial
// connection fails.
func NewEventBus(config NATSConfig) (*EventBus, error) {
	logger := log.With().Str("component", "nats").Logger()

	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Debug().Msg("connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	logger.Info().Str("url", nc.ConnectedUrl()).Msg("connected")

	return &EventBus{conn: nc, logger: logger}, nil
}

// PublishEvent publishes ev on the subject of its user.
func (b *EventBus) PublishEvent(ev session.Event) error {
	if ev.UserID == "" {
		return fmt.Errorf("nats publish: event %s has no user", ev.Type)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("nats publish: marshal %s: %w", ev.Type, err)
	}
	return b.conn.Publish(EventSubject(ev.UserID), data)
}

// Notify implements session.Notifier. Failures are logged; nats buffers
// publishes while reconnecting so this never blocks the caller.
func (b *EventBus) Notify(ev session.Event) {
	if err := b.PublishEvent(ev); err != nil {
		b.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("event not published")
	}
}

// SubscribeEvents delivers events published for userID. Undecodable
// messages are skipped.
func (b *EventBus) SubscribeEvents(userID string, handler func(session.Event)) (*nats.Subscription, error) {
	subject := EventSubject(userID)
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var ev session.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("bad event")
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub, nil
}

// Flush waits until the server has processed everything published so far.
func (b *EventBus) Flush(timeout time.Duration) error {
	return b.conn.FlushTimeout(timeout)
}

// Close drains all subscriptions and closes the connection.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if err := sub.Drain(); err != nil {
			b.logger.Debug().Err(err).Str("subject", sub.Subject).Msg("drain failed")
		}
	}
	b.subs = nil

	if err := b.conn.Drain(); err != nil {
		b.logger.Warn().Err(err).Msg("connection drain")
	}
	b.logger.Info().Msg("event bus closed")
}
