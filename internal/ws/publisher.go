package ws

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/peerchat/chat-client/internal/chat"
	"github.com/peerchat/chat-client/internal/metrics"
	"github.com/peerchat/chat-client/internal/protocol"
)

// Sink is the part of Connection the publisher needs.
type Sink interface {
	Publish(destination string, body []byte) error
}

// Publisher serializes outbound chat messages onto the fixed send
// destination.
type Publisher struct {
	sink   Sink
	logger zerolog.Logger
}

// NewPublisher creates a Publisher writing to sink.
func NewPublisher(sink Sink) *Publisher {
	return &Publisher{
		sink:   sink,
		logger: log.With().Str("component", "publisher").Logger(),
	}
}

// Send validates and publishes one message. Invalid input fails with
// chat.ErrInvalidPayload before touching the network; a down transport fails
// with chat.ErrNotConnected. Nothing is queued or retried.
func (p *Publisher) Send(senderID, receiverID, content string) error {
	payload, err := protocol.NewSendPayload(senderID, receiverID, content)
	if err != nil {
		metrics.SendFailures.WithLabelValues("invalid_payload").Inc()
		return err
	}
	body, err := payload.Encode()
	if err != nil {
		return err
	}

	if err := p.sink.Publish(protocol.DestinationChatSend, body); err != nil {
		if errors.Is(err, chat.ErrNotConnected) {
			metrics.SendFailures.WithLabelValues("not_connected").Inc()
			p.logger.Warn().Str("receiver_id", receiverID).Msg("send while transport not connected")
		}
		return fmt.Errorf("ws: send to %s: %w", receiverID, err)
	}
	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	return nil
}
