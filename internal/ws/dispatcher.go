package ws

import (
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/peerchat/chat-client/internal/chat"
	"github.com/peerchat/chat-client/internal/metrics"
	"github.com/peerchat/chat-client/internal/protocol"
	"github.com/peerchat/chat-client/internal/stomp"
)

// InboundHandler receives each decoded push message in wire order.
type InboundHandler func(msg chat.Message)

// Dispatcher subscribes to the session user's private topic on every
// connection and forwards decoded messages to the current handler. The
// handler is looked up per frame, so it can be swapped without touching the
// subscription.
type Dispatcher struct {
	handler atomic.Pointer[InboundHandler]
	logger  zerolog.Logger
}

// NewDispatcher binds a Dispatcher to conn. Each time conn connects it
// subscribes exactly once to the topic of conn.UserID().
func NewDispatcher(conn *Connection) *Dispatcher {
	d := &Dispatcher{
		logger: log.With().Str("component", "dispatcher").Logger(),
	}
	conn.OnConnected(d.bind)
	return d
}

// SetHandler installs the handler used for subsequent frames. A nil handler
// drops frames.
func (d *Dispatcher) SetHandler(h InboundHandler) {
	if h == nil {
		d.handler.Store(nil)
		return
	}
	d.handler.Store(&h)
}

func (d *Dispatcher) bind(conn *Connection) {
	topic := protocol.UserTopic(conn.UserID())
	if _, err := conn.Subscribe(topic, d.Dispatch); err != nil {
		d.logger.Warn().Err(err).Str("destination", topic).Msg("subscribe failed")
	}
}

// Dispatch decodes one MESSAGE frame and hands it to the current handler.
func (d *Dispatcher) Dispatch(f *stomp.Frame) {
	msg, err := protocol.DecodeChatMessage(f.Body)
	if err != nil {
		metrics.InboundDropped.WithLabelValues("decode").Inc()
		d.logger.Warn().Err(err).Str("message_id", f.Get(stomp.HeaderMessageID)).Msg("dropping undecodable frame")
		return
	}

	h := d.handler.Load()
	if h == nil {
		metrics.InboundDropped.WithLabelValues("no_handler").Inc()
		d.logger.Debug().Str("sender_id", msg.SenderID).Msg("no handler, dropping message")
		return
	}
	metrics.MessagesTotal.WithLabelValues("received").Inc()
	(*h)(msg)
}
