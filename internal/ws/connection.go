// Package ws implements the client side of the push channel: one persistent
// STOMP-over-WebSocket connection per session, re-established on a fixed
// delay, plus the inbound dispatcher and outbound publisher built on it.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/peerchat/chat-client/internal/chat"
	"github.com/peerchat/chat-client/internal/metrics"
	"github.com/peerchat/chat-client/internal/protocol"
	"github.com/peerchat/chat-client/internal/stomp"
)

// Config holds transport tuning parameters.
type Config struct {
	URL               string        // ws://host:port/ws/websocket
	Host              string        // STOMP host header; defaults to the URL host
	ReconnectDelay    time.Duration // fixed wait between attempts (default: 5s)
	DialTimeout       time.Duration // dial and CONNECTED wait (default: 10s)
	HeartbeatOutgoing time.Duration // heart-beat offer, client -> broker
	HeartbeatIncoming time.Duration // heart-beat offer, broker -> client
}

// DefaultConfig returns sensible defaults for a local backend.
func DefaultConfig() Config {
	return Config{
		URL:               "ws://localhost:8080/ws/websocket",
		ReconnectDelay:    5 * time.Second,
		DialTimeout:       10 * time.Second,
		HeartbeatOutgoing: 10 * time.Second,
		HeartbeatIncoming: 10 * time.Second,
	}
}

// MessageHandler receives MESSAGE frames for one subscription. Handlers run on
// the read loop goroutine in wire order and must not block for long.
type MessageHandler func(f *stomp.Frame)

type subscription struct {
	destination string
	handler     MessageHandler
}

type state int

const (
	stateIdle state = iota
	stateConnecting
	stateConnected
)

// Connection owns one logical push connection. Open starts a background loop
// that dials, authenticates and reads until Close; drops are retried forever
// on a fixed delay. The zero value is not usable; call New.
type Connection struct {
	cfg    Config
	logger zerolog.Logger

	life sync.Mutex // serializes Open and Close

	mu     sync.Mutex
	state  state
	userID string
	conn   net.Conn // nil unless stateConnected
	subs   map[string]subscription
	hooks  []func(*Connection)
	cancel context.CancelFunc
	done   chan struct{}

	writeMu sync.Mutex // serializes frames on conn
}

// New creates an idle Connection.
func New(cfg Config) *Connection {
	def := DefaultConfig()
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	return &Connection{
		cfg:    cfg,
		logger: log.With().Str("component", "transport").Logger(),
		subs:   make(map[string]subscription),
	}
}

// OnConnected registers fn to run after every successful CONNECTED, before
// any frame of that connection is read. Subscriptions made from fn are
// therefore in place before the first MESSAGE can arrive.
func (c *Connection) OnConnected(fn func(*Connection)) {
	c.mu.Lock()
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

// Open starts connecting for userID with a bearer token and returns
// immediately. It is a no-op while a connection is established or being
// established.
func (c *Connection) Open(userID, token string) {
	c.life.Lock()
	defer c.life.Unlock()

	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		c.logger.Debug().Str("user_id", userID).Msg("open ignored, already active")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.state = stateConnecting
	c.userID = userID
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.run(ctx, done, token)
}

// Close stops the connection loop, sends DISCONNECT when connected and waits
// for the loop to exit. Subscriptions are released. Safe to call when already
// closed.
func (c *Connection) Close() {
	c.life.Lock()
	defer c.life.Unlock()

	c.mu.Lock()
	if c.state == stateIdle {
		c.mu.Unlock()
		return
	}
	conn, cancel, done := c.conn, c.cancel, c.done
	c.mu.Unlock()

	if conn != nil {
		if err := c.write(conn, stomp.New(stomp.CommandDisconnect, stomp.HeaderReceipt, "disconnect-"+uuid.NewString())); err != nil {
			c.logger.Debug().Err(err).Msg("disconnect frame not sent")
		}
	}
	cancel()
	<-done

	c.mu.Lock()
	c.state = stateIdle
	c.cancel = nil
	c.done = nil
	c.subs = make(map[string]subscription)
	c.mu.Unlock()
	c.logger.Info().Msg("transport closed")
}

// Connected reports whether a STOMP session is currently established.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected
}

// UserID returns the user the connection was opened for.
func (c *Connection) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Subscribe subscribes to destination on the current connection and returns
// the subscription id. Subscriptions do not survive a reconnect; register an
// OnConnected hook to re-establish them.
func (c *Connection) Subscribe(destination string, handler MessageHandler) (string, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return "", fmt.Errorf("ws: subscribe %s: %w", destination, chat.ErrNotConnected)
	}
	id := "sub-" + uuid.NewString()
	c.subs[id] = subscription{destination: destination, handler: handler}
	c.mu.Unlock()

	f := stomp.New(stomp.CommandSubscribe,
		stomp.HeaderID, id,
		stomp.HeaderDestination, destination,
		stomp.HeaderAck, "auto",
	)
	if err := c.write(conn, f); err != nil {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		return "", fmt.Errorf("ws: subscribe %s: %w", destination, err)
	}
	c.logger.Info().Str("destination", destination).Str("subscription", id).Msg("subscribed")
	return id, nil
}

// Unsubscribe cancels a subscription made on the current connection.
func (c *Connection) Unsubscribe(id string) error {
	c.mu.Lock()
	_, ok := c.subs[id]
	delete(c.subs, id)
	conn := c.conn
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("ws: no subscription %s", id)
	}
	if conn == nil {
		return nil
	}
	return c.write(conn, stomp.New(stomp.CommandUnsubscribe, stomp.HeaderID, id))
}

// Publish sends a JSON body to destination. It fails with chat.ErrNotConnected
// when no session is established; nothing is queued.
func (c *Connection) Publish(destination string, body []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return chat.ErrNotConnected
	}

	f := stomp.New(stomp.CommandSend,
		stomp.HeaderDestination, destination,
		stomp.HeaderContentType, protocol.ContentTypeJSON,
	)
	f.Body = body
	if err := c.write(conn, f); err != nil {
		return fmt.Errorf("ws: publish %s: %w: %w", destination, chat.ErrNotConnected, err)
	}
	return nil
}

// write sends one frame under the write mutex.
func (c *Connection) write(conn net.Conn, f *stomp.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsutil.WriteClientText(conn, f.Encode()); err != nil {
		return err
	}
	metrics.FramesTotal.WithLabelValues("out").Inc()
	return nil
}

// run keeps a session alive until ctx is cancelled.
func (c *Connection) run(ctx context.Context, done chan struct{}, token string) {
	defer close(done)

	policy := backoff.WithContext(backoff.NewConstantBackOff(c.cfg.ReconnectDelay), ctx)
	for {
		err := c.session(ctx, token)
		if ctx.Err() != nil {
			return
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return
		}
		c.logger.Warn().Err(err).Dur("retry_in", wait).Msg("transport dropped")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		metrics.TransportReconnects.Inc()
	}
}

// session runs one connection from dial to drop. The returned error wraps
// chat.ErrTransportDropped once CONNECTED was received.
func (c *Connection) session(ctx context.Context, token string) error {
	dialer := ws.Dialer{Timeout: c.cfg.DialTimeout}
	conn, br, _, err := dialer.Dial(ctx, c.cfg.URL)
	if err != nil {
		return fmt.Errorf("ws: dial %s: %w", c.cfg.URL, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var src io.Reader = conn
	if br != nil {
		src = io.MultiReader(br, conn)
		defer ws.PutReader(br)
	}
	rd := newFrameReader(src, &lockedWriter{mu: &c.writeMu, w: conn})

	connect := stomp.New(stomp.CommandConnect,
		stomp.HeaderAcceptVersion, "1.2",
		stomp.HeaderHost, c.host(),
		stomp.HeaderHeartBeat, stomp.HeartBeat(c.cfg.HeartbeatOutgoing, c.cfg.HeartbeatIncoming),
		stomp.HeaderAuthorization, "Bearer "+token,
	)
	if err := c.write(conn, connect); err != nil {
		return fmt.Errorf("ws: send CONNECT: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.DialTimeout))
	reply, err := rd.next()
	if err != nil {
		return fmt.Errorf("ws: read CONNECTED: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	switch reply.Command {
	case stomp.CommandConnected:
	case stomp.CommandError:
		return fmt.Errorf("ws: broker refused connection: %s", reply.Get(stomp.HeaderMessage))
	default:
		return fmt.Errorf("ws: unexpected %s before CONNECTED", reply.Command)
	}

	serverOut, serverIn, err := stomp.ParseHeartBeat(reply.Get(stomp.HeaderHeartBeat))
	if err != nil {
		c.logger.Warn().Err(err).Msg("ignoring broker heart-beat")
	}
	send, expect := stomp.Negotiate(c.cfg.HeartbeatOutgoing, c.cfg.HeartbeatIncoming, serverOut, serverIn)

	hooks := c.attach(conn)
	defer c.detach()

	c.logger.Info().
		Str("url", c.cfg.URL).
		Str("version", reply.Get(stomp.HeaderVersion)).
		Dur("heartbeat_send", send).
		Dur("heartbeat_expect", expect).
		Msg("transport connected")

	if send > 0 {
		hbCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go c.heartbeat(hbCtx, conn, send)
	}

	for _, fn := range hooks {
		fn(c)
	}

	return c.readLoop(conn, rd, expect)
}

func (c *Connection) host() string {
	if c.cfg.Host != "" {
		return c.cfg.Host
	}
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// attach publishes conn as the current connection and returns the hooks to
// run for it.
func (c *Connection) attach(conn net.Conn) []func(*Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.state = stateConnected
	c.subs = make(map[string]subscription)
	metrics.TransportConnected.Set(1)

	hooks := make([]func(*Connection), len(c.hooks))
	copy(hooks, c.hooks)
	return hooks
}

func (c *Connection) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = nil
	c.subs = make(map[string]subscription)
	if c.state == stateConnected {
		c.state = stateConnecting
	}
	metrics.TransportConnected.Set(0)
}

// readLoop routes MESSAGE frames to their subscription handler until the
// connection fails.
func (c *Connection) readLoop(conn net.Conn, rd *frameReader, expect time.Duration) error {
	for {
		if expect > 0 {
			conn.SetReadDeadline(time.Now().Add(2 * expect))
		}
		f, err := rd.next()
		if err != nil {
			if errors.Is(err, stomp.ErrMalformed) {
				c.logger.Warn().Err(err).Msg("skipping malformed frame")
				continue
			}
			return fmt.Errorf("%w: %v", chat.ErrTransportDropped, err)
		}

		switch f.Command {
		case stomp.CommandMessage:
			id := f.Get(stomp.HeaderSubscription)
			c.mu.Lock()
			sub, ok := c.subs[id]
			c.mu.Unlock()
			if !ok {
				c.logger.Debug().Str("subscription", id).Msg("message for unknown subscription")
				continue
			}
			sub.handler(f)
		case stomp.CommandError:
			return fmt.Errorf("%w: broker error: %s", chat.ErrTransportDropped, f.Get(stomp.HeaderMessage))
		case stomp.CommandReceipt:
			c.logger.Debug().Str("receipt", f.Get(stomp.HeaderReceiptID)).Msg("receipt")
		default:
			c.logger.Debug().Str("command", f.Command).Msg("ignoring frame")
		}
	}
}
