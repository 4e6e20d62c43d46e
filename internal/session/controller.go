package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/peerchat/chat-client/internal/api"
	"github.com/peerchat/chat-client/internal/auth"
	"github.com/peerchat/chat-client/internal/chat"
	"github.com/peerchat/chat-client/internal/metrics"
	"github.com/peerchat/chat-client/internal/ws"
)

// markReadTimeout bounds read receipts issued for pushed messages.
const markReadTimeout = 10 * time.Second

// Backend is the REST collaborator.
type Backend interface {
	Login(ctx context.Context, email, password string) (api.LoginResult, error)
	Register(ctx context.Context, name, email, password string) error
	SetToken(token string)
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
	ListUsers(ctx context.Context) ([]chat.Profile, error)
	GetUser(ctx context.Context, userID string) (chat.Profile, error)
	FetchHistory(ctx context.Context, myUserID, peerID string) ([]chat.Message, error)
	MarkRead(ctx context.Context, conversationID string) error
	Follow(ctx context.Context, userID string) error
	Unfollow(ctx context.Context, userID string) error
}

// Transport is the push connection lifecycle.
type Transport interface {
	Open(userID, token string)
	Close()
}

// Inbound delivers pushed messages to one handler.
type Inbound interface {
	SetHandler(h ws.InboundHandler)
}

// Outbound publishes chat messages.
type Outbound interface {
	Send(senderID, receiverID, content string) error
}

// Options wires a Controller. Credentials defaults to an in-memory store and
// Notifier to a no-op.
type Options struct {
	Backend          Backend
	Transport        Transport
	Inbound          Inbound
	Outbound         Outbound
	Credentials      CredentialStore
	Notifier         Notifier
	ProfileCacheSize int
}

// snapshot is the read side of the controller state. It is replaced as a
// whole on every transition so the transport read loop never takes a lock
// held across network calls.
type snapshot struct {
	state State
	gen   uint64
	creds Credentials
	bgCtx context.Context
}

// Controller is the session state machine. It is the only writer of the
// conversation store. Operations that talk to the backend block the calling
// goroutine; store writes that do not depend on the response happen before
// the request is sent.
type Controller struct {
	backend   Backend
	transport Transport
	inbound   Inbound
	outbound  Outbound
	creds     CredentialStore
	notifier  Notifier
	profiles  *ProfileCache
	store     *chat.Store
	logger    zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex // serializes transitions
	state    State
	gen      uint64
	starting bool
	session  Credentials
	bgCtx    context.Context
	bgCancel context.CancelFunc

	snap atomic.Pointer[snapshot]
	bg   sync.WaitGroup // background read receipts
}

// NewController creates a Controller in the Unauthenticated state.
func NewController(opts Options) (*Controller, error) {
	if opts.Backend == nil || opts.Transport == nil || opts.Inbound == nil || opts.Outbound == nil {
		return nil, errors.New("session: backend, transport, inbound and outbound are required")
	}
	if opts.Credentials == nil {
		opts.Credentials = NewMemoryCredentials()
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.ProfileCacheSize <= 0 {
		opts.ProfileCacheSize = 256
	}

	c := &Controller{
		backend:   opts.Backend,
		transport: opts.Transport,
		inbound:   opts.Inbound,
		outbound:  opts.Outbound,
		creds:     opts.Credentials,
		notifier:  opts.Notifier,
		store:     chat.NewStore(&chat.ActiveSlot{}),
		logger:    log.With().Str("component", "session").Logger(),
		now:       time.Now,
	}
	profiles, err := NewProfileCache(opts.ProfileCacheSize, opts.Backend.GetUser)
	if err != nil {
		return nil, err
	}
	c.profiles = profiles
	c.publish()
	return c, nil
}

// View returns the read-only store surface.
func (c *Controller) View() chat.View { return c.store }

// State returns the lifecycle state.
func (c *Controller) State() State { return c.snap.Load().state }

// UserID returns the authenticated user, or "" when there is none.
func (c *Controller) UserID() string { return c.snap.Load().creds.UserID }

// Wait blocks until background read receipts have finished.
func (c *Controller) Wait() { c.bg.Wait() }

// publish must be called with c.mu held, or before c is shared.
func (c *Controller) publish() {
	bgCtx := c.bgCtx
	if bgCtx == nil {
		bgCtx = context.Background()
	}
	c.snap.Store(&snapshot{state: c.state, gen: c.gen, creds: c.session, bgCtx: bgCtx})
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Register creates an account and logs in with it.
func (c *Controller) Register(ctx context.Context, name, email, password string) error {
	if err := c.backend.Register(ctx, name, email, password); err != nil {
		return err
	}
	return c.Login(ctx, email, password)
}

// Login authenticates, persists the credential and starts the session.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	c.mu.Lock()
	st, busy := c.state, c.starting
	c.mu.Unlock()
	if busy || st == StateActive {
		return fmt.Errorf("session: login: session already %s", st)
	}

	res, err := c.backend.Login(ctx, email, password)
	if err != nil {
		return err
	}
	creds := Credentials{Token: res.Token, UserID: res.UserID, Email: res.Email}

	var ttl time.Duration
	if claims, err := auth.Inspect(res.Token); err == nil {
		if creds.UserID == "" {
			creds.UserID = claims.Subject
		}
		ttl = claims.TTL(c.now())
	}
	if err := c.creds.Save(ctx, creds, ttl); err != nil {
		c.logger.Warn().Err(err).Msg("credentials not persisted")
	}
	return c.Start(ctx, creds)
}

// Resume starts a session from persisted credentials.
func (c *Controller) Resume(ctx context.Context) error {
	creds, found, err := c.creds.Load(ctx)
	if err != nil {
		return err
	}
	if !found {
		return chat.ErrNotAuthenticated
	}
	return c.Start(ctx, creds)
}

// Start runs Initializing -> Active: the conversation list is loaded, the
// inbound handler bound and the transport opened. An authorization failure
// logs out to Unauthenticated and discards the credential; any other failure
// leaves the session Initializing so Start can be retried.
func (c *Controller) Start(ctx context.Context, creds Credentials) error {
	claims, err := auth.Check(creds.Token, c.now())
	if err != nil {
		if errors.Is(err, chat.ErrAuthExpired) {
			c.expire(ctx, err)
		}
		return err
	}
	if creds.UserID == "" {
		creds.UserID = claims.Subject
	}
	if creds.UserID == "" {
		return fmt.Errorf("session: start: no user id: %w", chat.ErrNotAuthenticated)
	}

	c.mu.Lock()
	if c.starting || c.state == StateActive {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("session: start: session already %s", st)
	}
	if c.bgCancel != nil {
		c.bgCancel()
	}
	bgCtx, cancel := context.WithCancel(context.Background())
	c.starting = true
	c.state = StateInitializing
	c.gen++
	gen := c.gen
	c.session = creds
	c.bgCtx, c.bgCancel = bgCtx, cancel
	c.publish()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	c.logger.Info().Str("user_id", creds.UserID).Msg("session initializing")
	c.emit(Event{Type: EventStateChanged, State: StateInitializing.String()})

	c.backend.SetToken(creds.Token)
	list, err := c.backend.ListConversations(ctx)
	if err != nil {
		return c.fail(ctx, "list_conversations", err)
	}

	c.mu.Lock()
	if c.gen != gen || c.state != StateInitializing {
		c.mu.Unlock()
		return fmt.Errorf("session: start: %w", chat.ErrSessionInactive)
	}
	c.store.Load(list)
	c.inbound.SetHandler(c.HandleInbound)
	c.transport.Open(creds.UserID, creds.Token)
	c.state = StateActive
	c.publish()
	c.mu.Unlock()

	c.emit(Event{Type: EventConversationsLoaded})
	c.logger.Info().Str("user_id", creds.UserID).Int("conversations", len(list)).Msg("session active")
	c.emit(Event{Type: EventStateChanged, State: StateActive.String()})
	return nil
}

// Logout closes the transport, discards the store and clears the persisted
// credential.
func (c *Controller) Logout(ctx context.Context) error {
	return c.teardown(ctx, StateTerminated)
}

// expire ends the session after an authorization failure.
func (c *Controller) expire(ctx context.Context, cause error) {
	c.logger.Warn().Err(cause).Msg("authorization expired, logging out")
	if err := c.teardown(context.WithoutCancel(ctx), StateUnauthenticated); err != nil {
		c.logger.Warn().Err(err).Msg("logout after expiry incomplete")
	}
}

func (c *Controller) teardown(ctx context.Context, final State) error {
	c.mu.Lock()
	userID := c.session.UserID
	c.gen++
	c.state = final
	c.session = Credentials{}
	cancel := c.bgCancel
	c.bgCtx, c.bgCancel = nil, nil
	c.publish()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.inbound.SetHandler(nil)
	c.transport.Close()
	c.bg.Wait()
	c.store.Reset()
	c.profiles.Purge()
	c.backend.SetToken("")

	err := c.creds.Clear(ctx)
	c.logger.Info().Str("user_id", userID).Str("state", final.String()).Msg("session ended")
	c.emit(Event{Type: EventStateChanged, UserID: userID, State: final.String()})
	return err
}

// active returns the current snapshot or ErrSessionInactive.
func (c *Controller) active() (*snapshot, error) {
	s := c.snap.Load()
	if s.state != StateActive {
		return nil, fmt.Errorf("session: %s: %w", s.state, chat.ErrSessionInactive)
	}
	return s, nil
}

// fail logs a backend error; AuthExpired also ends the session.
func (c *Controller) fail(ctx context.Context, op string, err error) error {
	if errors.Is(err, chat.ErrAuthExpired) {
		c.expire(ctx, err)
		return err
	}
	c.logger.Warn().Err(err).Str("op", op).Msg("request failed")
	return err
}

// ---------------------------------------------------------------------------
// Conversations
// ---------------------------------------------------------------------------

// SelectConversation opens conv: the active slot and unread counter change
// immediately, then a read receipt (when there was anything unread) and the
// history fetch run concurrently. History that arrives after another
// conversation was opened is discarded.
func (c *Controller) SelectConversation(ctx context.Context, conv chat.Conversation) error {
	s, err := c.active()
	if err != nil {
		return err
	}
	if conv.PeerID == "" {
		return fmt.Errorf("session: select: empty peer: %w", chat.ErrInvalidPayload)
	}

	selected, prevUnread, gen := c.store.Select(conv)
	c.emit(Event{Type: EventActiveChanged, Conversation: &selected})

	var (
		g       errgroup.Group
		history []chat.Message
	)
	if prevUnread > 0 {
		g.Go(func() error { return c.markRead(ctx, selected.ConversationID) })
	}
	g.Go(func() error {
		msgs, err := c.backend.FetchHistory(ctx, s.creds.UserID, selected.PeerID)
		history = msgs
		return err
	})
	if err := g.Wait(); err != nil {
		return c.fail(ctx, "select_conversation", err)
	}

	if !c.store.ReplaceMessages(gen, history) {
		c.logger.Debug().Str("peer_id", selected.PeerID).Msg("discarding history for conversation no longer open")
		return nil
	}
	c.emit(Event{Type: EventHistoryLoaded, Conversation: &selected})
	return nil
}

// StartNewConversation opens a thread with p. An existing conversation with
// the peer is selected; otherwise a placeholder becomes active without any
// network call.
func (c *Controller) StartNewConversation(ctx context.Context, p chat.Profile) error {
	s, err := c.active()
	if err != nil {
		return err
	}
	if p.UserID == "" || p.UserID == s.creds.UserID {
		return fmt.Errorf("session: start conversation with %q: %w", p.UserID, chat.ErrInvalidPayload)
	}

	conv, existing := c.store.StartNew(p)
	if existing {
		return c.SelectConversation(ctx, conv)
	}
	c.emit(Event{Type: EventActiveChanged, Conversation: &conv})
	return nil
}

// OpenConversationWith opens the conversation with userID, fetching the
// profile when no conversation exists yet. It is a no-op when userID is
// already the open peer.
func (c *Controller) OpenConversationWith(ctx context.Context, userID string) error {
	if _, err := c.active(); err != nil {
		return err
	}
	if c.store.Slot().PeerID() == userID {
		return nil
	}
	if conv, ok := c.store.Lookup(userID); ok {
		return c.SelectConversation(ctx, conv)
	}
	p, err := c.profiles.Get(ctx, userID)
	if err != nil {
		return c.fail(ctx, "get_user", err)
	}
	return c.StartNewConversation(ctx, p)
}

// CloseConversation leaves the open conversation; further messages from its
// peer only bump the unread counter.
func (c *Controller) CloseConversation() {
	c.store.ClearActive()
	c.emit(Event{Type: EventActiveChanged})
}

// RefreshConversations reloads the conversation list, keeping the open
// conversation.
func (c *Controller) RefreshConversations(ctx context.Context) error {
	s, err := c.active()
	if err != nil {
		return err
	}
	list, err := c.backend.ListConversations(ctx)
	if err != nil {
		return c.fail(ctx, "list_conversations", err)
	}

	c.mu.Lock()
	if c.gen != s.gen {
		c.mu.Unlock()
		return fmt.Errorf("session: refresh: %w", chat.ErrSessionInactive)
	}
	c.store.Load(list)
	c.mu.Unlock()

	c.emit(Event{Type: EventConversationsLoaded})
	return nil
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// Send appends content to the open conversation and publishes it. The local
// copy stays even when publishing fails; nothing is retried.
func (c *Controller) Send(content string) error {
	s, err := c.active()
	if err != nil {
		return err
	}
	conv, _ := c.store.ActiveConversation()
	text, err := chat.ValidateOutgoing(conv.PeerID, content)
	if err != nil {
		return err
	}

	msg := chat.Message{
		SenderID:   s.creds.UserID,
		ReceiverID: conv.PeerID,
		Content:    text,
		Timestamp:  c.now(),
	}
	if !conv.IsPlaceholder() {
		msg.ConversationID = conv.ConversationID
	}
	if !c.store.AppendOptimistic(conv.PeerID, msg) {
		return fmt.Errorf("session: send: conversation with %s no longer open: %w", conv.PeerID, chat.ErrInvalidPayload)
	}
	c.emit(Event{Type: EventMessageSent, Message: &msg})

	if err := c.outbound.Send(s.creds.UserID, conv.PeerID, text); err != nil {
		c.emit(Event{Type: EventSendFailed, Message: &msg, Error: err.Error()})
		return err
	}
	return nil
}

// HandleInbound routes one pushed message. It runs on the transport read
// loop and reads the active conversation at call time. Echoes of the user's
// own sends are dropped; the optimistic copy is the only local copy.
func (c *Controller) HandleInbound(msg chat.Message) {
	s := c.snap.Load()
	if s.state != StateActive {
		metrics.InboundDropped.WithLabelValues("inactive").Inc()
		return
	}
	if msg.SenderID == s.creds.UserID {
		metrics.InboundDropped.WithLabelValues("self_echo").Inc()
		return
	}

	res := c.store.ApplyIncoming(msg)
	if !res.Open && !res.Known {
		metrics.InboundDropped.WithLabelValues("unknown_peer").Inc()
		c.logger.Debug().Str("sender_id", msg.SenderID).Msg("message from peer without conversation")
		return
	}
	conv := res.Conversation
	c.emit(Event{Type: EventMessageReceived, Message: &msg, Conversation: &conv, Open: res.Open})
	if !res.Open {
		return
	}

	convID := conv.ConversationID
	if conv.IsPlaceholder() {
		convID = msg.ConversationID
	}
	if convID == "" {
		return
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		ctx, cancel := context.WithTimeout(s.bgCtx, markReadTimeout)
		defer cancel()
		if err := c.markRead(ctx, convID); err != nil {
			// teardown waits for this goroutine, so expire must not run on it.
			go c.expire(context.Background(), err)
		}
	}()
}

// markRead sends a read receipt. Only AuthExpired is returned; other
// failures are logged.
func (c *Controller) markRead(ctx context.Context, conversationID string) error {
	if conversationID == "" || (chat.Conversation{ConversationID: conversationID}).IsPlaceholder() {
		return nil
	}
	if err := c.backend.MarkRead(ctx, conversationID); err != nil {
		if errors.Is(err, chat.ErrAuthExpired) {
			return err
		}
		c.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("mark read failed")
		return nil
	}
	c.store.MarkRead(conversationID)
	c.emit(Event{Type: EventConversationRead, Conversation: &chat.Conversation{ConversationID: conversationID}})
	return nil
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// ListUsers returns discoverable users.
func (c *Controller) ListUsers(ctx context.Context) ([]chat.Profile, error) {
	if _, err := c.active(); err != nil {
		return nil, err
	}
	users, err := c.backend.ListUsers(ctx)
	if err != nil {
		return nil, c.fail(ctx, "list_users", err)
	}
	c.profiles.Put(users...)
	return users, nil
}

// Follow follows userID.
func (c *Controller) Follow(ctx context.Context, userID string) error {
	if _, err := c.active(); err != nil {
		return err
	}
	if err := c.backend.Follow(ctx, userID); err != nil {
		return c.fail(ctx, "follow", err)
	}
	c.profiles.Forget(userID)
	return nil
}

// Unfollow unfollows userID.
func (c *Controller) Unfollow(ctx context.Context, userID string) error {
	if _, err := c.active(); err != nil {
		return err
	}
	if err := c.backend.Unfollow(ctx, userID); err != nil {
		return c.fail(ctx, "unfollow", err)
	}
	c.profiles.Forget(userID)
	return nil
}

// emit stamps and delivers an event.
func (c *Controller) emit(ev Event) {
	if ev.UserID == "" {
		ev.UserID = c.snap.Load().creds.UserID
	}
	ev.UnreadTotal = c.store.UnreadTotal()
	ev.At = c.now()
	metrics.UnreadMessages.Set(float64(ev.UnreadTotal))
	c.notifier.Notify(ev)
}
