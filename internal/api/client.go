// Package api is the REST collaborator of the chat client: authentication,
// the conversation list, message history, read receipts, user discovery and
// the follow graph.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/peerchat/chat-client/internal/chat"
	"github.com/peerchat/chat-client/internal/metrics"
)

// ErrBadCredentials is returned by Login when the backend rejects the email
// and password.
var ErrBadCredentials = errors.New("api: invalid email or password")

// Config holds REST client settings.
type Config struct {
	BaseURL string        // http://localhost:8080
	Timeout time.Duration // per request
}

// DefaultConfig returns sensible defaults for a local backend.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080",
		Timeout: 15 * time.Second,
	}
}

// Client calls the backend REST API. It is safe for concurrent use.
type Client struct {
	http   *resty.Client
	token  atomic.Pointer[string]
	logger zerolog.Logger
}

// New creates a Client for cfg.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "peerchat-client/1.0").
		SetTimeout(cfg.Timeout)

	return &Client{
		http:   httpClient,
		logger: log.With().Str("component", "api").Logger(),
	}
}

// SetToken sets the bearer token sent with every subsequent request. An
// empty token clears it.
func (c *Client) SetToken(token string) {
	if token == "" {
		c.token.Store(nil)
		return
	}
	c.token.Store(&token)
}

func (c *Client) request(ctx context.Context) *resty.Request {
	r := c.http.R().SetContext(ctx)
	if t := c.token.Load(); t != nil {
		r.SetAuthToken(*t)
	}
	return r
}

// check maps a transport error or non-2xx response onto the error taxonomy
// and records the request latency.
func (c *Client) check(op string, start time.Time, resp *resty.Response, err error) error {
	outcome := "ok"
	defer func() {
		metrics.RequestDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	}()

	if err != nil {
		outcome = "failed"
		return fmt.Errorf("api: %s: %w: %v", op, chat.ErrFetchFailed, err)
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		outcome = "auth_expired"
		return fmt.Errorf("api: %s: status %d: %w", op, code, chat.ErrAuthExpired)
	case resp.IsError():
		outcome = "failed"
		return fmt.Errorf("api: %s: status %d: %w", op, code, chat.ErrFetchFailed)
	}
	c.logger.Debug().Str("op", op).Int("status", resp.StatusCode()).Dur("took", time.Since(start)).Msg("request ok")
	return nil
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	start := time.Now()
	var out loginResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(loginRequest{Email: email, Password: password}).
		SetResult(&out).
		Post("/auth/login")
	if err := c.check("login", start, resp, err); err != nil {
		if errors.Is(err, chat.ErrAuthExpired) {
			return LoginResult{}, ErrBadCredentials
		}
		return LoginResult{}, err
	}
	if out.Token == "" {
		return LoginResult{}, fmt.Errorf("api: login: empty token: %w", chat.ErrFetchFailed)
	}
	return LoginResult{Token: out.Token, UserID: string(out.UserID), Email: out.Email}, nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, name, email, password string) error {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(registerRequest{Name: name, Email: email, Password: password}).
		Post("/auth/register")
	return c.check("register", start, resp, err)
}

// ListConversations returns the user's conversations in backend order.
func (c *Client) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	start := time.Now()
	var out []conversationDTO
	resp, err := c.request(ctx).SetResult(&out).Get("/users/me/chats")
	if err := c.check("list_conversations", start, resp, err); err != nil {
		return nil, err
	}

	list := make([]chat.Conversation, 0, len(out))
	for _, d := range out {
		list = append(list, d.normalize())
	}
	return list, nil
}

// ListUsers returns discoverable users with follow flags.
func (c *Client) ListUsers(ctx context.Context) ([]chat.Profile, error) {
	start := time.Now()
	var out []userDTO
	resp, err := c.request(ctx).SetResult(&out).Get("/users")
	if err := c.check("list_users", start, resp, err); err != nil {
		return nil, err
	}

	users := make([]chat.Profile, 0, len(out))
	for _, d := range out {
		users = append(users, d.normalize())
	}
	return users, nil
}

// GetUser fetches one profile.
func (c *Client) GetUser(ctx context.Context, userID string) (chat.Profile, error) {
	start := time.Now()
	var out userDTO
	resp, err := c.request(ctx).
		SetPathParam("userId", userID).
		SetResult(&out).
		Get("/users/{userId}")
	if err := c.check("get_user", start, resp, err); err != nil {
		return chat.Profile{}, err
	}

	p := out.normalize()
	if p.UserID == "" {
		p.UserID = userID
	}
	return p, nil
}

// FetchHistory returns the messages exchanged with peerID, oldest first.
func (c *Client) FetchHistory(ctx context.Context, myUserID, peerID string) ([]chat.Message, error) {
	start := time.Now()
	var out []historyDTO
	resp, err := c.request(ctx).
		SetPathParam("peerId", peerID).
		SetQueryParam("myUserId", myUserID).
		SetResult(&out).
		Get("/users/me/messages/{peerId}")
	if err := c.check("fetch_history", start, resp, err); err != nil {
		return nil, err
	}

	msgs := make([]chat.Message, 0, len(out))
	for _, d := range out {
		msgs = append(msgs, d.ToMessage())
	}
	return msgs, nil
}

// MarkRead acknowledges every message in a conversation.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	start := time.Now()
	resp, err := c.request(ctx).
		SetPathParam("conversationId", conversationID).
		Post("/users/me/chats/{conversationId}/read")
	return c.check("mark_read", start, resp, err)
}

// Follow follows a user.
func (c *Client) Follow(ctx context.Context, userID string) error {
	start := time.Now()
	resp, err := c.request(ctx).
		SetPathParam("targetId", userID).
		Post("/users/me/follow/{targetId}")
	return c.check("follow", start, resp, err)
}

// Unfollow unfollows a user.
func (c *Client) Unfollow(ctx context.Context, userID string) error {
	start := time.Now()
	resp, err := c.request(ctx).
		SetPathParam("targetId", userID).
		Delete("/users/me/unfollow/{targetId}")
	return c.check("unfollow", start, resp, err)
}
