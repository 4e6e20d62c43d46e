package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerchat/chat-client/internal/chat"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", Timeout: 2 * time.Second})
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func TestClient_Login(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, `{"token":"tok","userId":"u1","email":"`+req.Email+`"}`)
	})
	c := newTestClient(t, mux)

	res, err := c.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, LoginResult{Token: "tok", UserID: "u1", Email: "a@b.c"}, res)

	_, err = c.Login(context.Background(), "a@b.c", "wrong")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestClient_Register(t *testing.T) {
	got := make(chan registerRequest, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		got <- req
		writeJSON(w, `{"id":"u9"}`)
	})
	c := newTestClient(t, mux)

	require.NoError(t, c.Register(context.Background(), "Ada", "ada@x.io", "pw"))
	assert.Equal(t, registerRequest{Name: "Ada", Email: "ada@x.io", Password: "pw"}, <-got)
}

// ---------------------------------------------------------------------------
// Test: conversation list normalization
// ---------------------------------------------------------------------------

func TestClient_ListConversations(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/me/chats", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, `[
			{"conversationId":"c1","friendId":"7","displayName":"Bo","profilePhoto":"p.png","lastMessage":"yo","lastUpdated":"2024-05-01T10:00:00","unreadCount":2},
			{"conversationId":"c2","friendUserId":9,"lastMessage":"hey","unreadCount":-1}
		]`)
	})
	c := newTestClient(t, mux)
	c.SetToken("tok")

	list, err := c.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, chat.Conversation{
		ConversationID:  "c1",
		PeerID:          "7",
		DisplayName:     "Bo",
		AvatarURL:       "p.png",
		LastMessageText: "yo",
		LastMessageAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		UnreadCount:     2,
	}, list[0])
	assert.Equal(t, "9", list[1].PeerID)
	assert.Equal(t, "9", list[1].DisplayName)
	assert.Equal(t, 0, list[1].UnreadCount)
}

func TestClient_NullListIsEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/me/chats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `null`)
	})
	c := newTestClient(t, mux)

	list, err := c.ListConversations(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

// ---------------------------------------------------------------------------
// Test: error taxonomy
// ---------------------------------------------------------------------------

func TestClient_ErrorMapping(t *testing.T) {
	var status atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/me/chats", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	})
	c := newTestClient(t, mux)

	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, chat.ErrAuthExpired},
		{http.StatusForbidden, chat.ErrAuthExpired},
		{http.StatusInternalServerError, chat.ErrFetchFailed},
		{http.StatusNotFound, chat.ErrFetchFailed},
	}
	for _, tt := range tests {
		status.Store(int32(tt.status))
		_, err := c.ListConversations(context.Background())
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
	}
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(Config{BaseURL: srv.URL, Timeout: time.Second})

	err := c.MarkRead(context.Background(), "c1")
	assert.ErrorIs(t, err, chat.ErrFetchFailed)
}

// ---------------------------------------------------------------------------
// Test: history, read receipts, users and follow graph
// ---------------------------------------------------------------------------

func TestClient_FetchHistory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/me/messages/{peer}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.PathValue("peer"))
		assert.Equal(t, "me", r.URL.Query().Get("myUserId"))
		writeJSON(w, `[
			{"id":"m1","senderId":"7","receiverId":"me","content":"hi","timestamp":"2024-05-01T10:00:00Z"},
			{"id":"m2","senderId":"me","receiverId":"7","content":"yo","timestamp":"2024-05-01T10:01:00Z"}
		]`)
	})
	c := newTestClient(t, mux)

	msgs, err := c.FetchHistory(context.Background(), "me", "7")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.True(t, msgs[1].IsMine("7"))
}

func TestClient_MarkReadAndFollow(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	mux := http.NewServeMux()
	record := func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
	}
	mux.HandleFunc("POST /users/me/chats/{id}/read", record)
	mux.HandleFunc("POST /users/me/follow/{id}", record)
	mux.HandleFunc("DELETE /users/me/unfollow/{id}", record)
	c := newTestClient(t, mux)
	ctx := context.Background()

	require.NoError(t, c.MarkRead(ctx, "c1"))
	require.NoError(t, c.Follow(ctx, "42"))
	require.NoError(t, c.Unfollow(ctx, "42"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"POST /users/me/chats/c1/read",
		"POST /users/me/follow/42",
		"DELETE /users/me/unfollow/42",
	}, calls)
}

func TestClient_Users(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[
			{"userId":"1","displayName":"Ada","isFollowing":true},
			{"_id":2,"displayName":"Bo","currentWorking":{"role":"dev","organization":"Acme"}}
		]`)
	})
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"displayName":"Cy","bio":"hi"}`)
	})
	c := newTestClient(t, mux)

	users, err := c.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.True(t, users[0].IsFollowing)
	assert.Equal(t, "2", users[1].UserID)
	assert.Equal(t, "Acme", users[1].CurrentWorking.Organization)

	p, err := c.GetUser(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, "3", p.UserID)
	assert.Equal(t, "Cy", p.DisplayName)
}
