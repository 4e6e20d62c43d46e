package messaging

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerchat/chat-client/internal/chat"
	"github.com/peerchat/chat-client/internal/session"
)

func connect(t *testing.T) *EventBus {
	t.Helper()
	cfg := DefaultNATSConfig()
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.URL = url
	}
	cfg.MaxReconnects = 0
	bus, err := NewEventBus(cfg)
	if err != nil {
		t.Skipf("nats not available: %v", err)
	}
	return bus
}

func TestEventSubject(t *testing.T) {
	assert.Equal(t, "chatclient.events.42", EventSubject("42"))
}

func TestEventBus_RoundTrip(t *testing.T) {
	bus := connect(t)
	defer bus.Close()

	user := "test-" + time.Now().Format("150405.000000")
	got := make(chan session.Event, 4)
	_, err := bus.SubscribeEvents(user, func(ev session.Event) { got <- ev })
	require.NoError(t, err)
	require.NoError(t, bus.Flush(time.Second))

	bus.Notify(session.Event{
		Type:         session.EventMessageReceived,
		UserID:       user,
		Conversation: &chat.Conversation{ConversationID: "c9", PeerID: "9", UnreadCount: 4},
		Message:      &chat.Message{SenderID: "9", ReceiverID: user, Content: "ping"},
		UnreadTotal:  4,
		At:           time.Now(),
	})
	require.NoError(t, bus.Flush(time.Second))

	select {
	case ev := <-got:
		assert.Equal(t, session.EventMessageReceived, ev.Type)
		assert.Equal(t, 4, ev.UnreadTotal)
		require.NotNil(t, ev.Message)
		assert.Equal(t, "ping", ev.Message.Content)
		require.NotNil(t, ev.Conversation)
		assert.Equal(t, "c9", ev.Conversation.ConversationID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestEventBus_RejectsEventWithoutUser(t *testing.T) {
	bus := connect(t)
	defer bus.Close()

	err := bus.PublishEvent(session.Event{Type: session.EventStateChanged})
	assert.Error(t, err)
}
