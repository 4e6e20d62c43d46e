// Package session owns the lifetime of an authenticated chat session: it
// drives the transport, routes pushed messages into the conversation store,
// and persists the credential between runs.
package session

import (
	"time"

	"github.com/peerchat/chat-client/internal/chat"
)

// State is the session lifecycle state.
type State int

const (
	StateUnauthenticated State = iota
	StateInitializing          // credential accepted, conversation list loading
	StateActive                // transport open, dispatcher bound
	StateTerminated            // explicit logout
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// EventType names a change observable by views.
type EventType string

const (
	EventStateChanged        EventType = "state_changed"
	EventConversationsLoaded EventType = "conversations_loaded"
	EventActiveChanged       EventType = "active_changed"
	EventHistoryLoaded       EventType = "history_loaded"
	EventMessageSent         EventType = "message_sent"
	EventSendFailed          EventType = "send_failed"
	EventMessageReceived     EventType = "message_received"
	EventConversationRead    EventType = "conversation_read"
)

// Event describes one state transition or store mutation.
type Event struct {
	Type         EventType          `json:"type"`
	UserID       string             `json:"userId,omitempty"`
	State        string             `json:"state,omitempty"`
	Conversation *chat.Conversation `json:"conversation,omitempty"`
	Message      *chat.Message      `json:"message,omitempty"`
	Open         bool               `json:"open,omitempty"` // message routed to the open conversation
	UnreadTotal  int                `json:"unreadTotal"`
	Error        string             `json:"error,omitempty"`
	At           time.Time          `json:"at"`
}

// Notifier receives events. Notify may be called from any goroutine,
// including the transport read loop, and must not block.
type Notifier interface {
	Notify(ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ev Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}
