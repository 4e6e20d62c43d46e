package chat

import (
	"strings"
	"time"
)

// PlaceholderPrefix marks a client-synthesized conversation id for a thread
// the backend has not assigned an id to yet.
const PlaceholderPrefix = "new-"

// Conversation is one peer-to-peer thread as shown in the sidebar.
type Conversation struct {
	ConversationID  string    `json:"conversationId"`
	PeerID          string    `json:"peerId"`
	DisplayName     string    `json:"displayName"`
	AvatarURL       string    `json:"avatarUrl,omitempty"`
	LastMessageText string    `json:"lastMessageText,omitempty"`
	LastMessageAt   time.Time `json:"lastMessageAt"`
	UnreadCount     int       `json:"unreadCount"`
}

// IsPlaceholder reports whether the conversation id was synthesized locally.
func (c Conversation) IsPlaceholder() bool {
	return c.ConversationID == "" || strings.HasPrefix(c.ConversationID, PlaceholderPrefix)
}

// Message is one chat line.
type Message struct {
	ID             string    `json:"id,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// IsMine reports whether the message was written by the local user, given the
// peer of the conversation it is displayed in.
func (m Message) IsMine(activePeerID string) bool {
	return m.SenderID != activePeerID
}

// Work is the "currently working at" sub-record of a profile.
type Work struct {
	Status       string `json:"status,omitempty"` // STUDENT | WORKING | INTERN | FREELANCER | UNEMPLOYED | OPEN_TO_WORK
	Role         string `json:"role,omitempty"`
	Organization string `json:"organization,omitempty"`
	StartDate    string `json:"startDate,omitempty"`
	Description  string `json:"description,omitempty"`
}

// Profile is a user as returned by the discovery and lookup endpoints.
type Profile struct {
	UserID         string `json:"userId"`
	DisplayName    string `json:"displayName"`
	Email          string `json:"email,omitempty"`
	AvatarURL      string `json:"avatarUrl,omitempty"`
	Bio            string `json:"bio,omitempty"`
	CurrentWorking Work   `json:"currentWorking"`
	IsFollowing    bool   `json:"isFollowing"`
	IsFollower     bool   `json:"isFollower"`
}
