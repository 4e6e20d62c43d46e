package api

import (
	"github.com/peerchat/chat-client/internal/chat"
	"github.com/peerchat/chat-client/internal/protocol"
)

// Response shapes as the backend sends them. Identifier fields vary between
// endpoints and may be strings or numbers; everything is normalized into the
// chat types here and nowhere else.

type conversationDTO struct {
	ConversationID protocol.ID `json:"conversationId"`
	FriendID       protocol.ID `json:"friendId"`
	FriendUserID   protocol.ID `json:"friendUserId"`
	DisplayName    string      `json:"displayName"`
	ProfilePhoto   string      `json:"profilePhoto"`
	LastMessage    string      `json:"lastMessage"`
	LastUpdated    string      `json:"lastUpdated"`
	UnreadCount    int         `json:"unreadCount"`
}

func (d conversationDTO) normalize() chat.Conversation {
	c := chat.Conversation{
		ConversationID:  string(d.ConversationID),
		PeerID:          protocol.FirstID(d.FriendID, d.FriendUserID),
		DisplayName:     d.DisplayName,
		AvatarURL:       d.ProfilePhoto,
		LastMessageText: d.LastMessage,
		LastMessageAt:   protocol.ParseTime(d.LastUpdated),
		UnreadCount:     d.UnreadCount,
	}
	if c.DisplayName == "" {
		c.DisplayName = c.PeerID
	}
	if c.UnreadCount < 0 {
		c.UnreadCount = 0
	}
	return c
}

type userDTO struct {
	UserID         protocol.ID `json:"userId"`
	MongoID        protocol.ID `json:"_id"`
	ID             protocol.ID `json:"id"`
	DisplayName    string      `json:"displayName"`
	Email          string      `json:"email"`
	ProfilePhoto   string      `json:"profilePhoto"`
	Bio            string      `json:"bio"`
	CurrentWorking *chat.Work  `json:"currentWorking"`
	IsFollowing    bool        `json:"isFollowing"`
	IsFollower     bool        `json:"isFollower"`
}

func (d userDTO) normalize() chat.Profile {
	p := chat.Profile{
		UserID:      protocol.FirstID(d.UserID, d.MongoID, d.ID),
		DisplayName: d.DisplayName,
		Email:       d.Email,
		AvatarURL:   d.ProfilePhoto,
		Bio:         d.Bio,
		IsFollowing: d.IsFollowing,
		IsFollower:  d.IsFollower,
	}
	if d.CurrentWorking != nil {
		p.CurrentWorking = *d.CurrentWorking
	}
	if p.DisplayName == "" {
		p.DisplayName = p.UserID
	}
	return p
}

// historyDTO rows share the push message shape.
type historyDTO = protocol.ChatMessage

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token  string      `json:"token"`
	UserID protocol.ID `json:"userId"`
	Email  string      `json:"email"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is a successful authentication.
type LoginResult struct {
	Token  string
	UserID string
	Email  string
}
