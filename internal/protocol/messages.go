// Package protocol defines the payloads exchanged with the chat backend over
// the push channel and the REST boundary. All bodies are JSON.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/peerchat/chat-client/internal/chat"
)

// ---------------------------------------------------------------------------
// Destinations
// ---------------------------------------------------------------------------

const (
	// DestinationChatSend is the application destination every outbound chat
	// message is published to.
	DestinationChatSend = "/app/chat.send"

	// TopicChatPrefix is followed by the user id to form the per-user topic.
	TopicChatPrefix = "/topic/chat/"

	ContentTypeJSON = "application/json"
)

// UserTopic returns the private push topic of a user.
func UserTopic(userID string) string {
	return TopicChatPrefix + userID
}

// ---------------------------------------------------------------------------
// Identifiers
// ---------------------------------------------------------------------------

// ID is an identifier that may be encoded as a JSON string or number. It is
// always compared in its string form.
type ID string

// UnmarshalJSON accepts strings, numbers and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("protocol: id: %w", err)
		}
		*id = ID(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("protocol: id: %w", err)
		}
		*id = ID(n.String())
	}
	return nil
}

// FirstID returns the first non-empty id.
func FirstID(ids ...ID) string {
	for _, id := range ids {
		if id != "" {
			return string(id)
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Timestamps
// ---------------------------------------------------------------------------

// timeLayouts lists accepted timestamp encodings. Zone-less values come from
// the backend's local date-time type and are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTime parses an ISO-8601 timestamp. Empty or unparseable input yields
// the zero time.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// FormatTime renders a timestamp the way the client sends it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ---------------------------------------------------------------------------
// Inbound
// ---------------------------------------------------------------------------

// ChatMessage is a message as pushed on the user topic or returned by the
// history endpoint. Pushes carry messageId and conversationId; history rows
// carry id.
type ChatMessage struct {
	ID             ID     `json:"id"`
	MessageID      ID     `json:"messageId"`
	ConversationID ID     `json:"conversationId"`
	SenderID       ID     `json:"senderId"`
	ReceiverID     ID     `json:"receiverId"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp"`
}

// ToMessage normalizes the wire message into the domain type.
func (m ChatMessage) ToMessage() chat.Message {
	return chat.Message{
		ID:             FirstID(m.ID, m.MessageID),
		ConversationID: string(m.ConversationID),
		SenderID:       string(m.SenderID),
		ReceiverID:     string(m.ReceiverID),
		Content:        m.Content,
		Timestamp:      ParseTime(m.Timestamp),
	}
}

// DecodeChatMessage decodes one pushed frame body.
func DecodeChatMessage(data []byte) (chat.Message, error) {
	var m ChatMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return chat.Message{}, fmt.Errorf("protocol: failed to decode chat message: %w", err)
	}
	if m.SenderID == "" {
		return chat.Message{}, fmt.Errorf("protocol: chat message without senderId")
	}
	return m.ToMessage(), nil
}

// ---------------------------------------------------------------------------
// Outbound
// ---------------------------------------------------------------------------

// SendPayload is the body published to DestinationChatSend.
type SendPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

// NewSendPayload validates and trims an outbound message. Failures wrap
// chat.ErrInvalidPayload.
func NewSendPayload(senderID, receiverID, content string) (SendPayload, error) {
	text, err := chat.ValidateOutgoing(receiverID, content)
	if err != nil {
		return SendPayload{}, err
	}
	return SendPayload{SenderID: senderID, ReceiverID: receiverID, Content: text}, nil
}

// Encode marshals the payload.
func (p SendPayload) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal send payload: %w", err)
	}
	return data, nil
}
