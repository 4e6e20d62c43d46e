package chat

import (
	"sync"
	"time"
)

// View is the read-only surface of the Store handed to rendering code.
type View interface {
	Conversations() []Conversation
	Lookup(peerID string) (Conversation, bool)
	ActiveConversation() (Conversation, bool)
	Messages() []Message
	UnreadTotal() int
}

// IncomingResult describes how ApplyIncoming routed a message.
type IncomingResult struct {
	// Open is true when the sender is the active peer and the message was
	// appended to the open message list.
	Open bool
	// Known is true when a sidebar conversation exists for the sender.
	Known bool
	// Conversation is the state of the sender's conversation after the
	// update. Zero when neither Open nor Known.
	Conversation Conversation
}

// Store is the in-memory model of the conversation list and the open
// conversation's messages. It is goroutine-safe; all writes come from the
// session controller.
type Store struct {
	mu            sync.RWMutex
	conversations []Conversation
	byPeer        map[string]int // peerID -> index into conversations
	messages      []Message      // open conversation only
	active        *ActiveSlot
	now           func() time.Time
}

// NewStore creates an empty Store reading and writing the given slot.
func NewStore(active *ActiveSlot) *Store {
	if active == nil {
		active = &ActiveSlot{}
	}
	return &Store{
		byPeer: make(map[string]int),
		active: active,
		now:    time.Now,
	}
}

// Slot returns the active-conversation cell the store routes against.
func (s *Store) Slot() *ActiveSlot {
	return s.active
}

// Load replaces the conversation list, keeping backend order. Later entries
// for a peer already seen are dropped so each peer appears at most once.
func (s *Store) Load(list []Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = make([]Conversation, 0, len(list))
	s.byPeer = make(map[string]int, len(list))
	for _, c := range list {
		if c.PeerID == "" {
			continue
		}
		if _, dup := s.byPeer[c.PeerID]; dup {
			continue
		}
		if c.UnreadCount < 0 {
			c.UnreadCount = 0
		}
		s.byPeer[c.PeerID] = len(s.conversations)
		s.conversations = append(s.conversations, c)
	}

	// A refreshed list may now hold the open peer; its unread count stays zero
	// while it is on screen.
	if peer := s.active.PeerID(); peer != "" {
		if i, ok := s.byPeer[peer]; ok {
			s.conversations[i].UnreadCount = 0
		}
	}
}

// Conversations returns a copy of the ordered conversation list.
func (s *Store) Conversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Lookup returns the conversation for a peer.
func (s *Store) Lookup(peerID string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byPeer[peerID]
	if !ok {
		return Conversation{}, false
	}
	return s.conversations[i], true
}

// ActiveConversation returns the open conversation. For peers in the list the
// list entry is returned so preview fields are current.
func (s *Store) ActiveConversation() (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active, ok := s.active.Load()
	if !ok {
		return Conversation{}, false
	}
	if i, found := s.byPeer[active.PeerID]; found {
		return s.conversations[i], true
	}
	return active, true
}

// Messages returns a copy of the open conversation's message list.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// UnreadTotal sums unread counters across the list.
func (s *Store) UnreadTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, c := range s.conversations {
		total += c.UnreadCount
	}
	return total
}

// ApplyIncoming routes a pushed message against the current active slot.
// Messages from the active peer are appended and leave the unread counter at
// zero; messages from any other known peer bump its unread counter. Unknown
// peers get no new conversation entry.
func (s *Store) ApplyIncoming(msg Message) IncomingResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := msg.Timestamp
	if at.IsZero() {
		at = s.now()
	}

	var res IncomingResult
	active, hasActive := s.active.Load()
	res.Open = hasActive && active.PeerID == msg.SenderID

	if res.Open {
		s.messages = append(s.messages, msg)
		if _, listed := s.byPeer[active.PeerID]; !listed {
			active.LastMessageText = msg.Content
			active.LastMessageAt = at
			s.active.Update(active)
			res.Conversation = active
		}
	}

	if i, ok := s.byPeer[msg.SenderID]; ok {
		c := &s.conversations[i]
		c.LastMessageText = msg.Content
		c.LastMessageAt = at
		if res.Open {
			c.UnreadCount = 0
		} else {
			c.UnreadCount++
		}
		res.Known = true
		res.Conversation = *c
	}
	return res
}

// AppendOptimistic appends a locally composed message to the open list before
// the network confirms it and refreshes the open conversation's preview. It
// reports false, and appends nothing, when peerID is no longer the open peer.
func (s *Store) AppendOptimistic(peerID string, msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, ok := s.active.Load()
	if !ok || active.PeerID != peerID {
		return false
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	s.messages = append(s.messages, msg)

	if i, listed := s.byPeer[active.PeerID]; listed {
		s.conversations[i].LastMessageText = msg.Content
		s.conversations[i].LastMessageAt = msg.Timestamp
	} else {
		active.LastMessageText = msg.Content
		active.LastMessageAt = msg.Timestamp
		s.active.Update(active)
	}
	return true
}

// Select opens a conversation: the slot is written, its unread counter is
// zeroed and the open message list is emptied until history arrives. It
// returns the selected conversation, the unread count it had and the
// selection generation to hand to ReplaceMessages.
func (s *Store) Select(c Conversation) (Conversation, int, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevUnread := c.UnreadCount
	if i, ok := s.byPeer[c.PeerID]; ok {
		prevUnread = s.conversations[i].UnreadCount
		s.conversations[i].UnreadCount = 0
		c = s.conversations[i]
	}
	c.UnreadCount = 0
	gen := s.active.Set(c)
	s.messages = nil
	return c, prevUnread, gen
}

// StartNew opens a thread with a peer. When a conversation for the peer
// exists it is returned with existing=true and nothing changes; the caller
// selects it. Otherwise a placeholder conversation becomes active with an
// empty message list.
func (s *Store) StartNew(p Profile) (c Conversation, existing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.byPeer[p.UserID]; ok {
		return s.conversations[i], true
	}
	c = Conversation{
		ConversationID: PlaceholderPrefix + p.UserID,
		PeerID:         p.UserID,
		DisplayName:    p.DisplayName,
		AvatarURL:      p.AvatarURL,
	}
	s.active.Set(c)
	s.messages = []Message{}
	return c, false
}

// ReplaceMessages installs history fetched for the selection gen returned by
// Select. The result is discarded, and false returned, once another selection
// was made, even of the same peer.
func (s *Store) ReplaceMessages(gen uint64, msgs []Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active.Gen() != gen {
		return false
	}
	s.messages = make([]Message, len(msgs))
	copy(s.messages, msgs)
	return true
}

// MarkRead zeroes the unread counter of the conversation with the given id
// after a successful read receipt.
func (s *Store) MarkRead(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.conversations {
		if s.conversations[i].ConversationID == conversationID {
			s.conversations[i].UnreadCount = 0
			return
		}
	}
}

// ClearActive closes the open conversation.
func (s *Store) ClearActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active.Clear()
	s.messages = nil
}

// Reset discards everything, including the active slot.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = nil
	s.byPeer = make(map[string]int)
	s.messages = nil
	s.active.Clear()
}
