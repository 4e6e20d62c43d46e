package chat

import "sync/atomic"

type activeValue struct {
	conv Conversation
	gen  uint64
}

// ActiveSlot is the single mutable cell holding the conversation currently on
// screen. Selection writes it; the inbound path reads it on every frame, so a
// handler registered once per connection always routes against the current
// selection. Every selection gets a new generation, so results requested for
// an earlier selection of the same peer can be told apart.
type ActiveSlot struct {
	p   atomic.Pointer[activeValue]
	gen atomic.Uint64
}

// Load returns a copy of the active conversation, if any.
func (s *ActiveSlot) Load() (Conversation, bool) {
	v := s.p.Load()
	if v == nil {
		return Conversation{}, false
	}
	return v.conv, true
}

// PeerID returns the active peer or "" when nothing is open.
func (s *ActiveSlot) PeerID() string {
	if v := s.p.Load(); v != nil {
		return v.conv.PeerID
	}
	return ""
}

// Gen returns the generation of the current selection, 0 when nothing is open.
func (s *ActiveSlot) Gen() uint64 {
	if v := s.p.Load(); v != nil {
		return v.gen
	}
	return 0
}

// Set makes c the active conversation under a new generation and returns it.
func (s *ActiveSlot) Set(c Conversation) uint64 {
	gen := s.gen.Add(1)
	s.p.Store(&activeValue{conv: c, gen: gen})
	return gen
}

// Update refreshes the fields of the active conversation without starting a
// new selection. It is a no-op when c is not the active peer.
func (s *ActiveSlot) Update(c Conversation) {
	if v := s.p.Load(); v != nil && v.conv.PeerID == c.PeerID {
		s.p.Store(&activeValue{conv: c, gen: v.gen})
	}
}

// Clear empties the slot.
func (s *ActiveSlot) Clear() {
	s.gen.Add(1)
	s.p.Store(nil)
}
