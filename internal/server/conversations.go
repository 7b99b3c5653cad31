package server

import (
	"sync"

	"chatserver/internal/types"
)

// ConversationStore holds private message history, keyed by the sorted pair
// of participant connection ids. Bounded the same way room history is.
type ConversationStore struct {
	mu            sync.Mutex
	cap           int
	retain        int
	seq           int
	conversations map[string][]*types.PrivateMessage
}

func NewConversationStore(cap, retain int) *ConversationStore {
	return &ConversationStore{
		cap:           cap,
		retain:        retain,
		conversations: make(map[string][]*types.PrivateMessage),
	}
}

func conversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// Append assigns the message its id and stores it, evicting the oldest
// messages once the conversation exceeds the hard cap.
func (s *ConversationStore) Append(pm *types.PrivateMessage) *types.PrivateMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	pm.Id = s.seq

	key := conversationKey(pm.FromId, pm.ToId)
	msgs := append(s.conversations[key], pm)
	if len(msgs) > s.cap {
		retained := make([]*types.PrivateMessage, s.retain)
		copy(retained, msgs[len(msgs)-s.retain:])
		msgs = retained
	}
	s.conversations[key] = msgs

	return pm
}

// Between returns the conversation between two connections, oldest first.
func (s *ConversationStore) Between(a, b string, limit int) []*types.PrivateMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.conversations[conversationKey(a, b)]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]*types.PrivateMessage, len(msgs))
	copy(out, msgs)
	return out
}
