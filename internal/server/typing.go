package server

import (
	"sort"
	"sync"
)

// TypingTracker maps a connection id to its username while that connection
// is signaling "typing". Entries are not time-boxed server-side; the
// disconnect handler clears them so an unclean disconnect never leaves a
// stale entry behind.
type TypingTracker struct {
	mu     sync.RWMutex
	typing map[string]string
}

func NewTypingTracker() *TypingTracker {
	return &TypingTracker{
		typing: make(map[string]string),
	}
}

func (t *TypingTracker) Set(connId, username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.typing[connId] = username
}

func (t *TypingTracker) Clear(connId string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.typing[connId]; !ok {
		return false
	}
	delete(t.typing, connId)
	return true
}

// InRoom returns the usernames currently typing in the given room, sorted.
func (t *TypingTracker) InRoom(room string, reg *Registry) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var usernames []string
	for connId, username := range t.typing {
		if user, ok := reg.Get(connId); ok && user.Room == room {
			usernames = append(usernames, username)
		}
	}
	sort.Strings(usernames)
	return usernames
}
