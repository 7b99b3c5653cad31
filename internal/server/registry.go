package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"chatserver/internal/types"
)

const maxUsernameLen = 20

var (
	errUsernameEmpty   = errors.New("username is required")
	errUsernameTooLong = fmt.Errorf("username must be at most %d characters", maxUsernameLen)
)

// Registry tracks the user record for every connection that has joined.
// The chat server event loop is the only writer; the read lock exists so
// the read-only HTTP handlers can share it.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*types.User
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]*types.User),
	}
}

// Register creates the user record for a connection, overwriting any stale
// record left behind by a previous connection with the same id.
func (r *Registry) Register(connId, username, room string) (types.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return types.User{}, errUsernameEmpty
	}
	if utf8.RuneCountInString(username) > maxUsernameLen {
		return types.User{}, errUsernameTooLong
	}

	now := time.Now().UTC()
	user := &types.User{
		Id:       connId,
		Username: username,
		Room:     room,
		IsOnline: true,
		JoinedAt: now,
		LastSeen: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[connId] = user

	return *user, nil
}

func (r *Registry) Get(connId string) (types.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[connId]
	if !ok {
		return types.User{}, false
	}
	return *user, true
}

func (r *Registry) MarkOffline(connId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[connId]
	if !ok {
		return false
	}
	user.IsOnline = false
	user.LastSeen = time.Now().UTC()
	return true
}

func (r *Registry) MarkOnline(connId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[connId]
	if !ok {
		return false
	}
	user.IsOnline = true
	user.LastSeen = time.Now().UTC()
	return true
}

func (r *Registry) SetRoom(connId, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[connId]
	if !ok {
		return false
	}
	user.Room = room
	return true
}

// PurgeIfOffline deletes the record only if the user has not reconnected
// since the purge was scheduled.
func (r *Registry) PurgeIfOffline(connId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[connId]
	if !ok || user.IsOnline {
		return false
	}
	delete(r.users, connId)
	return true
}

// OnlineInRoom derives the online-user list for a room, ordered by username
// with the connection id as a tie-break.
func (r *Registry) OnlineInRoom(room string) []types.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var users []types.User
	for _, user := range r.users {
		if user.Room == room && user.IsOnline {
			users = append(users, *user)
		}
	}

	sort.Slice(users, func(i, j int) bool {
		if users[i].Username != users[j].Username {
			return users[i].Username < users[j].Username
		}
		return users[i].Id < users[j].Id
	})

	return users
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
