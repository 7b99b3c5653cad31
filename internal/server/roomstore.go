package server

import (
	"slices"
	"sort"
	"sync"

	"chatserver/internal/types"
)

// RoomStore holds the bounded message history and member set for every
// configured room. Rooms are provisioned once at startup and never
// destroyed; there is no dynamic room creation.
type RoomStore struct {
	mu     sync.RWMutex
	cap    int
	retain int
	rooms  map[string]*roomState
}

type roomState struct {
	messages []*types.Message
	members  map[string]struct{}
	// seq is the per-room message id sequence. Ids are assigned under the
	// store lock so two messages accepted in the same millisecond still
	// sort deterministically.
	seq int
}

func NewRoomStore(names []string, cap, retain int) *RoomStore {
	rooms := make(map[string]*roomState, len(names))
	for _, name := range names {
		rooms[name] = &roomState{
			members: make(map[string]struct{}),
		}
	}

	return &RoomStore{
		cap:    cap,
		retain: retain,
		rooms:  rooms,
	}
}

func (s *RoomStore) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[name]
	return ok
}

func (s *RoomStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.rooms))
	for name := range s.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Append assigns the message its id, stores it and evicts the oldest
// messages back to the retained window if the hard cap is exceeded. The
// returned message is a snapshot safe to hand to the write pumps.
func (s *RoomStore) Append(msg *types.Message) (*types.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[msg.Room]
	if !ok {
		return nil, false
	}

	room.seq++
	msg.Id = room.seq
	room.messages = append(room.messages, msg)

	if len(room.messages) > s.cap {
		retained := make([]*types.Message, s.retain)
		copy(retained, room.messages[len(room.messages)-s.retain:])
		room.messages = retained
	}

	return cloneMessage(msg), true
}

// Recent returns up to limit messages, oldest first.
func (s *RoomStore) Recent(name string, limit int) ([]*types.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[name]
	if !ok {
		return nil, false
	}

	msgs := room.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]*types.Message, len(msgs))
	for i, msg := range msgs {
		out[i] = cloneMessage(msg)
	}
	return out, true
}

func (s *RoomStore) AddMember(name, connId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[name]
	if !ok {
		return false
	}
	room.members[connId] = struct{}{}
	return true
}

func (s *RoomStore) RemoveMember(name, connId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[name]
	if !ok {
		return false
	}
	if _, ok := room.members[connId]; !ok {
		return false
	}
	delete(room.members, connId)
	return true
}

func (s *RoomStore) Members(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[name]
	if !ok {
		return nil
	}

	members := make([]string, 0, len(room.members))
	for connId := range room.members {
		members = append(members, connId)
	}
	return members
}

func (s *RoomStore) MemberCount(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[name]
	if !ok {
		return 0
	}
	return len(room.members)
}

func (s *RoomStore) MessageCount(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[name]
	if !ok {
		return 0
	}
	return len(room.messages)
}

// SetReaction replaces any prior reaction by the same user on the message,
// last write wins. A linear scan is fine at this history size.
func (s *RoomStore) SetReaction(name string, msgId int, reaction types.Reaction) (*types.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.findMessage(name, msgId)
	if !ok {
		return nil, false
	}

	msg.Reactions = slices.DeleteFunc(msg.Reactions, func(r types.Reaction) bool {
		return r.UserId == reaction.UserId
	})
	msg.Reactions = append(msg.Reactions, reaction)

	return cloneMessage(msg), true
}

// MarkRead records that connId has read the message. Returns the sender's
// connection id so the router can notify them; changed is false if the
// message is absent or already marked read by this connection.
func (s *RoomStore) MarkRead(name string, msgId int, connId string) (senderId string, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.findMessage(name, msgId)
	if !ok {
		return "", false
	}
	if slices.Contains(msg.ReadBy, connId) {
		return "", false
	}

	msg.ReadBy = append(msg.ReadBy, connId)
	return msg.SenderId, true
}

func (s *RoomStore) findMessage(name string, msgId int) (*types.Message, bool) {
	room, ok := s.rooms[name]
	if !ok {
		return nil, false
	}

	for _, msg := range room.messages {
		if msg.Id == msgId {
			return msg, true
		}
	}
	return nil, false
}

// FindMessage returns a snapshot of the message, if present.
func (s *RoomStore) FindMessage(name string, msgId int) (*types.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.findMessage(name, msgId)
	if !ok {
		return nil, false
	}
	return cloneMessage(msg), true
}

// cloneMessage copies the message and its mutable slices, so broadcast
// payloads are not racy with later in-place reaction and read updates.
func cloneMessage(m *types.Message) *types.Message {
	cp := *m
	cp.Reactions = slices.Clone(m.Reactions)
	cp.ReadBy = slices.Clone(m.ReadBy)
	return &cp
}
