package server

import (
	"strings"

	"chatserver/internal/stats"
	"chatserver/internal/types"
)

// handleJoin moves a connection from anonymous to joined: validate, create
// the user record, add room membership, send history to the caller, then
// notify the room. Validation failures go to the caller only and never
// touch shared state.
func (cs *ChatServer) handleJoin(ev *ClientEvent) {
	c := ev.client
	join := ev.Join

	if !cs.rooms.Exists(join.Room) {
		c.queueMessage(ErrValidation(ev.Id, "room does not exist"))
		return
	}

	prior, rejoin := cs.registry.Get(c.id)

	user, err := cs.registry.Register(c.id, join.Username, join.Room)
	if err != nil {
		c.queueMessage(ErrValidation(ev.Id, err.Error()))
		return
	}

	if rejoin {
		// stale membership from a previous join on the same connection
		cs.rooms.RemoveMember(prior.Room, c.id)
	} else {
		cs.stats.Incr(stats.NumOnlineUsers)
	}
	cs.rooms.AddMember(join.Room, c.id)

	c.queueMessage(NoErrOK(ev.Id, map[string]any{
		"user": user,
		"room": join.Room,
	}))

	cs.sendHistory(c, join.Room)

	cs.broadcastRoom(join.Room, &ServerEvent{
		UserJoined: &PresenceNotice{
			Username:    user.Username,
			Timestamp:   Now(),
			OnlineCount: len(cs.registry.OnlineInRoom(join.Room)),
		},
	})
	cs.emitUserList(join.Room)

	cs.log.Printf("%q joined room %q", user.Username, join.Room)
}

// handlePublish accepts a text or file message, stores it with eviction,
// acks the sender and fans the message out to the room (sender included).
func (cs *ChatServer) handlePublish(ev *ClientEvent) {
	c := ev.client
	pub := ev.Publish

	user, ok := cs.registry.Get(c.id)
	if !ok {
		c.queueMessage(ErrNotAuthenticated(ev.Id))
		return
	}

	kind := types.MessageText
	if pub.File != nil {
		kind = types.MessageFile
	} else if strings.TrimSpace(pub.Content) == "" {
		c.queueMessage(ErrInvalidMessage(ev.Id))
		return
	}

	msg := &types.Message{
		Kind:      kind,
		SenderId:  c.id,
		Sender:    user.Username,
		Room:      user.Room,
		Content:   pub.Content,
		File:      pub.File,
		Timestamp: ev.Timestamp,
		ReadBy:    []string{c.id},
	}

	stored, ok := cs.rooms.Append(msg)
	if !ok {
		cs.log.Printf("send_message: room %q missing for user %q", user.Room, user.Username)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	if pub.TempId != "" {
		c.queueMessage(&ServerEvent{
			BaseEvent: BaseEvent{Id: ev.Id, Timestamp: Now()},
			DeliveryAck: &DeliveryAck{
				TempId:    pub.TempId,
				MessageId: stored.Id,
			},
		})
	}

	cs.broadcastRoom(user.Room, &ServerEvent{Message: stored})
	cs.stats.Incr(stats.NumMessages)
}

// handleTyping updates the typing tracker and rebroadcasts the room's
// typing list. Events from connections without a user record race with
// disconnects, so they are dropped silently.
func (cs *ChatServer) handleTyping(ev *ClientEvent) {
	c := ev.client

	user, ok := cs.registry.Get(c.id)
	if !ok {
		cs.log.Printf("typing: dropping event from unjoined connection %q", c.id)
		return
	}

	if ev.Typing.IsTyping {
		cs.typing.Set(c.id, user.Username)
	} else {
		cs.typing.Clear(c.id)
	}

	cs.emitTypingList(user.Room)
}

// handleChangeRoom atomically moves a user between rooms: membership, the
// user record and both rooms' notifications all happen in this one handler
// invocation. Unknown targets and no-op moves are dropped silently, but
// logged.
func (cs *ChatServer) handleChangeRoom(ev *ClientEvent) {
	c := ev.client
	newRoom := ev.ChangeRoom.Room

	user, ok := cs.registry.Get(c.id)
	if !ok {
		cs.log.Printf("change_room: dropping event from unjoined connection %q", c.id)
		return
	}
	if !cs.rooms.Exists(newRoom) {
		cs.log.Printf("change_room: unknown room %q requested by %q", newRoom, user.Username)
		return
	}
	if newRoom == user.Room {
		return
	}

	oldRoom := user.Room
	cs.rooms.RemoveMember(oldRoom, c.id)
	cs.rooms.AddMember(newRoom, c.id)
	cs.registry.SetRoom(c.id, newRoom)
	if cs.typing.Clear(c.id) {
		cs.emitTypingList(oldRoom)
	}

	cs.broadcastRoom(oldRoom, &ServerEvent{
		UserLeft: &PresenceNotice{
			Username:    user.Username,
			Timestamp:   Now(),
			OnlineCount: len(cs.registry.OnlineInRoom(oldRoom)),
		},
	})
	cs.broadcastRoom(newRoom, &ServerEvent{
		UserJoined: &PresenceNotice{
			Username:    user.Username,
			Timestamp:   Now(),
			OnlineCount: len(cs.registry.OnlineInRoom(newRoom)),
		},
	})

	cs.sendHistory(c, newRoom)

	cs.emitUserList(oldRoom)
	cs.emitUserList(newRoom)

	cs.log.Printf("%q moved from %q to %q", user.Username, oldRoom, newRoom)
}

// handleReact replaces the caller's prior reaction on the message, if any,
// and broadcasts the updated message to the room. Missing messages are a
// silent no-op; they race with history eviction.
func (cs *ChatServer) handleReact(ev *ClientEvent) {
	c := ev.client
	react := ev.React

	user, ok := cs.registry.Get(c.id)
	if !ok {
		cs.log.Printf("react_to_message: dropping event from unjoined connection %q", c.id)
		return
	}

	updated, ok := cs.rooms.SetReaction(user.Room, react.MessageId, types.Reaction{
		UserId:    c.id,
		Username:  user.Username,
		Emoji:     react.Emoji,
		Timestamp: ev.Timestamp,
	})
	if !ok {
		cs.log.Printf("react_to_message: message %d not found in room %q", react.MessageId, user.Room)
		return
	}

	cs.broadcastRoom(user.Room, &ServerEvent{MessageUpdated: updated})
}

// handleRead marks the message read by the caller and notifies the original
// sender only. Marking twice is a no-op.
func (cs *ChatServer) handleRead(ev *ClientEvent) {
	c := ev.client

	user, ok := cs.registry.Get(c.id)
	if !ok {
		cs.log.Printf("mark_message_read: dropping event from unjoined connection %q", c.id)
		return
	}

	senderId, changed := cs.rooms.MarkRead(user.Room, ev.Read.MessageId, c.id)
	if !changed {
		return
	}

	cs.sendTo(senderId, &ServerEvent{
		MessageRead: &ReadNotice{
			MessageId:  ev.Read.MessageId,
			ReadAt:     Now(),
			ReaderName: user.Username,
		},
	})
}

// handleReconnect rebinds a fresh connection to a prior identity that is
// still within its grace period. Only valid before the connection joins;
// a purged or still-online record means the client must join again.
func (cs *ChatServer) handleReconnect(ev *ClientEvent) {
	c := ev.client
	priorId := ev.Reconnect.ConnectionId

	if _, ok := cs.registry.Get(c.id); ok {
		c.queueMessage(ErrValidation(ev.Id, "connection already joined"))
		return
	}

	record, ok := cs.registry.Get(priorId)
	if !ok || record.IsOnline {
		c.queueMessage(ErrValidation(ev.Id, "unknown or active identity, join again"))
		return
	}

	if cur, ok := cs.byConn[c.id]; ok && cur == c {
		delete(cs.byConn, c.id)
	}
	c.id = priorId
	cs.byConn[priorId] = c

	cs.registry.MarkOnline(priorId)
	cs.rooms.AddMember(record.Room, priorId)
	cs.stats.Incr(stats.NumOnlineUsers)

	user, _ := cs.registry.Get(priorId)
	c.queueMessage(NoErrOK(ev.Id, map[string]any{
		"user": user,
		"room": user.Room,
	}))

	cs.broadcastRoom(user.Room, &ServerEvent{
		UserReconnected: &PresenceNotice{
			Username:    user.Username,
			Timestamp:   Now(),
			OnlineCount: len(cs.registry.OnlineInRoom(user.Room)),
		},
	})
	cs.emitUserList(user.Room)

	cs.log.Printf("%q reconnected to room %q", user.Username, user.Room)
}

// handlePrivate delivers a direct message to one recipient, storing it in
// the conversation ledger and acking the sender.
func (cs *ChatServer) handlePrivate(ev *ClientEvent) {
	c := ev.client
	priv := ev.Private

	from, ok := cs.registry.Get(c.id)
	if !ok {
		c.queueMessage(ErrNotAuthenticated(ev.Id))
		return
	}
	to, ok := cs.registry.Get(priv.To)
	if !ok {
		c.queueMessage(ErrUserNotFound(ev.Id))
		return
	}
	if strings.TrimSpace(priv.Content) == "" {
		c.queueMessage(ErrInvalidMessage(ev.Id))
		return
	}

	pm := cs.conversations.Append(&types.PrivateMessage{
		From:      from.Username,
		FromId:    c.id,
		To:        to.Username,
		ToId:      to.Id,
		Content:   priv.Content,
		Timestamp: ev.Timestamp,
	})

	if priv.TempId != "" {
		c.queueMessage(&ServerEvent{
			BaseEvent: BaseEvent{Id: ev.Id, Timestamp: Now()},
			PrivateAck: &DeliveryAck{
				TempId:    priv.TempId,
				MessageId: pm.Id,
			},
		})
	}

	out := &ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Private:   pm,
	}
	c.queueMessage(out)
	cs.sendTo(to.Id, out)
	cs.stats.Incr(stats.NumPrivateMessages)
}

// handleDisconnect marks the user offline, removes membership and typing
// state, notifies the room and schedules the deferred purge. The user
// record survives the grace period so a timely reconnect can reclaim it.
func (cs *ChatServer) handleDisconnect(c *Client) {
	cs.removeClient(c)
	c.stopClient()

	user, ok := cs.registry.Get(c.id)
	if !ok || !user.IsOnline {
		return
	}

	cs.registry.MarkOffline(c.id)
	cs.rooms.RemoveMember(user.Room, c.id)
	cs.typing.Clear(c.id)
	cs.stats.Decr(stats.NumOnlineUsers)

	cs.broadcastRoom(user.Room, &ServerEvent{
		UserLeft: &PresenceNotice{
			Username:    user.Username,
			Timestamp:   Now(),
			OnlineCount: len(cs.registry.OnlineInRoom(user.Room)),
			Reason:      "disconnect",
		},
	})
	cs.emitTypingList(user.Room)
	cs.emitUserList(user.Room)

	cs.schedulePurge(c.id)

	cs.log.Printf("%q disconnected from room %q", user.Username, user.Room)
}

func (cs *ChatServer) sendHistory(c *Client, room string) {
	history, ok := cs.rooms.Recent(room, cs.cfg.HistoryLimit)
	if !ok {
		return
	}
	if history == nil {
		history = []*types.Message{}
	}

	c.queueMessage(&ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		History: &RoomHistory{
			Room:     room,
			Messages: history,
		},
	})
}

// broadcastRoom enqueues the event on every member connection of a room.
// Enqueueing never blocks; a member with a full send queue misses the
// event rather than stalling the loop.
func (cs *ChatServer) broadcastRoom(room string, ev *ServerEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = Now()
	}

	for _, connId := range cs.rooms.Members(room) {
		if c, ok := cs.byConn[connId]; ok {
			c.queueMessage(ev)
		}
	}
}

// sendTo targets a single connection; absent connections (offline, purged)
// are dropped silently.
func (cs *ChatServer) sendTo(connId string, ev *ServerEvent) bool {
	c, ok := cs.byConn[connId]
	if !ok {
		return false
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = Now()
	}
	return c.queueMessage(ev)
}

func (cs *ChatServer) emitUserList(room string) {
	users := cs.registry.OnlineInRoom(room)
	if users == nil {
		users = []types.User{}
	}
	cs.broadcastRoom(room, &ServerEvent{
		UserList: &UserList{Room: room, Users: users},
	})
}

func (cs *ChatServer) emitTypingList(room string) {
	usernames := cs.typing.InRoom(room, cs.registry)
	if usernames == nil {
		usernames = []string{}
	}
	cs.broadcastRoom(room, &ServerEvent{
		TypingList: &TypingList{Room: room, Usernames: usernames},
	})
}
