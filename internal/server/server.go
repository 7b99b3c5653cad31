package server

import (
	"context"
	"log"
	"sync"
	"time"

	"chatserver/internal/config"
	"chatserver/internal/stats"
	"chatserver/internal/types"
)

const eventQueueSize = 1024

// ChatServer owns the connection registry, room store, typing tracker and
// conversation ledger. A single Run goroutine consumes every inbound event
// and runs each handler to completion before the next, so transitions that
// touch several stores (room changes, disconnects) are atomic with respect
// to each other. The stores carry their own locks only so the read-only
// HTTP handlers can read them; the loop remains the sole writer.
type ChatServer struct {
	log            *log.Logger
	cfg            *config.Config
	stats          stats.StatsProvider
	registry       *Registry
	rooms          *RoomStore
	typing         *TypingTracker
	conversations  *ConversationStore
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	byConn         map[string]*Client
	eventChan      chan *ClientEvent
	registerChan   chan *Client
	deRegisterChan chan *Client
	purgeChan      chan string
	stop           chan struct{}
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, cfg *config.Config, st stats.StatsProvider) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		cfg:            cfg,
		stats:          st,
		registry:       NewRegistry(),
		rooms:          NewRoomStore(cfg.Rooms, cfg.HistoryCap, cfg.HistoryRetain),
		typing:         NewTypingTracker(),
		conversations:  NewConversationStore(cfg.HistoryCap, cfg.HistoryRetain),
		clients:        make(map[*Client]struct{}),
		byConn:         make(map[string]*Client),
		eventChan:      make(chan *ClientEvent, eventQueueSize),
		registerChan:   make(chan *Client, 64),
		deRegisterChan: make(chan *Client, 64),
		purgeChan:      make(chan string, 64),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	for _, name := range []string{
		stats.NumConnections,
		stats.NumOnlineUsers,
		stats.NumMessages,
		stats.NumPrivateMessages,
	} {
		st.RegisterMetric(name)
	}

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case ev := <-cs.eventChan:
			cs.process(ev)
		case client := <-cs.registerChan:
			cs.addClient(client)
		case client := <-cs.deRegisterChan:
			cs.handleDisconnect(client)
		case connId := <-cs.purgeChan:
			cs.handlePurge(connId)
		case <-cs.stop:
			cs.log.Println("stopping event loop")
			cs.stopAllClients()
			close(cs.done)
			return
		}
	}
}

// process dispatches one event, recovering from a panicking handler so a
// fault in one connection's event never takes down the process or the loop.
func (cs *ChatServer) process(ev *ClientEvent) {
	defer func() {
		if r := recover(); r != nil {
			cs.log.Printf("panic handling event from %q: %v", ev.client.id, r)
			ev.client.queueMessage(ErrInternalError(ev.Id))
		}
	}()

	switch {
	case ev.Join != nil:
		cs.handleJoin(ev)
	case ev.Publish != nil:
		cs.handlePublish(ev)
	case ev.Typing != nil:
		cs.handleTyping(ev)
	case ev.ChangeRoom != nil:
		cs.handleChangeRoom(ev)
	case ev.React != nil:
		cs.handleReact(ev)
	case ev.Read != nil:
		cs.handleRead(ev)
	case ev.Reconnect != nil:
		cs.handleReconnect(ev)
	case ev.Private != nil:
		cs.handlePrivate(ev)
	}
}

// RegisterClient hands a freshly upgraded connection to the event loop.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.registerChan <- c
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	cs.clients[c] = struct{}{}
	cs.clientsLock.Unlock()

	cs.byConn[c.id] = c
	cs.stats.Incr(stats.NumConnections)
	cs.log.Printf("connection %q registered", c.id)
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	delete(cs.clients, c)
	cs.clientsLock.Unlock()

	if cur, ok := cs.byConn[c.id]; ok && cur == c {
		delete(cs.byConn, c.id)
	}
	cs.stats.Decr(stats.NumConnections)
}

func (cs *ChatServer) stopAllClients() {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	for c := range cs.clients {
		c.stopClient()
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")
	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// schedulePurge arms the deferred deletion of an offline user record. The
// timer is never canceled; the purge handler re-checks online status at
// fire time, which tolerates overlapping disconnect/reconnect cycles.
func (cs *ChatServer) schedulePurge(connId string) {
	time.AfterFunc(cs.cfg.PurgeDelay, func() {
		select {
		case cs.purgeChan <- connId:
		case <-cs.done:
		}
	})
}

func (cs *ChatServer) handlePurge(connId string) {
	if cs.registry.PurgeIfOffline(connId) {
		cs.log.Printf("purged offline user record for %q", connId)
	}
}

// RoomSummaries lists the configured rooms with member and message counts.
func (cs *ChatServer) RoomSummaries() []types.RoomSummary {
	names := cs.rooms.Names()
	summaries := make([]types.RoomSummary, 0, len(names))
	for _, name := range names {
		summaries = append(summaries, types.RoomSummary{
			Name:         name,
			UserCount:    cs.rooms.MemberCount(name),
			MessageCount: cs.rooms.MessageCount(name),
		})
	}
	return summaries
}

// RecentMessages returns the last limit messages of a room, oldest first.
func (cs *ChatServer) RecentMessages(room string, limit int) ([]*types.Message, bool) {
	if limit <= 0 {
		limit = cs.cfg.HistoryLimit
	}
	return cs.rooms.Recent(room, limit)
}

// OnlineUsers returns the online users of a room.
func (cs *ChatServer) OnlineUsers(room string) ([]types.User, bool) {
	if !cs.rooms.Exists(room) {
		return nil, false
	}
	return cs.registry.OnlineInRoom(room), true
}

// Counts reports registry, room and connection totals for the health probe.
func (cs *ChatServer) Counts() (users, rooms, connections int) {
	cs.clientsLock.Lock()
	connections = len(cs.clients)
	cs.clientsLock.Unlock()

	return cs.registry.Count(), len(cs.rooms.Names()), connections
}
