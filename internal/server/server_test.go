package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatserver/internal/config"
	"chatserver/internal/stats"
	"chatserver/internal/testutil"
)

func newTestChatServer(t *testing.T) (*ChatServer, *stats.MockStatsUpdater) {
	t.Helper()

	cfg, err := config.NewConfig("localhost:8080", []string{"general", "random"}, nil)
	require.NoError(t, err, "expected config to be valid")
	cfg.PurgeDelay = 10 * time.Millisecond

	mockStats := &stats.MockStatsUpdater{}
	mockStats.On("RegisterMetric", mock.Anything).Return()
	mockStats.On("Incr", mock.Anything).Return().Maybe()
	mockStats.On("Decr", mock.Anything).Return().Maybe()

	cs, err := NewChatServer(testutil.TestLogger(t), cfg, mockStats)
	require.NoError(t, err, "expected server to be created")

	return cs, mockStats
}

// newTestClient builds a client without a websocket connection. Handlers
// only touch the send queue, never the connection.
func newTestClient(t *testing.T, id string) *Client {
	t.Helper()

	return &Client{
		id:   id,
		log:  testutil.TestLogger(t),
		send: make(chan *ServerEvent, sendQueueSize),
		stop: make(chan struct{}),
	}
}

// drainEvents empties the client's send queue and returns what was queued.
func drainEvents(c *Client) []*ServerEvent {
	var events []*ServerEvent
	for {
		select {
		case ev := <-c.send:
			events = append(events, ev)
		default:
			return events
		}
	}
}

// joinRoom registers the connection and runs a join, discarding the
// resulting events so tests start from a clean queue.
func joinRoom(t *testing.T, cs *ChatServer, c *Client, username, room string) {
	t.Helper()

	cs.addClient(c)
	cs.handleJoin(&ClientEvent{
		BaseEvent: BaseEvent{Id: 1, Timestamp: Now()},
		Join:      &JoinRequest{Username: username, Room: room},
		client:    c,
	})

	user, ok := cs.registry.Get(c.id)
	require.True(t, ok, "expected user record after join")
	require.Equal(t, room, user.Room, "expected user to be in the joined room")

	drainEvents(c)
}

func TestNewChatServer(t *testing.T) {
	cfg, err := config.NewConfig("localhost:8080", []string{"general"}, nil)
	require.NoError(t, err, "expected config to be valid")

	mockStats := &stats.MockStatsUpdater{}
	mockStats.On("RegisterMetric", stats.NumConnections).Return()
	mockStats.On("RegisterMetric", stats.NumOnlineUsers).Return()
	mockStats.On("RegisterMetric", stats.NumMessages).Return()
	mockStats.On("RegisterMetric", stats.NumPrivateMessages).Return()

	cs, err := NewChatServer(testutil.TestLogger(t), cfg, mockStats)
	assert.NoError(t, err, "expected no error creating server")
	assert.NotNil(t, cs.registry, "expected registry to be initialized")
	assert.NotNil(t, cs.rooms, "expected room store to be initialized")
	assert.NotNil(t, cs.typing, "expected typing tracker to be initialized")
	assert.NotNil(t, cs.conversations, "expected conversation store to be initialized")
	assert.True(t, cs.rooms.Exists("general"), "expected configured room to be provisioned")
	mockStats.AssertExpectations(t)
}

func TestRunShutdown(t *testing.T) {
	cs, _ := newTestChatServer(t)

	go cs.Run()

	client := newTestClient(t, "conn-1")
	cs.RegisterClient(client)

	assert.Eventually(t, func() bool {
		_, _, connections := cs.Counts()
		return connections == 1
	}, time.Second, 5*time.Millisecond, "expected client to be registered")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, cs.Shutdown(ctx), "expected clean shutdown")

	select {
	case <-client.stop:
	default:
		t.Error("expected client to be stopped on shutdown")
	}
}

func TestShutdownTimeout(t *testing.T) {
	cs, _ := newTestChatServer(t)

	// Run is never started, so done never closes.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, cs.Shutdown(ctx), context.DeadlineExceeded, "expected shutdown to time out")
}

func TestAddRemoveClient(t *testing.T) {
	cs, mockStats := newTestChatServer(t)

	client := newTestClient(t, "conn-1")
	cs.addClient(client)

	assert.Contains(t, cs.clients, client, "expected client in client set")
	assert.Same(t, client, cs.byConn["conn-1"], "expected connection index to point at client")

	cs.removeClient(client)
	assert.NotContains(t, cs.clients, client, "expected client removed from client set")
	assert.NotContains(t, cs.byConn, "conn-1", "expected connection index entry removed")

	mockStats.AssertCalled(t, "Incr", stats.NumConnections)
	mockStats.AssertCalled(t, "Decr", stats.NumConnections)
}

func TestRemoveClientKeepsRebinding(t *testing.T) {
	cs, _ := newTestChatServer(t)

	old := newTestClient(t, "conn-1")
	cs.addClient(old)

	// a reconnecting client claimed the same connection id
	replacement := newTestClient(t, "conn-1")
	cs.byConn["conn-1"] = replacement

	cs.removeClient(old)
	assert.Same(t, replacement, cs.byConn["conn-1"],
		"expected stale client removal to leave the rebound entry intact")
}

func TestProcessRecoversFromPanic(t *testing.T) {
	cs, _ := newTestChatServer(t)

	client := newTestClient(t, "conn-1")
	joinRoom(t, cs, client, "alice", "general")

	// force a handler panic; the loop must answer the caller and survive
	cs.rooms = nil
	cs.process(&ClientEvent{
		BaseEvent: BaseEvent{Id: 7, Timestamp: Now()},
		Publish:   &PublishRequest{Content: "hello"},
		client:    client,
	})

	events := drainEvents(client)
	require.Len(t, events, 1, "expected an error response after the panic")
	require.NotNil(t, events[0].Response, "expected a response event")
	assert.Equal(t, http.StatusInternalServerError, events[0].Response.ResponseCode,
		"expected an internal server error")
}

func TestRoomSummaries(t *testing.T) {
	cs, _ := newTestChatServer(t)

	client := newTestClient(t, "conn-1")
	joinRoom(t, cs, client, "alice", "general")
	cs.handlePublish(&ClientEvent{
		BaseEvent: BaseEvent{Id: 2, Timestamp: Now()},
		Publish:   &PublishRequest{Content: "hello"},
		client:    client,
	})

	summaries := cs.RoomSummaries()
	require.Len(t, summaries, 2, "expected one summary per configured room")
	assert.Equal(t, "general", summaries[0].Name, "expected summaries sorted by name")
	assert.Equal(t, 1, summaries[0].UserCount, "expected member count to match")
	assert.Equal(t, 1, summaries[0].MessageCount, "expected message count to match")
	assert.Equal(t, "random", summaries[1].Name, "expected summaries sorted by name")
	assert.Zero(t, summaries[1].UserCount, "expected empty room to have no members")
}

func TestRecentMessagesDefaultLimit(t *testing.T) {
	cs, _ := newTestChatServer(t)

	client := newTestClient(t, "conn-1")
	joinRoom(t, cs, client, "alice", "general")

	for i := 0; i < cs.cfg.HistoryLimit+10; i++ {
		cs.handlePublish(&ClientEvent{
			BaseEvent: BaseEvent{Id: i + 2, Timestamp: Now()},
			Publish:   &PublishRequest{Content: "hello"},
			client:    client,
		})
	}

	msgs, ok := cs.RecentMessages("general", 0)
	assert.True(t, ok, "expected room to exist")
	assert.Len(t, msgs, cs.cfg.HistoryLimit, "expected default limit to apply")

	_, ok = cs.RecentMessages("missing", 0)
	assert.False(t, ok, "expected unknown room to report not found")
}

func TestOnlineUsers(t *testing.T) {
	cs, _ := newTestChatServer(t)

	client := newTestClient(t, "conn-1")
	joinRoom(t, cs, client, "alice", "general")

	users, ok := cs.OnlineUsers("general")
	assert.True(t, ok, "expected room to exist")
	require.Len(t, users, 1, "expected one online user")
	assert.Equal(t, "alice", users[0].Username, "expected username to match")

	_, ok = cs.OnlineUsers("missing")
	assert.False(t, ok, "expected unknown room to report not found")
}

func TestPurgeAfterDisconnect(t *testing.T) {
	cs, _ := newTestChatServer(t)
	go cs.Run()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		cs.Shutdown(ctx)
	}()

	client := newTestClient(t, "conn-1")
	joinRoom(t, cs, client, "alice", "general")

	cs.deRegisterChan <- client

	assert.Eventually(t, func() bool {
		_, ok := cs.registry.Get("conn-1")
		return !ok
	}, time.Second, 5*time.Millisecond, "expected offline record to be purged after the grace period")
}

func TestPurgeSkipsReconnectedUser(t *testing.T) {
	cs, _ := newTestChatServer(t)

	client := newTestClient(t, "conn-1")
	joinRoom(t, cs, client, "alice", "general")

	cs.handleDisconnect(client)
	require.NotNil(t, drainEvents(client), "expected disconnect notifications")

	// reconnect lands before the purge timer fires
	cs.registry.MarkOnline("conn-1")
	cs.handlePurge("conn-1")

	user, ok := cs.registry.Get("conn-1")
	assert.True(t, ok, "expected record to survive the purge")
	assert.True(t, user.IsOnline, "expected user to remain online")
}
