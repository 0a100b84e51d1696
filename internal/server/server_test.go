package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-roomchat/internal/auth"
	"github.com/npezzotti/go-roomchat/internal/database"
	"github.com/npezzotti/go-roomchat/internal/stats"
	"github.com/npezzotti/go-roomchat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewChatServer(t *testing.T) {
	db := &database.MockRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("RegisterMetric", mock.Anything).Return().Times(5)

	logger := testutil.TestLogger(t)
	cs, err := NewChatServer(logger, db, su, Options{})
	assert.NoError(t, err, "expected no error creating ChatServer")
	require.NotNil(t, cs)
	assert.Equal(t, db, cs.db, "expected database repository to be set")
	assert.NotNil(t, cs.router)
	assert.NotNil(t, cs.router.Presence())
	assert.Equal(t, DefaultMessageLimit, cs.limiter.limit)
	assert.Equal(t, DefaultMessageWindow, cs.limiter.window)
	assert.Equal(t, defaultStoreTimeout, cs.storeTimeout)
	assert.Equal(t, defaultSweepInterval, cs.sweepEvery)
	assert.NotNil(t, cs.stop, "expected stop channel to be initialized")
}

func TestChatServerShutdown(t *testing.T) {
	t.Run("successful shutdown", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockRepository{})
		go cs.Run()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		assert.NoError(t, cs.Shutdown(ctx))
	})

	t.Run("fails with context deadline exceeded", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockRepository{})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		// Run was never started so nothing receives the stop request
		err := cs.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestShutdown_RefusesNewSessions(t *testing.T) {
	cs := newTestChatServer(t, &database.MockRepository{})
	early, err := cs.NewSession(auth.Identity{Id: aliceId, Username: "alice"}, nil)
	require.NoError(t, err)

	go cs.Run()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, cs.Shutdown(ctx))

	late, err := cs.NewSession(auth.Identity{Id: bobId, Username: "bob"}, nil)
	assert.ErrorIs(t, err, ErrServerClosing)
	assert.Nil(t, late)
	assert.False(t, cs.router.Presence().IsOnline(bobId))

	// registered before Shutdown but never started
	assert.ErrorIs(t, cs.Serve(early), ErrServerClosing)
	assert.False(t, cs.router.Presence().IsOnline(aliceId))
	assert.Empty(t, cs.router.Connections())
}

func TestWrite_FlushesQueueOnStop(t *testing.T) {
	cs := newTestChatServer(t, &database.MockRepository{})

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}

		c := NewClient(auth.Identity{Id: aliceId, Username: "alice"}, conn, cs, testutil.TestLogger(t))
		c.queueMessage(&ServerMessage{Event: EventUserLeft})
		c.queueMessage(&ServerMessage{Event: EventUserStatus})
		c.stopClient()
		c.Write()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var got []EventKind
	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
			break
		}
		got = append(got, msg.Event)
	}

	assert.Equal(t, []EventKind{EventUserLeft, EventUserStatus}, got)
}

func TestRun_SweepsRateWindows(t *testing.T) {
	cs := newTestChatServer(t, &database.MockRepository{})
	cs.sweepEvery = 10 * time.Millisecond
	cs.limiter.window = time.Millisecond

	cs.limiter.TryConsume(aliceId, room1)
	go cs.Run()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		cs.Shutdown(ctx)
	}()

	assert.Eventually(t, func() bool { return cs.limiter.Len() == 0 }, time.Second, 10*time.Millisecond)
}

// newWsTestServer serves the chat server over a real WebSocket. The user
// identity is taken from the "user" query parameter.
func newWsTestServer(t *testing.T, cs *ChatServer) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.URL.Query().Get("user")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}

		c, err := cs.NewSession(auth.Identity{Id: testUserIds[user], Username: user}, conn)
		if err != nil {
			conn.Close()
			return
		}
		cs.Serve(c)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func dialAs(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

type wireMessage struct {
	Id    int             `json:"id"`
	Event EventKind       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readEvent(t *testing.T, conn *websocket.Conn, want EventKind) wireMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg wireMessage
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %s", want)
		if msg.Event == want {
			return msg
		}
	}
}

func TestServe_EndToEnd(t *testing.T) {
	db := &database.MockRepository{}
	db.On("IsRoomMember", mock.Anything, aliceId, room1).Return(true, nil)
	db.On("IsRoomMember", mock.Anything, bobId, room1).Return(true, nil)
	db.On("CreateMessage", mock.Anything, database.CreateMessageParams{
		RoomId:      room1,
		UserId:      aliceId,
		Content:     "hello",
		MessageType: database.MessageTypeText,
	}).Return(storedMessage("msg-1", aliceId, "hello"), nil)

	cs := newTestChatServer(t, db)
	go cs.Run()
	srv := newWsTestServer(t, cs)

	alice := dialAs(t, srv, "alice")
	require.Eventually(t, func() bool { return cs.router.Presence().IsOnline(aliceId) }, time.Second, 5*time.Millisecond)
	bob := dialAs(t, srv, "bob")

	online := readEvent(t, alice, EventUserStatus)
	assert.JSONEq(t, `"online"`, string(mustField(t, online.Data, "status")))

	require.NoError(t, alice.WriteJSON(map[string]any{"id": 1, "event": "join_room", "data": map[string]string{"roomId": room1}}))
	joined := readEvent(t, alice, EventRoomJoined)
	assert.Equal(t, 1, joined.Id)

	require.NoError(t, bob.WriteJSON(map[string]any{"id": 2, "event": "join_room", "data": map[string]string{"roomId": room1}}))
	readEvent(t, bob, EventRoomJoined)
	readEvent(t, alice, EventUserJoined)

	require.NoError(t, alice.WriteJSON(map[string]any{"event": "send_message", "data": map[string]string{"roomId": room1, "content": "hello"}}))
	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := readEvent(t, conn, EventReceiveMessage)
		assert.JSONEq(t, `"hello"`, string(mustField(t, msg.Data, "content")))
		assert.JSONEq(t, `"msg-1"`, string(mustField(t, msg.Data, "id")))
	}

	require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte("garbage")))
	invalid := readEvent(t, bob, EventError)
	assert.JSONEq(t, `"INVALID_MESSAGE"`, string(mustField(t, invalid.Data, "type")))

	bob.Close()
	readEvent(t, alice, EventUserLeft)
	offline := readEvent(t, alice, EventUserStatus)
	assert.JSONEq(t, `"offline"`, string(mustField(t, offline.Data, "status")))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, cs.Shutdown(ctx))
	assert.Equal(t, 0, cs.router.Presence().Count())
	assert.Empty(t, cs.router.Connections())
}

func mustField(t *testing.T, raw json.RawMessage, key string) json.RawMessage {
	t.Helper()

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	v, ok := fields[key]
	require.True(t, ok, "missing field %q in %s", key, raw)

	return v
}
