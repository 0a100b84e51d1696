package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-roomchat/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewGoChatApp(t *testing.T) {
	cfg := newTestConfig(t)
	ta := newTestAppWithConfig(t, cfg)

	assert.Equal(t, cfg.ServerAddr, ta.app.mux.Addr)
	assert.Equal(t, cfg.AllowedOrigins, ta.app.allowedOrigins)
	assert.Equal(t, cfg.StoreTimeout, ta.app.storeTimeout)
	assert.NotNil(t, ta.app.connLimiter)
	assert.NotNil(t, ta.app.Handler())
}

func Test_checkOrigin(t *testing.T) {
	ta := newTestApp(t)

	tcases := []struct {
		name     string
		origin   string
		expected bool
	}{
		{name: "no origin", expected: true},
		{name: "allowed origin", origin: "http://localhost:3000", expected: true},
		{name: "foreign origin", origin: "http://evil.example", expected: false},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			assert.Equal(t, tc.expected, ta.app.checkOrigin(req))
		})
	}
}

func Test_corsPreflight(t *testing.T) {
	ta := newTestApp(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/rooms", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	ta.app.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
}

func newWsServer(t *testing.T, ta *testApp) *httptest.Server {
	t.Helper()

	go ta.cs.Run()
	srv := httptest.NewServer(ta.app.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		ta.cs.Shutdown(ctx)
		srv.Close()
	})

	return srv
}

type wsEvent struct {
	Id    int             `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readUntil(t *testing.T, conn *websocket.Conn, event string) wsEvent {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg wsEvent
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %s", event)
		if msg.Event == event {
			return msg
		}
	}
}

func Test_serveWsRejectsHandshake(t *testing.T) {
	ta := newTestApp(t)
	srv := newWsServer(t, ta)

	tcases := []struct {
		name           string
		query          string
		header         http.Header
		expectedStatus int
	}{
		{name: "missing credential", expectedStatus: http.StatusUnauthorized},
		{name: "invalid credential", query: "?token=bogus", expectedStatus: http.StatusForbidden},
		{
			name:           "foreign origin",
			query:          "?token=" + ta.token(t, userId1, "alice"),
			header:         http.Header{"Origin": []string{"http://evil.example"}},
			expectedStatus: http.StatusForbidden,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, tc.query), tc.header)
			if conn != nil {
				conn.Close()
			}
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, tc.expectedStatus, resp.StatusCode)
		})
	}

	assert.Equal(t, 0, ta.cs.Router().Presence().Count())
}

func Test_serveWsHandshakeRateLimit(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.ConnRatePerSec = 0.001
	cfg.ConnRateBurst = 1
	ta := newTestAppWithConfig(t, cfg)
	srv := newWsServer(t, ta)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func Test_serveWsSession(t *testing.T) {
	ta := newTestApp(t)
	ta.db.On("IsRoomMember", mock.Anything, userId1, roomId1).Return(true, nil)
	ta.db.On("CreateMessage", mock.Anything, database.CreateMessageParams{
		RoomId:      roomId1,
		UserId:      userId1,
		Content:     "hi",
		MessageType: database.MessageTypeText,
	}).Return(database.Message{
		Id:          "m1",
		RoomId:      roomId1,
		UserId:      userId1,
		Content:     "hi",
		MessageType: database.MessageTypeText,
		Status:      database.StatusDelivered,
		CreatedAt:   time.Now().UTC(),
	}, nil).Once()
	srv := newWsServer(t, ta)

	header := http.Header{"Authorization": []string{"Bearer " + ta.token(t, userId1, "alice")}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return ta.cs.Router().Presence().IsOnline(userId1)
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]any{"id": 7, "event": "join_room", "data": map[string]string{"roomId": roomId1}}))
	joined := readUntil(t, conn, "room_joined")
	assert.Equal(t, 7, joined.Id)

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "send_message", "data": map[string]string{"roomId": roomId1, "content": "hi"}}))
	received := readUntil(t, conn, "receive_message")

	var payload struct {
		Id       string `json:"id"`
		Username string `json:"username"`
		Content  string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(received.Data, &payload))
	assert.Equal(t, "m1", payload.Id)
	assert.Equal(t, "alice", payload.Username)
	assert.Equal(t, "hi", payload.Content)

	conn.Close()
	require.Eventually(t, func() bool {
		return !ta.cs.Router().Presence().IsOnline(userId1)
	}, time.Second, 5*time.Millisecond)
}
