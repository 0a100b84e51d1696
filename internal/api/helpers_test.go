package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/go-roomchat/internal/auth"
	"github.com/npezzotti/go-roomchat/internal/config"
	"github.com/npezzotti/go-roomchat/internal/database"
	"github.com/npezzotti/go-roomchat/internal/server"
	"github.com/npezzotti/go-roomchat/internal/stats"
	"github.com/npezzotti/go-roomchat/internal/testutil"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("test-signing-key")

const (
	userId1       = "5a0e8f52-1c7d-4b8e-9f1a-2d3c4b5a0001"
	userId2       = "5a0e8f52-1c7d-4b8e-9f1a-2d3c4b5a0002"
	roomId1       = "c3d4e5f6-7a8b-4c9d-8e0f-1a2b3c4d0001"
	roomId2       = "c3d4e5f6-7a8b-4c9d-8e0f-1a2b3c4d0002"
	roomId3       = "c3d4e5f6-7a8b-4c9d-8e0f-1a2b3c4d0003"
	missingRoomId = "c3d4e5f6-7a8b-4c9d-8e0f-1a2b3c4d00ff"
)

type testApp struct {
	app   *GoChatApp
	cs    *server.ChatServer
	authn *auth.JWTAuthenticator
	db    *database.MockRepository
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.NewConfig("localhost:0", "postgres://localhost/test", "dGVzdC1zaWduaW5nLWtleQ==", []string{"http://localhost:3000"})
	require.NoError(t, err)

	return cfg
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	return newTestAppWithConfig(t, newTestConfig(t))
}

func newTestAppWithConfig(t *testing.T, cfg *config.Config) *testApp {
	t.Helper()

	db := &database.MockRepository{}
	t.Cleanup(func() { db.AssertExpectations(t) })

	su := stats.NewLenientMock()

	logger := testutil.TestLogger(t)
	cs, err := server.NewChatServer(logger, db, su, server.Options{StoreTimeout: time.Second})
	require.NoError(t, err)

	authn := auth.NewJWTAuthenticator(testSigningKey, time.Hour)
	app := NewGoChatApp(http.NewServeMux(), logger, cs, db, authn, cfg)

	return &testApp{app: app, cs: cs, authn: authn, db: db}
}

func (ta *testApp) token(t *testing.T, userId, username string) string {
	t.Helper()

	token, err := ta.authn.Issue(auth.Identity{Id: userId, Username: username})
	require.NoError(t, err)

	return token
}

// do sends a request through the full handler chain. An empty token sends
// no credential.
func (ta *testApp) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ta.app.Handler().ServeHTTP(rr, req)

	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())

	return v
}

// findCookie returns the named cookie set on the response, or nil.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}
