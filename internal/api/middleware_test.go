package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/go-roomchat/internal/auth"
	"github.com/npezzotti/go-roomchat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_errorHandler(t *testing.T) {
	ta := newTestApp(t)
	var buf bytes.Buffer
	ta.app.log = testutil.BufferLogger(&buf)

	h := ta.app.errorHandler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/explode", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.Contains(t, buf.String(), `"message":"panic"`)
	assert.Contains(t, buf.String(), "boom")
	assert.Equal(t, "internal server error", decodeBody[ApiError](t, rr).Message)
}

func Test_authMiddleware(t *testing.T) {
	ta := newTestApp(t)
	valid := ta.token(t, userId1, "alice")
	foreign, err := auth.NewJWTAuthenticator([]byte("other-key"), time.Hour).Issue(auth.Identity{Id: userId1, Username: "alice"})
	require.NoError(t, err)

	tcases := []struct {
		name           string
		setup          func(r *http.Request)
		expectedStatus int
	}{
		{name: "no credential", setup: func(*http.Request) {}, expectedStatus: http.StatusUnauthorized},
		{name: "garbage token", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, expectedStatus: http.StatusForbidden},
		{name: "wrong signing key", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+foreign) }, expectedStatus: http.StatusForbidden},
		{name: "bearer token", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+valid) }, expectedStatus: http.StatusOK},
		{name: "cookie", setup: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: valid}) }, expectedStatus: http.StatusOK},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			var got auth.Identity
			h := ta.app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
				got, _ = IdentityFrom(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			rr := httptest.NewRecorder()
			h(rr, req)

			assert.Equal(t, tc.expectedStatus, rr.Code)
			if tc.expectedStatus == http.StatusOK {
				assert.Equal(t, auth.Identity{Id: userId1, Username: "alice"}, got)
				assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store")
			}
		})
	}
}

func Test_credentialFromRequest(t *testing.T) {
	tcases := []struct {
		name     string
		target   string
		header   string
		cookie   string
		expected string
	}{
		{name: "none", target: "/", expected: ""},
		{name: "query", target: "/?token=q", expected: "q"},
		{name: "cookie beats query", target: "/?token=q", cookie: "c", expected: "c"},
		{name: "header beats cookie", target: "/?token=q", cookie: "c", header: "Bearer h", expected: "h"},
		{name: "non-bearer header ignored", target: "/?token=q", header: "Basic abc", expected: "q"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: tc.cookie})
			}

			assert.Equal(t, tc.expected, credentialFromRequest(req))
		})
	}
}

func Test_requestLogger(t *testing.T) {
	ta := newTestApp(t)
	var buf bytes.Buffer
	ta.app.log = testutil.BufferLogger(&buf)

	h := ta.app.requestLogger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))

	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/brew"`)
}
