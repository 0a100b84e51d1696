package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-roomchat/internal/auth"
)

func (s *GoChatApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Error().Err(panicError).Str("path", r.URL.Path).Msg("panic")
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// authMiddleware answers 401 when no credential was sent and 403 when the
// credential does not verify.
func (s *GoChatApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, errResp := s.authenticate(r)
		if errResp != nil {
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(WithIdentity(r.Context(), id)))
	}
}

// requireUUID answers 400 when the named path value is not a UUID, so
// malformed ids never reach the store.
func (s *GoChatApp) requireUUID(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := uuid.Parse(r.PathValue(name)); err != nil {
			errResp := NewBadRequestError()
			errResp.Message = "invalid " + name
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		next(w, r)
	}
}

func (s *GoChatApp) authenticate(r *http.Request) (auth.Identity, *ApiError) {
	id, err := s.authn.Verify(credentialFromRequest(r))
	if err == nil {
		return id, nil
	}

	if errors.Is(err, auth.ErrMissingCredential) {
		return auth.Identity{}, NewUnauthorizedError()
	}

	s.log.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected credential")
	return auth.Identity{}, NewForbiddenError()
}

// requestLogger writes one access log line per request through zerolog.
func (s *GoChatApp) requestLogger(next http.Handler) http.Handler {
	return handlers.CustomLoggingHandler(io.Discard, next, func(_ io.Writer, p handlers.LogFormatterParams) {
		s.log.Info().
			Str("method", p.Request.Method).
			Str("path", p.URL.Path).
			Int("status", p.StatusCode).
			Int("size", p.Size).
			Str("remote_addr", p.Request.RemoteAddr).
			Msg("request")
	})
}
