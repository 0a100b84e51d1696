package api

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-roomchat/internal/config"
	"github.com/npezzotti/go-roomchat/internal/database"
	"github.com/npezzotti/go-roomchat/internal/server"
	"github.com/rs/zerolog"
)

type GoChatApp struct {
	log            zerolog.Logger
	db             database.Repository
	mux            *http.Server
	cs             *server.ChatServer
	authn          Authenticator
	allowedOrigins []string
	storeTimeout   time.Duration
	connLimiter    *connLimiter
	upgrader       websocket.Upgrader
}

func NewGoChatApp(mux *http.ServeMux, logger zerolog.Logger, cs *server.ChatServer, db database.Repository, authn Authenticator, cfg *config.Config) *GoChatApp {
	s := &GoChatApp{
		log:            logger,
		db:             db,
		cs:             cs,
		authn:          authn,
		allowedOrigins: cfg.AllowedOrigins,
		storeTimeout:   cfg.StoreTimeout,
		connLimiter:    newConnLimiter(cfg.ConnRatePerSec, cfg.ConnRateBurst),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.HandleFunc("GET /api/rooms", s.authMiddleware(s.listRooms))
	mux.HandleFunc("GET /api/rooms/{id}", s.authMiddleware(s.requireUUID("id", s.getRoom)))
	mux.HandleFunc("POST /api/rooms/{id}/join", s.authMiddleware(s.requireUUID("id", s.joinRoom)))
	mux.HandleFunc("POST /api/rooms/{id}/invites", s.authMiddleware(s.requireUUID("id", s.createInvite)))
	mux.HandleFunc("GET /api/rooms/{id}/messages", s.authMiddleware(s.requireUUID("id", s.getMessages)))
	mux.HandleFunc("POST /api/invites/{code}/accept", s.authMiddleware(s.acceptInvite))
	mux.HandleFunc("GET /api/users", s.authMiddleware(s.listUsers))
	mux.HandleFunc("GET /api/users/me/rooms", s.authMiddleware(s.getUsersRooms))
	mux.HandleFunc("GET /api/users/{id}", s.authMiddleware(s.requireUUID("id", s.getUser)))
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.requestLogger(h)
	h = handlers.ProxyHeaders(h)
	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// checkOrigin accepts requests without an Origin header and those from an
// allowed origin.
func (s *GoChatApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	return slices.Contains(s.allowedOrigins, origin)
}

func (s *GoChatApp) Handler() http.Handler {
	return s.mux.Handler
}

func (s *GoChatApp) Start() error {
	s.log.Info().Str("addr", s.mux.Addr).Msg("starting server")
	return s.mux.ListenAndServe()
}

func (s *GoChatApp) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
