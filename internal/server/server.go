package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-roomchat/internal/auth"
	"github.com/npezzotti/go-roomchat/internal/database"
	"github.com/npezzotti/go-roomchat/internal/stats"
	"github.com/rs/zerolog"
)

const (
	metricActiveClients = "active_clients"
	metricOnlineUsers   = "online_users"
	metricActiveRooms   = "active_rooms"
	metricMessagesSent  = "messages_sent_total"
	metricRateLimited   = "rate_limited_total"
)

const (
	defaultStoreTimeout  = 5 * time.Second
	defaultSweepInterval = time.Minute
)

type Options struct {
	MessageLimit  int
	MessageWindow time.Duration
	StoreTimeout  time.Duration
	SweepInterval time.Duration
}

// ErrServerClosing is returned for sessions started after Shutdown began.
var ErrServerClosing = errors.New("chat server is shutting down")

type stopReq struct {
	done chan struct{}
}

// ChatServer owns the shared real-time state: the router with its presence
// registry, the rate limiter, the membership gate and the message bridge.
type ChatServer struct {
	log          zerolog.Logger
	db           database.Repository
	stats        stats.StatsProvider
	router       *Router
	limiter      *RateLimiter
	gate         *MembershipGate
	bridge       *MessageBridge
	storeTimeout time.Duration
	sweepEvery   time.Duration
	wg           sync.WaitGroup
	stop         chan stopReq

	// closing is set once by Shutdown; mu orders it against session starts
	mu      sync.Mutex
	closing bool
}

func NewChatServer(logger zerolog.Logger, db database.Repository, su stats.StatsProvider, opts Options) (*ChatServer, error) {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}

	for _, name := range []string{
		metricActiveClients,
		metricOnlineUsers,
		metricActiveRooms,
		metricMessagesSent,
		metricRateLimited,
	} {
		su.RegisterMetric(name)
	}

	return &ChatServer{
		log:          logger,
		db:           db,
		stats:        su,
		router:       NewRouter(logger, su),
		limiter:      NewRateLimiter(opts.MessageLimit, opts.MessageWindow),
		gate:         NewMembershipGate(db, opts.StoreTimeout),
		bridge:       NewMessageBridge(db, opts.StoreTimeout),
		storeTimeout: opts.StoreTimeout,
		sweepEvery:   opts.SweepInterval,
		stop:         make(chan stopReq),
	}, nil
}

func (cs *ChatServer) Router() *Router {
	return cs.router
}

// Run sweeps idle rate-limit keys until Shutdown is called.
func (cs *ChatServer) Run() {
	cs.log.Info().Dur("sweep_interval", cs.sweepEvery).Msg("chat server running")
	ticker := time.NewTicker(cs.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := cs.limiter.Sweep(); n > 0 {
				cs.log.Debug().Int("removed", n).Msg("swept rate limit windows")
			}
		case req := <-cs.stop:
			cs.log.Info().Msg("chat server stopped")
			close(req.done)
			return
		}
	}
}

// NewSession wraps an upgraded connection in a Client and makes it live:
// it is attached to the router and registered for presence, which
// announces the user as online. It fails once Shutdown has begun.
func (cs *ChatServer) NewSession(identity auth.Identity, conn *websocket.Conn) (*Client, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.closing {
		return nil, ErrServerClosing
	}

	c := NewClient(identity, conn, cs, cs.log)
	cs.register(c)
	return c, nil
}

func (cs *ChatServer) register(c *Client) {
	cs.router.Attach(c)
	if cs.router.Presence().Register(c) {
		cs.stats.Incr(metricOnlineUsers)
	}
	c.log.Info().Msg("client connected")
}

// Serve runs the client's pumps. The write pump runs in the background and
// the read pump blocks until the connection ends. A session that reaches
// Serve after Shutdown began is disconnected without running its pumps.
func (cs *ChatServer) Serve(c *Client) error {
	cs.mu.Lock()
	if cs.closing {
		cs.mu.Unlock()
		c.cleanup()
		return ErrServerClosing
	}
	cs.wg.Add(2)
	cs.mu.Unlock()

	go func() {
		defer cs.wg.Done()
		c.Write()
	}()
	defer cs.wg.Done()
	c.Read()

	return nil
}

// Shutdown stops every session, waits for their pumps to exit, then stops
// Run. It gives up when ctx is done.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Info().Msg("shutting down chat server")
	cs.mu.Lock()
	cs.closing = true
	cs.mu.Unlock()

	for _, c := range cs.router.Connections() {
		c.stopClient()
	}

	drained := make(chan struct{})
	go func() {
		cs.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		return ctx.Err()
	}

	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
