package server

import (
	"sync"

	"github.com/npezzotti/go-roomchat/internal/stats"
	"github.com/rs/zerolog"
)

// Router tracks live connections and the room groups they are subscribed
// to, and fans events out to them.
type Router struct {
	mu       sync.RWMutex
	conns    map[*Client]struct{}
	groups   map[string]*roomGroup
	presence *PresenceRegistry
	log      zerolog.Logger
	stats    stats.StatsProvider
}

func NewRouter(logger zerolog.Logger, su stats.StatsProvider) *Router {
	r := &Router{
		conns:  make(map[*Client]struct{}),
		groups: make(map[string]*roomGroup),
		log:    logger,
		stats:  su,
	}
	r.presence = NewPresenceRegistry(r)

	return r
}

func (r *Router) Presence() *PresenceRegistry {
	return r.presence
}

// Attach makes c reachable by BroadcastToAll.
func (r *Router) Attach(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c]; ok {
		return
	}
	r.conns[c] = struct{}{}
	r.stats.Incr(metricActiveClients)
}

// Detach removes c from the connection set and from every group still
// holding it.
func (r *Router) Detach(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c]; ok {
		delete(r.conns, c)
		r.stats.Decr(metricActiveClients)
	}

	for id, g := range r.groups {
		if g.removeClient(c) {
			r.log.Warn().Str("room_id", id).Str("user_id", c.identity.Id).Msg("removed stale group subscription")
		}
		r.dropIfEmpty(g)
	}
}

// JoinGroup subscribes c to roomId and reports whether it was newly added.
func (r *Router) JoinGroup(roomId string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[roomId]
	if !ok {
		g = newRoomGroup(roomId)
		r.groups[roomId] = g
		r.stats.Incr(metricActiveRooms)
		r.log.Debug().Str("room_id", roomId).Msg("room group created")
	}

	return g.addClient(c)
}

// LeaveGroup unsubscribes c from roomId and reports whether it was a member.
func (r *Router) LeaveGroup(roomId string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[roomId]
	if !ok {
		return false
	}

	removed := g.removeClient(c)
	r.dropIfEmpty(g)

	return removed
}

func (r *Router) dropIfEmpty(g *roomGroup) {
	if !g.empty() {
		return
	}

	delete(r.groups, g.id)
	r.stats.Decr(metricActiveRooms)
	r.log.Debug().Str("room_id", g.id).Msg("room group removed")
}

func (r *Router) InGroup(roomId string, c *Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[roomId]
	return ok && g.has(c)
}

// Members returns a snapshot of the connections subscribed to roomId.
func (r *Router) Members(roomId string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[roomId]
	if !ok {
		return nil
	}

	members := make([]*Client, 0, len(g.clients))
	for c := range g.clients {
		members = append(members, c)
	}

	return members
}

func (r *Router) GroupCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

func (r *Router) Connections() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Client, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}

	return conns
}

// BroadcastToRoom queues msg to every subscriber of roomId except skip and
// returns the number of connections it was queued to.
func (r *Router) BroadcastToRoom(roomId string, msg *ServerMessage, skip *Client) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[roomId]
	if !ok {
		return 0
	}

	n := g.broadcast(msg, skip)
	r.log.Debug().Str("room_id", roomId).Str("event", string(msg.Event)).Int("recipients", n).Msg("broadcast to room")

	return n
}

// BroadcastToAll queues msg to every attached connection except skip.
func (r *Router) BroadcastToAll(msg *ServerMessage, skip *Client) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for c := range r.conns {
		if c == skip {
			continue
		}
		c.queueMessage(msg)
	}
}

// SendToIdentity queues msg to the connection presence routes userId to. It
// returns false if the user is offline.
func (r *Router) SendToIdentity(userId string, msg *ServerMessage) bool {
	c := r.presence.Lookup(userId)
	if c == nil {
		return false
	}

	return c.queueMessage(msg)
}
