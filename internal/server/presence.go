package server

import "sync"

type broadcaster interface {
	BroadcastToAll(msg *ServerMessage, skip *Client)
}

type presenceEntry struct {
	client   *Client
	username string
}

// PresenceRegistry maps a user id to the connection that most recently
// registered for it.
type PresenceRegistry struct {
	mu      sync.RWMutex
	entries map[string]presenceEntry
	out     broadcaster
}

func NewPresenceRegistry(out broadcaster) *PresenceRegistry {
	return &PresenceRegistry{
		entries: make(map[string]presenceEntry),
		out:     out,
	}
}

// Register points the client's identity at c, replacing any earlier
// connection, and announces the user as online to everyone else. It
// reports whether the user was previously offline.
func (p *PresenceRegistry) Register(c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, existed := p.entries[c.identity.Id]
	p.entries[c.identity.Id] = presenceEntry{client: c, username: c.identity.Username}
	p.announce(c, StatusOnline)

	return !existed
}

// Unregister removes the entry only if it still belongs to c, so a late
// disconnect cannot evict a newer connection. It reports whether an entry
// was removed.
func (p *PresenceRegistry) Unregister(c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[c.identity.Id]
	if !ok || entry.client != c {
		return false
	}

	delete(p.entries, c.identity.Id)
	p.announce(c, StatusOffline)

	return true
}

func (p *PresenceRegistry) announce(c *Client, status string) {
	if p.out == nil {
		return
	}

	p.out.BroadcastToAll(&ServerMessage{
		Event: EventUserStatus,
		Data: UserStatusPayload{
			UserId:    c.identity.Id,
			Username:  c.identity.Username,
			Status:    status,
			Timestamp: Now(),
		},
	}, c)
}

func (p *PresenceRegistry) IsOnline(userId string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.entries[userId]
	return ok
}

// Lookup returns the routed connection for userId, or nil.
func (p *PresenceRegistry) Lookup(userId string) *Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entries[userId].client
}

func (p *PresenceRegistry) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
