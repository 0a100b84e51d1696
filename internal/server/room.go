package server

// roomGroup is the set of connections currently receiving a room's events.
// It is guarded by the owning Router's lock.
type roomGroup struct {
	id      string
	clients map[*Client]struct{}
	// userMap indexes connections by user id; one user may hold several
	userMap map[string]map[*Client]struct{}
}

func newRoomGroup(id string) *roomGroup {
	return &roomGroup{
		id:      id,
		clients: make(map[*Client]struct{}),
		userMap: make(map[string]map[*Client]struct{}),
	}
}

// addClient reports false if c was already in the group.
func (g *roomGroup) addClient(c *Client) bool {
	if _, ok := g.clients[c]; ok {
		return false
	}

	g.clients[c] = struct{}{}
	if g.userMap[c.identity.Id] == nil {
		g.userMap[c.identity.Id] = make(map[*Client]struct{})
	}
	g.userMap[c.identity.Id][c] = struct{}{}

	return true
}

// removeClient reports false if c was not in the group.
func (g *roomGroup) removeClient(c *Client) bool {
	if _, ok := g.clients[c]; !ok {
		return false
	}

	delete(g.clients, c)
	if userClients, ok := g.userMap[c.identity.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(g.userMap, c.identity.Id)
		}
	}

	return true
}

func (g *roomGroup) has(c *Client) bool {
	_, ok := g.clients[c]
	return ok
}

func (g *roomGroup) empty() bool {
	return len(g.clients) == 0
}

func (g *roomGroup) broadcast(msg *ServerMessage, skip *Client) int {
	delivered := 0
	for c := range g.clients {
		if c == skip {
			continue
		}
		if c.queueMessage(msg) {
			delivered++
		}
	}

	return delivered
}
