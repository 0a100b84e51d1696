package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-roomchat/internal/auth"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Client is one authenticated connection. Its inbound events are handled
// one at a time on the Read goroutine.
type Client struct {
	conn      *websocket.Conn
	cs        *ChatServer
	log       zerolog.Logger
	identity  auth.Identity
	send      chan *ServerMessage
	rooms     map[string]struct{}
	roomsLock sync.RWMutex
	stop      chan struct{}

	stopOnce    sync.Once
	cleanupOnce sync.Once

	// ctx is cancelled on disconnect so in-flight store calls unwind
	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(identity auth.Identity, conn *websocket.Conn, cs *ChatServer, l zerolog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:     conn,
		cs:       cs,
		log:      l.With().Str("user_id", identity.Id).Str("username", identity.Username).Logger(),
		identity: identity,
		send:     make(chan *ServerMessage, sendBufferSize),
		rooms:    make(map[string]struct{}),
		stop:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Client) Identity() auth.Identity {
	return c.identity
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.cancel()
		c.conn.Close()
		c.log.Debug().Msg("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Error().Err(err).Str("event", string(msg.Event)).Msg("failed to serialize message")
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

// flush writes what is already queued without waiting for more. It stops
// at the first write error.
func (c *Client) flush() {
	for n := len(c.send); n > 0; n-- {
		msg := <-c.send
		bytes, err := serializeMessage(msg)
		if err != nil {
			c.log.Error().Err(err).Str("event", string(msg.Event)).Msg("failed to serialize message")
			continue
		}
		if !c.sendMessage(websocket.TextMessage, bytes) {
			return
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.cleanup()
		c.log.Debug().Msg("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("unexpected close")
			}
			return
		}

		c.handleFrame(raw)
	}
}

// handleFrame decodes and dispatches a single inbound frame.
func (c *Client) handleFrame(raw []byte) {
	msg, ev, err := parseClientMessage(raw)
	if err != nil {
		c.log.Debug().Err(err).Msg("rejecting frame")
		c.queueMessage(ErrorMessage(KindInvalidMessage, msg.Id, ""))
		return
	}

	c.dispatch(msg.Id, ev)
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn().Str("event", string(msg.Event)).Msg("send buffer full, dropping message")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warn().Err(err).Msg("write message")
		}
		return false
	}

	return true
}

// stopClient ends the write pump and aborts any in-flight store call.
func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		c.cancel()
		close(c.stop)
	})
}

// cleanup is the disconnect transition. It runs once however the
// connection ended.
func (c *Client) cleanup() {
	c.cleanupOnce.Do(func() {
		c.stopClient()
		c.leaveAllRooms()
		c.cs.router.Detach(c)
		if c.cs.router.Presence().Unregister(c) {
			c.cs.stats.Decr(metricOnlineUsers)
		}
		if c.conn != nil {
			c.conn.Close()
		}
		c.log.Info().Msg("client disconnected")
	})
}

func (c *Client) leaveAllRooms() {
	for _, roomId := range c.roomIds() {
		c.leave(roomId)
	}
}

// leave drops roomId from the session and its group, and tells the rest of
// the room. It reports false if the room was not joined.
func (c *Client) leave(roomId string) bool {
	wasJoined := c.delRoom(roomId)
	inGroup := c.cs.router.LeaveGroup(roomId, c)
	if !wasJoined && !inGroup {
		return false
	}

	c.cs.router.BroadcastToRoom(roomId, &ServerMessage{
		Event: EventUserLeft,
		Data: UserLeftPayload{
			UserId:    c.identity.Id,
			Username:  c.identity.Username,
			RoomId:    roomId,
			Timestamp: Now(),
		},
	}, c)

	return true
}

func (c *Client) addRoom(id string) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()
	c.rooms[id] = struct{}{}
}

func (c *Client) delRoom(id string) bool {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	if _, ok := c.rooms[id]; !ok {
		return false
	}
	delete(c.rooms, id)

	return true
}

func (c *Client) hasRoom(id string) bool {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()
	_, ok := c.rooms[id]
	return ok
}

func (c *Client) roomIds() []string {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}

	return ids
}
