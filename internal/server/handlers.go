package server

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/npezzotti/go-roomchat/internal/database"
)

// dispatch runs the handler for ev to completion. Every failure is turned
// into a private error event on c.
func (c *Client) dispatch(id int, ev InboundEvent) {
	switch e := ev.(type) {
	case *JoinRoom:
		c.handleJoin(id, e)
	case *SendMessage:
		c.handleSend(id, e)
	case *Typing:
		c.handleTyping(e)
	case *LeaveRoom:
		c.handleLeave(e)
	case *MessageRead:
		c.handleRead(e)
	case *GetRoomUsers:
		c.handleGetRoomUsers(id, e)
	default:
		c.log.Error().Str("event", string(ev.Kind())).Msg("no handler for event")
		c.queueMessage(ErrorMessage(KindInvalidMessage, id, ""))
	}
}

func (c *Client) handleJoin(id int, e *JoinRoom) {
	if e.RoomId == "" {
		c.queueMessage(ErrorMessage(KindInvalidMessage, id, "roomId is required"))
		return
	}

	if !c.authorize(id, e.RoomId) {
		return
	}

	if c.cs.router.JoinGroup(e.RoomId, c) {
		c.addRoom(e.RoomId)
		c.cs.router.BroadcastToRoom(e.RoomId, &ServerMessage{
			Event: EventUserJoined,
			Data: UserJoinedPayload{
				UserId:    c.identity.Id,
				Username:  c.identity.Username,
				RoomId:    e.RoomId,
				Timestamp: Now(),
			},
		}, c)
		c.log.Info().Str("room_id", e.RoomId).Msg("joined room")
	} else {
		c.addRoom(e.RoomId)
	}

	c.queueMessage(&ServerMessage{
		Id:    id,
		Event: EventRoomJoined,
		Data: RoomJoinedPayload{
			RoomId:  e.RoomId,
			Message: "joined room " + e.RoomId,
		},
	})
}

func (c *Client) handleSend(id int, e *SendMessage) {
	content := strings.TrimSpace(e.Content)
	if content == "" || e.RoomId == "" {
		return
	}

	if !c.cs.limiter.TryConsume(c.identity.Id, e.RoomId) {
		c.cs.stats.Incr(metricRateLimited)
		c.log.Info().Str("room_id", e.RoomId).Msg("message rate limited")
		c.queueMessage(ErrorMessage(KindRateLimited, id, ""))
		return
	}

	if !c.authorize(id, e.RoomId) {
		return
	}

	stored, err := c.cs.bridge.Persist(c.ctx, e.RoomId, c.identity.Id, e.Content, e.MessageType)
	if err != nil {
		c.log.Error().Err(err).Str("room_id", e.RoomId).Msg("failed to persist message")
		c.queueMessage(ErrorMessage(KindServerError, id, "failed to send message"))
		return
	}
	c.cs.stats.Incr(metricMessagesSent)

	out := &ServerMessage{
		Event: EventReceiveMessage,
		Data: ReceiveMessagePayload{
			Id:          stored.Id,
			RoomId:      stored.RoomId,
			UserId:      stored.UserId,
			Username:    c.identity.Username,
			Content:     stored.Content,
			MessageType: stored.MessageType,
			Status:      stored.Status,
			CreatedAt:   stored.CreatedAt,
			Timestamp:   Now(),
		},
	}

	c.cs.router.BroadcastToRoom(e.RoomId, out, nil)
	// a member that never joined the group still sees the stored form
	if !c.cs.router.InGroup(e.RoomId, c) {
		c.queueMessage(out)
	}
}

func (c *Client) handleTyping(e *Typing) {
	if e.RoomId == "" {
		return
	}

	c.cs.router.BroadcastToRoom(e.RoomId, &ServerMessage{
		Event: EventUserTyping,
		Data: UserTypingPayload{
			UserId:    c.identity.Id,
			Username:  c.identity.Username,
			RoomId:    e.RoomId,
			IsTyping:  e.IsTyping,
			Timestamp: Now(),
		},
	}, c)
}

func (c *Client) handleLeave(e *LeaveRoom) {
	if c.leave(e.RoomId) {
		c.log.Info().Str("room_id", e.RoomId).Msg("left room")
	}
}

func (c *Client) handleRead(e *MessageRead) {
	if e.MessageId == "" {
		return
	}

	msg, changed, err := c.cs.bridge.MarkRead(c.ctx, e.MessageId, e.RoomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.log.Debug().Err(err).Str("message_id", e.MessageId).Msg("read receipt for unknown message")
			return
		}
		c.log.Error().Err(err).Str("message_id", e.MessageId).Msg("failed to mark message read")
		return
	}
	if !changed {
		return
	}

	c.cs.router.BroadcastToRoom(msg.RoomId, &ServerMessage{
		Event: EventMessageStatusUpdated,
		Data: MessageStatusPayload{
			MessageId: msg.Id,
			RoomId:    msg.RoomId,
			Status:    database.StatusRead,
			ReaderId:  c.identity.Id,
			Timestamp: Now(),
		},
	}, nil)
}

func (c *Client) handleGetRoomUsers(id int, e *GetRoomUsers) {
	if e.RoomId == "" {
		c.queueMessage(ErrorMessage(KindInvalidMessage, id, "roomId is required"))
		return
	}

	if !c.authorize(id, e.RoomId) {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.cs.storeTimeout)
	defer cancel()

	members, err := c.cs.db.ListRoomMembers(ctx, e.RoomId)
	if err != nil {
		c.log.Error().Err(err).Str("room_id", e.RoomId).Msg("failed to list room members")
		c.queueMessage(ErrorMessage(KindServerError, id, "failed to get room users"))
		return
	}

	presence := c.cs.router.Presence()
	users := make([]RoomUser, len(members))
	for i, m := range members {
		users[i] = RoomUser{
			UserId:   m.UserId,
			Username: m.Username,
			IsOnline: presence.IsOnline(m.UserId),
		}
	}

	c.queueMessage(&ServerMessage{
		Id:    id,
		Event: EventRoomUsers,
		Data:  RoomUsersPayload{RoomId: e.RoomId, Users: users},
	})
}

// authorize checks room membership and reports the denial to c. A store
// failure counts as a denial and is reported as a server error.
func (c *Client) authorize(id int, roomId string) bool {
	ok, err := c.cs.gate.IsMember(c.ctx, c.identity.Id, roomId)
	if err != nil {
		c.log.Error().Err(err).Str("room_id", roomId).Msg("membership check failed")
		c.queueMessage(ErrorMessage(KindServerError, id, ""))
		return false
	}
	if !ok {
		c.log.Info().Str("room_id", roomId).Msg("not a member of room")
		c.queueMessage(ErrorMessage(KindNotAuthorized, id, "not a member of this room"))
		// membership was revoked after joining
		if c.hasRoom(roomId) {
			c.leave(roomId)
		}
		return false
	}

	return true
}
