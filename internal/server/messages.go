package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type EventKind string

// Inbound events.
const (
	EventJoinRoom     EventKind = "join_room"
	EventSendMessage  EventKind = "send_message"
	EventTyping       EventKind = "typing"
	EventLeaveRoom    EventKind = "leave_room"
	EventMessageRead  EventKind = "message_read"
	EventGetRoomUsers EventKind = "get_room_users"
)

// Outbound events.
const (
	EventRoomJoined           EventKind = "room_joined"
	EventUserJoined           EventKind = "user_joined"
	EventReceiveMessage       EventKind = "receive_message"
	EventUserTyping           EventKind = "user_typing"
	EventUserLeft             EventKind = "user_left"
	EventMessageStatusUpdated EventKind = "message_status_updated"
	EventRoomUsers            EventKind = "room_users"
	EventUserStatus           EventKind = "user_status"
	EventError                EventKind = "error"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

var (
	errEmptyEvent   = errors.New("missing event name")
	errUnknownEvent = errors.New("unknown event")
)

// ClientMessage is one frame read from a connection.
type ClientMessage struct {
	Id    int             `json:"id,omitempty"`
	Event EventKind       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// InboundEvent is implemented only by the payload types below, so a type
// switch over it covers every event a client can send.
type InboundEvent interface {
	Kind() EventKind
	inbound()
}

type JoinRoom struct {
	RoomId string `json:"roomId"`
}

type SendMessage struct {
	RoomId      string `json:"roomId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType,omitempty"`
}

type Typing struct {
	RoomId   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

type LeaveRoom struct {
	RoomId string `json:"roomId"`
}

type MessageRead struct {
	MessageId string `json:"messageId"`
	RoomId    string `json:"roomId"`
}

type GetRoomUsers struct {
	RoomId string `json:"roomId"`
}

func (JoinRoom) Kind() EventKind     { return EventJoinRoom }
func (SendMessage) Kind() EventKind  { return EventSendMessage }
func (Typing) Kind() EventKind       { return EventTyping }
func (LeaveRoom) Kind() EventKind    { return EventLeaveRoom }
func (MessageRead) Kind() EventKind  { return EventMessageRead }
func (GetRoomUsers) Kind() EventKind { return EventGetRoomUsers }

func (JoinRoom) inbound()     {}
func (SendMessage) inbound()  {}
func (Typing) inbound()       {}
func (LeaveRoom) inbound()    {}
func (MessageRead) inbound()  {}
func (GetRoomUsers) inbound() {}

// parseClientMessage decodes a raw frame into its envelope and typed event.
// The envelope is returned even on error so the caller can echo its id.
func parseClientMessage(raw []byte) (*ClientMessage, InboundEvent, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return &msg, nil, fmt.Errorf("decode envelope: %w", err)
	}

	var ev InboundEvent
	switch msg.Event {
	case EventJoinRoom:
		ev = &JoinRoom{}
	case EventSendMessage:
		ev = &SendMessage{}
	case EventTyping:
		ev = &Typing{}
	case EventLeaveRoom:
		ev = &LeaveRoom{}
	case EventMessageRead:
		ev = &MessageRead{}
	case EventGetRoomUsers:
		ev = &GetRoomUsers{}
	case "":
		return &msg, nil, errEmptyEvent
	default:
		return &msg, nil, fmt.Errorf("%w %q", errUnknownEvent, msg.Event)
	}

	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, ev); err != nil {
			return &msg, nil, fmt.Errorf("decode %s payload: %w", msg.Event, err)
		}
	}

	return &msg, ev, nil
}

// ServerMessage is one outbound frame. A single value may be queued to many
// clients, so it must not be mutated once queued.
type ServerMessage struct {
	Id    int       `json:"id,omitempty"`
	Event EventKind `json:"event"`
	Data  any       `json:"data,omitempty"`
}

type RoomJoinedPayload struct {
	RoomId  string `json:"roomId"`
	Message string `json:"message"`
}

type UserJoinedPayload struct {
	UserId    string    `json:"userId"`
	Username  string    `json:"username"`
	RoomId    string    `json:"roomId"`
	Timestamp time.Time `json:"timestamp"`
}

type UserLeftPayload = UserJoinedPayload

type ReceiveMessagePayload struct {
	Id          string    `json:"id"`
	RoomId      string    `json:"roomId"`
	UserId      string    `json:"userId"`
	Username    string    `json:"username"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	Timestamp   time.Time `json:"timestamp"`
}

type UserTypingPayload struct {
	UserId    string    `json:"userId"`
	Username  string    `json:"username"`
	RoomId    string    `json:"roomId"`
	IsTyping  bool      `json:"isTyping"`
	Timestamp time.Time `json:"timestamp"`
}

type MessageStatusPayload struct {
	MessageId string    `json:"messageId"`
	RoomId    string    `json:"roomId"`
	Status    string    `json:"status"`
	ReaderId  string    `json:"readerId"`
	Timestamp time.Time `json:"timestamp"`
}

type RoomUser struct {
	UserId   string `json:"userId"`
	Username string `json:"username"`
	IsOnline bool   `json:"isOnline"`
}

type RoomUsersPayload struct {
	RoomId string     `json:"roomId"`
	Users  []RoomUser `json:"users"`
}

type UserStatusPayload struct {
	UserId    string    `json:"userId"`
	Username  string    `json:"username"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Type      string    `json:"type"`
	Code      int       `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
