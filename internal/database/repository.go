package database

import "context"

// Repository is the durable store behind the chat server and the HTTP API.
// Lookups that find nothing return an error wrapping sql.ErrNoRows.
type Repository interface {
	Ping(ctx context.Context) error
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetUserById(ctx context.Context, userId string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error)
	GetRoomById(ctx context.Context, roomId string) (Room, error)
	ListPublicRooms(ctx context.Context) ([]Room, error)
	ListRoomsForUser(ctx context.Context, userId string) ([]Room, error)
	AddRoomMember(ctx context.Context, roomId, userId, role string) (RoomMember, error)
	IsRoomMember(ctx context.Context, userId, roomId string) (bool, error)
	ListRoomMembers(ctx context.Context, roomId string) ([]RoomMember, error)
	CreateInvite(ctx context.Context, params CreateInviteParams) (RoomInvite, error)
	GetInviteByRoomId(ctx context.Context, roomId string) (RoomInvite, error)
	GetInviteByCode(ctx context.Context, code string) (RoomInvite, error)
	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	GetMessageById(ctx context.Context, messageId string) (Message, error)
	MarkMessageRead(ctx context.Context, messageId string) (bool, error)
	GetMessages(ctx context.Context, roomId string, limit, offset int) ([]Message, int, error)
}
