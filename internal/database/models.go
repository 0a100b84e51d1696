package database

import "time"

const (
	RoleAdmin  = "admin"
	RoleMember = "member"

	StatusDelivered = "delivered"
	StatusRead      = "read"

	MessageTypeText = "text"
)

type User struct {
	Id           string
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id          string
	Name        string
	Description string
	IsPrivate   bool
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type RoomMember struct {
	Id        string
	RoomId    string
	UserId    string
	Username  string
	Role      string
	CreatedAt time.Time
}

type RoomInvite struct {
	Id        string
	RoomId    string
	Code      string
	CreatedBy string
	CreatedAt time.Time
}

type Message struct {
	Id          string
	RoomId      string
	UserId      string
	Content     string
	MessageType string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type CreateUserParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateRoomParams struct {
	Name        string
	Description string
	IsPrivate   bool
	CreatedBy   string
}

type CreateInviteParams struct {
	RoomId    string
	Code      string
	CreatedBy string
}

type CreateMessageParams struct {
	RoomId      string
	UserId      string
	Content     string
	MessageType string
}
