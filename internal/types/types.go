package types

import (
	"time"
)

type User struct {
	Id           string    `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

// UserPresence is a user annotated with whether they have a live
// connection.
type UserPresence struct {
	User
	IsOnline bool `json:"isOnline"`
}

type Room struct {
	Id          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsPrivate   bool      `json:"isPrivate"`
	CreatedBy   string    `json:"createdBy"`
	Members     []Member  `json:"members,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

type Member struct {
	UserId   string    `json:"userId"`
	Username string    `json:"username"`
	Role     string    `json:"role"`
	IsOnline bool      `json:"isOnline"`
	JoinedAt time.Time `json:"joinedAt,omitempty"`
}

type Invite struct {
	RoomId    string    `json:"roomId"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

type Message struct {
	Id          string    `json:"id"`
	RoomId      string    `json:"roomId"`
	UserId      string    `json:"userId"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Pagination struct {
	CurrentPage   int  `json:"currentPage"`
	TotalPages    int  `json:"totalPages"`
	TotalMessages int  `json:"totalMessages"`
	HasNextPage   bool `json:"hasNextPage"`
	HasPrevPage   bool `json:"hasPrevPage"`
}

type MessagePage struct {
	Messages   []Message  `json:"messages"`
	Pagination Pagination `json:"pagination"`
}

// NewPagination computes the pagination block for a 1-based page.
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}

	return Pagination{
		CurrentPage:   page,
		TotalPages:    totalPages,
		TotalMessages: total,
		HasNextPage:   page < totalPages,
		HasPrevPage:   page > 1,
	}
}
