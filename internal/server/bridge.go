package server

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/npezzotti/go-roomchat/internal/database"
)

type messageStore interface {
	CreateMessage(ctx context.Context, params database.CreateMessageParams) (database.Message, error)
	GetMessageById(ctx context.Context, messageId string) (database.Message, error)
	MarkMessageRead(ctx context.Context, messageId string) (bool, error)
}

// MessageBridge persists messages and their read state with bounded store
// calls.
type MessageBridge struct {
	store   messageStore
	timeout time.Duration
}

func NewMessageBridge(store messageStore, timeout time.Duration) *MessageBridge {
	return &MessageBridge{store: store, timeout: timeout}
}

// Persist stores a new message in the delivered state and returns the
// stored record with its server-assigned id and timestamps.
func (b *MessageBridge) Persist(ctx context.Context, roomId, userId, content, messageType string) (database.Message, error) {
	if strings.TrimSpace(messageType) == "" {
		messageType = database.MessageTypeText
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	msg, err := b.store.CreateMessage(ctx, database.CreateMessageParams{
		RoomId:      roomId,
		UserId:      userId,
		Content:     content,
		MessageType: messageType,
	})
	if err != nil {
		return database.Message{}, fmt.Errorf("create message in room %q: %w", roomId, err)
	}

	return msg, nil
}

// MarkRead moves a message from delivered to read. changed is false when
// the message was already read. A message that does not exist, or that
// belongs to another room, yields an error wrapping sql.ErrNoRows.
func (b *MessageBridge) MarkRead(ctx context.Context, messageId, roomId string) (msg database.Message, changed bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	msg, err = b.store.GetMessageById(ctx, messageId)
	if err != nil {
		return msg, false, fmt.Errorf("get message %q: %w", messageId, err)
	}
	if roomId != "" && msg.RoomId != roomId {
		return msg, false, fmt.Errorf("message %q not in room %q: %w", messageId, roomId, sql.ErrNoRows)
	}
	if msg.Status == database.StatusRead {
		return msg, false, nil
	}

	changed, err = b.store.MarkMessageRead(ctx, messageId)
	if err != nil {
		return msg, false, fmt.Errorf("mark message %q read: %w", messageId, err)
	}
	if changed {
		msg.Status = database.StatusRead
	}

	return msg, changed, nil
}
