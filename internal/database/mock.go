package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetUserById(ctx context.Context, userId string) (User, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) ListUsers(ctx context.Context) ([]User, error) {
	args := m.Called(ctx)
	if users, ok := args.Get(0).([]User); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) GetRoomById(ctx context.Context, roomId string) (Room, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) ListPublicRooms(ctx context.Context) ([]Room, error) {
	args := m.Called(ctx)
	if rooms, ok := args.Get(0).([]Room); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) ListRoomsForUser(ctx context.Context, userId string) ([]Room, error) {
	args := m.Called(ctx, userId)
	if rooms, ok := args.Get(0).([]Room); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) AddRoomMember(ctx context.Context, roomId, userId, role string) (RoomMember, error) {
	args := m.Called(ctx, roomId, userId, role)
	return args.Get(0).(RoomMember), args.Error(1)
}
func (m *MockRepository) IsRoomMember(ctx context.Context, userId, roomId string) (bool, error) {
	args := m.Called(ctx, userId, roomId)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) ListRoomMembers(ctx context.Context, roomId string) ([]RoomMember, error) {
	args := m.Called(ctx, roomId)
	if members, ok := args.Get(0).([]RoomMember); ok {
		return members, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) CreateInvite(ctx context.Context, params CreateInviteParams) (RoomInvite, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(RoomInvite), args.Error(1)
}
func (m *MockRepository) GetInviteByRoomId(ctx context.Context, roomId string) (RoomInvite, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(RoomInvite), args.Error(1)
}
func (m *MockRepository) GetInviteByCode(ctx context.Context, code string) (RoomInvite, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(RoomInvite), args.Error(1)
}
func (m *MockRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) GetMessageById(ctx context.Context, messageId string) (Message, error) {
	args := m.Called(ctx, messageId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) MarkMessageRead(ctx context.Context, messageId string) (bool, error) {
	args := m.Called(ctx, messageId)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) GetMessages(ctx context.Context, roomId string, limit, offset int) ([]Message, int, error) {
	args := m.Called(ctx, roomId, limit, offset)
	if msgs, ok := args.Get(0).([]Message); ok {
		return msgs, args.Int(1), args.Error(2)
	}
	return nil, args.Int(1), args.Error(2)
}

var _ Repository = (*MockRepository)(nil)
