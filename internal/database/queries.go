package database

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	addMemberQuery = "INSERT INTO room_members (id, room_id, user_id, role, created_at) VALUES ($1, $2, $3, $4, $5) " +
		"ON CONFLICT (room_id, user_id) DO NOTHING"
	messageColumns = "id, room_id, user_id, content, message_type, status, created_at, updated_at"
	roomColumns    = "id, name, description, is_private, created_by, created_at, updated_at"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func now() time.Time {
	return time.Now().UTC().Round(time.Microsecond)
}

func (db *PgRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	ts := now()
	u := User{
		Id:           uuid.NewString(),
		Username:     params.Username,
		EmailAddress: params.EmailAddress,
		PasswordHash: params.PasswordHash,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}

	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO users (id, username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6)",
		u.Id,
		u.Username,
		u.EmailAddress,
		u.PasswordHash,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

func (db *PgRepository) GetUserById(ctx context.Context, userId string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, email, created_at, updated_at FROM users "+
			"WHERE id = $1 LIMIT 1",
		userId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, fmt.Errorf("get user %s: %w", userId, err)
	}

	return user, nil
}

func (db *PgRepository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, username, email, created_at, updated_at FROM users ORDER BY username",
	)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.Id, &user.Username, &user.EmailAddress, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return users, nil
}

func (db *PgRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, created_at, updated_at FROM users "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}

	return user, nil
}

func scanRoom(row rowScanner) (Room, error) {
	var room Room
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.Description,
		&room.IsPrivate,
		&room.CreatedBy,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	return room, err
}

// CreateRoom inserts the room and its creator as admin in one transaction.
func (db *PgRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (room Room, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	ts := now()
	room = Room{
		Id:          uuid.NewString(),
		Name:        params.Name,
		Description: params.Description,
		IsPrivate:   params.IsPrivate,
		CreatedBy:   params.CreatedBy,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO rooms ("+roomColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		room.Id,
		room.Name,
		room.Description,
		room.IsPrivate,
		room.CreatedBy,
		room.CreatedAt,
		room.UpdatedAt,
	)
	if err != nil {
		return Room{}, fmt.Errorf("insert room: %w", err)
	}

	_, err = tx.ExecContext(ctx, addMemberQuery, uuid.NewString(), room.Id, params.CreatedBy, RoleAdmin, ts)
	if err != nil {
		return Room{}, fmt.Errorf("insert creator membership: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgRepository) GetRoomById(ctx context.Context, roomId string) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE id = $1 LIMIT 1",
		roomId,
	)

	room, err := scanRoom(row)
	if err != nil {
		return Room{}, fmt.Errorf("get room %s: %w", roomId, err)
	}

	return room, nil
}

func (db *PgRepository) queryRooms(ctx context.Context, query string, args ...any) ([]Room, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PgRepository) ListPublicRooms(ctx context.Context) ([]Room, error) {
	return db.queryRooms(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE is_private = FALSE ORDER BY created_at DESC",
	)
}

func (db *PgRepository) ListRoomsForUser(ctx context.Context, userId string) ([]Room, error) {
	return db.queryRooms(ctx,
		"SELECT r.id, r.name, r.description, r.is_private, r.created_by, r.created_at, r.updated_at "+
			"FROM room_members m JOIN rooms r ON r.id = m.room_id WHERE m.user_id = $1 ORDER BY r.created_at DESC",
		userId,
	)
}

// AddRoomMember is idempotent: an existing membership is returned unchanged.
func (db *PgRepository) AddRoomMember(ctx context.Context, roomId, userId, role string) (RoomMember, error) {
	if _, err := db.conn.ExecContext(ctx, addMemberQuery, uuid.NewString(), roomId, userId, role, now()); err != nil {
		return RoomMember{}, fmt.Errorf("insert membership: %w", err)
	}

	row := db.conn.QueryRowContext(ctx,
		"SELECT m.id, m.room_id, m.user_id, u.username, m.role, m.created_at "+
			"FROM room_members m JOIN users u ON u.id = m.user_id WHERE m.room_id = $1 AND m.user_id = $2",
		roomId,
		userId,
	)

	var m RoomMember
	if err := row.Scan(&m.Id, &m.RoomId, &m.UserId, &m.Username, &m.Role, &m.CreatedAt); err != nil {
		return RoomMember{}, fmt.Errorf("get membership: %w", err)
	}

	return m, nil
}

func (db *PgRepository) IsRoomMember(ctx context.Context, userId, roomId string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM room_members WHERE user_id = $1 AND room_id = $2)",
		userId,
		roomId,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("membership lookup: %w", err)
	}

	return exists, nil
}

func (db *PgRepository) ListRoomMembers(ctx context.Context, roomId string) ([]RoomMember, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT m.id, m.room_id, m.user_id, u.username, m.role, m.created_at "+
			"FROM room_members m JOIN users u ON u.id = m.user_id WHERE m.room_id = $1 ORDER BY m.created_at",
		roomId,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := make([]RoomMember, 0)
	for rows.Next() {
		var m RoomMember
		if err := rows.Scan(&m.Id, &m.RoomId, &m.UserId, &m.Username, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

func (db *PgRepository) CreateInvite(ctx context.Context, params CreateInviteParams) (RoomInvite, error) {
	inv := RoomInvite{
		Id:        uuid.NewString(),
		RoomId:    params.RoomId,
		Code:      params.Code,
		CreatedBy: params.CreatedBy,
		CreatedAt: now(),
	}

	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO room_invites (id, room_id, code, created_by, created_at) VALUES ($1, $2, $3, $4, $5)",
		inv.Id,
		inv.RoomId,
		inv.Code,
		inv.CreatedBy,
		inv.CreatedAt,
	)
	if err != nil {
		return RoomInvite{}, fmt.Errorf("insert invite: %w", err)
	}

	return inv, nil
}

func (db *PgRepository) getInvite(ctx context.Context, column, value string) (RoomInvite, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, room_id, code, created_by, created_at FROM room_invites WHERE "+column+" = $1 LIMIT 1",
		value,
	)

	var inv RoomInvite
	if err := row.Scan(&inv.Id, &inv.RoomId, &inv.Code, &inv.CreatedBy, &inv.CreatedAt); err != nil {
		return RoomInvite{}, fmt.Errorf("get invite: %w", err)
	}

	return inv, nil
}

func (db *PgRepository) GetInviteByRoomId(ctx context.Context, roomId string) (RoomInvite, error) {
	return db.getInvite(ctx, "room_id", roomId)
}

func (db *PgRepository) GetInviteByCode(ctx context.Context, code string) (RoomInvite, error) {
	return db.getInvite(ctx, "code", code)
}

func scanMessage(row rowScanner) (Message, error) {
	var msg Message
	err := row.Scan(
		&msg.Id,
		&msg.RoomId,
		&msg.UserId,
		&msg.Content,
		&msg.MessageType,
		&msg.Status,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	return msg, err
}

func (db *PgRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	ts := now()
	msg := Message{
		Id:          uuid.NewString(),
		RoomId:      params.RoomId,
		UserId:      params.UserId,
		Content:     params.Content,
		MessageType: params.MessageType,
		Status:      StatusDelivered,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if msg.MessageType == "" {
		msg.MessageType = MessageTypeText
	}

	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO messages ("+messageColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		msg.Id,
		msg.RoomId,
		msg.UserId,
		msg.Content,
		msg.MessageType,
		msg.Status,
		msg.CreatedAt,
		msg.UpdatedAt,
	)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	return msg, nil
}

func (db *PgRepository) GetMessageById(ctx context.Context, messageId string) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE id = $1 LIMIT 1",
		messageId,
	)

	msg, err := scanMessage(row)
	if err != nil {
		return Message{}, fmt.Errorf("get message %s: %w", messageId, err)
	}

	return msg, nil
}

// MarkMessageRead moves a delivered message to read. It reports false when the
// message was already read, so concurrent readers see exactly one transition.
func (db *PgRepository) MarkMessageRead(ctx context.Context, messageId string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4",
		messageId,
		StatusRead,
		now(),
		StatusDelivered,
	)
	if err != nil {
		return false, fmt.Errorf("mark message read: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

// GetMessages returns one page of a room's history, oldest first, and the
// room's total message count.
func (db *PgRepository) GetMessages(ctx context.Context, roomId string, limit, offset int) ([]Message, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE room_id = $1", roomId).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE room_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		roomId,
		limit,
		offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	slices.Reverse(messages)

	return messages, total, nil
}

var _ Repository = (*PgRepository)(nil)
