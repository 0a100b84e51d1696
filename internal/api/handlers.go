package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-roomchat/internal/database"
	"github.com/npezzotti/go-roomchat/internal/types"
	"github.com/teris-io/shortid"
)

const (
	defaultStoreTimeout = 5 * time.Second
	defaultPageSize     = 50
	maxPageSize         = 100
)

type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"isPrivate"`
}

func (s *GoChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("json encode")
	}
}

func (s *GoChatApp) storeCtx(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := s.storeTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return context.WithTimeout(r.Context(), timeout)
}

func (s *GoChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeCtx(r)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.log.Error().Err(err).Msg("health check")
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func roomResponse(room database.Room) types.Room {
	return types.Room{
		Id:          room.Id,
		Name:        room.Name,
		Description: room.Description,
		IsPrivate:   room.IsPrivate,
		CreatedBy:   room.CreatedBy,
		CreatedAt:   room.CreatedAt,
		UpdatedAt:   room.UpdatedAt,
	}
}

func roomsResponse(rooms []database.Room) []types.Room {
	resp := make([]types.Room, len(rooms))
	for i, room := range rooms {
		resp[i] = roomResponse(room)
	}
	return resp
}

func (s *GoChatApp) createRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ctx, cancel := s.storeCtx(r)
	defer cancel()

	newRoom, err := s.db.CreateRoom(ctx, database.CreateRoomParams{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
		CreatedBy:   id.Id,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("create room")
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, roomResponse(newRoom))
}

func (s *GoChatApp) listRooms(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeCtx(r)
	defer cancel()

	rooms, err := s.db.ListPublicRooms(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("list public rooms")
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, roomsResponse(rooms))
}

func (s *GoChatApp) getUsersRooms(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ctx, cancel := s.storeCtx(r)
	defer cancel()

	rooms, err := s.db.ListRoomsForUser(ctx, id.Id)
	if err != nil {
		s.log.Error().Err(err).Msg("list rooms for user")
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, roomsResponse(rooms))
}

// getRoom returns a room with its members. Private rooms are visible to
// members only.
func (s *GoChatApp) getRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ctx, cancel := s.storeCtx(r)
	defer cancel()

	room, err := s.db.GetRoomById(ctx, r.PathValue("id"))
	if err != nil {
		errResp := storeError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if room.IsPrivate {
		isMember, err := s.db.IsRoomMember(ctx, id.Id, room.Id)
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		if !isMember {
			errResp := NewForbiddenError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	members, err := s.db.ListRoomMembers(ctx, room.Id)
	if err != nil {
		s.log.Error().Err(err).Str("room_id", room.Id).Msg("list room members")
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := roomResponse(room)
	presence := s.cs.Router().Presence()
	for _, m := range members {
		resp.Members = append(resp.Members, types.Member{
			UserId:   m.UserId,
			Username: m.Username,
			Role:     m.Role,
			IsOnline: presence.IsOnline(m.UserId),
			JoinedAt: m.CreatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, resp)
}

func memberResponse(m database.RoomMember) types.Member {
	return types.Member{
		UserId:   m.UserId,
		Username: m.Username,
		Role:     m.Role,
		JoinedAt: m.CreatedAt,
	}
}

// joinRoom adds the caller to a public room. Joining twice is not an error.
func (s *GoChatApp) joinRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ctx, cancel := s.storeCtx(r)
	defer cancel()

	room, err := s.db.GetRoomById(ctx, r.PathValue("id"))
	if err != nil {
		errResp := storeError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if room.IsPrivate {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	member, err := s.db.AddRoomMember(ctx, room.Id, id.Id, database.RoleMember)
	if err != nil {
		s.log.Error().Err(err).Str("room_id", room.Id).Msg("add room member")
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, memberResponse(member))
}

// createInvite returns the room's invite code, creating it on first use.
// Only the room creator may call it.
func (s *GoChatApp) createInvite(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ctx, cancel := s.storeCtx(r)
	defer cancel()

	room, err := s.db.GetRoomById(ctx, r.PathValue("id"))
	if err != nil {
		errResp := storeError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if room.CreatedBy != id.Id {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	invite, err := s.db.GetInviteByRoomId(ctx, room.Id)
	if err == nil {
		s.writeJson(w, http.StatusOK, types.Invite{RoomId: invite.RoomId, Code: invite.Code, CreatedAt: invite.CreatedAt})
		return
	}
	if !errors.Is(err, sql.ErrNoRows) {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	code, err := s.generateShortId()
	if err != nil {
		s.log.Error().Err(err).Msg("generate invite code")
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	invite, err = s.db.CreateInvite(ctx, database.CreateInviteParams{
		RoomId:    room.Id,
		Code:      code,
		CreatedBy: id.Id,
	})
	if err != nil {
		s.log.Error().Err(err).Str("room_id", room.Id).Msg("create invite")
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.Invite{RoomId: invite.RoomId, Code: invite.Code, CreatedAt: invite.CreatedAt})
}

func (s *GoChatApp) generateShortId() (string, error) {
	return shortid.Generate()
}

func (s *GoChatApp) acceptInvite(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ctx, cancel := s.storeCtx(r)
	defer cancel()

	invite, err := s.db.GetInviteByCode(ctx, r.PathValue("code"))
	if err != nil {
		errResp := storeError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomById(ctx, invite.RoomId)
	if err != nil {
		errResp := storeError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.db.AddRoomMember(ctx, room.Id, id.Id, database.RoleMember); err != nil {
		s.log.Error().Err(err).Str("room_id", room.Id).Msg("add room member")
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, roomResponse(room))
}

func parsePositiveInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.New("must be positive")
	}

	return n, nil
}

// getMessages pages through a room's history, oldest first within a page.
// Page 1 holds the newest messages.
func (s *GoChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	page, err := parsePositiveInt(r.URL.Query().Get("page"), 1)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), defaultPageSize)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	limit = min(limit, maxPageSize)

	ctx, cancel := s.storeCtx(r)
	defer cancel()

	roomId := r.PathValue("id")
	isMember, err := s.db.IsRoomMember(ctx, id.Id, roomId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !isMember {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages, total, err := s.db.GetMessages(ctx, roomId, limit, (page-1)*limit)
	if err != nil {
		s.log.Error().Err(err).Str("room_id", roomId).Msg("get messages")
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := types.MessagePage{
		Messages:   make([]types.Message, len(messages)),
		Pagination: types.NewPagination(page, limit, total),
	}
	for i, msg := range messages {
		resp.Messages[i] = types.Message{
			Id:          msg.Id,
			RoomId:      msg.RoomId,
			UserId:      msg.UserId,
			Content:     msg.Content,
			MessageType: msg.MessageType,
			Status:      msg.Status,
			CreatedAt:   msg.CreatedAt,
		}
	}

	s.writeJson(w, http.StatusOK, resp)
}

// serveWs authenticates the handshake and hands the upgraded connection to
// the chat server. The credential is verified before any session state
// exists.
func (s *GoChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	if !s.connLimiter.Allow(clientIP(r)) {
		s.log.Warn().Str("remote_addr", r.RemoteAddr).Msg("handshake rate limited")
		errResp := NewTooManyRequestsError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id, errResp := s.authenticate(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("error upgrading connection")
		return
	}

	c, err := s.cs.NewSession(id, conn)
	if err != nil {
		s.log.Info().Err(err).Str("user_id", id.Id).Msg("refusing session")
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	if err := s.cs.Serve(c); err != nil {
		s.log.Info().Err(err).Str("user_id", id.Id).Msg("session ended before start")
	}
}
