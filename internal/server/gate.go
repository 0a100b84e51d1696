package server

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type membershipStore interface {
	IsRoomMember(ctx context.Context, userId, roomId string) (bool, error)
}

// MembershipGate asks the store whether a user belongs to a room. Results
// are never cached.
type MembershipGate struct {
	store   membershipStore
	timeout time.Duration
}

func NewMembershipGate(store membershipStore, timeout time.Duration) *MembershipGate {
	return &MembershipGate{store: store, timeout: timeout}
}

// IsMember returns false with a non-nil error when the store could not
// answer, including on timeout. Callers must treat that as a denial. Ids
// that are not UUIDs cannot name a stored row and are not members.
func (g *MembershipGate) IsMember(ctx context.Context, userId, roomId string) (bool, error) {
	if !validId(userId) || !validId(roomId) {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ok, err := g.store.IsRoomMember(ctx, userId, roomId)
	if err != nil {
		return false, fmt.Errorf("check membership of %q in %q: %w", userId, roomId, err)
	}

	return ok, nil
}

func validId(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
