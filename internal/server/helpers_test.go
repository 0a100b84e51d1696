package server

import (
	"testing"
	"time"

	"github.com/npezzotti/go-roomchat/internal/auth"
	"github.com/npezzotti/go-roomchat/internal/database"
	"github.com/npezzotti/go-roomchat/internal/stats"
	"github.com/npezzotti/go-roomchat/internal/testutil"
)

// Store ids are UUIDs; anything else never reaches the store.
const (
	aliceId = "0b6f3c1e-6a52-4d6e-9a57-1f0c8c1a0001"
	bobId   = "0b6f3c1e-6a52-4d6e-9a57-1f0c8c1a0002"
	carolId = "0b6f3c1e-6a52-4d6e-9a57-1f0c8c1a0003"
	daveId  = "0b6f3c1e-6a52-4d6e-9a57-1f0c8c1a0004"
	eveId   = "0b6f3c1e-6a52-4d6e-9a57-1f0c8c1a0005"

	room1    = "7d1e2f4a-3b5c-4d6e-8f70-a1b2c3d40001"
	room2    = "7d1e2f4a-3b5c-4d6e-8f70-a1b2c3d40002"
	testRoom = "7d1e2f4a-3b5c-4d6e-8f70-a1b2c3d4000f"
)

var testUserIds = map[string]string{
	"alice": aliceId,
	"bob":   bobId,
	"carol": carolId,
	"dave":  daveId,
	"eve":   eveId,
}

// newTestChatServer creates a ChatServer whose metric calls are all optional.
func newTestChatServer(t *testing.T, db database.Repository) *ChatServer {
	t.Helper()

	su := stats.NewLenientMock()

	cs, err := NewChatServer(testutil.TestLogger(t), db, su, Options{
		MessageLimit:  DefaultMessageLimit,
		MessageWindow: DefaultMessageWindow,
		StoreTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}

	return cs
}

// newTestClient registers a connectionless client for the given user.
func newTestClient(t *testing.T, cs *ChatServer, userId, username string) *Client {
	t.Helper()

	c := NewClient(auth.Identity{Id: userId, Username: username}, nil, cs, testutil.TestLogger(t))
	cs.register(c)

	return c
}

// drain returns everything queued to c so far.
func drain(c *Client) []*ServerMessage {
	var msgs []*ServerMessage
	for {
		select {
		case msg := <-c.send:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func eventsOf(msgs []*ServerMessage) []EventKind {
	kinds := make([]EventKind, len(msgs))
	for i, m := range msgs {
		kinds[i] = m.Event
	}
	return kinds
}

func filterEvents(msgs []*ServerMessage, kind EventKind) []*ServerMessage {
	var out []*ServerMessage
	for _, m := range msgs {
		if m.Event == kind {
			out = append(out, m)
		}
	}
	return out
}

func errorType(t *testing.T, msg *ServerMessage) string {
	t.Helper()

	payload, ok := msg.Data.(ErrorPayload)
	if !ok {
		t.Fatalf("expected ErrorPayload, got %T", msg.Data)
	}
	return payload.Type
}
