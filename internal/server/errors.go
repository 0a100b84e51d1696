package server

import (
	"fmt"
	"net/http"
)

// ErrorKind is the closed set of failures a session reports to its client.
type ErrorKind int

const (
	KindAuth ErrorKind = iota + 1
	KindNotAuthorized
	KindRateLimited
	KindServerError
	KindNotFound
	KindInvalidMessage
)

type kindInfo struct {
	wireType string
	status   int
	message  string
}

var errorKinds = map[ErrorKind]kindInfo{
	KindAuth:           {wireType: "AUTH_ERROR", status: http.StatusUnauthorized, message: "authentication required"},
	KindNotAuthorized:  {wireType: "NOT_AUTHORIZED", status: http.StatusForbidden, message: "not authorized"},
	KindRateLimited:    {wireType: "RATE_LIMIT", status: http.StatusTooManyRequests, message: "too many messages, slow down"},
	KindServerError:    {wireType: "SERVER_ERROR", status: http.StatusInternalServerError, message: "internal server error"},
	KindNotFound:       {wireType: "NOT_FOUND", status: http.StatusNotFound, message: "not found"},
	KindInvalidMessage: {wireType: "INVALID_MESSAGE", status: http.StatusBadRequest, message: "invalid message format"},
}

func (k ErrorKind) String() string {
	if info, ok := errorKinds[k]; ok {
		return info.wireType
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Status is the HTTP-equivalent status code of the kind.
func (k ErrorKind) Status() int {
	if info, ok := errorKinds[k]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// ErrorMessage builds the private error event for kind. An empty message uses
// the kind's default text.
func ErrorMessage(kind ErrorKind, id int, message string) *ServerMessage {
	info, ok := errorKinds[kind]
	if !ok {
		info = errorKinds[KindServerError]
	}
	if message == "" {
		message = info.message
	}

	return &ServerMessage{
		Id:    id,
		Event: EventError,
		Data: ErrorPayload{
			Type:      info.wireType,
			Code:      info.status,
			Message:   message,
			Timestamp: Now(),
		},
	}
}
