package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/npezzotti/go-commhub/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the closed union of everything a client may send over an
// established connection. Exactly one of the pointer fields is set.
type ClientMessage struct {
	BaseMessage
	Join   *Join         `json:"join,omitempty"`
	Offer  *CallOffer    `json:"call-offer,omitempty"`
	Answer *CallAnswer   `json:"call-answer,omitempty"`
	Ice    *IceCandidate `json:"ice-candidate,omitempty"`
	End    *CallEnd      `json:"call-end,omitempty"`
	client *Client
}

// Join acknowledges registration. The connection is registered under the
// authenticated identity at upgrade time, so this is an idempotent no-op
// carrying no payload; the identity is never taken from the client.
type Join struct{}

// CallOffer starts a call. Sdp is an opaque session-description blob the
// hub relays verbatim.
type CallOffer struct {
	CallId   string          `json:"call_id,omitempty"`
	CallerId string          `json:"caller_id,omitempty"`
	CalleeId string          `json:"callee_id,omitempty"`
	Sdp      json.RawMessage `json:"sdp"`
}

type CallAnswer struct {
	CallId string          `json:"call_id"`
	Sdp    json.RawMessage `json:"sdp"`
}

type IceCandidate struct {
	CallId    string          `json:"call_id"`
	Candidate json.RawMessage `json:"candidate"`
}

// Terminal call event reasons.
const (
	ReasonHangup  = "hangup"
	ReasonDecline = "decline"
	ReasonTimeout = "timeout"
)

type CallEnd struct {
	CallId string `json:"call_id"`
	Reason string `json:"reason,omitempty"`
}

// ServerMessage is the closed union of everything the hub pushes to a
// client.
type ServerMessage struct {
	BaseMessage
	Response     *Response           `json:"response,omitempty"`
	Notification *types.Notification `json:"new-notification,omitempty"`
	Offer        *CallOffer          `json:"call-offer,omitempty"`
	Answer       *CallAnswer         `json:"call-answer,omitempty"`
	Ice          *IceCandidate       `json:"ice-candidate,omitempty"`
	End          *CallEnd            `json:"call-end,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

func NewNotificationEvent(n types.Notification) *ServerMessage {
	return &ServerMessage{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: &n,
	}
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrUnknownCallMsg(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "unknown call",
		},
	}
}

func ErrCallInProgressMsg(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusConflict,
			Error:        "call already in progress",
		},
	}
}

func ErrInvalidCalleeMsg(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid callee",
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrTooManyRequests(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusTooManyRequests,
			Error:        "too many requests",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
