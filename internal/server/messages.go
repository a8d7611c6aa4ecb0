package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sparkmatch/sparkd/internal/types"
)

// Stable error codes surfaced to clients alongside the HTTP-style response
// code, so the UI can branch without string matching.
const (
	CodeNotMatched     = "NOT_MATCHED"
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeNotFound       = "NOT_FOUND"
	CodeInternalError  = "INTERNAL_ERROR"
)

const maxContentLength = 1000

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the inbound event envelope. Exactly one variant pointer
// must be set; validate enforces the schema before any handler runs.
type ClientMessage struct {
	BaseMessage
	Join         *JoinConversation    `json:"join,omitempty"`
	Send         *SendMessage         `json:"send,omitempty"`
	Read         *MessageRead         `json:"read,omitempty"`
	TypingStart  *Typing              `json:"typing_start,omitempty"`
	TypingStop   *Typing              `json:"typing_stop,omitempty"`
	NotifRead    *NotificationRead    `json:"notification_read,omitempty"`
	NotifReadAll *NotificationReadAll `json:"notification_read_all,omitempty"`
	Disconnect   *Disconnect          `json:"disconnect,omitempty"`
	OnlineUpdate *OnlineUpdate        `json:"online_update,omitempty"`
	OfflineForce *OfflineForce        `json:"offline_force,omitempty"`
	HeartbeatAck *HeartbeatAck        `json:"heartbeat_ack,omitempty"`
	UserId       int                  `json:"-"`
	client       *Client              `json:"-"`
}

type JoinConversation struct {
	ReceiverId int `json:"receiver_id"`
}

type SendMessage struct {
	ReceiverId int    `json:"receiver_id"`
	Content    string `json:"content"`
	TempId     string `json:"temp_id,omitempty"`
}

type MessageRead struct {
	MessageId int `json:"message_id"`
}

type Typing struct {
	ReceiverId int `json:"receiver_id"`
}

type NotificationRead struct {
	NotificationId int `json:"notification_id"`
}

type NotificationReadAll struct{}

type Disconnect struct{}

type OnlineUpdate struct{}

type OfflineForce struct{}

type HeartbeatAck struct{}

var (
	errNoVariant        = errors.New("message has no event variant")
	errMultipleVariants = errors.New("message has multiple event variants")
)

// validate checks the envelope carries exactly one variant and that the
// variant's payload is well formed.
func (m *ClientMessage) validate() error {
	variants := 0
	if m.Join != nil {
		variants++
	}
	if m.Send != nil {
		variants++
	}
	if m.Read != nil {
		variants++
	}
	if m.TypingStart != nil {
		variants++
	}
	if m.TypingStop != nil {
		variants++
	}
	if m.NotifRead != nil {
		variants++
	}
	if m.NotifReadAll != nil {
		variants++
	}
	if m.Disconnect != nil {
		variants++
	}
	if m.OnlineUpdate != nil {
		variants++
	}
	if m.OfflineForce != nil {
		variants++
	}
	if m.HeartbeatAck != nil {
		variants++
	}

	if variants == 0 {
		return errNoVariant
	}
	if variants > 1 {
		return errMultipleVariants
	}

	switch {
	case m.Join != nil:
		if m.Join.ReceiverId <= 0 {
			return fmt.Errorf("join: invalid receiver id")
		}
	case m.Send != nil:
		if m.Send.ReceiverId <= 0 {
			return fmt.Errorf("send: invalid receiver id")
		}
		if len(m.Send.Content) == 0 {
			return fmt.Errorf("send: empty content")
		}
		if len(m.Send.Content) > maxContentLength {
			return fmt.Errorf("send: content exceeds %d characters", maxContentLength)
		}
	case m.Read != nil:
		if m.Read.MessageId <= 0 {
			return fmt.Errorf("read: invalid message id")
		}
	case m.TypingStart != nil:
		if m.TypingStart.ReceiverId <= 0 {
			return fmt.Errorf("typing_start: invalid receiver id")
		}
	case m.TypingStop != nil:
		if m.TypingStop.ReceiverId <= 0 {
			return fmt.Errorf("typing_stop: invalid receiver id")
		}
	case m.NotifRead != nil:
		if m.NotifRead.NotificationId <= 0 {
			return fmt.Errorf("notification_read: invalid notification id")
		}
	}

	return nil
}

// ServerMessage is the outbound event envelope, one variant per message.
type ServerMessage struct {
	BaseMessage
	Response     *Response           `json:"response,omitempty"`
	Message      *types.Message      `json:"message,omitempty"`
	MessageSent  *MessageSent        `json:"message_sent,omitempty"`
	ReadReceipt  *ReadReceipt        `json:"read_receipt,omitempty"`
	Typing       *TypingIndicator    `json:"typing,omitempty"`
	Presence     *Presence           `json:"presence,omitempty"`
	Notification *types.Notification `json:"notification,omitempty"`
	UnreadCount  *UnreadCount        `json:"unread_count,omitempty"`
	Heartbeat    *Heartbeat          `json:"heartbeat,omitempty"`
	SkipClient   *Client             `json:"-"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Code         string         `json:"code,omitempty"`
	TempId       string         `json:"temp_id,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

type MessageSent struct {
	Message types.Message `json:"message"`
	TempId  string        `json:"temp_id,omitempty"`
}

type ReadReceipt struct {
	MessageId int `json:"message_id"`
	ReadBy    int `json:"read_by"`
}

type TypingIndicator struct {
	UserId          int    `json:"user_id"`
	ConversationKey string `json:"conversation_key"`
	IsTyping        bool   `json:"is_typing"`
}

type Presence struct {
	UserId int  `json:"user_id"`
	Online bool `json:"online"`
}

type UnreadCount struct {
	Messages      int `json:"messages"`
	Notifications int `json:"notifications"`
}

type Heartbeat struct{}

func NoErrOK(id int, data map[string]any) *ServerMessage {
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

func ErrNotMatched(id int, tempId string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        "users are not matched",
			Code:         CodeNotMatched,
			TempId:       tempId,
		},
	}
}

func ErrNotFound(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "not found",
			Code:         CodeNotFound,
		},
	}
}

func ErrInternalError(id int, tempId string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
			Code:         CodeInternalError,
			TempId:       tempId,
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
			Code:         CodeInvalidMessage,
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
