package server

import (
	"net/http"
	"time"

	"chatserver/internal/types"
)

type BaseEvent struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientEvent is the closed set of inbound events. Exactly one variant must
// be set; anything else is rejected as an invalid message rather than
// silently reading missing fields.
type ClientEvent struct {
	BaseEvent
	Join       *JoinRequest       `json:"join,omitempty"`
	Publish    *PublishRequest    `json:"send_message,omitempty"`
	Typing     *TypingRequest     `json:"typing,omitempty"`
	ChangeRoom *ChangeRoomRequest `json:"change_room,omitempty"`
	React      *ReactRequest      `json:"react_to_message,omitempty"`
	Read       *ReadRequest       `json:"mark_message_read,omitempty"`
	Reconnect  *ReconnectRequest  `json:"reconnect_identity,omitempty"`
	Private    *PrivateRequest    `json:"private_message,omitempty"`
	client     *Client
}

type JoinRequest struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type PublishRequest struct {
	Content string          `json:"content,omitempty"`
	File    *types.FileInfo `json:"file,omitempty"`
	TempId  string          `json:"temp_id,omitempty"`
}

type TypingRequest struct {
	IsTyping bool `json:"is_typing"`
}

type ChangeRoomRequest struct {
	Room string `json:"room"`
}

type ReactRequest struct {
	MessageId int    `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type ReadRequest struct {
	MessageId int `json:"message_id"`
}

type ReconnectRequest struct {
	ConnectionId string `json:"connection_id"`
}

type PrivateRequest struct {
	To      string `json:"to"`
	Content string `json:"content"`
	TempId  string `json:"temp_id,omitempty"`
}

// variantCount reports how many inbound variants are set.
func (e *ClientEvent) variantCount() int {
	var n int
	for _, set := range []bool{
		e.Join != nil,
		e.Publish != nil,
		e.Typing != nil,
		e.ChangeRoom != nil,
		e.React != nil,
		e.Read != nil,
		e.Reconnect != nil,
		e.Private != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// ServerEvent is the closed set of outbound events.
type ServerEvent struct {
	BaseEvent
	Response        *Response             `json:"response,omitempty"`
	Message         *types.Message        `json:"message,omitempty"`
	History         *RoomHistory          `json:"room_history,omitempty"`
	DeliveryAck     *DeliveryAck          `json:"message_delivery_ack,omitempty"`
	UserJoined      *PresenceNotice       `json:"user_joined,omitempty"`
	UserLeft        *PresenceNotice       `json:"user_left,omitempty"`
	UserReconnected *PresenceNotice       `json:"user_reconnected,omitempty"`
	UserList        *UserList             `json:"user_list,omitempty"`
	TypingList      *TypingList           `json:"typing_list,omitempty"`
	MessageUpdated  *types.Message        `json:"message_updated,omitempty"`
	MessageRead     *ReadNotice           `json:"message_read,omitempty"`
	Private         *types.PrivateMessage `json:"private_message,omitempty"`
	PrivateAck      *DeliveryAck          `json:"private_message_delivered,omitempty"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

type RoomHistory struct {
	Room     string           `json:"room"`
	Messages []*types.Message `json:"messages"`
}

type DeliveryAck struct {
	TempId    string `json:"temp_id,omitempty"`
	MessageId int    `json:"message_id"`
}

type PresenceNotice struct {
	Username    string    `json:"username"`
	Timestamp   time.Time `json:"timestamp"`
	OnlineCount int       `json:"online_count"`
	Reason      string    `json:"reason,omitempty"`
}

type UserList struct {
	Room  string       `json:"room"`
	Users []types.User `json:"users"`
}

type TypingList struct {
	Room      string   `json:"room"`
	Usernames []string `json:"usernames"`
}

type ReadNotice struct {
	MessageId  int       `json:"message_id"`
	ReadAt     time.Time `json:"read_at"`
	ReaderName string    `json:"reader_name"`
}

func NoErrOK(id int, data map[string]any) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func ErrValidation(id int, msg string) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        msg,
		},
	}
}

func ErrNotAuthenticated(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusUnauthorized,
			Error:        "user not authenticated",
		},
	}
}

func ErrRoomNotFound(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "room not found",
		},
	}
}

func ErrUserNotFound(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "user not found",
		},
	}
}

func ErrInternalError(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerEvent {
	msg := &ServerEvent{
		BaseEvent: BaseEvent{
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
