package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event type tags as they appear on the wire in the "_et" field.
const (
	eventTypeLoginSuccessful   = "login_successful"
	eventTypeRoomParticipation = "room_participation"
	eventTypeUserJoined        = "user_joined"
	eventTypeUserLeft          = "user_left"
	eventTypeRoomJoined        = "room_joined"
	eventTypeUserMessage       = "user_message"
	eventTypeError             = "error"
)

// Error kinds carried by ErrorEvent.
const (
	ErrorKindUnknownRoom   = "unknown_room"
	ErrorKindUserNameTaken = "username_taken"
	ErrorKindNotInRoom     = "not_in_room"
)

// Event is a single server-to-client message. Events may originate from any
// room the session participates in; the recipient is always one session.
type Event interface {
	eventType() string
}

// RoomDetail describes one room in a participation snapshot.
type RoomDetail struct {
	Name        string
	Description string
	UserCount   int
}

// LoginSuccessfulEvent acknowledges the username claim of a new session.
type LoginSuccessfulEvent struct {
	SessionID string
	Username  string
}

// RoomParticipationEvent is the room list snapshot sent after login.
type RoomParticipationEvent struct {
	Rooms []RoomDetail
}

// UserJoinedEvent is broadcast to a room when a user joins it.
type UserJoinedEvent struct {
	Room     string
	Username string
}

// UserLeftEvent is broadcast to a room when a user leaves it.
type UserLeftEvent struct {
	Room     string
	Username string
}

// RoomJoinedEvent is the reply to the joining session only, carrying the
// roster as of the join.
type RoomJoinedEvent struct {
	Room  string
	Users []string
}

// UserMessageEvent is a chat message broadcast to a room.
type UserMessageEvent struct {
	Room     string
	Username string
	Content  string
	SentAt   time.Time
}

// ErrorEvent reports a per-command failure to the client. The session
// continues after sending it.
type ErrorEvent struct {
	Kind    string
	Message string
}

func (LoginSuccessfulEvent) eventType() string   { return eventTypeLoginSuccessful }
func (RoomParticipationEvent) eventType() string { return eventTypeRoomParticipation }
func (UserJoinedEvent) eventType() string        { return eventTypeUserJoined }
func (UserLeftEvent) eventType() string          { return eventTypeUserLeft }
func (RoomJoinedEvent) eventType() string        { return eventTypeRoomJoined }
func (UserMessageEvent) eventType() string       { return eventTypeUserMessage }
func (ErrorEvent) eventType() string             { return eventTypeError }

// EventRoom returns the room an event belongs to, or "" for session-scoped
// events such as login replies and errors.
func EventRoom(ev Event) string {
	switch e := ev.(type) {
	case UserJoinedEvent:
		return e.Room
	case UserLeftEvent:
		return e.Room
	case RoomJoinedEvent:
		return e.Room
	case UserMessageEvent:
		return e.Room
	default:
		return ""
	}
}

type rawRoomDetail struct {
	Name        string `json:"n"`
	Description string `json:"d"`
	UserCount   int    `json:"uc"`
}

// rawEvent is the flat adjacency-tagged wire form shared by every event,
// e.g. {"_et":"user_message","r":"general","u":"alice","c":"hi","ts":...}.
type rawEvent struct {
	Type      string          `json:"_et"`
	SessionID string          `json:"s,omitempty"`
	Username  string          `json:"u,omitempty"`
	Room      string          `json:"r,omitempty"`
	Content   string          `json:"c,omitempty"`
	Users     []string        `json:"us,omitempty"`
	Rooms     []rawRoomDetail `json:"rs,omitempty"`
	SentAt    int64           `json:"ts,omitempty"`
	Kind      string          `json:"k,omitempty"`
	Message   string          `json:"m,omitempty"`
}

// EncodeEvent marshals ev into its wire form.
func EncodeEvent(ev Event) ([]byte, error) {
	raw := rawEvent{Type: ev.eventType()}

	switch e := ev.(type) {
	case LoginSuccessfulEvent:
		raw.SessionID = e.SessionID
		raw.Username = e.Username
	case RoomParticipationEvent:
		raw.Rooms = make([]rawRoomDetail, 0, len(e.Rooms))
		for _, r := range e.Rooms {
			raw.Rooms = append(raw.Rooms, rawRoomDetail(r))
		}
	case UserJoinedEvent:
		raw.Room = e.Room
		raw.Username = e.Username
	case UserLeftEvent:
		raw.Room = e.Room
		raw.Username = e.Username
	case RoomJoinedEvent:
		raw.Room = e.Room
		raw.Users = e.Users
	case UserMessageEvent:
		raw.Room = e.Room
		raw.Username = e.Username
		raw.Content = e.Content
		raw.SentAt = e.SentAt.UnixMilli()
	case ErrorEvent:
		raw.Kind = e.Kind
		raw.Message = e.Message
	default:
		return nil, fmt.Errorf("unsupported event type %T", ev)
	}

	return json.Marshal(raw)
}

// DecodeEvent parses a single wire frame into an Event.
func DecodeEvent(data []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed event frame: %w", err)
	}

	switch raw.Type {
	case eventTypeLoginSuccessful:
		return LoginSuccessfulEvent{SessionID: raw.SessionID, Username: raw.Username}, nil
	case eventTypeRoomParticipation:
		rooms := make([]RoomDetail, 0, len(raw.Rooms))
		for _, r := range raw.Rooms {
			rooms = append(rooms, RoomDetail(r))
		}
		return RoomParticipationEvent{Rooms: rooms}, nil
	case eventTypeUserJoined:
		return UserJoinedEvent{Room: raw.Room, Username: raw.Username}, nil
	case eventTypeUserLeft:
		return UserLeftEvent{Room: raw.Room, Username: raw.Username}, nil
	case eventTypeRoomJoined:
		return RoomJoinedEvent{Room: raw.Room, Users: raw.Users}, nil
	case eventTypeUserMessage:
		return UserMessageEvent{
			Room:     raw.Room,
			Username: raw.Username,
			Content:  raw.Content,
			SentAt:   time.UnixMilli(raw.SentAt),
		}, nil
	case eventTypeError:
		return ErrorEvent{Kind: raw.Kind, Message: raw.Message}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", raw.Type)
	}
}
