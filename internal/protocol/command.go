package protocol

import (
	"encoding/json"
	"fmt"
)

// Command type tags as they appear on the wire in the "_ct" field.
const (
	commandTypeLogin       = "login"
	commandTypeJoinRoom    = "join_room"
	commandTypeLeaveRoom   = "leave_room"
	commandTypeSendMessage = "send_message"
	commandTypeQuit        = "quit"
)

// Command is a single client request processed in the context of one chat
// session. See DecodeCommand for the wire representation.
type Command interface {
	commandType() string
}

// LoginCommand claims a username for the session. It must be the first
// command sent on a new connection.
type LoginCommand struct {
	Username string
}

// JoinRoomCommand asks to join the named room.
type JoinRoomCommand struct {
	Room string
}

// LeaveRoomCommand asks to leave the named room.
type LeaveRoomCommand struct {
	Room string
}

// SendMessageCommand sends a chat message to a room the session has joined.
type SendMessageCommand struct {
	Room    string
	Content string
}

// QuitCommand terminates the whole chat session.
type QuitCommand struct{}

func (LoginCommand) commandType() string       { return commandTypeLogin }
func (JoinRoomCommand) commandType() string    { return commandTypeJoinRoom }
func (LeaveRoomCommand) commandType() string   { return commandTypeLeaveRoom }
func (SendMessageCommand) commandType() string { return commandTypeSendMessage }
func (QuitCommand) commandType() string        { return commandTypeQuit }

// rawCommand is the flat adjacency-tagged wire form shared by every command,
// e.g. {"_ct":"send_message","r":"general","c":"hi"}.
type rawCommand struct {
	Type     string `json:"_ct"`
	Username string `json:"u,omitempty"`
	Room     string `json:"r,omitempty"`
	Content  string `json:"c,omitempty"`
}

// EncodeCommand marshals cmd into its wire form.
func EncodeCommand(cmd Command) ([]byte, error) {
	raw := rawCommand{Type: cmd.commandType()}

	switch c := cmd.(type) {
	case LoginCommand:
		raw.Username = c.Username
	case JoinRoomCommand:
		raw.Room = c.Room
	case LeaveRoomCommand:
		raw.Room = c.Room
	case SendMessageCommand:
		raw.Room = c.Room
		raw.Content = c.Content
	case QuitCommand:
	default:
		return nil, fmt.Errorf("unsupported command type %T", cmd)
	}

	return json.Marshal(raw)
}

// DecodeCommand parses a single wire frame into a Command.
func DecodeCommand(data []byte) (Command, error) {
	var raw rawCommand
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed command frame: %w", err)
	}

	switch raw.Type {
	case commandTypeLogin:
		return LoginCommand{Username: raw.Username}, nil
	case commandTypeJoinRoom:
		return JoinRoomCommand{Room: raw.Room}, nil
	case commandTypeLeaveRoom:
		return LeaveRoomCommand{Room: raw.Room}, nil
	case commandTypeSendMessage:
		return SendMessageCommand{Room: raw.Room, Content: raw.Content}, nil
	case commandTypeQuit:
		return QuitCommand{}, nil
	default:
		return nil, fmt.Errorf("unknown command type %q", raw.Type)
	}
}
