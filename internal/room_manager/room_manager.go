// Package room_manager holds the process-wide room registry: the fixed set
// of chat rooms seeded at boot, their rosters, and the per-room broadcast
// buses. Join and leave are atomic per room; different rooms never contend
// with each other.
package room_manager

import (
	"fmt"

	"github.com/Yengas/go-chat-server/internal/broadcast"
	"github.com/Yengas/go-chat-server/internal/protocol"
)

// JoinResult is everything a session receives from a successful join: the
// membership handle, the room subscription positioned strictly before the
// session's own UserJoined event, and the roster as of the join.
type JoinResult struct {
	Handle       *UserSessionHandle
	Subscription *broadcast.Subscription[protocol.Event]
	Roster       []string
}

// RoomManager maps room names to rooms. The map is built once at
// construction and never mutated, so lookups need no locking; all mutable
// state lives inside the individual rooms.
type RoomManager struct {
	rooms     map[string]*chatRoom
	metadatas []ChatRoomMetadata
}

// NewRoomManager builds the registry from the seeded metadata list.
// Duplicate room names are a boot error.
func NewRoomManager(metadatas []ChatRoomMetadata, busCapacity int) (*RoomManager, error) {
	rooms := make(map[string]*chatRoom, len(metadatas))
	for _, metadata := range metadatas {
		if _, dup := rooms[metadata.Name]; dup {
			return nil, fmt.Errorf("duplicate room name %q", metadata.Name)
		}
		rooms[metadata.Name] = newChatRoom(metadata, busCapacity)
	}

	return &RoomManager{
		rooms:     rooms,
		metadatas: append([]ChatRoomMetadata(nil), metadatas...),
	}, nil
}

// JoinRoom adds the user to the named room. Either the user ends up in the
// roster with a subscription created before any event they will observe, or
// no side effect happened at all.
func (m *RoomManager) JoinRoom(roomName, sessionID, username string) (*JoinResult, error) {
	room, ok := m.rooms[roomName]
	if !ok {
		return nil, ErrUnknownRoom
	}
	return room.tryJoin(sessionID, username)
}

// LeaveRoom consumes the handle, removes the user from the roster and
// broadcasts exactly one UserLeft for the join that produced the handle.
func (m *RoomManager) LeaveRoom(handle *UserSessionHandle) error {
	room, ok := m.rooms[handle.Room()]
	if !ok {
		return ErrUnknownRoom
	}
	return room.leave(handle)
}

// ListRooms returns a point-in-time snapshot of every room with its current
// size, in seed order.
func (m *RoomManager) ListRooms() []protocol.RoomDetail {
	out := make([]protocol.RoomDetail, 0, len(m.metadatas))
	for _, metadata := range m.metadatas {
		out = append(out, m.rooms[metadata.Name].detail())
	}
	return out
}

// Close shuts down every room bus. Live subscriptions drain and then
// observe the closed state.
func (m *RoomManager) Close() {
	for _, room := range m.rooms {
		room.close()
	}
}
