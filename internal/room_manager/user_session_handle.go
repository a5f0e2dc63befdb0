package room_manager

import "sync/atomic"

// UserSessionHandle proves current membership of a (room, user) pair and is
// the only way to publish into the room or to leave it. It is handed out by
// a successful join and consumed by RoomManager.LeaveRoom; once consumed
// every further operation fails with ErrNotAMember.
//
// A handle must not be copied or shared between sessions.
type UserSessionHandle struct {
	room      *chatRoom
	roomName  string
	username  string
	sessionID string
	consumed  atomic.Bool
}

// Room returns the name of the room this handle belongs to.
func (h *UserSessionHandle) Room() string { return h.roomName }

// Username returns the member name this handle was issued for.
func (h *UserSessionHandle) Username() string { return h.username }

// SessionID returns the owning session's id.
func (h *UserSessionHandle) SessionID() string { return h.sessionID }

// SendMessage publishes a chat message to the room on behalf of the member.
func (h *UserSessionHandle) SendMessage(content string) error {
	if h.consumed.Load() {
		return ErrNotAMember
	}
	return h.room.publishMessage(h, content)
}
