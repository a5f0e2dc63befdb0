package room_manager

import "errors"

var (
	// ErrUnknownRoom means the requested room is not in the seeded set.
	ErrUnknownRoom = errors.New("room not found")

	// ErrUserNameTaken means the username collides with a current member
	// of the room.
	ErrUserNameTaken = errors.New("username already taken in room")

	// ErrNotAMember means the handle no longer names a current member,
	// e.g. it was already consumed by a leave.
	ErrNotAMember = errors.New("not a member of room")
)
