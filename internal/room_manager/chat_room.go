package room_manager

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Yengas/go-chat-server/internal/broadcast"
	"github.com/Yengas/go-chat-server/internal/protocol"
)

// ChatRoomMetadata identifies a chat room as seeded at boot.
type ChatRoomMetadata struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// chatRoom owns one broadcast bus and the roster of current members. All
// mutation goes through its mutex, so join/leave/publish on the same room
// are serialized while different rooms proceed in parallel.
type chatRoom struct {
	metadata ChatRoomMetadata

	mu       sync.Mutex
	bus      *broadcast.Bus[protocol.Event]
	registry *userRegistry
	joins    uint64 // total joins since boot, monotonic
}

func newChatRoom(metadata ChatRoomMetadata, busCapacity int) *chatRoom {
	return &chatRoom{
		metadata: metadata,
		bus:      broadcast.New[protocol.Event](busCapacity),
		registry: newUserRegistry(),
	}
}

// tryJoin adds the user to the roster, subscribes them to the room bus and
// broadcasts UserJoined. The subscription is created before the UserJoined
// publish, so the joiner observes their own join event. Fails with
// ErrUserNameTaken when the name is held by a current member.
func (r *chatRoom) tryJoin(sessionID, username string) (*JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.registry.insert(username) {
		return nil, ErrUserNameTaken
	}
	r.joins++
	zap.L().Debug("room.user_joined",
		zap.String("room", r.metadata.Name),
		zap.String("username", username),
		zap.Uint64("join_seq", r.joins))

	sub := r.bus.Subscribe()
	r.bus.Publish(protocol.UserJoinedEvent{Room: r.metadata.Name, Username: username})

	handle := &UserSessionHandle{
		room:      r,
		roomName:  r.metadata.Name,
		username:  username,
		sessionID: sessionID,
	}

	return &JoinResult{
		Handle:       handle,
		Subscription: sub,
		Roster:       r.registry.snapshot(),
	}, nil
}

// leave removes the handle's user from the roster and broadcasts UserLeft.
// The handle is consumed; a second leave fails with ErrNotAMember.
func (r *chatRoom) leave(handle *UserSessionHandle) error {
	if !handle.consumed.CompareAndSwap(false, true) {
		return ErrNotAMember
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.registry.remove(handle.username) {
		return ErrNotAMember
	}
	r.bus.Publish(protocol.UserLeftEvent{Room: r.metadata.Name, Username: handle.username})
	return nil
}

// publishMessage broadcasts a chat message from a current member.
func (r *chatRoom) publishMessage(handle *UserSessionHandle, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.registry.contains(handle.username) {
		return ErrNotAMember
	}
	r.bus.Publish(protocol.UserMessageEvent{
		Room:     r.metadata.Name,
		Username: handle.username,
		Content:  content,
		SentAt:   time.Now().UTC(),
	})
	return nil
}

func (r *chatRoom) detail() protocol.RoomDetail {
	r.mu.Lock()
	defer r.mu.Unlock()

	return protocol.RoomDetail{
		Name:        r.metadata.Name,
		Description: r.metadata.Description,
		UserCount:   r.registry.size(),
	}
}

func (r *chatRoom) close() {
	r.bus.Close()
}
