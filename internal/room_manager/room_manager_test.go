package room_manager

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yengas/go-chat-server/internal/protocol"
)

func newTestManager(t *testing.T, rooms ...string) *RoomManager {
	t.Helper()

	metadatas := make([]ChatRoomMetadata, 0, len(rooms))
	for _, name := range rooms {
		metadatas = append(metadatas, ChatRoomMetadata{Name: name, Description: name + " room"})
	}
	manager, err := NewRoomManager(metadatas, 128)
	require.NoError(t, err)
	t.Cleanup(manager.Close)
	return manager
}

func TestDuplicateSeedNamesRejected(t *testing.T) {
	_, err := NewRoomManager([]ChatRoomMetadata{
		{Name: "general"},
		{Name: "general"},
	}, 128)
	assert.Error(t, err)
}

func TestJoinUnknownRoom(t *testing.T) {
	manager := newTestManager(t, "general")

	_, err := manager.JoinRoom("nope", "session-1", "alice")
	assert.ErrorIs(t, err, ErrUnknownRoom)
}

func TestJoinerObservesOwnJoin(t *testing.T) {
	manager := newTestManager(t, "general")

	res, err := manager.JoinRoom("general", "session-1", "alice")
	require.NoError(t, err)

	ev, err := res.Subscription.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, protocol.UserJoinedEvent{Room: "general", Username: "alice"}, ev)

	assert.Equal(t, []string{"alice"}, res.Roster)
	assert.Equal(t, "general", res.Handle.Room())
	assert.Equal(t, "alice", res.Handle.Username())
}

func TestUserNameTaken(t *testing.T) {
	manager := newTestManager(t, "general")

	first, err := manager.JoinRoom("general", "session-1", "alice")
	require.NoError(t, err)

	_, err = manager.JoinRoom("general", "session-2", "alice")
	assert.ErrorIs(t, err, ErrUserNameTaken)

	// The first membership is unaffected.
	require.NoError(t, first.Handle.SendMessage("still here"))
}

// The same username may be used in different rooms at the same time.
func TestUserNameIndependentAcrossRooms(t *testing.T) {
	manager := newTestManager(t, "a", "b")

	_, err := manager.JoinRoom("a", "session-1", "alice")
	require.NoError(t, err)
	_, err = manager.JoinRoom("b", "session-2", "alice")
	require.NoError(t, err)
}

func TestLeavePublishesUserLeftExactlyOnce(t *testing.T) {
	manager := newTestManager(t, "general")
	ctx := context.Background()

	observer, err := manager.JoinRoom("general", "session-1", "observer")
	require.NoError(t, err)
	// Drain the observer's own join.
	_, err = observer.Subscription.Next(ctx)
	require.NoError(t, err)

	alice, err := manager.JoinRoom("general", "session-2", "alice")
	require.NoError(t, err)

	ev, err := observer.Subscription.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.UserJoinedEvent{Room: "general", Username: "alice"}, ev)

	require.NoError(t, manager.LeaveRoom(alice.Handle))

	ev, err = observer.Subscription.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.UserLeftEvent{Room: "general", Username: "alice"}, ev)

	// The handle is consumed: leaving again fails and publishes nothing.
	assert.ErrorIs(t, manager.LeaveRoom(alice.Handle), ErrNotAMember)
	assert.ErrorIs(t, alice.Handle.SendMessage("ghost"), ErrNotAMember)
}

func TestLeaveThenRejoin(t *testing.T) {
	manager := newTestManager(t, "general")
	ctx := context.Background()

	observer, err := manager.JoinRoom("general", "session-1", "observer")
	require.NoError(t, err)
	_, err = observer.Subscription.Next(ctx)
	require.NoError(t, err)

	first, err := manager.JoinRoom("general", "session-2", "alice")
	require.NoError(t, err)
	require.NoError(t, manager.LeaveRoom(first.Handle))

	second, err := manager.JoinRoom("general", "session-2", "alice")
	require.NoError(t, err)
	require.NoError(t, manager.LeaveRoom(second.Handle))

	// Two join/left pairs for alice, in order.
	want := []protocol.Event{
		protocol.UserJoinedEvent{Room: "general", Username: "alice"},
		protocol.UserLeftEvent{Room: "general", Username: "alice"},
		protocol.UserJoinedEvent{Room: "general", Username: "alice"},
		protocol.UserLeftEvent{Room: "general", Username: "alice"},
	}
	for i, expected := range want {
		ev, err := observer.Subscription.Next(ctx)
		require.NoError(t, err)
		assert.Equalf(t, expected, ev, "event %d", i)
	}
}

func TestMessagesCarryRoomAndSender(t *testing.T) {
	manager := newTestManager(t, "general")
	ctx := context.Background()

	alice, err := manager.JoinRoom("general", "session-1", "alice")
	require.NoError(t, err)
	_, err = alice.Subscription.Next(ctx)
	require.NoError(t, err)

	require.NoError(t, alice.Handle.SendMessage("hi"))

	ev, err := alice.Subscription.Next(ctx)
	require.NoError(t, err)
	msg, ok := ev.(protocol.UserMessageEvent)
	require.True(t, ok, "expected a message event, got %T", ev)
	assert.Equal(t, "general", msg.Room)
	assert.Equal(t, "alice", msg.Username)
	assert.Equal(t, "hi", msg.Content)
	assert.False(t, msg.SentAt.IsZero())
}

// Concurrent joins with the same username admit exactly one member.
func TestConcurrentJoinsUniqueMembership(t *testing.T) {
	const contenders = 16

	manager := newTestManager(t, "general")

	var wg sync.WaitGroup
	results := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := manager.JoinRoom("general", fmt.Sprintf("session-%d", i), "alice")
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var wins, collisions int
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, ErrUserNameTaken)
		collisions++
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, contenders-1, collisions)

	rooms := manager.ListRooms()
	require.Len(t, rooms, 1)
	assert.Equal(t, 1, rooms[0].UserCount)
}

func TestListRoomsSnapshot(t *testing.T) {
	manager := newTestManager(t, "general", "random")

	_, err := manager.JoinRoom("general", "session-1", "alice")
	require.NoError(t, err)
	_, err = manager.JoinRoom("general", "session-2", "bob")
	require.NoError(t, err)

	rooms := manager.ListRooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, "general", rooms[0].Name)
	assert.Equal(t, "general room", rooms[0].Description)
	assert.Equal(t, 2, rooms[0].UserCount)
	assert.Equal(t, "random", rooms[1].Name)
	assert.Equal(t, 0, rooms[1].UserCount)
}
