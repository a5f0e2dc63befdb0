package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Yengas/go-chat-server/internal/broadcast"
	"github.com/Yengas/go-chat-server/internal/protocol"
)

func recvEvent(t *testing.T, merger *SessionMerger) protocol.Event {
	t.Helper()
	select {
	case ev := <-merger.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for merged event")
		return nil
	}
}

func assertNoEvent(t *testing.T, merger *SessionMerger) {
	t.Helper()
	select {
	case ev := <-merger.Events():
		t.Fatalf("unexpected merged event %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRepliesPrecedeForwardedEvents(t *testing.T) {
	bus := broadcast.New[protocol.Event](16)
	defer bus.Close()

	merger := NewSessionMerger(zap.NewNop())
	defer merger.Close()

	sub := bus.Subscribe()
	bus.Publish(protocol.UserJoinedEvent{Room: "a", Username: "alice"})
	merger.Add("a", sub, protocol.RoomJoinedEvent{Room: "a", Users: []string{"alice"}})

	assert.Equal(t, protocol.RoomJoinedEvent{Room: "a", Users: []string{"alice"}}, recvEvent(t, merger))
	assert.Equal(t, protocol.UserJoinedEvent{Room: "a", Username: "alice"}, recvEvent(t, merger))
}

func TestPerRoomOrderPreserved(t *testing.T) {
	bus := broadcast.New[protocol.Event](64)
	defer bus.Close()

	merger := NewSessionMerger(zap.NewNop())
	defer merger.Close()

	merger.Add("a", bus.Subscribe())
	for i := 0; i < 20; i++ {
		bus.Publish(protocol.UserMessageEvent{Room: "a", Username: "alice", Content: string(rune('a' + i))})
	}

	for i := 0; i < 20; i++ {
		ev := recvEvent(t, merger)
		msg, ok := ev.(protocol.UserMessageEvent)
		require.True(t, ok)
		assert.Equal(t, string(rune('a'+i)), msg.Content)
	}
}

func TestFanInFromTwoRooms(t *testing.T) {
	busA := broadcast.New[protocol.Event](16)
	defer busA.Close()
	busB := broadcast.New[protocol.Event](16)
	defer busB.Close()

	merger := NewSessionMerger(zap.NewNop())
	defer merger.Close()

	merger.Add("a", busA.Subscribe())
	merger.Add("b", busB.Subscribe())

	busA.Publish(protocol.UserMessageEvent{Room: "a", Username: "alice", Content: "from a"})
	busB.Publish(protocol.UserMessageEvent{Room: "b", Username: "bob", Content: "from b"})

	rooms := make(map[string]bool)
	for i := 0; i < 2; i++ {
		ev := recvEvent(t, merger)
		rooms[protocol.EventRoom(ev)] = true
	}
	assert.True(t, rooms["a"], "missing event from room a")
	assert.True(t, rooms["b"], "missing event from room b")
}

// Once Remove returns, nothing published afterwards reaches the output.
func TestRemoveStopsDelivery(t *testing.T) {
	bus := broadcast.New[protocol.Event](16)
	defer bus.Close()

	merger := NewSessionMerger(zap.NewNop())
	defer merger.Close()

	merger.Add("a", bus.Subscribe())

	bus.Publish(protocol.UserMessageEvent{Room: "a", Username: "alice", Content: "before"})
	ev := recvEvent(t, merger)
	require.Equal(t, "before", ev.(protocol.UserMessageEvent).Content)

	require.True(t, merger.Remove("a"))
	bus.Publish(protocol.UserMessageEvent{Room: "a", Username: "alice", Content: "after"})

	assertNoEvent(t, merger)
	assert.False(t, merger.Remove("a"), "second remove should report absence")
}

// A second Add for the same room is ignored and the new subscription is
// released rather than leaked.
func TestAddSameRoomTwiceIgnored(t *testing.T) {
	bus := broadcast.New[protocol.Event](16)
	defer bus.Close()

	merger := NewSessionMerger(zap.NewNop())
	defer merger.Close()

	merger.Add("a", bus.Subscribe())
	merger.Add("a", bus.Subscribe(), protocol.RoomJoinedEvent{Room: "a"})

	bus.Publish(protocol.UserMessageEvent{Room: "a", Username: "alice", Content: "once"})

	ev := recvEvent(t, merger)
	require.Equal(t, "once", ev.(protocol.UserMessageEvent).Content)
	assertNoEvent(t, merger)
}

// A lagged room resyncs silently; a healthy room keeps delivering without
// loss.
func TestLagOnOneRoomDoesNotAffectAnother(t *testing.T) {
	busA := broadcast.New[protocol.Event](4)
	defer busA.Close()
	busB := broadcast.New[protocol.Event](64)
	defer busB.Close()

	merger := NewSessionMerger(zap.NewNop())
	defer merger.Close()

	// Saturate room a far beyond its bus capacity and the merged queue so
	// its subscription lags.
	merger.Add("a", busA.Subscribe())
	for i := 0; i < mergedQueueCapacity+200; i++ {
		busA.Publish(protocol.UserMessageEvent{Room: "a", Username: "alice", Content: "flood"})
	}

	merger.Add("b", busB.Subscribe())
	for i := 0; i < 10; i++ {
		busB.Publish(protocol.UserMessageEvent{Room: "b", Username: "bob", Content: "steady"})
	}

	// All ten room-b events arrive despite room a lagging.
	seenB := 0
	deadline := time.After(2 * time.Second)
	for seenB < 10 {
		select {
		case ev := <-merger.Events():
			if protocol.EventRoom(ev) == "b" {
				seenB++
			}
		case <-deadline:
			t.Fatalf("only %d of 10 room-b events arrived", seenB)
		}
	}
}

func TestCloseStopsForwardersAndDrainDelivers(t *testing.T) {
	bus := broadcast.New[protocol.Event](16)
	defer bus.Close()

	merger := NewSessionMerger(zap.NewNop())
	merger.Add("a", bus.Subscribe())

	bus.Publish(protocol.UserMessageEvent{Room: "a", Username: "alice", Content: "queued"})
	// Give the forwarder a moment to move the event into the output queue.
	time.Sleep(20 * time.Millisecond)

	merger.Close()

	var drained []protocol.Event
	merger.DrainInto(func(ev protocol.Event) error {
		drained = append(drained, ev)
		return nil
	})
	require.Len(t, drained, 1)
	assert.Equal(t, "queued", drained[0].(protocol.UserMessageEvent).Content)

	// Closed merger ignores further Adds.
	merger.Add("b", bus.Subscribe())
	assertNoEvent(t, merger)
}
