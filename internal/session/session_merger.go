package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Yengas/go-chat-server/internal/broadcast"
	"github.com/Yengas/go-chat-server/internal/protocol"
)

// Capacity of the merged output queue. It is fixed per session and separate
// from the room bus capacity; it gives a briefly slow wire some slack before
// the subscriptions start to lag.
const mergedQueueCapacity = 100

// SessionMerger multiplexes the room subscriptions of one session into a
// single ordered event queue. One forwarder goroutine runs per subscription;
// within a room the output preserves publish order, across rooms ordering is
// arbitrary but no room is starved.
type SessionMerger struct {
	out chan protocol.Event
	log *zap.Logger

	mu         sync.Mutex
	forwarders map[string]*forwarder
	closed     bool
}

type forwarder struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSessionMerger creates an empty merger.
func NewSessionMerger(log *zap.Logger) *SessionMerger {
	return &SessionMerger{
		out:        make(chan protocol.Event, mergedQueueCapacity),
		log:        log,
		forwarders: make(map[string]*forwarder),
	}
}

// Events is the merged output queue.
func (m *SessionMerger) Events() <-chan protocol.Event {
	return m.out
}

// Add starts delivering events from sub into the merged output under the
// given room name. The reply events are delivered first, ahead of anything
// the subscription yields. Adding a room that is already present is a no-op.
func (m *SessionMerger) Add(room string, sub *broadcast.Subscription[protocol.Event], replies ...protocol.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		sub.Cancel()
		return
	}
	if _, exists := m.forwarders[room]; exists {
		sub.Cancel()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &forwarder{cancel: cancel, done: make(chan struct{})}
	m.forwarders[room] = f

	go m.forward(ctx, f, room, sub, replies)
}

// forward pumps one subscription into the merged output until the
// subscription ends or the forwarder is cancelled.
func (m *SessionMerger) forward(ctx context.Context, f *forwarder, room string, sub *broadcast.Subscription[protocol.Event], replies []protocol.Event) {
	defer close(f.done)
	defer sub.Cancel()

	for _, ev := range replies {
		select {
		case m.out <- ev:
		case <-ctx.Done():
			return
		}
	}

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			var lagged *broadcast.LaggedError
			if errors.As(err, &lagged) {
				// Default lag policy: resync silently and keep going.
				m.log.Warn("merger.subscription_lagged",
					zap.String("room", room),
					zap.Uint64("missed", lagged.Missed))
				continue
			}
			return
		}

		select {
		case m.out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// Remove stops delivery from the named room. When Remove returns, no
// further events from that room will enter the merged output; events that
// were already queued are still delivered. Reports whether the room was
// present.
func (m *SessionMerger) Remove(room string) bool {
	m.mu.Lock()
	f, ok := m.forwarders[room]
	delete(m.forwarders, room)
	m.mu.Unlock()

	if !ok {
		return false
	}
	f.cancel()
	<-f.done
	return true
}

// Close stops every forwarder and waits for them to exit. The merged output
// is not closed; events still queued can be drained with DrainInto.
func (m *SessionMerger) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	stopped := make([]*forwarder, 0, len(m.forwarders))
	for room, f := range m.forwarders {
		stopped = append(stopped, f)
		delete(m.forwarders, room)
	}
	m.mu.Unlock()

	for _, f := range stopped {
		f.cancel()
		<-f.done
	}
}

// DrainInto delivers any events still queued after Close to write,
// stopping at the first error. Must only be called once all forwarders have
// stopped.
func (m *SessionMerger) DrainInto(write func(protocol.Event) error) {
	for {
		select {
		case ev := <-m.out:
			if err := write(ev); err != nil {
				return
			}
		default:
			return
		}
	}
}
