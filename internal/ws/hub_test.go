package ws

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/vinimpm/zoapets-sistema-sub001/internal/models"
)

type fakeConn struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (f *fakeConn) WriteJSON(ctx context.Context, v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, v.(Event))
	return nil
}

func (f *fakeConn) Ping(ctx context.Context) error { return nil }

func (f *fakeConn) Close(code websocket.StatusCode, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) received() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.events))
	copy(out, f.events)
	return out
}

func newTestHub() *Hub {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewHub(logger)
}

func TestAddAndRemoveTrackPresence(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()

	req.Zero(hub.Connections(7))

	c1 := hub.Add(7, &fakeConn{})
	c2 := hub.Add(7, &fakeConn{})
	req.Equal(2, hub.Connections(7))
	req.NotEqual(c1.ConnID, c2.ConnID)

	hub.Remove(c1)
	req.Equal(1, hub.Connections(7))

	hub.Remove(c2)
	req.Zero(hub.Connections(7))

	hub.mu.RLock()
	_, stillThere := hub.clients[7]
	hub.mu.RUnlock()
	req.False(stillThere, "empty set must remove the user entry")
}

func TestRemoveClosesTheConnection(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()

	conn := &fakeConn{}
	c := hub.Add(7, conn)
	hub.Remove(c)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	req.True(conn.closed)
}

func TestPushFansOutToEveryConnectionOnce(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()

	tab1, tab2, other := &fakeConn{}, &fakeConn{}, &fakeConn{}
	c1 := hub.Add(7, tab1)
	defer hub.Remove(c1)
	c2 := hub.Add(7, tab2)
	defer hub.Remove(c2)
	c3 := hub.Add(8, other)
	defer hub.Remove(c3)

	hub.ChannelFor(7).Push(MessagesReadEvent())

	req.Eventually(func() bool {
		return len(tab1.received()) == 1 && len(tab2.received()) == 1
	}, time.Second, 5*time.Millisecond)

	req.Equal(EventMessagesRead, tab1.received()[0].Type)
	req.Empty(other.received(), "other users' channels stay quiet")
}

func TestPushToUserWithoutConnectionsIsANoOp(t *testing.T) {
	hub := newTestHub()

	// Must not panic or block.
	hub.ChannelFor(42).Push(UserTypingEvent(1, true))
}

func TestPushPreservesOrderPerConnection(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()

	conn := &fakeConn{}
	c := hub.Add(7, conn)
	defer hub.Remove(c)

	ch := hub.ChannelFor(7)
	ch.Push(NewMessageEvent(models.Message{ID: 1, Body: "first"}, models.Profile{ID: 2}))
	ch.Push(NewMessageEvent(models.Message{ID: 2, Body: "second"}, models.Profile{ID: 2}))
	ch.Push(MessagesReadEvent())

	req.Eventually(func() bool {
		return len(conn.received()) == 3
	}, time.Second, 5*time.Millisecond)

	events := conn.received()
	req.Equal(uint(1), events[0].Data.(NewMessagePayload).Message.ID)
	req.Equal(uint(2), events[1].Data.(NewMessagePayload).Message.ID)
	req.Equal(EventMessagesRead, events[2].Type)
}

func TestPushAfterRemoveReachesNobody(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()

	conn := &fakeConn{}
	c := hub.Add(7, conn)
	hub.Remove(c)

	hub.ChannelFor(7).Push(MessagesReadEvent())

	time.Sleep(20 * time.Millisecond)
	req.Empty(conn.received())
}
