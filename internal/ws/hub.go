package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Conn is the transport surface the hub needs from a websocket connection.
// Real connections are wrapped with Wrap; tests substitute fakes.
type Conn interface {
	WriteJSON(ctx context.Context, v interface{}) error
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
}

type nhooyrConn struct {
	c *websocket.Conn
}

func (n nhooyrConn) WriteJSON(ctx context.Context, v interface{}) error {
	return wsjson.Write(ctx, n.c, v)
}

func (n nhooyrConn) Ping(ctx context.Context) error {
	return n.c.Ping(ctx)
}

func (n nhooyrConn) Close(code websocket.StatusCode, reason string) error {
	return n.c.Close(code, reason)
}

func Wrap(c *websocket.Conn) Conn {
	return nhooyrConn{c: c}
}

// Client is one admitted websocket connection. A user may hold several
// at once (tabs, devices).
type Client struct {
	UserID uint
	ConnID string
	Conn   Conn
	Send   chan Event

	ctx    context.Context
	cancel context.CancelFunc
}

// Hub is the connection registry and delivery router. Presence is derived
// purely from set non-emptiness; there is no separate online flag.
type Hub struct {
	log *logrus.Logger

	mu      sync.RWMutex
	clients map[uint]map[*Client]struct{}
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: map[uint]map[*Client]struct{}{},
	}
}

// Add registers an authenticated connection under userID and starts its
// write and keepalive loops. Callers must have verified the credential first.
func (h *Hub) Add(userID uint, conn Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		UserID: userID,
		ConnID: uuid.New().String(),
		Conn:   conn,
		Send:   make(chan Event, 64),
		ctx:    ctx,
		cancel: cancel,
	}

	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = map[*Client]struct{}{}
	}
	h.clients[userID][c] = struct{}{}
	total := len(h.clients[userID])
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{
		"user_id":     userID,
		"conn_id":     c.ConnID,
		"connections": total,
	}).Info("websocket connection admitted")

	go c.writeLoop()
	go c.keepAliveLoop()

	return c
}

// Remove drops the connection from its user's set; the last connection
// removes the user entry entirely.
func (h *Hub) Remove(c *Client) {
	c.cancel()

	h.mu.Lock()
	if set, ok := h.clients[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	h.mu.Unlock()

	_ = c.Conn.Close(websocket.StatusNormalClosure, "bye")

	h.log.WithFields(logrus.Fields{
		"user_id": c.UserID,
		"conn_id": c.ConnID,
	}).Info("websocket connection closed")
}

// Connections reports how many open connections userID currently holds.
func (h *Hub) Connections(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Channel is a handle on one user's logical broadcast group.
type Channel struct {
	hub    *Hub
	userID uint
}

func (h *Hub) ChannelFor(userID uint) Channel {
	return Channel{hub: h, userID: userID}
}

// Push fans the event out to every open connection of the channel's user.
// A user with zero connections is a silent no-op; a full send buffer drops
// the frame. The store stays authoritative either way.
func (ch Channel) Push(ev Event) {
	ch.hub.mu.RLock()
	defer ch.hub.mu.RUnlock()

	for c := range ch.hub.clients[ch.userID] {
		select {
		case c.Send <- ev:
		default:
			ch.hub.log.WithFields(logrus.Fields{
				"user_id": ch.userID,
				"conn_id": c.ConnID,
				"event":   ev.Type,
			}).Warn("send buffer full, dropping event")
		}
	}
}

func (c *Client) writeLoop() {
	// Send is never closed: a Push racing a Remove may still hold the
	// channel, and an abandoned open channel is collected anyway.
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.Send:
			writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = c.Conn.WriteJSON(writeCtx, ev)
			cancel()
		}
	}
}

func (c *Client) keepAliveLoop() {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = c.Conn.Ping(pingCtx)
			cancel()
		}
	}
}
