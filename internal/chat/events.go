package chat

import (
	"github.com/sirupsen/logrus"

	"github.com/vinimpm/zoapets-sistema-sub001/internal/models"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/ws"
)

// Publisher is the service's only view of the push layer. The service
// persists first, then publishes; it never touches delivery internals.
type Publisher interface {
	MessageSent(msg models.Message, sender models.Profile)
	ReadStateChanged(userID uint)
	TypingSignaled(senderID, recipientID uint, isTyping bool)
}

type messageSent struct {
	msg    models.Message
	sender models.Profile
}

type readStateChanged struct {
	userID uint
}

type typingSignaled struct {
	senderID    uint
	recipientID uint
	isTyping    bool
}

// Notifier consumes domain events on a single goroutine and routes them to
// the hub, which keeps per-user push ordering FIFO with publish order.
type Notifier struct {
	hub    *ws.Hub
	log    *logrus.Logger
	events chan interface{}
}

func NewNotifier(hub *ws.Hub, log *logrus.Logger) *Notifier {
	return &Notifier{
		hub:    hub,
		log:    log,
		events: make(chan interface{}, 128),
	}
}

func (n *Notifier) MessageSent(msg models.Message, sender models.Profile) {
	n.enqueue(messageSent{msg: msg, sender: sender})
}

func (n *Notifier) ReadStateChanged(userID uint) {
	n.enqueue(readStateChanged{userID: userID})
}

func (n *Notifier) TypingSignaled(senderID, recipientID uint, isTyping bool) {
	n.enqueue(typingSignaled{senderID: senderID, recipientID: recipientID, isTyping: isTyping})
}

// enqueue never blocks the synchronous path: the push channel is
// best-effort and the store stays the source of truth.
func (n *Notifier) enqueue(ev interface{}) {
	select {
	case n.events <- ev:
	default:
		n.log.WithField("event", ev).Warn("notifier queue full, dropping event")
	}
}

// Run dispatches until Close is called. Start it once, from main.
func (n *Notifier) Run() {
	for ev := range n.events {
		switch e := ev.(type) {
		case messageSent:
			n.hub.ChannelFor(e.msg.RecipientID).Push(ws.NewMessageEvent(e.msg, e.sender))
		case readStateChanged:
			n.hub.ChannelFor(e.userID).Push(ws.MessagesReadEvent())
		case typingSignaled:
			n.hub.ChannelFor(e.recipientID).Push(ws.UserTypingEvent(e.senderID, e.isTyping))
		}
	}
}

func (n *Notifier) Close() {
	close(n.events)
}
