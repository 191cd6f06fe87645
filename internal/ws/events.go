package ws

import (
	"encoding/json"

	"github.com/vinimpm/zoapets-sistema-sub001/internal/models"
)

// Push event names, server -> client.
const (
	EventNewMessage   = "newMessage"
	EventMessagesRead = "messagesRead"
	EventUserTyping   = "userTyping"
)

// Inbound frame types, client -> server.
const (
	InboundTyping = "typing"
)

// Event is the wire envelope for push events. Payloads are fixed per event
// name; use the constructors below rather than building envelopes by hand.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type NewMessagePayload struct {
	Message models.Message `json:"message"`
	Sender  models.Profile `json:"sender"`
}

// MessagesReadPayload is intentionally empty: clients re-fetch unread
// counts on receipt instead of trusting the push.
type MessagesReadPayload struct{}

type TypingPayload struct {
	UserID   uint `json:"user_id"`
	IsTyping bool `json:"is_typing"`
}

func NewMessageEvent(msg models.Message, sender models.Profile) Event {
	return Event{Type: EventNewMessage, Data: NewMessagePayload{Message: msg, Sender: sender}}
}

func MessagesReadEvent() Event {
	return Event{Type: EventMessagesRead, Data: MessagesReadPayload{}}
}

func UserTypingEvent(userID uint, isTyping bool) Event {
	return Event{Type: EventUserTyping, Data: TypingPayload{UserID: userID, IsTyping: isTyping}}
}

// InboundFrame is a client -> server frame; Data is decoded per Type.
type InboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type TypingRequest struct {
	RecipientID uint `json:"recipient_id"`
	IsTyping    bool `json:"is_typing"`
}
