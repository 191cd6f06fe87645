// Package chat implements the messaging façade: persistence through the
// message repository, lazy conversation aggregation, read-state handling
// and typing presence, with push notifications published as domain events.
package chat

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vinimpm/zoapets-sistema-sub001/internal/apperrors"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/models"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/repository"
)

// Conversation is a derived view, recomputed on every query.
type Conversation struct {
	User        models.Profile `json:"user"`
	LastMessage models.Message `json:"last_message"`
	UnreadCount int64          `json:"unread_count"`
}

type Service struct {
	messages repository.MessageRepository
	users    repository.UserRepository
	pub      Publisher
	log      *logrus.Logger
}

func NewService(messages repository.MessageRepository, users repository.UserRepository, pub Publisher, log *logrus.Logger) *Service {
	return &Service{messages: messages, users: users, pub: pub, log: log}
}

// Send validates, persists and then publishes; the recipient's connections
// learn about the message only after it is durable.
func (s *Service) Send(ctx context.Context, senderID, recipientID uint, body string) (models.Message, error) {
	if strings.TrimSpace(body) == "" {
		return models.Message{}, apperrors.ErrEmptyBody
	}
	if senderID == recipientID {
		return models.Message{}, apperrors.ErrSelfMessage
	}

	if _, err := s.users.GetProfile(ctx, recipientID); err != nil {
		return models.Message{}, err
	}

	msg := models.Message{
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        body,
	}
	if err := s.messages.Create(ctx, &msg); err != nil {
		s.log.WithError(err).Error("failed to persist message")
		return models.Message{}, err
	}

	sender, err := s.users.GetProfile(ctx, senderID)
	if err != nil {
		// Enrichment only; the push still carries the message itself.
		sender = models.Profile{ID: senderID}
	}
	s.pub.MessageSent(msg, sender)

	s.log.WithFields(logrus.Fields{
		"message_id":   msg.ID,
		"sender_id":    senderID,
		"recipient_id": recipientID,
	}).Info("message sent")

	return msg, nil
}

func (s *Service) Conversation(ctx context.Context, userID, counterpartID uint) ([]models.Message, error) {
	return s.messages.ListBetween(ctx, userID, counterpartID)
}

func (s *Service) Received(ctx context.Context, userID uint) ([]models.Message, error) {
	return s.messages.ListReceived(ctx, userID)
}

func (s *Service) Sent(ctx context.Context, userID uint) ([]models.Message, error) {
	return s.messages.ListSent(ctx, userID)
}

func (s *Service) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return s.messages.CountUnread(ctx, userID)
}

// MarkRead flips the read flag on the given messages, all-or-nothing, then
// notifies the caller's own other connections so they can drop badges.
func (s *Service) MarkRead(ctx context.Context, userID uint, ids []uint) error {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil
	}
	if err := s.messages.MarkRead(ctx, ids, userID); err != nil {
		return err
	}
	s.pub.ReadStateChanged(userID)
	return nil
}

func (s *Service) MarkConversationRead(ctx context.Context, userID, counterpartID uint) error {
	if err := s.messages.MarkConversationRead(ctx, userID, counterpartID); err != nil {
		return err
	}
	s.pub.ReadStateChanged(userID)
	return nil
}

func (s *Service) Delete(ctx context.Context, userID, messageID uint) error {
	if err := s.messages.Delete(ctx, messageID, userID); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"message_id": messageID,
		"user_id":    userID,
	}).Info("message deleted")
	return nil
}

// Typing forwards a transient signal; nothing is persisted. Debouncing and
// the trailing is_typing=false are the client's contract.
func (s *Service) Typing(senderID, recipientID uint, isTyping bool) {
	s.pub.TypingSignaled(senderID, recipientID, isTyping)
}

// Conversations lists one entry per counterpart the user has exchanged
// messages with, newest conversation first.
func (s *Service) Conversations(ctx context.Context, userID uint) ([]Conversation, error) {
	counterparts, err := s.messages.CounterpartIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	convs := make([]Conversation, 0, len(counterparts))
	for _, id := range counterparts {
		last, err := s.messages.LastBetween(ctx, userID, id)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return nil, err
		}

		unread, err := s.messages.CountUnreadFrom(ctx, userID, id)
		if err != nil {
			return nil, err
		}

		profile, err := s.users.GetProfile(ctx, id)
		if err != nil {
			if !errors.Is(err, apperrors.ErrUserNotFound) {
				return nil, err
			}
			// Counterpart no longer in the directory; keep the thread.
			profile = models.Profile{ID: id}
		}

		convs = append(convs, Conversation{
			User:        profile,
			LastMessage: last,
			UnreadCount: unread,
		})
	}

	sort.Slice(convs, func(i, j int) bool {
		a, b := convs[i].LastMessage, convs[j].LastMessage
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	return convs, nil
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
