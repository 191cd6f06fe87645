package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/vinimpm/zoapets-sistema-sub001/internal/apperrors"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/models"
)

// MessageRepository is the durable store for staff messages. It is the sole
// arbiter of message state; read-flag mutation never happens anywhere else.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	// ListBetween returns both directions of the pair, ascending by creation
	// time. Symmetric in its arguments.
	ListBetween(ctx context.Context, userA, userB uint) ([]models.Message, error)
	ListReceived(ctx context.Context, userID uint) ([]models.Message, error)
	ListSent(ctx context.Context, userID uint) ([]models.Message, error)
	CountUnread(ctx context.Context, userID uint) (int64, error)
	// MarkRead is all-or-nothing: every id must exist and belong to userID as
	// recipient, otherwise nothing is applied.
	MarkRead(ctx context.Context, ids []uint, userID uint) error
	MarkConversationRead(ctx context.Context, userID, counterpartID uint) error
	Delete(ctx context.Context, id, userID uint) error

	// Aggregation queries backing the conversation list.
	CounterpartIDs(ctx context.Context, userID uint) ([]uint, error)
	LastBetween(ctx context.Context, userA, userB uint) (models.Message, error)
	CountUnreadFrom(ctx context.Context, userID, counterpartID uint) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *models.Message) error {
	msg.ID = 0
	msg.Read = false
	msg.CreatedAt = time.Now()
	return r.db.WithContext(ctx).Create(msg).Error
}

func pairScope(userA, userB uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			userA, userB, userB, userA,
		)
	}
}

func (r *messageRepository) ListBetween(ctx context.Context, userA, userB uint) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Scopes(pairScope(userA, userB)).
		Order("created_at asc, id asc").
		Find(&msgs).Error
	return msgs, err
}

func (r *messageRepository) ListReceived(ctx context.Context, userID uint) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", userID).
		Order("created_at desc, id desc").
		Find(&msgs).Error
	return msgs, err
}

func (r *messageRepository) ListSent(ctx context.Context, userID uint) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("sender_id = ?", userID).
		Order("created_at desc, id desc").
		Find(&msgs).Error
	return msgs, err
}

func (r *messageRepository) CountUnread(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (r *messageRepository) MarkRead(ctx context.Context, ids []uint, userID uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Exact-count protection: a batch containing a message the caller
		// does not own as recipient (or that does not exist) is rejected whole.
		var owned int64
		if err := tx.Model(&models.Message{}).
			Where("id IN ? AND recipient_id = ?", ids, userID).
			Count(&owned).Error; err != nil {
			return err
		}
		if owned != int64(len(ids)) {
			return apperrors.ErrNotRecipient
		}
		return tx.Model(&models.Message{}).
			Where("id IN ? AND recipient_id = ?", ids, userID).
			Update("is_read", true).Error
	})
}

func (r *messageRepository) MarkConversationRead(ctx context.Context, userID, counterpartID uint) error {
	// The predicate already scopes to the caller as recipient, so no
	// ownership check is needed.
	return r.db.WithContext(ctx).Model(&models.Message{}).
		Where("sender_id = ? AND recipient_id = ? AND is_read = ?", counterpartID, userID, false).
		Update("is_read", true).Error
}

func (r *messageRepository) Delete(ctx context.Context, id, userID uint) error {
	var msg models.Message
	err := r.db.WithContext(ctx).First(&msg, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		return err
	}
	if msg.SenderID != userID {
		return apperrors.ErrNotSender
	}
	return r.db.WithContext(ctx).Delete(&models.Message{}, id).Error
}

func (r *messageRepository) CounterpartIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Raw(`
		SELECT DISTINCT CASE WHEN sender_id = ? THEN recipient_id ELSE sender_id END AS counterpart_id
		FROM messages
		WHERE sender_id = ? OR recipient_id = ?`,
		userID, userID, userID,
	).Scan(&ids).Error
	return ids, err
}

func (r *messageRepository) LastBetween(ctx context.Context, userA, userB uint) (models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).
		Scopes(pairScope(userA, userB)).
		Order("created_at desc, id desc").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Message{}, apperrors.ErrNotFound
	}
	return msg, err
}

func (r *messageRepository) CountUnreadFrom(ctx context.Context, userID, counterpartID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("sender_id = ? AND recipient_id = ? AND is_read = ?", counterpartID, userID, false).
		Count(&count).Error
	return count, err
}
