package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/vinimpm/zoapets-sistema-sub001/internal/apperrors"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/models"
)

// UserRepository is the user directory: profile lookup for payload
// enrichment and credential lookup for the login endpoint.
type UserRepository interface {
	GetProfile(ctx context.Context, id uint) (models.Profile, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetProfile(ctx context.Context, id uint) (models.Profile, error) {
	var u models.User
	err := r.db.WithContext(ctx).First(&u, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Profile{}, apperrors.ErrUserNotFound
		}
		return models.Profile{}, err
	}
	return u.Profile(), nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, apperrors.ErrUserNotFound
		}
		return models.User{}, err
	}
	return u, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}
