package models

import "time"

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:120;not null" json:"name"`
	Email        string    `gorm:"size:190;uniqueIndex;not null" json:"email"`
	Role         string    `gorm:"size:40;not null" json:"role"` // "veterinarian", "receptionist", ...
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile is the slice of User exposed in message and conversation payloads.
type Profile struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

func (u User) Profile() Profile {
	return Profile{ID: u.ID, Name: u.Name, Role: u.Role}
}

// Message is a 1:1 staff message. Append-only except for the read flag,
// which only ever goes false -> true.
type Message struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SenderID    uint      `gorm:"index;not null" json:"sender_id"`
	RecipientID uint      `gorm:"index;not null" json:"recipient_id"`
	Body        string    `gorm:"type:text;not null" json:"body"`
	Read        bool      `gorm:"column:is_read;not null;default:false" json:"read"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}
