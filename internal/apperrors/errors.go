package apperrors

import "errors"

var (
	ErrEmptyBody    = errors.New("message body is empty")
	ErrSelfMessage  = errors.New("cannot message yourself")
	ErrNotFound     = errors.New("message not found")
	ErrNotSender    = errors.New("only the sender can delete a message")
	ErrNotRecipient = errors.New("only the recipient can mark a message as read")
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidToken = errors.New("invalid token")
)
