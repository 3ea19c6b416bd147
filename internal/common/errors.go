package common

import "errors"

// Business logic errors
var (
	// General errors
	ErrNotFound  = errors.New("resource not found")
	ErrForbidden = errors.New("forbidden")

	// Message errors
	ErrMessageNotFound = errors.New("message not found")
	ErrEmptyMessage    = errors.New("message has no content and no attachments")
	ErrMessageExpired  = errors.New("message expired")

	// Key directory errors
	ErrPublicKeyNotFound = errors.New("public key not found")
	ErrInvalidPublicKey  = errors.New("invalid public key")

	// Group errors
	ErrGroupEncryptionUnsupported = errors.New("group messages cannot be encrypted")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrUserNotFound = errors.New("user not found")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)
