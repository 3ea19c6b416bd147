package domain

import "time"

// UserPublicKey maps a user to their single published public key.
// The key is an opaque blob to the server; no private key material is
// ever stored server-side. Publishing overwrites unconditionally and
// keeps no history.
type UserPublicKey struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	UserID    string    `gorm:"column:user_id;size:64;uniqueIndex" json:"user_id"`
	PublicKey string    `gorm:"column:public_key;type:text" json:"public_key"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name
func (UserPublicKey) TableName() string {
	return "dm_user_public_keys"
}

// PublishKeyRequest is the publish-public-key payload
type PublishKeyRequest struct {
	PublicKey string `json:"public_key" binding:"required"`
}

// PublishKeyResponse reports the publish outcome. Rotated is set when a
// different key was already on file, so clients can warn that earlier
// ciphertext bound to the old key is no longer recoverable.
type PublishKeyResponse struct {
	Success bool `json:"success"`
	Rotated bool `json:"rotated"`
}
