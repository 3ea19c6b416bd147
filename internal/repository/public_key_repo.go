package repository

import (
	"errors"

	"github.com/murmur-social/murmur-backend/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PublicKeyRepository public-key directory data access
type PublicKeyRepository interface {
	Get(userID string) (*domain.UserPublicKey, error)
	Upsert(userID, publicKey string) error
}

type publicKeyRepository struct {
	db *gorm.DB
}

// NewPublicKeyRepository creates a new PublicKeyRepository
func NewPublicKeyRepository(db *gorm.DB) PublicKeyRepository {
	return &publicKeyRepository{db: db}
}

func (r *publicKeyRepository) Get(userID string) (*domain.UserPublicKey, error) {
	var key domain.UserPublicKey
	err := r.db.Where("user_id = ?", userID).First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &key, nil
}

// Upsert overwrites any existing key for the user. One key per user, no
// history.
func (r *publicKeyRepository) Upsert(userID, publicKey string) error {
	key := domain.UserPublicKey{
		UserID:    userID,
		PublicKey: publicKey,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"public_key", "updated_at"}),
	}).Create(&key).Error
}
