package migration

import (
	"github.com/murmur-social/murmur-backend/internal/domain"
	"gorm.io/gorm"
)

// Run executes AutoMigrate for the DM core tables.
func Run(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Message{},
		&domain.MessageAttachment{},
		&domain.GroupMessage{},
		&domain.GroupMessageAttachment{},
		&domain.UserPublicKey{},
	)
}
