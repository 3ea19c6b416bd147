package repository

import (
	"time"

	"github.com/murmur-social/murmur-backend/internal/domain"
	"gorm.io/gorm"
)

// GroupMessageRepository group message data access
type GroupMessageRepository interface {
	Create(msg *domain.GroupMessage) error
	FindByID(id uint64) (*domain.GroupMessage, error)
	FindActiveByGroup(groupID uint64, now time.Time) ([]*domain.GroupMessage, error)
	Delete(id uint64) error
	ExpiredAttachmentKeys(now time.Time) ([]string, error)
	DeleteExpired(now time.Time) (int64, error)
}

type groupMessageRepository struct {
	db *gorm.DB
}

// NewGroupMessageRepository creates a new GroupMessageRepository
func NewGroupMessageRepository(db *gorm.DB) GroupMessageRepository {
	return &groupMessageRepository{db: db}
}

func (r *groupMessageRepository) Create(msg *domain.GroupMessage) error {
	return r.db.Create(msg).Error
}

func (r *groupMessageRepository) FindByID(id uint64) (*domain.GroupMessage, error) {
	var msg domain.GroupMessage
	err := r.db.Preload("Attachments").Where("id = ?", id).First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *groupMessageRepository) FindActiveByGroup(groupID uint64, now time.Time) ([]*domain.GroupMessage, error) {
	var messages []*domain.GroupMessage
	err := r.db.Preload("Attachments").
		Where("group_id = ? AND expires_at > ?", groupID, now).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *groupMessageRepository) Delete(id uint64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&domain.GroupMessageAttachment{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.GroupMessage{}).Error
	})
}

func (r *groupMessageRepository) ExpiredAttachmentKeys(now time.Time) ([]string, error) {
	var keys []string
	err := r.db.Model(&domain.GroupMessageAttachment{}).
		Where("file_key != '' AND message_id IN (?)",
			r.db.Model(&domain.GroupMessage{}).Select("id").Where("expires_at <= ?", now)).
		Pluck("file_key", &keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *groupMessageRepository) DeleteExpired(now time.Time) (int64, error) {
	var purged int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("message_id IN (?)", tx.Model(&domain.GroupMessage{}).Select("id").Where("expires_at <= ?", now)).
			Delete(&domain.GroupMessageAttachment{}).Error; err != nil {
			return err
		}
		result := tx.Where("expires_at <= ?", now).Delete(&domain.GroupMessage{})
		if result.Error != nil {
			return result.Error
		}
		purged = result.RowsAffected
		return nil
	})
	return purged, err
}
