package repository

import (
	"time"

	"github.com/murmur-social/murmur-backend/internal/domain"
	"gorm.io/gorm"
)

// MessageRepository direct message data access
type MessageRepository interface {
	Create(msg *domain.Message) error
	FindByID(id uint64) (*domain.Message, error)
	FindActiveBetween(userA, userB string, now time.Time) ([]*domain.Message, error)
	MarkConversationRead(receiverID, senderID string, now time.Time) error
	CountUnread(userID string, now time.Time) (int64, error)
	Delete(id uint64) error
	ExpiredAttachmentKeys(now time.Time) ([]string, error)
	DeleteExpired(now time.Time) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Create inserts the message and its attachments in one transaction.
// gorm persists the Attachments association atomically with the row.
func (r *messageRepository) Create(msg *domain.Message) error {
	return r.db.Create(msg).Error
}

func (r *messageRepository) FindByID(id uint64) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.Preload("Attachments").Where("id = ?", id).First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// FindActiveBetween returns the active window of a conversation, oldest
// first. Expired rows are filtered at query time regardless of whether
// the reaper has purged them yet. Self-conversations (userA == userB)
// fall out of the same predicate.
func (r *messageRepository) FindActiveBetween(userA, userB string, now time.Time) ([]*domain.Message, error) {
	var messages []*domain.Message
	err := r.db.Preload("Attachments").
		Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)) AND expires_at > ?",
			userA, userB, userB, userA, now).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkConversationRead stamps read_at on unread messages sent by senderID
// to receiverID. read_at is the only field ever mutated on a message.
func (r *messageRepository) MarkConversationRead(receiverID, senderID string, now time.Time) error {
	return r.db.Model(&domain.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND read_at IS NULL AND expires_at > ?",
			receiverID, senderID, now).
		Update("read_at", now).Error
}

func (r *messageRepository) CountUnread(userID string, now time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&domain.Message{}).
		Where("receiver_id = ? AND sender_id != ? AND read_at IS NULL AND expires_at > ?",
			userID, userID, now).
		Count(&count).Error
	return count, err
}

// Delete removes the message and its attachments in one transaction.
func (r *messageRepository) Delete(id uint64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&domain.MessageAttachment{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Message{}).Error
	})
}

// ExpiredAttachmentKeys returns the object keys of attachments whose
// parent message is past expiry. Collected before DeleteExpired runs so
// the blobs can be removed from object storage as well.
func (r *messageRepository) ExpiredAttachmentKeys(now time.Time) ([]string, error) {
	var keys []string
	err := r.db.Model(&domain.MessageAttachment{}).
		Where("file_key != '' AND message_id IN (?)",
			r.db.Model(&domain.Message{}).Select("id").Where("expires_at <= ?", now)).
		Pluck("file_key", &keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// DeleteExpired physically purges rows past their expiry. Returns the
// number of messages removed.
func (r *messageRepository) DeleteExpired(now time.Time) (int64, error) {
	var purged int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("message_id IN (?)", tx.Model(&domain.Message{}).Select("id").Where("expires_at <= ?", now)).
			Delete(&domain.MessageAttachment{}).Error; err != nil {
			return err
		}
		result := tx.Where("expires_at <= ?", now).Delete(&domain.Message{})
		if result.Error != nil {
			return result.Error
		}
		purged = result.RowsAffected
		return nil
	})
	return purged, err
}
