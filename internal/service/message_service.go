package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/murmur-social/murmur-backend/internal/common"
	"github.com/murmur-social/murmur-backend/internal/config"
	"github.com/murmur-social/murmur-backend/internal/domain"
	"github.com/murmur-social/murmur-backend/internal/repository"
	"github.com/murmur-social/murmur-backend/pkg/storage"
)

var messagesSentTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dm_messages_sent_total",
		Help: "Total number of direct messages created",
	},
	[]string{"encrypted"},
)

// BlobStore is the opaque attachment store. The DM core never looks
// inside a blob; it only keeps the returned URL.
type BlobStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string, size int64) (*storage.UploadResult, error)
	Delete(ctx context.Context, key string) error
}

// SendMessageRequest carries one direct-message send
type SendMessageRequest struct {
	Content     string
	IsEncrypted bool
	ExpiresIn   int // seconds; 0 means the configured default TTL
	ClientToken string
	Attachments []*multipart.FileHeader
}

// MessageService business logic for direct messages
type MessageService interface {
	Send(ctx context.Context, senderID, receiverID string, req *SendMessageRequest) (*domain.MessageResponse, bool, error)
	GetConversation(ctx context.Context, userID, peerID string) ([]*domain.MessageResponse, error)
	Delete(ctx context.Context, id uint64, requesterID string) error
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

type messageService struct {
	repo      repository.MessageRepository
	blobs     BlobStore
	redis     *redis.Client
	messaging config.MessagingConfig
	now       func() time.Time
}

// NewMessageService creates a new MessageService. redisClient may be nil,
// which disables idempotency-token dedup but nothing else.
func NewMessageService(repo repository.MessageRepository, blobs BlobStore, redisClient *redis.Client, messaging config.MessagingConfig) MessageService {
	return &messageService{
		repo:      repo,
		blobs:     blobs,
		redis:     redisClient,
		messaging: messaging,
		now:       time.Now,
	}
}

// Send creates a direct message atomically with its attachments. The
// second return value is false when the client token was already seen
// and the previously created message is returned instead.
func (s *messageService) Send(ctx context.Context, senderID, receiverID string, req *SendMessageRequest) (*domain.MessageResponse, bool, error) {
	if req.Content == "" && len(req.Attachments) == 0 {
		return nil, false, common.ErrEmptyMessage
	}
	if max := s.messaging.MaxAttachmentsPerMsg; max > 0 && len(req.Attachments) > max {
		return nil, false, fmt.Errorf("%w: too many attachments", common.ErrInvalidInput)
	}

	// Retried send with a seen token returns the original message.
	if req.ClientToken != "" {
		if existing, err := s.lookupToken(ctx, senderID, req.ClientToken); err == nil && existing != nil {
			return existing.ToResponse(), false, nil
		}
	}

	now := s.now()
	ttl := s.messaging.DefaultTTL()
	if req.ExpiresIn > 0 {
		ttl = time.Duration(req.ExpiresIn) * time.Second
	}

	attachments, err := s.uploadAttachments(ctx, req.Attachments)
	if err != nil {
		return nil, false, err
	}

	msg := &domain.Message{
		SenderID:    senderID,
		ReceiverID:  receiverID,
		Content:     req.Content,
		IsEncrypted: req.IsEncrypted,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		Attachments: attachments,
	}
	if err := s.repo.Create(msg); err != nil {
		return nil, false, err
	}

	if req.ClientToken != "" {
		s.rememberToken(ctx, senderID, req.ClientToken, msg.ID)
	}

	messagesSentTotal.WithLabelValues(strconv.FormatBool(req.IsEncrypted)).Inc()
	return msg.ToResponse(), true, nil
}

// GetConversation returns the active message window between userID and
// peerID, oldest first, and marks messages from the peer as read.
func (s *messageService) GetConversation(ctx context.Context, userID, peerID string) ([]*domain.MessageResponse, error) {
	now := s.now()
	messages, err := s.repo.FindActiveBetween(userID, peerID, now)
	if err != nil {
		return nil, err
	}

	if userID != peerID {
		// Read receipts don't apply to self-conversations.
		if err := s.repo.MarkConversationRead(userID, peerID, now); err == nil {
			for _, m := range messages {
				if m.ReceiverID == userID && m.SenderID == peerID && m.ReadAt == nil {
					at := now
					m.ReadAt = &at
				}
			}
		}
	}

	responses := make([]*domain.MessageResponse, len(messages))
	for i, m := range messages {
		responses[i] = m.ToResponse()
	}
	return responses, nil
}

// Delete removes a message. Only the sender may delete; attachments go
// with the row and their blobs are removed best-effort.
func (s *messageService) Delete(ctx context.Context, id uint64, requesterID string) error {
	msg, err := s.repo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.ErrMessageNotFound
		}
		return err
	}
	if msg.SenderID != requesterID {
		return common.ErrUnauthorized
	}

	if err := s.repo.Delete(id); err != nil {
		return err
	}

	if s.blobs != nil {
		for _, a := range msg.Attachments {
			if a.FileKey != "" {
				_ = s.blobs.Delete(ctx, a.FileKey)
			}
		}
	}
	return nil
}

func (s *messageService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.repo.CountUnread(userID, s.now())
}

func (s *messageService) uploadAttachments(ctx context.Context, headers []*multipart.FileHeader) ([]domain.MessageAttachment, error) {
	if len(headers) == 0 {
		return nil, nil
	}
	if s.blobs == nil {
		return nil, fmt.Errorf("attachment storage is not configured")
	}

	maxSize := int64(s.messaging.MaxAttachmentSizeMB) * 1024 * 1024
	attachments := make([]domain.MessageAttachment, 0, len(headers))
	for _, header := range headers {
		if maxSize > 0 && header.Size > maxSize {
			return nil, fmt.Errorf("%w: attachment %s too large", common.ErrInvalidInput, header.Filename)
		}

		file, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("open attachment: %w", err)
		}

		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		key := uuid.New().String() + filepath.Ext(header.Filename)

		result, err := s.blobs.Upload(ctx, key, file, contentType, header.Size)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("upload attachment: %w", err)
		}

		attachments = append(attachments, domain.MessageAttachment{
			FilePath: result.URL,
			FileKey:  result.Key,
			FileType: contentType,
			FileName: header.Filename,
			FileSize: header.Size,
		})
	}
	return attachments, nil
}

func tokenKey(senderID, token string) string {
	return "dm:token:" + senderID + ":" + token
}

func (s *messageService) lookupToken(ctx context.Context, senderID, token string) (*domain.Message, error) {
	if s.redis == nil {
		return nil, nil
	}
	raw, err := s.redis.Get(ctx, tokenKey(senderID, token)).Result()
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByID(id)
}

func (s *messageService) rememberToken(ctx context.Context, senderID, token string, id uint64) {
	if s.redis == nil {
		return
	}
	retention := time.Duration(s.messaging.TokenRetentionHours) * time.Hour
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	s.redis.SetNX(ctx, tokenKey(senderID, token), strconv.FormatUint(id, 10), retention)
}
