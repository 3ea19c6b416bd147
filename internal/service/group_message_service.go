package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/murmur-social/murmur-backend/internal/common"
	"github.com/murmur-social/murmur-backend/internal/config"
	"github.com/murmur-social/murmur-backend/internal/domain"
	"github.com/murmur-social/murmur-backend/internal/repository"
)

// SendGroupMessageRequest carries one group-message send
type SendGroupMessageRequest struct {
	Content     string
	IsEncrypted bool // always rejected; groups are plaintext only
	ExpiresIn   int  // seconds; 0 means the configured default TTL
	Attachments []*multipart.FileHeader
}

// GroupMessageService business logic for group messages. Groups never
// pass through the envelope codec; encryption requests are refused.
type GroupMessageService interface {
	Send(ctx context.Context, groupID uint64, senderID string, req *SendGroupMessageRequest) (*domain.GroupMessageResponse, error)
	GetGroupMessages(ctx context.Context, groupID uint64) ([]*domain.GroupMessageResponse, error)
	Delete(ctx context.Context, id uint64, requesterID string) error
}

type groupMessageService struct {
	repo      repository.GroupMessageRepository
	blobs     BlobStore
	messaging config.MessagingConfig
	now       func() time.Time
}

// NewGroupMessageService creates a new GroupMessageService
func NewGroupMessageService(repo repository.GroupMessageRepository, blobs BlobStore, messaging config.MessagingConfig) GroupMessageService {
	return &groupMessageService{
		repo:      repo,
		blobs:     blobs,
		messaging: messaging,
		now:       time.Now,
	}
}

func (s *groupMessageService) Send(ctx context.Context, groupID uint64, senderID string, req *SendGroupMessageRequest) (*domain.GroupMessageResponse, error) {
	if req.IsEncrypted {
		return nil, common.ErrGroupEncryptionUnsupported
	}
	if req.Content == "" && len(req.Attachments) == 0 {
		return nil, common.ErrEmptyMessage
	}

	now := s.now()
	ttl := s.messaging.DefaultTTL()
	if req.ExpiresIn > 0 {
		ttl = time.Duration(req.ExpiresIn) * time.Second
	}

	attachments, err := s.uploadAttachments(ctx, req)
	if err != nil {
		return nil, err
	}

	msg := &domain.GroupMessage{
		GroupID:     groupID,
		SenderID:    senderID,
		Content:     req.Content,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		Attachments: attachments,
	}
	if err := s.repo.Create(msg); err != nil {
		return nil, err
	}
	return msg.ToResponse(), nil
}

func (s *groupMessageService) GetGroupMessages(ctx context.Context, groupID uint64) ([]*domain.GroupMessageResponse, error) {
	messages, err := s.repo.FindActiveByGroup(groupID, s.now())
	if err != nil {
		return nil, err
	}
	responses := make([]*domain.GroupMessageResponse, len(messages))
	for i, m := range messages {
		responses[i] = m.ToResponse()
	}
	return responses, nil
}

// Delete removes a group message. Only its author may delete it.
func (s *groupMessageService) Delete(ctx context.Context, id uint64, requesterID string) error {
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

func (s *groupMessageService) uploadAttachments(ctx context.Context, req *SendGroupMessageRequest) ([]domain.GroupMessageAttachment, error) {
	if len(req.Attachments) == 0 {
		return nil, nil
	}
	if s.blobs == nil {
		return nil, fmt.Errorf("attachment storage is not configured")
	}

	attachments := make([]domain.GroupMessageAttachment, 0, len(req.Attachments))
	for _, header := range req.Attachments {
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

		attachments = append(attachments, domain.GroupMessageAttachment{
			FilePath: result.URL,
			FileKey:  result.Key,
			FileType: contentType,
			FileName: header.Filename,
			FileSize: header.Size,
		})
	}
	return attachments, nil
}
