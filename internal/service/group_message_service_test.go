package service

import (
	"context"
	"mime/multipart"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/murmur-social/murmur-backend/internal/common"
	"github.com/murmur-social/murmur-backend/internal/domain"
	"github.com/murmur-social/murmur-backend/pkg/storage"
)

type mockGroupMessageRepo struct {
	mock.Mock
}

func (m *mockGroupMessageRepo) Create(msg *domain.GroupMessage) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *mockGroupMessageRepo) FindByID(id uint64) (*domain.GroupMessage, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GroupMessage), args.Error(1)
}

func (m *mockGroupMessageRepo) FindActiveByGroup(groupID uint64, now time.Time) ([]*domain.GroupMessage, error) {
	args := m.Called(groupID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.GroupMessage), args.Error(1)
}

func (m *mockGroupMessageRepo) Delete(id uint64) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *mockGroupMessageRepo) ExpiredAttachmentKeys(now time.Time) ([]string, error) {
	args := m.Called(now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockGroupMessageRepo) DeleteExpired(now time.Time) (int64, error) {
	args := m.Called(now)
	return args.Get(0).(int64), args.Error(1)
}

func TestGroupSendRefusesEncryption(t *testing.T) {
	repo := new(mockGroupMessageRepo)
	svc := NewGroupMessageService(repo, nil, testMessaging)

	_, err := svc.Send(context.Background(), 1, "alice", &SendGroupMessageRequest{
		Content:     "hello",
		IsEncrypted: true,
	})
	assert.ErrorIs(t, err, common.ErrGroupEncryptionUnsupported)
	repo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestGroupSendEmpty(t *testing.T) {
	repo := new(mockGroupMessageRepo)
	svc := NewGroupMessageService(repo, nil, testMessaging)

	_, err := svc.Send(context.Background(), 1, "alice", &SendGroupMessageRequest{})
	assert.ErrorIs(t, err, common.ErrEmptyMessage)
}

func TestGroupSendDefaultTTL(t *testing.T) {
	repo := new(mockGroupMessageRepo)
	now := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

	repo.On("Create", mock.MatchedBy(func(msg *domain.GroupMessage) bool {
		return msg.GroupID == 42 && msg.SenderID == "alice" &&
			msg.ExpiresAt.Equal(now.Add(24*time.Hour))
	})).Run(func(args mock.Arguments) {
		args.Get(0).(*domain.GroupMessage).ID = 9
	}).Return(nil)

	svc := NewGroupMessageService(repo, nil, testMessaging).(*groupMessageService)
	svc.now = fixedClock(now)

	resp, err := svc.Send(context.Background(), 42, "alice", &SendGroupMessageRequest{Content: "hello group"})
	assert.NoError(t, err)
	assert.Equal(t, uint64(9), resp.ID)
	assert.Equal(t, "hello group", resp.Content)
	repo.AssertExpectations(t)
}

func TestGroupMessagesActiveWindow(t *testing.T) {
	repo := new(mockGroupMessageRepo)
	now := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

	repo.On("FindActiveByGroup", uint64(42), now).Return([]*domain.GroupMessage{
		{ID: 1, GroupID: 42, SenderID: "alice", Content: "first", CreatedAt: now.Add(-time.Minute), ExpiresAt: now.Add(time.Hour)},
	}, nil)

	svc := NewGroupMessageService(repo, nil, testMessaging).(*groupMessageService)
	svc.now = fixedClock(now)

	messages, err := svc.GetGroupMessages(context.Background(), 42)
	assert.NoError(t, err)
	assert.Len(t, messages, 1)
	assert.Equal(t, "first", messages[0].Content)
}

func TestGroupAttachmentKeyAndBlobDelete(t *testing.T) {
	repo := new(mockGroupMessageRepo)
	blobs := new(mockBlobStore)

	var created *domain.GroupMessage
	repo.On("Create", mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(0).(*domain.GroupMessage)
		created.ID = 13
	}).Return(nil)

	// Same key shape as direct messages: uuid plus original extension
	blobs.On("Upload", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasSuffix(key, ".pdf")
	}), mock.Anything, mock.Anything, mock.Anything).
		Return(&storage.UploadResult{
			Key: "dm-attachments/blob-13.pdf",
			URL: "https://cdn.example.com/dm-attachments/blob-13.pdf",
		}, nil)

	svc := NewGroupMessageService(repo, blobs, testMessaging)
	_, err := svc.Send(context.Background(), 42, "alice", &SendGroupMessageRequest{
		Content:     "with file",
		Attachments: []*multipart.FileHeader{fileHeader(t, "notes.pdf", "binary")},
	})
	assert.NoError(t, err)
	assert.Len(t, created.Attachments, 1)
	assert.Equal(t, "dm-attachments/blob-13.pdf", created.Attachments[0].FileKey)

	repo.On("FindByID", uint64(13)).Return(created, nil)
	repo.On("Delete", uint64(13)).Return(nil)
	blobs.On("Delete", mock.Anything, "dm-attachments/blob-13.pdf").Return(nil)

	assert.NoError(t, svc.Delete(context.Background(), 13, "alice"))
	blobs.AssertExpectations(t)
}

func TestGroupDeleteByAuthorOnly(t *testing.T) {
	repo := new(mockGroupMessageRepo)
	repo.On("FindByID", uint64(9)).Return(&domain.GroupMessage{ID: 9, GroupID: 42, SenderID: "alice"}, nil)

	svc := NewGroupMessageService(repo, nil, testMessaging)

	err := svc.Delete(context.Background(), 9, "mallory")
	assert.ErrorIs(t, err, common.ErrUnauthorized)
	repo.AssertNotCalled(t, "Delete", mock.Anything)

	repo.On("Delete", uint64(9)).Return(nil)
	assert.NoError(t, svc.Delete(context.Background(), 9, "alice"))
	repo.AssertExpectations(t)
}
