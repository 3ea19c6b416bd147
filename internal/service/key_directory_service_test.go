package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/murmur-social/murmur-backend/internal/common"
	"github.com/murmur-social/murmur-backend/internal/config"
	"github.com/murmur-social/murmur-backend/internal/domain"
)

type mockPublicKeyRepo struct {
	mock.Mock
}

func (m *mockPublicKeyRepo) Get(userID string) (*domain.UserPublicKey, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserPublicKey), args.Error(1)
}

func (m *mockPublicKeyRepo) Upsert(userID, publicKey string) error {
	args := m.Called(userID, publicKey)
	return args.Error(0)
}

func TestGetPublicKeyMissing(t *testing.T) {
	repo := new(mockPublicKeyRepo)
	repo.On("Get", "ghost").Return(nil, nil)

	svc := NewKeyDirectoryService(repo, nil, config.MessagingConfig{})
	_, err := svc.GetPublicKey(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrPublicKeyNotFound)
}

func TestGetPublicKey(t *testing.T) {
	repo := new(mockPublicKeyRepo)
	repo.On("Get", "alice").Return(&domain.UserPublicKey{UserID: "alice", PublicKey: "alice-key"}, nil)

	svc := NewKeyDirectoryService(repo, nil, config.MessagingConfig{})
	key, err := svc.GetPublicKey(context.Background(), "alice")
	assert.NoError(t, err)
	assert.Equal(t, "alice-key", key)
}

func TestSetPublicKeyFirstPublish(t *testing.T) {
	repo := new(mockPublicKeyRepo)
	repo.On("Get", "alice").Return(nil, nil)
	repo.On("Upsert", "alice", "alice-key").Return(nil)

	svc := NewKeyDirectoryService(repo, nil, config.MessagingConfig{})
	rotated, err := svc.SetPublicKey(context.Background(), "alice", "alice-key")
	assert.NoError(t, err)
	assert.False(t, rotated)
	repo.AssertExpectations(t)
}

func TestSetPublicKeyRepublishSame(t *testing.T) {
	repo := new(mockPublicKeyRepo)
	repo.On("Get", "alice").Return(&domain.UserPublicKey{UserID: "alice", PublicKey: "alice-key"}, nil)
	repo.On("Upsert", "alice", "alice-key").Return(nil)

	svc := NewKeyDirectoryService(repo, nil, config.MessagingConfig{})
	rotated, err := svc.SetPublicKey(context.Background(), "alice", "alice-key")
	assert.NoError(t, err)
	assert.False(t, rotated)
}

func TestSetPublicKeyRotation(t *testing.T) {
	repo := new(mockPublicKeyRepo)
	repo.On("Get", "alice").Return(&domain.UserPublicKey{UserID: "alice", PublicKey: "old-key"}, nil)
	repo.On("Upsert", "alice", "new-key").Return(nil)

	svc := NewKeyDirectoryService(repo, nil, config.MessagingConfig{})

	// Overwrite wins; the rotation is reported so clients can warn
	rotated, err := svc.SetPublicKey(context.Background(), "alice", "new-key")
	assert.NoError(t, err)
	assert.True(t, rotated)
	repo.AssertExpectations(t)
}

func TestSetPublicKeyInvalid(t *testing.T) {
	repo := new(mockPublicKeyRepo)
	svc := NewKeyDirectoryService(repo, nil, config.MessagingConfig{})

	_, err := svc.SetPublicKey(context.Background(), "alice", "")
	assert.ErrorIs(t, err, common.ErrInvalidPublicKey)

	_, err = svc.SetPublicKey(context.Background(), "alice", strings.Repeat("k", 9*1024))
	assert.ErrorIs(t, err, common.ErrInvalidPublicKey)

	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}
