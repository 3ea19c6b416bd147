package service

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/murmur-social/murmur-backend/internal/common"
	"github.com/murmur-social/murmur-backend/internal/config"
	"github.com/murmur-social/murmur-backend/internal/repository"
	pkglogger "github.com/murmur-social/murmur-backend/pkg/logger"
)

// maxPublicKeySize bounds the opaque key blob the directory accepts
const maxPublicKeySize = 8 * 1024

// KeyDirectoryService maps user identity to their current public key.
// The key is opaque to the server. One key per user, overwrite wins,
// no history kept.
type KeyDirectoryService interface {
	GetPublicKey(ctx context.Context, userID string) (string, error)
	SetPublicKey(ctx context.Context, userID, publicKey string) (rotated bool, err error)
}

type keyDirectoryService struct {
	repo      repository.PublicKeyRepository
	redis     *redis.Client
	messaging config.MessagingConfig
}

// NewKeyDirectoryService creates a new KeyDirectoryService. redisClient
// may be nil, which disables the lookup cache.
func NewKeyDirectoryService(repo repository.PublicKeyRepository, redisClient *redis.Client, messaging config.MessagingConfig) KeyDirectoryService {
	return &keyDirectoryService{
		repo:      repo,
		redis:     redisClient,
		messaging: messaging,
	}
}

func cacheKey(userID string) string {
	return "dm:pubkey:" + userID
}

// GetPublicKey returns the user's published key, or
// common.ErrPublicKeyNotFound when none exists.
func (s *keyDirectoryService) GetPublicKey(ctx context.Context, userID string) (string, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, cacheKey(userID)).Result()
		if err == nil && cached != "" {
			return cached, nil
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			// Cache trouble is not a lookup failure; fall through to the DB.
			pkglogger.GetLogger().Warn().Err(err).Str("user_id", userID).Msg("public key cache read failed")
		}
	}

	record, err := s.repo.Get(userID)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", common.ErrPublicKeyNotFound
	}

	if s.redis != nil {
		s.redis.Set(ctx, cacheKey(userID), record.PublicKey, s.messaging.KeyCacheTTL())
	}
	return record.PublicKey, nil
}

// SetPublicKey overwrites the user's key unconditionally. Returns
// rotated=true when a different key was already on file: republishing
// silently breaks decryption of earlier ciphertext bound to the old
// key, so clients surface a warning on rotation.
func (s *keyDirectoryService) SetPublicKey(ctx context.Context, userID, publicKey string) (bool, error) {
	if publicKey == "" || len(publicKey) > maxPublicKeySize {
		return false, common.ErrInvalidPublicKey
	}

	existing, err := s.repo.Get(userID)
	if err != nil {
		return false, err
	}
	rotated := existing != nil && existing.PublicKey != publicKey

	if err := s.repo.Upsert(userID, publicKey); err != nil {
		return false, err
	}

	if s.redis != nil {
		s.redis.Del(ctx, cacheKey(userID))
	}

	if rotated {
		pkglogger.GetLogger().Info().Str("user_id", userID).Msg("public key rotated")
	}
	return rotated, nil
}
