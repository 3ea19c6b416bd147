package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateAndVerify(t *testing.T) {
	manager := NewManager("test-secret", time.Hour)

	token, err := manager.GenerateToken("user-1", "alice")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := manager.VerifyToken(token)
	assert.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice", claims.Nickname)
}

func TestVerifyWrongSecret(t *testing.T) {
	token, err := NewManager("secret-a", time.Hour).GenerateToken("user-1", "")
	assert.NoError(t, err)

	_, err = NewManager("secret-b", time.Hour).VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyExpired(t *testing.T) {
	token, err := NewManager("test-secret", -time.Minute).GenerateToken("user-1", "")
	assert.NoError(t, err)

	_, err = NewManager("test-secret", time.Hour).VerifyToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyGarbage(t *testing.T) {
	_, err := NewManager("test-secret", time.Hour).VerifyToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
