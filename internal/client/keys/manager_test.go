package keys

import (
	"context"
	"encoding/pem"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/curve25519"

	"github.com/murmur-social/murmur-backend/internal/client/envelope"
	"github.com/murmur-social/murmur-backend/internal/client/keystore"
)

type fakeDirectory struct {
	published  []string
	publishErr error
}

func (d *fakeDirectory) PublishPublicKey(_ context.Context, publicKey string) (bool, error) {
	if d.publishErr != nil {
		return false, d.publishErr
	}
	d.published = append(d.published, publicKey)
	return len(d.published) > 1, nil
}

func (d *fakeDirectory) GetPublicKey(_ context.Context, _ string) (string, error) {
	return "", errors.New("not implemented")
}

func TestGenerate(t *testing.T) {
	store := keystore.NewMemoryStore()
	dir := &fakeDirectory{}
	manager := NewManager(store, dir)

	backup, err := manager.Generate(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "murmur-private-key.pem", backup.FileName)

	block, _ := pem.Decode(backup.PEM)
	assert.NotNil(t, block)
	assert.Equal(t, "X25519 PRIVATE KEY", block.Type)
	assert.Len(t, block.Bytes, 32)

	// Private half persisted to the store
	stored, err := store.Load()
	assert.NoError(t, err)
	assert.Equal(t, backup.PEM, stored)

	// Public half published and consistent with the private half
	assert.Len(t, dir.published, 1)
	pub, err := curve25519.X25519(block.Bytes, curve25519.Basepoint)
	assert.NoError(t, err)
	assert.Equal(t, envelope.EncodePublicKey(pub), dir.published[0])

	assert.True(t, manager.HasKey())
}

func TestGenerateUploadFailure(t *testing.T) {
	store := keystore.NewMemoryStore()
	dir := &fakeDirectory{publishErr: errors.New("directory down")}
	manager := NewManager(store, dir)

	backup, err := manager.Generate(context.Background())
	assert.ErrorIs(t, err, ErrKeyUpload)

	// The backup and the local key survive an upload failure
	assert.NotNil(t, backup)
	assert.True(t, manager.HasKey())
	_, loadErr := store.Load()
	assert.NoError(t, loadErr)
}

func TestImport(t *testing.T) {
	store := keystore.NewMemoryStore()
	manager := NewManager(store, &fakeDirectory{})

	priv := make([]byte, 32)
	priv[0] = 42
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "X25519 PRIVATE KEY", Bytes: priv})

	assert.NoError(t, manager.Import(context.Background(), pemBytes))
	assert.True(t, manager.HasKey())

	got, err := manager.PrivateKey()
	assert.NoError(t, err)
	assert.Equal(t, priv, got)
}

func TestImportMalformed(t *testing.T) {
	manager := NewManager(keystore.NewMemoryStore(), &fakeDirectory{})

	cases := [][]byte{
		nil,
		[]byte("not pem at all"),
		pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: make([]byte, 32)}),
		pem.EncodeToMemory(&pem.Block{Type: "X25519 PRIVATE KEY", Bytes: make([]byte, 16)}),
	}
	for _, candidate := range cases {
		err := manager.Import(context.Background(), candidate)
		assert.ErrorIs(t, err, ErrInvalidPrivateKey)
	}
	assert.False(t, manager.HasKey())
}

func TestPrivateKeyLazyLoad(t *testing.T) {
	store := keystore.NewMemoryStore()
	priv := make([]byte, 32)
	priv[5] = 7
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "X25519 PRIVATE KEY", Bytes: priv})
	assert.NoError(t, store.Save(pemBytes))

	// A fresh manager over a populated store finds the key on demand
	manager := NewManager(store, &fakeDirectory{})
	got, err := manager.PrivateKey()
	assert.NoError(t, err)
	assert.Equal(t, priv, got)
}

func TestPrivateKeyReturnsCopy(t *testing.T) {
	store := keystore.NewMemoryStore()
	manager := NewManager(store, &fakeDirectory{})
	_, err := manager.Generate(context.Background())
	assert.NoError(t, err)

	first, err := manager.PrivateKey()
	assert.NoError(t, err)
	snapshot := append([]byte(nil), first...)

	// Mutating the returned slice must not corrupt the cached key
	first[0] ^= 0xff
	again, err := manager.PrivateKey()
	assert.NoError(t, err)
	assert.Equal(t, snapshot, again)

	// Clear zeroes only the cache, not slices already handed out
	held, err := manager.PrivateKey()
	assert.NoError(t, err)
	assert.NoError(t, manager.Clear())
	assert.Equal(t, snapshot, held)
}

func TestClear(t *testing.T) {
	store := keystore.NewMemoryStore()
	manager := NewManager(store, &fakeDirectory{})

	_, err := manager.Generate(context.Background())
	assert.NoError(t, err)
	assert.True(t, manager.HasKey())

	assert.NoError(t, manager.Clear())
	assert.False(t, manager.HasKey())

	_, err = store.Load()
	assert.ErrorIs(t, err, keystore.ErrNoKey)

	_, err = manager.PrivateKey()
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestPublicKeyWithoutKey(t *testing.T) {
	manager := NewManager(keystore.NewMemoryStore(), &fakeDirectory{})

	_, err := manager.PublicKey()
	assert.ErrorIs(t, err, ErrNoKey)
	assert.False(t, manager.HasKey())
}
