// Package keys manages the client's asymmetric keypair: generation,
// import of a pasted backup, and publication of the public half to the
// directory service.
package keys

import (
	"context"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/curve25519"

	"github.com/murmur-social/murmur-backend/internal/client/envelope"
	"github.com/murmur-social/murmur-backend/internal/client/keystore"
)

const privateKeyPEMType = "X25519 PRIVATE KEY"

var (
	// ErrKeyGeneration keypair generation or local persistence failed
	ErrKeyGeneration = errors.New("key generation failed")
	// ErrKeyUpload publishing the public half failed; the local key is
	// still usable for self-conversations
	ErrKeyUpload = errors.New("public key upload failed")
	// ErrInvalidPrivateKey an imported key is structurally malformed
	ErrInvalidPrivateKey = errors.New("invalid private key format")
	// ErrNoKey no private key is available this session
	ErrNoKey = errors.New("no private key available")
)

// Directory is the remote public-key directory as seen by the client
type Directory interface {
	PublishPublicKey(ctx context.Context, publicKey string) (rotated bool, err error)
	GetPublicKey(ctx context.Context, userID string) (string, error)
}

// Backup is the one-time downloadable copy of a freshly generated
// private key. It is handed to the user exactly once and never sent
// anywhere.
type Backup struct {
	FileName string
	PEM      []byte
}

// Manager owns the session keypair. It is instantiable with injected
// storage, directory client, and randomness so no process-wide state
// leaks between sessions.
type Manager struct {
	store keystore.Store
	dir   Directory
	rand  io.Reader

	mu   sync.Mutex
	priv []byte // raw 32-byte scalar, cached after first load
}

// NewManager creates a key manager bound to a session key store
func NewManager(store keystore.Store, dir Directory) *Manager {
	return &Manager{store: store, dir: dir, rand: rand.Reader}
}

// NewManagerWithRand creates a Manager with injected randomness for tests
func NewManagerWithRand(store keystore.Store, dir Directory, r io.Reader) *Manager {
	return &Manager{store: store, dir: dir, rand: r}
}

// Generate creates a fresh X25519 keypair, persists the private half to
// the key store, uploads the public half to the directory, and returns a
// backup for the user to download. Generation and upload are tracked
// independently: when only the upload fails the returned error wraps
// ErrKeyUpload and the backup is still valid, leaving the key usable for
// self-conversations.
func (m *Manager) Generate(ctx context.Context) (*Backup, error) {
	priv := make([]byte, 32)
	if _, err := io.ReadFull(m.rand, priv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: privateKeyPEMType, Bytes: priv})
	if err := m.store.Save(pemBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	m.mu.Lock()
	m.priv = priv
	m.mu.Unlock()

	backup := &Backup{
		FileName: "murmur-private-key.pem",
		PEM:      pemBytes,
	}

	if _, err := m.dir.PublishPublicKey(ctx, envelope.EncodePublicKey(pub)); err != nil {
		return backup, fmt.Errorf("%w: %v", ErrKeyUpload, err)
	}
	return backup, nil
}

// Import validates a pasted private key and accepts it into the key
// store. Only structural well-formedness is checked; whether the key
// matches the public key already published for this user is not
// verified here, so a mismatched import surfaces later as decryption
// failures.
func (m *Manager) Import(ctx context.Context, candidate []byte) error {
	priv, err := parsePrivateKeyPEM(candidate)
	if err != nil {
		return err
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: privateKeyPEMType, Bytes: priv})
	if err := m.store.Save(pemBytes); err != nil {
		return fmt.Errorf("save imported key: %w", err)
	}

	m.mu.Lock()
	m.priv = priv
	m.mu.Unlock()
	return nil
}

// HasKey reports whether a usable private key is present this session
func (m *Manager) HasKey() bool {
	_, err := m.PrivateKey()
	return err == nil
}

// PrivateKey returns the raw private scalar, loading it from the store
// on first use. The returned slice is a copy; Clear zeroes only the
// cached original.
func (m *Manager) PrivateKey() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.priv == nil {
		raw, err := m.store.Load()
		if err != nil {
			if errors.Is(err, keystore.ErrNoKey) {
				return nil, ErrNoKey
			}
			return nil, err
		}
		priv, err := parsePrivateKeyPEM(raw)
		if err != nil {
			return nil, err
		}
		m.priv = priv
	}

	out := make([]byte, len(m.priv))
	copy(out, m.priv)
	return out, nil
}

// PublicKey derives the directory-form public key from the session
// private key.
func (m *Manager) PublicKey() (string, error) {
	priv, err := m.PrivateKey()
	if err != nil {
		return "", err
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return "", err
	}
	return envelope.EncodePublicKey(pub), nil
}

// Clear erases the session key. Called on logout or session expiry,
// before any redirect.
func (m *Manager) Clear() error {
	m.mu.Lock()
	for i := range m.priv {
		m.priv[i] = 0
	}
	m.priv = nil
	m.mu.Unlock()

	return m.store.Clear()
}

func parsePrivateKeyPEM(raw []byte) ([]byte, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidPrivateKey)
	}
	if block.Type != privateKeyPEMType {
		return nil, fmt.Errorf("%w: unexpected type %q", ErrInvalidPrivateKey, block.Type)
	}
	if len(block.Bytes) != 32 {
		return nil, fmt.Errorf("%w: invalid key size %d", ErrInvalidPrivateKey, len(block.Bytes))
	}
	priv := make([]byte, 32)
	copy(priv, block.Bytes)
	return priv, nil
}
