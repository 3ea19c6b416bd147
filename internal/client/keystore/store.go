// Package keystore holds the client's private key for the duration of a
// session. The private key never leaves the device through this package;
// its only other legitimate home is the one-time backup file offered at
// generation time.
package keystore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoKey is returned by Load when the store holds no key
var ErrNoKey = errors.New("no private key in store")

// Store is the secure local key store. Clear must be called on logout or
// session expiry, before any redirect that could leave stale key
// material attached to a new session.
type Store interface {
	Load() ([]byte, error)
	Save(key []byte) error
	Clear() error
}

// FileStore persists the key as a PEM file with 0600 permissions under a
// per-session directory.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore at the given path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the stored key material
func (s *FileStore) Load() ([]byte, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoKey
		}
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return raw, nil
}

// Save writes the key material, creating the parent directory if needed
func (s *FileStore) Save(key []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(s.path, key, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	return nil
}

// Clear erases the stored key. Idempotent: clearing an empty store is
// not an error.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove private key: %w", err)
	}
	return nil
}

// MemoryStore keeps the key in memory only. Used in tests and by hosts
// that manage their own persistence.
type MemoryStore struct {
	mu  sync.Mutex
	key []byte
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored key material
func (s *MemoryStore) Load() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil, ErrNoKey
	}
	out := make([]byte, len(s.key))
	copy(out, s.key)
	return out, nil
}

// Save stores a copy of the key material
func (s *MemoryStore) Save(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = make([]byte, len(key))
	copy(s.key, key)
	return nil
}

// Clear zeroes and drops the key
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.key {
		s.key[i] = 0
	}
	s.key = nil
	return nil
}
