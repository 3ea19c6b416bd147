// Package envelope implements the message envelope: X25519 key agreement
// with an ephemeral sender key, HKDF-SHA256 key derivation, and
// AES-256-GCM. An envelope sealed for a recipient's public key can only
// be opened with the matching private key.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	// envelopeVersion prefixes every ciphertext blob so future schemes
	// can coexist with stored messages.
	envelopeVersion = "mk1"

	keySize = 32
)

var (
	// ErrEncrypt malformed recipient key or sealing failure
	ErrEncrypt = errors.New("encryption failed")
	// ErrDecrypt key mismatch or corrupted payload. Callers render a
	// placeholder instead of propagating this.
	ErrDecrypt = errors.New("decryption failed")
)

var hkdfInfo = []byte("murmur-dm-envelope-v1")

// Codec seals and opens message envelopes. It is instantiable so tests
// can inject deterministic randomness; it holds no session state.
type Codec struct {
	rand io.Reader
}

// NewCodec creates a Codec using crypto/rand
func NewCodec() *Codec {
	return &Codec{rand: rand.Reader}
}

// NewCodecWithRand creates a Codec with an injected randomness source
func NewCodecWithRand(r io.Reader) *Codec {
	return &Codec{rand: r}
}

// Seal encrypts plaintext for the holder of recipientPublicKey. The
// result is "mk1.<ephemeral pub>.<nonce>.<ciphertext>", base64 fields.
func (c *Codec) Seal(plaintext string, recipientPublicKey string) (string, error) {
	recipientPub, err := DecodePublicKey(recipientPublicKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncrypt, err)
	}

	ephemeralPriv := make([]byte, keySize)
	if _, err := io.ReadFull(c.rand, ephemeralPriv); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncrypt, err)
	}
	ephemeralPub, err := curve25519.X25519(ephemeralPriv, curve25519.Basepoint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncrypt, err)
	}

	aead, err := deriveAEAD(ephemeralPriv, recipientPub)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncrypt, err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncrypt, err)
	}
	ciphertext := aead.Seal(nil, nonce, []byte(plaintext), nil)

	enc := base64.RawStdEncoding.EncodeToString
	return strings.Join([]string{envelopeVersion, enc(ephemeralPub), enc(nonce), enc(ciphertext)}, "."), nil
}

// SealFor applies the self-conversation rule: when sender and recipient
// are the same identity, the envelope is sealed against the sender's own
// public key and selfSealed reports that the caller already knows the
// plaintext and need not round-trip through decryption.
func (c *Codec) SealFor(senderID, recipientID, recipientPublicKey, senderPublicKey, plaintext string) (envelope string, selfSealed bool, err error) {
	if senderID == recipientID {
		sealed, err := c.Seal(plaintext, senderPublicKey)
		return sealed, true, err
	}
	sealed, err := c.Seal(plaintext, recipientPublicKey)
	return sealed, false, err
}

// Open decrypts an envelope with the local private key. Any parse
// failure, key mismatch, or corruption surfaces as ErrDecrypt.
func (c *Codec) Open(envelope string, privateKey []byte) (string, error) {
	if len(privateKey) != keySize {
		return "", fmt.Errorf("%w: bad private key size", ErrDecrypt)
	}

	parts := strings.Split(envelope, ".")
	if len(parts) != 4 || parts[0] != envelopeVersion {
		return "", fmt.Errorf("%w: malformed envelope", ErrDecrypt)
	}

	dec := base64.RawStdEncoding.DecodeString
	ephemeralPub, err := dec(parts[1])
	if err != nil || len(ephemeralPub) != keySize {
		return "", fmt.Errorf("%w: malformed ephemeral key", ErrDecrypt)
	}
	nonce, err := dec(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: malformed nonce", ErrDecrypt)
	}
	ciphertext, err := dec(parts[3])
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext", ErrDecrypt)
	}

	aead, err := deriveAEAD(privateKey, ephemeralPub)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(nonce) != aead.NonceSize() {
		return "", fmt.Errorf("%w: bad nonce size", ErrDecrypt)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

// deriveAEAD runs X25519 between the two key halves and expands the
// shared secret into an AES-256-GCM key via HKDF-SHA256.
func deriveAEAD(privateKey, publicKey []byte) (cipher.AEAD, error) {
	shared, err := curve25519.X25519(privateKey, publicKey)
	if err != nil {
		return nil, err
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, hkdfInfo), key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncodePublicKey renders a raw X25519 public key as the base64 blob
// published to the directory service.
func EncodePublicKey(raw []byte) string {
	return base64.RawStdEncoding.EncodeToString(raw)
}

// DecodePublicKey parses a directory-service key blob
func DecodePublicKey(encoded string) ([]byte, error) {
	raw, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("decode public key: invalid size %d", len(raw))
	}
	return raw, nil
}
