package envelope

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/curve25519"
)

func generateKeypair(t *testing.T) (pub string, priv []byte) {
	t.Helper()
	priv = make([]byte, 32)
	_, err := rand.Read(priv)
	assert.NoError(t, err)
	raw, err := curve25519.X25519(priv, curve25519.Basepoint)
	assert.NoError(t, err)
	return EncodePublicKey(raw), priv
}

func TestSealOpenRoundTrip(t *testing.T) {
	codec := NewCodec()
	pub, priv := generateKeypair(t)

	plaintexts := []string{
		"hi",
		"",
		"a longer message with spaces and unicode: 안녕하세요 🎉",
		strings.Repeat("x", 10_000),
	}

	for _, plaintext := range plaintexts {
		sealed, err := codec.Seal(plaintext, pub)
		assert.NoError(t, err)
		assert.NotEqual(t, plaintext, sealed)
		assert.True(t, strings.HasPrefix(sealed, "mk1."))

		opened, err := codec.Open(sealed, priv)
		assert.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestSealProducesDistinctCiphertext(t *testing.T) {
	codec := NewCodec()
	pub, _ := generateKeypair(t)

	first, err := codec.Seal("same message", pub)
	assert.NoError(t, err)
	second, err := codec.Seal("same message", pub)
	assert.NoError(t, err)

	// Fresh ephemeral key and nonce per envelope
	assert.NotEqual(t, first, second)
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	codec := NewCodec()
	pub, _ := generateKeypair(t)
	_, otherPriv := generateKeypair(t)

	sealed, err := codec.Seal("secret", pub)
	assert.NoError(t, err)

	_, err = codec.Open(sealed, otherPriv)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestOpenMalformedEnvelope(t *testing.T) {
	codec := NewCodec()
	_, priv := generateKeypair(t)

	cases := []string{
		"",
		"not an envelope",
		"mk1.only.three",
		"mk2.a.b.c",
		"mk1.!!!.!!!.!!!",
	}
	for _, envelope := range cases {
		_, err := codec.Open(envelope, priv)
		assert.ErrorIs(t, err, ErrDecrypt, "envelope %q", envelope)
	}
}

func TestOpenCorruptedCiphertext(t *testing.T) {
	codec := NewCodec()
	pub, priv := generateKeypair(t)

	sealed, err := codec.Seal("secret", pub)
	assert.NoError(t, err)

	parts := strings.Split(sealed, ".")
	parts[3] = parts[3][:len(parts[3])-2] + "zz"
	_, err = codec.Open(strings.Join(parts, "."), priv)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestSealMalformedPublicKey(t *testing.T) {
	codec := NewCodec()

	for _, key := range []string{"", "tooshort", "!!invalid base64!!"} {
		_, err := codec.Seal("hello", key)
		assert.ErrorIs(t, err, ErrEncrypt)
	}
}

func TestSealForSelfConversation(t *testing.T) {
	codec := NewCodec()
	ownPub, ownPriv := generateKeypair(t)
	peerPub, peerPriv := generateKeypair(t)

	// Same identity: sealed against the sender's own key
	sealed, selfSealed, err := codec.SealFor("alice", "alice", peerPub, ownPub, "note to self")
	assert.NoError(t, err)
	assert.True(t, selfSealed)

	opened, err := codec.Open(sealed, ownPriv)
	assert.NoError(t, err)
	assert.Equal(t, "note to self", opened)

	// Different identity: sealed against the recipient's key
	sealed, selfSealed, err = codec.SealFor("alice", "bob", peerPub, ownPub, "hi bob")
	assert.NoError(t, err)
	assert.False(t, selfSealed)

	opened, err = codec.Open(sealed, peerPriv)
	assert.NoError(t, err)
	assert.Equal(t, "hi bob", opened)

	_, err = codec.Open(sealed, ownPriv)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecodePublicKey(t *testing.T) {
	pub, _ := generateKeypair(t)

	raw, err := DecodePublicKey(pub)
	assert.NoError(t, err)
	assert.Len(t, raw, 32)

	_, err = DecodePublicKey("short")
	assert.Error(t, err)
}
