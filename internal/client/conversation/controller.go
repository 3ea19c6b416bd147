// Package conversation orchestrates one open conversation on the
// client: the encryption availability state machine, the optimistic
// send/reconcile/rollback pipeline, and periodic refresh against the
// server's view.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/murmur-social/murmur-backend/internal/client/api"
	"github.com/murmur-social/murmur-backend/internal/client/envelope"
	"github.com/murmur-social/murmur-backend/internal/client/keys"
	pkglogger "github.com/murmur-social/murmur-backend/pkg/logger"
)

// State is the per-conversation encryption availability state
type State int

const (
	// StateNoLocalKey the local user has no private key; encryption
	// controls are disabled and interactions route to key setup
	StateNoLocalKey State = iota
	// StatePeerKeyUnknown a local key exists but the peer has no known
	// public key even after a lazy directory lookup
	StatePeerKeyUnknown
	// StateEncryptionOff encryption is available but toggled off
	StateEncryptionOff
	// StateEncryptionOn encryption is available and toggled on
	StateEncryptionOn
)

func (s State) String() string {
	switch s {
	case StateNoLocalKey:
		return "no-local-key"
	case StatePeerKeyUnknown:
		return "peer-key-unknown"
	case StateEncryptionOff:
		return "encryption-off"
	case StateEncryptionOn:
		return "encryption-on"
	default:
		return "unknown"
	}
}

// DecryptPlaceholder is rendered in place of content that cannot be
// decrypted. Decryption failures never abort the conversation view.
const DecryptPlaceholder = "[unable to decrypt]"

var (
	// ErrMissingRecipientKey an encrypted send was blocked client-side
	// because the peer's public key could not be resolved; no message
	// request was issued
	ErrMissingRecipientKey = errors.New("recipient has no published public key")
	// ErrEncryptionUnavailable the toggle was used outside an
	// encryption-available state
	ErrEncryptionUnavailable = errors.New("encryption is not available in this conversation")
	// ErrEmptyMessage a send with no content and no attachments
	ErrEmptyMessage = errors.New("message has no content and no attachments")
	// ErrGroupEncryptionUnsupported groups are plaintext only; the
	// refusal happens before any network call
	ErrGroupEncryptionUnsupported = errors.New("group messages cannot be encrypted")
)

// API is the server surface the controller drives
type API interface {
	FetchConversation(ctx context.Context, peerID string) (*api.Conversation, error)
	SendMessage(ctx context.Context, recipientID string, req api.SendRequest) (*api.Message, error)
	SendGroupMessage(ctx context.Context, groupID uint64, content string) (*api.GroupMessage, error)
	GetPublicKey(ctx context.Context, userID string) (string, error)
}

// Entry is one visible message in the conversation view. Pending
// entries carry a client-only token identity distinct from any server
// id until reconciliation replaces them with the confirmed entity.
type Entry struct {
	ID          uint64
	ClientToken string
	SenderID    string
	Text        string
	Encrypted   bool
	Pending     bool
	Unreadable  bool
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Attachments []api.Attachment
}

// Controller drives one open conversation
type Controller struct {
	selfID string
	peerID string
	api    API
	keys   *keys.Manager
	codec  *envelope.Codec
	log    zerolog.Logger

	mu        sync.Mutex
	state     State
	peerKey   string
	composer  string
	entries   []Entry
	sentPlain map[uint64]string // server id -> plaintext of own encrypted sends
}

// NewController creates a controller for the conversation between the
// local user and peerID. peerID == selfID is the self-conversation used
// for private notes.
func NewController(selfID, peerID string, apiClient API, keyManager *keys.Manager) *Controller {
	return &Controller{
		selfID:    selfID,
		peerID:    peerID,
		api:       apiClient,
		keys:      keyManager,
		codec:     envelope.NewCodec(),
		log:       pkglogger.WithComponent("ConversationController"),
		state:     StateNoLocalKey,
		sentPlain: make(map[uint64]string),
	}
}

// Open evaluates the encryption state for a freshly opened conversation.
// Any prior toggle override is discarded. A lazy directory lookup is
// attempted when the peer's key is not yet known.
func (c *Controller) Open(ctx context.Context) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.keys.HasKey() {
		c.state = StateNoLocalKey
		return c.state
	}

	if c.selfID == c.peerID {
		// Self-conversation: the peer key is our own.
		if own, err := c.keys.PublicKey(); err == nil {
			c.peerKey = own
		}
	} else if c.peerKey == "" {
		if key, err := c.api.GetPublicKey(ctx, c.peerID); err == nil {
			c.peerKey = key
		}
	}

	if c.peerKey == "" {
		c.state = StatePeerKeyUnknown
	} else {
		c.state = StateEncryptionOff
	}
	return c.state
}

// ToggleEncryption flips the per-session encryption toggle. Only legal
// while encryption is available; the toggle is not remembered across
// reopens.
func (c *Controller) ToggleEncryption(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateEncryptionOff && c.state != StateEncryptionOn {
		return ErrEncryptionUnavailable
	}
	if on {
		c.state = StateEncryptionOn
	} else {
		c.state = StateEncryptionOff
	}
	return nil
}

// SetComposer records the user's typed input
func (c *Controller) SetComposer(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.composer = text
}

// Composer returns the current typed input
func (c *Controller) Composer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.composer
}

// State returns the current conversation state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Entries returns a snapshot of the visible message list
func (c *Controller) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Send runs the optimistic send pipeline on the composer content. An
// optimistic entry appears immediately and is reconciled with the
// server-confirmed entity by client token; on any failure the entry is
// removed and the composer restored to the exact typed text.
func (c *Controller) Send(ctx context.Context, attachments ...api.FileUpload) error {
	c.mu.Lock()

	text := c.composer
	if text == "" && len(attachments) == 0 {
		c.mu.Unlock()
		return ErrEmptyMessage
	}

	encrypted := c.state == StateEncryptionOn
	content := text

	if encrypted {
		if err := c.resolvePeerKeyLocked(ctx); err != nil {
			c.mu.Unlock()
			return err
		}
		senderPub, err := c.keys.PublicKey()
		if err != nil {
			c.mu.Unlock()
			return err
		}
		sealed, selfSealed, err := c.codec.SealFor(c.selfID, c.peerID, c.peerKey, senderPub, text)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		content = sealed
		_ = selfSealed // the optimistic entry always shows the known plaintext
	}

	token := uuid.New().String()
	c.entries = append(c.entries, Entry{
		ClientToken: token,
		SenderID:    c.selfID,
		Text:        text,
		Encrypted:   encrypted,
		Pending:     true,
		CreatedAt:   time.Now(),
	})
	c.composer = ""
	c.mu.Unlock()

	msg, err := c.api.SendMessage(ctx, c.peerID, api.SendRequest{
		Content:     content,
		IsEncrypted: encrypted,
		ClientToken: token,
		Attachments: attachments,
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.removeEntryLocked(token)
		c.composer = text
		return fmt.Errorf("send failed: %w", err)
	}

	c.reconcileLocked(token, msg, text)
	return nil
}

// SendGroup sends a plaintext group message. Encryption is refused
// outright before any network traffic; group content never passes
// through the envelope codec.
func (c *Controller) SendGroup(ctx context.Context, groupID uint64, text string, encrypted bool) (*api.GroupMessage, error) {
	if encrypted {
		return nil, ErrGroupEncryptionUnsupported
	}
	if text == "" {
		return nil, ErrEmptyMessage
	}
	return c.api.SendGroupMessage(ctx, groupID, text)
}

// Refresh replaces the visible message set with the server's current
// view, re-applying decryption to every encrypted entry and picking up
// peer-key updates discovered in the response. Unreconciled pending
// entries survive the replacement.
func (c *Controller) Refresh(ctx context.Context) error {
	conv, err := c.api.FetchConversation(ctx, c.peerID)
	if err != nil {
		// The previous view stands; refresh failures are retryable.
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if key := conv.User.PublicKey; key != "" && key != c.peerKey {
		c.peerKey = key
		if c.state == StatePeerKeyUnknown {
			// Freshly discovered mid-session; encryption becomes available.
			c.state = StateEncryptionOff
		}
	}

	priv, _ := c.keys.PrivateKey()

	fresh := make([]Entry, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		fresh = append(fresh, c.renderLocked(msg, priv))
	}

	// Carry over optimistic entries the server hasn't confirmed yet.
	for _, entry := range c.entries {
		if entry.Pending {
			fresh = append(fresh, entry)
		}
	}
	c.entries = fresh
	return nil
}

// resolvePeerKeyLocked resolves the recipient key synchronously: cache
// first, then one directory lookup. When it stays unresolved the send is
// blocked before any message request is issued.
func (c *Controller) resolvePeerKeyLocked(ctx context.Context) error {
	if c.peerKey != "" {
		return nil
	}
	if c.selfID == c.peerID {
		own, err := c.keys.PublicKey()
		if err != nil {
			return ErrMissingRecipientKey
		}
		c.peerKey = own
		return nil
	}
	key, err := c.api.GetPublicKey(ctx, c.peerID)
	if err != nil || key == "" {
		return ErrMissingRecipientKey
	}
	c.peerKey = key
	if c.state == StatePeerKeyUnknown {
		c.state = StateEncryptionOff
	}
	return nil
}

func (c *Controller) removeEntryLocked(token string) {
	for i, entry := range c.entries {
		if entry.ClientToken == token {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return
		}
	}
}

// reconcileLocked replaces the placeholder identity with the
// server-confirmed entity, keyed by client token.
func (c *Controller) reconcileLocked(token string, msg *api.Message, plaintext string) {
	if msg.IsEncrypted {
		c.sentPlain[msg.ID] = plaintext
	}
	for i, entry := range c.entries {
		if entry.ClientToken == token {
			c.entries[i] = Entry{
				ID:          msg.ID,
				ClientToken: token,
				SenderID:    msg.SenderID,
				Text:        plaintext,
				Encrypted:   msg.IsEncrypted,
				CreatedAt:   msg.CreatedAt,
				ExpiresAt:   msg.ExpiresAt,
				Attachments: msg.Attachments,
			}
			return
		}
	}
}

// renderLocked produces the visible entry for a server message,
// decrypting where the local key can, and degrading to a placeholder
// where it cannot. Own outbound envelopes are sealed for the peer, so
// their plaintext comes from the reconciliation table instead.
func (c *Controller) renderLocked(msg api.Message, priv []byte) Entry {
	entry := Entry{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		Text:        msg.Content,
		Encrypted:   msg.IsEncrypted,
		CreatedAt:   msg.CreatedAt,
		ExpiresAt:   msg.ExpiresAt,
		Attachments: msg.Attachments,
	}
	if !msg.IsEncrypted {
		return entry
	}

	selfConversation := msg.SenderID == msg.ReceiverID
	if msg.SenderID == c.selfID && !selfConversation {
		if plain, ok := c.sentPlain[msg.ID]; ok {
			entry.Text = plain
		} else {
			entry.Text = DecryptPlaceholder
			entry.Unreadable = true
		}
		return entry
	}

	if priv == nil {
		entry.Text = DecryptPlaceholder
		entry.Unreadable = true
		return entry
	}

	plain, err := c.codec.Open(msg.Content, priv)
	if err != nil {
		c.log.Warn().Uint64("message_id", msg.ID).Msg("message failed to decrypt")
		entry.Text = DecryptPlaceholder
		entry.Unreadable = true
		return entry
	}
	entry.Text = plain
	if selfConversation {
		// Opportunistic verification that the stored ciphertext round-trips.
		c.sentPlain[msg.ID] = plain
	}
	return entry
}
