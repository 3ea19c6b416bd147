package domain

import "time"

// Message represents a direct message between two users. Content is either
// plaintext or, when IsEncrypted is set, an envelope blob that only the
// receiver's private key can open (sender's own key for self-conversations).
// ExpiresAt is always set; rows past it are invisible to active listings
// and eventually purged by the reaper.
type Message struct {
	ID          uint64              `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SenderID    string              `gorm:"column:sender_id;size:64;index:idx_messages_pair" json:"sender_id"`
	ReceiverID  string              `gorm:"column:receiver_id;size:64;index:idx_messages_pair" json:"receiver_id"`
	Content     string              `gorm:"column:content;type:text" json:"content"`
	IsEncrypted bool                `gorm:"column:is_encrypted;default:false" json:"is_encrypted"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	ExpiresAt   time.Time           `gorm:"column:expires_at;index" json:"expires_at"`
	ReadAt      *time.Time          `gorm:"column:read_at" json:"read_at,omitempty"`
	Attachments []MessageAttachment `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"attachments"`
}

// TableName returns the table name
func (Message) TableName() string {
	return "dm_messages"
}

// MessageAttachment is a file attached to a direct message. The blob itself
// lives in object storage; FilePath is its stable URL and FileKey the
// object key used to delete the blob when the message goes away.
type MessageAttachment struct {
	ID        uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	MessageID uint64 `gorm:"column:message_id;index" json:"message_id"`
	FilePath  string `gorm:"column:file_path;size:512" json:"file_path"`
	FileKey   string `gorm:"column:file_key;size:512" json:"-"`
	FileType  string `gorm:"column:file_type;size:100" json:"file_type"`
	FileName  string `gorm:"column:file_name;size:255" json:"file_name"`
	FileSize  int64  `gorm:"column:file_size" json:"file_size"`
}

// TableName returns the table name
func (MessageAttachment) TableName() string {
	return "dm_message_attachments"
}

// MessageResponse is the wire representation of a direct message
type MessageResponse struct {
	ID          uint64               `json:"id"`
	SenderID    string               `json:"sender_id"`
	ReceiverID  string               `json:"receiver_id"`
	Content     string               `json:"content"`
	IsEncrypted bool                 `json:"is_encrypted"`
	CreatedAt   time.Time            `json:"created_at"`
	ExpiresAt   time.Time            `json:"expires_at"`
	ReadAt      *time.Time           `json:"read_at,omitempty"`
	Attachments []AttachmentResponse `json:"attachments"`
}

// AttachmentResponse is the wire representation of an attachment
type AttachmentResponse struct {
	ID       uint64 `json:"id"`
	URL      string `json:"url"`
	FileType string `json:"file_type"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

// ToResponse converts a Message to its wire form
func (m *Message) ToResponse() *MessageResponse {
	attachments := make([]AttachmentResponse, len(m.Attachments))
	for i, a := range m.Attachments {
		attachments[i] = AttachmentResponse{
			ID:       a.ID,
			URL:      a.FilePath,
			FileType: a.FileType,
			FileName: a.FileName,
			FileSize: a.FileSize,
		}
	}
	return &MessageResponse{
		ID:          m.ID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		Content:     m.Content,
		IsEncrypted: m.IsEncrypted,
		CreatedAt:   m.CreatedAt,
		ExpiresAt:   m.ExpiresAt,
		ReadAt:      m.ReadAt,
		Attachments: attachments,
	}
}

// ConversationResponse is the fetch-conversation payload: the active
// message window plus the peer's current public key, if any, so clients
// can refresh their key cache on every poll.
type ConversationResponse struct {
	Messages []*MessageResponse `json:"messages"`
	User     PeerInfo           `json:"user"`
}

// PeerInfo carries the conversation peer's identity and published key
type PeerInfo struct {
	ID        string `json:"id"`
	PublicKey string `json:"public_key,omitempty"`
}
