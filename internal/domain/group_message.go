package domain

import "time"

// GroupMessage is structurally parallel to Message but always plaintext.
// Encryption is not offered for groups; the server rejects it outright.
type GroupMessage struct {
	ID          uint64                   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	GroupID     uint64                   `gorm:"column:group_id;index" json:"group_id"`
	SenderID    string                   `gorm:"column:sender_id;size:64;index" json:"sender_id"`
	Content     string                   `gorm:"column:content;type:text" json:"content"`
	CreatedAt   time.Time                `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	ExpiresAt   time.Time                `gorm:"column:expires_at;index" json:"expires_at"`
	Attachments []GroupMessageAttachment `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"attachments"`
}

// TableName returns the table name
func (GroupMessage) TableName() string {
	return "dm_group_messages"
}

// GroupMessageAttachment is a file attached to a group message
type GroupMessageAttachment struct {
	ID        uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	MessageID uint64 `gorm:"column:message_id;index" json:"message_id"`
	FilePath  string `gorm:"column:file_path;size:512" json:"file_path"`
	FileKey   string `gorm:"column:file_key;size:512" json:"-"`
	FileType  string `gorm:"column:file_type;size:100" json:"file_type"`
	FileName  string `gorm:"column:file_name;size:255" json:"file_name"`
	FileSize  int64  `gorm:"column:file_size" json:"file_size"`
}

// TableName returns the table name
func (GroupMessageAttachment) TableName() string {
	return "dm_group_message_attachments"
}

// GroupMessageResponse is the wire representation of a group message
type GroupMessageResponse struct {
	ID          uint64               `json:"id"`
	GroupID     uint64               `json:"group_id"`
	SenderID    string               `json:"sender_id"`
	Content     string               `json:"content"`
	CreatedAt   time.Time            `json:"created_at"`
	ExpiresAt   time.Time            `json:"expires_at"`
	Attachments []AttachmentResponse `json:"attachments"`
}

// ToResponse converts a GroupMessage to its wire form
func (m *GroupMessage) ToResponse() *GroupMessageResponse {
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
	return &GroupMessageResponse{
		ID:          m.ID,
		GroupID:     m.GroupID,
		SenderID:    m.SenderID,
		Content:     m.Content,
		CreatedAt:   m.CreatedAt,
		ExpiresAt:   m.ExpiresAt,
		Attachments: attachments,
	}
}
