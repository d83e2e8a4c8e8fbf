package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Message is one entry of a conversation's append-only log. The
// auto-increment ID is the store-assigned sequence the log is ordered by;
// CreatedAt is display data only.
type Message struct {
	ID             uint                            `gorm:"primaryKey;index:idx_msg_conv_seq,priority:2" json:"id"`
	ConversationID string                          `gorm:"type:uuid;not null;index:idx_msg_conv_seq,priority:1" json:"conversationId"`
	SenderID       string                          `gorm:"type:text;not null" json:"sender"`
	Body           string                          `gorm:"type:text;not null;default:''" json:"body"`
	Attachments    datatypes.JSONSlice[Attachment] `gorm:"type:jsonb" json:"attachments"`
	ReadBy         pq.StringArray                  `gorm:"type:text[];not null;default:'{}'" json:"readBy"`
	CreatedAt      time.Time                       `json:"createdAt"`
}

type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Summary is the LastMessage value a conversation should cache for m.
func (m *Message) Summary() LastMessage {
	at := m.CreatedAt
	return LastMessage{Body: m.Body, SenderID: m.SenderID, At: &at}
}
