package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Conversation pairs exactly two participants and caches a summary of the
// latest message. UpdatedAt moves whenever LastMessage does, which drives the
// "most recent first" listing.
type Conversation struct {
	// ID is the conversation UUID.
	ID string `gorm:"type:uuid;primaryKey" json:"id"`
	// Participants holds the two user IDs in sorted order.
	Participants pq.StringArray `gorm:"type:text[];not null;index:idx_conv_participants,type:gin" json:"participants"`
	// ParticipantKey is the canonical "a:b" form of the pair. The unique index on
	// it is what makes FindOrCreate safe under concurrent initiation.
	ParticipantKey string `gorm:"type:text;not null;uniqueIndex" json:"-"`
	// LastMessage is a denormalised cache of the log tail.
	LastMessage LastMessage `gorm:"embedded;embeddedPrefix:last_message_" json:"lastMessage"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `gorm:"index:idx_conv_updated,sort:desc" json:"updatedAt"`
}

// LastMessage is the summary cached on a conversation. At is nil until the
// first message arrives.
type LastMessage struct {
	Body     string     `gorm:"type:text;not null;default:''" json:"body"`
	SenderID string     `gorm:"type:text" json:"sender,omitempty"`
	At       *time.Time `json:"at,omitempty"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// PairKey canonicalises an unordered pair of user IDs. Swapping a and b yields
// the same key and the same sorted slice.
func PairKey(a, b string) (string, []string, error) {
	if a == "" || b == "" {
		return "", nil, fmt.Errorf("%w: both participants are required", ErrValidation)
	}
	if a == b {
		return "", nil, fmt.Errorf("%w: cannot start a conversation with yourself", ErrValidation)
	}
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + ":" + pair[1], pair, nil
}

// ConversationListItem is a conversation with participant identities resolved
// to display data.
type ConversationListItem struct {
	ID           string        `json:"id"`
	Participants []UserSummary `json:"participants"`
	LastMessage  LastMessage   `json:"lastMessage"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	// Online reports whether the other participant has a live connection.
	Online bool `json:"online"`
}
