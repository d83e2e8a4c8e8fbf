package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// User is the marketplace account as seen by the chat layer. Accounts are owned
// by the account service; chat only reads identity and display fields.
type User struct {
	ID        string         `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"type:text;not null" json:"name"`
	Email     string         `gorm:"uniqueIndex:idx_users_email,where:email <> ''" json:"email,omitempty"`
	Role      string         `gorm:"type:text" json:"role,omitempty"` // "client" or "freelancer"
	Avatar    string         `gorm:"type:text" json:"avatar,omitempty"`
	Skills    pq.StringArray `gorm:"type:text[]" json:"skills,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// BeforeCreate is a GORM hook that assigns a UUID when the ID is not set yet.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// UserSummary is the minimal display data attached to conversation listings.
type UserSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Avatar: u.Avatar}
}
