// Package models contains data structures for the application's domain entities.
package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Chat is a 1-on-1 conversation between two participants, optionally attached
// to a post (a lost-and-found item thread, for example).
type Chat struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	Participant1ID string         `gorm:"size:36;not null;index" json:"participant1_id"`
	Participant2ID string         `gorm:"size:36;not null;index" json:"participant2_id"`
	PostID         *string        `gorm:"size:36;index" json:"post_id,omitempty"`
	LastMessageAt  time.Time      `gorm:"index" json:"last_message_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// Validate checks a chat decoded from the wire.
func (c *Chat) Validate() error {
	if c.ID == "" {
		return NewValidationError("chat id is required")
	}
	if c.Participant1ID == "" || c.Participant2ID == "" {
		return NewValidationError("chat requires two participants")
	}
	return nil
}

// ChatMessage is a single message within a chat. Identity is immutable once
// committed; IsRead is the only field that changes afterwards (false -> true).
type ChatMessage struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	ChatID    string         `gorm:"size:36;not null;index" json:"chat_id"`
	UserID    string         `gorm:"size:36;not null;index" json:"user_id"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	IsRead    bool           `gorm:"default:false" json:"is_read"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Pending marks a local optimistic placeholder awaiting server
	// confirmation. Never persisted and never sent on the wire.
	Pending bool `gorm:"-" json:"-"`
}

// Validate checks a message decoded from the wire.
func (m *ChatMessage) Validate() error {
	if m.ID == "" {
		return NewValidationError("message id is required")
	}
	if m.ChatID == "" || m.UserID == "" {
		return NewValidationError("message requires chat and sender ids")
	}
	if strings.TrimSpace(m.Content) == "" {
		return NewValidationError("message content is required")
	}
	return nil
}

// ChatSummary is the UI-facing shape of one row in the chat list.
type ChatSummary struct {
	Chat        Chat   `json:"chat"`
	PreviewText string `json:"preview_text"`
	UnreadCount int    `json:"unread_count"`
}
