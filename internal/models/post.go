package models

import (
	"time"

	"gorm.io/gorm"
)

// Post categories.
const (
	CategoryFeed      = "feed"
	CategoryLostFound = "lostfound"
)

// Post is a campus feed or lost-and-found entry.
type Post struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	UserID    string         `gorm:"size:36;not null;index" json:"user_id"`
	Title     string         `gorm:"size:255;not null" json:"title"`
	Content   string         `gorm:"type:text" json:"content"`
	Category  string         `gorm:"size:16;not null;index;default:'feed'" json:"category"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Validate checks a post decoded from the wire.
func (p *Post) Validate() error {
	if p.ID == "" {
		return NewValidationError("post id is required")
	}
	if p.Title == "" {
		return NewValidationError("post title is required")
	}
	return nil
}
