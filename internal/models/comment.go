package models

import (
	"time"

	"gorm.io/gorm"
)

// Comment is a comment on a post. ParentCommentID forms a self-referential
// tree; root comments have a nil parent. Soft-deleted comments keep their row
// (replies may still reference them) but are excluded from tree construction.
type Comment struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	PostID          string         `gorm:"size:36;not null;index" json:"post_id"`
	UserID          *string        `gorm:"size:36;index" json:"user_id,omitempty"`
	ParentCommentID *string        `gorm:"size:36;index" json:"parent_comment_id,omitempty"`
	Content         string         `gorm:"type:text;not null" json:"content"`
	IsDeleted       bool           `gorm:"default:false" json:"is_deleted"`
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// Validate checks a comment decoded from the wire.
func (c *Comment) Validate() error {
	if c.ID == "" {
		return NewValidationError("comment id is required")
	}
	if c.PostID == "" {
		return NewValidationError("comment post id is required")
	}
	return nil
}
