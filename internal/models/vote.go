package models

import (
	"time"

	"gorm.io/gorm"
)

// VoteType is the direction of a vote.
type VoteType string

const (
	VoteUp   VoteType = "up"
	VoteDown VoteType = "down"
)

// Valid reports whether vt is a known vote type.
func (vt VoteType) Valid() bool {
	return vt == VoteUp || vt == VoteDown
}

// ScoreValue returns the score contribution of a vote of this type.
func (vt VoteType) ScoreValue() int {
	switch vt {
	case VoteUp:
		return 1
	case VoteDown:
		return -1
	}
	return 0
}

// Vote is a user's vote on a post or a comment. Exactly one of PostID and
// CommentID is set; the backend enforces at most one row per (user, target).
type Vote struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	UserID    string         `gorm:"size:36;not null;index:idx_vote_user_target,unique" json:"user_id"`
	PostID    *string        `gorm:"size:36;index;index:idx_vote_user_target,unique" json:"post_id,omitempty"`
	CommentID *string        `gorm:"size:36;index;index:idx_vote_user_target,unique" json:"comment_id,omitempty"`
	VoteType  VoteType       `gorm:"size:8;not null" json:"vote_type"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Validate checks a vote decoded from the wire.
func (v *Vote) Validate() error {
	if v.ID == "" {
		return NewValidationError("vote id is required")
	}
	if !v.VoteType.Valid() {
		return NewValidationError("unknown vote type")
	}
	if (v.PostID == nil) == (v.CommentID == nil) {
		return NewValidationError("vote must target exactly one of post or comment")
	}
	return nil
}

// Target returns the vote's target.
func (v *Vote) Target() VoteTarget {
	if v.PostID != nil {
		return PostTarget(*v.PostID)
	}
	if v.CommentID != nil {
		return CommentTarget(*v.CommentID)
	}
	return VoteTarget{}
}

// VoteTarget identifies the post or comment a vote applies to.
type VoteTarget struct {
	PostID    string
	CommentID string
}

// PostTarget returns a target for a post.
func PostTarget(postID string) VoteTarget { return VoteTarget{PostID: postID} }

// CommentTarget returns a target for a comment.
func CommentTarget(commentID string) VoteTarget { return VoteTarget{CommentID: commentID} }

// Valid reports whether exactly one side of the target is set.
func (t VoteTarget) Valid() bool {
	return (t.PostID == "") != (t.CommentID == "")
}
