package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// AnonPrefix marks reserved anonymous participant identifiers. Ids carrying
// this prefix must never be resolved against the users table; callers display
// a generated placeholder identity instead.
const AnonPrefix = "anon-"

// IsAnonID reports whether id follows the anonymous participant convention.
func IsAnonID(id string) bool {
	return strings.HasPrefix(id, AnonPrefix)
}

// User is an account on the backend. PasswordHash never leaves the server.
type User struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	Username     string         `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email        string         `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}
