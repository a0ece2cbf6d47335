package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// User is one invited person from the roster. Email is the identity;
// the token proves ownership of it.
type User struct {
	gorm.Model
	Email          string `gorm:"uniqueIndex"`
	Name           string
	College        string
	Branch         string
	Year           int
	Token          string `gorm:"size:6"`
	IsVerified     bool
	TokenCreatedAt time.Time
}

// UserView is the listing shape: same descriptive fields, token masked.
type UserView struct {
	ID             uint      `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	College        string    `json:"college"`
	Branch         string    `json:"branch"`
	Year           int       `json:"year"`
	Token          string    `json:"token"`
	IsVerified     bool      `json:"is_verified"`
	TokenCreatedAt time.Time `json:"token_created_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NormalizeEmail applies the one canonical form used for every
// uniqueness check and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
