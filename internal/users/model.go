package users

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("users: invalid user id")
	// ErrInvalidName indicates that a display name is empty.
	ErrInvalidName = errors.New("users: invalid display name")
	// ErrUserNotFound indicates the requested user record does not exist.
	ErrUserNotFound = errors.New("users: user not found")
)

// UserID represents a validated participant identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// User models a participant. The color is assigned at creation from a fixed
// palette and stays stable for the session. The struct doubles as the wire
// representation inside document_sync and join payloads.
type User struct {
	UserID   string    `gorm:"column:user_id;primaryKey;size:190;not null" json:"id"`
	Name     string    `gorm:"column:name;size:190;not null" json:"name"`
	Color    string    `gorm:"column:color;size:16;not null" json:"color"`
	JoinedAt time.Time `gorm:"column:joined_at;not null" json:"joinedAt"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}
