package core

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

// MaxNotifications bounds the per-user notification feed.
const MaxNotifications = 10

type Notification struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Category  string    `json:"category"`
}

// NotificationInput is the caller-supplied part of a notification; id,
// timestamp and read state are assigned by the feed.
type NotificationInput struct {
	Type     string
	Title    string
	Message  string
	Category string
}

// User is a stored account. PasswordHash never leaves the auth package in
// a session snapshot.
type User struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"passwordHash"`
	AvatarURL         *string   `json:"avatarUrl"`
	PreferredCurrency string    `json:"preferredCurrency"`
	ExpenseLimitMinor int64     `json:"expenseLimitMinor,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Session is the credential-free snapshot of the signed-in user.
type Session struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Email             string  `json:"email"`
	AvatarURL         *string `json:"avatarUrl"`
	PreferredCurrency string  `json:"preferredCurrency"`
	ExpenseLimitMinor int64   `json:"expenseLimitMinor,omitempty"`
}

var (
	ErrEmptyName     = errors.New("name is required")
	ErrInvalidEmail  = errors.New("invalid email address")
	ErrShortPassword = errors.New("password must be at least 8 characters")
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

func (u User) Session() Session {
	return Session{
		ID:                u.ID,
		Name:              u.Name,
		Email:             u.Email,
		AvatarURL:         u.AvatarURL,
		PreferredCurrency: u.PreferredCurrency,
		ExpenseLimitMinor: u.ExpenseLimitMinor,
	}
}

func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("name", ErrEmptyName)
	}
	return nil
}

func ValidateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return invalid("email", ErrInvalidEmail)
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return invalid("password", ErrShortPassword)
	}
	return nil
}
