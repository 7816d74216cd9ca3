package models

import (
	"time"
)

// User represents an account in the system. Accounts are created implicitly
// on the first magic-link request and are never hard-deleted.
type User struct {
	ID               string     `json:"id" db:"id"`
	Email            string     `json:"email" db:"email"`
	MagicLinkToken   *string    `json:"-" db:"magic_link_token"` // SHA-256 hash, never the plaintext
	MagicLinkExpires *time.Time `json:"-" db:"magic_link_expires"`
	EmailVerified    bool       `json:"email_verified" db:"email_verified"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// HasPendingMagicLink reports whether the user has a stored magic-link token
// that has not yet expired.
func (u *User) HasPendingMagicLink(now time.Time) bool {
	return u.MagicLinkToken != nil && u.MagicLinkExpires != nil && u.MagicLinkExpires.After(now)
}

// Device is a client binding for a user. At most one device per user is
// active at any time.
type Device struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	Fingerprint  string    `json:"device_fingerprint" db:"device_fingerprint"`
	Name         string    `json:"device_name" db:"device_name"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	LastActiveAt time.Time `json:"last_active_at" db:"last_active_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Session is a long-lived login record. Only the SHA-256 hash of the session
// token is persisted; the plaintext is handed to the client once.
type Session struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	DeviceID  string    `json:"device_id" db:"device_id"`
	TokenHash string    `json:"-" db:"token_hash"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	UserAgent string    `json:"user_agent" db:"user_agent"`
	IPAddress string    `json:"ip_address" db:"ip_address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}
