package auth

import (
	"database/sql"
	"errors"
	"time"

	"github.com/bitcoinsovereign/academy/internal/database"
	"github.com/bitcoinsovereign/academy/internal/models"
	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session has expired")
)

// SessionTTL is how long a login session stays valid.
const SessionTTL = 7 * 24 * time.Hour

// createSession persists a new session inside the login transaction and
// returns the plaintext token exactly once, for cookie issuance. Only the
// SHA-256 hash hits the database.
func createSession(tx *sql.Tx, userID, deviceID, ipAddress, userAgent string, now time.Time) (string, error) {
	token, err := GenerateSecureToken(32)
	if err != nil {
		return "", err
	}

	_, err = tx.Exec(database.Rebind(
		`INSERT INTO sessions (id, user_id, device_id, token_hash, expires_at, user_agent, ip_address, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`),
		uuid.New().String(), userID, deviceID, HashToken(token), now.Add(SessionTTL), userAgent, ipAddress, now,
	)
	if err != nil {
		return "", err
	}
	return token, nil
}

// ValidateSession resolves a plaintext session token (from the cookie) to its
// session record. Expired sessions are reported distinctly from unknown ones.
func ValidateSession(token string) (*models.Session, error) {
	var s models.Session
	err := database.QueryOne(
		`SELECT id, user_id, device_id, token_hash, expires_at, user_agent, ip_address, created_at
		 FROM sessions WHERE token_hash = $1`,
		[]interface{}{HashToken(token)},
		&s.ID, &s.UserID, &s.DeviceID, &s.TokenHash, &s.ExpiresAt, &s.UserAgent, &s.IPAddress, &s.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if s.Expired(time.Now()) {
		return nil, ErrSessionExpired
	}
	return &s, nil
}

// DeleteSession removes a session by its plaintext token (logout).
func DeleteSession(token string) error {
	n, err := database.Exec(`DELETE FROM sessions WHERE token_hash = $1`, HashToken(token))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// CleanupExpiredSessions removes session rows past expiry. Run periodically.
func CleanupExpiredSessions() error {
	_, err := database.Exec(`DELETE FROM sessions WHERE expires_at < $1`, time.Now())
	return err
}
