package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bitcoinsovereign/academy/internal/database"
	"github.com/bitcoinsovereign/academy/internal/models"
	"github.com/google/uuid"
)

const (
	// MagicLinkTTL is how long an emailed link stays usable.
	MagicLinkTTL = 15 * time.Minute

	// AccessTokenTTL is the lifetime of the signed token minted on login.
	AccessTokenTTL = time.Hour

	// Per-address quota: at most this many link requests per rolling window.
	magicLinkRequestLimit  = 3
	magicLinkRequestWindow = time.Hour
)

var (
	ErrTooManyLinkRequests = errors.New("too many magic link requests")
	ErrLinkNotFound        = errors.New("magic link not found")
	ErrLinkExpired         = errors.New("magic link has expired")
)

// Notifier delivers the magic-link email. Delivery is fire-and-forget from
// this package's perspective: the token is already persisted, so a failed
// send only costs the user a retry.
type Notifier interface {
	SendMagicLinkEmail(email, token string, expiresIn time.Duration) error
}

// RequestMagicLink validates and throttles a login request, persists a new
// hashed single-use token for the address and dispatches the email. The
// caller must respond identically whether or not the address was already
// registered.
func RequestMagicLink(notifier Notifier, email, ipAddress string) error {
	if err := AssertValid(ValidateEmail(email)); err != nil {
		return err
	}
	email = NormalizeEmail(email)
	now := time.Now()

	// Rolling-window quota, counted by un-expired request records.
	count, err := database.CountRows(
		`SELECT COUNT(*) FROM magic_link_requests WHERE email = $1 AND expires_at > $2`,
		email, now,
	)
	if err != nil {
		return fmt.Errorf("magic link rate check: %w", err)
	}
	if count >= magicLinkRequestLimit {
		database.LogSecurityEvent(models.SecurityEvent{
			Type:      models.EventRateLimitHit,
			Severity:  models.SeverityMedium,
			IPAddress: SanitizeIPAddress(ipAddress),
			Metadata:  map[string]interface{}{"email": email, "endpoint": "magic-link"},
		})
		return ErrTooManyLinkRequests
	}

	token, err := GenerateSecureToken(32)
	if err != nil {
		return fmt.Errorf("magic link token: %w", err)
	}
	tokenHash := HashToken(token)
	expiresAt := now.Add(MagicLinkTTL)

	err = database.Transaction(func(tx *sql.Tx) error {
		var userID string
		err := tx.QueryRow(database.Rebind(`SELECT id FROM users WHERE email = $1`), email).Scan(&userID)
		switch {
		case err == sql.ErrNoRows:
			_, err = tx.Exec(database.Rebind(
				`INSERT INTO users (id, email, magic_link_token, magic_link_expires, email_verified, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`),
				uuid.New().String(), email, tokenHash, expiresAt, false, now, now,
			)
		case err == nil:
			_, err = tx.Exec(database.Rebind(
				`UPDATE users SET magic_link_token = $1, magic_link_expires = $2, updated_at = $3 WHERE id = $4`),
				tokenHash, expiresAt, now, userID,
			)
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(database.Rebind(
			`INSERT INTO magic_link_requests (id, email, requested_at, expires_at)
			 VALUES ($1, $2, $3, $4)`),
			uuid.New().String(), email, now, now.Add(magicLinkRequestWindow),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("magic link store: %w", err)
	}

	if notifier != nil {
		if err := notifier.SendMagicLinkEmail(email, token, MagicLinkTTL); err != nil {
			// Token is persisted; the user can request again.
			log.Printf("[AUTH] Failed to send magic link email to %s: %v", email, err)
		}
	}

	log.Printf("[AUTH] Magic link issued for %s (ip=%s)", email, SanitizeIPAddress(ipAddress))
	return nil
}

// VerifyResult is what a successful magic-link verification yields.
type VerifyResult struct {
	User         models.User
	DeviceID     string
	SessionToken string
}

// VerifyMagicLink exchanges a plaintext link token for a logged-in session.
// The token is single-use: it is cleared in the same transaction that
// activates the device and creates the session, so a replay finds nothing.
func VerifyMagicLink(token, fingerprint, ipAddress, userAgent string) (*VerifyResult, error) {
	if err := AssertValid(ValidateToken(token)); err != nil {
		return nil, err
	}
	if fingerprint != "" {
		if err := AssertValid(ValidateDeviceFingerprint(fingerprint)); err != nil {
			return nil, err
		}
	} else {
		fingerprint = fmt.Sprintf("auto-%d", time.Now().UnixMilli())
	}

	ipAddress = SanitizeIPAddress(ipAddress)
	userAgent = SanitizeUserAgent(userAgent)
	now := time.Now()

	var user models.User
	err := database.QueryOne(
		`SELECT id, email, magic_link_token, magic_link_expires, email_verified, last_login_at, created_at, updated_at
		 FROM users WHERE magic_link_token = $1`,
		[]interface{}{HashToken(token)},
		&user.ID, &user.Email, &user.MagicLinkToken, &user.MagicLinkExpires,
		&user.EmailVerified, &user.LastLoginAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		database.LogSecurityEvent(models.SecurityEvent{
			Type:      models.EventAuthFailure,
			Severity:  models.SeverityMedium,
			IPAddress: ipAddress,
			UserAgent: userAgent,
			Metadata:  map[string]interface{}{"reason": "invalid_token", "endpoint": "verify"},
		})
		return nil, ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("magic link lookup: %w", err)
	}

	if user.MagicLinkExpires == nil || user.MagicLinkExpires.Before(now) {
		database.LogSecurityEvent(models.SecurityEvent{
			Type:      models.EventAuthFailure,
			Severity:  models.SeverityLow,
			UserID:    &user.ID,
			IPAddress: ipAddress,
			UserAgent: userAgent,
			Metadata:  map[string]interface{}{"reason": "expired_token", "endpoint": "verify"},
		})
		return nil, ErrLinkExpired
	}

	result := &VerifyResult{User: user}
	err = database.Transaction(func(tx *sql.Tx) error {
		// One-time use: the clearing update only fires while the stored hash
		// still matches, so of two concurrent verifications exactly one wins
		// and the other lands on ErrLinkNotFound.
		res, err := tx.Exec(database.Rebind(
			`UPDATE users SET magic_link_token = NULL, magic_link_expires = NULL,
			        email_verified = $1, last_login_at = $2, updated_at = $3
			 WHERE id = $4 AND magic_link_token = $5`),
			true, now, now, user.ID, HashToken(token),
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrLinkNotFound
		}

		deviceID, err := registerDevice(tx, user.ID, fingerprint, userAgent, now)
		if err != nil {
			return err
		}
		result.DeviceID = deviceID

		sessionToken, err := createSession(tx, user.ID, deviceID, ipAddress, userAgent, now)
		if err != nil {
			return err
		}
		result.SessionToken = sessionToken
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("magic link verify: %w", err)
	}

	result.User.EmailVerified = true
	result.User.LastLoginAt = &now
	result.User.MagicLinkToken = nil
	result.User.MagicLinkExpires = nil

	log.Printf("[AUTH] User authenticated: %s (ip=%s)", user.Email, ipAddress)
	return result, nil
}

// CleanupExpiredLinkRequests removes stale rolling-window counter rows.
func CleanupExpiredLinkRequests() error {
	_, err := database.Exec(`DELETE FROM magic_link_requests WHERE expires_at < $1`, time.Now())
	return err
}
