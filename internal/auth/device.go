package auth

import (
	"database/sql"
	"time"

	"github.com/bitcoinsovereign/academy/internal/database"
	"github.com/bitcoinsovereign/academy/internal/models"
	"github.com/google/uuid"
)

// registerDevice looks up the (user, fingerprint) pair inside the login
// transaction and either reactivates the existing row or deactivates every
// other device and inserts a new active one. Running it in the same
// transaction as magic-link invalidation closes the race window on the
// one-active-device invariant.
func registerDevice(tx *sql.Tx, userID, fingerprint, name string, now time.Time) (string, error) {
	var deviceID string
	var isActive bool
	err := tx.QueryRow(database.Rebind(
		`SELECT id, is_active FROM devices WHERE user_id = $1 AND device_fingerprint = $2`),
		userID, fingerprint,
	).Scan(&deviceID, &isActive)

	if err != nil && err != sql.ErrNoRows {
		return "", err
	}
	known := err == nil

	// Single-active-device policy: whichever device logs in, the rest go
	// inactive first.
	if _, derr := tx.Exec(database.Rebind(
		`UPDATE devices SET is_active = $1 WHERE user_id = $2`),
		false, userID,
	); derr != nil {
		return "", derr
	}

	if known {
		_, err = tx.Exec(database.Rebind(
			`UPDATE devices SET is_active = $1, last_active_at = $2 WHERE id = $3`),
			true, now, deviceID,
		)
		return deviceID, err
	}

	deviceID = uuid.New().String()
	if len(name) > 100 {
		name = name[:100]
	}
	_, err = tx.Exec(database.Rebind(
		`INSERT INTO devices (id, user_id, device_fingerprint, device_name, is_active, last_active_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`),
		deviceID, userID, fingerprint, name, true, now, now,
	)
	return deviceID, err
}

// ActiveDevice returns the user's currently active device, or nil.
func ActiveDevice(userID string) (*models.Device, error) {
	var d models.Device
	err := database.QueryOne(
		`SELECT id, user_id, device_fingerprint, device_name, is_active, last_active_at, created_at
		 FROM devices WHERE user_id = $1 AND is_active = $2`,
		[]interface{}{userID, true},
		&d.ID, &d.UserID, &d.Fingerprint, &d.Name, &d.IsActive, &d.LastActiveAt, &d.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
