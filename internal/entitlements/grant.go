package entitlements

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

var (
	ErrInvalidGrant        = errors.New("invalid entitlement grant")
	ErrEntitlementNotFound = errors.New("entitlement not found")
)

// GrantRequest describes a grant. ProductID drives type and duration; ItemID
// is required for per-item products (demo, workshop) and ignored for
// all-access ones.
type GrantRequest struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	ItemID    string `json:"item_id"`
}

// Grant applies a product purchase to a user. Granting the same product
// twice never duplicates rows: the existing (user, type, item) row is
// reactivated and its expiry extended from whichever is later, now or the
// current expiry. Runs in one transaction so a crash can't leave a paid user
// without access.
func Grant(req GrantRequest) (*models.Entitlement, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidGrant)
	}
	product, err := GetProduct(req.ProductID)
	if err != nil {
		return nil, err
	}

	itemID := product.ItemID
	if itemID == "" {
		itemID = req.ItemID
	}
	if !product.Type.IsAllAccess() && itemID == "" {
		return nil, fmt.Errorf("%w: product %s requires an item id", ErrInvalidGrant, product.ID)
	}

	now := time.Now()
	var granted models.Entitlement

	err = database.Transaction(func(tx *sql.Tx) error {
		var (
			existingID      string
			existingExpires *time.Time
		)
		query := `SELECT id, expires_at FROM entitlements
		          WHERE user_id = $1 AND entitlement_type = $2 AND item_id = $3`
		args := []interface{}{req.UserID, string(product.Type), itemID}
		if itemID == "" {
			query = `SELECT id, expires_at FROM entitlements
			         WHERE user_id = $1 AND entitlement_type = $2 AND item_id IS NULL`
			args = args[:2]
		}

		err := tx.QueryRow(database.Rebind(query), args...).Scan(&existingID, &existingExpires)
		switch {
		case err == sql.ErrNoRows:
			granted = models.Entitlement{
				ID:        uuid.New().String(),
				UserID:    req.UserID,
				Type:      product.Type,
				ExpiresAt: CalculateExpiration(product, now),
				IsActive:  true,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if itemID != "" {
				granted.ItemID = &itemID
			}
			_, err = tx.Exec(database.Rebind(
				`INSERT INTO entitlements (id, user_id, entitlement_type, item_id, expires_at, is_active, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`),
				granted.ID, granted.UserID, string(granted.Type), granted.ItemID,
				granted.ExpiresAt, granted.IsActive, granted.CreatedAt, granted.UpdatedAt,
			)
			return err

		case err != nil:
			return err
		}

		// Extend from the later of now and the current expiry, so stacking
		// two 48h passes yields 96h, not a reset clock.
		var expiresAt *time.Time
		if product.Duration > 0 {
			base := now
			if existingExpires != nil && existingExpires.After(now) {
				base = *existingExpires
			}
			t := base.Add(product.Duration)
			expiresAt = &t
		}

		if _, err := tx.Exec(database.Rebind(
			`UPDATE entitlements SET expires_at = $1, is_active = $2, updated_at = $3 WHERE id = $4`),
			expiresAt, true, now, existingID,
		); err != nil {
			return err
		}

		granted = models.Entitlement{
			ID:        existingID,
			UserID:    req.UserID,
			Type:      product.Type,
			ExpiresAt: expiresAt,
			IsActive:  true,
			UpdatedAt: now,
		}
		if itemID != "" {
			granted.ItemID = &itemID
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("entitlement grant: %w", err)
	}

	log.Printf("[ENTITLEMENTS] Granted %s to user %s (product=%s)", product.Type, req.UserID, product.ID)
	return &granted, nil
}

// Revoke deactivates an entitlement without deleting it, preserving the
// purchase record. Used for refunds and subscription lapses.
func Revoke(userID string, entitlementType models.EntitlementType, itemID string) error {
	if !entitlementType.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidGrant, entitlementType)
	}

	now := time.Now()
	query := `UPDATE entitlements SET is_active = $1, updated_at = $2
	          WHERE user_id = $3 AND entitlement_type = $4 AND item_id = $5`
	args := []interface{}{false, now, userID, string(entitlementType), itemID}
	if itemID == "" {
		query = `UPDATE entitlements SET is_active = $1, updated_at = $2
		         WHERE user_id = $3 AND entitlement_type = $4 AND item_id IS NULL`
		args = args[:4]
	}

	n, err := database.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("entitlement revoke: %w", err)
	}
	if n == 0 {
		return ErrEntitlementNotFound
	}

	log.Printf("[ENTITLEMENTS] Revoked %s for user %s (item=%s)", entitlementType, userID, itemID)
	return nil
}

// GetUserEntitlements returns the user's active, unexpired entitlements for
// account pages.
func GetUserEntitlements(userID string) ([]models.Entitlement, error) {
	ents, err := activeEntitlements(userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	usable := ents[:0]
	for i := range ents {
		if ents[i].Usable(now) {
			usable = append(usable, ents[i])
		}
	}
	return usable, nil
}

// HasActiveSubscription reports whether the user holds any recurring grant,
// for upsell suppression.
func HasActiveSubscription(userID string) (bool, error) {
	ents, err := activeEntitlements(userID)
	if err != nil {
		return false, err
	}
	now := time.Now()
	for i := range ents {
		t := ents[i].Type
		if (t.IsAllAccess() || t == models.EntitlementPathMonthly || t == models.EntitlementPathAnnual) &&
			ents[i].Usable(now) {
			return true, nil
		}
	}
	return false, nil
}

// CleanupExpiredEntitlements deactivates rows past their expiry so the active
// set stays small. Resolution ignores expired rows either way; this is
// housekeeping, not correctness.
func CleanupExpiredEntitlements() error {
	n, err := database.Exec(
		`UPDATE entitlements SET is_active = $1, updated_at = $2 WHERE is_active = $3 AND expires_at IS NOT NULL AND expires_at < $4`,
		false, time.Now(), true, time.Now(),
	)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("[ENTITLEMENTS] Deactivated %d expired entitlements", n)
	}
	return nil
}
