package models

import (
	"time"
)

// EntitlementType is the closed catalog of grant tiers. Values match the
// entitlement_type column.
type EntitlementType string

const (
	EntitlementDemo            EntitlementType = "demo"
	EntitlementWorkshop        EntitlementType = "workshop"
	EntitlementPathMonthly     EntitlementType = "path_monthly"
	EntitlementPathAnnual      EntitlementType = "path_annual"
	EntitlementPathLifetime    EntitlementType = "path_lifetime"
	EntitlementAllAccessMonthly EntitlementType = "all_access_monthly"
	EntitlementAllAccessAnnual  EntitlementType = "all_access_annual"
)

// IsAllAccess reports whether the type satisfies every content check.
func (t EntitlementType) IsAllAccess() bool {
	return t == EntitlementAllAccessMonthly || t == EntitlementAllAccessAnnual
}

// IsPath reports whether the type grants a whole learning path.
func (t EntitlementType) IsPath() bool {
	switch t {
	case EntitlementPathMonthly, EntitlementPathAnnual, EntitlementPathLifetime:
		return true
	}
	return false
}

// Valid reports whether t is a known entitlement type.
func (t EntitlementType) Valid() bool {
	switch t {
	case EntitlementDemo, EntitlementWorkshop,
		EntitlementPathMonthly, EntitlementPathAnnual, EntitlementPathLifetime,
		EntitlementAllAccessMonthly, EntitlementAllAccessAnnual:
		return true
	}
	return false
}

// ContentType classifies the content a client is asking access for.
type ContentType string

const (
	ContentDemo     ContentType = "demo"
	ContentWorkshop ContentType = "workshop"
	ContentModule   ContentType = "module"
	ContentPath     ContentType = "path"
)

// ParseContentType validates a wire value against the closed enumeration.
func ParseContentType(s string) (ContentType, bool) {
	switch ContentType(s) {
	case ContentDemo, ContentWorkshop, ContentModule, ContentPath:
		return ContentType(s), true
	}
	return "", false
}

// Entitlement is a durable grant of access. Rows are unique per
// (user_id, entitlement_type, item_id); re-granting the same product extends
// the existing row. Rows are deactivated, never deleted.
type Entitlement struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Type      EntitlementType `json:"entitlement_type" db:"entitlement_type"`
	ItemID    *string         `json:"item_id" db:"item_id"`     // nil = applies to everything of this tier
	ExpiresAt *time.Time      `json:"expires_at" db:"expires_at"` // nil = perpetual
	IsActive  bool            `json:"is_active" db:"is_active"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Usable reports whether the entitlement is active and not expired.
func (e *Entitlement) Usable(now time.Time) bool {
	if !e.IsActive {
		return false
	}
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}
