package entitlements

import (
	"fmt"
	"regexp"
	"time"

	"github.com/bitcoinsovereign/academy/internal/database"
	"github.com/bitcoinsovereign/academy/internal/models"
)

// Access is the outcome of an entitlement check. Reason is a stable machine
// code; callers surface it so support can see why a user was let in or not.
type Access struct {
	HasAccess   bool                `json:"has_access"`
	Reason      string              `json:"reason"`
	Entitlement *models.Entitlement `json:"entitlement,omitempty"`
	ExpiresAt   *time.Time          `json:"expires_at,omitempty"`
}

// Reason codes, in resolution order.
const (
	ReasonFreeTier              = "free_tier"
	ReasonNoEntitlements        = "no_entitlements"
	ReasonAllAccess             = "all_access"
	ReasonSpecificAccess        = "specific_access"
	ReasonPathAccess            = "path_access"
	ReasonNoMatchingEntitlement = "no_matching_entitlement"
)

// pathPrefix extracts the learning-path slug from a module id such as
// "curious-101-what-is-money".
var pathPrefix = regexp.MustCompile(`^([a-z]+)-`)

// PathFromModuleID derives the learning path a module belongs to, or "" when
// the id carries no path prefix.
func PathFromModuleID(moduleID string) string {
	m := pathPrefix.FindStringSubmatch(moduleID)
	if m == nil {
		return ""
	}
	return m[1]
}

// CheckAccess resolves whether a user may open a piece of content. Layers are
// consulted cheapest-first: the free tier needs no account at all, then the
// user's entitlements are matched from broadest (all-access) to narrowest.
func CheckAccess(userID string, contentType models.ContentType, contentID string) (*Access, error) {
	if contentType == models.ContentDemo && IsFreeDemo(contentID) {
		return &Access{HasAccess: true, Reason: ReasonFreeTier}, nil
	}

	all, err := activeEntitlements(userID)
	if err != nil {
		return nil, fmt.Errorf("entitlement lookup: %w", err)
	}

	// Only rows that are both active and unexpired participate; a user whose
	// grants have all lapsed reads the same as a user who never had any.
	now := time.Now()
	ents := all[:0]
	for i := range all {
		if all[i].Usable(now) {
			ents = append(ents, all[i])
		}
	}
	if len(ents) == 0 {
		return &Access{HasAccess: false, Reason: ReasonNoEntitlements}, nil
	}

	for i := range ents {
		if ents[i].Type.IsAllAccess() {
			return grantAccess(ReasonAllAccess, &ents[i]), nil
		}
	}

	// Exact item match, regardless of entitlement or content type: a grant
	// naming this id is a grant for this id.
	for i := range ents {
		e := &ents[i]
		if e.ItemID != nil && *e.ItemID == contentID {
			return grantAccess(ReasonSpecificAccess, e), nil
		}
	}

	if contentType == models.ContentModule {
		if path := PathFromModuleID(contentID); path != "" {
			for i := range ents {
				e := &ents[i]
				if e.Type.IsPath() && e.ItemID != nil && *e.ItemID == path {
					return grantAccess(ReasonPathAccess, e), nil
				}
			}
		}
	}

	return &Access{HasAccess: false, Reason: ReasonNoMatchingEntitlement}, nil
}

// CheckBulkAccess resolves many content items in one call, for page loads
// that render a whole catalog. Entitlements are fetched once.
func CheckBulkAccess(userID string, items []ContentRef) (map[string]*Access, error) {
	results := make(map[string]*Access, len(items))
	for _, item := range items {
		access, err := CheckAccess(userID, item.Type, item.ID)
		if err != nil {
			return nil, err
		}
		results[item.ID] = access
	}
	return results, nil
}

// ContentRef identifies one piece of content in a bulk check.
type ContentRef struct {
	Type models.ContentType `json:"content_type"`
	ID   string             `json:"content_id"`
}

func grantAccess(reason string, e *models.Entitlement) *Access {
	return &Access{HasAccess: true, Reason: reason, Entitlement: e, ExpiresAt: e.ExpiresAt}
}

// activeEntitlements loads the user's active entitlement rows. Expiry is
// evaluated in Go so both database drivers behave identically.
func activeEntitlements(userID string) ([]models.Entitlement, error) {
	if userID == "" {
		return nil, nil
	}

	db := database.GetConnection()
	rows, err := db.Query(database.Rebind(
		`SELECT id, user_id, entitlement_type, item_id, expires_at, is_active, created_at, updated_at
		 FROM entitlements WHERE user_id = $1 AND is_active = $2`),
		userID, true,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ents []models.Entitlement
	for rows.Next() {
		var e models.Entitlement
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.ItemID,
			&e.ExpiresAt, &e.IsActive, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		ents = append(ents, e)
	}
	return ents, rows.Err()
}
