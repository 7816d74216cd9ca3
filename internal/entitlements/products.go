package entitlements

import (
	"errors"
	"time"

	"github.com/bitcoinsovereign/academy/internal/models"
)

// ErrUnknownProduct is returned for any product id outside the catalog.
// Product lookups fail closed: nothing is granted for an id we don't know.
var ErrUnknownProduct = errors.New("unknown product id")

// Product maps a purchasable SKU onto the entitlement it grants. Prices live
// with the payment collaborators; this side only cares about access.
type Product struct {
	ID          string
	Name        string
	Type        models.EntitlementType
	ItemID      string        // empty for all-access products
	Duration    time.Duration // zero for lifetime access and subscriptions
	IsRecurring bool
}

// products is the closed catalog. Item ids for demo/workshop passes are
// supplied at grant time since the same SKU unlocks whichever item was bought.
var products = map[string]Product{
	"demo_single": {
		ID: "demo_single", Name: "Single Lab Pass",
		Type: models.EntitlementDemo, Duration: 48 * time.Hour,
	},
	"workshop_bundle": {
		ID: "workshop_bundle", Name: "Workshop Bundle Pass",
		Type: models.EntitlementWorkshop, Duration: 7 * 24 * time.Hour,
	},

	"path_monthly_curious": {
		ID: "path_monthly_curious", Name: "Curious Path Monthly",
		Type: models.EntitlementPathMonthly, ItemID: "curious", IsRecurring: true,
	},
	"path_monthly_pragmatist": {
		ID: "path_monthly_pragmatist", Name: "Pragmatist Path Monthly",
		Type: models.EntitlementPathMonthly, ItemID: "pragmatist", IsRecurring: true,
	},
	"path_monthly_builder": {
		ID: "path_monthly_builder", Name: "Builder Path Monthly",
		Type: models.EntitlementPathMonthly, ItemID: "builder", IsRecurring: true,
	},
	"path_monthly_sovereign": {
		ID: "path_monthly_sovereign", Name: "Sovereign Path Monthly",
		Type: models.EntitlementPathMonthly, ItemID: "sovereign", IsRecurring: true,
	},

	"path_annual_curious": {
		ID: "path_annual_curious", Name: "Curious Path Annual",
		Type: models.EntitlementPathAnnual, ItemID: "curious", IsRecurring: true,
	},
	"path_annual_pragmatist": {
		ID: "path_annual_pragmatist", Name: "Pragmatist Path Annual",
		Type: models.EntitlementPathAnnual, ItemID: "pragmatist", IsRecurring: true,
	},
	"path_annual_builder": {
		ID: "path_annual_builder", Name: "Builder Path Annual",
		Type: models.EntitlementPathAnnual, ItemID: "builder", IsRecurring: true,
	},
	"path_annual_sovereign": {
		ID: "path_annual_sovereign", Name: "Sovereign Path Annual",
		Type: models.EntitlementPathAnnual, ItemID: "sovereign", IsRecurring: true,
	},

	"path_lifetime_curious": {
		ID: "path_lifetime_curious", Name: "Curious Path Lifetime",
		Type: models.EntitlementPathLifetime, ItemID: "curious",
	},
	"path_lifetime_pragmatist": {
		ID: "path_lifetime_pragmatist", Name: "Pragmatist Path Lifetime",
		Type: models.EntitlementPathLifetime, ItemID: "pragmatist",
	},
	"path_lifetime_builder": {
		ID: "path_lifetime_builder", Name: "Builder Path Lifetime",
		Type: models.EntitlementPathLifetime, ItemID: "builder",
	},
	"path_lifetime_sovereign": {
		ID: "path_lifetime_sovereign", Name: "Sovereign Path Lifetime",
		Type: models.EntitlementPathLifetime, ItemID: "sovereign",
	},

	"all_access_monthly": {
		ID: "all_access_monthly", Name: "All Access Monthly",
		Type: models.EntitlementAllAccessMonthly, IsRecurring: true,
	},
	"all_access_annual": {
		ID: "all_access_annual", Name: "All Access Annual",
		Type: models.EntitlementAllAccessAnnual, IsRecurring: true,
	},
}

// GetProduct resolves a product id against the catalog.
func GetProduct(productID string) (Product, error) {
	p, ok := products[productID]
	if !ok {
		return Product{}, ErrUnknownProduct
	}
	return p, nil
}

// IsValidProductID reports whether the id is in the catalog.
func IsValidProductID(productID string) bool {
	_, ok := products[productID]
	return ok
}

// CalculateExpiration returns the expiry for a time-limited product, or nil
// for lifetime access and subscriptions (renewal is the payment provider's
// concern; revocation on lapse arrives via webhook).
func CalculateExpiration(p Product, now time.Time) *time.Time {
	if p.Duration == 0 {
		return nil
	}
	t := now.Add(p.Duration)
	return &t
}

// freeDemos is the free-tier allowlist. These demos never require an account.
var freeDemos = map[string]bool{
	"bitcoin-basics":        true,
	"hash-puzzle":           true,
	"double-spending":       true,
	"wallet-types":          true,
	"transaction-simulator": true,
	"key-generator":         true,
}

// IsFreeDemo reports whether the demo id is on the free-tier allowlist.
func IsFreeDemo(demoID string) bool {
	return freeDemos[demoID]
}
