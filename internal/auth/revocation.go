package auth

import (
	"sync"
)

// RevocationRegistry tracks revoked token identifiers (jti). It is
// process-local on purpose: tokens are short-lived, so the set stays small
// and natural expiry bounds its growth. A deployment spanning multiple
// instances needs a shared TTL store behind the same interface.
type RevocationRegistry struct {
	mu      sync.RWMutex
	revoked map[string]struct{}
}

// NewRevocationRegistry creates an empty registry.
func NewRevocationRegistry() *RevocationRegistry {
	return &RevocationRegistry{revoked: make(map[string]struct{})}
}

// Revoke marks a token identifier as revoked.
func (r *RevocationRegistry) Revoke(jti string) {
	if jti == "" {
		return
	}
	r.mu.Lock()
	r.revoked[jti] = struct{}{}
	r.mu.Unlock()
}

// IsRevoked reports whether a token identifier has been revoked.
func (r *RevocationRegistry) IsRevoked(jti string) bool {
	r.mu.RLock()
	_, ok := r.revoked[jti]
	r.mu.RUnlock()
	return ok
}

// Clear empties the registry. Maintenance only: safe because every revoked
// token will have expired on its own well before the next clear.
func (r *RevocationRegistry) Clear() {
	r.mu.Lock()
	r.revoked = make(map[string]struct{})
	r.mu.Unlock()
}

// Len returns the number of revoked identifiers currently tracked.
func (r *RevocationRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.revoked)
}
