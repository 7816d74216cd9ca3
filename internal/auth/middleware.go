package auth

import (
	"context"
	"errors"
	"net/http"
)

type contextKey string

const claimsContextKey contextKey = "access_claims"

// RequireAccessToken validates the bearer token (including revocation) and
// stores its claims in the request context.
func RequireAccessToken(tokens *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer := ExtractBearerToken(r.Header.Get("Authorization"))
			if bearer == "" {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			claims, err := tokens.ValidateWithRevocation(bearer)
			if err != nil {
				switch {
				case errors.Is(err, ErrExpiredToken):
					writeError(w, http.StatusUnauthorized, "Token has expired")
				case errors.Is(err, ErrTokenRevoked):
					writeError(w, http.StatusUnauthorized, "Token has been revoked")
				default:
					writeError(w, http.StatusUnauthorized, "Invalid token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext retrieves the verified access claims stored by
// RequireAccessToken.
func ClaimsFromContext(ctx context.Context) (*AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*AccessClaims)
	return claims, ok
}
