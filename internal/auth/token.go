package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken         = errors.New("invalid token")
	ErrExpiredToken         = errors.New("token has expired")
	ErrTokenRevoked         = errors.New("token has been revoked")
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
)

// AccessClaims is the payload carried by a signed access token.
type AccessClaims struct {
	UserID       string   `json:"user_id"`
	DeviceID     string   `json:"device_id,omitempty"`
	Email        string   `json:"email"`
	Entitlements []string `json:"entitlements,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies access tokens. Signing always uses the
// ring's current secret; verification tries every secret in order so tokens
// survive an in-flight rotation.
type TokenManager struct {
	ring       *SecretRing
	revocation *RevocationRegistry
}

// NewTokenManager creates a TokenManager with a fresh revocation registry.
func NewTokenManager(ring *SecretRing) *TokenManager {
	return &TokenManager{
		ring:       ring,
		revocation: NewRevocationRegistry(),
	}
}

// Revocation exposes the manager's revocation registry.
func (tm *TokenManager) Revocation() *RevocationRegistry {
	return tm.revocation
}

// Generate mints a signed access token. The jti is random per token and is
// the key used for revocation.
func (tm *TokenManager) Generate(userID, email, deviceID string, entitlements []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID:       userID,
		DeviceID:     deviceID,
		Email:        email,
		Entitlements: entitlements,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.ring.Signing())
}

// Validate verifies a token's signature and expiry and returns its claims.
// Expiry is only reported for tokens whose signature checked out; a token
// that matches no secret is ErrInvalidToken regardless of its timestamps.
func (tm *TokenManager) Validate(tokenString string) (*AccessClaims, error) {
	var lastErr error
	for _, secret := range tm.ring.All() {
		claims, err := tm.validateWithSecret(tokenString, secret)
		if err == nil {
			return claims, nil
		}
		if errors.Is(err, ErrExpiredToken) || errors.Is(err, ErrUnsupportedAlgorithm) {
			// The signature matched (or the header is hostile); trying
			// further secrets cannot improve the outcome.
			return nil, err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ErrInvalidToken
	}
	return nil, lastErr
}

func (tm *TokenManager) validateWithSecret(tokenString string, secret []byte) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnsupportedAlgorithm
		}
		return secret, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, ErrUnsupportedAlgorithm):
			return nil, ErrUnsupportedAlgorithm
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	// A valid signature is not enough: tokens minted against an older claim
	// schema, or forged with missing identity fields, are rejected here.
	if claims.UserID == "" || claims.Email == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ValidateWithRevocation verifies a token and additionally rejects it when
// its jti has been revoked.
func (tm *TokenManager) ValidateWithRevocation(tokenString string) (*AccessClaims, error) {
	claims, err := tm.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if tm.revocation.IsRevoked(claims.ID) {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Decode parses a token without verifying its signature. For inspection
// outside the trust boundary only (expiry pre-checks and the like); never
// authorize anything with the result.
func (tm *TokenManager) Decode(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(tokenString, claims)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IsExpired reports whether a token is past its expiry without verifying the
// signature. Unparseable tokens count as expired.
func (tm *TokenManager) IsExpired(tokenString string) bool {
	claims, err := tm.Decode(tokenString)
	if err != nil || claims.ExpiresAt == nil {
		return true
	}
	return claims.ExpiresAt.Before(time.Now())
}
