package auth

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/bitcoinsovereign/academy/internal/config"
	"github.com/bitcoinsovereign/academy/internal/database"
	"github.com/bitcoinsovereign/academy/internal/models"
)

// Handlers carries the collaborators the auth endpoints need.
type Handlers struct {
	cfg      *config.Config
	tokens   *TokenManager
	notifier Notifier
}

// NewHandlers wires the auth HTTP surface.
func NewHandlers(cfg *config.Config, tokens *TokenManager, notifier Notifier) *Handlers {
	return &Handlers{cfg: cfg, tokens: tokens, notifier: notifier}
}

// Tokens exposes the token manager for middleware wiring.
func (h *Handlers) Tokens() *TokenManager {
	return h.tokens
}

type magicLinkRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Token             string `json:"token"`
	DeviceFingerprint string `json:"device_fingerprint"`
}

// MagicLinkHandler handles POST /auth/magic-link. The success body is
// byte-identical for registered and unregistered addresses so the endpoint
// cannot be used to enumerate accounts.
func (h *Handlers) MagicLinkHandler(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	err := RequestMagicLink(h.notifier, req.Email, clientIP(r))
	if err != nil {
		var vErr *ValidationError
		switch {
		case errors.As(err, &vErr):
			writeError(w, http.StatusBadRequest, vErr.Reason)
		case errors.Is(err, ErrTooManyLinkRequests):
			writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again in an hour.")
		default:
			log.Printf("[AUTH] Magic link error: %v", err)
			database.LogSecurityEvent(models.SecurityEvent{
				Type:      models.EventAuthFailure,
				Severity:  models.SeverityLow,
				IPAddress: SanitizeIPAddress(clientIP(r)),
				Metadata:  map[string]interface{}{"error": err.Error(), "endpoint": "magic-link"},
			})
			writeError(w, http.StatusInternalServerError, "Failed to send magic link. Please try again.")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "If that email is registered, you will receive a login link shortly.",
	})
}

// VerifyHandler handles GET|POST /auth/verify: exchanges a magic-link token
// for a session cookie plus a short-lived access token.
func (h *Handlers) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request")
			return
		}
	}
	if req.Token == "" {
		req.Token = r.URL.Query().Get("token")
	}

	result, err := VerifyMagicLink(req.Token, req.DeviceFingerprint, clientIP(r), r.UserAgent())
	if err != nil {
		var vErr *ValidationError
		switch {
		case errors.As(err, &vErr):
			writeError(w, http.StatusBadRequest, vErr.Reason)
		case errors.Is(err, ErrLinkNotFound):
			writeError(w, http.StatusUnauthorized, "Invalid or expired magic link. Please request a new one.")
		case errors.Is(err, ErrLinkExpired):
			writeError(w, http.StatusUnauthorized, "This magic link has expired. Please request a new one.")
		default:
			log.Printf("[AUTH] Verification error: %v", err)
			database.LogSecurityEvent(models.SecurityEvent{
				Type:      models.EventAuthFailure,
				Severity:  models.SeverityMedium,
				IPAddress: SanitizeIPAddress(clientIP(r)),
				UserAgent: SanitizeUserAgent(r.UserAgent()),
				Metadata:  map[string]interface{}{"error": err.Error(), "endpoint": "verify"},
			})
			writeError(w, http.StatusInternalServerError, "Verification failed. Please try again.")
		}
		return
	}

	accessToken, err := h.tokens.Generate(result.User.ID, result.User.Email, result.DeviceID, nil, AccessTokenTTL)
	if err != nil {
		log.Printf("[AUTH] Failed to mint access token: %v", err)
		writeError(w, http.StatusInternalServerError, "Verification failed. Please try again.")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    result.SessionToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionTTL.Seconds()),
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"access_token": accessToken,
		"user": map[string]interface{}{
			"id":             result.User.ID,
			"email":          result.User.Email,
			"email_verified": true,
		},
	})
}

// LogoutHandler handles POST /auth/logout: drops the session row and revokes
// the presented bearer token, then clears the cookie.
func (h *Handlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie("session"); err == nil && cookie.Value != "" {
		if err := DeleteSession(cookie.Value); err != nil && !errors.Is(err, ErrSessionNotFound) {
			log.Printf("[AUTH] Logout session delete failed: %v", err)
		}
	}

	if bearer := ExtractBearerToken(r.Header.Get("Authorization")); bearer != "" {
		if claims, err := h.tokens.Validate(bearer); err == nil {
			h.tokens.Revocation().Revoke(claims.ID)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// MeHandler handles GET /auth/me for bearer-authenticated callers.
func (h *Handlers) MeHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        claims.UserID,
		"email":     claims.Email,
		"device_id": claims.DeviceID,
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// The first hop is the client; the rest are proxies.
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[AUTH] Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message})
}
