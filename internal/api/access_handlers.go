package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/bitcoinsovereign/academy/internal/auth"
	"github.com/bitcoinsovereign/academy/internal/entitlements"
	"github.com/bitcoinsovereign/academy/internal/models"
)

type checkAccessRequest struct {
	ContentType string `json:"content_type"`
	ContentID   string `json:"content_id"`
}

// CheckAccessHandler handles GET|POST /access/check. A bearer token is
// optional: anonymous callers still resolve against the free tier.
func (api *Api) CheckAccessHandler(w http.ResponseWriter, r *http.Request) {
	var req checkAccessRequest
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request")
			return
		}
	} else {
		req.ContentType = r.URL.Query().Get("content_type")
		req.ContentID = r.URL.Query().Get("content_id")
	}

	contentType, ok := models.ParseContentType(req.ContentType)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown content type")
		return
	}
	if err := auth.AssertValid(auth.ValidateContentID(req.ContentID)); err != nil {
		var vErr *auth.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Reason)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid content id")
		return
	}

	access, err := entitlements.CheckAccess(api.optionalUserID(r), contentType, req.ContentID)
	if err != nil {
		log.Printf("[API] Access check failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Access check failed")
		return
	}

	if !access.HasAccess {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"has_access": false,
			"reason":     access.Reason,
			"message":    "You do not have access to this content. Please purchase it to continue.",
		})
		return
	}

	writeJSON(w, http.StatusOK, access)
}

type checkBulkRequest struct {
	Items []entitlements.ContentRef `json:"items"`
}

// CheckBulkAccessHandler handles POST /access/check-bulk for catalog pages.
func (api *Api) CheckBulkAccessHandler(w http.ResponseWriter, r *http.Request) {
	var req checkBulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if len(req.Items) == 0 || len(req.Items) > 100 {
		writeError(w, http.StatusBadRequest, "Expected between 1 and 100 items")
		return
	}
	for _, item := range req.Items {
		if _, ok := models.ParseContentType(string(item.Type)); !ok {
			writeError(w, http.StatusBadRequest, "Unknown content type")
			return
		}
		if err := auth.AssertValid(auth.ValidateContentID(item.ID)); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid content id")
			return
		}
	}

	results, err := entitlements.CheckBulkAccess(api.optionalUserID(r), req.Items)
	if err != nil {
		log.Printf("[API] Bulk access check failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Access check failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// ListEntitlementsHandler handles GET /entitlements for the logged-in user.
func (api *Api) ListEntitlementsHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	ents, err := entitlements.GetUserEntitlements(claims.UserID)
	if err != nil {
		log.Printf("[API] Entitlement list failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load entitlements")
		return
	}
	if ents == nil {
		ents = []models.Entitlement{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"entitlements": ents})
}

// GrantEntitlementHandler handles POST /admin/entitlements/grant, called by
// the payment webhook after a confirmed purchase.
func (api *Api) GrantEntitlementHandler(w http.ResponseWriter, r *http.Request) {
	var req entitlements.GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	granted, err := entitlements.Grant(req)
	if err != nil {
		switch {
		case errors.Is(err, entitlements.ErrUnknownProduct):
			writeError(w, http.StatusBadRequest, "Unknown product")
		case errors.Is(err, entitlements.ErrInvalidGrant):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("[API] Grant failed: %v", err)
			writeError(w, http.StatusInternalServerError, "Grant failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"entitlement": granted,
	})
}

type revokeRequest struct {
	UserID          string `json:"user_id"`
	EntitlementType string `json:"entitlement_type"`
	ItemID          string `json:"item_id"`
}

// RevokeEntitlementHandler handles POST /admin/entitlements/revoke for
// refunds and lapsed subscriptions.
func (api *Api) RevokeEntitlementHandler(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	err := entitlements.Revoke(req.UserID, models.EntitlementType(req.EntitlementType), req.ItemID)
	if err != nil {
		switch {
		case errors.Is(err, entitlements.ErrEntitlementNotFound):
			writeError(w, http.StatusNotFound, "Entitlement not found")
		case errors.Is(err, entitlements.ErrInvalidGrant):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("[API] Revoke failed: %v", err)
			writeError(w, http.StatusInternalServerError, "Revoke failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// optionalUserID extracts the caller's user id from a bearer token when one
// is presented and valid, and returns "" otherwise. Invalid tokens degrade to
// anonymous rather than failing: the free tier must stay reachable.
func (api *Api) optionalUserID(r *http.Request) string {
	bearer := auth.ExtractBearerToken(r.Header.Get("Authorization"))
	if bearer == "" {
		return ""
	}
	claims, err := api.auth.Tokens().ValidateWithRevocation(bearer)
	if err != nil {
		return ""
	}
	return claims.UserID
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[API] Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message})
}
