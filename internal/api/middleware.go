package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/bitcoinsovereign/academy/internal/database"
	"github.com/bitcoinsovereign/academy/internal/models"
)

// AdminAuthMiddleware gates the grant/revoke endpoints behind the shared
// admin secret. With no secret configured the endpoints are closed, not open.
func (api *Api) AdminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := api.Config.Auth.AdminSecret
		presented := r.Header.Get("X-Admin-Secret")

		if secret == "" || presented == "" ||
			subtle.ConstantTimeCompare([]byte(secret), []byte(presented)) != 1 {
			database.LogSecurityEvent(models.SecurityEvent{
				Type:      models.EventSuspiciousActivity,
				Severity:  models.SeverityHigh,
				IPAddress: r.RemoteAddr,
				UserAgent: r.UserAgent(),
				Metadata:  map[string]interface{}{"path": r.URL.Path, "reason": "bad_admin_secret"},
			})
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}
