package ratelimit

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bitcoinsovereign/academy/internal/database"
	"github.com/bitcoinsovereign/academy/internal/models"
)

// Middleware enforces a policy per client IP on every request it wraps.
// Refusals carry the standard X-RateLimit-* headers plus Retry-After so
// well-behaved clients back off without guessing.
func Middleware(limiter *Limiter, policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			decision := limiter.Allow(key, policy)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				retryAfter := int(decision.RetryAfter.Round(time.Second).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				log.Printf("[RATELIMIT] %s exceeded %s policy on %s", key, policy.Name, r.URL.Path)
				database.LogSecurityEvent(models.SecurityEvent{
					Type:      models.EventRateLimitHit,
					Severity:  models.SeverityMedium,
					IPAddress: key,
					UserAgent: r.UserAgent(),
					Metadata: map[string]interface{}{
						"policy": policy.Name,
						"path":   r.URL.Path,
					},
				})

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"error":       "Too many requests",
					"retry_after": retryAfter,
					"message":     fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retryAfter),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// StartSweeper evicts reset windows on an interval until stop is closed.
func StartSweeper(limiter *Limiter, interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := limiter.Sweep(); n > 0 {
					log.Printf("[RATELIMIT] Swept %d expired windows", n)
				}
			case <-stop:
				return
			}
		}
	}()
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	// RemoteAddr includes the port; strip it so one client is one key.
	if idx := strings.LastIndex(r.RemoteAddr, ":"); idx > 0 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}
