package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bitcoinsovereign/academy/internal/audit"
	"github.com/bitcoinsovereign/academy/internal/auth"
	"github.com/bitcoinsovereign/academy/internal/config"
	"github.com/bitcoinsovereign/academy/internal/email"
	"github.com/bitcoinsovereign/academy/internal/entitlements"
	"github.com/bitcoinsovereign/academy/internal/ratelimit"
)

type Api struct {
	Config  *config.Config
	Router  *chi.Mux
	auth    *auth.Handlers
	limiter *ratelimit.Limiter
}

func NewApi(cfg *config.Config) (*Api, error) {
	ring := auth.NewSecretRing(cfg.Auth.Secret, cfg.Auth.PreviousSecret)

	api := &Api{
		Config:  cfg,
		Router:  chi.NewRouter(),
		auth:    auth.NewHandlers(cfg, auth.NewTokenManager(ring), email.NewService(cfg)),
		limiter: ratelimit.NewLimiter(),
	}

	api.setupRoutes()
	return api, nil
}

func (api *Api) setupRoutes() {
	r := api.Router

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*.bitcoinsovereign.academy", "http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Secret"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/heartbeat", api.Heartbeat)

	// Auth endpoints carry the tightest budget: each request can cost an
	// email send.
	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(api.limiter, ratelimit.PolicyAuth))
		r.Post("/auth/magic-link", api.auth.MagicLinkHandler)
		r.Get("/auth/verify", api.auth.VerifyHandler)
		r.Post("/auth/verify", api.auth.VerifyHandler)
	})

	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(api.limiter, ratelimit.PolicyAPI))
		r.Post("/auth/logout", api.auth.LogoutHandler)

		// Anonymous access checks are allowed: the free tier needs no account.
		r.Get("/access/check", api.CheckAccessHandler)
		r.Post("/access/check", api.CheckAccessHandler)
		r.Post("/access/check-bulk", api.CheckBulkAccessHandler)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAccessToken(api.auth.Tokens()))
			r.Get("/auth/me", api.auth.MeHandler)
			r.Get("/entitlements", api.ListEntitlementsHandler)
		})
	})

	// Grant/revoke are called by payment webhooks and operators, never
	// browsers; they authenticate with the shared admin secret.
	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(api.limiter, ratelimit.PolicyPayment))
		r.Use(api.AdminAuthMiddleware)
		r.Post("/admin/entitlements/grant", api.GrantEntitlementHandler)
		r.Post("/admin/entitlements/revoke", api.RevokeEntitlementHandler)
	})
}

func (api *Api) Serve() {
	stop := make(chan struct{})
	defer close(stop)

	ratelimit.StartSweeper(api.limiter, 5*time.Minute, stop)
	api.startMaintenance(stop)
	api.startAuditExport()

	log.Printf("Starting API server on 0.0.0.0:%d", api.Config.APIPort)
	log.Fatal(http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", api.Config.APIPort), api.Router))
}

// startMaintenance runs the hourly database housekeeping: expired sessions,
// expired entitlements and stale magic-link counters.
func (api *Api) startMaintenance(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			if err := auth.CleanupExpiredSessions(); err != nil {
				log.Printf("Error cleaning up expired sessions: %v", err)
			}
			if err := auth.CleanupExpiredLinkRequests(); err != nil {
				log.Printf("Error cleaning up magic link requests: %v", err)
			}
			if err := entitlements.CleanupExpiredEntitlements(); err != nil {
				log.Printf("Error cleaning up expired entitlements: %v", err)
			}
			select {
			case <-ticker.C:
			case <-stop:
				return
			}
		}
	}()
}

func (api *Api) startAuditExport() {
	exporter, err := audit.NewExporter(api.Config)
	if err != nil {
		log.Printf("[AUDIT] Exporter disabled: %v", err)
		return
	}
	if exporter == nil {
		return
	}
	go exporter.Run(context.Background(), 15*time.Minute)
}

func (api *Api) Heartbeat(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
