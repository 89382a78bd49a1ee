package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/flowmail/dashboard/internal/pkg/metrics"
)

// Authenticator guards the /api routes. RequireAuth must pass requests
// through untouched when authentication is disabled.
type Authenticator interface {
	RequireAuth(next http.Handler) http.Handler
	HandleLogin(w http.ResponseWriter, r *http.Request)
	HandleCallback(w http.ResponseWriter, r *http.Request)
	HandleLogout(w http.ResponseWriter, r *http.Request)
	HandleUserInfo(w http.ResponseWriter, r *http.Request)
}

// RouteOptions carries the optional pieces of the router.
type RouteOptions struct {
	Auth           Authenticator
	Health         *HealthChecker
	AllowedOrigins []string
}

// SetupRoutes configures all routes.
func SetupRoutes(h *Handlers, opts RouteOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Whop-User-Token"},
		AllowCredentials: len(opts.AllowedOrigins) > 0,
		MaxAge:           300,
	}))

	if opts.Health != nil {
		r.Get("/health", opts.Health.HandleHealth)
	}
	r.Handle("/metrics", metrics.Handler())
	r.Get("/sample-subscribers.csv", h.SampleCSV)

	if opts.Auth != nil {
		r.Get("/auth/login", opts.Auth.HandleLogin)
		r.Get("/auth/callback", opts.Auth.HandleCallback)
		r.Get("/auth/logout", opts.Auth.HandleLogout)
		r.Get("/auth/user", opts.Auth.HandleUserInfo)
	}

	// Webhooks authenticate with their own shared secrets.
	r.Post("/webhooks/whop", h.WhopWebhook)
	r.Post("/webhooks/email", h.EmailWebhook)

	r.Route("/api", func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth.RequireAuth)
		}

		r.Get("/user", h.GetUser)
		r.Post("/settings/sender-name", h.SetSenderName)

		r.Route("/subscribers", func(r chi.Router) {
			r.Get("/", h.ListSubscribers)
			r.Post("/", h.CreateSubscriber)
			r.Post("/sync", h.SyncSubscribers)
			r.Post("/import", h.ImportSubscribers)
			r.Post("/delete", h.DeleteSubscribers)
			r.Delete("/{id}", h.DeleteSubscriber)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Post("/", h.CreateCampaign)
			r.Post("/delete", h.DeleteCampaigns)
			r.Get("/{id}", h.GetCampaign)
			r.Put("/{id}", h.UpdateCampaign)
			r.Delete("/{id}", h.DeleteCampaign)
			r.Post("/{id}/send", h.SendCampaign)
			r.Post("/{id}/test", h.SendTestEmail)
		})

		r.Get("/billing/plans", h.ListPlans)
		r.Post("/billing/checkout", h.Checkout)
		r.Post("/account/clear-data", h.ClearData)

		r.Post("/domain", h.RegisterDomain)
		r.Post("/domain/verify", h.VerifyDomain)
		r.Delete("/domain", h.RemoveDomain)
	})

	return r
}
