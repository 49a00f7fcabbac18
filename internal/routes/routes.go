package routes

import (
	"github.com/BradenHooton/arcadia/internal/auth"
	"github.com/BradenHooton/arcadia/internal/handlers"
	"github.com/BradenHooton/arcadia/internal/metrics"
	"github.com/BradenHooton/arcadia/internal/middleware"
	"github.com/BradenHooton/arcadia/internal/models"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	Auth   *handlers.AuthHandler
	MFA    *handlers.MFAHandler
	Admin  *handlers.AdminHandler
	Health *handlers.HealthHandler
}

// Options holds the cross-cutting pieces the routes need. Metrics may be nil,
// in which case /metrics is not mounted.
type Options struct {
	Authenticator *auth.Authenticator
	Metrics       *metrics.Metrics
	RateLimit     middleware.RateLimitConfig
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, h Handlers, opts Options) {
	limitByIP := middleware.RateLimitByIP(opts.RateLimit)

	router.Get("/health", h.Health.Health)
	if opts.Metrics != nil {
		router.Method("GET", "/metrics", opts.Metrics.Handler())
	}

	// Public routes - no authentication required
	router.Group(func(r chi.Router) {
		r.Use(limitByIP)
		r.Post("/auth/register", h.Auth.Register)
		r.Post("/auth/login", h.Auth.Login)
		r.Post("/auth/mfa/verify", h.Auth.VerifyMFA)
		r.Post("/auth/mfa/resend", h.Auth.ResendMFA)
		r.Post("/auth/password/forgot", h.Auth.ForgotPassword)
		r.Post("/auth/password/reset", h.Auth.ResetPassword)
	})

	// Protected routes - identity token required
	router.Group(func(r chi.Router) {
		r.Use(opts.Authenticator.Middleware)
		r.Use(middleware.RateLimitByAccount(opts.RateLimit))

		r.Get("/auth/me", h.Auth.Me)
		r.Post("/auth/logout", h.Auth.Logout)
		r.Post("/auth/password/change", h.Auth.ChangePassword)
		r.Post("/auth/mfa/enable", h.MFA.Enable)
		r.Post("/auth/mfa/enable/confirm", h.MFA.ConfirmEnable)
		r.Post("/auth/mfa/disable", h.MFA.Disable)

		// Admin-only routes
		r.Route("/admin/accounts", func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))
			r.Get("/", h.Admin.FindAccount)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Admin.GetAccount)
				r.Post("/ban", h.Admin.Ban)
				r.Post("/unban", h.Admin.Unban)
				r.Post("/unlock", h.Admin.Unlock)
				r.Put("/role", h.Admin.SetRole)
			})
		})
	})
}
