package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pergamon-io/pergamon/internal/auth"
	"github.com/pergamon-io/pergamon/internal/config"
	"github.com/pergamon-io/pergamon/internal/metrics"
	"github.com/pergamon-io/pergamon/internal/repository"
)

// RouterConfig contains the dependencies for the HTTP router.
type RouterConfig struct {
	AuthHandler        *AuthHandler
	UserHandler        *UserHandler
	BookHandler        *BookHandler
	LoanHandler        *LoanHandler
	ReservationHandler *ReservationHandler
	DashboardHandler   *DashboardHandler

	AuthMiddleware func(http.Handler) http.Handler
	Recorder       metrics.Recorder
	Database       repository.DatabaseHealth
	RateLimit      config.RateLimitConfig
	Metrics        config.MetricsConfig
	MetricsHandler http.Handler
	Logger         zerolog.Logger
}

// NewRouter builds the full route table with the middleware chain
// applied: request ID, logging, panic recovery, metrics, then bearer
// token resolution. Authorization happens per route group or inside
// the handlers for ownership checks.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logging(cfg.Logger))
	r.Use(Recovery(cfg.Logger))
	r.Use(Metrics(cfg.Recorder))
	r.Use(cfg.AuthMiddleware)

	r.Get("/health", healthHandler(cfg.Database))

	if cfg.Metrics.Enabled && cfg.MetricsHandler != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, cfg.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", cfg.AuthHandler.Register)
			if cfg.RateLimit.Enabled {
				r.With(RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize)).
					Post("/login", cfg.AuthHandler.Login)
			} else {
				r.Post("/login", cfg.AuthHandler.Login)
			}
			r.Get("/verify", cfg.AuthHandler.Verify)
			r.Post("/change-password", cfg.AuthHandler.ChangePassword)
		})

		r.Route("/books", func(r chi.Router) {
			// Catalog reads are public.
			r.Get("/", cfg.BookHandler.List)
			r.Get("/available", cfg.BookHandler.ListAvailable)
			r.Get("/recent", cfg.BookHandler.ListRecent)
			r.Get("/search", cfg.BookHandler.Search)
			r.Get("/stats", cfg.BookHandler.Stats)
			r.Get("/category/{category}", cfg.BookHandler.ListByCategory)
			r.Get("/isbn/{isbn}", cfg.BookHandler.GetByISBN)
			r.Get("/{id}", cfg.BookHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(auth.Require(auth.OpBookManage))
				r.Post("/", cfg.BookHandler.Create)
				r.Put("/{id}", cfg.BookHandler.Update)
				r.Delete("/{id}", cfg.BookHandler.Delete)
			})
		})

		r.Route("/users", func(r chi.Router) {
			// Get authorizes inline: members may read their own record.
			r.Get("/{id}", cfg.UserHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(auth.Require(auth.OpUserManage))
				r.Post("/", cfg.UserHandler.Create)
				r.Get("/", cfg.UserHandler.List)
				r.Get("/search", cfg.UserHandler.Search)
				r.Get("/counts", cfg.UserHandler.Counts)
				r.Put("/{id}", cfg.UserHandler.Update)
				r.Put("/{id}/deactivate", cfg.UserHandler.Deactivate)
			})
		})

		r.Route("/loans", func(r chi.Router) {
			r.Post("/", cfg.LoanHandler.Grant)
			r.Get("/mine", cfg.LoanHandler.Mine)
			r.Put("/{id}/renew", cfg.LoanHandler.Renew)
			r.Put("/{id}/return", cfg.LoanHandler.Return)

			r.Group(func(r chi.Router) {
				r.Use(auth.Require(auth.OpLoanList))
				r.Get("/", cfg.LoanHandler.List)
				r.Get("/overdue", cfg.LoanHandler.Overdue)
			})
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", cfg.ReservationHandler.Create)
			r.Get("/mine", cfg.ReservationHandler.Mine)
			r.Delete("/{id}", cfg.ReservationHandler.Cancel)

			r.With(auth.Require(auth.OpReservationList)).
				Get("/book/{id}", cfg.ReservationHandler.ListByBook)
		})

		r.With(auth.Require(auth.OpDashboard)).
			Get("/dashboard/stats", cfg.DashboardHandler.Stats)
	})

	return r
}

func healthHandler(db repository.DatabaseHealth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  "database unreachable",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}
