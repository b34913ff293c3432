package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/besikta/inspection-server/internal/metrics"
	"github.com/besikta/inspection-server/internal/middleware"
)

// RouterConfig collects what the router is built from.
type RouterConfig struct {
	// Context bounds background work started by the router's middleware.
	// Defaults to context.Background.
	Context        context.Context
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Auth           middleware.Authenticator
	AllowedOrigins []string
	RateLimitRPM   int
	RequestTimeout time.Duration

	Health       *HealthHandler
	Offers       *OfferHandler
	Appointments *AppointmentHandler
	Resources    *ResourceHandler
	History      *HistoryHandler
	Integrity    *IntegrityHandler
	Scheduler    *SchedulerHandler
}

// NewRouter builds the chi router of the API.
func NewRouter(cfg RouterConfig) http.Handler {
	sugar := cfg.Logger.Sugar()
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger(cfg.Logger, cfg.Metrics))
	r.Use(chimw.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}
	r.Use(middleware.SecureHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Merkle-Root"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if cfg.RateLimitRPM > 0 {
		ctx := cfg.Context
		if ctx == nil {
			ctx = context.Background()
		}
		r.Use(middleware.RateLimit(ctx, cfg.RateLimitRPM))
	}

	if cfg.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(cfg.Gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", cfg.Health.Check)
		r.Get("/health/ready", cfg.Health.Ready)

		// Public offers and reports are readable without a token
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.Auth, sugar))
			r.Get("/offers/{id}", cfg.Offers.Get)
			r.Get("/reports/{id}", cfg.Resources.GetReport)

			r.Get("/integrity/root", cfg.Integrity.GetRoot)
			r.Get("/integrity/proof/{index}", cfg.Integrity.GetProof)
			r.Post("/integrity/verify", cfg.Integrity.Verify)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(cfg.Auth, sugar))

			r.Post("/offers", cfg.Offers.Create)
			r.Post("/offers/{id}/send", cfg.Offers.Send)
			r.Post("/offers/{id}/accept", cfg.Offers.Accept)
			r.Post("/offers/{id}/reject", cfg.Offers.Reject)
			r.Get("/offers/{id}/history", cfg.Offers.History)

			r.Post("/appointments", cfg.Appointments.Create)
			r.Get("/appointments/{id}", cfg.Appointments.Get)
			r.Post("/appointments/{id}/start", cfg.Appointments.Start)
			r.Post("/appointments/{id}/complete", cfg.Appointments.Complete)
			r.Post("/appointments/{id}/complete-direct", cfg.Appointments.CompleteDirect)
			r.Post("/appointments/{id}/cancel", cfg.Appointments.Cancel)
			r.Post("/appointments/{id}/no-show", cfg.Appointments.NoShow)
			r.Post("/appointments/{id}/report", cfg.Appointments.AssignReport)
			r.Get("/appointments/{id}/history", cfg.Appointments.History)

			r.Post("/customers", cfg.Resources.CreateCustomer)
			r.Get("/customers/{id}", cfg.Resources.GetCustomer)
			r.Post("/reports", cfg.Resources.CreateReport)

			r.Get("/history/recent", cfg.History.Recent)
			r.Get("/history/{kind}/{id}/verify", cfg.History.Verify)

			r.Post("/scheduler/follow-ups/run", cfg.Scheduler.RunFollowUps)
		})
	})

	return r
}
