package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/event-sphere/internal/idempotency"
	"github.com/robertarktes/event-sphere/internal/observability"
	"github.com/robertarktes/event-sphere/internal/ratelimit"
)

type RouterConfig struct {
	Verifier           TokenVerifier
	RateLimiter        *ratelimit.RateLimiter
	RateLimitPerMinute int
	Idempotency        *idempotency.Idempotency
	AllowedOrigins     []string
}

func SetupRouter(h *Handlers, logger observability.Logger, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(CORSMiddleware(cfg.AllowedOrigins))

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", h.Healthz)
		r.Get("/readyz", h.Readyz)

		// Authenticated by signature, and exempt from client rate limits.
		r.Post("/webhooks/stripe", h.StripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.Verifier, logger))
			r.Use(RateLimitMiddleware(cfg.RateLimiter, cfg.RateLimitPerMinute))

			r.Get("/events", h.ListEvents)
			r.Get("/events/{id}", h.GetEvent)
			r.Get("/events/{id}/related", h.RelatedEvents)
			r.Get("/users/{id}/events", h.OrganizerEvents)
			r.Get("/categories", h.ListCategories)

			r.Group(func(r chi.Router) {
				r.Use(RequireAuth(logger))

				r.Post("/events", h.CreateEvent)
				r.Patch("/events/{id}", h.UpdateEvent)
				r.Delete("/events/{id}", h.DeleteEvent)
				r.Get("/events/{id}/orders", h.EventOrders)

				r.Get("/users/me", h.Me)
				r.Patch("/users/me", h.UpdateMe)
				r.Post("/categories", h.CreateCategory)

				r.With(IdempotencyMiddleware(cfg.Idempotency, logger)).Post("/checkout", h.Checkout)
				r.Get("/checkout/sessions/{sessionId}", h.VerifySession)
				r.Get("/orders", h.ListOrders)
				r.Get("/orders/{id}", h.GetOrder)

				r.Post("/uploads/sign", h.SignUpload)

				r.Get("/notifications", h.ListNotifications)
				r.Patch("/notifications/{id}/read", h.MarkNotificationRead)
				r.Delete("/notifications/{id}", h.DeleteNotification)
			})
		})
	})

	return r
}
