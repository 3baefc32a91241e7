package http

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/robertarktes/event-sphere/internal/observability"
	"github.com/robertarktes/event-sphere/internal/service"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Services struct {
	Events        *service.EventService
	Categories    *service.CategoryService
	Users         *service.UserService
	Uploads       *service.UploadService
	Orders        *service.OrderService
	Notifications *service.NotificationService
}

type Handlers struct {
	svc    Services
	logger observability.Logger
	checks map[string]HealthCheck
}

func NewHandlers(svc Services, logger observability.Logger, checks map[string]HealthCheck) *Handlers {
	return &Handlers{svc: svc, logger: logger, checks: checks}
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz pings every dependency and lists the ones that failed.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var failed []string
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			observability.LoggerFromContext(ctx, h.logger).WithError(err).WithField("dependency", name).Warn("readiness check failed")
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
