package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"trailguard/internal/transport/http/shared"
)

// HealthChecker performs a trivial backend round-trip.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler answers the liveness probe with a store round-trip: a process
// that cannot reach its store is not healthy, it is merely running.
type HealthHandler struct {
	checks map[string]HealthChecker
}

func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Register(r chi.Router) {
	r.Get("/api/health", h.handleHealth)
}

func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := http.StatusOK
	components := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if check == nil {
			components[name] = "not_configured"
			continue
		}
		if err := check.Health(ctx); err != nil {
			components[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	body := map[string]any{"status": "ok", "components": components}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	shared.WriteJSON(w, status, body)
}
