package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trailguard/internal/platform/metrics"
	"trailguard/internal/platform/middleware"
)

// RouterConfig carries everything the HTTP surface needs. Handlers are
// registered by the packages that own them; the router only assembles the
// middleware chain and mounts.
type RouterConfig struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
	StaticDir      string

	Consent   *ConsentHandler
	Telemetry *TelemetryHandler
	Health    *HealthHandler
	Admin     *AdminHandler
}

// NewRouter assembles the full middleware chain and mounts every handler.
// Order matters: recovery outermost, then request identity and metadata so
// everything downstream (including the audit trail) sees them.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.AuditContext)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Latency(cfg.Metrics))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Group(func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Limit)
		}
		cfg.Consent.Register(r)
		cfg.Telemetry.Register(r)
		cfg.Health.Register(r)
		if cfg.Admin != nil {
			cfg.Admin.Register(r)
		}
	})

	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	} else {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"service":"trailguard","status":"running"}`))
		})
	}

	return r
}
