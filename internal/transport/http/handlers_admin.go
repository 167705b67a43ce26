package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"trailguard/internal/audit"
	"trailguard/internal/platform/middleware"
	"trailguard/internal/telemetry"
	"trailguard/internal/transport/http/shared"
	dErrors "trailguard/pkg/domain-errors"
	"trailguard/pkg/requestcontext"
)

const (
	defaultAuditLogLimit = 100
	maxAuditLogLimit     = 1000
)

// StatsProvider computes clear aggregate analytics.
type StatsProvider interface {
	Stats(ctx context.Context) (*telemetry.Stats, error)
}

type auditLogEntry struct {
	Action         string    `json:"action"`
	DataSubject    string    `json:"dataSubject,omitempty"`
	UserID         string    `json:"userId,omitempty"`
	UserRole       string    `json:"userRole,omitempty"`
	Endpoint       string    `json:"endpoint,omitempty"`
	IPAddress      string    `json:"ipAddress,omitempty"`
	ResponseStatus int       `json:"responseStatus"`
	Status         string    `json:"status"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// AdminHandler serves the JWT-guarded researcher surface. Everything here is
// read-only: audit events and clear aggregates, never decrypted payloads.
type AdminHandler struct {
	trail     audit.Store
	stats     StatsProvider
	validator middleware.JWTValidator
	logger    *slog.Logger
	respond   *shared.Responder
}

func NewAdminHandler(trail audit.Store, stats StatsProvider, validator middleware.JWTValidator, logger *slog.Logger, respond *shared.Responder) *AdminHandler {
	return &AdminHandler{trail: trail, stats: stats, validator: validator, logger: logger, respond: respond}
}

// Register mounts the admin routes behind operator authentication.
func (h *AdminHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Get("/api/admin/audit-logs", h.handleAuditLogs)
		r.Get("/api/admin/stats", h.handleStats)
	})
}

func (h *AdminHandler) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultAuditLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxAuditLogLimit {
			h.respond.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be between 1 and 1000"))
			return
		}
		limit = parsed
	}

	events, err := h.trail.ListRecent(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit log listing failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		h.respond.WriteError(w, dErrors.Wrap(err, dErrors.CodeForBackend(err), "list audit events"))
		return
	}

	out := make([]auditLogEntry, 0, len(events))
	for _, e := range events {
		out = append(out, auditLogEntry{
			Action:         string(e.Action),
			DataSubject:    e.DataSubject,
			UserID:         e.UserID,
			UserRole:       e.UserRole,
			Endpoint:       e.Endpoint,
			IPAddress:      e.IPAddress,
			ResponseStatus: e.ResponseStatus,
			Status:         e.Status,
			ErrorMessage:   e.ErrorMessage,
			Timestamp:      e.Timestamp,
		})
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"auditLogs": out})
}

func (h *AdminHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.stats.Stats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "stats aggregation failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		h.respond.WriteError(w, dErrors.Wrap(err, dErrors.CodeForBackend(err), "aggregate stats"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, stats)
}
