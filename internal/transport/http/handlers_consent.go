// Package httptransport is the thin HTTP layer: request decoding, field
// validation, and translation between domain errors and JSON envelopes.
// Business decisions stay in the services.
package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"trailguard/internal/audit"
	"trailguard/internal/consent"
	"trailguard/internal/transport/http/shared"
	dErrors "trailguard/pkg/domain-errors"
	"trailguard/pkg/requestcontext"
)

// registerConsentRequest is the inbound registration payload. Validation tags
// mirror the participant-facing form contract.
type registerConsentRequest struct {
	Name         string   `json:"name" validate:"required,min=3"`
	Email        string   `json:"email" validate:"required,email"`
	Age          int      `json:"age" validate:"required,gte=18,lte=120"`
	Gender       string   `json:"gender" validate:"omitempty,max=40"`
	Education    string   `json:"education" validate:"omitempty,max=80"`
	ConsentTypes []string `json:"consentTypes" validate:"required,min=1,dive,required"`
	ConsentText  string   `json:"consentText" validate:"required"`
}

type registerConsentResponse struct {
	ConsentToken string    `json:"consentToken"`
	PseudoID     string    `json:"pseudoId"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// ConsentHandler serves the participant-facing consent endpoints.
type ConsentHandler struct {
	ledger   *consent.Service
	auditor  *audit.Publisher
	logger   *slog.Logger
	respond  *shared.Responder
	validate *validator.Validate
}

func NewConsentHandler(ledger *consent.Service, auditor *audit.Publisher, logger *slog.Logger, respond *shared.Responder) *ConsentHandler {
	return &ConsentHandler{
		ledger:   ledger,
		auditor:  auditor,
		logger:   logger,
		respond:  respond,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register mounts the consent routes.
func (h *ConsentHandler) Register(r chi.Router) {
	r.Post("/api/consent", h.handleRegister)
	r.Delete("/api/consent/{token}", h.handleRevoke)
}

func (h *ConsentHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionConsentValidationFailed, "", 400, "malformed request body"))
		h.respond.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionConsentValidationFailed, "", 400, err.Error()))
		h.respond.WriteError(w, fieldValidationError(err))
		return
	}

	record, err := h.ledger.Register(ctx, consent.RegisterInput{
		Name:         req.Name,
		Email:        req.Email,
		Age:          req.Age,
		Gender:       req.Gender,
		Education:    req.Education,
		ConsentTypes: req.ConsentTypes,
		ConsentText:  req.ConsentText,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "consent registration failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		h.respond.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, registerConsentResponse{
		ConsentToken: record.Token,
		PseudoID:     record.PseudoID,
		ExpiresAt:    record.ExpiresAt,
	})
}

func (h *ConsentHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := chi.URLParam(r, "token")

	if err := h.ledger.Revoke(ctx, token); err != nil {
		if !dErrors.Is(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "consent revocation failed",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		h.respond.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// fieldValidationError flattens validator output into the per-field detail the
// error envelope carries.
func fieldValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return dErrors.New(dErrors.CodeBadRequest, "invalid request")
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return dErrors.WithFields("request validation failed", fields)
}
