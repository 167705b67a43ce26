package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"trailguard/internal/audit"
	"trailguard/internal/consent"
	"trailguard/internal/telemetry"
	"trailguard/internal/transport/http/shared"
	dErrors "trailguard/pkg/domain-errors"
	"trailguard/pkg/requestcontext"
)

// consentTokenHeader carries the participant's consent token. Deliberately not
// Authorization: the consent token is a data-processing authorization, not an
// operator credential, and proxies must not confuse the two.
const consentTokenHeader = "X-Consent-Token"

type submitTelemetryRequest struct {
	SessionID   string         `json:"sessionId" validate:"required,max=128"`
	TestPhase   string         `json:"testPhase" validate:"required,oneof=practice test"`
	Data        map[string]any `json:"data" validate:"required"`
	TotalTime   *float64       `json:"totalTime" validate:"omitempty,gte=0"`
	TotalErrors *int           `json:"totalErrors" validate:"omitempty,gte=0"`
	Accuracy    *float64       `json:"accuracy" validate:"omitempty,gte=0,lte=1"`
	Completed   *int           `json:"completedNumbers" validate:"omitempty,gte=0"`
	Metadata    map[string]any `json:"metadata"`
}

type submitTelemetryResponse struct {
	RecordID string `json:"recordId"`
}

type myDataRecord struct {
	RecordID    string               `json:"recordId"`
	SessionID   string               `json:"sessionId"`
	TestPhase   string               `json:"testPhase"`
	CollectedAt time.Time            `json:"collectedAt"`
	Summary     telemetry.Aggregates `json:"summary"`
	Data        map[string]any       `json:"data"`
}

type myDataResponse struct {
	PseudoID string         `json:"pseudoId"`
	Records  []myDataRecord `json:"records"`
}

// TelemetryHandler serves submission and data-subject access endpoints.
type TelemetryHandler struct {
	gate      *consent.Gate
	ledger    *consent.Service
	telemetry *telemetry.Service
	auditor   *audit.Publisher
	logger    *slog.Logger
	respond   *shared.Responder
	validate  *validator.Validate
}

func NewTelemetryHandler(gate *consent.Gate, ledger *consent.Service, svc *telemetry.Service, auditor *audit.Publisher, logger *slog.Logger, respond *shared.Responder) *TelemetryHandler {
	return &TelemetryHandler{
		gate:      gate,
		ledger:    ledger,
		telemetry: svc,
		auditor:   auditor,
		logger:    logger,
		respond:   respond,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register mounts the telemetry routes.
func (h *TelemetryHandler) Register(r chi.Router) {
	r.Post("/api/tmt-data", h.handleSubmit)
	r.Get("/api/my-data/{token}", h.handleMyData)
}

func (h *TelemetryHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// The gate runs before body validation: without authorization the
	// payload contents are none of our business.
	record, err := h.gate.Authorize(ctx, r.Header.Get(consentTokenHeader))
	if err != nil {
		h.respond.WriteError(w, err)
		return
	}

	var req submitTelemetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionDataValidationFailed, record.PseudoID, 400, "malformed request body"))
		h.respond.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionDataValidationFailed, record.PseudoID, 400, err.Error()))
		h.respond.WriteError(w, fieldValidationError(err))
		return
	}

	recordID, err := h.telemetry.Submit(ctx, telemetry.SubmitInput{
		PseudoID:     record.PseudoID,
		ConsentToken: record.Token,
		SessionID:    req.SessionID,
		TestPhase:    telemetry.Phase(req.TestPhase),
		Payload:      req.Data,
		Aggregates: telemetry.Aggregates{
			TotalTime:   req.TotalTime,
			TotalErrors: req.TotalErrors,
			Accuracy:    req.Accuracy,
			Completed:   req.Completed,
		},
		Metadata: req.Metadata,
	})
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeStoreFailure || dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "telemetry submission failed",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		h.respond.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, submitTelemetryResponse{RecordID: recordID})
}

func (h *TelemetryHandler) handleMyData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := chi.URLParam(r, "token")

	records, err := h.telemetry.ListFor(ctx, token)
	if err != nil {
		if !dErrors.Is(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "data access request failed",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		h.respond.WriteError(w, err)
		return
	}

	// Lookup cannot fail here; ListFor already resolved it.
	record, err := h.ledger.Lookup(ctx, token)
	if err != nil {
		h.respond.WriteError(w, err)
		return
	}

	out := myDataResponse{PseudoID: record.PseudoID, Records: make([]myDataRecord, 0, len(records))}
	for _, rec := range records {
		out.Records = append(out.Records, myDataRecord{
			RecordID:    rec.RecordID,
			SessionID:   rec.SessionID,
			TestPhase:   string(rec.TestPhase),
			CollectedAt: rec.CollectedAt,
			Summary:     rec.Summary,
			Data:        rec.Payload,
		})
	}
	shared.WriteJSON(w, http.StatusOK, out)
}
