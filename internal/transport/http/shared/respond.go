// Package shared holds the response helpers every handler uses: one JSON
// encoder and one domain-error translator, so envelopes stay uniform.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "trailguard/pkg/domain-errors"
)

// WriteJSON writes v with the given status as a JSON body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Responder translates domain errors into HTTP envelopes. devMode widens
// server-side errors with internal detail; it is fixed at construction from
// the process config and never enabled in production.
type Responder struct {
	devMode bool
}

// NewResponder builds the error responder the handlers share.
func NewResponder(devMode bool) *Responder {
	return &Responder{devMode: devMode}
}

// errorEnvelope is the uniform error body. Description and field detail only
// appear for client errors; server-side failures stay opaque unless dev mode
// is on.
type errorEnvelope struct {
	Error            string            `json:"error"`
	ErrorDescription string            `json:"error_description,omitempty"`
	Fields           map[string]string `json:"fields,omitempty"`
}

// WriteError translates a domain error into its HTTP envelope. Messages for
// 5xx codes never reach the client outside dev mode; the audit trail and
// operational log carry the detail instead.
func (r *Responder) WriteError(w http.ResponseWriter, err error) {
	var de *dErrors.Error
	if !errors.As(err, &de) {
		de = dErrors.New(dErrors.CodeInternal, "internal error")
	}

	status := dErrors.ToHTTPStatus(de.Code)
	envelope := errorEnvelope{Error: string(de.Code)}
	if status < http.StatusInternalServerError || r.devMode {
		envelope.ErrorDescription = de.Message
		envelope.Fields = de.FieldErrors
	}
	WriteJSON(w, status, envelope)
}
