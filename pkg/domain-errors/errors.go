// Package domainerrors defines the typed error vocabulary shared by services
// and the HTTP layer. Services attach a Code; transport translates codes to
// status lines without leaking internal detail.
package domainerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure. Codes are stable strings so they can be
// returned in API envelopes and matched in tests.
type Code string

const (
	// CodeBadRequest covers malformed input caught by field validation.
	CodeBadRequest Code = "bad_request"
	// CodeMissingConsent means no consent token was presented at all. Kept
	// distinct from CodeInvalidConsent so operators can tell misbehaving
	// clients apart from genuinely lapsed consent.
	CodeMissingConsent Code = "missing_consent"
	// CodeInvalidConsent means the presented token matches no usable consent.
	CodeInvalidConsent Code = "invalid_consent"
	// CodeConsentExpired means the consent record exists but its validity
	// window has closed. Terminal: repeated checks keep returning this code.
	CodeConsentExpired Code = "consent_expired"
	// CodeNotFound is a plain lookup miss (revocation or data access by an
	// unknown token).
	CodeNotFound Code = "not_found"
	// CodeIntegrity flags a failed authentication tag during decryption:
	// tampering or data corruption. Never swallowed, never retried.
	CodeIntegrity Code = "integrity_violation"
	// CodeUnauthorized covers missing or invalid operator credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeStoreFailure is a transactional backend failure.
	CodeStoreFailure Code = "store_failure"
	// CodeTimeout is a context deadline or cancellation.
	CodeTimeout Code = "timeout"
	// CodeInternal is the catch-all for everything callers should not see
	// detail of.
	CodeInternal Code = "internal"
)

// Error is the concrete typed error. FieldErrors carries per-field validation
// detail when Code is CodeBadRequest.
type Error struct {
	Code        Code
	Message     string
	FieldErrors map[string]string
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error while keeping the
// chain intact for errors.Is / errors.As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// WithFields returns a CodeBadRequest error carrying field-level detail.
func WithFields(message string, fields map[string]string) *Error {
	return &Error{Code: CodeBadRequest, Message: message, FieldErrors: fields}
}

// CodeForBackend classifies a backend failure: a request whose context
// deadline expired or was cancelled gets CodeTimeout, everything else is
// CodeStoreFailure. Services use it when wrapping store and broker errors so
// the request-timeout middleware surfaces as 504 rather than 500.
func CodeForBackend(err error) Code {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeTimeout
	}
	return CodeStoreFailure
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf extracts the outermost code, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the status the original API surfaced for it.
// Consent-gate failures are 403 (the subject is known but not authorized);
// plain lookup misses are 404.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeMissingConsent, CodeInvalidConsent, CodeConsentExpired:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
