// Package audit is the append-only accountability trail. Every operation that
// touches personal data records an event here; nothing in the request path
// ever reads the trail back to make a decision.
package audit

import (
	"context"
	"time"

	"trailguard/pkg/requestcontext"
)

// Action enumerates the recorded event kinds. The set mirrors the retired
// collection service so existing log tooling keeps working.
type Action string

const (
	ActionConsentRegistered       Action = "CONSENT_REGISTERED"
	ActionConsentValidationFailed Action = "CONSENT_VALIDATION_FAILED"
	ActionConsentRegistrationErr  Action = "CONSENT_REGISTRATION_ERROR"
	ActionConsentCheckFailed      Action = "CONSENT_CHECK_FAILED"
	ActionConsentCheckError       Action = "CONSENT_CHECK_ERROR"
	ActionConsentExpired          Action = "CONSENT_EXPIRED"
	ActionConsentRevoked          Action = "CONSENT_REVOKED"
	ActionConsentRevocationFailed Action = "CONSENT_REVOCATION_FAILED"
	ActionConsentRevocationError  Action = "CONSENT_REVOCATION_ERROR"
	ActionDataCollected           Action = "TMT_DATA_COLLECTED"
	ActionDataValidationFailed    Action = "TMT_DATA_VALIDATION_FAILED"
	ActionDataCollectionError     Action = "TMT_DATA_COLLECTION_ERROR"
	ActionDataAccessRequest       Action = "DATA_ACCESS_REQUEST"
	ActionDataAccessFailed        Action = "DATA_ACCESS_FAILED"
	ActionDataAccessError         Action = "DATA_ACCESS_ERROR"
)

// Outcome of the audited operation.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Event is one immutable audit entry. DataSubject carries the pseudonymous
// identifier only; raw identity never enters the trail.
type Event struct {
	Action         Action
	IPAddress      string
	UserAgent      string
	Endpoint       string
	DataSubject    string
	UserID         string
	UserRole       string
	RequestData    string
	ResponseStatus int
	Status         string
	ErrorMessage   string
	Timestamp      time.Time
}

// Success builds a success event, pulling actor context captured by the HTTP
// middleware out of ctx.
func Success(ctx context.Context, action Action, dataSubject string) Event {
	e := fromContext(ctx)
	e.Action = action
	e.DataSubject = dataSubject
	e.ResponseStatus = 200
	e.Status = StatusSuccess
	return e
}

// Failure builds a failed event with the caller-facing status code and the
// internal error detail (trail only; never returned to the client).
func Failure(ctx context.Context, action Action, dataSubject string, responseStatus int, errMessage string) Event {
	e := fromContext(ctx)
	e.Action = action
	e.DataSubject = dataSubject
	e.ResponseStatus = responseStatus
	e.Status = StatusFailed
	e.ErrorMessage = errMessage
	return e
}

func fromContext(ctx context.Context) Event {
	return Event{
		IPAddress:   requestcontext.ClientIP(ctx),
		UserAgent:   requestcontext.UserAgent(ctx),
		Endpoint:    requestcontext.Endpoint(ctx),
		UserID:      requestcontext.ActorID(ctx),
		UserRole:    requestcontext.ActorRole(ctx),
		RequestData: requestcontext.RequestData(ctx),
	}
}
