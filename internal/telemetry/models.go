// Package telemetry accepts, encrypts, and persists test-session submissions
// under a pseudonymous identity, and serves them back for data-subject access
// requests. It exclusively owns telemetry record creation and soft-deletion.
package telemetry

import (
	"time"

	"trailguard/internal/crypto"
)

// Phase of the trail making test a session belongs to.
type Phase string

const (
	PhasePractice Phase = "practice"
	PhaseTest     Phase = "test"
)

// Aggregates are the session-level summary metrics. They are classified
// non-sensitive and stored in clear for analytics. Revisit if combined
// re-identification risk is ever reassessed; tracked as a data-classification
// decision, not a bug.
type Aggregates struct {
	TotalTime   *float64 `json:"totalTime"`
	TotalErrors *int     `json:"totalErrors"`
	Accuracy    *float64 `json:"accuracy"`
	Completed   *int     `json:"completedNumbers"`
}

// Record is one persisted test-session submission. The raw interaction trace
// lives only inside Payload's ciphertext.
type Record struct {
	ID           string
	PseudoID     string
	SessionID    string
	TestPhase    Phase
	Payload      crypto.Blob
	Aggregates   Aggregates
	Metadata     map[string]any
	ConsentToken string
	CollectedAt  time.Time
	DeletedAt    *time.Time
}

// PhaseStats are the clear aggregate analytics for one test phase. Computed
// from the summary columns only; ciphertext is never touched.
type PhaseStats struct {
	Phase        Phase    `json:"phase"`
	Records      int      `json:"records"`
	AvgTotalTime *float64 `json:"avgTotalTime"`
	AvgErrors    *float64 `json:"avgErrors"`
	AvgAccuracy  *float64 `json:"avgAccuracy"`
}

// Stats summarize the non-deleted dataset for the researcher surface.
type Stats struct {
	TotalRecords  int          `json:"totalRecords"`
	TotalSubjects int          `json:"totalSubjects"`
	ByPhase       []PhaseStats `json:"byPhase"`
}

// DecryptedRecord is what a data-subject access request returns: the clear
// summary plus the decrypted interaction trace.
type DecryptedRecord struct {
	RecordID    string
	SessionID   string
	TestPhase   Phase
	CollectedAt time.Time
	Summary     Aggregates
	Payload     map[string]any
}
