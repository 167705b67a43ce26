package consent

import (
	"context"

	"trailguard/internal/audit"
	"trailguard/internal/platform/metrics"
	dErrors "trailguard/pkg/domain-errors"
)

// Gate is the request-time guard in front of every personal-data operation.
// It distinguishes "no token presented at all" from "token invalid or
// expired": the former points at misbehaving clients, the latter at consent
// genuinely lapsing, and operators want to tell them apart.
type Gate struct {
	ledger  *Service
	auditor *audit.Publisher
	metrics *metrics.Metrics
}

// NewGate wires the gate over the ledger.
func NewGate(ledger *Service, auditor *audit.Publisher, m *metrics.Metrics) *Gate {
	return &Gate{ledger: ledger, auditor: auditor, metrics: m}
}

// Authorize validates the presented token and returns the consent record the
// operation may proceed under. Every decision, allow or deny, lands in the
// audit trail.
func (g *Gate) Authorize(ctx context.Context, token string) (*Record, error) {
	if token == "" {
		g.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionConsentCheckFailed, "", 403, "consent token not provided"))
		g.count("missing")
		return nil, dErrors.New(dErrors.CodeMissingConsent, "explicit consent is required to process this data")
	}

	record, err := g.ledger.Validate(ctx, token)
	if err != nil {
		// Validate already audited the failure with its precise reason.
		g.count("denied")
		return nil, err
	}
	g.count("allowed")
	return record, nil
}

func (g *Gate) count(outcome string) {
	if g.metrics != nil {
		g.metrics.ConsentChecks.WithLabelValues(outcome).Inc()
	}
}
