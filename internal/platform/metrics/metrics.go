package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ConsentsRegistered prometheus.Counter
	ConsentsRevoked    prometheus.Counter
	ConsentsExpired    prometheus.Counter
	ConsentChecks      *prometheus.CounterVec
	TelemetryRecords   prometheus.Counter
	DataAccessRequests prometheus.Counter
	AuditWriteFailures prometheus.Counter
	AuditEventsDropped prometheus.Counter
	RequestDuration    *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConsentsRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "trailguard_consents_registered_total",
			Help: "Total number of consent records registered",
		}),
		ConsentsRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "trailguard_consents_revoked_total",
			Help: "Total number of consent revocations",
		}),
		ConsentsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "trailguard_consents_expired_total",
			Help: "Total number of consents transitioned to expired",
		}),
		ConsentChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trailguard_consent_checks_total",
			Help: "Consent gate decisions by outcome",
		}, []string{"outcome"}),
		TelemetryRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "trailguard_telemetry_records_total",
			Help: "Total number of telemetry records persisted",
		}),
		DataAccessRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "trailguard_data_access_requests_total",
			Help: "Total number of data subject access requests served",
		}),
		AuditWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "trailguard_audit_write_failures_total",
			Help: "Audit events that could not be persisted",
		}),
		AuditEventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "trailguard_audit_events_dropped_total",
			Help: "Audit events dropped because the async buffer was full",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trailguard_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
