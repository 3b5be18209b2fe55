package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praetor_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "praetor_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "praetor_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// Baseline / anomaly metrics
	ObservationsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praetor_observations_ingested_total",
			Help: "Total number of behavioral observations ingested",
		},
		[]string{"entity_type", "status"},
	)

	AnomalyScoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praetor_anomaly_scores_total",
			Help: "Total number of anomaly scoring calls",
		},
		[]string{"verdict", "path"},
	)

	AnomalyScoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "praetor_anomaly_score_duration_seconds",
			Help:    "Anomaly scoring latencies in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	// Risk metrics
	RiskDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praetor_risk_decisions_total",
			Help: "Total number of risk policy decisions",
		},
		[]string{"policy"},
	)

	// Correlation metrics
	CorrelationPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praetor_correlation_passes_total",
			Help: "Total number of correlation passes",
		},
		[]string{"trigger", "status"},
	)

	CorrelationPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "praetor_correlation_pass_duration_seconds",
			Help:    "Correlation pass latencies in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)

	IncidentsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praetor_incidents_created_total",
			Help: "Total number of incidents created",
		},
		[]string{"severity", "stage"},
	)

	IncidentsUpdatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "praetor_incidents_updated_total",
			Help: "Total number of incident updates from correlated events",
		},
	)

	// Playbook metrics
	PlaybookExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praetor_playbook_executions_total",
			Help: "Total number of playbook executions",
		},
		[]string{"status"},
	)

	PlaybookActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praetor_playbook_actions_total",
			Help: "Total number of playbook actions executed",
		},
		[]string{"action", "status"},
	)

	// Forensic ledger metrics
	LedgerAppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praetor_ledger_appends_total",
			Help: "Total number of forensic evidence appends",
		},
		[]string{"evidence_type", "status"},
	)

	LedgerVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praetor_ledger_verifications_total",
			Help: "Total number of chain verification walks",
		},
		[]string{"result"},
	)

	LedgerChainLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "praetor_ledger_chain_length",
			Help: "Evidence chain length per organization",
		},
		[]string{"org"},
	)

	// Defense metrics
	BlockedActorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "praetor_blocked_actors_total",
			Help: "Total number of actors blocked",
		},
	)

	TrapTriggersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "praetor_trap_triggers_total",
			Help: "Total number of deception trap triggers",
		},
	)

	// System metrics
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "praetor_build_info",
			Help: "Build information about Praetor",
		},
		[]string{"version", "go_version"},
	)
)
