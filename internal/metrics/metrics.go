package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scan cycle metrics
	ScanCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbwatch_scan_cycles_total",
			Help: "Total number of scan cycles",
		},
		[]string{"status"}, // complete, degraded, skipped
	)

	ScanCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "arbwatch_scan_cycle_duration_seconds",
			Help:    "Duration of full scan cycles",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// Quote metrics
	QuotesNormalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbwatch_quotes_normalized_total",
			Help: "Total number of quotes produced by the normalizer",
		},
		[]string{"sport"},
	)

	QuotesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbwatch_quotes_skipped_total",
			Help: "Total number of malformed quotes skipped during normalization",
		},
		[]string{"sport"},
	)

	// Opportunity metrics
	OpportunitiesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbwatch_opportunities_detected_total",
			Help: "Total number of arbitrage opportunities detected",
		},
		[]string{"sport", "market"},
	)

	OpportunityProfitPct = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "arbwatch_opportunity_profit_pct",
			Help:    "Distribution of detected opportunity profit percentages",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 12, 20},
		},
	)

	// Alert metrics
	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbwatch_alerts_sent_total",
			Help: "Total number of alerts sent",
		},
		[]string{"status", "type"}, // success/error, telegram/discord/log
	)

	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arbwatch_alerts_suppressed_total",
			Help: "Total number of alerts suppressed by the dedup window",
		},
	)

	// Provider metrics
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbwatch_provider_requests_total",
			Help: "Total number of odds provider requests",
		},
		[]string{"sport", "status"}, // success/error
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arbwatch_provider_request_duration_seconds",
			Help:    "Duration of odds provider requests",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"sport"},
	)

	// Credential pool metrics
	CredentialRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbwatch_credential_rotations_total",
			Help: "Total number of credential rotations",
		},
		[]string{"reason"}, // quota_exceeded, auth_rejected
	)

	CredentialsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arbwatch_credentials_active",
			Help: "Number of credentials currently active with quota remaining",
		},
	)

	// Database metrics
	DatabaseQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbwatch_database_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"}, // get/insert/update, success/error
	)

	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arbwatch_database_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// System health
	HealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbwatch_health_checks_total",
			Help: "Total number of health check requests",
		},
		[]string{"status"}, // healthy/unhealthy
	)
)

// RecordScanCycle records one completed scan cycle
func RecordScanCycle(duration time.Duration, status string) {
	ScanCycles.WithLabelValues(status).Inc()
	ScanCycleDuration.Observe(duration.Seconds())
}

// RecordNormalization records normalizer output for one sport
func RecordNormalization(sport string, produced, skipped int) {
	QuotesNormalized.WithLabelValues(sport).Add(float64(produced))
	QuotesSkipped.WithLabelValues(sport).Add(float64(skipped))
}

// RecordOpportunity records a detected arbitrage opportunity
func RecordOpportunity(sport, market string, profitPct float64) {
	OpportunitiesDetected.WithLabelValues(sport, market).Inc()
	OpportunityProfitPct.Observe(profitPct)
}

// RecordAlert records alert delivery metrics
func RecordAlert(sendStatus, alertType string, suppressed bool) {
	if suppressed {
		AlertsSuppressed.Inc()
		return
	}
	AlertsSent.WithLabelValues(sendStatus, alertType).Inc()
}

// RecordProviderRequest records odds provider request metrics
func RecordProviderRequest(sport string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ProviderRequests.WithLabelValues(sport, status).Inc()
	ProviderRequestDuration.WithLabelValues(sport).Observe(duration.Seconds())
}

// RecordCredentialRotation records a forced credential rotation
func RecordCredentialRotation(reason string) {
	CredentialRotations.WithLabelValues(reason).Inc()
}

// RecordDatabaseQuery records database query metrics
func RecordDatabaseQuery(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseQueries.WithLabelValues(operation, status).Inc()
	DatabaseQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHealthCheck records health check status
func RecordHealthCheck(healthy bool) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	HealthChecks.WithLabelValues(status).Inc()
}
