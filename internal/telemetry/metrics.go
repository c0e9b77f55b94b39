// Package telemetry registers the process's Prometheus collectors, served
// from GET /metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts requests by method, matched route, and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faultline_http_requests_total",
		Help: "HTTP requests by method, route pattern, and status.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes request latency by method and matched route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "faultline_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// EventsIngested counts raw rows accepted by type (event, log, trace).
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faultline_events_ingested_total",
		Help: "Raw rows accepted by the ingestion pipeline.",
	}, []string{"type"})

	// IssueSignals counts aggregator outcomes (created, regressed, none).
	IssueSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faultline_issue_signals_total",
		Help: "Issue aggregator transitions by signal.",
	}, []string{"signal"})

	// JobsProcessed counts dispatch jobs by queue and result
	// (ok, retried, dead).
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faultline_jobs_processed_total",
		Help: "Dispatch queue jobs by terminal result.",
	}, []string{"queue", "result"})

	// AlertsFired counts alert firings by trigger type.
	AlertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faultline_alerts_fired_total",
		Help: "Alert rule firings by trigger type.",
	}, []string{"trigger"})

	// AlertsSuppressed counts evaluations swallowed by cooldown.
	AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faultline_alerts_suppressed_total",
		Help: "Alert evaluations suppressed by cooldown.",
	}, []string{"trigger"})

	// Notifications counts channel deliveries by channel and result.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faultline_notifications_total",
		Help: "Notification channel deliveries.",
	}, []string{"channel", "result"})

	// RollupsRun counts minute-window aggregations.
	RollupsRun = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faultline_rollups_total",
		Help: "Minute rollup runs by result.",
	}, []string{"result"})
)
