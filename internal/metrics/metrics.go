// Package metrics exposes Prometheus instrumentation for the daemon.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diverad_polls_total",
		Help: "Total number of upstream polls by outcome",
	}, []string{"ucr", "outcome"}) // outcome=success|failure

	pollFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diverad_poll_failures_total",
		Help: "Total number of failed polls by reason",
	}, []string{"ucr", "reason"}) // reason=auth|connection|bad_response|upstream|circuit_open

	pollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "diverad_poll_duration_seconds",
		Help:    "Duration of upstream pull requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"ucr"})

	lastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "diverad_last_poll_success_timestamp_seconds",
		Help: "Unix timestamp of the last successful poll",
	}, []string{"ucr"})

	openAlarms = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "diverad_open_alarms",
		Help: "Whether the unit currently has at least one open alarm (1) or not (0)",
	}, []string{"ucr"})

	userStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "diverad_user_status_id",
		Help: "Current availability status id of the user",
	}, []string{"ucr"})

	statusWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diverad_status_writes_total",
		Help: "Status set-requests sent upstream by outcome",
	}, []string{"ucr", "outcome"})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "diverad_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"target"})

	archiveErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diverad_archive_errors_total",
		Help: "Total number of failed archive writes",
	})

	rateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diverad_ratelimit_exceeded_total",
		Help: "Total rate limit rejections",
	}, []string{"route"})
)

func RecordPoll(ucr, outcome string, d time.Duration) {
	pollsTotal.WithLabelValues(ucr, outcome).Inc()
	pollDuration.WithLabelValues(ucr).Observe(d.Seconds())
}

func IncPollFailure(ucr, reason string) {
	pollFailures.WithLabelValues(ucr, reason).Inc()
}

func SetLastSuccess(ucr string, t time.Time) {
	lastSuccess.WithLabelValues(ucr).Set(float64(t.Unix()))
}

func SetOpenAlarms(ucr string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	openAlarms.WithLabelValues(ucr).Set(v)
}

func SetUserStatus(ucr string, id int) {
	userStatus.WithLabelValues(ucr).Set(float64(id))
}

func IncStatusWrite(ucr, outcome string) {
	statusWrites.WithLabelValues(ucr, outcome).Inc()
}

// SetCircuitBreakerState records the breaker state for a remote target.
func SetCircuitBreakerState(target, state string) {
	var v float64
	switch state {
	case "open":
		v = 2
	case "half-open":
		v = 1
	}
	circuitBreakerState.WithLabelValues(target).Set(v)
}

func IncArchiveError() { archiveErrors.Inc() }

func IncRateLimitExceeded(route string) {
	rateLimitExceeded.WithLabelValues(route).Inc()
}
