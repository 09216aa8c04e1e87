package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	checkInCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "checkin",
		Name:      "total",
		Help:      "Check-in attempts by method and recorded verdict.",
	}, []string{"method", "verdict"})
	duplicateCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "checkin",
		Name:      "duplicates_total",
		Help:      "Check-in attempts rejected because an open visit already exists for the day.",
	})
	biometricMissCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "checkin",
		Name:      "biometric_unknown_total",
		Help:      "Fingerprint check-ins whose identifier matched no member.",
	})
	auditFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "audit",
		Name:      "emit_failures_total",
		Help:      "Audit events that could not be recorded after the state change committed.",
	}, []string{"event_type"})
	sweepCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "expiry_sweep",
		Name:      "members_total",
		Help:      "Members handled by the expiry sweep by result (expired, notified, failed).",
	}, []string{"result"})
	sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "attendance",
		Subsystem: "expiry_sweep",
		Name:      "duration_seconds",
		Help:      "Wall-clock duration of a full expiry sweep run.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
	sweepLastRunGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Subsystem: "expiry_sweep",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed expiry sweep.",
	})
	notificationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "notify",
		Name:      "deliveries_total",
		Help:      "Expiry notification deliveries by channel and result.",
	}, []string{"channel", "result"})
)

func init() {
	prometheus.MustRegister(
		checkInCounter,
		duplicateCounter,
		biometricMissCounter,
		auditFailureCounter,
		sweepCounter,
		sweepDuration,
		sweepLastRunGauge,
		notificationCounter,
	)
}

// RecordCheckIn counts a persisted check-in attempt.
func RecordCheckIn(method, verdict string) {
	checkInCounter.WithLabelValues(method, verdict).Inc()
}

// RecordDuplicateCheckIn counts a rejected duplicate.
func RecordDuplicateCheckIn() {
	duplicateCounter.Inc()
}

// RecordBiometricMiss counts an unknown fingerprint identifier.
func RecordBiometricMiss() {
	biometricMissCounter.Inc()
}

// RecordAuditFailure counts an audit event that was dropped.
func RecordAuditFailure(eventType string) {
	auditFailureCounter.WithLabelValues(eventType).Inc()
}

// RecordSweep records the totals of a completed sweep run.
func RecordSweep(expired, notified, failed int, elapsed time.Duration, finished time.Time) {
	sweepCounter.WithLabelValues("expired").Add(float64(expired))
	sweepCounter.WithLabelValues("notified").Add(float64(notified))
	sweepCounter.WithLabelValues("failed").Add(float64(failed))
	sweepDuration.Observe(elapsed.Seconds())
	if !finished.IsZero() {
		sweepLastRunGauge.Set(float64(finished.Unix()))
	}
}

// RecordNotification counts a single channel delivery attempt.
func RecordNotification(channel string, err error) {
	result := "delivered"
	if err != nil {
		result = "failed"
	}
	notificationCounter.WithLabelValues(channel, result).Inc()
}
