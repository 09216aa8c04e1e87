package outbox

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeRequeued    = "requeued"
	outcomeRescheduled = "rescheduled"
	outcomeQuarantined = "quarantined"
)

var (
	enqueuedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "outbox",
		Name:      "events_enqueued_total",
		Help:      "Audit events written to the outbox by event type.",
	}, []string{"event_type"})

	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Outbox events published to Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Outbox events parked in the dead-letter table.",
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Outbox events parked in the dead-letter table by topic.",
	}, []string{"topic"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "attendance",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent publishing and settling one claimed batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "dlq",
		Name:      "entries_total",
		Help:      "Dead letters handled by replay outcome.",
	}, []string{"outcome", "topic", "event_type"})

	dlqBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Subsystem: "dlq",
		Name:      "backlog",
		Help:      "Dead letters not yet quarantined.",
	})
)

func init() {
	prometheus.MustRegister(enqueuedCounter, deliveredCounter, failedCounter, dlqCounter, batchDuration, dlqOutcomeCounter, dlqBacklogGauge)
}

func recordDLQOutcome(entry deadLetter, outcome string) {
	dlqOutcomeCounter.WithLabelValues(outcome, entry.Topic, entry.EventType).Inc()
}
