package consumer

import "github.com/prometheus/client_golang/prometheus"

var (
	recordsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "auditlog",
		Name:      "records_total",
		Help:      "Audit records read from Kafka by topic, event type and result.",
	}, []string{"topic", "event_type", "result"})

	storedAtGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "attendance",
		Subsystem: "auditlog",
		Name:      "newest_stored_seconds",
		Help:      "Kafka timestamp of the newest stored record per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(recordsCounter, storedAtGauge)
}

func recordProcessed(msg Message) {
	recordsCounter.WithLabelValues(msg.Topic, msg.EventType, "stored").Inc()
	if ts := msg.Timestamp; !ts.IsZero() {
		storedAtGauge.WithLabelValues(msg.Topic).Set(float64(ts.Unix()))
	}
}

func recordHandlerError(msg Message) {
	recordsCounter.WithLabelValues(msg.Topic, msg.EventType, "failed").Inc()
}

func recordDecodeError(topic string) {
	recordsCounter.WithLabelValues(topic, "", "undecodable").Inc()
}
