//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/dhanushfitness/managementTool-sub002/internal/events"
	"github.com/dhanushfitness/managementTool-sub002/internal/outbox"
)

type collectingHandler struct {
	received chan Message
}

func (h collectingHandler) Handle(_ context.Context, msg Message) error {
	h.received <- msg
	return nil
}

func TestAuditEventsRoundTripThroughKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.RunContainer(ctx, testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{
		Topic:             outbox.TopicAttendanceAudit,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
	_ = conn.Close()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     "auditlog-integration",
		Topic:       outbox.TopicAttendanceAudit,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	handler := collectingHandler{received: make(chan Message, 1)}
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	go func() { _ = NewProcessor(reader, handler).Run(consumerCtx) }()

	audit := events.AttendanceAudit{
		EventID:        "evt-int",
		EventType:      "attendance.checkin",
		OrganizationID: "org-1",
		MemberID:       "m-1",
		Verdict:        "success",
		OccurredAt:     time.Now().UTC(),
		Version:        events.SchemaVersion,
	}
	payload, err := json.Marshal(audit)
	require.NoError(t, err)

	producer := outbox.NewKafkaProducer(brokers)
	defer producer.Close()
	require.NoError(t, producer.WriteMessages(ctx, outbox.TopicAttendanceAudit, kafka.Message{
		Key:   []byte("org-1:m-1"),
		Value: outbox.Frame(9, payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(audit.EventType)},
			{Key: "tenant_id", Value: []byte(audit.OrganizationID)},
		},
	}))

	select {
	case msg := <-handler.received:
		require.Equal(t, 9, msg.SchemaID)
		require.Equal(t, "org-1", msg.TenantID)
		parsed, err := parseAudit(msg)
		require.NoError(t, err)
		require.Equal(t, "evt-int", parsed.EventID)
	case <-ctx.Done():
		t.Fatal("audit event was not consumed")
	}
}
