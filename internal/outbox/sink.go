package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dhanushfitness/managementTool-sub002/internal/domain"
	"github.com/dhanushfitness/managementTool-sub002/internal/events"
)

// ErrUnroutable is returned for event types no topic is configured for.
var ErrUnroutable = errors.New("outbox: no route for event type")

// AuditSink writes audit events into the outbox table. The dispatcher publishes them later, so a
// Kafka outage never fails a check-in.
type AuditSink struct {
	pool *pgxpool.Pool
}

// NewAuditSink returns an AuditSink backed by pool.
func NewAuditSink(pool *pgxpool.Pool) *AuditSink {
	return &AuditSink{pool: pool}
}

// Record enqueues the event. Re-recording an event ID is a no-op.
func (s *AuditSink) Record(ctx context.Context, event domain.AuditEvent) error {
	row, err := newOutboxRow(event)
	if err != nil {
		return err
	}

	err = inTenant(ctx, s.pool, row.TenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (dedupe_key) DO NOTHING`,
			row.TenantID, row.AggregateType, row.AggregateID, row.EventType, row.Topic, row.SchemaSubject, row.PartitionKey, row.Payload, event.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", event.Type, err)
	}
	enqueuedCounter.WithLabelValues(event.Type).Inc()
	return nil
}

func newOutboxRow(event domain.AuditEvent) (Message, error) {
	route, ok := RouteFor(event.Type)
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrUnroutable, event.Type)
	}

	payload, err := json.Marshal(Payload(event))
	if err != nil {
		return Message{}, fmt.Errorf("encode audit payload: %w", err)
	}

	aggregateType, aggregateID := "member", event.MemberID
	if event.AttendanceID != "" {
		aggregateType, aggregateID = "attendance", event.AttendanceID
	}

	return Message{
		TenantID:      event.OrganizationID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     event.Type,
		Topic:         route.Topic,
		SchemaSubject: route.Subject,
		PartitionKey:  event.OrganizationID + ":" + event.MemberID,
		Payload:       payload,
	}, nil
}

// Payload converts a domain audit event into its published form.
func Payload(event domain.AuditEvent) events.AttendanceAudit {
	out := events.AttendanceAudit{
		EventID:        event.ID,
		EventType:      event.Type,
		OrganizationID: event.OrganizationID,
		BranchID:       event.BranchID,
		MemberID:       event.MemberID,
		AttendanceID:   event.AttendanceID,
		Verdict:        string(event.Verdict),
		Reason:         event.Reason,
		Override:       event.Override,
		Details:        event.Details,
		OccurredAt:     event.OccurredAt.UTC(),
		Version:        events.SchemaVersion,
	}
	if event.Actor != nil {
		out.Actor = *event.Actor
	}
	return out
}
