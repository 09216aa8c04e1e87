package outbox

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Message is one outbox row. Field order matches the claim query's RETURNING list.
type Message struct {
	EventID       int64
	TenantID      string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

// batchStore is the dispatcher's view of the outbox tables.
type batchStore interface {
	// Claim leases up to limit unpublished rows, skipping rows leased less than lease ago.
	Claim(ctx context.Context, limit int, lease time.Duration) ([]Message, error)
	// Complete marks rows as handled so they are never claimed again.
	Complete(ctx context.Context, messages []Message) error
	// Park copies rows into the dead-letter table with the delivery error.
	Park(ctx context.Context, messages []Message, cause error) error
}

type pgBatchStore struct {
	pool *pgxpool.Pool
}

const claimQuery = `
WITH due AS (
    SELECT event_id
      FROM outbox
     WHERE published_at IS NULL
       AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $2))
     ORDER BY event_id
     LIMIT $1
       FOR UPDATE SKIP LOCKED
)
UPDATE outbox o
   SET claimed_at = NOW()
  FROM due
 WHERE o.event_id = due.event_id
RETURNING o.event_id, o.tenant_id, o.aggregate_type, o.aggregate_id, o.event_type,
          o.topic, o.schema_subject, o.partition_key, o.payload`

func (s pgBatchStore) Claim(ctx context.Context, limit int, lease time.Duration) ([]Message, error) {
	rows, err := s.pool.Query(ctx, claimQuery, limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim outbox rows: %w", err)
	}
	claimed, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Message])
	if err != nil {
		return nil, fmt.Errorf("scan outbox rows: %w", err)
	}
	slices.SortFunc(claimed, func(a, b Message) int { return cmp.Compare(a.EventID, b.EventID) })
	return claimed, nil
}

func (s pgBatchStore) Complete(ctx context.Context, messages []Message) error {
	for tenantID, group := range byTenant(messages) {
		ids := make([]int64, len(group))
		for i, msg := range group {
			ids[i] = msg.EventID
		}
		err := inTenant(ctx, s.pool, tenantID, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, ids)
			return err
		})
		if err != nil {
			return fmt.Errorf("complete outbox rows for %s: %w", tenantID, err)
		}
	}
	return nil
}

const parkStatement = `
INSERT INTO outbox_dlq (tenant_id, event_id, event_type, topic, schema_subject, partition_key,
                        aggregate_type, aggregate_id, payload, reason, next_retry_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`

func (s pgBatchStore) Park(ctx context.Context, messages []Message, cause error) error {
	for tenantID, group := range byTenant(messages) {
		err := inTenant(ctx, s.pool, tenantID, func(tx pgx.Tx) error {
			batch := &pgx.Batch{}
			for _, msg := range group {
				batch.Queue(parkStatement,
					msg.TenantID, msg.EventID, msg.EventType, msg.Topic, msg.SchemaSubject, msg.PartitionKey,
					msg.AggregateType, msg.AggregateID, msg.Payload, fmt.Sprintf("%v (topic=%s)", cause, msg.Topic))
			}
			return tx.SendBatch(ctx, batch).Close()
		})
		if err != nil {
			return fmt.Errorf("park outbox rows for %s: %w", tenantID, err)
		}
	}
	return nil
}
