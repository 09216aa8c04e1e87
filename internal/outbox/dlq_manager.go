package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxRetryDelay = time.Hour

// ReplayReport summarises one DLQManager pass.
type ReplayReport struct {
	Requeued    int
	Rescheduled int
	Quarantined int
}

// Total is the number of entries the pass acted on.
func (r ReplayReport) Total() int { return r.Requeued + r.Rescheduled + r.Quarantined }

// DLQManager moves dead letters back into the outbox until they exhaust their retries.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
}

// NewDLQManager constructs a DLQManager. Non-positive values fall back to five retries and a one
// minute base delay.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	return &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay}
}

type deadLetter struct {
	ID            int64  `db:"dlq_id"`
	TenantID      string `db:"tenant_id"`
	EventType     string `db:"event_type"`
	Topic         string `db:"topic"`
	SchemaSubject string `db:"schema_subject"`
	RetryCount    int    `db:"retry_count"`
}

// Replay handles up to limit due dead letters. Per-entry failures are joined into the error and do
// not stop the pass.
func (m *DLQManager) Replay(ctx context.Context, limit int) (ReplayReport, error) {
	var report ReplayReport

	rows, err := m.pool.Query(ctx, `
		SELECT dlq_id, tenant_id, event_type, topic, schema_subject, retry_count
		  FROM outbox_dlq
		 WHERE quarantined_at IS NULL
		   AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		 ORDER BY created_at
		 LIMIT $1`, limit)
	if err != nil {
		return report, fmt.Errorf("select dead letters: %w", err)
	}
	due, err := pgx.CollectRows(rows, pgx.RowToStructByName[deadLetter])
	if err != nil {
		return report, fmt.Errorf("scan dead letters: %w", err)
	}

	var errs error
	for _, entry := range due {
		outcome, err := m.replay(ctx, entry)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("dead letter %d: %w", entry.ID, err))
			continue
		}
		recordDLQOutcome(entry, outcome)
		switch outcome {
		case outcomeRequeued:
			report.Requeued++
		case outcomeRescheduled:
			report.Rescheduled++
		case outcomeQuarantined:
			report.Quarantined++
		}
	}
	m.refreshBacklog(ctx)
	return report, errs
}

func (m *DLQManager) replay(ctx context.Context, entry deadLetter) (string, error) {
	switch {
	case entry.RetryCount >= m.maxRetries:
		return outcomeQuarantined, m.quarantine(ctx, entry, "retry limit reached")
	case entry.SchemaSubject == "":
		return outcomeQuarantined, m.quarantine(ctx, entry, "missing schema subject")
	}

	err := inTenant(ctx, m.pool, entry.TenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			WITH moved AS (
			    DELETE FROM outbox_dlq WHERE dlq_id = $1
			    RETURNING tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
			)
			INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
			SELECT tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
			  FROM moved`, entry.ID)
		return err
	})
	if err == nil {
		return outcomeRequeued, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return outcomeRescheduled, m.reschedule(ctx, entry, err)
}

func (m *DLQManager) quarantine(ctx context.Context, entry deadLetter, reason string) error {
	return inTenant(ctx, m.pool, entry.TenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $2 WHERE dlq_id = $1`,
			entry.ID, reason)
		return err
	})
}

func (m *DLQManager) reschedule(ctx context.Context, entry deadLetter, cause error) error {
	wait := m.retryAfter(entry.RetryCount + 1)
	return inTenant(ctx, m.pool, entry.TenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE outbox_dlq
			   SET retry_count = retry_count + 1,
			       last_attempt_at = NOW(),
			       next_retry_at = NOW() + make_interval(secs => $2),
			       reason = $3
			 WHERE dlq_id = $1`,
			entry.ID, wait.Seconds(), cause.Error())
		return err
	})
}

// retryAfter grows the wait exponentially with the attempt number, capped at maxRetryDelay.
func (m *DLQManager) retryAfter(attempt int) time.Duration {
	wait := m.baseDelay
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return min(wait, maxRetryDelay)
}

func (m *DLQManager) refreshBacklog(ctx context.Context) {
	var pending int
	err := m.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&pending)
	if err == nil {
		dlqBacklogGauge.Set(float64(pending))
	}
}
