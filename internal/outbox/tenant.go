package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// inTenant runs fn in a transaction scoped to one organization's rows.
func inTenant(ctx context.Context, pool *pgxpool.Pool, tenantID string, fn func(pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT set_config('app.tenant_id', $1, true)`, tenantID); err != nil {
			return fmt.Errorf("scope tenant %s: %w", tenantID, err)
		}
		return fn(tx)
	})
}

// byTenant splits messages per organization, preserving their order.
func byTenant(messages []Message) map[string][]Message {
	out := make(map[string][]Message)
	for _, msg := range messages {
		out[msg.TenantID] = append(out[msg.TenantID], msg)
	}
	return out
}
