package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dhanushfitness/managementTool-sub002/internal/events"
)

// ErrInvalidAudit marks payloads that cannot be stored.
var ErrInvalidAudit = errors.New("invalid audit payload")

// AuditLogHandler stores consumed audit events in attendance_audit_log. Replays are ignored by
// event ID.
type AuditLogHandler struct {
	pool *pgxpool.Pool
}

// NewAuditLogHandler constructs a handler backed by the provided pool.
func NewAuditLogHandler(pool *pgxpool.Pool) *AuditLogHandler {
	return &AuditLogHandler{pool: pool}
}

// Handle decodes and inserts one audit event.
func (h *AuditLogHandler) Handle(ctx context.Context, msg Message) error {
	audit, err := parseAudit(msg)
	if err != nil {
		return err
	}

	details, err := json.Marshal(audit.Details)
	if err != nil {
		return err
	}
	if audit.Details == nil {
		details = []byte("{}")
	}

	_, err = h.pool.Exec(ctx,
		`INSERT INTO attendance_audit_log (event_id, event_type, organization_id, branch_id, member_id, attendance_id, actor, verdict, reason, override, details, occurred_at, kafka_topic, kafka_partition, kafka_offset)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		 ON CONFLICT (event_id) DO NOTHING`,
		audit.EventID, audit.EventType, audit.OrganizationID, audit.BranchID, audit.MemberID, audit.AttendanceID,
		audit.Actor, audit.Verdict, audit.Reason, audit.Override, details, audit.OccurredAt,
		msg.Topic, msg.Partition, msg.Offset,
	)
	return err
}

func parseAudit(msg Message) (events.AttendanceAudit, error) {
	var audit events.AttendanceAudit
	if err := json.Unmarshal(msg.Payload, &audit); err != nil {
		return audit, fmt.Errorf("%w: %v", ErrInvalidAudit, err)
	}
	if audit.EventID == "" || audit.OrganizationID == "" {
		return audit, fmt.Errorf("%w: missing event_id or organization_id", ErrInvalidAudit)
	}
	if audit.EventType == "" {
		audit.EventType = msg.EventType
	}
	if msg.TenantID != "" && msg.TenantID != audit.OrganizationID {
		return audit, fmt.Errorf("%w: tenant header %q does not match organization %q", ErrInvalidAudit, msg.TenantID, audit.OrganizationID)
	}
	if audit.OccurredAt.IsZero() {
		audit.OccurredAt = msg.Timestamp
	}
	return audit, nil
}
