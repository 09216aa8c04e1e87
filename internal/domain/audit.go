package domain

import "time"

// Audit event types emitted by the engine.
const (
	AuditCheckIn          = "attendance.checkin"
	AuditCheckInBiometric = "attendance.checkin.biometric"
	AuditCheckOut         = "attendance.checkout"
	AuditUpdated          = "attendance.updated"
	AuditExpired          = "membership.expired"
	AuditExpiryReminder   = "membership.expiry_reminder"
)

// AuditEvent is transport agnostic; sinks decide how it is stored or published.
type AuditEvent struct {
	ID             string
	Type           string
	OrganizationID string
	BranchID       string
	MemberID       string
	AttendanceID   string
	Actor          *string
	Verdict        Verdict
	Reason         string
	Override       bool
	Details        map[string]string
	OccurredAt     time.Time
}
