// Package events defines the audit payloads published to the message bus.
package events

import "time"

// SchemaVersion is stamped on every published audit payload.
const SchemaVersion = "v1"

// AttendanceAudit is emitted for check-ins, check-outs, corrections and membership lifecycle changes.
type AttendanceAudit struct {
	EventID        string            `json:"event_id"`
	EventType      string            `json:"event_type"`
	OrganizationID string            `json:"organization_id"`
	BranchID       string            `json:"branch_id,omitempty"`
	MemberID       string            `json:"member_id,omitempty"`
	AttendanceID   string            `json:"attendance_id,omitempty"`
	Actor          string            `json:"actor,omitempty"`
	Verdict        string            `json:"verdict,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	Override       bool              `json:"override"`
	Details        map[string]string `json:"details,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
	Version        string            `json:"version"`
}
