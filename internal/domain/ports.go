package domain

import (
	"context"
	"time"
)

// MemberRepository captures member persistence used by check-in and the expiry sweep.
// Lookups return (nil, nil) when the member does not exist in the organization.
type MemberRepository interface {
	FindByID(ctx context.Context, organizationID, memberID string) (*Member, error)
	FindByBiometric(ctx context.Context, organizationID, digest string) (*Member, error)
	// ListActiveWithPlanEnd returns every active member whose current plan carries an end date.
	ListActiveWithPlanEnd(ctx context.Context) ([]Member, error)
	// UpdateStats serializes a read-modify-write of the member's attendance statistics.
	UpdateStats(ctx context.Context, organizationID, memberID string, fn func(AttendanceStats) AttendanceStats) (*Member, error)
	// SaveLifecycle persists MembershipStatus and CurrentPlan.LastExpiryNotification.
	SaveLifecycle(ctx context.Context, member Member) error
}

// VisitDay identifies the calendar day a duplicate check applies to.
type VisitDay struct {
	Start time.Time
	End   time.Time
}

// AttendanceRepository is the attendance ledger.
type AttendanceRepository interface {
	// FindOpenVisit returns the successful, unclosed visit of the member on the given day.
	FindOpenVisit(ctx context.Context, organizationID, memberID string, day VisitDay) (*AttendanceRecord, error)
	// Record inserts a new entry. When guard is non-nil the open-visit lookup and the insert run
	// atomically per member and day; an existing open visit yields *DuplicateCheckInError.
	// CheckInTime must carry the organization's location; the ledger's day is taken from it.
	Record(ctx context.Context, record AttendanceRecord, guard *VisitDay) (*AttendanceRecord, error)
	// Admit is Record for an admitted entry that also applies stats to the member, all in one
	// transaction. Nothing is written when the member is missing or the update fails.
	Admit(ctx context.Context, record AttendanceRecord, guard *VisitDay,
		stats func(AttendanceStats) AttendanceStats) (*AttendanceRecord, *Member, error)
	Get(ctx context.Context, organizationID, attendanceID string) (*AttendanceRecord, error)
	// Close sets CheckOutTime once. Returns ErrAttendanceNotFound or ErrAlreadyClosed.
	Close(ctx context.Context, organizationID, attendanceID string, at time.Time) (*AttendanceRecord, error)
	// Save overwrites a record as part of a manual correction. CheckInTime carries the
	// organization's location as in Record.
	Save(ctx context.Context, record AttendanceRecord) error
}

// OrganizationDirectory resolves tenant settings.
type OrganizationDirectory interface {
	Organization(ctx context.Context, organizationID string) (*Organization, error)
}

// AuditSink receives audit events after the primary state change is persisted.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// Clock abstracts the current time.
type Clock func() time.Time
