package domain

import (
	"errors"
	"fmt"

	"github.com/dhanushfitness/managementTool-sub002/internal/calendar"
)

var (
	// ErrNotFound is returned when a member or attendance record does not exist in the caller's organization.
	ErrNotFound = errors.New("not found")
	// ErrMemberNotFound narrows ErrNotFound to members.
	ErrMemberNotFound = fmt.Errorf("member %w", ErrNotFound)
	// ErrAttendanceNotFound narrows ErrNotFound to attendance records.
	ErrAttendanceNotFound = fmt.Errorf("attendance record %w", ErrNotFound)
	// ErrDuplicateCheckIn indicates an open successful visit already exists for the day.
	ErrDuplicateCheckIn = errors.New("member already checked in today")
	// ErrAlreadyClosed is returned when checking out a visit twice.
	ErrAlreadyClosed = errors.New("attendance already checked out")
	// ErrInvalidTimestamp is returned for malformed dates or times that cannot be defaulted.
	ErrInvalidTimestamp = calendar.ErrInvalidTimestamp
	// ErrOverrideRequired guards the manual correction path.
	ErrOverrideRequired = errors.New("manual override flag required")
	// ErrActorRequired is returned when an override is requested without an identified staff member.
	ErrActorRequired = errors.New("override requires an acting staff member")
	// ErrInvalidRequest covers missing identifiers and unknown enum values.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotificationChannel marks a per-channel delivery failure during the expiry sweep.
	ErrNotificationChannel = errors.New("notification channel failure")
)

// DuplicateCheckInError carries the already-open visit so callers can display it.
type DuplicateCheckInError struct {
	Existing AttendanceRecord
}

func (e *DuplicateCheckInError) Error() string {
	return fmt.Sprintf("%s (attendance %s at %s)", ErrDuplicateCheckIn, e.Existing.ID, e.Existing.CheckInTime.Format("15:04"))
}

// Unwrap lets errors.Is match ErrDuplicateCheckIn.
func (e *DuplicateCheckInError) Unwrap() error { return ErrDuplicateCheckIn }
