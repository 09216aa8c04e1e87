package domain

import "time"

// CheckInMethod identifies how the member presented themselves.
type CheckInMethod string

const (
	MethodBiometric CheckInMethod = "biometric"
	MethodManual    CheckInMethod = "manual"
	MethodQR        CheckInMethod = "qr"
	MethodMobile    CheckInMethod = "mobile"
)

// Valid reports whether m is a known method.
func (m CheckInMethod) Valid() bool {
	switch m {
	case MethodBiometric, MethodManual, MethodQR, MethodMobile:
		return true
	}
	return false
}

// Verdict is the admission decision recorded on every attendance entry.
type Verdict string

const (
	VerdictSuccess Verdict = "success"
	VerdictBlocked Verdict = "blocked"
	VerdictExpired Verdict = "expired"
	VerdictFrozen  Verdict = "frozen"
	VerdictGuest   Verdict = "guest"
)

// Valid reports whether v is a known verdict.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictSuccess, VerdictBlocked, VerdictExpired, VerdictFrozen, VerdictGuest:
		return true
	}
	return false
}

// AttendanceRecord is a single ledger entry, written for admitted and denied attempts alike.
type AttendanceRecord struct {
	ID             string
	OrganizationID string
	BranchID       string
	MemberID       string
	CheckInTime    time.Time
	CheckOutTime   *time.Time
	Method         CheckInMethod
	Status         Verdict
	BlockedReason  string
	Notes          string
	CheckedInBy    *string
	// Override marks entries created through a staff bypass of the duplicate check. Once written
	// they still count as the member's open visit for later ordinary check-ins.
	Override bool
	// Corrected marks entries rewritten by a manual correction.
	Corrected bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Open reports whether the record is a successful visit without a check-out.
func (r AttendanceRecord) Open() bool {
	return r.Status == VerdictSuccess && r.CheckOutTime == nil
}
