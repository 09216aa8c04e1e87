package domain

import "time"

// MembershipStatus is the lifecycle state of a member's subscription.
type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "active"
	MembershipExpired   MembershipStatus = "expired"
	MembershipFrozen    MembershipStatus = "frozen"
	MembershipCancelled MembershipStatus = "cancelled"
	MembershipPending   MembershipStatus = "pending"
)

// Sessions tracks session-limited plans.
type Sessions struct {
	Total     int
	Used      int
	Remaining int
}

// Plan is the member's current subscription window.
type Plan struct {
	PlanID    string
	PlanName  string
	StartDate *time.Time
	EndDate   *time.Time
	Sessions  *Sessions
	// LastExpiryNotification is the day the last expiry reminder was sent for this plan.
	LastExpiryNotification *time.Time
}

// AttendanceStats are the running counters maintained on every successful check-in.
type AttendanceStats struct {
	TotalCheckIns int
	LastCheckIn   *time.Time
	CurrentStreak int
	LongestStreak int
}

// Member is the subset of the member record read and written by the attendance engine.
type Member struct {
	OrganizationID   string
	BranchID         string
	ID               string
	Name             string
	Email            string
	Phone            string
	PushToken        string
	MembershipStatus MembershipStatus
	CurrentPlan      *Plan
	AttendanceStats  AttendanceStats
	UpdatedAt        time.Time
}

// PlanEndDate returns the current plan's end date, if any.
func (m Member) PlanEndDate() *time.Time {
	if m.CurrentPlan == nil {
		return nil
	}
	return m.CurrentPlan.EndDate
}

// MemberView is the non-sensitive projection returned to check-in callers.
type MemberView struct {
	ID                string
	BranchID          string
	Name              string
	MembershipStatus  MembershipStatus
	PlanName          string
	PlanEndDate       *time.Time
	SessionsRemaining *int
	AttendanceStats   AttendanceStats
}

// View projects the member for display at the front desk.
func (m Member) View() MemberView {
	view := MemberView{
		ID:               m.ID,
		BranchID:         m.BranchID,
		Name:             m.Name,
		MembershipStatus: m.MembershipStatus,
		AttendanceStats:  m.AttendanceStats,
	}
	if m.CurrentPlan != nil {
		view.PlanName = m.CurrentPlan.PlanName
		view.PlanEndDate = m.CurrentPlan.EndDate
		if m.CurrentPlan.Sessions != nil {
			remaining := m.CurrentPlan.Sessions.Remaining
			view.SessionsRemaining = &remaining
		}
	}
	return view
}

// Organization carries the tenant settings the engine depends on.
type Organization struct {
	ID       string
	Name     string
	Location *time.Location
}
