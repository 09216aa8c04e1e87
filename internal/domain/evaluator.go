package domain

import (
	"time"

	"github.com/dhanushfitness/managementTool-sub002/internal/calendar"
)

// Denial reasons recorded on the ledger.
const (
	ReasonExpired   = "Membership has expired"
	ReasonFrozen    = "Membership is frozen"
	ReasonCancelled = "Membership is cancelled"
	ReasonInactive  = "Membership is not active"
)

// EvaluationInput is the membership snapshot the evaluator decides on.
type EvaluationInput struct {
	MembershipStatus    MembershipStatus
	PlanEndDate         *time.Time
	Now                 time.Time
	AllowManualOverride bool
	Location            *time.Location
}

// Evaluation is the admission verdict. Reason is empty when admitted.
type Evaluation struct {
	Verdict Verdict
	Reason  string
}

// Admitted reports whether the verdict lets the member in.
func (e Evaluation) Admitted() bool { return e.Verdict == VerdictSuccess }

// Evaluate decides admission. A manual override admits unconditionally; otherwise an elapsed plan
// end date takes precedence over the stored status so a stale status cannot mask an expired window.
func Evaluate(in EvaluationInput) Evaluation {
	if in.AllowManualOverride {
		return Evaluation{Verdict: VerdictSuccess}
	}

	if in.PlanEndDate != nil && calendar.EndOfDay(*in.PlanEndDate, in.Location).Before(in.Now) {
		return Evaluation{Verdict: VerdictExpired, Reason: ReasonExpired}
	}

	switch in.MembershipStatus {
	case MembershipActive:
		return Evaluation{Verdict: VerdictSuccess}
	case MembershipExpired:
		return Evaluation{Verdict: VerdictExpired, Reason: ReasonExpired}
	case MembershipFrozen:
		return Evaluation{Verdict: VerdictFrozen, Reason: ReasonFrozen}
	case MembershipCancelled:
		return Evaluation{Verdict: VerdictBlocked, Reason: ReasonCancelled}
	default:
		return Evaluation{Verdict: VerdictBlocked, Reason: ReasonInactive}
	}
}
