package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvaluateManualOverrideAdmitsUnconditionally(t *testing.T) {
	end := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	eval := Evaluate(EvaluationInput{
		MembershipStatus:    MembershipCancelled,
		PlanEndDate:         &end,
		Now:                 time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		AllowManualOverride: true,
		Location:            time.UTC,
	})
	require.True(t, eval.Admitted())
	require.Empty(t, eval.Reason)
}

func TestEvaluateElapsedPlanTakesPrecedence(t *testing.T) {
	end := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	eval := Evaluate(EvaluationInput{
		MembershipStatus: MembershipActive,
		PlanEndDate:      &end,
		Now:              time.Date(2024, 1, 6, 9, 0, 0, 0, time.UTC),
		Location:         time.UTC,
	})
	require.Equal(t, VerdictExpired, eval.Verdict)
	require.Equal(t, ReasonExpired, eval.Reason)
}

func TestEvaluatePlanEndDayIsInclusive(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	end := time.Date(2024, 1, 5, 0, 0, 0, 0, kolkata)

	eval := Evaluate(EvaluationInput{
		MembershipStatus: MembershipActive,
		PlanEndDate:      &end,
		Now:              time.Date(2024, 1, 5, 23, 30, 0, 0, kolkata),
		Location:         kolkata,
	})
	require.True(t, eval.Admitted())
}

func TestEvaluateStatuses(t *testing.T) {
	now := time.Date(2024, 1, 6, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		status  MembershipStatus
		verdict Verdict
		reason  string
	}{
		{MembershipActive, VerdictSuccess, ""},
		{MembershipExpired, VerdictExpired, ReasonExpired},
		{MembershipFrozen, VerdictFrozen, ReasonFrozen},
		{MembershipCancelled, VerdictBlocked, ReasonCancelled},
		{MembershipPending, VerdictBlocked, ReasonInactive},
		{MembershipStatus("unknown"), VerdictBlocked, ReasonInactive},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			eval := Evaluate(EvaluationInput{MembershipStatus: tc.status, Now: now, Location: time.UTC})
			require.Equal(t, tc.verdict, eval.Verdict)
			require.Equal(t, tc.reason, eval.Reason)
		})
	}
}
