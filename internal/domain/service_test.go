package domain_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dhanushfitness/managementTool-sub002/internal/domain"
	"github.com/dhanushfitness/managementTool-sub002/internal/persistence/memory"
)

const orgID = "org-1"

type fixture struct {
	store   *memory.Store
	audit   *memory.AuditLog
	service *domain.Service
	now     time.Time
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), audit: memory.NewAuditLog(), now: now}
	f.store.PutOrganization(domain.Organization{ID: orgID, Name: "Downtown", Location: time.UTC})
	f.service = domain.NewService(f.store, f.store, f.store, f.audit,
		domain.WithClock(func() time.Time { return f.now }),
	)
	return f
}

func activeMember(id string) domain.Member {
	return domain.Member{
		OrganizationID:   orgID,
		BranchID:         "branch-1",
		ID:               id,
		Name:             "Asha",
		MembershipStatus: domain.MembershipActive,
	}
}

func strptr(s string) *string { return &s }

func TestCheckInAdmitsAndUpdatesStats(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	f.store.PutMember(activeMember("m-1"))

	result, err := f.service.CheckIn(context.Background(), domain.CheckInRequest{OrganizationID: orgID, MemberID: "m-1"})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeAdmitted, result.Outcome)
	require.Equal(t, domain.VerdictSuccess, result.Record.Status)
	require.Equal(t, domain.MethodManual, result.Record.Method)
	require.Equal(t, 1, result.Member.AttendanceStats.CurrentStreak)
	require.Equal(t, 1, result.Member.AttendanceStats.TotalCheckIns)

	events := f.audit.OfType(domain.AuditCheckIn)
	require.Len(t, events, 1)
	require.Equal(t, result.Record.ID, events[0].AttendanceID)
}

func TestCheckInExpiredPlanWritesDeniedEntry(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 6, 9, 0, 0, 0, time.UTC))
	member := activeMember("m-2")
	end := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	member.CurrentPlan = &domain.Plan{PlanName: "Monthly", EndDate: &end}
	f.store.PutMember(member)

	result, err := f.service.CheckIn(context.Background(), domain.CheckInRequest{OrganizationID: orgID, MemberID: "m-2"})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeDenied, result.Outcome)
	require.Equal(t, domain.VerdictExpired, result.Record.Status)
	require.Equal(t, "Membership has expired", result.Record.BlockedReason)

	stored, err := f.store.FindByID(context.Background(), orgID, "m-2")
	require.NoError(t, err)
	require.Zero(t, stored.AttendanceStats.TotalCheckIns)
	require.Len(t, f.store.AttendanceFor(orgID, "m-2"), 1)
}

func TestCheckInDuplicateReturnsExistingVisit(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	f.store.PutMember(activeMember("m-3"))
	ctx := context.Background()

	first, err := f.service.CheckIn(ctx, domain.CheckInRequest{OrganizationID: orgID, MemberID: "m-3"})
	require.NoError(t, err)

	f.now = f.now.Add(3 * time.Hour)
	second, err := f.service.CheckIn(ctx, domain.CheckInRequest{OrganizationID: orgID, MemberID: "m-3"})
	require.ErrorIs(t, err, domain.ErrDuplicateCheckIn)
	var dup *domain.DuplicateCheckInError
	require.True(t, errors.As(err, &dup))
	require.Equal(t, first.Record.ID, dup.Existing.ID)
	require.Equal(t, domain.OutcomeDuplicate, second.Outcome)
	require.Len(t, f.store.AttendanceFor(orgID, "m-3"), 1)
}

func TestCheckInAfterCheckOutIsAllowed(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	f.store.PutMember(activeMember("m-4"))
	ctx := context.Background()

	first, err := f.service.CheckIn(ctx, domain.CheckInRequest{OrganizationID: orgID, MemberID: "m-4"})
	require.NoError(t, err)
	f.now = f.now.Add(time.Hour)
	_, err = f.service.CheckOut(ctx, domain.CheckOutRequest{OrganizationID: orgID, AttendanceID: first.Record.ID})
	require.NoError(t, err)

	f.now = f.now.Add(6 * time.Hour)
	second, err := f.service.CheckIn(ctx, domain.CheckInRequest{OrganizationID: orgID, MemberID: "m-4"})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeAdmitted, second.Outcome)
	require.Equal(t, 1, second.Member.AttendanceStats.CurrentStreak)
	require.Equal(t, 2, second.Member.AttendanceStats.TotalCheckIns)
}

func TestConcurrentCheckInsAdmitOnce(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	f.store.PutMember(activeMember("m-5"))
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.CheckIn(ctx, domain.CheckInRequest{OrganizationID: orgID, MemberID: "m-5"})
		}(i)
	}
	wg.Wait()

	var admitted, duplicates int
	for _, err := range errs {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, domain.ErrDuplicateCheckIn):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, admitted)
	require.Equal(t, attempts-1, duplicates)

	records := f.store.AttendanceFor(orgID, "m-5")
	require.Len(t, records, 1)
	member, err := f.store.FindByID(ctx, orgID, "m-5")
	require.NoError(t, err)
	require.Equal(t, 1, member.AttendanceStats.TotalCheckIns)
}

func TestCheckInOverrideRequiresActor(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	f.store.PutMember(activeMember("m-6"))

	_, err := f.service.CheckIn(context.Background(), domain.CheckInRequest{
		OrganizationID: orgID, MemberID: "m-6", AllowManualOverride: true,
	})
	require.ErrorIs(t, err, domain.ErrActorRequired)
}

func TestCheckInOverrideAdmitsFrozenMemberAndSkipsDuplicateCheck(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	member := activeMember("m-7")
	member.MembershipStatus = domain.MembershipFrozen
	f.store.PutMember(member)
	ctx := context.Background()
	req := domain.CheckInRequest{OrganizationID: orgID, MemberID: "m-7", AllowManualOverride: true, Actor: strptr("staff-1")}

	first, err := f.service.CheckIn(ctx, req)
	require.NoError(t, err)
	require.True(t, first.Record.Override)
	require.Equal(t, "staff-1", *first.Record.CheckedInBy)

	second, err := f.service.CheckIn(ctx, req)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeAdmitted, second.Outcome)
	require.Len(t, f.store.AttendanceFor(orgID, "m-7"), 2)
}

func TestCheckInResolvesManualDateAndTime(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	f := newFixture(t, time.Date(2024, 1, 3, 6, 0, 0, 0, time.UTC))
	f.store.PutOrganization(domain.Organization{ID: orgID, Location: kolkata})
	f.store.PutMember(activeMember("m-8"))

	result, err := f.service.CheckIn(context.Background(), domain.CheckInRequest{
		OrganizationID: orgID, MemberID: "m-8", CheckInDate: "2024-01-02", CheckInTime: "09:15",
	})
	require.NoError(t, err)
	require.True(t, result.Record.CheckInTime.Equal(time.Date(2024, 1, 2, 9, 15, 0, 0, kolkata)))
}

func TestCheckInRejectsInvalidTime(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 3, 6, 0, 0, 0, time.UTC))
	f.store.PutMember(activeMember("m-9"))

	_, err := f.service.CheckIn(context.Background(), domain.CheckInRequest{
		OrganizationID: orgID, MemberID: "m-9", CheckInTime: "25:00",
	})
	require.ErrorIs(t, err, domain.ErrInvalidTimestamp)
	require.Empty(t, f.store.AttendanceFor(orgID, "m-9"))
}

func TestCheckInUnknownMember(t *testing.T) {
	f := newFixture(t, time.Now())
	_, err := f.service.CheckIn(context.Background(), domain.CheckInRequest{OrganizationID: orgID, MemberID: "missing"})
	require.ErrorIs(t, err, domain.ErrMemberNotFound)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckInSurvivesAuditFailure(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	f.store.PutMember(activeMember("m-10"))
	f.audit.FailWith(errors.New("broker down"))

	result, err := f.service.CheckIn(context.Background(), domain.CheckInRequest{OrganizationID: orgID, MemberID: "m-10"})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeAdmitted, result.Outcome)
}

type prefixHasher struct{}

func (prefixHasher) Digest(organizationID, identifier string) string {
	return organizationID + ":" + identifier
}

func TestFingerprintCheckInDeniedCarriesNote(t *testing.T) {
	store := memory.NewStore()
	audit := memory.NewAuditLog()
	now := time.Date(2024, 1, 6, 9, 0, 0, 0, time.UTC)
	service := domain.NewService(store, store, store, audit,
		domain.WithClock(func() time.Time { return now }),
		domain.WithBiometricHasher(prefixHasher{}),
	)
	member := activeMember("m-11")
	member.MembershipStatus = domain.MembershipFrozen
	store.PutMember(member)
	store.EnrollBiometric(orgID, "m-11", orgID+":finger-42")

	result, err := service.FingerprintCheckIn(context.Background(), domain.FingerprintCheckInRequest{
		OrganizationID: orgID, BiometricID: "finger-42", DeviceID: "door-1",
	})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeDenied, result.Outcome)
	require.Equal(t, domain.MethodBiometric, result.Record.Method)
	require.Equal(t, domain.BiometricDeniedNote, result.Record.Notes)
	require.Nil(t, result.Record.CheckedInBy)

	events := audit.OfType(domain.AuditCheckInBiometric)
	require.Len(t, events, 1)
	require.Equal(t, "door-1", events[0].Details["device_id"])
}

func TestFingerprintCheckInUnknownIdentifier(t *testing.T) {
	f := newFixture(t, time.Now())
	_, err := f.service.FingerprintCheckIn(context.Background(), domain.FingerprintCheckInRequest{
		OrganizationID: orgID, BiometricID: "nobody",
	})
	require.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func TestCheckOutTwiceFails(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	f.store.PutMember(activeMember("m-12"))
	ctx := context.Background()

	result, err := f.service.CheckIn(ctx, domain.CheckInRequest{OrganizationID: orgID, MemberID: "m-12"})
	require.NoError(t, err)

	closed, err := f.service.CheckOut(ctx, domain.CheckOutRequest{OrganizationID: orgID, AttendanceID: result.Record.ID})
	require.NoError(t, err)
	require.NotNil(t, closed.CheckOutTime)

	_, err = f.service.CheckOut(ctx, domain.CheckOutRequest{OrganizationID: orgID, AttendanceID: result.Record.ID})
	require.ErrorIs(t, err, domain.ErrAlreadyClosed)

	_, err = f.service.CheckOut(ctx, domain.CheckOutRequest{OrganizationID: orgID, AttendanceID: "missing"})
	require.ErrorIs(t, err, domain.ErrAttendanceNotFound)
}

func TestUpdateAttendanceRequiresOverride(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	_, err := f.service.UpdateAttendance(context.Background(), domain.UpdateAttendanceRequest{
		OrganizationID: orgID, AttendanceID: "any", Actor: strptr("staff-1"),
	})
	require.ErrorIs(t, err, domain.ErrOverrideRequired)
}

func TestUpdateAttendanceCorrectsVerdict(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 6, 9, 0, 0, 0, time.UTC))
	member := activeMember("m-13")
	member.MembershipStatus = domain.MembershipFrozen
	f.store.PutMember(member)
	ctx := context.Background()

	denied, err := f.service.CheckIn(ctx, domain.CheckInRequest{OrganizationID: orgID, MemberID: "m-13"})
	require.NoError(t, err)
	require.Equal(t, domain.VerdictFrozen, denied.Record.Status)

	success := domain.VerdictSuccess
	updated, err := f.service.UpdateAttendance(ctx, domain.UpdateAttendanceRequest{
		OrganizationID:      orgID,
		AttendanceID:        denied.Record.ID,
		Patch:               domain.AttendancePatch{Status: &success},
		AllowManualOverride: true,
		Actor:               strptr("staff-2"),
	})
	require.NoError(t, err)
	require.Equal(t, domain.VerdictSuccess, updated.Status)
	require.Empty(t, updated.BlockedReason)
	require.True(t, updated.Corrected)
	require.False(t, updated.Override)
	require.Len(t, f.audit.OfType(domain.AuditUpdated), 1)
}

func TestUpdateAttendanceRejectsCheckOutBeforeCheckIn(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	f.store.PutMember(activeMember("m-14"))
	ctx := context.Background()

	result, err := f.service.CheckIn(ctx, domain.CheckInRequest{OrganizationID: orgID, MemberID: "m-14"})
	require.NoError(t, err)

	earlier := result.Record.CheckInTime.Add(-time.Hour)
	_, err = f.service.UpdateAttendance(ctx, domain.UpdateAttendanceRequest{
		OrganizationID:      orgID,
		AttendanceID:        result.Record.ID,
		Patch:               domain.AttendancePatch{CheckOutTime: &earlier},
		AllowManualOverride: true,
		Actor:               strptr("staff-2"),
	})
	require.ErrorIs(t, err, domain.ErrInvalidTimestamp)
}

func openSuccessVisits(records []domain.AttendanceRecord) int {
	n := 0
	for _, r := range records {
		if r.Open() {
			n++
		}
	}
	return n
}

func TestCheckInAfterOverrideVisitIsDuplicate(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	f.store.PutMember(activeMember("m-20"))
	ctx := context.Background()

	bypass, err := f.service.CheckIn(ctx, domain.CheckInRequest{
		OrganizationID: orgID, MemberID: "m-20", AllowManualOverride: true, Actor: strptr("staff-1"),
	})
	require.NoError(t, err)
	require.True(t, bypass.Record.Override)

	f.now = f.now.Add(time.Hour)
	second, err := f.service.CheckIn(ctx, domain.CheckInRequest{OrganizationID: orgID, MemberID: "m-20", Method: domain.MethodQR})
	require.ErrorIs(t, err, domain.ErrDuplicateCheckIn)
	require.Equal(t, domain.OutcomeDuplicate, second.Outcome)
	require.Equal(t, bypass.Record.ID, second.Record.ID)
	require.Equal(t, 1, openSuccessVisits(f.store.AttendanceFor(orgID, "m-20")))
}

func TestCheckInAfterNotesCorrectionIsDuplicate(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	f.store.PutMember(activeMember("m-21"))
	ctx := context.Background()

	first, err := f.service.CheckIn(ctx, domain.CheckInRequest{OrganizationID: orgID, MemberID: "m-21"})
	require.NoError(t, err)

	updated, err := f.service.UpdateAttendance(ctx, domain.UpdateAttendanceRequest{
		OrganizationID:      orgID,
		AttendanceID:        first.Record.ID,
		Patch:               domain.AttendancePatch{Notes: strptr("towel")},
		AllowManualOverride: true,
		Actor:               strptr("staff-2"),
	})
	require.NoError(t, err)
	require.True(t, updated.Corrected)
	require.False(t, updated.Override)

	f.now = f.now.Add(time.Hour)
	_, err = f.service.CheckIn(ctx, domain.CheckInRequest{OrganizationID: orgID, MemberID: "m-21"})
	var dup *domain.DuplicateCheckInError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, first.Record.ID, dup.Existing.ID)
	require.Equal(t, 1, openSuccessVisits(f.store.AttendanceFor(orgID, "m-21")))
}

// flakyLedger fails the first admitted insert.
type flakyLedger struct {
	*memory.Store
	failures int
}

func (l *flakyLedger) Admit(ctx context.Context, record domain.AttendanceRecord, guard *domain.VisitDay, stats func(domain.AttendanceStats) domain.AttendanceStats) (*domain.AttendanceRecord, *domain.Member, error) {
	if l.failures > 0 {
		l.failures--
		return nil, nil, errors.New("transient db error")
	}
	return l.Store.Admit(ctx, record, guard, stats)
}

// statsUnavailable rejects standalone stats updates; admission must not depend on them.
type statsUnavailable struct{ *memory.Store }

func (statsUnavailable) UpdateStats(context.Context, string, string, func(domain.AttendanceStats) domain.AttendanceStats) (*domain.Member, error) {
	return nil, errors.New("transient db error")
}

func TestCheckInRetriesCleanlyAfterFailedAdmit(t *testing.T) {
	store := memory.NewStore()
	store.PutOrganization(domain.Organization{ID: orgID, Location: time.UTC})
	store.PutMember(activeMember("m-22"))
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	ledger := &flakyLedger{Store: store, failures: 1}
	service := domain.NewService(statsUnavailable{store}, ledger, store, memory.NewAuditLog(),
		domain.WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	_, err := service.CheckIn(ctx, domain.CheckInRequest{OrganizationID: orgID, MemberID: "m-22"})
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrDuplicateCheckIn)
	require.Empty(t, store.AttendanceFor(orgID, "m-22"))

	result, err := service.CheckIn(ctx, domain.CheckInRequest{OrganizationID: orgID, MemberID: "m-22"})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeAdmitted, result.Outcome)
	require.Equal(t, 1, result.Member.AttendanceStats.TotalCheckIns)
	require.Len(t, store.AttendanceFor(orgID, "m-22"), 1)

	stored, err := store.FindByID(ctx, orgID, "m-22")
	require.NoError(t, err)
	require.Equal(t, 1, stored.AttendanceStats.TotalCheckIns)
	require.Equal(t, 1, stored.AttendanceStats.CurrentStreak)
}

func TestUpdateAttendanceKeepsCheckInInOrganizationTimezone(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	// 02:00 on the 10th in Kolkata is still the 9th in UTC.
	f := newFixture(t, time.Date(2024, 3, 9, 20, 30, 0, 0, time.UTC))
	f.store.PutOrganization(domain.Organization{ID: orgID, Location: kolkata})
	f.store.PutMember(activeMember("m-23"))
	ctx := context.Background()

	first, err := f.service.CheckIn(ctx, domain.CheckInRequest{OrganizationID: orgID, MemberID: "m-23"})
	require.NoError(t, err)
	require.Equal(t, 10, first.Record.CheckInTime.Day())

	asUTC := first.Record.CheckInTime.UTC()
	updated, err := f.service.UpdateAttendance(ctx, domain.UpdateAttendanceRequest{
		OrganizationID:      orgID,
		AttendanceID:        first.Record.ID,
		Patch:               domain.AttendancePatch{CheckInTime: &asUTC, Notes: strptr("late entry")},
		AllowManualOverride: true,
		Actor:               strptr("staff-2"),
	})
	require.NoError(t, err)
	require.Equal(t, "Asia/Kolkata", updated.CheckInTime.Location().String())
	require.Equal(t, 10, updated.CheckInTime.Day())

	stored := f.store.AttendanceFor(orgID, "m-23")
	require.Len(t, stored, 1)
	require.Equal(t, "Asia/Kolkata", stored[0].CheckInTime.Location().String())
}
