// Package domain defines the attendance and membership lifecycle rules.
package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dhanushfitness/managementTool-sub002/internal/calendar"
	"github.com/dhanushfitness/managementTool-sub002/internal/observability"
)

// BiometricDeniedNote is attached to denied unattended fingerprint check-ins.
const BiometricDeniedNote = "Automated biometric check-in denied; no staff member present"

const manualCorrectionReason = "Status corrected manually"

// Outcome tags the result of a check-in request.
type Outcome string

const (
	OutcomeAdmitted  Outcome = "admitted"
	OutcomeDenied    Outcome = "denied"
	OutcomeDuplicate Outcome = "duplicate"
)

// BiometricHasher turns a raw device identifier into the digest stored on the member.
type BiometricHasher interface {
	Digest(organizationID, identifier string) string
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(s *Service) { s.now = clock }
}

// WithLogger overrides the logger used for best-effort failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithDefaultLocation sets the timezone for organizations without one.
func WithDefaultLocation(loc *time.Location) Option {
	return func(s *Service) { s.defaultLoc = loc }
}

// WithBiometricHasher sets the digest applied to fingerprint identifiers before lookup.
func WithBiometricHasher(h BiometricHasher) Option {
	return func(s *Service) { s.hasher = h }
}

// Service orchestrates check-in, check-out and manual corrections.
type Service struct {
	members    MemberRepository
	ledger     AttendanceRepository
	orgs       OrganizationDirectory
	audit      AuditSink
	hasher     BiometricHasher
	now        Clock
	defaultLoc *time.Location
	logger     *log.Logger
}

// NewService constructs a Service.
func NewService(members MemberRepository, ledger AttendanceRepository, orgs OrganizationDirectory, audit AuditSink, opts ...Option) *Service {
	s := &Service{
		members:    members,
		ledger:     ledger,
		orgs:       orgs,
		audit:      audit,
		now:        time.Now,
		defaultLoc: time.UTC,
		logger:     log.New(log.Writer(), "[attendance] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckInRequest is a staff, kiosk or app initiated check-in.
type CheckInRequest struct {
	OrganizationID string
	BranchID       string
	MemberID       string
	Method         CheckInMethod
	// CheckInDate is an optional YYYY-MM-DD date; CheckInTime an optional HH:MM clock.
	CheckInDate         string
	CheckInTime         string
	AllowManualOverride bool
	Actor               *string
	Notes               string
}

// FingerprintCheckInRequest is an unattended device check-in.
type FingerprintCheckInRequest struct {
	OrganizationID string
	BranchID       string
	BiometricID    string
	DeviceID       string
}

// CheckInResult is returned for admitted, denied and duplicate attempts.
type CheckInResult struct {
	Outcome Outcome
	Verdict Verdict
	Record  AttendanceRecord
	Member  *MemberView
	Message string
}

type checkInParams struct {
	branchID   string
	method     CheckInMethod
	at         time.Time
	now        time.Time
	override   bool
	actor      *string
	notes      string
	auditType  string
	deniedNote string
	details    map[string]string
}

// CheckIn admits or denies a member identified by ID.
func (s *Service) CheckIn(ctx context.Context, req CheckInRequest) (*CheckInResult, error) {
	if strings.TrimSpace(req.OrganizationID) == "" || strings.TrimSpace(req.MemberID) == "" {
		return nil, fmt.Errorf("%w: organization and member are required", ErrInvalidRequest)
	}
	method := req.Method
	if method == "" {
		method = MethodManual
	}
	if !method.Valid() {
		return nil, fmt.Errorf("%w: unknown check-in method %q", ErrInvalidRequest, req.Method)
	}
	if req.AllowManualOverride && (req.Actor == nil || strings.TrimSpace(*req.Actor) == "") {
		return nil, ErrActorRequired
	}

	org, err := s.organization(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}
	member, err := s.members.FindByID(ctx, req.OrganizationID, req.MemberID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrMemberNotFound
	}

	now := s.now()
	at, err := calendar.Resolve(req.CheckInDate, req.CheckInTime, now, org.Location)
	if err != nil {
		return nil, err
	}
	at = at.In(org.Location)

	branchID := req.BranchID
	if branchID == "" {
		branchID = member.BranchID
	}

	return s.checkIn(ctx, org, *member, checkInParams{
		branchID:  branchID,
		method:    method,
		at:        at,
		now:       now,
		override:  req.AllowManualOverride,
		actor:     req.Actor,
		notes:     req.Notes,
		auditType: AuditCheckIn,
	})
}

// FingerprintCheckIn admits or denies a member identified by a biometric identifier. Overrides are
// never honoured and denials are tagged with BiometricDeniedNote.
func (s *Service) FingerprintCheckIn(ctx context.Context, req FingerprintCheckInRequest) (*CheckInResult, error) {
	if strings.TrimSpace(req.OrganizationID) == "" || strings.TrimSpace(req.BiometricID) == "" {
		return nil, fmt.Errorf("%w: organization and biometric id are required", ErrInvalidRequest)
	}

	org, err := s.organization(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}

	digest := req.BiometricID
	if s.hasher != nil {
		digest = s.hasher.Digest(req.OrganizationID, req.BiometricID)
	}
	member, err := s.members.FindByBiometric(ctx, req.OrganizationID, digest)
	if err != nil {
		return nil, err
	}
	if member == nil {
		observability.RecordBiometricMiss()
		return nil, ErrMemberNotFound
	}

	branchID := req.BranchID
	if branchID == "" {
		branchID = member.BranchID
	}
	now := s.now()

	var details map[string]string
	if req.DeviceID != "" {
		details = map[string]string{"device_id": req.DeviceID}
	}

	return s.checkIn(ctx, org, *member, checkInParams{
		branchID:   branchID,
		method:     MethodBiometric,
		at:         now.In(org.Location),
		now:        now,
		auditType:  AuditCheckInBiometric,
		deniedNote: BiometricDeniedNote,
		details:    details,
	})
}

func (s *Service) checkIn(ctx context.Context, org *Organization, member Member, p checkInParams) (*CheckInResult, error) {
	day := VisitDay{
		Start: calendar.StartOfDay(p.at, org.Location),
		End:   calendar.EndOfDay(p.at, org.Location),
	}

	if !p.override {
		existing, err := s.ledger.FindOpenVisit(ctx, org.ID, member.ID, day)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return s.duplicate(member, *existing)
		}
	}

	eval := Evaluate(EvaluationInput{
		MembershipStatus:    member.MembershipStatus,
		PlanEndDate:         member.PlanEndDate(),
		Now:                 p.now,
		AllowManualOverride: p.override,
		Location:            org.Location,
	})

	record := AttendanceRecord{
		ID:             uuid.NewString(),
		OrganizationID: org.ID,
		BranchID:       p.branchID,
		MemberID:       member.ID,
		CheckInTime:    p.at,
		Method:         p.method,
		Status:         eval.Verdict,
		BlockedReason:  eval.Reason,
		Notes:          p.notes,
		CheckedInBy:    p.actor,
		Override:       p.override,
		CreatedAt:      p.now.UTC(),
		UpdatedAt:      p.now.UTC(),
	}
	if !eval.Admitted() && p.deniedNote != "" {
		record.Notes = p.deniedNote
	}

	var guard *VisitDay
	if !p.override && eval.Admitted() {
		guard = &day
	}

	var (
		saved   *AttendanceRecord
		updated *Member
		err     error
	)
	if eval.Admitted() {
		saved, updated, err = s.ledger.Admit(ctx, record, guard, func(prev AttendanceStats) AttendanceStats {
			return UpdateStats(prev, p.at, org.Location)
		})
	} else {
		saved, err = s.ledger.Record(ctx, record, guard)
	}
	if err != nil {
		var dup *DuplicateCheckInError
		if errors.As(err, &dup) {
			return s.duplicate(member, dup.Existing)
		}
		return nil, fmt.Errorf("record attendance: %w", err)
	}
	if updated != nil {
		member = *updated
	}

	details := map[string]string{"method": string(p.method)}
	for k, v := range p.details {
		details[k] = v
	}
	s.emit(ctx, AuditEvent{
		Type:           p.auditType,
		OrganizationID: org.ID,
		BranchID:       saved.BranchID,
		MemberID:       member.ID,
		AttendanceID:   saved.ID,
		Actor:          p.actor,
		Verdict:        saved.Status,
		Reason:         saved.BlockedReason,
		Override:       p.override,
		Details:        details,
		OccurredAt:     p.now.UTC(),
	})
	observability.RecordCheckIn(string(p.method), string(saved.Status))

	view := member.View()
	result := &CheckInResult{
		Outcome: OutcomeAdmitted,
		Verdict: saved.Status,
		Record:  *saved,
		Member:  &view,
		Message: "Check-in successful",
	}
	if !eval.Admitted() {
		result.Outcome = OutcomeDenied
		result.Message = eval.Reason
	}
	return result, nil
}

func (s *Service) duplicate(member Member, existing AttendanceRecord) (*CheckInResult, error) {
	observability.RecordDuplicateCheckIn()
	view := member.View()
	return &CheckInResult{
		Outcome: OutcomeDuplicate,
		Verdict: existing.Status,
		Record:  existing,
		Member:  &view,
		Message: "Member already checked in today",
	}, &DuplicateCheckInError{Existing: existing}
}

// CheckOutRequest closes an open visit.
type CheckOutRequest struct {
	OrganizationID string
	AttendanceID   string
	Actor          *string
}

// CheckOut sets the check-out time of a visit. Statistics are not touched.
func (s *Service) CheckOut(ctx context.Context, req CheckOutRequest) (*AttendanceRecord, error) {
	if strings.TrimSpace(req.OrganizationID) == "" || strings.TrimSpace(req.AttendanceID) == "" {
		return nil, fmt.Errorf("%w: organization and attendance id are required", ErrInvalidRequest)
	}

	existing, err := s.ledger.Get(ctx, req.OrganizationID, req.AttendanceID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrAttendanceNotFound
	}
	if existing.CheckOutTime != nil {
		return nil, ErrAlreadyClosed
	}

	now := s.now()
	closed, err := s.ledger.Close(ctx, req.OrganizationID, req.AttendanceID, now)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, AuditEvent{
		Type:           AuditCheckOut,
		OrganizationID: closed.OrganizationID,
		BranchID:       closed.BranchID,
		MemberID:       closed.MemberID,
		AttendanceID:   closed.ID,
		Actor:          req.Actor,
		Verdict:        closed.Status,
		OccurredAt:     now.UTC(),
	})
	return closed, nil
}

// AttendancePatch lists the fields a manual correction may overwrite.
type AttendancePatch struct {
	CheckInTime   *time.Time
	CheckOutTime  *time.Time
	Status        *Verdict
	BlockedReason *string
	Notes         *string
}

// UpdateAttendanceRequest is a staff correction of an existing ledger entry.
type UpdateAttendanceRequest struct {
	OrganizationID      string
	AttendanceID        string
	Patch               AttendancePatch
	AllowManualOverride bool
	Actor               *string
}

// UpdateAttendance overwrites times, verdict and notes after the fact. It bypasses the duplicate
// and admission checks, so the caller must pass the override flag and identify itself.
func (s *Service) UpdateAttendance(ctx context.Context, req UpdateAttendanceRequest) (*AttendanceRecord, error) {
	if !req.AllowManualOverride {
		return nil, ErrOverrideRequired
	}
	if req.Actor == nil || strings.TrimSpace(*req.Actor) == "" {
		return nil, ErrActorRequired
	}

	record, err := s.ledger.Get(ctx, req.OrganizationID, req.AttendanceID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrAttendanceNotFound
	}

	changed := make(map[string]string)
	patch := req.Patch
	if patch.CheckInTime != nil {
		record.CheckInTime = *patch.CheckInTime
		changed["check_in_time"] = patch.CheckInTime.UTC().Format(time.RFC3339)
	}
	if patch.CheckOutTime != nil {
		at := *patch.CheckOutTime
		record.CheckOutTime = &at
		changed["check_out_time"] = at.UTC().Format(time.RFC3339)
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, *patch.Status)
		}
		record.Status = *patch.Status
		changed["status"] = string(*patch.Status)
	}
	if patch.BlockedReason != nil {
		record.BlockedReason = *patch.BlockedReason
	}
	if patch.Notes != nil {
		record.Notes = *patch.Notes
		changed["notes"] = "updated"
	}
	if record.CheckOutTime != nil && record.CheckOutTime.Before(record.CheckInTime) {
		return nil, fmt.Errorf("%w: check-out before check-in", ErrInvalidTimestamp)
	}

	if record.Status == VerdictSuccess {
		record.BlockedReason = ""
	} else if strings.TrimSpace(record.BlockedReason) == "" {
		record.BlockedReason = manualCorrectionReason
	}
	org, err := s.organization(ctx, record.OrganizationID)
	if err != nil {
		return nil, err
	}
	record.CheckInTime = record.CheckInTime.In(org.Location)
	if record.CheckOutTime != nil {
		at := record.CheckOutTime.In(org.Location)
		record.CheckOutTime = &at
	}
	now := s.now()
	record.Corrected = true
	record.UpdatedAt = now.UTC()

	if err := s.ledger.Save(ctx, *record); err != nil {
		return nil, fmt.Errorf("save attendance: %w", err)
	}

	s.emit(ctx, AuditEvent{
		Type:           AuditUpdated,
		OrganizationID: record.OrganizationID,
		BranchID:       record.BranchID,
		MemberID:       record.MemberID,
		AttendanceID:   record.ID,
		Actor:          req.Actor,
		Verdict:        record.Status,
		Reason:         record.BlockedReason,
		Override:       true,
		Details:        changed,
		OccurredAt:     now.UTC(),
	})
	return record, nil
}

func (s *Service) organization(ctx context.Context, organizationID string) (*Organization, error) {
	org := &Organization{ID: organizationID, Location: s.defaultLoc}
	if s.orgs == nil {
		return org, nil
	}
	found, err := s.orgs.Organization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return org, nil
	}
	if found.Location == nil {
		found.Location = s.defaultLoc
	}
	return found, nil
}

// emit records an audit event. Failures are logged and never undo the state change.
func (s *Service) emit(ctx context.Context, event AuditEvent) {
	if s.audit == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if err := s.audit.Record(ctx, event); err != nil {
		observability.RecordAuditFailure(event.Type)
		s.logger.Printf("audit emit failed (type=%s, attendance=%s): %v", event.Type, event.AttendanceID, err)
	}
}
