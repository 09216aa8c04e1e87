// Package memory provides an in-process store for local development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dhanushfitness/managementTool-sub002/internal/domain"
)

// Store implements the member, attendance and organization ports in memory.
type Store struct {
	mu         sync.RWMutex
	members    map[string]domain.Member
	biometrics map[string]string
	attendance map[string]domain.AttendanceRecord
	orgs       map[string]domain.Organization
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		members:    make(map[string]domain.Member),
		biometrics: make(map[string]string),
		attendance: make(map[string]domain.AttendanceRecord),
		orgs:       make(map[string]domain.Organization),
	}
}

func memberKey(organizationID, memberID string) string {
	return organizationID + "/" + memberID
}

// PutMember inserts or replaces a member.
func (s *Store) PutMember(member domain.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[memberKey(member.OrganizationID, member.ID)] = cloneMember(member)
}

// EnrollBiometric associates a biometric digest with a member.
func (s *Store) EnrollBiometric(organizationID, memberID, digest string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.biometrics[memberKey(organizationID, digest)] = memberID
}

// PutOrganization inserts or replaces an organization.
func (s *Store) PutOrganization(org domain.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[org.ID] = org
}

// FindByID implements domain.MemberRepository.
func (s *Store) FindByID(ctx context.Context, organizationID, memberID string) (*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	member, ok := s.members[memberKey(organizationID, memberID)]
	if !ok {
		return nil, nil
	}
	out := cloneMember(member)
	return &out, nil
}

// FindByBiometric implements domain.MemberRepository.
func (s *Store) FindByBiometric(ctx context.Context, organizationID, digest string) (*domain.Member, error) {
	s.mu.RLock()
	memberID, ok := s.biometrics[memberKey(organizationID, digest)]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.FindByID(ctx, organizationID, memberID)
}

// ListActiveWithPlanEnd implements domain.MemberRepository.
func (s *Store) ListActiveWithPlanEnd(ctx context.Context) ([]domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Member
	for _, member := range s.members {
		if member.MembershipStatus != domain.MembershipActive || member.PlanEndDate() == nil {
			continue
		}
		out = append(out, cloneMember(member))
	}
	sort.Slice(out, func(i, j int) bool {
		return memberKey(out[i].OrganizationID, out[i].ID) < memberKey(out[j].OrganizationID, out[j].ID)
	})
	return out, nil
}

// UpdateStats implements domain.MemberRepository.
func (s *Store) UpdateStats(ctx context.Context, organizationID, memberID string, fn func(domain.AttendanceStats) domain.AttendanceStats) (*domain.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey(organizationID, memberID)
	member, ok := s.members[key]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	member.AttendanceStats = fn(cloneStats(member.AttendanceStats))
	member.UpdatedAt = time.Now().UTC()
	s.members[key] = member
	out := cloneMember(member)
	return &out, nil
}

// SaveLifecycle implements domain.MemberRepository.
func (s *Store) SaveLifecycle(ctx context.Context, member domain.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey(member.OrganizationID, member.ID)
	stored, ok := s.members[key]
	if !ok {
		return domain.ErrMemberNotFound
	}
	stored.MembershipStatus = member.MembershipStatus
	if stored.CurrentPlan != nil && member.CurrentPlan != nil {
		stored.CurrentPlan.LastExpiryNotification = cloneTime(member.CurrentPlan.LastExpiryNotification)
	}
	stored.UpdatedAt = time.Now().UTC()
	s.members[key] = stored
	return nil
}

// FindOpenVisit implements domain.AttendanceRepository.
func (s *Store) FindOpenVisit(ctx context.Context, organizationID, memberID string, day domain.VisitDay) (*domain.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openVisitLocked(organizationID, memberID, day), nil
}

func (s *Store) openVisitLocked(organizationID, memberID string, day domain.VisitDay) *domain.AttendanceRecord {
	var found *domain.AttendanceRecord
	for _, record := range s.attendance {
		if record.OrganizationID != organizationID || record.MemberID != memberID {
			continue
		}
		if !record.Open() {
			continue
		}
		if record.CheckInTime.Before(day.Start) || record.CheckInTime.After(day.End) {
			continue
		}
		if found == nil || record.CheckInTime.Before(found.CheckInTime) {
			r := cloneRecord(record)
			found = &r
		}
	}
	return found
}

// Record implements domain.AttendanceRepository. The guard check and insert share the store lock.
func (s *Store) Record(ctx context.Context, record domain.AttendanceRecord, guard *domain.VisitDay) (*domain.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guardLocked(record, guard); err != nil {
		return nil, err
	}
	return s.insertLocked(record), nil
}

// Admit implements domain.AttendanceRepository. The guard check, insert and stats update share
// the store lock, and a missing member leaves the ledger untouched.
func (s *Store) Admit(ctx context.Context, record domain.AttendanceRecord, guard *domain.VisitDay, stats func(domain.AttendanceStats) domain.AttendanceStats) (*domain.AttendanceRecord, *domain.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guardLocked(record, guard); err != nil {
		return nil, nil, err
	}
	key := memberKey(record.OrganizationID, record.MemberID)
	member, ok := s.members[key]
	if !ok {
		return nil, nil, domain.ErrMemberNotFound
	}
	saved := s.insertLocked(record)
	member.AttendanceStats = stats(cloneStats(member.AttendanceStats))
	member.UpdatedAt = time.Now().UTC()
	s.members[key] = member
	out := cloneMember(member)
	return saved, &out, nil
}

func (s *Store) guardLocked(record domain.AttendanceRecord, guard *domain.VisitDay) error {
	if guard == nil {
		return nil
	}
	if existing := s.openVisitLocked(record.OrganizationID, record.MemberID, *guard); existing != nil {
		return &domain.DuplicateCheckInError{Existing: *existing}
	}
	return nil
}

func (s *Store) insertLocked(record domain.AttendanceRecord) *domain.AttendanceRecord {
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
	s.attendance[record.ID] = cloneRecord(record)
	out := cloneRecord(record)
	return &out
}

// Get implements domain.AttendanceRepository.
func (s *Store) Get(ctx context.Context, organizationID, attendanceID string) (*domain.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.attendance[attendanceID]
	if !ok || record.OrganizationID != organizationID {
		return nil, nil
	}
	out := cloneRecord(record)
	return &out, nil
}

// Close implements domain.AttendanceRepository.
func (s *Store) Close(ctx context.Context, organizationID, attendanceID string, at time.Time) (*domain.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.attendance[attendanceID]
	if !ok || record.OrganizationID != organizationID {
		return nil, domain.ErrAttendanceNotFound
	}
	if record.CheckOutTime != nil {
		return nil, domain.ErrAlreadyClosed
	}
	closed := at
	record.CheckOutTime = &closed
	record.UpdatedAt = time.Now().UTC()
	s.attendance[attendanceID] = record
	out := cloneRecord(record)
	return &out, nil
}

// Save implements domain.AttendanceRepository.
func (s *Store) Save(ctx context.Context, record domain.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.attendance[record.ID]
	if !ok || stored.OrganizationID != record.OrganizationID {
		return domain.ErrAttendanceNotFound
	}
	s.attendance[record.ID] = cloneRecord(record)
	return nil
}

// AttendanceFor returns every ledger entry of a member ordered by check-in time.
func (s *Store) AttendanceFor(organizationID, memberID string) []domain.AttendanceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AttendanceRecord
	for _, record := range s.attendance {
		if record.OrganizationID == organizationID && record.MemberID == memberID {
			out = append(out, cloneRecord(record))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckInTime.Before(out[j].CheckInTime) })
	return out
}

// Organization implements domain.OrganizationDirectory.
func (s *Store) Organization(ctx context.Context, organizationID string) (*domain.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[organizationID]
	if !ok {
		return nil, nil
	}
	return &org, nil
}

func cloneMember(m domain.Member) domain.Member {
	out := m
	out.AttendanceStats = cloneStats(m.AttendanceStats)
	if m.CurrentPlan != nil {
		plan := *m.CurrentPlan
		plan.StartDate = cloneTime(plan.StartDate)
		plan.EndDate = cloneTime(plan.EndDate)
		plan.LastExpiryNotification = cloneTime(plan.LastExpiryNotification)
		if plan.Sessions != nil {
			sessions := *plan.Sessions
			plan.Sessions = &sessions
		}
		out.CurrentPlan = &plan
	}
	return out
}

func cloneStats(s domain.AttendanceStats) domain.AttendanceStats {
	s.LastCheckIn = cloneTime(s.LastCheckIn)
	return s
}

func cloneRecord(r domain.AttendanceRecord) domain.AttendanceRecord {
	r.CheckOutTime = cloneTime(r.CheckOutTime)
	if r.CheckedInBy != nil {
		actor := *r.CheckedInBy
		r.CheckedInBy = &actor
	}
	return r
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
