// Package expiry runs the membership expiry sweep.
package expiry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dhanushfitness/managementTool-sub002/internal/calendar"
	"github.com/dhanushfitness/managementTool-sub002/internal/domain"
	"github.com/dhanushfitness/managementTool-sub002/internal/locking"
	"github.com/dhanushfitness/managementTool-sub002/internal/notify"
	"github.com/dhanushfitness/managementTool-sub002/internal/observability"
)

// DefaultThresholds are the days-before-expiry on which a reminder goes out.
var DefaultThresholds = []int{7, 3, 1}

// Notifier delivers a rendered message to a member.
type Notifier interface {
	Send(ctx context.Context, r notify.Recipient, m notify.Message) notify.Delivery
}

// Summary reports the outcome of one sweep run.
type Summary struct {
	// Expired counts members transitioned to expired.
	Expired int
	// Notified counts members for whom at least one channel delivered a notification.
	Notified int
	// Failed counts members whose processing hit an error.
	Failed int
	// Skipped counts members held by another worker.
	Skipped int
}

type outcome struct {
	expired  bool
	notified bool
	failed   bool
	skipped  bool
}

// Option configures the Job.
type Option func(*Job)

// WithClock overrides the time source.
func WithClock(clock domain.Clock) Option {
	return func(j *Job) { j.now = clock }
}

// WithLogger overrides the job logger.
func WithLogger(logger *log.Logger) Option {
	return func(j *Job) { j.logger = logger }
}

// WithWorkers sets the number of members processed in parallel.
func WithWorkers(n int) Option {
	return func(j *Job) {
		if n > 0 {
			j.workers = n
		}
	}
}

// WithLocker sets the per-member lock shared with other sweep instances.
func WithLocker(l locking.Locker) Option {
	return func(j *Job) { j.locker = l }
}

// WithAuditSink records expiry transitions and reminders.
func WithAuditSink(sink domain.AuditSink) Option {
	return func(j *Job) { j.audit = sink }
}

// WithOrganizations resolves the timezone of each member's organization.
func WithOrganizations(orgs domain.OrganizationDirectory) Option {
	return func(j *Job) { j.orgs = orgs }
}

// WithDefaultLocation sets the timezone for organizations without one.
func WithDefaultLocation(loc *time.Location) Option {
	return func(j *Job) { j.defaultLoc = loc }
}

// WithThresholds overrides the reminder days.
func WithThresholds(days ...int) Option {
	return func(j *Job) { j.thresholds = days }
}

// Job transitions elapsed memberships to expired and sends reminders ahead of expiry.
type Job struct {
	members    domain.MemberRepository
	notifier   Notifier
	orgs       domain.OrganizationDirectory
	audit      domain.AuditSink
	locker     locking.Locker
	now        domain.Clock
	defaultLoc *time.Location
	thresholds []int
	workers    int
	logger     *log.Logger
}

// NewJob constructs a Job.
func NewJob(members domain.MemberRepository, notifier Notifier, opts ...Option) *Job {
	j := &Job{
		members:    members,
		notifier:   notifier,
		locker:     locking.NewLocalLocker(),
		now:        time.Now,
		defaultLoc: time.UTC,
		thresholds: DefaultThresholds,
		workers:    4,
		logger:     log.New(log.Writer(), "[sweep] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run performs one sweep. Per-member failures are logged and counted; the run only returns an
// error when the member population cannot be loaded or ctx is cancelled, in which case the summary
// covers the members finished so far.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	started := time.Now()
	candidates, err := j.members.ListActiveWithPlanEnd(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list members: %w", err)
	}
	now := j.now()

	var (
		mu      sync.Mutex
		summary Summary
		wg      sync.WaitGroup
		queue   = make(chan domain.Member)
		zones   = newZoneCache(j.orgs, j.defaultLoc)
	)

	for i := 0; i < j.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for member := range queue {
				res := j.process(ctx, member, now, zones)
				mu.Lock()
				summary.add(res)
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, member := range candidates {
		select {
		case <-ctx.Done():
			break dispatch
		case queue <- member:
		}
	}
	close(queue)
	wg.Wait()

	observability.RecordSweep(summary.Expired, summary.Notified, summary.Failed, time.Since(started), time.Now())
	j.logger.Printf("sweep complete: candidates=%d expired=%d notified=%d failed=%d skipped=%d",
		len(candidates), summary.Expired, summary.Notified, summary.Failed, summary.Skipped)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (s *Summary) add(o outcome) {
	if o.expired {
		s.Expired++
	}
	if o.notified {
		s.Notified++
	}
	if o.failed {
		s.Failed++
	}
	if o.skipped {
		s.Skipped++
	}
}

func (j *Job) process(ctx context.Context, candidate domain.Member, now time.Time, zones *zoneCache) outcome {
	if ctx.Err() != nil {
		return outcome{}
	}

	release, err := j.locker.Acquire(ctx, candidate.OrganizationID+"/"+candidate.ID)
	if errors.Is(err, locking.ErrNotAcquired) {
		return outcome{skipped: true}
	}
	if err != nil {
		j.logger.Printf("lock member %s: %v", candidate.ID, err)
		return outcome{failed: true}
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			j.logger.Printf("unlock member %s: %v", candidate.ID, err)
		}
	}()

	// Re-read under the lock so a concurrent renewal or an earlier worker is observed.
	member, err := j.members.FindByID(ctx, candidate.OrganizationID, candidate.ID)
	if err != nil {
		j.logger.Printf("reload member %s: %v", candidate.ID, err)
		return outcome{failed: true}
	}
	if member == nil || member.MembershipStatus != domain.MembershipActive || member.PlanEndDate() == nil {
		return outcome{}
	}

	loc, err := zones.location(ctx, member.OrganizationID)
	if err != nil {
		j.logger.Printf("resolve timezone for organization %s: %v", member.OrganizationID, err)
		return outcome{failed: true}
	}

	today := calendar.StartOfDay(now, loc)
	endDay := calendar.StartOfDay(*member.PlanEndDate(), loc)

	if endDay.Before(today) {
		return j.expire(ctx, *member, today, now)
	}

	days := calendar.DaysBetween(today, endDay, loc)
	if !j.isThreshold(days) {
		return outcome{}
	}
	if last := member.CurrentPlan.LastExpiryNotification; last != nil && calendar.SameDay(*last, today, loc) {
		return outcome{}
	}
	return j.remind(ctx, *member, days, today, now)
}

func (j *Job) expire(ctx context.Context, member domain.Member, today, now time.Time) outcome {
	member.MembershipStatus = domain.MembershipExpired
	if err := j.members.SaveLifecycle(ctx, member); err != nil {
		j.logger.Printf("expire member %s: %v", member.ID, err)
		return outcome{failed: true}
	}
	j.emit(ctx, member, domain.AuditExpired, 0, today, now)

	delivered, err := j.notify(ctx, member, 0, today)
	if err != nil {
		j.logger.Printf("expired notice for member %s: %v", member.ID, err)
		return outcome{expired: true, notified: delivered, failed: true}
	}
	return outcome{expired: true, notified: delivered}
}

func (j *Job) remind(ctx context.Context, member domain.Member, days int, today, now time.Time) outcome {
	delivered, err := j.notify(ctx, member, days, today)
	if err != nil {
		j.logger.Printf("reminder for member %s (%d days): %v", member.ID, days, err)
		return outcome{notified: delivered, failed: true}
	}
	j.emit(ctx, member, domain.AuditExpiryReminder, days, today, now)
	return outcome{notified: delivered}
}

// notify sends the message and stamps LastExpiryNotification unless every reachable channel failed.
// With no reachable channel the day is still stamped so the reminder is not retried all day.
func (j *Job) notify(ctx context.Context, member domain.Member, days int, today time.Time) (bool, error) {
	planName := ""
	if member.CurrentPlan != nil {
		planName = member.CurrentPlan.PlanName
	}
	msg := notify.Compose(member.Name, planName, days, member.PlanEndDate().In(today.Location()))

	delivery := notify.Delivery{}
	if j.notifier != nil {
		delivery = j.notifier.Send(ctx, notify.Recipient{
			OrganizationID: member.OrganizationID,
			MemberID:       member.ID,
			Name:           member.Name,
			Email:          member.Email,
			Phone:          member.Phone,
			PushToken:      member.PushToken,
		}, msg)
	}
	if delivery.Attempted > 0 && delivery.Delivered == 0 {
		return false, delivery.Err
	}
	if delivery.Err != nil {
		j.logger.Printf("partial delivery for member %s: %v", member.ID, delivery.Err)
	}

	stamp := today
	member.CurrentPlan.LastExpiryNotification = &stamp
	if err := j.members.SaveLifecycle(ctx, member); err != nil {
		return delivery.Delivered > 0, fmt.Errorf("record notification: %w", err)
	}
	return delivery.Delivered > 0, nil
}

func (j *Job) emit(ctx context.Context, member domain.Member, eventType string, days int, today, now time.Time) {
	if j.audit == nil {
		return
	}
	event := domain.AuditEvent{
		ID:             uuid.NewString(),
		Type:           eventType,
		OrganizationID: member.OrganizationID,
		BranchID:       member.BranchID,
		MemberID:       member.ID,
		Details:        map[string]string{"days_until_expiry": strconv.Itoa(days)},
		OccurredAt:     now.UTC(),
	}
	if end := member.PlanEndDate(); end != nil {
		event.Details["plan_end_date"] = end.In(today.Location()).Format(calendar.DateLayout)
	}
	if err := j.audit.Record(ctx, event); err != nil {
		observability.RecordAuditFailure(eventType)
		j.logger.Printf("audit %s for member %s: %v", eventType, member.ID, err)
	}
}

func (j *Job) isThreshold(days int) bool {
	for _, t := range j.thresholds {
		if days == t {
			return true
		}
	}
	return false
}

type zoneCache struct {
	mu       sync.Mutex
	orgs     domain.OrganizationDirectory
	fallback *time.Location
	zones    map[string]*time.Location
}

func newZoneCache(orgs domain.OrganizationDirectory, fallback *time.Location) *zoneCache {
	return &zoneCache{orgs: orgs, fallback: fallback, zones: make(map[string]*time.Location)}
}

func (z *zoneCache) location(ctx context.Context, organizationID string) (*time.Location, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if loc, ok := z.zones[organizationID]; ok {
		return loc, nil
	}
	loc := z.fallback
	if z.orgs != nil {
		org, err := z.orgs.Organization(ctx, organizationID)
		if err != nil {
			return nil, err
		}
		if org != nil && org.Location != nil {
			loc = org.Location
		}
	}
	z.zones[organizationID] = loc
	return loc, nil
}
