package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dhanushfitness/managementTool-sub002/internal/domain"
)

const memberColumns = `organization_id, member_id, branch_id, name, email, phone, push_token, membership_status,
        plan_id, plan_name, plan_start_date, plan_end_date, sessions_total, sessions_used, sessions_remaining,
        last_expiry_notification, total_check_ins, last_check_in, current_streak, longest_streak, updated_at`

// MemberRepository persists the member fields owned by the attendance engine.
type MemberRepository struct {
	pool *pgxpool.Pool
}

// NewMemberRepository constructs a MemberRepository.
func NewMemberRepository(pool *pgxpool.Pool) *MemberRepository {
	return &MemberRepository{pool: pool}
}

// FindByID implements domain.MemberRepository.
func (r *MemberRepository) FindByID(ctx context.Context, organizationID, memberID string) (*domain.Member, error) {
	var member *domain.Member
	err := inTenantTx(ctx, r.pool, organizationID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE organization_id=$1 AND member_id=$2`, organizationID, memberID)
		m, err := scanMember(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		member = m
		return err
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// FindByBiometric implements domain.MemberRepository.
func (r *MemberRepository) FindByBiometric(ctx context.Context, organizationID, digest string) (*domain.Member, error) {
	var member *domain.Member
	err := inTenantTx(ctx, r.pool, organizationID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE organization_id=$1 AND biometric_digest=$2`, organizationID, digest)
		m, err := scanMember(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		member = m
		return err
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// ListActiveWithPlanEnd implements domain.MemberRepository. It spans every organization.
func (r *MemberRepository) ListActiveWithPlanEnd(ctx context.Context) ([]domain.Member, error) {
	ctx, span := tracer().Start(ctx, "members.list_active_with_plan_end")
	defer span.End()

	rows, err := r.pool.Query(ctx, `SELECT `+memberColumns+` FROM members
        WHERE membership_status = 'active' AND plan_end_date IS NOT NULL
        ORDER BY organization_id, member_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("members.count", len(out)))
	return out, nil
}

// UpdateStats implements domain.MemberRepository with a row lock held across fn.
func (r *MemberRepository) UpdateStats(ctx context.Context, organizationID, memberID string, fn func(domain.AttendanceStats) domain.AttendanceStats) (*domain.Member, error) {
	ctx, span := tracer().Start(ctx, "members.update_stats", trace.WithAttributes(
		attribute.String("organization.id", organizationID),
		attribute.String("member.id", memberID),
	))
	defer span.End()

	var member *domain.Member
	err := inTenantTx(ctx, r.pool, organizationID, func(tx pgx.Tx) error {
		m, err := updateStats(ctx, tx, organizationID, memberID, fn)
		member = m
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return member, nil
}

// updateStats locks the member row and applies fn within tx.
func updateStats(ctx context.Context, tx pgx.Tx, organizationID, memberID string, fn func(domain.AttendanceStats) domain.AttendanceStats) (*domain.Member, error) {
	row := tx.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE organization_id=$1 AND member_id=$2 FOR UPDATE`, organizationID, memberID)
	m, err := scanMember(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}

	m.AttendanceStats = fn(m.AttendanceStats)
	m.UpdatedAt = time.Now().UTC()
	stats := m.AttendanceStats
	if _, err := tx.Exec(ctx, `UPDATE members
        SET total_check_ins=$3, last_check_in=$4, current_streak=$5, longest_streak=$6, updated_at=$7
        WHERE organization_id=$1 AND member_id=$2`,
		organizationID, memberID, stats.TotalCheckIns, stats.LastCheckIn, stats.CurrentStreak, stats.LongestStreak, m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return m, nil
}

// SaveLifecycle implements domain.MemberRepository.
func (r *MemberRepository) SaveLifecycle(ctx context.Context, member domain.Member) error {
	var notified *time.Time
	if member.CurrentPlan != nil {
		notified = member.CurrentPlan.LastExpiryNotification
	}
	return inTenantTx(ctx, r.pool, member.OrganizationID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE members
            SET membership_status=$3, last_expiry_notification=$4, updated_at=NOW()
            WHERE organization_id=$1 AND member_id=$2`,
			member.OrganizationID, member.ID, string(member.MembershipStatus), notified,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrMemberNotFound
		}
		return nil
	})
}

// MemberSeed is the enrollment data written by Upsert.
type MemberSeed struct {
	Member          domain.Member
	BiometricDigest string
}

// Upsert inserts or replaces a member. Enrollment belongs to another flow; this exists for
// fixtures and local tooling.
func (r *MemberRepository) Upsert(ctx context.Context, seed MemberSeed) error {
	m := seed.Member
	var (
		planID, planName       *string
		start, end, notified   *time.Time
		total, used, remaining *int
	)
	if p := m.CurrentPlan; p != nil {
		planID, planName = &p.PlanID, &p.PlanName
		start, end, notified = p.StartDate, p.EndDate, p.LastExpiryNotification
		if s := p.Sessions; s != nil {
			total, used, remaining = &s.Total, &s.Used, &s.Remaining
		}
	}
	var digest *string
	if seed.BiometricDigest != "" {
		digest = &seed.BiometricDigest
	}

	return inTenantTx(ctx, r.pool, m.OrganizationID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO members (organization_id, member_id, branch_id, name, email, phone, push_token,
                biometric_digest, membership_status, plan_id, plan_name, plan_start_date, plan_end_date,
                sessions_total, sessions_used, sessions_remaining, last_expiry_notification,
                total_check_ins, last_check_in, current_streak, longest_streak, updated_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,NOW())
            ON CONFLICT (organization_id, member_id) DO UPDATE SET
                branch_id=EXCLUDED.branch_id, name=EXCLUDED.name, email=EXCLUDED.email, phone=EXCLUDED.phone,
                push_token=EXCLUDED.push_token, biometric_digest=EXCLUDED.biometric_digest,
                membership_status=EXCLUDED.membership_status, plan_id=EXCLUDED.plan_id, plan_name=EXCLUDED.plan_name,
                plan_start_date=EXCLUDED.plan_start_date, plan_end_date=EXCLUDED.plan_end_date,
                sessions_total=EXCLUDED.sessions_total, sessions_used=EXCLUDED.sessions_used,
                sessions_remaining=EXCLUDED.sessions_remaining,
                last_expiry_notification=EXCLUDED.last_expiry_notification,
                total_check_ins=EXCLUDED.total_check_ins, last_check_in=EXCLUDED.last_check_in,
                current_streak=EXCLUDED.current_streak, longest_streak=EXCLUDED.longest_streak, updated_at=NOW()`,
			m.OrganizationID, m.ID, m.BranchID, m.Name, m.Email, m.Phone, m.PushToken, digest,
			string(m.MembershipStatus), planID, planName, start, end, total, used, remaining, notified,
			m.AttendanceStats.TotalCheckIns, m.AttendanceStats.LastCheckIn, m.AttendanceStats.CurrentStreak, m.AttendanceStats.LongestStreak,
		)
		return err
	})
}

func scanMember(row pgx.Row) (*domain.Member, error) {
	var (
		m                      domain.Member
		status                 string
		planID, planName       *string
		start, end, notified   *time.Time
		total, used, remaining *int
	)
	if err := row.Scan(
		&m.OrganizationID, &m.ID, &m.BranchID, &m.Name, &m.Email, &m.Phone, &m.PushToken, &status,
		&planID, &planName, &start, &end, &total, &used, &remaining,
		&notified, &m.AttendanceStats.TotalCheckIns, &m.AttendanceStats.LastCheckIn,
		&m.AttendanceStats.CurrentStreak, &m.AttendanceStats.LongestStreak, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	m.MembershipStatus = domain.MembershipStatus(status)

	if planID != nil || planName != nil || end != nil {
		plan := &domain.Plan{StartDate: start, EndDate: end, LastExpiryNotification: notified}
		if planID != nil {
			plan.PlanID = *planID
		}
		if planName != nil {
			plan.PlanName = *planName
		}
		if total != nil {
			plan.Sessions = &domain.Sessions{Total: *total}
			if used != nil {
				plan.Sessions.Used = *used
			}
			if remaining != nil {
				plan.Sessions.Remaining = *remaining
			}
		}
		m.CurrentPlan = plan
	}
	return &m, nil
}
