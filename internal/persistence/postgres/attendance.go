package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dhanushfitness/managementTool-sub002/internal/domain"
)

const attendanceColumns = `attendance_id, organization_id, branch_id, member_id, check_in_time, check_out_time, method, status,
        blocked_reason, notes, checked_in_by, override, corrected, created_at, updated_at`

const uniqueViolation = "23505"

// AttendanceRepository is the Postgres attendance ledger.
type AttendanceRepository struct {
	pool *pgxpool.Pool
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(pool *pgxpool.Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// FindOpenVisit implements domain.AttendanceRepository.
func (r *AttendanceRepository) FindOpenVisit(ctx context.Context, organizationID, memberID string, day domain.VisitDay) (*domain.AttendanceRecord, error) {
	ctx, span := tracer().Start(ctx, "attendance.find_open_visit", trace.WithAttributes(
		attribute.String("organization.id", organizationID),
		attribute.String("member.id", memberID),
	))
	defer span.End()

	var found *domain.AttendanceRecord
	err := inTenantTx(ctx, r.pool, organizationID, func(tx pgx.Tx) error {
		rec, err := findOpenVisit(ctx, tx, organizationID, memberID, day)
		found = rec
		return err
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func findOpenVisit(ctx context.Context, tx pgx.Tx, organizationID, memberID string, day domain.VisitDay) (*domain.AttendanceRecord, error) {
	row := tx.QueryRow(ctx, `SELECT `+attendanceColumns+` FROM attendance
        WHERE organization_id=$1 AND member_id=$2 AND check_in_time BETWEEN $3 AND $4
          AND status='success' AND check_out_time IS NULL
        ORDER BY check_in_time LIMIT 1`,
		organizationID, memberID, day.Start, day.End,
	)
	rec, err := scanAttendance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// Record implements domain.AttendanceRepository. Guarded inserts take a transaction-scoped advisory
// lock on (organization, member, day) before re-checking for an open visit; the partial unique index
// rejects anything that slips past.
func (r *AttendanceRepository) Record(ctx context.Context, record domain.AttendanceRecord, guard *domain.VisitDay) (*domain.AttendanceRecord, error) {
	ctx, span := tracer().Start(ctx, "attendance.record", trace.WithAttributes(
		attribute.String("organization.id", record.OrganizationID),
		attribute.String("member.id", record.MemberID),
		attribute.String("attendance.status", string(record.Status)),
		attribute.Bool("attendance.guarded", guard != nil),
	))
	defer span.End()

	return r.record(ctx, span, record, guard, nil)
}

// Admit implements domain.AttendanceRepository. The member row is locked and updated in the same
// transaction as the guarded insert.
func (r *AttendanceRepository) Admit(ctx context.Context, record domain.AttendanceRecord, guard *domain.VisitDay, stats func(domain.AttendanceStats) domain.AttendanceStats) (*domain.AttendanceRecord, *domain.Member, error) {
	ctx, span := tracer().Start(ctx, "attendance.admit", trace.WithAttributes(
		attribute.String("organization.id", record.OrganizationID),
		attribute.String("member.id", record.MemberID),
		attribute.Bool("attendance.guarded", guard != nil),
	))
	defer span.End()

	var member *domain.Member
	saved, err := r.record(ctx, span, record, guard, func(tx pgx.Tx) error {
		m, err := updateStats(ctx, tx, record.OrganizationID, record.MemberID, stats)
		member = m
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return saved, member, nil
}

// record runs the guarded insert and then, when set, after, all in one tenant transaction.
func (r *AttendanceRepository) record(ctx context.Context, span trace.Span, record domain.AttendanceRecord, guard *domain.VisitDay, after func(pgx.Tx) error) (*domain.AttendanceRecord, error) {
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}

	var existing *domain.AttendanceRecord
	err := inTenantTx(ctx, r.pool, record.OrganizationID, func(tx pgx.Tx) error {
		if guard != nil {
			key := record.OrganizationID + "|" + record.MemberID + "|" + guard.Start.Format(time.RFC3339)
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
				return err
			}
			open, err := findOpenVisit(ctx, tx, record.OrganizationID, record.MemberID, *guard)
			if err != nil {
				return err
			}
			if open != nil {
				existing = open
				return nil
			}
		}
		if err := insertAttendance(ctx, tx, record); err != nil {
			return err
		}
		if after != nil {
			return after(tx)
		}
		return nil
	})

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && guard != nil {
		span.AddEvent("attendance.unique_backstop")
		open, findErr := r.FindOpenVisit(ctx, record.OrganizationID, record.MemberID, *guard)
		if findErr != nil {
			return nil, errors.Join(err, findErr)
		}
		if open != nil {
			existing = open
			err = nil
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record attendance")
		return nil, err
	}
	if existing != nil {
		span.SetAttributes(attribute.Bool("attendance.duplicate", true))
		return nil, &domain.DuplicateCheckInError{Existing: *existing}
	}
	return &record, nil
}

func insertAttendance(ctx context.Context, tx pgx.Tx, rec domain.AttendanceRecord) error {
	_, err := tx.Exec(ctx, `INSERT INTO attendance (attendance_id, organization_id, branch_id, member_id, check_in_time,
            check_out_time, visit_day, method, status, blocked_reason, notes, checked_in_by, override, corrected,
            created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		rec.ID, rec.OrganizationID, rec.BranchID, rec.MemberID, rec.CheckInTime, rec.CheckOutTime, visitDay(rec.CheckInTime),
		string(rec.Method), string(rec.Status), rec.BlockedReason, rec.Notes, rec.CheckedInBy, rec.Override, rec.Corrected,
		rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

// Get implements domain.AttendanceRepository.
func (r *AttendanceRepository) Get(ctx context.Context, organizationID, attendanceID string) (*domain.AttendanceRecord, error) {
	var found *domain.AttendanceRecord
	err := inTenantTx(ctx, r.pool, organizationID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE organization_id=$1 AND attendance_id=$2`, organizationID, attendanceID)
		rec, err := scanAttendance(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		found = rec
		return err
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Close implements domain.AttendanceRepository.
func (r *AttendanceRepository) Close(ctx context.Context, organizationID, attendanceID string, at time.Time) (*domain.AttendanceRecord, error) {
	ctx, span := tracer().Start(ctx, "attendance.close", trace.WithAttributes(
		attribute.String("organization.id", organizationID),
		attribute.String("attendance.id", attendanceID),
	))
	defer span.End()

	var closed *domain.AttendanceRecord
	err := inTenantTx(ctx, r.pool, organizationID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `UPDATE attendance SET check_out_time=$3, updated_at=NOW()
            WHERE organization_id=$1 AND attendance_id=$2 AND check_out_time IS NULL
            RETURNING `+attendanceColumns,
			organizationID, attendanceID, at,
		)
		rec, err := scanAttendance(row)
		if err == nil {
			closed = rec
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM attendance WHERE organization_id=$1 AND attendance_id=$2)`,
			organizationID, attendanceID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return domain.ErrAlreadyClosed
		}
		return domain.ErrAttendanceNotFound
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// Save implements domain.AttendanceRepository.
func (r *AttendanceRepository) Save(ctx context.Context, rec domain.AttendanceRecord) error {
	ctx, span := tracer().Start(ctx, "attendance.save", trace.WithAttributes(
		attribute.String("attendance.id", rec.ID),
	))
	defer span.End()

	err := inTenantTx(ctx, r.pool, rec.OrganizationID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE attendance SET
                branch_id=$3, check_in_time=$4, check_out_time=$5, visit_day=$6, method=$7, status=$8,
                blocked_reason=$9, notes=$10, checked_in_by=$11, override=$12, corrected=$13, updated_at=$14
            WHERE organization_id=$1 AND attendance_id=$2`,
			rec.OrganizationID, rec.ID, rec.BranchID, rec.CheckInTime, rec.CheckOutTime, visitDay(rec.CheckInTime),
			string(rec.Method), string(rec.Status), rec.BlockedReason, rec.Notes, rec.CheckedInBy, rec.Override,
			rec.Corrected, rec.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrAttendanceNotFound
		}
		return nil
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		// The correction would reopen a visit on a day that already has one.
		return fmt.Errorf("%w: another open visit exists that day", domain.ErrInvalidRequest)
	}
	return err
}

// visitDay is the calendar date of t in the location it carries. Values scanned back from
// TIMESTAMPTZ carry the session zone, so callers convert to the organization timezone first.
func visitDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func scanAttendance(row pgx.Row) (*domain.AttendanceRecord, error) {
	var (
		rec            domain.AttendanceRecord
		method, status string
	)
	if err := row.Scan(&rec.ID, &rec.OrganizationID, &rec.BranchID, &rec.MemberID, &rec.CheckInTime, &rec.CheckOutTime,
		&method, &status, &rec.BlockedReason, &rec.Notes, &rec.CheckedInBy, &rec.Override, &rec.Corrected, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Method = domain.CheckInMethod(method)
	rec.Status = domain.Verdict(status)
	return &rec, nil
}
