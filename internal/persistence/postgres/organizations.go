package postgres

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dhanushfitness/managementTool-sub002/internal/calendar"
	"github.com/dhanushfitness/managementTool-sub002/internal/domain"
)

// OrganizationDirectory resolves organization names and timezones.
type OrganizationDirectory struct {
	pool     *pgxpool.Pool
	fallback *time.Location
}

// NewOrganizationDirectory constructs a directory; fallback applies to blank or unknown timezones.
func NewOrganizationDirectory(pool *pgxpool.Pool, fallback *time.Location) *OrganizationDirectory {
	return &OrganizationDirectory{pool: pool, fallback: fallback}
}

// Organization implements domain.OrganizationDirectory.
func (d *OrganizationDirectory) Organization(ctx context.Context, organizationID string) (*domain.Organization, error) {
	var (
		org      domain.Organization
		timezone string
	)
	err := inTenantTx(ctx, d.pool, organizationID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT organization_id, name, timezone FROM organizations WHERE organization_id=$1`, organizationID).
			Scan(&org.ID, &org.Name, &timezone)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	loc, err := calendar.LoadLocation(timezone, d.fallback)
	if err != nil {
		log.Printf("organization %s has invalid timezone %q, using %s", organizationID, timezone, d.fallback)
		loc = d.fallback
	}
	org.Location = loc
	return &org, nil
}

// Upsert stores an organization's name and IANA timezone.
func (d *OrganizationDirectory) Upsert(ctx context.Context, organizationID, name, timezone string) error {
	return inTenantTx(ctx, d.pool, organizationID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO organizations (organization_id, name, timezone) VALUES ($1,$2,$3)
            ON CONFLICT (organization_id) DO UPDATE SET name=EXCLUDED.name, timezone=EXCLUDED.timezone`,
			organizationID, name, timezone)
		return err
	})
}
