// Package app assembles the runtime components shared by the binaries.
package app

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dhanushfitness/managementTool-sub002/internal/biometric"
	"github.com/dhanushfitness/managementTool-sub002/internal/calendar"
	"github.com/dhanushfitness/managementTool-sub002/internal/config"
	"github.com/dhanushfitness/managementTool-sub002/internal/domain"
	"github.com/dhanushfitness/managementTool-sub002/internal/expiry"
	"github.com/dhanushfitness/managementTool-sub002/internal/locking"
	"github.com/dhanushfitness/managementTool-sub002/internal/notify"
	"github.com/dhanushfitness/managementTool-sub002/internal/outbox"
	"github.com/dhanushfitness/managementTool-sub002/internal/persistence/postgres"
)

// OpenPostgres applies migrations when enabled and returns a verified pool.
func OpenPostgres(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.RunMigrations {
		if err := postgres.Migrate(cfg.PostgresURL); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return postgres.Connect(ctx, cfg.PostgresURL)
}

// DefaultLocation resolves DEFAULT_TIMEZONE, falling back to UTC.
func DefaultLocation(cfg config.Config) *time.Location {
	loc, err := calendar.LoadLocation(cfg.DefaultTimezone, time.UTC)
	if err != nil {
		log.Printf("invalid DEFAULT_TIMEZONE %q, using UTC: %v", cfg.DefaultTimezone, err)
		return time.UTC
	}
	return loc
}

// NewService builds the attendance service on Postgres with outbox-backed auditing.
func NewService(cfg config.Config, pool *pgxpool.Pool) (*domain.Service, error) {
	hasher, err := biometric.NewHasher([]byte(cfg.BiometricKey))
	if err != nil {
		return nil, fmt.Errorf("biometric key: %w", err)
	}
	loc := DefaultLocation(cfg)
	members := postgres.NewMemberRepository(pool)
	return domain.NewService(
		members,
		postgres.NewAttendanceRepository(pool),
		postgres.NewOrganizationDirectory(pool, loc),
		outbox.NewAuditSink(pool),
		domain.WithDefaultLocation(loc),
		domain.WithBiometricHasher(hasher),
	), nil
}

// NewNotifier builds the dispatcher over every configured channel.
func NewNotifier(cfg config.Config) *notify.Dispatcher {
	var channels []notify.Channel
	if cfg.SMTP.Host != "" {
		channels = append(channels, notify.NewEmailChannel(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
			UseTLS:   cfg.SMTP.UseTLS,
		}))
	}
	if cfg.SMS.URL != "" {
		channels = append(channels, notify.NewSMSChannel(cfg.SMS.URL, cfg.SMS.Token, cfg.NotifyTimeout))
	}
	if cfg.Push.URL != "" {
		channels = append(channels, notify.NewPushChannel(cfg.Push.URL, cfg.Push.Token, cfg.NotifyTimeout))
	}
	if len(channels) == 0 {
		log.Printf("no notification channels configured; expiry reminders will only be audited")
	}

	opts := []notify.Option{notify.WithTimeout(cfg.NotifyTimeout)}
	if cfg.NotifyRatePerSec > 0 {
		burst := int(math.Max(1, math.Ceil(cfg.NotifyRatePerSec)))
		opts = append(opts, notify.WithRateLimit(cfg.NotifyRatePerSec, burst))
	}
	return notify.NewDispatcher(channels, opts...)
}

// SharedLocking reports whether sweeps in separate processes exclude each other.
func SharedLocking(cfg config.Config) bool {
	return cfg.RedisURL != ""
}

// NewLocker returns a Redis locker when REDIS_URL is set and an in-process one otherwise. The
// returned func releases the underlying client.
func NewLocker(ctx context.Context, cfg config.Config) (locking.Locker, func(), error) {
	if !SharedLocking(cfg) {
		log.Printf("REDIS_URL not set: expiry sweep locks are local to this process; run a single sweeper")
		return locking.NewLocalLocker(), func() {}, nil
	}
	client, err := locking.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			log.Printf("close redis: %v", err)
		}
	}
	return locking.NewRedisLocker(client, "attendance:sweep:", cfg.SweepLockTTL), closeFn, nil
}

// NewExpiryJob builds the sweep over Postgres with the configured notifier and locker.
func NewExpiryJob(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) (*expiry.Job, func(), error) {
	locker, closeLocker, err := NewLocker(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	loc := DefaultLocation(cfg)
	job := expiry.NewJob(
		postgres.NewMemberRepository(pool),
		NewNotifier(cfg),
		expiry.WithWorkers(cfg.SweepWorkers),
		expiry.WithLocker(locker),
		expiry.WithAuditSink(outbox.NewAuditSink(pool)),
		expiry.WithOrganizations(postgres.NewOrganizationDirectory(pool, loc)),
		expiry.WithDefaultLocation(loc),
	)
	return job, closeLocker, nil
}
