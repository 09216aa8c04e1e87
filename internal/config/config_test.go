package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	cfg := Load()
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, "Asia/Kolkata", cfg.DefaultTimezone)
	require.Equal(t, 4, cfg.SweepWorkers)
	require.True(t, cfg.RunMigrations)
	require.Empty(t, cfg.SMTP.Host)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092 ,")
	t.Setenv("SWEEP_WORKERS", "12")
	t.Setenv("SWEEP_LOCK_TTL", "45s")
	t.Setenv("NOTIFY_RATE_PER_SECOND", "2.5")
	t.Setenv("RUN_MIGRATIONS", "false")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_USE_TLS", "true")
	t.Setenv("DLQ_MAX_RETRIES", "not-a-number")

	cfg := Load()
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 12, cfg.SweepWorkers)
	require.Equal(t, 45*time.Second, cfg.SweepLockTTL)
	require.InDelta(t, 2.5, cfg.NotifyRatePerSec, 0.001)
	require.False(t, cfg.RunMigrations)
	require.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	require.True(t, cfg.SMTP.UseTLS)
	require.Equal(t, 5, cfg.DLQMaxRetries)
}
