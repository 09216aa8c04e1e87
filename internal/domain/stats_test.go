package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func at(day, hour int) time.Time {
	return time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC)
}

func TestUpdateStatsStreakProgression(t *testing.T) {
	stats := UpdateStats(AttendanceStats{}, at(1, 8), time.UTC)
	require.Equal(t, 1, stats.TotalCheckIns)
	require.Equal(t, 1, stats.CurrentStreak)
	require.Equal(t, 1, stats.LongestStreak)

	stats = UpdateStats(stats, at(2, 18), time.UTC)
	require.Equal(t, 2, stats.CurrentStreak)
	require.Equal(t, 2, stats.LongestStreak)

	stats = UpdateStats(stats, at(5, 7), time.UTC)
	require.Equal(t, 1, stats.CurrentStreak)
	require.Equal(t, 2, stats.LongestStreak)
	require.Equal(t, 3, stats.TotalCheckIns)
	require.Equal(t, at(5, 7), *stats.LastCheckIn)
}

func TestUpdateStatsSameDayKeepsStreak(t *testing.T) {
	stats := UpdateStats(AttendanceStats{}, at(1, 8), time.UTC)
	stats = UpdateStats(stats, at(1, 19), time.UTC)
	require.Equal(t, 2, stats.TotalCheckIns)
	require.Equal(t, 1, stats.CurrentStreak)
	require.Equal(t, at(1, 19), *stats.LastCheckIn)
}

func TestUpdateStatsBackfillOnlyCounts(t *testing.T) {
	last := at(10, 8)
	prev := AttendanceStats{TotalCheckIns: 4, LastCheckIn: &last, CurrentStreak: 3, LongestStreak: 5}

	stats := UpdateStats(prev, at(7, 8), time.UTC)
	require.Equal(t, 5, stats.TotalCheckIns)
	require.Equal(t, 3, stats.CurrentStreak)
	require.Equal(t, 5, stats.LongestStreak)
	require.Equal(t, last, *stats.LastCheckIn)
}

func TestUpdateStatsUsesOrganizationDay(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	// 20:00 UTC on the 1st is already the 2nd in Kolkata.
	first := time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC)
	second := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)

	stats := UpdateStats(AttendanceStats{}, first, kolkata)
	stats = UpdateStats(stats, second, kolkata)
	require.Equal(t, 2, stats.CurrentStreak)

	utc := UpdateStats(UpdateStats(AttendanceStats{}, first, time.UTC), second, time.UTC)
	require.Equal(t, 1, utc.CurrentStreak)
}

func TestUpdateStatsInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		offsets := rapid.SliceOfN(rapid.IntRange(0, 3*24), 1, 40).Draw(t, "offsets")
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		stats := AttendanceStats{}
		cursor := base
		for i, hours := range offsets {
			cursor = cursor.Add(time.Duration(hours) * time.Hour)
			stats = UpdateStats(stats, cursor, time.UTC)

			if stats.TotalCheckIns != i+1 {
				t.Fatalf("total %d after %d check-ins", stats.TotalCheckIns, i+1)
			}
			if stats.LongestStreak < stats.CurrentStreak {
				t.Fatalf("longest %d below current %d", stats.LongestStreak, stats.CurrentStreak)
			}
			if stats.CurrentStreak < 1 {
				t.Fatalf("streak %d after a check-in", stats.CurrentStreak)
			}
		}
	})
}
