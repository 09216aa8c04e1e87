package domain

import (
	"time"

	"github.com/dhanushfitness/managementTool-sub002/internal/calendar"
)

// UpdateStats applies one successful check-in to the running statistics.
//
// The streak is an incremental value derived from the previous LastCheckIn. A check-in dated on a
// day before LastCheckIn's day is a backfill: it counts towards TotalCheckIns but leaves the streak
// and LastCheckIn untouched, since replaying it would corrupt the running value.
func UpdateStats(prev AttendanceStats, checkIn time.Time, loc *time.Location) AttendanceStats {
	next := prev
	next.TotalCheckIns++

	if prev.LastCheckIn != nil && calendar.StartOfDay(checkIn, loc).Before(calendar.StartOfDay(*prev.LastCheckIn, loc)) {
		return reconcile(next)
	}

	yesterday := calendar.PreviousDay(checkIn, loc)
	switch {
	case prev.LastCheckIn == nil:
		next.CurrentStreak = 1
	case calendar.SameDay(*prev.LastCheckIn, yesterday, loc):
		next.CurrentStreak = prev.CurrentStreak + 1
	case prev.LastCheckIn.Before(yesterday):
		next.CurrentStreak = 1
	}
	// Otherwise this is a same-day re-check through an override and the streak stays as is.

	at := checkIn
	next.LastCheckIn = &at
	return reconcile(next)
}

func reconcile(s AttendanceStats) AttendanceStats {
	if s.LongestStreak < s.CurrentStreak {
		s.LongestStreak = s.CurrentStreak
	}
	return s
}
