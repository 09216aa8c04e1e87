// Package calendar provides timezone-anchored day arithmetic used by attendance and expiry logic.
package calendar

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ErrInvalidTimestamp is returned when a date or time cannot be parsed or defaulted.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// LoadLocation resolves an IANA zone name, falling back to fallback when name is empty.
func LoadLocation(name string, fallback *time.Location) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		if fallback == nil {
			return time.UTC, nil
		}
		return fallback, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidTimestamp, name)
	}
	return loc, nil
}

// StartOfDay truncates t to 00:00:00.000 in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(orUTC(loc))
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}

// EndOfDay returns 23:59:59.999 of t's day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(orUTC(loc))
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, int(999*time.Millisecond), local.Location())
}

// PreviousDay returns the start of the calendar day before t's day in loc.
func PreviousDay(t time.Time, loc *time.Location) time.Time {
	start := StartOfDay(t, loc)
	return time.Date(start.Year(), start.Month(), start.Day()-1, 0, 0, 0, 0, start.Location())
}

// SameDay reports whether a and b fall on the same calendar date in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	loc = orUTC(loc)
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// DaysBetween returns the ceiling of the number of days from from to to, measured on
// wall-clock time in loc so DST transitions do not shorten or stretch a day.
func DaysBetween(from, to time.Time, loc *time.Location) int {
	f := wallClock(from, loc)
	t := wallClock(to, loc)
	days := t.Sub(f).Hours() / 24
	return int(math.Ceil(days))
}

// ParseDate parses a YYYY-MM-DD date as midnight in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	parsed, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), orUTC(loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidTimestamp, value)
	}
	return parsed, nil
}

// Clock is an hour/minute pair parsed from an "HH:MM" fragment.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock reads an "HH:MM" (or "HH") fragment. Non-numeric components default to 0 so that
// partially entered manual times still resolve; numeric values outside the valid range fail.
func ParseClock(value string) (Clock, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 3)
	var c Clock
	c.Hour = lenientInt(parts[0])
	if len(parts) > 1 {
		c.Minute = lenientInt(parts[1])
	}
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
		return Clock{}, fmt.Errorf("%w: time %q out of range", ErrInvalidTimestamp, value)
	}
	return c, nil
}

// Resolve combines an optional date ("YYYY-MM-DD") and optional clock ("HH:MM") into an instant in
// loc. With a date and no clock the current time of day is used; with neither, now is returned.
// A clock without a date applies to today.
func Resolve(date, clock string, now time.Time, loc *time.Location) (time.Time, error) {
	loc = orUTC(loc)
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" && clock == "" {
		return now, nil
	}

	local := now.In(loc)
	day := StartOfDay(local, loc)
	if date != "" {
		parsed, err := ParseDate(date, loc)
		if err != nil {
			return time.Time{}, err
		}
		day = parsed
	}

	if clock == "" {
		return time.Date(day.Year(), day.Month(), day.Day(), local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), loc), nil
	}
	c, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, loc), nil
}

func lenientInt(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}

func wallClock(t time.Time, loc *time.Location) time.Time {
	local := t.In(orUTC(loc))
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), time.UTC)
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
