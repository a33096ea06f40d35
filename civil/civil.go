// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

// Package civil implements dates and times-of-day in a single, fixed operating timezone,
// independent of the timezone of the machine running the code.
package civil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/MKuranowski/go-extra-lib/clock"
)

// Clock tells the current instant. Any clock from go-extra-lib satisfies it.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts an ordinary function into a Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Fixed returns a Clock which always returns t.
func Fixed(t time.Time) Clock { return ClockFunc(func() time.Time { return t }) }

/********
 * DATE *
 ********/

type Date struct {
	Y int
	M time.Month
	D int
}

func NewDateFromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{y, m, d}
}

// ParseDate parses a "2006-01-02" string.
func ParseDate(x string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(x))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", x, err)
	}
	return NewDateFromTime(t), nil
}

// ParseCompactDate parses a date from the first 8 characters of x, formatted as YYYYMMDD.
// Anything after the 8th character (e.g. a "T000000" time suffix) is ignored.
func ParseCompactDate(x string) (Date, error) {
	x = strings.TrimSpace(x)
	if len(x) < 8 {
		return Date{}, fmt.Errorf("invalid compact date %q: too short", x)
	}

	t, err := time.Parse("20060102", x[:8])
	if err != nil {
		return Date{}, fmt.Errorf("invalid compact date %q: %w", x, err)
	}
	return NewDateFromTime(t), nil
}

func (d Date) AsTime(loc *time.Location) time.Time {
	return time.Date(d.Y, d.M, d.D, 0, 0, 0, 0, loc)
}

// At returns the instant at which the given time-of-day occurs on this date in loc.
func (d Date) At(t TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Y, d.M, d.D, t.Hour(), t.Minute(), 0, 0, loc)
}

// AddDays returns the date n days after d, crossing month and year boundaries.
func (d Date) AddDays(n int) Date {
	// noon UTC is immune to any DST shenanigans
	return NewDateFromTime(time.Date(d.Y, d.M, d.D+n, 12, 0, 0, 0, time.UTC))
}

func (d Date) Weekday() time.Weekday {
	return time.Date(d.Y, d.M, d.D, 12, 0, 0, 0, time.UTC).Weekday()
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Y, d.M, d.D)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

/***************
 * TIME OF DAY *
 ***************/

// TimeOfDay is a wall-clock time without a date, expressed in minutes since midnight.
type TimeOfDay int

// InvalidTime marks a time-of-day which could not be parsed.
const InvalidTime TimeOfDay = -1

func NewTimeOfDay(h, m int) TimeOfDay {
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return InvalidTime
	}
	return TimeOfDay(h*60 + m)
}

func (t TimeOfDay) Valid() bool { return t >= 0 && t < 24*60 }
func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	if !t.Valid() {
		return "--:--"
	}
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

var clockPattern = regexp.MustCompile(`^(\d\d):(\d\d)$`)

// ParseClock parses a zero-padded, 24-hour "HH:MM" string.
func ParseClock(x string) (TimeOfDay, error) {
	match := clockPattern.FindStringSubmatch(strings.TrimSpace(x))
	if match == nil {
		return InvalidTime, fmt.Errorf("invalid clock string: %q", x)
	}

	h, _ := strconv.Atoi(match[1])
	m, _ := strconv.Atoi(match[2])
	t := NewTimeOfDay(h, m)
	if !t.Valid() {
		return InvalidTime, fmt.Errorf("clock out of range: %q", x)
	}
	return t, nil
}

func TimeOfDayOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute())
}

/************
 * RESOLVER *
 ************/

// Resolver anchors "now" and "tomorrow" to a single operating timezone.
type Resolver struct {
	Location *time.Location

	// Clock is used to tell the current time. If nil, clock.System is used.
	Clock Clock
}

func NewResolver(timezone string, c Clock) (*Resolver, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s timezone: %w", timezone, err)
	}
	return &Resolver{Location: loc, Clock: c}, nil
}

func (r *Resolver) clock() Clock {
	if r.Clock == nil {
		return clock.System
	}
	return r.Clock
}

// Now returns the current instant in the operating timezone.
func (r *Resolver) Now() time.Time {
	return r.In(r.clock().Now())
}

// In converts an arbitrary instant into the operating timezone.
func (r *Resolver) In(t time.Time) time.Time {
	return t.In(r.Location)
}

// Today returns the civil date of t in the operating timezone.
func (r *Resolver) Today(t time.Time) Date {
	return NewDateFromTime(r.In(t))
}

// Tomorrow returns the civil date one day after t in the operating timezone.
func (r *Resolver) Tomorrow(t time.Time) Date {
	return r.Today(t).AddDays(1)
}

// UntilNextBoundary returns how long it takes from t until the next multiple of every,
// counted from the civil midnight of t's own location. The result is always in (0, every].
func UntilNextBoundary(t time.Time, every time.Duration) time.Duration {
	if every <= 0 {
		panic("civil.UntilNextBoundary: non-positive interval")
	}

	midnight := NewDateFromTime(t).AsTime(t.Location())
	elapsed := t.Sub(midnight)
	next := (elapsed/every + 1) * every
	return next - elapsed
}
