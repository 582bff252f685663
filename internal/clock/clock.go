// Package clock holds the pure calendar arithmetic used by the reminder
// engines: minute-of-day comparisons, quiet-hour windows, day buckets and
// next-occurrence computations. No I/O, no time.Now().
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time without a date, as configured by the user
// (reminder anchor, quiet hours). The zero value is midnight.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// OnDay places the time-of-day onto the calendar day of ref, in ref's
// location.
func (t TimeOfDay) OnDay(ref time.Time) time.Time {
	y, m, d := ref.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, ref.Location())
}

// MinuteOfDay returns minutes elapsed since local midnight, [0,1440).
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// InQuietHours reports whether now falls inside the half-open window
// [start,end) of minutes-of-day. When start >= end the window wraps
// midnight: quiet iff now >= start OR now < end. A window where
// start == end therefore covers the whole day, which matches treating
// "22:00-22:00" as always-quiet rather than never-quiet.
func InQuietHours(now time.Time, start, end TimeOfDay) bool {
	cur := MinuteOfDay(now)
	s, e := start.Minutes(), end.Minutes()
	if s < e {
		return cur >= s && cur < e
	}
	return cur >= s || cur < e
}

// Bucket is a coarse slice of the day, recorded on activity log entries.
type Bucket string

const (
	BucketMorning   Bucket = "morning"   // [05:00,12:00)
	BucketAfternoon Bucket = "afternoon" // [12:00,17:00)
	BucketEvening   Bucket = "evening"   // [17:00,22:00)
	BucketNight     Bucket = "night"
)

func DayBucket(t time.Time) Bucket {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return BucketMorning
	case h >= 12 && h < 17:
		return BucketAfternoon
	case h >= 17 && h < 22:
		return BucketEvening
	default:
		return BucketNight
	}
}

// NextWeeklyOccurrence returns the next time the given weekday reaches
// hour:00:00, strictly interpreting "today's slot already passed": if from
// is already on the target weekday and its hour is >= hour, the result is
// a full week out.
func NextWeeklyOccurrence(from time.Time, weekday time.Weekday, hour int) time.Time {
	daysToAdd := (int(weekday) - int(from.Weekday()) + 7) % 7
	if daysToAdd == 0 && from.Hour() >= hour {
		daysToAdd = 7
	}
	day := from.AddDate(0, 0, daysToAdd)
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, from.Location())
}

// NextAfter computes anchor+interval, then keeps adding whole intervals
// until the result is not before now. This keeps arbitrarily stale anchors
// from producing a fire time in the past.
func NextAfter(anchor time.Time, interval time.Duration, now time.Time) time.Time {
	next := anchor.Add(interval)
	if interval <= 0 {
		return next
	}
	for next.Before(now) {
		next = next.Add(interval)
	}
	return next
}
