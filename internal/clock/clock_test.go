package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, min int) time.Time {
	return time.Date(2025, time.June, 18, hour, min, 0, 0, time.UTC)
}

func TestInQuietHoursWrapsMidnight(t *testing.T) {
	t.Parallel()
	start := TimeOfDay{Hour: 22}
	end := TimeOfDay{Hour: 6}

	tests := []struct {
		name  string
		now   time.Time
		quiet bool
	}{
		{"late evening", at(23, 30), true},
		{"small hours", at(2, 0), true},
		{"midday", at(12, 0), false},
		{"exactly at end", at(6, 0), false},
		{"exactly at start", at(22, 0), true},
		{"minute before end", at(5, 59), true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.quiet, InQuietHours(tt.now, start, end))
		})
	}
}

func TestInQuietHoursSameDay(t *testing.T) {
	t.Parallel()
	start := TimeOfDay{Hour: 9}
	end := TimeOfDay{Hour: 17}

	tests := []struct {
		name  string
		now   time.Time
		quiet bool
	}{
		{"exactly at start", at(9, 0), true},
		{"minute before end", at(16, 59), true},
		{"exactly at end", at(17, 0), false},
		{"minute before start", at(8, 59), false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.quiet, InQuietHours(tt.now, start, end))
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()
	tod, err := ParseTimeOfDay("23:15")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 23, Minute: 15}, tod)
	assert.Equal(t, "23:15", tod.String())

	for _, bad := range []string{"24:00", "12:60", "noon", "12", "12:00:00"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestNextAfter(t *testing.T) {
	t.Parallel()
	interval := 30 * time.Minute

	// Fresh anchor: a single step lands at 10:30, already >= now.
	got := NextAfter(at(10, 0), interval, at(10, 5))
	assert.Equal(t, at(10, 30), got)

	// Stale anchor: 08:30, 09:00 ... the first value >= 11:47 is 12:00.
	got = NextAfter(at(8, 0), interval, at(11, 47))
	assert.Equal(t, at(12, 0), got)

	// next == now is acceptable (not "in the past").
	got = NextAfter(at(8, 0), interval, at(12, 0))
	assert.Equal(t, at(12, 0), got)
}

func TestNextWeeklyOccurrence(t *testing.T) {
	t.Parallel()
	// 2025-06-16 is a Monday.
	monday := time.Date(2025, time.June, 16, 9, 0, 0, 0, time.UTC)

	// Hour not yet passed: same day at 10:00.
	got := NextWeeklyOccurrence(monday, time.Monday, 10)
	assert.Equal(t, time.Date(2025, time.June, 16, 10, 0, 0, 0, time.UTC), got)

	// Hour already passed: following Monday.
	late := time.Date(2025, time.June, 16, 11, 0, 0, 0, time.UTC)
	got = NextWeeklyOccurrence(late, time.Monday, 10)
	assert.Equal(t, time.Date(2025, time.June, 23, 10, 0, 0, 0, time.UTC), got)

	// Mid-week rolls forward to the next Monday.
	thursday := time.Date(2025, time.June, 19, 8, 0, 0, 0, time.UTC)
	got = NextWeeklyOccurrence(thursday, time.Monday, 10)
	assert.Equal(t, time.Date(2025, time.June, 23, 10, 0, 0, 0, time.UTC), got)
}

func TestDayBucket(t *testing.T) {
	t.Parallel()
	assert.Equal(t, BucketMorning, DayBucket(at(5, 0)))
	assert.Equal(t, BucketMorning, DayBucket(at(11, 59)))
	assert.Equal(t, BucketAfternoon, DayBucket(at(12, 0)))
	assert.Equal(t, BucketEvening, DayBucket(at(17, 0)))
	assert.Equal(t, BucketNight, DayBucket(at(22, 0)))
	assert.Equal(t, BucketNight, DayBucket(at(3, 0)))
}
