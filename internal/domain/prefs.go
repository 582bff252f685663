package domain

import (
	"errors"
	"time"

	"movebot/internal/clock"
)

// UserPreferences drive the movement reminder. One instance per user,
// created at first launch and mutated via settings.
type UserPreferences struct {
	IntervalMinutes int             `json:"interval_minutes"`
	ReminderAnchor  time.Time       `json:"reminder_anchor"`
	QuietStart      clock.TimeOfDay `json:"quiet_start"`
	QuietEnd        clock.TimeOfDay `json:"quiet_end"`
}

var ErrInvalidInterval = errors.New("reminder interval must be positive")

func (p UserPreferences) Validate() error {
	if p.IntervalMinutes <= 0 {
		return ErrInvalidInterval
	}
	return nil
}

func (p UserPreferences) Interval() time.Duration {
	return time.Duration(p.IntervalMinutes) * time.Minute
}

// DefaultPreferences is the first-launch configuration: hourly reminders,
// anchored at 08:00 on the given day, quiet from 22:00 to 06:00.
func DefaultPreferences(day time.Time) UserPreferences {
	anchor := clock.TimeOfDay{Hour: 8}
	return UserPreferences{
		IntervalMinutes: 60,
		ReminderAnchor:  anchor.OnDay(day),
		QuietStart:      clock.TimeOfDay{Hour: 22},
		QuietEnd:        clock.TimeOfDay{Hour: 6},
	}
}
