package domain

import (
	"time"

	"github.com/google/uuid"

	"movebot/internal/clock"
)

// ActivityKind tags entries of the append-only activity log.
type ActivityKind string

const (
	ActivityAppOpen             ActivityKind = "app_open"
	ActivityExerciseStart       ActivityKind = "exercise_start"
	ActivityExerciseComplete    ActivityKind = "exercise_complete"
	ActivityReminderTriggered   ActivityKind = "reminder_triggered"
	ActivityReminderResponded   ActivityKind = "reminder_responded"
	ActivityInactivityDetected  ActivityKind = "inactivity_detected"
	ActivityAchievementUnlocked ActivityKind = "achievement_unlocked"
)

// IsExercise reports whether the kind counts as exercise activity for
// inactivity computations.
func (k ActivityKind) IsExercise() bool {
	return k == ActivityExerciseStart || k == ActivityExerciseComplete
}

// ActivityLogEntry is one row of the audit trail. Entries are inserted and
// occasionally bulk-deleted, never mutated.
type ActivityLogEntry struct {
	ID       uuid.UUID     `json:"id"`
	At       time.Time     `json:"at"`
	Kind     ActivityKind  `json:"kind"`
	Duration time.Duration `json:"duration,omitempty"`
	Bucket   clock.Bucket  `json:"bucket"`
}

// NewActivityEntry builds an entry with a fresh id and the day bucket
// derived from the timestamp.
func NewActivityEntry(kind ActivityKind, at time.Time, duration time.Duration) ActivityLogEntry {
	return ActivityLogEntry{
		ID:       uuid.New(),
		At:       at,
		Kind:     kind,
		Duration: duration,
		Bucket:   clock.DayBucket(at),
	}
}
