// Package reminder maintains the single recurring "time to move"
// notification: anchored to the later of last exercise activity and the
// configured reminder time, paused during quiet hours.
package reminder

import (
	"context"
	"math"
	"time"

	"movebot/internal/clock"
	"movebot/internal/domain"
	"movebot/internal/gateway"
	"movebot/pkg/logx"
)

// The two movement-reminder identifiers. The one-shot aligns the first
// firing to the computed anchor; the repeating request then fires on a
// simple fixed period. Scheduling either id again replaces it at the
// gateway, so cancel-then-reschedule is always safe.
const (
	OneShotID   = "movement-reminder-repeating"
	RepeatingID = "movement-reminder-repeating-repeat"

	threadKey = "movement-reminder"
)

// Forever is returned by TimeSinceLastActivity when no exercise activity
// exists. It compares greater than any real interval.
const Forever = time.Duration(math.MaxInt64)

// ActivityAppender is the slice of the store the monitor writes to.
type ActivityAppender interface {
	AppendActivity(ctx context.Context, e domain.ActivityLogEntry) error
}

type Monitor struct {
	gw    gateway.Gateway
	store ActivityAppender
	log   logx.Logger
}

func New(gw gateway.Gateway, store ActivityAppender, log logx.Logger) *Monitor {
	return &Monitor{gw: gw, store: store, log: log}
}

// LastActivity returns the most recent exercise activity timestamp.
func LastActivity(logs []domain.ActivityLogEntry) (time.Time, bool) {
	var last time.Time
	found := false
	for _, e := range logs {
		if e.Kind.IsExercise() && (!found || e.At.After(last)) {
			last = e.At
			found = true
		}
	}
	return last, found
}

// TimeSinceLastActivity is the duration since the most recent
// ExerciseStart/ExerciseComplete entry, or Forever when there is none.
func TimeSinceLastActivity(logs []domain.ActivityLogEntry, now time.Time) time.Duration {
	last, ok := LastActivity(logs)
	if !ok {
		return Forever
	}
	return now.Sub(last)
}

// ShouldSchedule reports whether the user has been inactive for at least
// one reminder interval.
func (m *Monitor) ShouldSchedule(logs []domain.ActivityLogEntry, prefs domain.UserPreferences, now time.Time) bool {
	return TimeSinceLastActivity(logs, now) >= prefs.Interval()
}

// CheckAndSchedule re-derives the reminder pair from current state. It
// always cancels both identifiers first so repeated calls with unchanged
// inputs converge on the same two scheduled requests.
func (m *Monitor) CheckAndSchedule(ctx context.Context, logs []domain.ActivityLogEntry, prefs domain.UserPreferences, now time.Time) error {
	if err := prefs.Validate(); err != nil {
		return err
	}

	m.gw.CancelPending(ctx, OneShotID, RepeatingID)

	if clock.InQuietHours(now, prefs.QuietStart, prefs.QuietEnd) {
		m.log.Debug("quiet hours; movement reminder not scheduled",
			logx.String("start", prefs.QuietStart.String()),
			logx.String("end", prefs.QuietEnd.String()))
		return nil
	}

	anchor := prefs.ReminderAnchor
	if last, ok := LastActivity(logs); ok && last.After(anchor) {
		anchor = last
	}
	interval := prefs.Interval()
	next := clock.NextAfter(anchor, interval, now)

	content := m.content()
	if err := m.gw.Schedule(ctx, OneShotID, content, gateway.OneShot{At: next}); err != nil {
		m.log.Warn("movement reminder schedule failed", logx.String("id", OneShotID), logx.Err(err))
		return err
	}
	if err := m.gw.Schedule(ctx, RepeatingID, content, gateway.Repeating{Every: interval}); err != nil {
		m.log.Warn("movement reminder schedule failed", logx.String("id", RepeatingID), logx.Err(err))
		return err
	}
	m.log.Debug("movement reminder scheduled",
		logx.Time("next", next), logx.Duration("interval", interval))
	return nil
}

// DetectAndLogInactivity appends one InactivityDetected entry when the
// user has been still for at least two intervals. At most one entry is
// written per stillness period: an InactivityDetected entry newer than
// the last exercise activity suppresses further writes until the user
// moves again.
func (m *Monitor) DetectAndLogInactivity(ctx context.Context, logs []domain.ActivityLogEntry, prefs domain.UserPreferences, now time.Time) (bool, error) {
	elapsed := TimeSinceLastActivity(logs, now)
	if elapsed == Forever || elapsed < 2*prefs.Interval() {
		return false, nil
	}
	if m.store == nil {
		return false, nil
	}
	last, _ := LastActivity(logs)
	for _, e := range logs {
		if e.Kind == domain.ActivityInactivityDetected && e.At.After(last) {
			return false, nil
		}
	}
	entry := domain.NewActivityEntry(domain.ActivityInactivityDetected, now, elapsed)
	if err := m.store.AppendActivity(ctx, entry); err != nil {
		return false, err
	}
	m.log.Info("inactivity detected", logx.Duration("elapsed", elapsed))
	return true, nil
}

// ResetFromNow is called right after the user completed an exercise: it
// drops the pending pair and schedules only the repeating request, so the
// next reminder is a full interval away instead of a near-duplicate.
func (m *Monitor) ResetFromNow(ctx context.Context, prefs domain.UserPreferences, now time.Time) error {
	if err := prefs.Validate(); err != nil {
		return err
	}
	m.gw.CancelPending(ctx, OneShotID, RepeatingID)
	if err := m.gw.Schedule(ctx, RepeatingID, m.content(), gateway.Repeating{Every: prefs.Interval()}); err != nil {
		m.log.Warn("movement reminder reset failed", logx.Err(err))
		return err
	}
	return nil
}

func (m *Monitor) content() gateway.Content {
	return gateway.Content{
		Title:     "Time to Move",
		Body:      "You've been still for a while. Take a quick movement break!",
		ThreadKey: threadKey,
		Meta:      map[string]string{"source": "movement-reminder"},
	}
}
