// Package checkin schedules the weekly progress check-in notification.
package checkin

import (
	"context"
	"time"

	"movebot/internal/clock"
	"movebot/internal/gateway"
	"movebot/pkg/logx"
)

// Identifier is the single check-in slot at the gateway. Rescheduling it
// replaces any previous pending request.
const Identifier = "weekly-check-in"

const defaultHour = 10

type Config struct {
	// Hour is the local hour of the Monday check-in. Zero means 10:00.
	Hour int
}

// Scheduler keeps exactly one weekly check-in pending at all times.
type Scheduler struct {
	gw   gateway.Gateway
	log  logx.Logger
	hour int
}

// New requests authorization up front so the first ScheduleNext doesn't
// silently land on an unauthorized channel. Denial is logged, not fatal.
func New(ctx context.Context, gw gateway.Gateway, cfg Config, log logx.Logger) *Scheduler {
	hour := cfg.Hour
	if hour <= 0 || hour > 23 {
		hour = defaultHour
	}
	s := &Scheduler{gw: gw, log: log, hour: hour}

	granted, err := gw.RequestAuthorization(ctx)
	if err != nil {
		log.Warn("check-in authorization request failed", logx.Err(err))
	} else if !granted {
		log.Info("check-in notifications not authorized")
	}
	return s
}

// ScheduleNext places the check-in at the next Monday slot after now. If
// now is already Monday past the slot hour, the request lands a week out.
// The identifier is canceled first; scheduling it again would replace it
// anyway, but the explicit cancel keeps the sequence obvious.
func (s *Scheduler) ScheduleNext(ctx context.Context, now time.Time) error {
	s.gw.CancelPending(ctx, Identifier)
	at := clock.NextWeeklyOccurrence(now, time.Monday, s.hour)
	content := gateway.Content{
		Title:     "Weekly Check-In",
		Body:      "Time to review your week. How did your movement goals go?",
		ThreadKey: Identifier,
		Meta:      map[string]string{"source": Identifier},
	}
	if err := s.gw.Schedule(ctx, Identifier, content, gateway.CalendarDate{At: at}); err != nil {
		s.log.Warn("check-in schedule failed", logx.Err(err))
		return err
	}
	s.log.Debug("weekly check-in scheduled", logx.Time("at", at))
	return nil
}

// OnCompleted is called when the user finishes a check-in: the delivered
// request is cleared and the next week's slot is armed immediately.
func (s *Scheduler) OnCompleted(ctx context.Context, now time.Time) error {
	s.gw.CancelAll(ctx, Identifier)
	return s.ScheduleNext(ctx, now)
}
