package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"movebot/internal/config"
	"movebot/internal/domain"
	"movebot/internal/engine/checkin"
	"movebot/internal/engine/triggers"
	"movebot/internal/eventbus"
	"movebot/internal/gateway/local"
	logx "movebot/pkg/logx"
)

// activityFetchLimit bounds how much history each evaluation pass loads.
// The engines only care about the most recent entries.
const activityFetchLimit = 1000

// Poke wakes the evaluation loop immediately instead of waiting for the
// next tick.
func (a *App) Poke() {
	select {
	case a.poke <- struct{}{}:
	default:
	}
}

// RecordAppOpen notes that the user opened the companion UI.
func (a *App) RecordAppOpen(ctx context.Context) error {
	return a.appendActivity(ctx, domain.NewActivityEntry(domain.ActivityAppOpen, time.Now(), 0))
}

func (a *App) RecordExerciseStart(ctx context.Context) error {
	return a.appendActivity(ctx, domain.NewActivityEntry(domain.ActivityExerciseStart, time.Now(), 0))
}

// RecordExerciseComplete logs the exercise and pushes the next movement
// reminder a full interval out.
func (a *App) RecordExerciseComplete(ctx context.Context, took time.Duration) error {
	now := time.Now()
	if err := a.appendActivity(ctx, domain.NewActivityEntry(domain.ActivityExerciseComplete, now, took)); err != nil {
		return err
	}
	if err := a.monitor.ResetFromNow(ctx, a.Preferences(), now); err != nil {
		return err
	}
	a.Poke()
	return nil
}

// CompleteCheckIn marks the weekly check-in as done and arms next week's.
func (a *App) CompleteCheckIn(ctx context.Context) error {
	now := time.Now()
	if err := a.appendActivity(ctx, domain.NewActivityEntry(domain.ActivityReminderResponded, now, 0)); err != nil {
		return err
	}
	return a.checkin.OnCompleted(ctx, now)
}

func (a *App) appendActivity(ctx context.Context, e domain.ActivityLogEntry) error {
	if err := a.store.AppendActivity(ctx, e); err != nil {
		return err
	}
	a.log.Debug("activity recorded", logx.String("kind", string(e.Kind)))
	return nil
}

// eventLoop records delivery-side activity: a fired trigger or movement
// reminder becomes a ReminderTriggered log entry, and a fired check-in
// re-arms next week's slot.
func (a *App) eventLoop(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Type != eventbus.GatewayFired {
				continue
			}
			del, ok := e.Data.(local.Delivery)
			if !ok {
				continue
			}
			a.onFired(ctx, del)
		}
	}
}

func (a *App) onFired(ctx context.Context, del local.Delivery) {
	if del.ID == checkin.Identifier {
		if err := a.checkin.ScheduleNext(ctx, del.FiredAt); err != nil {
			a.log.Warn("check-in re-arm failed", logx.Err(err))
		}
		return
	}

	entry := domain.NewActivityEntry(domain.ActivityReminderTriggered, del.FiredAt, 0)
	if err := a.store.AppendActivity(ctx, entry); err != nil {
		a.log.Warn("failed to record fired reminder", logx.Err(err))
		return
	}
	if tid := del.Content.Meta[triggers.MetaTriggerID]; tid != "" {
		a.log.Debug("trigger fired",
			logx.String("trigger", tid),
			logx.String("type", del.Content.Meta[triggers.MetaTriggerType]))
	}
}

// evaluateLoop is the single goroutine that runs the reminder engines.
// Everything scheduling-related funnels through here, so engine passes
// never race each other.
func (a *App) evaluateLoop(ctx context.Context) {
	a.evaluate(ctx, time.Now())

	for {
		a.smu.Lock()
		every := a.settings.evaluateEvery
		a.smu.Unlock()

		t := time.NewTimer(every)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-a.poke:
			t.Stop()
		case <-t.C:
		}
		a.evaluate(ctx, time.Now())
	}
}

func (a *App) evaluate(ctx context.Context, now time.Time) {
	prefs := a.Preferences()

	logs, err := a.store.RecentActivity(ctx, activityFetchLimit)
	if err != nil {
		a.log.Warn("activity load failed", logx.Err(err))
		return
	}

	if logged, err := a.monitor.DetectAndLogInactivity(ctx, logs, prefs, now); err != nil {
		a.log.Warn("inactivity detection failed", logx.Err(err))
	} else if logged {
		logs = append(logs, domain.NewActivityEntry(domain.ActivityInactivityDetected, now, 0))
	}

	if err := a.monitor.CheckAndSchedule(ctx, logs, prefs, now); err != nil {
		a.log.Warn("movement reminder pass failed", logx.Err(err))
	}

	routines, err := a.store.Routines(ctx)
	if err != nil {
		a.log.Warn("routine load failed", logx.Err(err))
		return
	}
	exercises, err := a.store.Exercises(ctx)
	if err != nil {
		a.log.Warn("exercise load failed", logx.Err(err))
		return
	}
	a.trig.UpdateData(routines, exercises, logs)
	if err := a.trig.ScheduleAll(ctx, now); err != nil && !errors.Is(err, triggers.ErrBusy) {
		a.log.Warn("trigger pass failed", logx.Err(err))
	}

	a.pruneActivity(ctx, now)
}

// pruneActivity trims old log entries at most once an hour.
func (a *App) pruneActivity(ctx context.Context, now time.Time) {
	a.smu.Lock()
	retention := a.settings.retention
	due := retention > 0 && now.Sub(a.lastPrune) >= time.Hour
	if due {
		a.lastPrune = now
	}
	a.smu.Unlock()
	if !due {
		return
	}

	dropped, err := a.store.PruneActivity(ctx, now.Add(-retention))
	if err != nil {
		a.log.Warn("activity prune failed", logx.Err(err))
		return
	}
	if dropped > 0 {
		a.log.Info("activity log pruned", logx.Int("dropped", dropped))
	}
}

// reloadLoop applies hot config changes. Sections that can't change live
// (gateway, storage, telegram) only log a restart hint.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				lastApplied = newCfg
				continue
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config change summary", fields...)
			lastApplied = newCfg

			a.applyConfig(ctx, newCfg, sections)
		}
	}
}

func (a *App) applyConfig(ctx context.Context, cfg *config.Config, sections []string) {
	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLoggingConfig(cfg))

		case "notifier":
			ncfg, err := mapNotifierConfig(cfg)
			if err != nil {
				a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
				continue
			}
			a.notif.Apply(ncfg)

		case "reminder":
			settings, err := mapReminderSettings(cfg)
			if err != nil {
				a.log.Warn("invalid reminder config; keeping previous", logx.Err(err))
				continue
			}
			prefs, err := mapPreferences(cfg, time.Now())
			if err != nil {
				a.log.Warn("invalid reminder times; keeping previous", logx.Err(err))
				continue
			}
			if err := a.store.PutPreferences(ctx, prefs); err != nil {
				a.log.Warn("failed to persist preferences", logx.Err(err))
			}
			a.smu.Lock()
			a.settings = settings
			a.prefs = prefs
			a.smu.Unlock()
			a.Poke()

		case "gateway", "storage", "telegram":
			a.log.Warn("config section changed; restart required for changes to take effect",
				logx.String("section", s))
		}
	}
}
