// Package triggers evaluates routine triggers against the current state
// snapshot and keeps the notification gateway in sync with them.
//
// The engine never schedules from stale data: callers push whole snapshots
// via UpdateData, and each ScheduleAll run reconciles pending requests
// against the snapshot before evaluating triggers. Identifier reuse at the
// gateway makes the whole pass idempotent.
package triggers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"movebot/internal/domain"
	"movebot/internal/gateway"
	"movebot/internal/health"
	"movebot/pkg/logx"
)

// ThreadKeyPrefix groups trigger notifications per trigger at delivery.
const ThreadKeyPrefix = "trigger-"

// Metadata keys carried on every trigger notification.
const (
	MetaTriggerID   = "triggerID"
	MetaTriggerType = "triggerType"
)

// ErrBusy means a scheduling pass is already running; the caller should
// retry on its next tick instead of stacking passes.
var ErrBusy = errors.New("trigger scheduling already in progress")

// standHourMinimum is the stand time (in hours) under which a stand-hour
// trigger fires.
const standHourMinimum = 1.0

// ErrorFunc receives per-trigger scheduling failures. One bad trigger
// never aborts the pass.
type ErrorFunc func(triggerID uuid.UUID, err error)

type Engine struct {
	gw      gateway.Gateway
	hp      health.Provider
	log     logx.Logger
	onError ErrorFunc

	// Identifiers owned by other engines; reconciliation must not touch
	// them.
	protected map[string]struct{}

	mu        sync.Mutex
	routines  []domain.Routine
	exercises map[uuid.UUID]domain.Exercise
	logs      []domain.ActivityLogEntry

	healthAuthRequested bool
	healthAuthorized    bool

	inFlight bool
}

func New(gw gateway.Gateway, hp health.Provider, protected []string, log logx.Logger) *Engine {
	if hp == nil {
		hp = health.Unavailable()
	}
	prot := make(map[string]struct{}, len(protected))
	for _, id := range protected {
		prot[id] = struct{}{}
	}
	return &Engine{
		gw:        gw,
		hp:        hp,
		log:       log,
		protected: prot,
		exercises: map[uuid.UUID]domain.Exercise{},
	}
}

// SetErrorHandler installs the per-trigger failure callback. Call before
// the first ScheduleAll.
func (e *Engine) SetErrorHandler(fn ErrorFunc) {
	e.mu.Lock()
	e.onError = fn
	e.mu.Unlock()
}

// UpdateData replaces the engine's working snapshot wholesale. It never
// schedules by itself; the next ScheduleAll picks the new data up.
func (e *Engine) UpdateData(routines []domain.Routine, exercises []domain.Exercise, logs []domain.ActivityLogEntry) {
	ex := make(map[uuid.UUID]domain.Exercise, len(exercises))
	for _, x := range exercises {
		ex[x.ID] = x
	}
	e.mu.Lock()
	e.routines = append([]domain.Routine(nil), routines...)
	e.exercises = ex
	e.logs = append([]domain.ActivityLogEntry(nil), logs...)
	e.mu.Unlock()
}

// HealthAuthorized reports whether the health source granted read access.
func (e *Engine) HealthAuthorized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthAuthorized
}

// ScheduleAll runs one full evaluation pass: reconcile the gateway's
// pending set against the snapshot, then evaluate every trigger of every
// active routine. Returns ErrBusy when a pass is still running.
func (e *Engine) ScheduleAll(ctx context.Context, now time.Time) error {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return ErrBusy
	}
	e.inFlight = true
	routines := e.routines
	logs := e.logs
	authorized := e.healthAuthorized
	onError := e.onError
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.inFlight = false
		e.mu.Unlock()
	}()

	type item struct {
		trigger domain.Trigger
		routine domain.Routine
		rule    domain.Rule
	}
	desired := map[string]struct{}{}
	var items []item
	needsHealth := false
	for _, r := range routines {
		if !r.Active {
			continue
		}
		for _, t := range r.Triggers {
			desired[t.ID.String()] = struct{}{}
			rule, ok := t.Rule()
			if !ok {
				e.log.Debug("skipping inert trigger",
					logx.String("trigger", t.ID.String()), logx.String("type", string(t.Type)))
				continue
			}
			if _, isStand := rule.(domain.StandHourRule); isStand {
				needsHealth = true
			}
			items = append(items, item{trigger: t, routine: r, rule: rule})
		}
	}

	// Permission prompts are user-visible; only ask when a stand-hour
	// trigger actually needs the data.
	if needsHealth {
		e.requestHealthAuth(ctx)
	}

	pending, err := e.gw.ListPending(ctx)
	if err != nil {
		return err
	}
	if toCancel := Reconcile(desired, pending, e.protected); len(toCancel) > 0 {
		e.gw.CancelPending(ctx, toCancel...)
		e.log.Debug("canceled stale trigger notifications", logx.Int("count", len(toCancel)))
	}

	for _, it := range items {
		if err := e.dispatch(ctx, it.trigger, it.routine, it.rule, logs, authorized, now); err != nil {
			e.log.Warn("trigger scheduling failed",
				logx.String("trigger", it.trigger.ID.String()), logx.Err(err))
			if onError != nil {
				onError(it.trigger.ID, err)
			}
		}
	}
	return nil
}

func (e *Engine) dispatch(ctx context.Context, t domain.Trigger, r domain.Routine, rule domain.Rule, logs []domain.ActivityLogEntry, authorized bool, now time.Time) error {
	content := e.content(t, r)
	id := t.ID.String()

	switch rl := rule.(type) {
	case domain.TimeRecurringRule:
		return e.gw.Schedule(ctx, id, content, gateway.DailyCalendar{Hour: rl.Hour, Minute: rl.Minute})

	case domain.InactivityRule:
		// No app-open history counts as infinite elapsed time, so the
		// trigger fires. The notifier's dedup window keeps repeated passes
		// from reaching the user more than once.
		if last, ok := lastAppOpen(logs); ok && now.Sub(last) <= rl.Threshold {
			return nil
		}
		return e.gw.Schedule(ctx, id, content, gateway.OneShot{At: now.Add(time.Second)})

	case domain.StandHourRule:
		if !authorized || !e.hp.Available() {
			return nil
		}
		e.evaluateStandHour(ctx, id, content, t, rl, now)
		return nil

	case domain.ReservedRule:
		return nil

	default:
		return nil
	}
}

// evaluateStandHour queries the health source off the scheduling pass;
// the query can take long enough that blocking the pass on it would starve
// the other triggers.
func (e *Engine) evaluateStandHour(ctx context.Context, id string, content gateway.Content, t domain.Trigger, rule domain.StandHourRule, now time.Time) {
	e.mu.Lock()
	onError := e.onError
	e.mu.Unlock()

	go func() {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()

		stood, err := e.hp.CumulativeStandTime(qctx, now.Add(-rule.Window), now)
		if err != nil {
			e.log.Debug("stand time query failed", logx.String("trigger", id), logx.Err(err))
			if onError != nil {
				onError(t.ID, err)
			}
			return
		}
		if stood >= standHourMinimum {
			return
		}
		if err := e.gw.Schedule(qctx, id, content, gateway.OneShot{At: now.Add(time.Second)}); err != nil {
			e.log.Warn("stand-hour trigger scheduling failed", logx.String("trigger", id), logx.Err(err))
			if onError != nil {
				onError(t.ID, err)
			}
		}
	}()
}

// requestHealthAuth fires the one-time authorization request. The grant
// flag flips only from the request's own callback, never optimistically.
func (e *Engine) requestHealthAuth(ctx context.Context) {
	e.mu.Lock()
	if e.healthAuthRequested || !e.hp.Available() {
		e.mu.Unlock()
		return
	}
	e.healthAuthRequested = true
	e.mu.Unlock()

	go func() {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()
		granted, err := e.hp.RequestAuthorization(actx, health.ReadStandTime)
		if err != nil {
			e.log.Debug("health authorization request failed", logx.Err(err))
			return
		}
		e.mu.Lock()
		e.healthAuthorized = granted
		e.mu.Unlock()
		e.log.Info("health authorization resolved", logx.Bool("granted", granted))
	}()
}

func (e *Engine) content(t domain.Trigger, r domain.Routine) gateway.Content {
	title := r.Name
	if title == "" {
		title = "Time to Move"
	}
	body := "Time for a quick movement break!"
	if t.ExerciseID != nil {
		if ex, ok := e.lookupExercise(*t.ExerciseID); ok && ex.Name != "" {
			body = "Let's do " + ex.Name + "!"
		}
	}
	return gateway.Content{
		Title:     title,
		Body:      body,
		ThreadKey: ThreadKeyPrefix + t.ID.String(),
		Meta: map[string]string{
			MetaTriggerID:   t.ID.String(),
			MetaTriggerType: string(t.Type),
		},
	}
}

func (e *Engine) lookupExercise(id uuid.UUID) (domain.Exercise, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ex, ok := e.exercises[id]
	return ex, ok
}

func lastAppOpen(logs []domain.ActivityLogEntry) (time.Time, bool) {
	var last time.Time
	found := false
	for _, e := range logs {
		if e.Kind != domain.ActivityAppOpen {
			continue
		}
		if !found || e.At.After(last) {
			last = e.At
			found = true
		}
	}
	return last, found
}
