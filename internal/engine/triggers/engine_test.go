package triggers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movebot/internal/domain"
	"movebot/internal/gateway"
	"movebot/pkg/logx"
)

type fakeGateway struct {
	mu        sync.Mutex
	scheduled map[string]gateway.FireRule
	canceled  []string

	// When set, ListPending blocks until the channel closes.
	listGate chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{scheduled: map[string]gateway.FireRule{}}
}

func (f *fakeGateway) RequestAuthorization(ctx context.Context) (bool, error) { return true, nil }

func (f *fakeGateway) Schedule(ctx context.Context, id string, content gateway.Content, rule gateway.FireRule) error {
	f.mu.Lock()
	f.scheduled[id] = rule
	f.mu.Unlock()
	return nil
}

func (f *fakeGateway) CancelPending(ctx context.Context, ids ...string) {
	f.mu.Lock()
	for _, id := range ids {
		delete(f.scheduled, id)
		f.canceled = append(f.canceled, id)
	}
	f.mu.Unlock()
}

func (f *fakeGateway) CancelAll(ctx context.Context, ids ...string) { f.CancelPending(ctx, ids...) }

func (f *fakeGateway) ListPending(ctx context.Context) ([]gateway.Pending, error) {
	f.mu.Lock()
	gate := f.listGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []gateway.Pending
	for id, rule := range f.scheduled {
		out = append(out, gateway.Pending{ID: id, Rule: rule})
	}
	return out, nil
}

func (f *fakeGateway) rule(id string) (gateway.FireRule, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.scheduled[id]
	return r, ok
}

type fakeHealth struct {
	mu        sync.Mutex
	available bool
	grant     bool
	standTime float64
	queried   int
	authCalls int
}

func (h *fakeHealth) Available() bool { return h.available }

func (h *fakeHealth) RequestAuthorization(ctx context.Context, readTypes ...string) (bool, error) {
	h.mu.Lock()
	h.authCalls++
	h.mu.Unlock()
	return h.grant, nil
}

func (h *fakeHealth) CumulativeStandTime(ctx context.Context, from, to time.Time) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queried++
	return h.standTime, nil
}

func timeTrigger(hour, minute int) domain.Trigger {
	return domain.Trigger{
		ID:   uuid.New(),
		Type: domain.TriggerTimeRecurring,
		Params: map[string]string{
			"hour":   fmt.Sprintf("%d", hour),
			"minute": fmt.Sprintf("%d", minute),
		},
	}
}

func inactivityTrigger(minutes int) domain.Trigger {
	return domain.Trigger{
		ID:     uuid.New(),
		Type:   domain.TriggerInactivityMinutes,
		Params: map[string]string{"minutes": fmt.Sprintf("%d", minutes)},
	}
}

func activeRoutine(name string, ts ...domain.Trigger) domain.Routine {
	return domain.Routine{ID: uuid.New(), Name: name, Active: true, Triggers: ts}
}

func TestReconcileKeepsDesiredAndProtected(t *testing.T) {
	desired := map[string]struct{}{"a": {}, "b": {}}
	protected := map[string]struct{}{"keep-me": {}}
	pending := []gateway.Pending{
		{ID: "a"}, {ID: "stale-1"}, {ID: "keep-me"}, {ID: "stale-2"}, {ID: "b"},
	}

	toCancel := Reconcile(desired, pending, protected)
	assert.Equal(t, []string{"stale-1", "stale-2"}, toCancel)

	// Invariant: every canceled id was pending, and no desired or
	// protected id is ever canceled.
	pendingSet := map[string]struct{}{}
	for _, p := range pending {
		pendingSet[p.ID] = struct{}{}
	}
	for _, id := range toCancel {
		_, wasPending := pendingSet[id]
		assert.True(t, wasPending)
		_, isDesired := desired[id]
		assert.False(t, isDesired)
		_, isProtected := protected[id]
		assert.False(t, isProtected)
	}
}

func TestReconcileEmptyInputs(t *testing.T) {
	assert.Empty(t, Reconcile(nil, nil, nil))
	assert.Equal(t, []string{"x"}, Reconcile(nil, []gateway.Pending{{ID: "x"}}, nil))
	assert.Empty(t, Reconcile(map[string]struct{}{"x": {}}, []gateway.Pending{{ID: "x"}}, nil))
}

func TestTimeRecurringSchedulesDailyCalendar(t *testing.T) {
	gw := newFakeGateway()
	e := New(gw, nil, nil, logx.Nop())

	trig := timeTrigger(9, 30)
	e.UpdateData([]domain.Routine{activeRoutine("Morning Stretch", trig)}, nil, nil)

	require.NoError(t, e.ScheduleAll(context.Background(), time.Now()))

	rule, ok := gw.rule(trig.ID.String())
	require.True(t, ok)
	assert.Equal(t, gateway.DailyCalendar{Hour: 9, Minute: 30}, rule)
}

func TestInactivityTriggerThreshold(t *testing.T) {
	now := time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)
	trig := inactivityTrigger(30)
	routine := activeRoutine("Desk Break", trig)

	open := func(ago time.Duration) []domain.ActivityLogEntry {
		return []domain.ActivityLogEntry{
			domain.NewActivityEntry(domain.ActivityAppOpen, now.Add(-ago), 0),
		}
	}

	// 31 minutes since last app open: past the threshold, fires soon.
	gw := newFakeGateway()
	e := New(gw, nil, nil, logx.Nop())
	e.UpdateData([]domain.Routine{routine}, nil, open(31*time.Minute))
	require.NoError(t, e.ScheduleAll(context.Background(), now))
	rule, ok := gw.rule(trig.ID.String())
	require.True(t, ok)
	assert.Equal(t, gateway.OneShot{At: now.Add(time.Second)}, rule)

	// 10 minutes since last app open: nothing scheduled.
	gw = newFakeGateway()
	e = New(gw, nil, nil, logx.Nop())
	e.UpdateData([]domain.Routine{routine}, nil, open(10*time.Minute))
	require.NoError(t, e.ScheduleAll(context.Background(), now))
	_, ok = gw.rule(trig.ID.String())
	assert.False(t, ok)

	// No app-open history at all: elapsed is effectively infinite, which
	// exceeds any threshold, so the trigger fires.
	gw = newFakeGateway()
	e = New(gw, nil, nil, logx.Nop())
	e.UpdateData([]domain.Routine{routine}, nil, nil)
	require.NoError(t, e.ScheduleAll(context.Background(), now))
	rule, ok = gw.rule(trig.ID.String())
	require.True(t, ok)
	assert.Equal(t, gateway.OneShot{At: now.Add(time.Second)}, rule)
}

func TestScheduleAllCancelsRemovedTriggers(t *testing.T) {
	gw := newFakeGateway()
	e := New(gw, nil, []string{"movement-reminder-repeating"}, logx.Nop())

	kept := timeTrigger(8, 0)
	e.UpdateData([]domain.Routine{activeRoutine("Keep", kept)}, nil, nil)

	// Leftovers from a previous snapshot, plus a protected id.
	gw.scheduled["dead-trigger"] = gateway.DailyCalendar{Hour: 7}
	gw.scheduled["movement-reminder-repeating"] = gateway.OneShot{}

	require.NoError(t, e.ScheduleAll(context.Background(), time.Now()))

	_, ok := gw.rule("dead-trigger")
	assert.False(t, ok)
	_, ok = gw.rule("movement-reminder-repeating")
	assert.True(t, ok)
	_, ok = gw.rule(kept.ID.String())
	assert.True(t, ok)
}

func TestInactiveRoutineTriggersAreCanceled(t *testing.T) {
	gw := newFakeGateway()
	e := New(gw, nil, nil, logx.Nop())

	trig := timeTrigger(8, 0)
	routine := activeRoutine("Toggle", trig)

	e.UpdateData([]domain.Routine{routine}, nil, nil)
	require.NoError(t, e.ScheduleAll(context.Background(), time.Now()))
	_, ok := gw.rule(trig.ID.String())
	require.True(t, ok)

	routine.Active = false
	e.UpdateData([]domain.Routine{routine}, nil, nil)
	require.NoError(t, e.ScheduleAll(context.Background(), time.Now()))
	_, ok = gw.rule(trig.ID.String())
	assert.False(t, ok)
}

func TestInertTriggerIsSkippedButNotCanceled(t *testing.T) {
	gw := newFakeGateway()
	e := New(gw, nil, nil, logx.Nop())

	inert := domain.Trigger{ID: uuid.New(), Type: domain.TriggerTimeRecurring,
		Params: map[string]string{"hour": "not-a-number"}}
	e.UpdateData([]domain.Routine{activeRoutine("Broken", inert)}, nil, nil)

	require.NoError(t, e.ScheduleAll(context.Background(), time.Now()))
	_, ok := gw.rule(inert.ID.String())
	assert.False(t, ok)
	assert.Empty(t, gw.canceled)
}

func TestScheduleAllBusy(t *testing.T) {
	gw := newFakeGateway()
	gw.listGate = make(chan struct{})
	e := New(gw, nil, nil, logx.Nop())

	done := make(chan error, 1)
	go func() { done <- e.ScheduleAll(context.Background(), time.Now()) }()

	// The first pass is parked inside ListPending; a second pass must
	// bounce instead of queueing.
	require.Eventually(t, func() bool {
		return e.ScheduleAll(context.Background(), time.Now()) == ErrBusy
	}, 2*time.Second, 10*time.Millisecond)

	close(gw.listGate)
	require.NoError(t, <-done)
}

func TestStandHourTrigger(t *testing.T) {
	gw := newFakeGateway()
	hp := &fakeHealth{available: true, grant: true, standTime: 0.2}
	e := New(gw, hp, nil, logx.Nop())

	trig := domain.Trigger{ID: uuid.New(), Type: domain.TriggerHealthNoStandHour,
		Params: map[string]string{"thresholdHours": "2"}}
	e.UpdateData([]domain.Routine{activeRoutine("Stand Up", trig)}, nil, nil)

	now := time.Now()

	// First pass fires the async authorization request; the trigger can't
	// evaluate yet because the grant hasn't landed.
	require.NoError(t, e.ScheduleAll(context.Background(), now))
	require.Eventually(t, e.HealthAuthorized, 2*time.Second, 10*time.Millisecond)

	// Second pass queries stand time (0.2h < 1h) and schedules.
	require.NoError(t, e.ScheduleAll(context.Background(), now))
	require.Eventually(t, func() bool {
		_, ok := gw.rule(trig.ID.String())
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	rule, _ := gw.rule(trig.ID.String())
	assert.Equal(t, gateway.OneShot{At: now.Add(time.Second)}, rule)
}

func TestHealthAuthRequestedOnlyWhenNeeded(t *testing.T) {
	gw := newFakeGateway()
	hp := &fakeHealth{available: true, grant: true}
	e := New(gw, hp, nil, logx.Nop())

	// No stand-hour trigger anywhere: an available provider alone must not
	// prompt the user for permission.
	e.UpdateData([]domain.Routine{activeRoutine("Morning Stretch", timeTrigger(8, 0))}, nil, nil)
	require.NoError(t, e.ScheduleAll(context.Background(), time.Now()))

	e.mu.Lock()
	requested := e.healthAuthRequested
	e.mu.Unlock()
	assert.False(t, requested)

	// Adding a stand-hour trigger makes the next pass ask, exactly once.
	stand := domain.Trigger{ID: uuid.New(), Type: domain.TriggerHealthNoStandHour,
		Params: map[string]string{"thresholdHours": "2"}}
	e.UpdateData([]domain.Routine{
		activeRoutine("Morning Stretch", timeTrigger(8, 0)),
		activeRoutine("Stand Up", stand),
	}, nil, nil)
	require.NoError(t, e.ScheduleAll(context.Background(), time.Now()))
	require.Eventually(t, e.HealthAuthorized, 2*time.Second, 10*time.Millisecond)

	hp.mu.Lock()
	calls := hp.authCalls
	hp.mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestStandHourSufficientStandTime(t *testing.T) {
	gw := newFakeGateway()
	hp := &fakeHealth{available: true, grant: true, standTime: 3}
	e := New(gw, hp, nil, logx.Nop())

	trig := domain.Trigger{ID: uuid.New(), Type: domain.TriggerHealthNoStandHour,
		Params: map[string]string{"thresholdHours": "2"}}
	e.UpdateData([]domain.Routine{activeRoutine("Stand Up", trig)}, nil, nil)

	require.NoError(t, e.ScheduleAll(context.Background(), time.Now()))
	require.Eventually(t, e.HealthAuthorized, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, e.ScheduleAll(context.Background(), time.Now()))

	require.Eventually(t, func() bool {
		hp.mu.Lock()
		defer hp.mu.Unlock()
		return hp.queried > 0
	}, 2*time.Second, 10*time.Millisecond)

	_, ok := gw.rule(trig.ID.String())
	assert.False(t, ok)
}

func TestContentUsesExerciseName(t *testing.T) {
	gw := newFakeGateway()
	e := New(gw, nil, nil, logx.Nop())

	squats := domain.Exercise{ID: uuid.New(), Name: "Squats"}
	trig := timeTrigger(9, 0)
	trig.ExerciseID = &squats.ID
	e.UpdateData([]domain.Routine{activeRoutine("Leg Day", trig)}, []domain.Exercise{squats}, nil)

	c := e.content(trig, activeRoutine("Leg Day", trig))
	assert.Equal(t, "Leg Day", c.Title)
	assert.Equal(t, "Let's do Squats!", c.Body)
	assert.Equal(t, "trigger-"+trig.ID.String(), c.ThreadKey)
	assert.Equal(t, trig.ID.String(), c.Meta["triggerID"])
	assert.Equal(t, "time_recurring", c.Meta["triggerType"])
}

func TestContentFallbacks(t *testing.T) {
	e := New(newFakeGateway(), nil, nil, logx.Nop())
	trig := timeTrigger(9, 0)

	c := e.content(trig, domain.Routine{Triggers: []domain.Trigger{trig}})
	assert.Equal(t, "Time to Move", c.Title)
	assert.Equal(t, "Time for a quick movement break!", c.Body)
}
