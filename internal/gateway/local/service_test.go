package local

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movebot/internal/gateway"
	"movebot/pkg/logx"
)

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []Delivery
	fired     chan string
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{fired: make(chan string, 16)}
}

func (f *fakeDeliverer) Ready(ctx context.Context) error { return nil }

func (f *fakeDeliverer) Deliver(ctx context.Context, d Delivery) error {
	f.mu.Lock()
	f.delivered = append(f.delivered, d)
	f.mu.Unlock()
	f.fired <- d.ID
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeDeliverer) {
	t.Helper()
	fd := newFakeDeliverer()
	svc := New(Config{Enabled: true}, fd, logx.Nop(), nil)
	svc.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		svc.Stop(ctx)
	})
	return svc, fd
}

func pendingIDs(t *testing.T, svc *Service) map[string]gateway.Pending {
	t.Helper()
	items, err := svc.ListPending(context.Background())
	require.NoError(t, err)
	out := map[string]gateway.Pending{}
	for _, p := range items {
		out[p.ID] = p
	}
	return out
}

func TestScheduleUpsertReplacesPending(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	require.NoError(t, svc.Schedule(ctx, "trig-1", gateway.Content{Title: "a"}, gateway.OneShot{At: future}))
	require.NoError(t, svc.Schedule(ctx, "trig-1", gateway.Content{Title: "b"}, gateway.OneShot{At: future.Add(time.Hour)}))

	got := pendingIDs(t, svc)
	require.Len(t, got, 1)
	assert.WithinDuration(t, future.Add(time.Hour), got["trig-1"].NextFire, time.Second)
}

func TestScheduleUpsertAcrossPools(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Schedule(ctx, "trig-2", gateway.Content{}, gateway.DailyCalendar{Hour: 9, Minute: 30}))
	require.NoError(t, svc.Schedule(ctx, "trig-2", gateway.Content{}, gateway.OneShot{At: time.Now().Add(time.Hour)}))

	got := pendingIDs(t, svc)
	require.Len(t, got, 1)
	_, isOneShot := got["trig-2"].Rule.(gateway.OneShot)
	assert.True(t, isOneShot)
}

func TestCancelPending(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Schedule(ctx, "a", gateway.Content{}, gateway.DailyCalendar{Hour: 7}))
	require.NoError(t, svc.Schedule(ctx, "b", gateway.Content{}, gateway.OneShot{At: time.Now().Add(time.Hour)}))

	svc.CancelPending(ctx, "a", "b", "missing")
	assert.Empty(t, pendingIDs(t, svc))
}

func TestOneShotFiresAndLeavesPending(t *testing.T) {
	svc, fd := newTestService(t)
	ctx := context.Background()

	meta := map[string]string{"triggerID": "x"}
	require.NoError(t, svc.Schedule(ctx, "soon", gateway.Content{Title: "Move", Meta: meta}, gateway.OneShot{At: time.Now()}))

	select {
	case id := <-fd.fired:
		assert.Equal(t, "soon", id)
	case <-time.After(2 * time.Second):
		t.Fatal("one-shot did not fire")
	}

	assert.Empty(t, pendingIDs(t, svc))
	hist := svc.Delivered()
	require.Len(t, hist, 1)
	assert.Equal(t, "soon", hist[0].ID)

	// CancelAll also forgets delivered history.
	svc.CancelAll(ctx, "soon")
	assert.Empty(t, svc.Delivered())
}

func TestReplacedOneShotDoesNotFireTwice(t *testing.T) {
	svc, fd := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Schedule(ctx, "r", gateway.Content{}, gateway.OneShot{At: time.Now().Add(20 * time.Millisecond)}))
	// Replace before the first timer fires; only the replacement may fire.
	require.NoError(t, svc.Schedule(ctx, "r", gateway.Content{}, gateway.OneShot{At: time.Now().Add(60 * time.Millisecond)}))

	select {
	case <-fd.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement one-shot did not fire")
	}
	select {
	case <-fd.fired:
		t.Fatal("stale timer fired after replacement")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDailyCalendarPendingHasNextFire(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Schedule(ctx, "daily", gateway.Content{}, gateway.DailyCalendar{Hour: 6, Minute: 15}))
	got := pendingIDs(t, svc)
	require.Contains(t, got, "daily")
	next := got["daily"].NextFire
	require.False(t, next.IsZero())
	assert.Equal(t, 6, next.Hour())
	assert.Equal(t, 15, next.Minute())
}

func TestScheduleValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.Error(t, svc.Schedule(ctx, "", gateway.Content{}, gateway.OneShot{At: time.Now()}))
	assert.Error(t, svc.Schedule(ctx, "x", gateway.Content{}, gateway.OneShot{}))
	assert.Error(t, svc.Schedule(ctx, "x", gateway.Content{}, gateway.Repeating{}))
	assert.Error(t, svc.Schedule(ctx, "x", gateway.Content{}, gateway.DailyCalendar{Hour: 25}))
}
