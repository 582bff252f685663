package checkin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movebot/internal/gateway"
	"movebot/pkg/logx"
)

type recordingGateway struct {
	scheduled       map[string]gateway.FireRule
	canceled        []string
	pendingCanceled []string
}

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{scheduled: map[string]gateway.FireRule{}}
}

func (g *recordingGateway) RequestAuthorization(ctx context.Context) (bool, error) {
	return true, nil
}

func (g *recordingGateway) Schedule(ctx context.Context, id string, content gateway.Content, rule gateway.FireRule) error {
	g.scheduled[id] = rule
	return nil
}

func (g *recordingGateway) CancelPending(ctx context.Context, ids ...string) {
	g.pendingCanceled = append(g.pendingCanceled, ids...)
	for _, id := range ids {
		delete(g.scheduled, id)
	}
}

func (g *recordingGateway) CancelAll(ctx context.Context, ids ...string) {
	g.canceled = append(g.canceled, ids...)
	g.CancelPending(ctx, ids...)
}

func (g *recordingGateway) ListPending(ctx context.Context) ([]gateway.Pending, error) {
	return nil, nil
}

func TestScheduleNextLandsOnMonday(t *testing.T) {
	gw := newRecordingGateway()
	s := New(context.Background(), gw, Config{}, logx.Nop())

	// Wednesday 2025-06-18 → Monday 2025-06-23 10:00.
	now := time.Date(2025, 6, 18, 15, 0, 0, 0, time.UTC)
	require.NoError(t, s.ScheduleNext(context.Background(), now))

	rule, ok := gw.scheduled[Identifier].(gateway.CalendarDate)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 6, 23, 10, 0, 0, 0, time.UTC), rule.At)

	// Each scheduling pass clears the slot before re-arming it.
	assert.Equal(t, []string{Identifier}, gw.pendingCanceled)
}

func TestScheduleNextMondayPastSlot(t *testing.T) {
	gw := newRecordingGateway()
	s := New(context.Background(), gw, Config{Hour: 9}, logx.Nop())

	// Monday 2025-06-16 at 09:30: today's slot is gone, go a week out.
	now := time.Date(2025, 6, 16, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.ScheduleNext(context.Background(), now))

	rule := gw.scheduled[Identifier].(gateway.CalendarDate)
	assert.Equal(t, time.Date(2025, 6, 23, 9, 0, 0, 0, time.UTC), rule.At)
}

func TestOnCompletedClearsAndRearms(t *testing.T) {
	gw := newRecordingGateway()
	s := New(context.Background(), gw, Config{}, logx.Nop())

	now := time.Date(2025, 6, 16, 11, 0, 0, 0, time.UTC) // Monday after 10:00
	require.NoError(t, s.OnCompleted(context.Background(), now))

	assert.Equal(t, []string{Identifier}, gw.canceled)
	rule := gw.scheduled[Identifier].(gateway.CalendarDate)
	assert.Equal(t, time.Date(2025, 6, 23, 10, 0, 0, 0, time.UTC), rule.At)
}
