package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movebot/internal/domain"
	"movebot/pkg/logx"
)

func openTestFileStore(t *testing.T, path string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	return st
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "movebot.db")

	st := openTestFileStore(t, path)

	ex := domain.Exercise{ID: uuid.New(), Name: "Squats"}
	require.NoError(t, st.PutExercise(ctx, ex))

	routine := domain.Routine{
		ID:     uuid.New(),
		Name:   "Desk Break",
		Active: true,
		Triggers: []domain.Trigger{{
			ID:     uuid.New(),
			Type:   domain.TriggerTimeRecurring,
			Params: map[string]string{"hour": "9", "minute": "30"},
		}},
	}
	require.NoError(t, st.PutRoutine(ctx, routine))

	prefs := domain.DefaultPreferences(time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, st.PutPreferences(ctx, prefs))

	entry := domain.NewActivityEntry(domain.ActivityAppOpen, time.Now().UTC(), 0)
	require.NoError(t, st.AppendActivity(ctx, entry))

	require.NoError(t, st.Close())

	// Everything must survive a reopen.
	st = openTestFileStore(t, path)
	defer st.Close()

	routines, err := st.Routines(ctx)
	require.NoError(t, err)
	require.Len(t, routines, 1)
	assert.Equal(t, routine.ID, routines[0].ID)
	require.Len(t, routines[0].Triggers, 1)
	assert.Equal(t, domain.TriggerTimeRecurring, routines[0].Triggers[0].Type)

	exercises, err := st.Exercises(ctx)
	require.NoError(t, err)
	require.Len(t, exercises, 1)
	assert.Equal(t, "Squats", exercises[0].Name)

	got, ok, err := st.Preferences(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, prefs.IntervalMinutes, got.IntervalMinutes)

	activity, err := st.RecentActivity(ctx, 0)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, entry.ID, activity[0].ID)
}

func TestFileStoreDeleteRoutine(t *testing.T) {
	ctx := context.Background()
	st := openTestFileStore(t, filepath.Join(t.TempDir(), "movebot.db"))
	defer st.Close()

	r := domain.Routine{ID: uuid.New(), Name: "Gone Soon"}
	require.NoError(t, st.PutRoutine(ctx, r))
	require.NoError(t, st.DeleteRoutine(ctx, r.ID))

	routines, err := st.Routines(ctx)
	require.NoError(t, err)
	assert.Empty(t, routines)
}

func TestFileStorePruneActivity(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "movebot.db")
	st := openTestFileStore(t, path)

	now := time.Now().UTC()
	old := domain.NewActivityEntry(domain.ActivityAppOpen, now.Add(-48*time.Hour), 0)
	fresh := domain.NewActivityEntry(domain.ActivityExerciseComplete, now, 0)
	require.NoError(t, st.AppendActivity(ctx, old))
	require.NoError(t, st.AppendActivity(ctx, fresh))

	dropped, err := st.PruneActivity(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)

	require.NoError(t, st.Close())

	// The compacted file must only contain the fresh entry.
	st = openTestFileStore(t, path)
	defer st.Close()
	activity, err := st.RecentActivity(ctx, 0)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, fresh.ID, activity[0].ID)
}

func TestRecentActivityOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	st, err := Open(Config{}, logx.Nop()) // memory driver
	require.NoError(t, err)

	now := time.Now()
	for i := 0; i < 5; i++ {
		e := domain.NewActivityEntry(domain.ActivityAppOpen, now.Add(time.Duration(i)*time.Minute), 0)
		require.NoError(t, st.AppendActivity(ctx, e))
	}

	got, err := st.RecentActivity(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].At.After(got[1].At))
	assert.True(t, got[1].At.After(got[2].At))
}
