package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"movebot/internal/domain"
)

// memStore keeps everything in process memory. Used when persistence is
// not configured, and by tests.
type memStore struct {
	mu        sync.Mutex
	closed    bool
	routines  map[uuid.UUID]domain.Routine
	exercises map[uuid.UUID]domain.Exercise
	activity  []domain.ActivityLogEntry
	prefs     *domain.UserPreferences
}

func newMemStore() *memStore {
	return &memStore{
		routines:  map[uuid.UUID]domain.Routine{},
		exercises: map[uuid.UUID]domain.Exercise{},
	}
}

func (s *memStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *memStore) Routines(ctx context.Context) ([]domain.Routine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]domain.Routine, 0, len(s.routines))
	for _, r := range s.routines {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) PutRoutine(ctx context.Context, r domain.Routine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.routines[r.ID] = r
	return nil
}

func (s *memStore) DeleteRoutine(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.routines, id)
	return nil
}

func (s *memStore) Exercises(ctx context.Context) ([]domain.Exercise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]domain.Exercise, 0, len(s.exercises))
	for _, e := range s.exercises {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) PutExercise(ctx context.Context, e domain.Exercise) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.exercises[e.ID] = e
	return nil
}

func (s *memStore) AppendActivity(ctx context.Context, e domain.ActivityLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.activity = append(s.activity, e)
	return nil
}

func (s *memStore) RecentActivity(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return recentActivity(s.activity, limit), nil
}

func (s *memStore) PruneActivity(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	kept := s.activity[:0]
	dropped := 0
	for _, e := range s.activity {
		if e.At.Before(before) {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	s.activity = kept
	return dropped, nil
}

func (s *memStore) Preferences(ctx context.Context) (domain.UserPreferences, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.UserPreferences{}, false, ErrClosed
	}
	if s.prefs == nil {
		return domain.UserPreferences{}, false, nil
	}
	return *s.prefs, true, nil
}

func (s *memStore) PutPreferences(ctx context.Context, p domain.UserPreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	cp := p
	s.prefs = &cp
	return nil
}

// recentActivity returns newest-first, capped at limit when positive.
func recentActivity(entries []domain.ActivityLogEntry, limit int) []domain.ActivityLogEntry {
	out := append([]domain.ActivityLogEntry(nil), entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
