package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"movebot/internal/domain"
	logx "movebot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.state.json      (routines, exercises, preferences snapshot)
//   - <prefix>.activity.jsonl  (append-only activity log)
//
// The snapshot is rewritten atomically on every state mutation; the
// activity file only grows until PruneActivity compacts it.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	statePath    string
	activityPath string
	activityFile *os.File

	routines  map[uuid.UUID]domain.Routine
	exercises map[uuid.UUID]domain.Exercise
	activity  []domain.ActivityLogEntry
	prefs     *domain.UserPreferences
}

type stateSnapshot struct {
	Routines    []domain.Routine        `json:"routines,omitempty"`
	Exercises   []domain.Exercise       `json:"exercises,omitempty"`
	Preferences *domain.UserPreferences `json:"preferences,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		statePath:    prefix + ".state.json",
		activityPath: prefix + ".activity.jsonl",
		routines:     map[uuid.UUID]domain.Routine{},
		exercises:    map[uuid.UUID]domain.Exercise{},
	}

	if err := s.loadState(); err != nil {
		return nil, err
	}
	if err := s.loadActivity(); err != nil {
		return nil, err
	}

	af, err := os.OpenFile(s.activityPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.activityFile = af
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activityFile == nil {
		return nil
	}
	err := s.activityFile.Close()
	s.activityFile = nil
	return err
}

func (s *fileStore) loadState() error {
	f, err := os.Open(s.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	var snap stateSnapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for _, r := range snap.Routines {
		s.routines[r.ID] = r
	}
	for _, e := range snap.Exercises {
		s.exercises[e.ID] = e
	}
	s.prefs = snap.Preferences
	return nil
}

func (s *fileStore) loadActivity() error {
	f, err := os.Open(s.activityPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e domain.ActivityLogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			// Torn tail write from a crash; skip the line.
			continue
		}
		s.activity = append(s.activity, e)
	}
	return sc.Err()
}

// saveStateLocked writes the snapshot via tmp+rename so a crash never
// leaves a half-written state file.
func (s *fileStore) saveStateLocked() error {
	snap := stateSnapshot{Preferences: s.prefs}
	for _, r := range s.routines {
		snap.Routines = append(snap.Routines, r)
	}
	for _, e := range s.exercises {
		snap.Exercises = append(snap.Exercises, e)
	}
	sort.Slice(snap.Routines, func(i, j int) bool { return snap.Routines[i].Name < snap.Routines[j].Name })
	sort.Slice(snap.Exercises, func(i, j int) bool { return snap.Exercises[i].Name < snap.Exercises[j].Name })

	tmp := s.statePath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.statePath)
}

func (s *fileStore) Routines(ctx context.Context) ([]domain.Routine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Routine, 0, len(s.routines))
	for _, r := range s.routines {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fileStore) PutRoutine(ctx context.Context, r domain.Routine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routines[r.ID] = r
	return s.saveStateLocked()
}

func (s *fileStore) DeleteRoutine(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routines[id]; !ok {
		return nil
	}
	delete(s.routines, id)
	return s.saveStateLocked()
}

func (s *fileStore) Exercises(ctx context.Context) ([]domain.Exercise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Exercise, 0, len(s.exercises))
	for _, e := range s.exercises {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fileStore) PutExercise(ctx context.Context, e domain.Exercise) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exercises[e.ID] = e
	return s.saveStateLocked()
}

func (s *fileStore) AppendActivity(ctx context.Context, e domain.ActivityLogEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activityFile == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.activityFile).Encode(e); err != nil {
		return err
	}
	s.activity = append(s.activity, e)
	return nil
}

func (s *fileStore) RecentActivity(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return recentActivity(s.activity, limit), nil
}

// PruneActivity drops old entries and rewrites the jsonl file in one
// shot. The rewrite goes through a tmp file like the state snapshot.
func (s *fileStore) PruneActivity(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activityFile == nil {
		return 0, ErrClosed
	}

	kept := make([]domain.ActivityLogEntry, 0, len(s.activity))
	dropped := 0
	for _, e := range s.activity {
		if e.At.Before(before) {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	if dropped == 0 {
		return 0, nil
	}

	tmp := s.activityPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(f)
	for _, e := range kept {
		if err := enc.Encode(e); err != nil {
			_ = f.Close()
			return 0, err
		}
	}
	if err := f.Close(); err != nil {
		return 0, err
	}

	if err := s.activityFile.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, s.activityPath); err != nil {
		s.activityFile = nil
		return 0, err
	}
	af, err := os.OpenFile(s.activityPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.activityFile = nil
		return 0, err
	}
	s.activityFile = af
	s.activity = kept
	s.log.Debug("activity log pruned", logx.Int("dropped", dropped))
	return dropped, nil
}

func (s *fileStore) Preferences(ctx context.Context) (domain.UserPreferences, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefs == nil {
		return domain.UserPreferences{}, false, nil
	}
	return *s.prefs, true, nil
}

func (s *fileStore) PutPreferences(ctx context.Context, p domain.UserPreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.prefs = &cp
	return s.saveStateLocked()
}
