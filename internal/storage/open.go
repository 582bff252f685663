package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"movebot/internal/domain"
	logx "movebot/pkg/logx"
)

// Store is the persistence API used by the app and the reminder engines.
type Store interface {
	Routines(ctx context.Context) ([]domain.Routine, error)
	PutRoutine(ctx context.Context, r domain.Routine) error
	DeleteRoutine(ctx context.Context, id uuid.UUID) error

	Exercises(ctx context.Context) ([]domain.Exercise, error)
	PutExercise(ctx context.Context, e domain.Exercise) error

	AppendActivity(ctx context.Context, e domain.ActivityLogEntry) error
	// RecentActivity returns the newest entries first; limit <= 0 means all.
	RecentActivity(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error)
	// PruneActivity drops entries older than before and reports how many.
	PruneActivity(ctx context.Context, before time.Time) (int, error)

	// Preferences reports ok=false when none were stored yet.
	Preferences(ctx context.Context) (domain.UserPreferences, bool, error)
	PutPreferences(ctx context.Context, p domain.UserPreferences) error

	Close() error
}

// Open initializes the configured store. An empty or "memory" driver
// returns a volatile in-memory store so callers never deal with a nil
// Store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory", "none":
		return newMemStore(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
