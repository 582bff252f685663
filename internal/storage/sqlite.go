//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"movebot/internal/clock"
	"movebot/internal/domain"
	logx "movebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Routines and exercises are stored as JSON blobs keyed by id: the app
// always reads the full set, so column-level queries buy nothing.

func (s *sqliteStore) Routines(ctx context.Context) ([]domain.Routine, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM routines ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Routine
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var r domain.Routine
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutRoutine(ctx context.Context, r domain.Routine) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO routines(id, data) VALUES(?,?)
		 ON CONFLICT(id) DO UPDATE SET data=excluded.data`,
		r.ID.String(), string(raw))
	return err
}

func (s *sqliteStore) DeleteRoutine(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM routines WHERE id = ?`, id.String())
	return err
}

func (s *sqliteStore) Exercises(ctx context.Context) ([]domain.Exercise, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM exercises ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Exercise
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e domain.Exercise
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutExercise(ctx context.Context, e domain.Exercise) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO exercises(id, data) VALUES(?,?)
		 ON CONFLICT(id) DO UPDATE SET data=excluded.data`,
		e.ID.String(), string(raw))
	return err
}

func (s *sqliteStore) AppendActivity(ctx context.Context, e domain.ActivityLogEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity(id, at, kind, duration_ms, bucket) VALUES(?,?,?,?,?)`,
		e.ID.String(), e.At.Format(time.RFC3339Nano), string(e.Kind),
		e.Duration.Milliseconds(), string(e.Bucket))
	return err
}

func (s *sqliteStore) RecentActivity(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error) {
	q := `SELECT id, at, kind, duration_ms, bucket FROM activity ORDER BY at DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, q+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActivityLogEntry
	for rows.Next() {
		var (
			id, at, kind, bucket string
			durMS                int64
		)
		if err := rows.Scan(&id, &at, &kind, &durMS, &bucket); err != nil {
			return nil, err
		}
		e := domain.ActivityLogEntry{
			Kind:     domain.ActivityKind(kind),
			Duration: time.Duration(durMS) * time.Millisecond,
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, err
		}
		e.Bucket = clock.Bucket(bucket)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneActivity(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM activity WHERE at < ?`,
		before.Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqliteStore) Preferences(ctx context.Context) (domain.UserPreferences, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM preferences WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserPreferences{}, false, nil
	}
	if err != nil {
		return domain.UserPreferences{}, false, err
	}
	var p domain.UserPreferences
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.UserPreferences{}, false, err
	}
	return p, true, nil
}

func (s *sqliteStore) PutPreferences(ctx context.Context, p domain.UserPreferences) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO preferences(id, data) VALUES(1,?)
		 ON CONFLICT(id) DO UPDATE SET data=excluded.data`,
		string(raw))
	return err
}
