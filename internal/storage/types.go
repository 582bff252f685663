package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (state snapshot + activity jsonl)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "memory", state lives in memory only and is lost
// on restart.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
