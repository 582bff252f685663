// Package notifier is the async delivery pipeline between the gateway and
// the outbound sender: bounded queue, worker pool, rate limiting, retries
// with backoff, and a per-identifier dedup window.
//
// The dedup window doubles as the re-arm cool-down for condition triggers:
// an inactivity or stand-hour evaluator may emit an identical immediate
// notification on every evaluation pass while its condition holds, and the
// window keeps those passes from reaching the user more than once.
package notifier

import (
	"errors"
	"time"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Message is one notification to deliver. ID is the scheduled request
// identifier and is used as the dedup key.
type Message struct {
	ID    string
	Title string
	Body  string
	Meta  map[string]string
}

// Config controls the pipeline.
//
// Zero values take defaults: 2 workers, queue 256, 1 msg/s, 500ms base /
// 10s max backoff, 2000 dedup entries. RetryMax 0 means no retries and
// DedupWindow 0 disables deduplication.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// DeliveryEvent is the bus payload for notify.* events.
type DeliveryEvent struct {
	ID    string
	Title string
	Meta  map[string]string
	At    time.Time
	Error string
}

// HistoryItem records one delivered notification.
type HistoryItem struct {
	At    time.Time
	ID    string
	Title string
}
