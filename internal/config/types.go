package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Gateway controls the in-process notification scheduler.
	Gateway GatewayConfig `json:"gateway"`

	// Notifier controls the async delivery pipeline. If the whole section
	// is omitted, the notifier defaults to enabled.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	Reminder ReminderConfig `json:"reminder"`

	Storage *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// GatewayConfig controls the notification gateway.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type GatewayConfig struct {
	Enabled bool `json:"enabled"`
	// Timezone for calendar rules (daily triggers, weekly check-in).
	// Empty means the process-local timezone.
	Timezone string `json:"timezone,omitempty"`
	// DeliverTimeout caps one delivery attempt at fire time.
	DeliverTimeout string `json:"deliver_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
//
// All durations are Go duration strings. DedupWindow doubles as the
// re-arm cool-down: an identifier that fired inside the window is
// swallowed instead of re-delivered.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
}

// ReminderConfig drives the movement reminder and the evaluation loop.
//
// ReminderAnchor, QuietStart and QuietEnd are "HH:MM" wall-clock times.
type ReminderConfig struct {
	IntervalMinutes int    `json:"interval_minutes"`
	ReminderAnchor  string `json:"reminder_anchor"`
	QuietStart      string `json:"quiet_start"`
	QuietEnd        string `json:"quiet_end"`

	// EvaluateEvery is the period of the engine evaluation loop
	// (Go duration string). Default 1m.
	EvaluateEvery string `json:"evaluate_every,omitempty"`

	// CheckinHour is the local hour of the Monday check-in. Default 10.
	CheckinHour int `json:"checkin_hour,omitempty"`

	// ActivityRetention prunes activity log entries older than this
	// (Go duration string). "0s" or omitted disables pruning.
	ActivityRetention string `json:"activity_retention,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./movebot_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
