package app

import (
	"time"

	"movebot/internal/clock"
	"movebot/internal/config"
	"movebot/internal/domain"
	"movebot/internal/gateway/local"
	"movebot/internal/notifier"
	"movebot/internal/storage"
	logx "movebot/pkg/logx"
)

// Config-to-component mapping. Durations arrive as strings and are
// validated by config.Validate before any of these run, so parse errors
// here mean a programming error, not user input.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapGatewayConfig(cfg *config.Config) (local.Config, error) {
	dt, err := config.ParseDurationOrDefault("gateway.deliver_timeout", cfg.Gateway.DeliverTimeout, 10*time.Second)
	if err != nil {
		return local.Config{}, err
	}
	return local.Config{
		Enabled:        cfg.Gateway.Enabled,
		Timezone:       cfg.Gateway.Timezone,
		DeliverTimeout: dt,
		HistorySize:    cfg.Gateway.HistorySize,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	if n == nil {
		// Omitted section means "enabled with defaults".
		return notifier.Config{Enabled: true}, nil
	}
	retryBase, err := config.ParseDurationField("notifier.retry_base", n.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	dedup, err := config.ParseDurationOrDefault("notifier.dedup_window", n.DedupWindow, 30*time.Minute)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
		DedupWindow:     dedup,
		DedupMaxEntries: n.DedupMaxEntries,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	s := cfg.Storage
	if s == nil {
		return storage.Config{}, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", s.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: s.Driver, Path: s.Path, BusyTimeout: busy}, nil
}

// mapPreferences derives user preferences from the reminder section,
// starting from first-launch defaults so a sparse config still yields a
// complete set.
func mapPreferences(cfg *config.Config, day time.Time) (domain.UserPreferences, error) {
	p := domain.DefaultPreferences(day)
	r := cfg.Reminder

	if r.IntervalMinutes > 0 {
		p.IntervalMinutes = r.IntervalMinutes
	}
	if r.ReminderAnchor != "" {
		t, err := clock.ParseTimeOfDay(r.ReminderAnchor)
		if err != nil {
			return domain.UserPreferences{}, err
		}
		p.ReminderAnchor = t.OnDay(day)
	}
	if r.QuietStart != "" {
		t, err := clock.ParseTimeOfDay(r.QuietStart)
		if err != nil {
			return domain.UserPreferences{}, err
		}
		p.QuietStart = t
	}
	if r.QuietEnd != "" {
		t, err := clock.ParseTimeOfDay(r.QuietEnd)
		if err != nil {
			return domain.UserPreferences{}, err
		}
		p.QuietEnd = t
	}
	return p, nil
}

type reminderSettings struct {
	evaluateEvery time.Duration
	retention     time.Duration
	checkinHour   int
}

func mapReminderSettings(cfg *config.Config) (reminderSettings, error) {
	r := cfg.Reminder
	every, err := config.ParseDurationOrDefault("reminder.evaluate_every", r.EvaluateEvery, time.Minute)
	if err != nil {
		return reminderSettings{}, err
	}
	retention, err := config.ParseDurationField("reminder.activity_retention", r.ActivityRetention)
	if err != nil {
		return reminderSettings{}, err
	}
	return reminderSettings{
		evaluateEvery: every,
		retention:     retention,
		checkinHour:   r.CheckinHour,
	}, nil
}
