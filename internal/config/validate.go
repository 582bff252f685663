package config

import (
	"fmt"
	"strings"
	"time"

	"movebot/internal/clock"
)

// Validate checks everything that can be checked without touching the
// network: duration strings, wall-clock times, ranges. Reload rejects a
// config that fails here, so the running process never sees it.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}

	if _, err := ParseDurationField("gateway.deliver_timeout", c.Gateway.DeliverTimeout); err != nil {
		return err
	}
	if tz := strings.TrimSpace(c.Gateway.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("gateway.timezone: %w", err)
		}
	}

	if n := c.Notifier; n != nil {
		for _, f := range []struct{ path, raw string }{
			{"notifier.retry_base", n.RetryBase},
			{"notifier.retry_max_delay", n.RetryMaxDelay},
			{"notifier.dedup_window", n.DedupWindow},
		} {
			if _, err := ParseDurationField(f.path, f.raw); err != nil {
				return err
			}
		}
		if n.RetryMax < 0 {
			return fmt.Errorf("notifier.retry_max: must be >= 0")
		}
	}

	r := c.Reminder
	if r.IntervalMinutes < 0 {
		return fmt.Errorf("reminder.interval_minutes: must be >= 0")
	}
	for _, f := range []struct{ path, raw string }{
		{"reminder.reminder_anchor", r.ReminderAnchor},
		{"reminder.quiet_start", r.QuietStart},
		{"reminder.quiet_end", r.QuietEnd},
	} {
		if strings.TrimSpace(f.raw) == "" {
			continue
		}
		if _, err := clock.ParseTimeOfDay(f.raw); err != nil {
			return fmt.Errorf("%s: %w", f.path, err)
		}
	}
	if _, err := ParseDurationField("reminder.evaluate_every", r.EvaluateEvery); err != nil {
		return err
	}
	if _, err := ParseDurationField("reminder.activity_retention", r.ActivityRetention); err != nil {
		return err
	}
	if r.CheckinHour < 0 || r.CheckinHour > 23 {
		return fmt.Errorf("reminder.checkin_hour: must be in [0,23]")
	}

	if s := c.Storage; s != nil {
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}
