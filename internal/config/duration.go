package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration fields in the config (deliver_timeout, dedup_window,
// evaluate_every, activity_retention, busy_timeout) are Go duration
// strings. Negative values are always rejected; what zero/empty means is
// the caller's call, hence the two variants below.

// ParseDurationField parses a duration string; empty means 0. path names
// the config field for the error message.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for fields
// where zero is not a meaningful setting.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
