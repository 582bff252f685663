// Package health abstracts the optional health-data source used by
// stand-hour triggers. On platforms without one, Unavailable() keeps the
// rest of the engine fully functional: only health-based triggers stay
// dark.
package health

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable means the platform has no health data source.
var ErrUnavailable = errors.New("health data unavailable")

// Read types passed to RequestAuthorization.
const (
	ReadStandTime = "stand_time"
)

// Provider is the consumed health-data interface. Queries are
// permission-gated and potentially expensive; callers only reach for them
// when a trigger actually needs the answer.
type Provider interface {
	Available() bool
	RequestAuthorization(ctx context.Context, readTypes ...string) (bool, error)
	// CumulativeStandTime sums stand hours over [from, to).
	CumulativeStandTime(ctx context.Context, from, to time.Time) (float64, error)
}

// Unavailable returns the provider used when no health source exists.
func Unavailable() Provider { return unavailable{} }

type unavailable struct{}

func (unavailable) Available() bool { return false }

func (unavailable) RequestAuthorization(ctx context.Context, readTypes ...string) (bool, error) {
	return false, ErrUnavailable
}

func (unavailable) CumulativeStandTime(ctx context.Context, from, to time.Time) (float64, error) {
	return 0, ErrUnavailable
}
