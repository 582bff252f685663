// Package gateway defines the notification-delivery boundary consumed by
// the reminder engines.
//
// The contract mirrors what OS-level notification centers offer: schedule
// by identifier, cancel by identifiers, list pending. There is no "what
// did we last schedule" ledger beyond the pending list itself, so
// identifier reuse is the engines' only durable bookkeeping: scheduling an
// identifier that is already pending replaces the request, never
// duplicates it.
package gateway

import (
	"context"
	"errors"
	"time"
)

// ErrUnauthorized is returned when the delivery channel refused or lacks
// authorization. Callers log it and carry on; reminders are simply not
// delivered until authorization is granted.
var ErrUnauthorized = errors.New("notification delivery not authorized")

// Content is the user-visible payload of a scheduled request.
type Content struct {
	Title string
	Body  string
	// ThreadKey groups related notifications for collapse/threading.
	ThreadKey string
	// Meta is carried through to delivery-time logging untouched.
	Meta map[string]string
}

// FireRule describes when a scheduled request fires.
type FireRule interface{ isFireRule() }

// OneShot fires once at At, then leaves the pending set.
type OneShot struct{ At time.Time }

// Repeating fires every Every, first fire one period after scheduling.
type Repeating struct{ Every time.Duration }

// DailyCalendar fires every day at Hour:Minute (gateway timezone).
type DailyCalendar struct {
	Hour   int
	Minute int
}

// CalendarDate fires once at the given date/time, then leaves the pending
// set.
type CalendarDate struct{ At time.Time }

func (OneShot) isFireRule()       {}
func (Repeating) isFireRule()     {}
func (DailyCalendar) isFireRule() {}
func (CalendarDate) isFireRule()  {}

// Pending describes one not-yet-delivered request.
type Pending struct {
	ID       string
	Rule     FireRule
	NextFire time.Time
}

// Gateway is the consumed notification interface.
type Gateway interface {
	// RequestAuthorization asks the delivery channel for permission.
	// Denial is non-fatal; the dependent feature stays dark.
	RequestAuthorization(ctx context.Context) (bool, error)
	// Schedule registers (or replaces) the request with the identifier.
	Schedule(ctx context.Context, id string, content Content, rule FireRule) error
	// CancelPending removes not-yet-delivered requests only.
	CancelPending(ctx context.Context, ids ...string)
	// CancelAll removes pending requests and delivered history.
	CancelAll(ctx context.Context, ids ...string)
	// ListPending snapshots the currently scheduled identifiers.
	ListPending(ctx context.Context) ([]Pending, error)
}
