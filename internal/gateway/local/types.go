package local

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"movebot/internal/eventbus"
	"movebot/internal/gateway"
	"movebot/pkg/logx"
)

// Config controls the local gateway.
type Config struct {
	Enabled bool
	// Timezone is an IANA TZ name for calendar rules, e.g. "Europe/Berlin".
	// Empty means the process-local zone.
	Timezone string
	// DeliverTimeout bounds one delivery hand-off (default 10s).
	DeliverTimeout time.Duration
	// HistorySize caps the delivered history ring (default 200).
	HistorySize int
}

// Delivery is what the gateway hands to the delivery pipeline when a
// scheduled request fires.
type Delivery struct {
	ID      string
	Content gateway.Content
	FiredAt time.Time
}

// Deliverer is the outbound side of the gateway. Deliver must not block
// for long; the notifier pipeline enqueues and returns.
type Deliverer interface {
	// Ready reports whether the delivery channel is authorized/usable.
	Ready(ctx context.Context) error
	Deliver(ctx context.Context, d Delivery) error
}

// calDef is a pending calendar-pool request (DailyCalendar or Repeating).
type calDef struct {
	id      string
	spec    string
	rule    gateway.FireRule
	content gateway.Content
	entryID cron.EntryID
}

// onceDef is a pending one-shot-pool request (OneShot or CalendarDate).
type onceDef struct {
	at      time.Time
	rule    gateway.FireRule
	content gateway.Content
	ver     uint64
}

// DeliveredItem records a fired one-shot request.
type DeliveredItem struct {
	ID    string
	At    time.Time
	Title string
}

// Service implements gateway.Gateway in-process.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	bus eventbus.Bus

	deliver Deliverer

	loc  *time.Location
	c    *cron.Cron
	defs map[string]*calDef

	// One-shot timers are runtime state; once definitions persist across
	// Stop()/Start(). vers is monotonic per identifier and never reset,
	// so a callback from a canceled-then-rescheduled timer can't match.
	tmu    sync.Mutex
	timers map[string]*time.Timer
	once   map[string]*onceDef
	vers   map[string]uint64

	hmu       sync.Mutex
	delivered []DeliveredItem
}

var _ gateway.Gateway = (*Service)(nil)
