package local

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"movebot/internal/eventbus"
	"movebot/internal/gateway"
	"movebot/pkg/logx"
)

func New(cfg Config, deliver Deliverer, log logx.Logger, bus eventbus.Bus) *Service {
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = 10 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	return &Service{
		log:     log,
		cfg:     cfg,
		bus:     bus,
		deliver: deliver,
		defs:    map[string]*calDef{},
		timers:  map[string]*time.Timer{},
		once:    map[string]*onceDef{},
		vers:    map[string]uint64{},
	}
}

// Start registers all persisted definitions and begins firing. Calling
// Start on a running service is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Info("gateway disabled by config")
		return
	}

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithLocation(loc))
	for _, d := range s.defs {
		s.addCronLocked(d)
	}
	s.c.Start()
	s.rebuildOnceTimersLocked()
	s.log.Info("gateway started",
		logx.String("tz", loc.String()),
		logx.Int("calendar", len(s.defs)),
		logx.Int("one_shot", len(s.once)))
}

// Stop halts firing. Definitions are kept so Start() can resume them.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}

	s.tmu.Lock()
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	s.tmu.Unlock()

	s.log.Info("gateway stopped")
}

// RequestAuthorization probes the delivery channel. Denial is reported,
// not retried; the caller decides what stays dark.
func (s *Service) RequestAuthorization(ctx context.Context) (bool, error) {
	if s.deliver == nil {
		return false, gateway.ErrUnauthorized
	}
	if err := s.deliver.Ready(ctx); err != nil {
		s.log.Warn("delivery authorization denied", logx.Err(err))
		return false, err
	}
	return true, nil
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// fire hands one delivery to the pipeline and publishes the fired event.
func (s *Service) fire(id string, d *Delivery) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.GatewayFired, Time: d.FiredAt, Data: *d})
	}
	if s.deliver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DeliverTimeout)
	defer cancel()
	if err := s.deliver.Deliver(ctx, *d); err != nil {
		s.log.Warn("delivery hand-off failed", logx.String("id", id), logx.Err(err))
	}
}

func (s *Service) recordDelivered(id, title string, at time.Time) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.delivered = append(s.delivered, DeliveredItem{ID: id, At: at, Title: title})
	if max := s.cfg.HistorySize; len(s.delivered) > max {
		s.delivered = s.delivered[len(s.delivered)-max:]
	}
}

// Delivered returns a copy of the delivered history (newest last).
func (s *Service) Delivered() []DeliveredItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]DeliveredItem(nil), s.delivered...)
}
