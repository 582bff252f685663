package local

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"movebot/internal/eventbus"
	"movebot/internal/gateway"
	"movebot/pkg/logx"
)

// Schedule registers the request under id, replacing any pending request
// with the same identifier (in either pool). Scheduling while stopped is
// allowed: the definition is stored and armed on the next Start().
func (s *Service) Schedule(ctx context.Context, id string, content gateway.Content, rule gateway.FireRule) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("identifier required")
	}

	switch r := rule.(type) {
	case gateway.DailyCalendar:
		if r.Hour < 0 || r.Hour > 23 || r.Minute < 0 || r.Minute > 59 {
			return fmt.Errorf("invalid daily calendar %02d:%02d", r.Hour, r.Minute)
		}
		return s.scheduleCal(id, content, rule, fmt.Sprintf("%d %d * * *", r.Minute, r.Hour))
	case gateway.Repeating:
		if r.Every <= 0 {
			return errors.New("repeating interval must be positive")
		}
		return s.scheduleCal(id, content, rule, fmt.Sprintf("@every %s", r.Every))
	case gateway.OneShot:
		if r.At.IsZero() {
			return errors.New("fire time required")
		}
		return s.scheduleOnce(id, content, rule, r.At)
	case gateway.CalendarDate:
		if r.At.IsZero() {
			return errors.New("fire time required")
		}
		return s.scheduleOnce(id, content, rule, r.At)
	default:
		return fmt.Errorf("unsupported firing rule %T", rule)
	}
}

func (s *Service) scheduleCal(id string, content gateway.Content, rule gateway.FireRule, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removePendingLocked(id)
	d := &calDef{id: id, spec: spec, rule: rule, content: content}
	s.defs[id] = d
	if s.c != nil {
		if err := s.addCronLocked(d); err != nil {
			delete(s.defs, id)
			s.log.Error("schedule register failed", logx.String("id", id), logx.String("spec", spec), logx.Err(err))
			return err
		}
	}
	s.published(eventbus.GatewayScheduled, id)
	s.log.Debug("request scheduled", logx.String("id", id), logx.String("spec", spec))
	return nil
}

func (s *Service) scheduleOnce(id string, content gateway.Content, rule gateway.FireRule, at time.Time) error {
	s.mu.Lock()
	loc := s.loc
	running := s.c != nil
	// Upsert across pools: a daily request replaced by a one-shot must not
	// keep its cron entry.
	s.removeCalLocked(id)
	s.mu.Unlock()

	if loc == nil {
		loc = time.Local
	}
	runAt := at.In(loc)

	s.tmu.Lock()
	if t, ok := s.timers[id]; ok {
		_ = t.Stop()
		delete(s.timers, id)
	}
	ver := s.vers[id] + 1
	s.vers[id] = ver
	s.once[id] = &onceDef{at: runAt, rule: rule, content: content, ver: ver}
	if running {
		s.armOnceTimerLocked(id, ver)
	}
	s.tmu.Unlock()

	s.published(eventbus.GatewayScheduled, id)
	s.log.Debug("request scheduled", logx.String("id", id), logx.Time("at", runAt))
	return nil
}

// armOnceTimerLocked creates the runtime timer for a once definition.
// Call with s.tmu held.
func (s *Service) armOnceTimerLocked(id string, ver uint64) {
	def := s.once[id]
	if def == nil {
		return
	}
	delay := time.Until(def.at)
	if delay < 0 {
		delay = 0
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		// A replaced or canceled request bumps the version (or removes the
		// definition); such stale callbacks must do nothing.
		s.tmu.Lock()
		cur, ok := s.once[id]
		if !ok || cur.ver != ver {
			s.tmu.Unlock()
			return
		}
		delete(s.timers, id)
		delete(s.once, id)
		s.tmu.Unlock()

		now := time.Now()
		s.recordDelivered(id, cur.content.Title, now)
		s.fire(id, &Delivery{ID: id, Content: cur.content, FiredAt: now})
	})
}

// rebuildOnceTimersLocked recreates runtime timers from persisted once
// definitions. Call with s.mu held.
func (s *Service) rebuildOnceTimersLocked() {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	for id, def := range s.once {
		s.armOnceTimerLocked(id, def.ver)
	}
}

func (s *Service) addCronLocked(d *calDef) error {
	id := d.id
	eid, err := s.c.AddFunc(d.spec, func() {
		s.mu.Lock()
		cur, ok := s.defs[id]
		var content gateway.Content
		if ok {
			content = cur.content
		}
		s.mu.Unlock()
		if !ok {
			return
		}
		s.fire(id, &Delivery{ID: id, Content: content, FiredAt: time.Now()})
	})
	if err == nil {
		d.entryID = eid
	}
	return err
}

// CancelPending removes not-yet-delivered requests for the identifiers.
// Unknown identifiers are ignored.
func (s *Service) CancelPending(ctx context.Context, ids ...string) {
	for _, id := range ids {
		removed := false

		s.mu.Lock()
		removed = s.removeCalLocked(id) || removed
		s.mu.Unlock()

		s.tmu.Lock()
		if t, ok := s.timers[id]; ok {
			_ = t.Stop()
			delete(s.timers, id)
		}
		if _, ok := s.once[id]; ok {
			delete(s.once, id)
			s.vers[id]++
			removed = true
		}
		s.tmu.Unlock()

		if removed {
			s.published(eventbus.GatewayCanceled, id)
			s.log.Debug("request canceled", logx.String("id", id))
		}
	}
}

// CancelAll removes pending requests and forgets delivered history for
// the identifiers.
func (s *Service) CancelAll(ctx context.Context, ids ...string) {
	s.CancelPending(ctx, ids...)

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	s.hmu.Lock()
	n := 0
	for _, it := range s.delivered {
		if drop[it.ID] {
			continue
		}
		s.delivered[n] = it
		n++
	}
	s.delivered = s.delivered[:n]
	s.hmu.Unlock()
}

// ListPending snapshots currently scheduled identifiers with their next
// fire time (zero when the service is stopped and cron state is gone).
func (s *Service) ListPending(ctx context.Context) ([]gateway.Pending, error) {
	s.mu.Lock()
	out := make([]gateway.Pending, 0, len(s.defs))
	for id, d := range s.defs {
		p := gateway.Pending{ID: id, Rule: d.rule}
		if s.c != nil && d.entryID != 0 {
			p.NextFire = s.c.Entry(d.entryID).Next
		}
		out = append(out, p)
	}
	s.mu.Unlock()

	s.tmu.Lock()
	for id, def := range s.once {
		out = append(out, gateway.Pending{ID: id, Rule: def.rule, NextFire: def.at})
	}
	s.tmu.Unlock()
	return out, nil
}

// removePendingLocked drops id from both pools. Call with s.mu held.
func (s *Service) removePendingLocked(id string) {
	s.removeCalLocked(id)
	s.tmu.Lock()
	if t, ok := s.timers[id]; ok {
		_ = t.Stop()
		delete(s.timers, id)
	}
	if _, ok := s.once[id]; ok {
		delete(s.once, id)
		s.vers[id]++
	}
	s.tmu.Unlock()
}

// removeCalLocked drops id from the calendar pool. Call with s.mu held.
func (s *Service) removeCalLocked(id string) bool {
	d, ok := s.defs[id]
	if !ok {
		return false
	}
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	delete(s.defs, id)
	return true
}

func (s *Service) published(typ, id string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: id})
}
