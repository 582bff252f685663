package notifier

import (
	"context"
	"math/rand"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"movebot/internal/eventbus"
	"movebot/pkg/logx"
)

// Sender is the outbound channel (Telegram in production, a fake in
// tests).
type Sender interface {
	Ready(ctx context.Context) error
	Send(ctx context.Context, text string) error
}

type job struct {
	msg Message
}

// Service is the async notification pipeline. Safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender Sender
	bus    eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	enqueueWG sync.WaitGroup

	queue    chan job
	stopDone chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	// Dedup cache: identifier -> suppress until.
	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus) *Service {
	s := &Service{
		log:    log,
		sender: sender,
		bus:    bus,
		dedup:  map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	s.cfg = cfg
	// Token bucket with burst = rate so short spikes don't block hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Ready reports whether the outbound channel is usable.
func (s *Service) Ready(ctx context.Context) error {
	s.mu.Lock()
	snd := s.sender
	enabled := s.cfg.Enabled
	s.mu.Unlock()
	if !enabled {
		return ErrDisabled
	}
	if snd == nil {
		return ErrDisabled
	}
	return snd.Ready(ctx)
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	s.stopDone = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	workers := s.cfg.Workers
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		i := i
		s.workerWG.Add(1)
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in notifier worker",
						logx.Int("worker", i), logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			s.workerLoop()
		}()
	}
}

// Stop blocks intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	done := s.stopDone
	cancel := s.runCancel
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.mu.Unlock()

	// Wait for in-flight enqueues before closing the queue.
	ch := make(chan struct{})
	go func() {
		s.enqueueWG.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		return
	case <-ch:
	}

	close(q)
	go func() {
		s.workerWG.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
	if cancel != nil {
		cancel()
	}

	s.mu.Lock()
	s.queue = nil
	s.stopDone = nil
	s.runCancel = nil
	s.runCtx = nil
	s.mu.Unlock()
}

// Enqueue accepts a message for delivery. Suppressed duplicates return
// nil: from the caller's view the notification was handled.
func (s *Service) Enqueue(ctx context.Context, msg Message) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	window := s.cfg.DedupWindow
	maxEntries := s.cfg.DedupMaxEntries
	s.enqueueWG.Add(1)
	s.mu.Unlock()
	defer s.enqueueWG.Done()

	if window > 0 && msg.ID != "" && !s.dedupAllow(msg.ID, window, maxEntries) {
		s.publish(eventbus.NotifyDeduped, msg, nil)
		s.log.Debug("notification suppressed (cool-down)", logx.String("id", msg.ID))
		return nil
	}

	select {
	case q <- job{msg: msg}:
		return nil
	default:
		s.publish(eventbus.NotifyDropped, msg, ErrQueueFull)
		s.log.Warn("notification dropped (queue full)", logx.String("id", msg.ID))
		return ErrQueueFull
	}
}

// History returns a copy of delivered notifications (newest last).
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) workerLoop() {
	s.mu.Lock()
	q := s.queue
	runCtx := s.runCtx
	s.mu.Unlock()

	for j := range q {
		if runCtx != nil {
			select {
			case <-runCtx.Done():
				return
			default:
			}
		}
		s.sendWithRetry(runCtx, j.msg)
	}
}

func (s *Service) sendWithRetry(runCtx context.Context, msg Message) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	snd := s.sender
	s.mu.Unlock()

	if snd == nil {
		return
	}
	text := renderText(msg)
	if text == "" {
		return
	}

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		wctx := runCtx
		if wctx == nil {
			wctx = context.Background()
		}
		if lim != nil {
			if err := lim.Wait(wctx); err != nil {
				return
			}
		}

		callCtx, cancel := context.WithTimeout(wctx, 10*time.Second)
		err := snd.Send(callCtx, text)
		cancel()
		if err == nil {
			s.recordSent(msg)
			s.publish(eventbus.NotifySent, msg, nil)
			return
		}
		lastErr = err
		s.log.Debug("send failed", logx.String("id", msg.ID), logx.Int("attempt", attempt), logx.Err(err))
		if attempt >= maxAttempts {
			break
		}

		delay := backoffDelay(cfg, attempt)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-wctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return
		}
	}

	s.publish(eventbus.NotifyFailed, msg, lastErr)
	s.log.Warn("notification delivery failed", logx.String("id", msg.ID), logx.Err(lastErr))
}

func (s *Service) recordSent(msg Message) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), ID: msg.ID, Title: msg.Title})
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, msg Message, err error) {
	if s.bus == nil {
		return
	}
	ev := DeliveryEvent{ID: msg.ID, Title: msg.Title, Meta: msg.Meta, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

func (s *Service) dedupAllow(key string, window time.Duration, maxEntries int) bool {
	now := time.Now()

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)

	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	for maxEntries > 0 && len(s.dedup) > maxEntries {
		var (
			minKey string
			minT   time.Time
			set    bool
		)
		for k, t := range s.dedup {
			if !set || t.Before(minT) {
				minKey, minT, set = k, t, true
			}
		}
		delete(s.dedup, minKey)
	}
	return true
}

func renderText(msg Message) string {
	title := strings.TrimSpace(msg.Title)
	body := strings.TrimSpace(msg.Body)
	switch {
	case title == "":
		return body
	case body == "":
		return title
	default:
		return title + "\n" + body
	}
}

func backoffDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1; the delay precedes attempt+1.
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	// Jitter 0.7..1.3.
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	if d < 0 {
		return 0
	}
	return d
}
