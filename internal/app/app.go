// Package app wires movebot together: config, logging, storage, the
// notification gateway, the delivery pipeline and the three reminder
// engines, plus the evaluation loop that drives them.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"movebot/internal/adapters/telegram"
	"movebot/internal/config"
	"movebot/internal/domain"
	"movebot/internal/engine/checkin"
	"movebot/internal/engine/reminder"
	"movebot/internal/engine/triggers"
	"movebot/internal/eventbus"
	"movebot/internal/gateway/local"
	"movebot/internal/health"
	"movebot/internal/notifier"
	"movebot/internal/storage"
	logx "movebot/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	logs *logx.Service
	log  logx.Logger

	bus    eventbus.Bus
	store  storage.Store
	sender *telegram.Sender
	notif  *notifier.Service
	gw     *local.Service

	monitor *reminder.Monitor
	checkin *checkin.Scheduler
	trig    *triggers.Engine

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	// poke wakes the evaluation loop outside its regular tick.
	poke chan struct{}

	smu       sync.Mutex
	prefs     domain.UserPreferences
	settings  reminderSettings
	lastPrune time.Time
}

// notifyDeliverer bridges the gateway's fire path into the async
// notification pipeline.
type notifyDeliverer struct{ n *notifier.Service }

func (d notifyDeliverer) Ready(ctx context.Context) error { return d.n.Ready(ctx) }

func (d notifyDeliverer) Deliver(ctx context.Context, del local.Delivery) error {
	return d.n.Enqueue(ctx, notifier.Message{
		ID:    del.ID,
		Title: del.Content.Title,
		Body:  del.Content.Body,
		Meta:  del.Content.Meta,
	})
}

// New builds the full component graph. hp may be nil when the platform
// has no health data source.
func New(cfgPath string, hp health.Provider) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	scfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(scfg, logs.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if scfg.Driver != "" {
		log.Info("storage enabled", logx.String("driver", scfg.Driver))
	}

	sender := telegram.New(telegram.Config{
		Token:  cfg.Telegram.Token,
		ChatID: cfg.Telegram.ChatID,
	}, logs.Logger().With(logx.String("comp", "telegram")))

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, sender, logs.Logger().With(logx.String("comp", "notifier")), bus)

	gcfg, err := mapGatewayConfig(cfg)
	if err != nil {
		return nil, err
	}
	gw := local.New(gcfg, notifyDeliverer{n: notif}, logs.Logger().With(logx.String("comp", "gateway")), bus)

	monitor := reminder.New(gw, store, logs.Logger().With(logx.String("comp", "reminder")))

	if hp == nil {
		hp = health.Unavailable()
	}
	trig := triggers.New(gw, hp,
		[]string{reminder.OneShotID, reminder.RepeatingID, checkin.Identifier},
		logs.Logger().With(logx.String("comp", "triggers")))

	settings, err := mapReminderSettings(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		logs:     logs,
		log:      log,
		bus:      bus,
		store:    store,
		sender:   sender,
		notif:    notif,
		gw:       gw,
		monitor:  monitor,
		trig:     trig,
		poke:     make(chan struct{}, 1),
		settings: settings,
	}

	if err := a.loadPreferences(context.Background(), cfg); err != nil {
		return nil, err
	}
	return a, nil
}

// loadPreferences prefers stored preferences; on first launch they come
// from the config and are persisted so later edits survive restarts.
func (a *App) loadPreferences(ctx context.Context, cfg *config.Config) error {
	now := time.Now()
	stored, ok, err := a.store.Preferences(ctx)
	if err != nil {
		return err
	}
	if ok {
		a.smu.Lock()
		a.prefs = stored
		a.smu.Unlock()
		return nil
	}
	prefs, err := mapPreferences(cfg, now)
	if err != nil {
		return err
	}
	if err := a.store.PutPreferences(ctx, prefs); err != nil {
		return err
	}
	a.smu.Lock()
	a.prefs = prefs
	a.smu.Unlock()
	a.log.Info("preferences initialized",
		logx.Int("interval_minutes", prefs.IntervalMinutes),
		logx.String("quiet_start", prefs.QuietStart.String()),
		logx.String("quiet_end", prefs.QuietEnd.String()))
	return nil
}

func (a *App) Preferences() domain.UserPreferences {
	a.smu.Lock()
	defer a.smu.Unlock()
	return a.prefs
}

// UpdatePreferences persists new preferences and re-derives everything
// scheduled from them.
func (a *App) UpdatePreferences(ctx context.Context, p domain.UserPreferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := a.store.PutPreferences(ctx, p); err != nil {
		return err
	}
	a.smu.Lock()
	a.prefs = p
	a.smu.Unlock()
	a.Poke()
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.runCtx, a.runCancel = context.WithCancel(ctx)

	a.cfgm.SetLogger(a.logs.Logger().With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if _, err := mapGatewayConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapPreferences(cfg, time.Now()); err != nil {
			return err
		}
		_, err := mapReminderSettings(cfg)
		return err
	})

	a.gw.Start(a.runCtx)
	a.notif.Start(a.runCtx)

	a.smu.Lock()
	hour := a.settings.checkinHour
	a.smu.Unlock()
	a.checkin = checkin.New(a.runCtx, a.gw, checkin.Config{Hour: hour},
		a.logs.Logger().With(logx.String("comp", "checkin")))
	if err := a.checkin.ScheduleNext(a.runCtx, time.Now()); err != nil {
		a.log.Warn("initial check-in scheduling failed", logx.Err(err))
	}

	a.goNamed("config.watch", func(c context.Context) {
		_ = a.cfgm.Watch(c)
	})
	a.goNamed("config.reload", a.reloadLoop)
	a.goNamed("events", a.eventLoop)
	a.goNamed("evaluate", a.evaluateLoop)

	a.log.Info("movebot started")
	return nil
}

func (a *App) goNamed(name string, fn func(ctx context.Context)) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				a.log.Error("panic in background loop",
					logx.String("name", name), logx.Any("panic", r))
			}
		}()
		fn(a.runCtx)
	}()
}

// Stop unwinds the app. Each step gets an upper bound so one component
// can't stall the whole shutdown.
func (a *App) Stop(ctx context.Context) error {
	if a.runCancel == nil {
		return nil
	}
	a.log.Info("stopping")
	a.runCancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("loops", 3*time.Second, func(c context.Context) error {
		done := make(chan struct{})
		go func() { a.wg.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	step("gateway", 2*time.Second, func(c context.Context) error { a.gw.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("storage", time.Second, func(c context.Context) error { return a.store.Close() })
	a.sender.Close()
	a.log.Info("stopped")
	return a.logs.Close()
}
