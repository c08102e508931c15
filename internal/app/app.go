package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/delivery"
	"remindbot/internal/eventbus"
	"remindbot/internal/health"
	"remindbot/internal/housekeeping"
	"remindbot/internal/plugin"
	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter

	sched  *reminder.Scheduler
	house  *housekeeping.Service
	health *health.Service

	cmdm *router.CommandManager
	pm   *plugin.Manager
	serv *router.Services

	updates chan kit.Update
}

// NewApp loads the config and wires every component. Nothing runs until
// Start.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(adapterConfig(cfg), bootLog)
	if err != nil {
		return nil, err
	}

	// the Telegram sink starts disabled; applyLogging enables it once the
	// target chat is set
	bootCfg := logConfig(cfg)
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	applyLogging(logSvc, cfg)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := storageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
	if errors.Is(err, storage.ErrDisabled) {
		log.Warn("storage disabled; reminders are kept in memory only")
		store, err = storage.NewMemory(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage ready", logx.String("driver", sc.Driver))

	loc := cfg.Location()
	notif := delivery.New(ad, log.With(logx.String("comp", "delivery")))
	sched := reminder.NewScheduler(schedulerConfig(cfg), store, notif,
		reminder.WithLogger(log.With(logx.String("comp", "reminders"))),
		reminder.WithBus(bus),
		reminder.WithRenderer(delivery.Formatter{
			Location:       loc,
			DefaultMessage: cfg.Reminders.DefaultMessage,
		}),
	)

	var compactor storage.Compactor
	if c, ok := store.(storage.Compactor); ok {
		compactor = c
	}
	var house *housekeeping.Service
	if cfg.Housekeeping.Enabled {
		house = housekeeping.New(housekeepingConfig(cfg), sched, compactor,
			log.With(logx.String("comp", "housekeeping")))
	}

	var hs *health.Service
	if cfg.Health.Enabled {
		var opts []health.Option
		if house != nil {
			opts = append(opts, health.WithJobs(house))
		}
		hs = health.New(health.Config{
			Addr:         cfg.Health.Addr,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		}, sched, log.With(logx.String("comp", "health")), opts...)
	}

	serv := &router.Services{}
	cmdm := router.NewCommandManager(log.With(logx.String("comp", "commands")),
		ad, cfgm, serv, cfg.Telegram.OwnerUserIDs)

	pm := plugin.NewManager(log.With(logx.String("comp", "plugins")), cfgm, plugin.Deps{
		Logger:    log,
		Adapter:   ad,
		Config:    cfgm,
		Services:  serv,
		Bus:       bus,
		Store:     store,
		Reminders: sched,
	}, cmdm)

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		sched:   sched,
		house:   house,
		health:  hs,
		cmdm:    cmdm,
		pm:      pm,
		serv:    serv,
		updates: make(chan kit.Update, 256),
	}, nil
}

func (a *App) Plugins() *plugin.Manager { return a.pm }

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start restores persisted reminders, then opens the command surface.
// Updates are not dispatched before Restore has returned.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.serv.AppSupervisor = a.sup
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.pm.ValidateConfig)

	rep, err := a.sched.Restore(a.sup.Context())
	if err != nil {
		return fmt.Errorf("restore reminders: %w", err)
	}
	a.log.Info("reminders restored",
		logx.Int("total", rep.Total),
		logx.Int("armed", rep.Armed),
		logx.Int("missed", rep.Missed),
		logx.Int("fired_late", rep.FiredLate),
		logx.Int("unrestorable", rep.Unrestorable),
		logx.Int("invalid", rep.Invalid),
	)

	a.pm.BindContext(a.sup.Context())
	if err := a.pm.StartAll(a.sup.Context()); err != nil {
		return err
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	if a.house != nil {
		if err := a.house.Start(a.sup.Context()); err != nil {
			return err
		}
	}
	if a.health != nil {
		a.sup.Go0("health.observe", func(c context.Context) { a.health.Observe(c, a.bus) })
		a.health.Start(a.sup.Context())
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if a.cfgm.Get().Logging.Telegram.AnnounceStartup {
		a.logs.Announce(fmt.Sprintf("🟢 <b>remindbot started</b>\nreminders pending: <code>%d</code>", a.sched.Pending()))
	}
	a.log.Info("app started", logx.Int("pending", a.sched.Pending()))
	return nil
}

// applyConfig applies a hot-reloaded config. Sections that cannot change
// live are reported and otherwise ignored until the next restart.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs, pluginChanged := config.SummarizeConfigChange(prev, next)
	if len(pluginChanged) > 0 {
		a.log.Debug("plugin config changes detected", logx.Any("plugins", pluginChanged))
	}
	if restart := config.RestartRequired(prev, next); len(restart) > 0 {
		a.log.Warn("config changed; restart required for these sections", logx.String("sections", strings.Join(restart, ",")))
	}

	applyLogging(a.logs, next)
	a.cmdm.SetOwners(next.Telegram.OwnerUserIDs)
	a.pm.OnConfigUpdate(ctx, next)

	if len(sections) > 0 {
		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		a.log.Info("config reloaded", fields...)
	} else {
		a.log.Info("config reloaded (no changes)")
	}
}

// Stop shuts components down in reverse dependency order. Each step is
// bounded so one component cannot stall the rest.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			limit = min(limit, time.Until(dl))
		}
		if limit <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, limit)
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
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("adapter", 2*time.Second, a.adapter.Stop)
	step("plugins", 4*time.Second, func(c context.Context) error { a.pm.StopAll(c, plugin.StopShutdown); return nil })
	if a.house != nil {
		step("housekeeping", 2*time.Second, a.house.Stop)
	}
	if a.health != nil {
		step("health", time.Second, a.health.Stop)
	}
	// timers stop here; pending reminders stay persisted for the next Restore
	step("reminders", 3*time.Second, a.sched.Stop)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.logs.Close()
}
