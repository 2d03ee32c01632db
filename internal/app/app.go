// Package app assembles the bot: config, logging, registry, scheduler,
// notifier, chat adapter and the ops server, in that order, and runs
// them until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jxoesneon/hermesbot/internal/adapters/telegram"
	"github.com/jxoesneon/hermesbot/internal/bot"
	"github.com/jxoesneon/hermesbot/internal/config"
	"github.com/jxoesneon/hermesbot/internal/kit"
	"github.com/jxoesneon/hermesbot/internal/metrics"
	"github.com/jxoesneon/hermesbot/internal/notify"
	"github.com/jxoesneon/hermesbot/internal/ops"
	"github.com/jxoesneon/hermesbot/internal/planner"
	"github.com/jxoesneon/hermesbot/internal/registry"
	"github.com/jxoesneon/hermesbot/internal/scheduler"
	"github.com/jxoesneon/hermesbot/internal/storage"
	"github.com/jxoesneon/hermesbot/pkg/logx"
)

const updateQueueSize = 64

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	adapter  *telegram.Adapter
	reg      *registry.Registry
	store    storage.Store
	notifier *notify.Service
	sched    *scheduler.Service
	router   *bot.Router
	ops      *ops.Server
}

// New builds the whole dependency graph from the config file. Nothing
// starts running yet; that is Run's job.
func New(configPath string) (*App, error) {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	mgr.SetLogger(log.With(logx.String("component", "config")))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("component", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	reg, err := registry.Open(cfg.Registry.Path, log.With(logx.String("component", "registry")))
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	var store storage.Store
	if cfg.Storage != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return nil, err
		}
		store, err = storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("component", "storage")))
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met := metrics.New(promReg)

	notifier := notify.New(notify.Config{RatePerSec: cfg.Notifier.RatePerSec},
		adapter, store, met, log.With(logx.String("component", "notify")))

	schedCfg, err := schedulerConfig(cfg.Scheduler)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, notifier, met, log.With(logx.String("component", "scheduler")))

	router := bot.NewRouter(bot.Config{OwnerUserIDs: cfg.Telegram.OwnerUserIDs},
		adapter, reg, sched, notifier, log.With(logx.String("component", "bot")))

	var opsSrv *ops.Server
	if cfg.Ops.Enabled {
		opsSrv = ops.NewServer(cfg.Ops.Addr, promReg, log.With(logx.String("component", "ops")))
	}

	return &App{
		cfgMgr:   mgr,
		logSvc:   logSvc,
		log:      log,
		adapter:  adapter,
		reg:      reg,
		store:    store,
		notifier: notifier,
		sched:    sched,
		router:   router,
		ops:      opsSrv,
	}, nil
}

func schedulerConfig(in config.SchedulerConfig) (scheduler.Config, error) {
	grace, err := config.ParseDurationOrDefault("scheduler.misfire_grace", in.MisfireGrace, 5*time.Minute)
	if err != nil {
		return scheduler.Config{}, err
	}
	timeout, err := config.ParseDurationOrDefault("scheduler.dispatch_timeout", in.DispatchTimeout, 30*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	fallbackHour := 22
	if in.FallbackHour != nil {
		fallbackHour = *in.FallbackHour
	}
	return scheduler.Config{
		Timezone:        in.Timezone,
		Workers:         in.Workers,
		QueueSize:       in.QueueSize,
		MisfireGrace:    grace,
		DispatchTimeout: timeout,
		Plan: planner.Config{
			OffsetMinutes: in.OffsetMinutes,
			FallbackHour:  fallbackHour,
		},
	}, nil
}

// Run starts every component, installs the initial trigger set and
// blocks on the update loop until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.logSvc.Close()

	a.sched.Start(ctx)

	updates := make(chan kit.Update, updateQueueSize)
	if err := a.adapter.Start(ctx, updates); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}
	if err := a.adapter.UpdateMenuCommands(ctx, bot.Commands()); err != nil {
		a.log.Warn("cannot publish command menu", logx.Err(err))
	}

	if err := a.sched.Rebuild(a.reg.Snapshot()); err != nil {
		return fmt.Errorf("initial schedule build: %w", err)
	}

	if a.ops != nil {
		a.ops.Start()
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go a.watchConfig(watchCtx)

	a.notifySystemd(ctx)

	a.log.Info("hermesbot running", logx.Int("subscribers", a.reg.Len()), logx.Int("triggers", a.sched.InstalledCount()))
	a.router.Run(ctx, updates)

	a.shutdown()
	return nil
}

// watchConfig reloads the config file on change and applies the pieces
// that can change at runtime. Everything else (token, registry path)
// needs a restart.
func (a *App) watchConfig(ctx context.Context) {
	sub := a.cfgMgr.Subscribe(1)
	defer a.cfgMgr.Unsubscribe(sub)

	go func() {
		if err := a.cfgMgr.Watch(ctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
			})
			a.log.Info("runtime config applied", logx.String("level", cfg.Logging.Level))
		}
	}
}

// notifySystemd reports readiness and keeps the watchdog fed when the
// process runs under systemd. Outside systemd both calls are no-ops.
func (a *App) notifySystemd(ctx context.Context) {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	} else if ok {
		a.log.Info("systemd notified: ready")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}

func (a *App) shutdown() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.adapter.Stop(stopCtx); err != nil {
		a.log.Warn("adapter stop", logx.Err(err))
	}
	a.sched.Stop(stopCtx)
	if a.ops != nil {
		if err := a.ops.Stop(stopCtx); err != nil {
			a.log.Warn("ops stop", logx.Err(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close", logx.Err(err))
		}
	}
	a.log.Info("hermesbot stopped")
}
