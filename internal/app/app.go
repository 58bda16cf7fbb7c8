// Package app assembles the bell daemon: configuration, logging, storage,
// the trigger engine, the playback controller, the admin facade, and the
// nightly housekeeping job, all hosted under one supervisor.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"cobrell/internal/admin"
	"cobrell/internal/bell"
	"cobrell/internal/config"
	"cobrell/internal/engine"
	"cobrell/internal/player"
	"cobrell/internal/runtime/supervisor"
	"cobrell/internal/storage"
	logx "cobrell/pkg/logx"
)

const shutdownTimeout = 15 * time.Second

type Options struct {
	ConfigPath string
	// IgnoreMissingPlayer lets the daemon start with no audio backend
	// installed. Bells then ring silently (logged only).
	IgnoreMissingPlayer bool
}

type App struct {
	opts Options

	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store    *storage.DB
	playerC  *player.Controller
	engine   *engine.Engine
	admin    *admin.Service
	cron     *cron.Cron
	loc      *time.Location
	watchCfg bool
}

// New loads configuration and constructs every component. Nothing runs yet;
// call Run.
func New(opts Options) (*App, error) {
	a := &App{opts: opts}

	a.cfgMgr = config.NewManager(opts.ConfigPath)
	cfg, err := a.cfgMgr.Load()
	if errors.Is(err, os.ErrNotExist) {
		// No file is fine: run on defaults, but then there is nothing to watch.
		cfg = config.Default()
		a.cfgMgr.Commit(cfg)
	} else if err != nil {
		return nil, fmt.Errorf("load config %s: %w", opts.ConfigPath, err)
	} else {
		a.watchCfg = true
	}

	a.logSvc, a.log = logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.cfgMgr.SetLogger(a.log)
	a.cfgMgr.SetValidator(func(_ context.Context, c *config.Config) error {
		return validateConfig(c)
	})
	if err := validateConfig(cfg); err != nil {
		a.Close()
		return nil, err
	}

	tick, _ := config.ParseDurationOrDefault("scheduler.tick", cfg.Scheduler.Tick, 500*time.Millisecond)
	grace, _ := config.ParseDurationOrDefault("player.grace", cfg.Player.Grace, 10*time.Second)
	busy, _ := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)

	a.loc = time.Local
	if cfg.Scheduler.Timezone != "" {
		a.loc, _ = time.LoadLocation(cfg.Scheduler.Timezone)
	}

	a.store, err = storage.Open(storage.Config{Path: cfg.Storage.Path, BusyTimeout: busy}, a.log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a.playerC = player.New(a.log, player.WithGrace(grace))

	now := func() time.Time { return time.Now().In(a.loc) }
	a.engine = engine.New(
		bell.NewResolver(a.store), a.playerC, a.log,
		engine.WithTick(tick), engine.WithClock(now),
	)
	a.admin = admin.New(a.store, a.playerC, a.log,
		admin.WithMediaDir(cfg.Player.MediaDir),
		admin.WithLocation(a.loc),
	)

	if cfg.Housekeeping.Enabled {
		a.cron = cron.New(cron.WithLocation(a.loc))
		spec := cfg.Housekeeping.Spec
		if spec == "" {
			spec = "0 0 * * *"
		}
		retention := cfg.Housekeeping.RetentionDays
		if retention <= 0 {
			retention = 90
		}
		if _, err := a.cron.AddFunc(spec, func() { a.housekeep(retention) }); err != nil {
			a.Close()
			return nil, fmt.Errorf("housekeeping spec %q: %w", spec, err)
		}
	}

	return a, nil
}

// Admin exposes the administrative facade to whatever surface hosts it.
func (a *App) Admin() *admin.Service { return a.admin }

// Run starts everything and blocks until ctx is cancelled, then shuts down
// in order: engine, cron, watchers, storage, logging.
func (a *App) Run(ctx context.Context) error {
	cfg := a.cfgMgr.Get()

	backends := player.AvailableBackends()
	if len(backends) == 0 {
		if !a.opts.IgnoreMissingPlayer {
			return errors.New("no audio player found (install mpg123, ffplay, or vlc); use --ignore-missing-player to start anyway")
		}
		a.log.Warn("no audio player found; bells will ring silently")
	} else {
		a.log.Info("audio backend selected", logx.String("backend", backends[0].Name()))
	}

	if cfg.Player.SetupOutput {
		player.SetupAudioOutput(ctx, a.log)
	}

	sup := supervisor.New(ctx, supervisor.WithLogger(a.log))
	sup.Go("engine", a.engine.Run)
	if a.watchCfg {
		sup.GoRestart("config.watch", a.cfgMgr.Watch)
		sup.Go("config.apply", a.applyConfigUpdates)
	}
	if a.cron != nil {
		a.cron.Start()
	}

	notify(daemon.SdNotifyReady)
	a.startWatchdog(sup)
	a.log.Info("cobrell started",
		logx.String("db", cfg.Storage.Path),
		logx.String("timezone", a.loc.String()),
	)

	<-ctx.Done()
	notify(daemon.SdNotifyStopping)
	a.log.Info("shutting down")

	a.engine.Stop()
	if a.cron != nil {
		cronCtx := a.cron.Stop()
		<-cronCtx.Done()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := sup.Stop(stopCtx)
	a.Close()
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.New("shutdown timed out")
	}
	return err
}

// Close releases resources. Safe on a partially-constructed App.
func (a *App) Close() {
	if a.store != nil {
		_ = a.store.Close()
		a.store = nil
	}
	if a.logSvc != nil {
		_ = a.logSvc.Close()
		a.logSvc = nil
	}
}

// applyConfigUpdates reacts to hot reloads. Only logging changes take effect
// live; the rest need a restart and say so.
func (a *App) applyConfigUpdates(ctx context.Context) error {
	ch := a.cfgMgr.Subscribe(1)
	defer a.cfgMgr.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-ch:
			if !ok {
				return nil
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("logging config applied; other sections take effect on restart")
		}
	}
}

// housekeep prunes exceptions past the retention window and logs the day's
// outlook. Runs from cron at the configured time.
func (a *App) housekeep(retentionDays int) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().In(a.loc)
	cutoff := bell.DateOf(now.AddDate(0, 0, -retentionDays))
	pruned, err := a.store.PruneExceptionsBefore(ctx, cutoff)
	if err != nil {
		a.log.Error("exception prune failed", logx.Err(err))
	} else if pruned > 0 {
		a.log.Info("old exceptions pruned",
			logx.Int64("count", pruned),
			logx.String("cutoff", cutoff.String()),
		)
	}

	today, err := a.store.ActiveSchedulesOn(ctx, bell.DayOf(now))
	if err != nil {
		a.log.Error("schedule outlook failed", logx.Err(err))
		return
	}
	a.log.Info("today's bells", logx.String("day", bell.DayOf(now).Label()), logx.Int("count", len(today)))
}

// startWatchdog pings systemd at half the configured watchdog interval.
func (a *App) startWatchdog(sup *supervisor.Supervisor) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	sup.Go("watchdog", func(ctx context.Context) error {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				notify(daemon.SdNotifyWatchdog)
			}
		}
	})
}

func notify(state string) {
	// Outside systemd this is a no-op; errors are not actionable.
	_, _ = daemon.SdNotify(false, state)
}

// validateConfig rejects configs whose parseable fields don't parse. Used
// both at startup and as the hot-reload gate.
func validateConfig(c *config.Config) error {
	if _, err := config.ParseDurationField("scheduler.tick", c.Scheduler.Tick); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("player.grace", c.Player.Grace); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if tz := c.Scheduler.Timezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	if c.Housekeeping.Enabled && c.Housekeeping.Spec != "" {
		if _, err := cron.ParseStandard(c.Housekeeping.Spec); err != nil {
			return fmt.Errorf("housekeeping.spec: %w", err)
		}
	}
	return nil
}
