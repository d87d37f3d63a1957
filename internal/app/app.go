package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"rconsched/internal/config"
	"rconsched/internal/eventbus"
	"rconsched/internal/notify"
	"rconsched/internal/registry"
	"rconsched/internal/scheduler"
	"rconsched/internal/secret"
	"rconsched/internal/storage"
	"rconsched/pkg/logx"
)

// App wires config, logging, credentials, the registry, the scheduler, run
// history and the notifier into one lifecycle.
type App struct {
	cfgPath   string
	statePath string

	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.Bus
	key  *secret.Key

	reg   *registry.Registry
	sched *scheduler.Service
	notif *notify.Service
	hist  storage.History

	mu      sync.Mutex
	cancel  context.CancelFunc
	bgDone  sync.WaitGroup
	started bool

	// saveMu serializes snapshot writes; dispatch goroutines all report
	// lastRun advances through here and must not interleave.
	saveMu sync.Mutex
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	envPath := strings.TrimSpace(cfg.EnvPath)
	if envPath == "" {
		envPath = config.DefaultEnvPath
	}
	key, created, err := secret.LoadOrCreateKey(envPath)
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("master key: %w", err)
	}
	if created {
		log.Info("master key generated", logx.String("path", envPath))
	}

	bus := eventbus.New()

	// Run history (optional).
	var hist storage.History
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		h, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		hist = h
		log.Info("run history enabled", logx.String("driver", sc.Driver))
	}

	statePath := strings.TrimSpace(cfg.StatePath)
	if statePath == "" {
		statePath = config.DefaultStatePath
	}
	state, err := storage.LoadState(statePath)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	regCfg, err := mapRegistryConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	reg := registry.New(regCfg, key, log.With(logx.String("comp", "registry")))
	for _, p := range state.Servers {
		if _, err := reg.Upsert(p); err != nil {
			log.Warn("dropping invalid server from snapshot", logx.String("server", p.Name), logx.Err(err))
		}
	}

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	sched := scheduler.New(schedCfg, reg, log.With(logx.String("comp", "scheduler")))
	sched.ReplaceJobs(state.Jobs)
	sched.SetBus(bus)
	if hist != nil {
		sched.SetSink(historySink{hist})
	}

	a := &App{
		cfgPath:   cfgPath,
		statePath: statePath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		key:       key,
		reg:       reg,
		sched:     sched,
		hist:      hist,
	}
	// Every job mutation (including lastRun advances) snapshots to disk, so
	// a restart resumes the schedule instead of replaying it.
	sched.SetOnChange(func(jobs []scheduler.Job) { a.saveState(jobs) })

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	notif, err := notify.New(ncfg, log.With(logx.String("comp", "notify")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	a.notif = notif

	return a, nil
}

// Scheduler exposes job management to the CLI.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Registry exposes server management to the CLI.
func (a *App) Registry() *registry.Registry { return a.reg }

// Key returns the loaded master key.
func (a *App) Key() *secret.Key { return a.key }

// History returns the durable run log, nil when disabled.
func (a *App) History() storage.History { return a.hist }

// Start brings every component up and begins watching the config file.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = true
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	// Warm up sessions in the background; dispatch reconnects lazily anyway.
	a.bgDone.Add(1)
	go func() {
		defer a.bgDone.Done()
		a.reg.ReconnectAll(runCtx)
	}()

	a.notif.Start(runCtx, a.bus)
	a.sched.Start(runCtx)

	a.bgDone.Add(1)
	go func() {
		defer a.bgDone.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	sub := a.cfgm.Subscribe(8)
	a.bgDone.Add(1)
	go func() {
		defer a.bgDone.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(cfg)
			}
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started", logx.Int("servers", len(a.reg.Profiles())), logx.Int("jobs", len(a.sched.Jobs())))
	return nil
}

// applyReload pushes a validated config into the running components.
// Storage driver changes need a restart; everything else applies live.
func (a *App) applyReload(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(mapLoggingConfig(cfg))

	if schedCfg, err := mapSchedulerConfig(cfg); err == nil {
		a.sched.Apply(schedCfg)
	}
	a.log.Info("config applied", logx.String("path", a.cfgPath))
}

// Stop shuts down in dependency order: scheduler first so nothing new is
// dispatched, then the notifier drains, then sessions close.
func (a *App) Stop(ctx context.Context) {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	started := a.started
	a.started = false
	a.mu.Unlock()
	if !started {
		return
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.sched.Stop(ctx)
	a.notif.Stop(ctx)
	if cancel != nil {
		cancel()
	}
	a.bgDone.Wait()

	a.reg.Close()
	if a.hist != nil {
		if err := a.hist.Close(); err != nil {
			a.log.Warn("history close failed", logx.Err(err))
		}
	}
	a.saveState(a.sched.Jobs())
	a.log.Info("stopped")
	_ = a.logs.Close()
}

// saveState snapshots servers and jobs atomically. Best-effort: a failed
// write is logged, never propagated into the scheduler.
func (a *App) saveState(jobs []scheduler.Job) {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()
	st := storage.State{
		Servers: a.reg.Profiles(),
		Jobs:    jobs,
	}
	if err := storage.SaveState(a.statePath, st); err != nil {
		a.log.Warn("state snapshot failed", logx.String("path", a.statePath), logx.Err(err))
	}
}

// SaveState forces a snapshot with the current job set. The CLI calls this
// after one-shot mutations (add server, add job).
func (a *App) SaveState() {
	a.saveState(a.sched.Jobs())
}

// historySink adapts storage.History to the scheduler's sink.
type historySink struct {
	h storage.History
}

func (s historySink) AppendRun(ctx context.Context, rec scheduler.RunRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.h.AppendRun(ctx, storage.RunEntry{
		At:         rec.Started,
		JobID:      rec.JobID,
		JobName:    rec.JobName,
		ServerID:   rec.ServerID,
		ServerName: rec.ServerName,
		Command:    rec.Command,
		Output:     rec.Output,
		Error:      rec.Err,
		Skipped:    rec.Skipped,
		TookMS:     rec.Duration.Milliseconds(),
	})
}
