// Package app wires configuration, storage, the poll pipeline and the HTTP
// surface into one process and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ghbridge/internal/bridge"
	"ghbridge/internal/config"
	"ghbridge/internal/eventbus"
	"ghbridge/internal/github"
	"ghbridge/internal/httpapi"
	"ghbridge/internal/poller"
	"ghbridge/internal/push"
	rtsup "ghbridge/internal/runtime/supervisor"
	"ghbridge/internal/state"
	"ghbridge/internal/storage"
	"ghbridge/pkg/logx"
	"ghbridge/pkg/systemd"
)

// watchMaxRestarts bounds how often a failing config watcher is restarted
// before the daemon gives up.
const watchMaxRestarts = 10

type Options struct {
	ConfigPath string
	Version    string
}

type App struct {
	opts     Options
	cfgm     *config.Manager
	settings config.Settings

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.Bus
	sd   *systemd.Notifier

	store    storage.Store
	state    *state.State
	pipeline *bridge.Pipeline
	poller   *poller.Service
	http     *httpapi.Service

	sup *rtsup.Supervisor
}

// New loads configuration, opens the state store and builds every component.
// Nothing runs until Start.
func New(ctx context.Context, opts Options) (*App, error) {
	cfgm := config.NewManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	settings, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(settings))
	appLog := log.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open state store: %w", err)
	}
	st := state.New(ctx, store, settings.GitHubToken, log.With(logx.String("comp", "state")))

	bus := eventbus.New()

	version := strings.TrimSpace(opts.Version)
	if version == "" {
		version = "dev"
	}
	gh := github.NewClient(github.Config{
		BaseURL:   settings.GitHubAPIURL,
		Token:     st.Credential(),
		UserAgent: "ghbridge/" + version,
		PerPage:   settings.GitHubPerPage,
		MaxPages:  settings.GitHubMaxPages,
		Timeout:   settings.GitHubTimeout,
	})
	fwd := push.New(push.Config{
		Timeout:    settings.PushTimeout,
		RatePerSec: settings.PushRatePerSec,
	})
	pipeline := bridge.New(st, gh, fwd,
		bridge.WithBootstrapWindow(settings.BootstrapWindow),
		bridge.WithBus(bus),
		bridge.WithLogger(log.With(logx.String("comp", "bridge"))),
	)

	sd := systemd.New(settings.SystemdNotify)
	pl := poller.New(pipeline, poller.Config{
		Interval: settings.PollInterval,
		AfterCycle: func(bridge.Result) {
			if err := sd.Watchdog(); err != nil {
				appLog.Debug("watchdog notify failed", logx.Err(err))
			}
		},
	}, log.With(logx.String("comp", "poller")))

	a := &App{
		opts:     opts,
		cfgm:     cfgm,
		settings: settings,
		log:      appLog,
		logs:     logSvc,
		bus:      bus,
		sd:       sd,
		store:    store,
		state:    st,
		pipeline: pipeline,
		poller:   pl,
	}
	a.http = httpapi.New(httpapi.Config{
		Addr:         settings.ServerAddr,
		Token:        settings.ServerToken,
		ReadTimeout:  settings.ServerReadTimeout,
		WriteTimeout: settings.ServerWriteTimeout,
		IdleTimeout:  settings.ServerIdleTimeout,
	}, st, pipeline, log.With(logx.String("comp", "http")),
		httpapi.WithPollerStatus(func() any { return pl.Status() }),
		httpapi.WithTaskStatus(a.tasks),
	)
	return a, nil
}

// tasks reports the supervised goroutines; nil before Start.
func (a *App) tasks() any {
	if a.sup == nil {
		return nil
	}
	return a.sup.Tasks()
}

func (a *App) State() *state.State { return a.state }

// RunOnce runs a single poll cycle without starting the daemon.
func (a *App) RunOnce(ctx context.Context) bridge.Result {
	return a.pipeline.RunCycle(ctx)
}

// Done is closed when the app stops on its own (fatal task error).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the app supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start binds the HTTP surface, launches the poller and the config watcher,
// then reports READY to systemd.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	sctx := a.sup.Context()

	if err := a.http.Start(sctx); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("http listen %s: %w", a.settings.ServerAddr, err)
	}

	if ep, ok := a.state.Endpoint(); ok {
		a.log.Info("push endpoint registered", logx.String("endpoint", ep))
	} else {
		a.log.Info("no push endpoint yet; waiting for POST /register")
	}
	a.poller.Start(sctx)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(cfg *config.Config) error {
		_, err := config.Resolve(cfg)
		return err
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch,
		rtsup.WithBackoff(time.Second, 30*time.Second),
		rtsup.WithMaxRestarts(watchMaxRestarts),
	)
	a.sup.Go("config.apply", a.applyReloads)
	a.sup.Go("eventbus.log", a.logEvents)

	if wd := systemd.WatchdogInterval(); wd > 0 && wd < a.settings.PollInterval {
		a.log.Warn("systemd WatchdogSec is shorter than the poll interval",
			logx.Duration("watchdog", wd),
			logx.Duration("interval", a.settings.PollInterval),
		)
	}
	if err := a.sd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	}
	a.log.Info("ghbridge started",
		logx.String("addr", a.http.Addr()),
		logx.Duration("interval", a.settings.PollInterval),
		logx.String("state", a.settings.StateDriver),
	)
	return nil
}

// Stop shuts everything down in reverse start order.
func (a *App) Stop(ctx context.Context) error {
	_ = a.sd.Stopping()
	a.log.Info("stopping")

	a.http.Stop(ctx)
	a.poller.Stop(ctx)

	var errs []error
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close state store: %w", err))
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}

// Close releases resources of an app that was never started.
func (a *App) Close() error {
	err := a.store.Close()
	_ = a.logs.Close()
	return err
}

func (a *App) applyReloads(ctx context.Context) error {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-sub:
			if !ok {
				return nil
			}
			a.applyConfig(last, cfg)
			last = cfg
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	change := config.SummarizeChange(prev, next)
	if change.Empty() {
		return
	}
	s, err := config.Resolve(next)
	if err != nil {
		a.log.Warn("reloaded config invalid; keeping previous", logx.Err(err))
		return
	}
	fields := append([]logx.Field{
		logx.String("live", strings.Join(change.Live, ",")),
		logx.String("restart", strings.Join(change.Restart, ",")),
	}, change.Fields...)
	a.log.Info("config change", fields...)

	a.logs.Apply(mapLogConfig(s))
	a.poller.SetInterval(s.PollInterval)
	if len(change.Restart) > 0 {
		a.log.Warn("some config changes need a restart", logx.String("sections", strings.Join(change.Restart, ",")))
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Data: change.Live})
}

func (a *App) logEvents(ctx context.Context) error {
	sub := a.bus.Subscribe(32)
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub.C:
			if !ok {
				return nil
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

// ReadState loads the persisted state without starting anything or
// requiring a GitHub token.
func ReadState(ctx context.Context, configPath string) (storage.PersistedState, error) {
	cfg, err := config.NewManager(configPath).Load()
	if err != nil {
		return storage.PersistedState{}, fmt.Errorf("load config: %w", err)
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return storage.PersistedState{}, err
	}
	store, err := storage.Open(sc, logx.Nop())
	if err != nil {
		return storage.PersistedState{}, err
	}
	defer store.Close()

	st, err := store.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.PersistedState{}, nil
	}
	return st, err
}
