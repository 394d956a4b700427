// Package app wires the bot together: logging, config, transport, storage,
// fanout, monitors and the command router, and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"hydrobot/internal/commands"
	"hydrobot/internal/config"
	"hydrobot/internal/eventbus"
	"hydrobot/internal/fanout"
	"hydrobot/internal/fetch"
	"hydrobot/internal/monitor"
	"hydrobot/internal/runtime/supervisor"
	"hydrobot/internal/storage"
	"hydrobot/internal/transport"
	"hydrobot/internal/transport/telegram"
	"hydrobot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter transport.Adapter
	httpc   *http.Client
	fanout  *fanout.Fanout

	feed         *monitor.FeedMonitor
	presence     *monitor.PresenceMonitor
	feedLoop     *monitor.Loop
	presenceLoop *monitor.Loop

	router  *commands.Router
	updates chan transport.Update

	startedAt time.Time
	stopOnce  sync.Once
}

// New loads the config file at cfgPath and builds the app with the
// Telegram transport.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	pollTimeout, err := config.DurationOr("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}

	// Logging comes first; the chat sink gets its sender once the bot exists.
	logSvc, log := logx.New(logConfig(cfg), nil)
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	logSvc.SetSender(ad)

	cfgm.SetValidator(func(_ context.Context, next *config.Config) error {
		if next.Telegram.Token == "" {
			return errors.New("telegram.token cannot be cleared while running")
		}
		return nil
	})
	return build(cfgm, ad, logSvc, log)
}

// NewWithAdapter builds the app around an already loaded config and a
// transport.
func NewWithAdapter(cfgm *config.Manager, ad transport.Adapter) (*App, error) {
	logSvc, log := logx.New(logConfig(cfgm.Get()), ad)
	return build(cfgm, ad, logSvc, log)
}

func build(cfgm *config.Manager, ad transport.Adapter, logSvc *logx.Service, log logx.Logger) (*App, error) {
	cfg := cfgm.Get()
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	var store storage.Store
	if cfg.Storage != nil {
		st, err := storage.Open(storage.Config{Driver: cfg.Storage.Driver, Path: cfg.Storage.Path}, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, fmt.Errorf("open storage: %w", err)
		}
		if st != nil {
			store = st
			log.Info("storage enabled", logx.Category("SYSTEM"), logx.String("driver", cfg.Storage.Driver))
		}
	}

	rps, sendTimeout := notifierLimits(cfg)
	bus := eventbus.New()
	fo := fanout.New(fanout.Options{
		Destinations: cfgm.Destinations,
		Sender:       ad,
		RatePerSec:   rps,
		SendTimeout:  sendTimeout,
		Log:          log.With(logx.String("comp", "fanout")),
		Bus:          bus,
		Store:        store,
	})

	feedTimeout, _ := config.DurationOr("feed.timeout", cfg.Feed.Timeout, config.DefaultFeedTimeout)
	presenceTimeout, _ := config.DurationOr("presence.timeout", cfg.Presence.Timeout, config.DefaultPresenceTimeout)
	httpc := fetch.NewHTTPClient()

	feed := monitor.NewFeedMonitor(cfgm,
		fetch.NewFeedFetcher(httpc, feedTimeout),
		fo.WithSource("feed"),
		log.With(logx.String("comp", "feed")))
	presence := monitor.NewPresenceMonitor(cfgm,
		fetch.NewSteamFetcher(httpc, cfg.Presence.Endpoint, presenceTimeout),
		fo.WithSource("presence"),
		log.With(logx.String("comp", "presence")))

	a := &App{
		cfgm:         cfgm,
		log:          log.With(logx.String("comp", "app")),
		logs:         logSvc,
		bus:          bus,
		store:        store,
		adapter:      ad,
		httpc:        httpc,
		fanout:       fo,
		feed:         feed,
		presence:     presence,
		feedLoop:     monitor.NewLoop(feed, log, bus),
		presenceLoop: monitor.NewLoop(presence, log, bus),
		updates:      make(chan transport.Update, 256),
	}
	a.router = commands.New(commands.Deps{
		Config: cfgm,
		Sender: ad,
		Store:  store,
		Status: a.status,
		Log:    log,
		SelfID: ad.SelfID(),
	})
	return a, nil
}

func logConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path, Daily: lc.File.Daily},
		Chat:    logx.ChatConfig{Enabled: lc.Chat.Enabled, GroupID: lc.Chat.GroupID, MinLevel: lc.Chat.MinLevel, RatePerSec: lc.Chat.RatePerSec},
	}
}

func notifierLimits(cfg *config.Config) (int, time.Duration) {
	timeout, err := config.DurationOr("notifier.send_timeout", cfg.Notifier.SendTimeout, config.DefaultSendTimeout)
	if err != nil {
		timeout = config.DefaultSendTimeout
	}
	return cfg.Notifier.RatePerSec, timeout
}

func (a *App) status() commands.Status {
	st := commands.Status{
		StartedAt: a.startedAt,
		Monitors:  []monitor.Status{a.feedLoop.Status(), a.presenceLoop.Status()},
		SeenItems: a.feed.SeenCount(),
		Subjects:  a.presence.Subjects(),
	}
	if a.sup != nil {
		st.Goroutines = a.sup.Snapshot()
	}
	return st
}

// Done is closed when the app context is cancelled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Start launches the transport, the command dispatcher, both monitors and
// the config watcher. It returns once everything is running.
func (a *App) Start(ctx context.Context) error {
	a.startedAt = time.Now()
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	monitor.Start(a.sup, a.feedLoop, a.presenceLoop)

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
	last := a.cfgm.Get()
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
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

	if a.cfgm.Path() != "" {
		a.sup.Go("config.watch", func(c context.Context) error {
			return a.cfgm.Watch(c)
		})
	}

	a.announce(ctx, "started, say hello!")
	a.log.Info("all monitors started", logx.Category("SYSTEM"))
	return nil
}

// applyConfig pushes a committed config change into the running components.
// Cadence, sources and destinations are read per cycle and need nothing here.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(logConfig(next))
		case "notifier":
			a.fanout.SetLimits(notifierLimits(next))
		case "storage", "telegram":
			a.log.Warn(s+" config changed; restart required for changes to take effect", logx.Category("SYSTEM"))
		case "presence":
			// A key set at runtime starts a monitor that exited without one.
			if next.Presence.APIKey != "" && !a.presenceLoop.Running() && ctx.Err() == nil {
				a.log.Info("presence api key set; starting presence monitor", logx.Category("STEAM"))
				monitor.Start(a.sup, a.presenceLoop)
			}
		}
	}

	fields := append([]logx.Field{logx.Category("SYSTEM"), logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// announce tells the admin group about lifecycle changes. Best-effort.
func (a *App) announce(ctx context.Context, what string) {
	group := a.cfgm.Get().Telegram.AdminGroup
	if group == "" {
		return
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "unknown host"
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.adapter.SendGroupMessage(actx, group, fmt.Sprintf("Bot on %s %s", host, what)); err != nil {
		a.log.Warn("admin announcement failed", logx.Category("SYSTEM"), logx.Err(err))
	}
}

// Stop shuts everything down in order, bounding each step.
func (a *App) Stop(ctx context.Context, reason string) error {
	if a.sup == nil {
		return nil
	}
	a.stopOnce.Do(func() { a.stop(ctx, reason) })
	return nil
}

func (a *App) stop(ctx context.Context, reason string) {
	a.log.Info("stopping", logx.Category("SYSTEM"), logx.String("reason", reason))
	a.announce(ctx, "is shutting down, see you next time")

	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
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
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("http", time.Second, func(context.Context) error {
		a.httpc.CloseIdleConnections()
		return nil
	})
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped", logx.Category("SYSTEM"))
	_ = a.logs.Close()
}
