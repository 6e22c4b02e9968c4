package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"castbot/internal/config"
	"castbot/internal/eventbus"
	"castbot/internal/orchestrator"
	"castbot/internal/player"
	"castbot/internal/runtime/supervisor"
	"castbot/internal/schedule"
	"castbot/internal/statushttp"
	"castbot/internal/storage"
	kit "castbot/internal/transport"
	telegram "castbot/internal/transport/telegram/adapter"
	"castbot/pkg/logx"
	"castbot/pkg/systemd"
)

// Orchestrator is the playout daemon: schedule document in, playback commands
// and status files out.
type Orchestrator struct {
	cfgm *config.Manager
	set  config.Settings

	log  logx.Logger
	logs *logx.Service
	sup  *supervisor.Supervisor
	bus  *eventbus.MemBus

	sender kit.Sender // nil without a bot token
	store  storage.Store
	svc    *orchestrator.Service
	http   *statushttp.Service
	sd     *systemd.Notifier
}

func NewOrchestrator(cfgPath string) (*Orchestrator, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	set, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateOrchestrator(set); err != nil {
		return nil, err
	}
	return newOrchestrator(cfgm, cfg, set)
}

func newOrchestrator(cfgm *config.Manager, cfg *config.Config, set config.Settings) (*Orchestrator, error) {
	// Telegram is optional here and send-only: the log sink and announcements use it.
	var sender kit.Sender
	if cfg.Telegram.Token != "" {
		ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, Offline: true},
			logx.NewConsole("INFO").With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sender = ad
	}

	logSvc, log := newLogging(cfg, set, sender)
	log = log.With(logx.String("comp", "app"))

	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	var store storage.Store
	if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("play history enabled", logx.String("driver", sc.Driver))
	}

	sink, err := newSink(set, log.With(logx.String("comp", "player")))
	if err != nil {
		return nil, err
	}

	doc, err := schedule.NewStore(schedule.Options{
		Path:        set.SchedulePath,
		Location:    set.Location,
		Grace:       set.Grace,
		ReadRetries: set.ReadRetries,
		ReadBackoff: set.ReadBackoff,
		Log:         log.With(logx.String("comp", "schedule")),
	})
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	svc, err := orchestrator.New(orchestrator.Options{
		Source:          doc,
		Sink:            sink,
		Location:        set.Location,
		PollInterval:    set.PollInterval,
		StatusInterval:  set.StatusInterval,
		SafetyBuffer:    set.SafetyBuffer,
		DispatchTimeout: set.DispatchTimeout,
		MaxLateness:     set.MaxLateness,
		NowFile:         set.NowFile,
		PendingFile:     set.PendingFile,
		IdleText:        set.IdleText,
		History:         store,
		Bus:             bus,
		Log:             log.With(logx.String("comp", "orchestrator")),
	})
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfgm:   cfgm,
		set:    set,
		log:    log,
		logs:   logSvc,
		bus:    bus,
		sender: sender,
		store:  store,
		svc:    svc,
		sd:     systemd.New(log.With(logx.String("comp", "systemd"))),
	}
	if set.Status.Enabled {
		hlog := log.With(logx.String("comp", "statushttp"))
		o.http = statushttp.New(statushttp.Config{
			Addr:         set.Status.Addr,
			Dir:          set.Status.Dir,
			ReadTimeout:  set.Status.ReadTimeout,
			WriteTimeout: set.Status.WriteTimeout,
		}, statushttp.NewHandler(svc, store, set.Status.Dir, hlog), hlog)
	}
	return o, nil
}

func newSink(set config.Settings, log logx.Logger) (player.Sink, error) {
	switch set.PlayerDriver {
	case "obs":
		return player.NewOBS(player.OBSConfig{
			Addr:     set.PlayerAddr,
			Password: set.PlayerPassword,
			Scene:    set.PlayerScene,
			Input:    set.PlayerInput,
			Timeout:  set.PlayerTimeout,
			Log:      log,
		}), nil
	case "dryrun":
		return player.DryRun{Log: log}, nil
	default:
		return nil, fmt.Errorf("unknown player driver %q", set.PlayerDriver)
	}
}

func (o *Orchestrator) Service() *orchestrator.Service { return o.svc }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (o *Orchestrator) Done() <-chan struct{} {
	if o.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return o.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (o *Orchestrator) Err() error {
	if o.sup == nil {
		return nil
	}
	return o.sup.Err()
}

func (o *Orchestrator) Start(ctx context.Context) error {
	o.sup = supervisor.New(ctx, supervisor.WithLogger(o.log), supervisor.WithCancelOnError(true))

	o.cfgm.SetLogger(o.log.With(logx.String("comp", "config")))
	o.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		s, err := config.Resolve(cfg)
		if err != nil {
			return err
		}
		return config.ValidateOrchestrator(s)
	})

	if err := o.svc.Start(o.sup.Context()); err != nil {
		return err
	}
	if o.http != nil {
		o.http.Start(o.sup.Context())
	}

	if o.set.AnnounceChat != 0 {
		if o.sender == nil {
			o.log.Warn("orchestrator.announce_chat is set but telegram.token is empty; announcements disabled")
		} else {
			events, unsub := o.bus.Subscribe(64)
			alog := o.log.With(logx.String("comp", "announce"), logx.String("chat", strconv.FormatInt(o.set.AnnounceChat, 10)))
			o.sup.Go0("announce", func(c context.Context) {
				defer unsub()
				announce(c, events, o.sender, o.set.AnnounceChat, o.set.Location, alog)
			})
		}
	}

	events, unsub := o.bus.Subscribe(128)
	o.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				o.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	o.sup.Go0("config.reload", func(c context.Context) {
		reloadLoop(c, o.cfgm, o.log, func(_ context.Context, cfg *config.Config) {
			set, err := config.Resolve(cfg)
			if err != nil {
				o.log.Warn("invalid config; keeping previous", logx.Err(err))
				return
			}
			applyLogging(o.logs, cfg, set, o.sender != nil)
		})
	})
	o.sup.Go("config.watch", func(c context.Context) error {
		return o.cfgm.Watch(c)
	})

	o.sup.Go("systemd.watchdog", func(c context.Context) error {
		return o.sd.RunWatchdog(c, o.healthy)
	})
	o.sd.Ready()
	o.sd.Status("playout running")

	o.log.Info("app started",
		logx.String("schedule", o.set.SchedulePath),
		logx.String("player", o.set.PlayerDriver),
		logx.Bool("status_http", o.http != nil))
	return nil
}

// healthy reports whether the reconcile loop ticked recently.
func (o *Orchestrator) healthy() bool {
	last := o.svc.LastTick()
	if last.IsZero() {
		return false
	}
	return time.Since(last) < max(3*o.set.PollInterval, 10*time.Second)
}

func (o *Orchestrator) Stop(ctx context.Context, reason StopReason) error {
	if o.sup == nil {
		return nil
	}
	o.log.Info("stopping", logx.String("reason", string(reason)))
	o.sd.Stopping()

	o.sup.Cancel()

	stopStep(ctx, o.log, "orchestrator", 3*time.Second, o.svc.Stop)
	stopStep(ctx, o.log, "statushttp", time.Second, func(c context.Context) error {
		if o.http != nil {
			o.http.Stop(c)
		}
		return nil
	})
	stopStep(ctx, o.log, "storage", time.Second, func(context.Context) error {
		if o.store != nil {
			return o.store.Close()
		}
		return nil
	})
	stopStep(ctx, o.log, "supervisor", 2*time.Second, o.sup.Wait)

	o.log.Info("stopped")
	if o.logs != nil {
		o.logs.Close()
	}
	return nil
}
