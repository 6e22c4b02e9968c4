package app

import (
	"context"
	"time"

	"github.com/spf13/afero"

	"castbot/internal/config"
	"castbot/internal/picker"
	"castbot/internal/probe"
	"castbot/internal/runtime/supervisor"
	"castbot/internal/schedule"
	kit "castbot/internal/transport"
	telegram "castbot/internal/transport/telegram/adapter"
	"castbot/internal/transport/telegram/router"
	"castbot/pkg/logx"
	"castbot/pkg/systemd"
)

// Picker is the chat bot that appends user picks to the schedule document.
type Picker struct {
	cfgm *config.Manager
	set  config.Settings

	log  logx.Logger
	logs *logx.Service
	sup  *supervisor.Supervisor

	adapter *telegram.Adapter
	router  *router.Router
	bot     *picker.Bot
	sd      *systemd.Notifier

	updates chan kit.Update
}

func NewPicker(cfgPath string) (*Picker, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	set, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	if err := config.ValidatePicker(cfg, set); err != nil {
		return nil, err
	}

	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: set.PollTimeout},
		logx.NewConsole("INFO").With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	logSvc, log := newLogging(cfg, set, ad)
	log = log.With(logx.String("comp", "app"))

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

	bot := picker.New(picker.Options{
		Library:  picker.NewLibrary(afero.NewOsFs(), set.Folders, set.Extensions),
		Schedule: doc,
		Estimator: probe.New(probe.Options{
			Binary:   set.FFprobe,
			Timeout:  set.ProbeTimeout,
			Fallback: set.ProbeFallback,
			Log:      log.With(logx.String("comp", "probe")),
		}),
		Location:  set.Location,
		PageSize:  set.FilesPerPage,
		RateLimit: set.RateLimit,
		Log:       log.With(logx.String("comp", "picker")),
	})

	rt := router.New(log.With(logx.String("comp", "router")), ad)
	rt.SetAllowed(cfg.Telegram.AllowedUserIDs)
	rt.SetRegistry(bot.Commands(), bot.Callbacks())

	return &Picker{
		cfgm:    cfgm,
		set:     set,
		log:     log,
		logs:    logSvc,
		adapter: ad,
		router:  rt,
		bot:     bot,
		sd:      systemd.New(log.With(logx.String("comp", "systemd"))),
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (p *Picker) Done() <-chan struct{} {
	if p.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return p.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (p *Picker) Err() error {
	if p.sup == nil {
		return nil
	}
	return p.sup.Err()
}

func (p *Picker) Start(ctx context.Context) error {
	p.sup = supervisor.New(ctx, supervisor.WithLogger(p.log), supervisor.WithCancelOnError(true))

	p.cfgm.SetLogger(p.log.With(logx.String("comp", "config")))
	p.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		s, err := config.Resolve(cfg)
		if err != nil {
			return err
		}
		return config.ValidatePicker(cfg, s)
	})

	if err := p.adapter.Start(p.sup.Context(), p.updates); err != nil {
		return err
	}
	p.sup.Go("router.dispatch", func(c context.Context) error {
		return p.router.DispatchLoop(c, p.updates)
	})

	p.sup.Go0("config.reload", func(c context.Context) {
		reloadLoop(c, p.cfgm, p.log, func(_ context.Context, cfg *config.Config) {
			set, err := config.Resolve(cfg)
			if err != nil {
				p.log.Warn("invalid config; keeping previous", logx.Err(err))
				return
			}
			applyLogging(p.logs, cfg, set, true)
			p.router.SetAllowed(cfg.Telegram.AllowedUserIDs)
			p.bot.Reconfigure(set.Folders, set.Extensions, set.FilesPerPage, set.RateLimit)
		})
	})
	p.sup.Go("config.watch", func(c context.Context) error {
		return p.cfgm.Watch(c)
	})

	p.sd.Ready()
	p.log.Info("app started", logx.Int("folders", len(p.set.Folders)), logx.String("schedule", p.set.SchedulePath))
	return nil
}

func (p *Picker) Stop(ctx context.Context, reason StopReason) error {
	if p.sup == nil {
		return nil
	}
	p.log.Info("stopping", logx.String("reason", string(reason)))
	p.sd.Stopping()

	p.sup.Cancel()

	stopStep(ctx, p.log, "adapter", 2*time.Second, p.adapter.Stop)
	stopStep(ctx, p.log, "supervisor", 2*time.Second, p.sup.Wait)

	p.log.Info("stopped")
	if p.logs != nil {
		p.logs.Close()
	}
	return nil
}
