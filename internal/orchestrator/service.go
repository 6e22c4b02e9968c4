package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"castbot/internal/eventbus"
	"castbot/internal/player"
	"castbot/internal/runtime/supervisor"
	"castbot/internal/storage"
	"castbot/pkg/logx"
)

// rolloverSpec fires at local midnight (seconds field first).
const rolloverSpec = "0 0 0 * * *"

type Options struct {
	Source   Source
	Sink     player.Sink
	Location *time.Location

	PollInterval    time.Duration
	StatusInterval  time.Duration
	SafetyBuffer    time.Duration
	DispatchTimeout time.Duration
	MaxLateness     time.Duration

	NowFile     string
	PendingFile string
	IdleText    string

	History storage.Store
	Bus     eventbus.Bus
	Log     logx.Logger
	Now     func() time.Time
}

// Service runs the reconcile+dispatch loop and the status loop, plus a
// midnight job that rolls the registry over to the new day.
type Service struct {
	opts Options
	log  logx.Logger

	reg    *Registry
	rec    *Reconciler
	disp   *Dispatcher
	status *StatusPublisher

	mu   sync.Mutex
	sup  *supervisor.Supervisor
	cron *cron.Cron

	lastTick atomic.Int64 // unix nanos of the last completed reconcile tick
}

func New(opts Options) (*Service, error) {
	if opts.Source == nil || opts.Sink == nil {
		return nil, fmt.Errorf("orchestrator: source and sink are required")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = time.Second
	}
	if opts.SafetyBuffer <= 0 {
		opts.SafetyBuffer = 15 * time.Second
	}
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	for _, p := range []string{opts.NowFile, opts.PendingFile} {
		if err := ensureDir(p); err != nil {
			return nil, fmt.Errorf("create status dir for %s: %w", p, err)
		}
	}

	reg := NewRegistry(opts.SafetyBuffer)
	s := &Service{
		opts: opts,
		log:  opts.Log,
		reg:  reg,
		rec:  NewReconciler(opts.Source, reg, opts.Bus, opts.Log.With(logx.String("comp", "orchestrator.reconcile"))),
		disp: NewDispatcher(reg, DispatcherOptions{
			Sink:        opts.Sink,
			Timeout:     opts.DispatchTimeout,
			MaxLateness: opts.MaxLateness,
			NowFile:     opts.NowFile,
			History:     opts.History,
			Bus:         opts.Bus,
			Log:         opts.Log.With(logx.String("comp", "orchestrator.dispatch")),
		}),
	}
	if opts.PendingFile != "" {
		s.status = NewStatusPublisher(reg, opts.PendingFile, opts.IdleText, opts.Log.With(logx.String("comp", "orchestrator.status")))
	}
	return s, nil
}

func (s *Service) Registry() *Registry      { return s.reg }
func (s *Service) Dispatcher() *Dispatcher  { return s.disp }
func (s *Service) Location() *time.Location { return s.opts.Location }
func (s *Service) now() time.Time           { return s.opts.Now().In(s.opts.Location) }

// Supervisor exposes goroutine stats for status output. Nil before Start.
func (s *Service) Supervisor() *supervisor.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// LastTick is when the reconcile loop last completed a tick.
func (s *Service) LastTick() time.Time {
	n := s.lastTick.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}

	c := cron.New(
		cron.WithParser(cron.NewParser(cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithLocation(s.opts.Location),
	)
	if _, err := c.AddFunc(rolloverSpec, func() { s.guard("rollover", s.Rollover) }); err != nil {
		return fmt.Errorf("schedule rollover: %w", err)
	}

	sup := supervisor.New(ctx, supervisor.WithLogger(s.log.With(logx.String("comp", "orchestrator.supervisor"))))
	sup.GoRestart("reconcile", func(ctx context.Context) error {
		return s.loop(ctx, s.opts.PollInterval, "reconcile", s.reconcileTick)
	}, supervisor.WithRestartBackoff(time.Second, 30*time.Second), supervisor.WithPublishFirstError(true))
	if s.status != nil {
		sup.GoRestart("status", func(ctx context.Context) error {
			return s.loop(ctx, s.opts.StatusInterval, "status", s.statusTick)
		}, supervisor.WithRestartBackoff(time.Second, 30*time.Second), supervisor.WithPublishFirstError(true))
	}
	c.Start()

	s.sup, s.cron = sup, c
	s.log.Info("orchestrator started",
		logx.String("tz", s.opts.Location.String()),
		logx.Duration("poll", s.opts.PollInterval),
		logx.Duration("safety_buffer", s.opts.SafetyBuffer))
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup, c := s.sup, s.cron
	s.sup, s.cron = nil, nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	if sup == nil {
		return nil
	}
	err := sup.Stop(ctx)
	s.log.Info("orchestrator stopped")
	return err
}

// loop ticks immediately, then every interval, until ctx is done.
func (s *Service) loop(ctx context.Context, every time.Duration, name string, tick func(context.Context, time.Time)) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		s.guard(name, func(now time.Time) { tick(ctx, now) })
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// guard runs one tick; a panic is logged and the loop carries on.
func (s *Service) guard(name string, fn func(now time.Time)) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tick panicked", logx.String("loop", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	fn(s.now())
}

func (s *Service) reconcileTick(ctx context.Context, now time.Time) {
	s.ReconcileAndDispatch(ctx, now)
}

// ReconcileAndDispatch runs one reconcile tick followed by one dispatch tick.
func (s *Service) ReconcileAndDispatch(ctx context.Context, now time.Time) (added, fired int) {
	added = s.rec.Tick(ctx, now)
	fired = s.disp.Tick(ctx, now)
	s.lastTick.Store(time.Now().UnixNano())
	return added, fired
}

func (s *Service) statusTick(_ context.Context, now time.Time) {
	if err := s.status.Publish(now); err != nil {
		s.log.Warn("pending file write failed", logx.String("path", s.opts.PendingFile), logx.Err(err))
	}
}

// Rollover drops yesterday's triggers and forces a re-read so entries that were
// appended for today before midnight get admitted.
func (s *Service) Rollover(now time.Time) {
	n := s.reg.Prune(now)
	s.rec.Invalidate()
	s.log.Info("day rollover", logx.Int("pruned", n), logx.String("day", now.Format("2006-01-02")))
	if s.opts.Bus != nil {
		s.opts.Bus.Publish(eventbus.Event{Type: eventbus.TypeDayRollover, Time: now, Data: n})
	}
}

// Status is a point-in-time view for the status API.
type Status struct {
	Now        time.Time           `json:"now"`
	NowPlaying *NowPlaying         `json:"now_playing"`
	Upcoming   []Trigger           `json:"upcoming"`
	Triggers   map[string]int      `json:"triggers"`
	LastTick   time.Time           `json:"last_tick"`
	Supervisor supervisor.Snapshot `json:"supervisor"`
}

func (s *Service) Status() Status {
	now := s.now()
	counts := map[string]int{}
	for st, n := range s.reg.Counts() {
		counts[st.String()] = n
	}
	return Status{
		Now:        now,
		NowPlaying: s.disp.NowPlaying(),
		Upcoming:   s.reg.Upcoming(now, 0),
		Triggers:   counts,
		LastTick:   s.LastTick(),
		Supervisor: s.Supervisor().Snapshot(),
	}
}
