package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"castbot/internal/eventbus"
	"castbot/internal/player"
	"castbot/internal/storage"
	"castbot/pkg/logx"
)

// NowPlaying is the last cue handed to the player successfully.
type NowPlaying struct {
	Title     string    `json:"title"`
	User      string    `json:"user"`
	Path      string    `json:"path"`
	StartedAt time.Time `json:"started_at"`
}

type DispatcherOptions struct {
	Sink    player.Sink
	Timeout time.Duration // per Play call
	// MaxLateness discards triggers that are this late. Zero fires regardless.
	MaxLateness time.Duration
	NowFile     string
	History     storage.Store // optional
	Bus         eventbus.Bus  // optional
	Log         logx.Logger
	WriteFile   func(path string, data []byte) error
}

// Dispatcher fires due triggers. Every due trigger is consumed exactly once,
// whether playback succeeds or not.
type Dispatcher struct {
	reg  *Registry
	opts DispatcherOptions

	mu  sync.RWMutex
	now *NowPlaying
}

func NewDispatcher(reg *Registry, opts DispatcherOptions) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.WriteFile == nil {
		opts.WriteFile = writeFileAtomic
	}
	return &Dispatcher{reg: reg, opts: opts}
}

// NowPlaying returns the current item, or nil before the first successful dispatch.
func (d *Dispatcher) NowPlaying() *NowPlaying {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.now == nil {
		return nil
	}
	cp := *d.now
	return &cp
}

// Tick fires everything due at now, earliest first, and returns how many were handled.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) int {
	due := d.reg.DueNow(now)
	for _, t := range due {
		if ctx.Err() != nil {
			return 0
		}
		d.fire(ctx, t, now)
	}
	return len(due)
}

func (d *Dispatcher) fire(ctx context.Context, t Trigger, now time.Time) {
	log := d.opts.Log.With(logx.String("title", t.Title), logx.String("user", t.User), logx.Time("fire_at", t.FireAt))

	if late := now.Sub(t.FireAt); d.opts.MaxLateness > 0 && late > d.opts.MaxLateness {
		d.reg.Discard(t.Key)
		log.Warn("trigger discarded; too late to play", logx.Duration("late", late))
		d.record(ctx, t, now, storage.OutcomeDiscarded, nil, 0)
		d.publish(eventbus.TypeTriggerDiscarded, now, t)
		return
	}

	start := time.Now()
	pctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	err := d.play(pctx, player.Cue{Path: t.Path, Title: t.Title, User: t.User})
	cancel()
	took := time.Since(start)

	// consumed even on failure; a retry would start late and push into the next slot
	d.reg.MarkFired(t.Key)

	if err != nil {
		log.Error("playback failed; trigger dropped", logx.Err(err), logx.Duration("took", took))
		d.record(ctx, t, now, storage.OutcomeFailed, err, took)
		d.publish(eventbus.TypePlaybackFailed, now, t)
		return
	}

	np := &NowPlaying{Title: t.Title, User: t.User, Path: t.Path, StartedAt: now}
	d.mu.Lock()
	d.now = np
	d.mu.Unlock()

	if d.opts.NowFile != "" {
		if werr := d.opts.WriteFile(d.opts.NowFile, []byte(t.Title+" | "+t.User)); werr != nil {
			log.Warn("now-playing file write failed", logx.String("path", d.opts.NowFile), logx.Err(werr))
		}
	}
	log.Info("playback started", logx.String("path", t.Path), logx.Duration("took", took))
	d.record(ctx, t, now, storage.OutcomePlayed, nil, took)
	d.publish(eventbus.TypePlaybackStarted, now, *np)
}

// play hands the cue to the sink; a panicking sink counts as a failed playback.
func (d *Dispatcher) play(ctx context.Context, c player.Cue) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("player panicked: %v", r)
		}
	}()
	return d.opts.Sink.Play(ctx, c)
}

func (d *Dispatcher) record(ctx context.Context, t Trigger, now time.Time, outcome string, err error, took time.Duration) {
	if d.opts.History == nil {
		return
	}
	p := storage.Play{
		At:      now,
		FireAt:  t.FireAt,
		EntryID: t.EntryID,
		Title:   t.Title,
		Path:    t.Path,
		User:    t.User,
		Outcome: outcome,
		TookMS:  took.Milliseconds(),
	}
	if err != nil {
		p.Error = err.Error()
	}
	if herr := d.opts.History.AppendPlay(ctx, p); herr != nil {
		d.opts.Log.Warn("play history append failed", logx.Err(herr))
	}
}

func (d *Dispatcher) publish(typ string, now time.Time, data any) {
	if d.opts.Bus != nil {
		d.opts.Bus.Publish(eventbus.Event{Type: typ, Time: now, Data: data})
	}
}
