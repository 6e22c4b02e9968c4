// Package adapter connects telebot's long poller to the transport types.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"castbot/internal/runtime/supervisor"
	kit "castbot/internal/transport"
	"castbot/pkg/logx"
)

const (
	defaultPollTimeout = 10 * time.Second
	dropReportEvery    = 5 * time.Second
	stopGrace          = 2 * time.Second
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// Offline skips getMe at construction. An offline adapter sends but cannot Start.
	Offline bool
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	mu  sync.Mutex
	sup *supervisor.Supervisor
	out chan<- kit.Update

	dropped atomic.Uint64

	menuMu  sync.Mutex
	menuKey string
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	cfg.Token = strings.TrimSpace(cfg.Token)
	if cfg.Token == "" {
		return nil, errors.New("telegram: token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: cfg.PollTimeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	b.Handle(tele.OnText, func(c tele.Context) error {
		if up, ok := messageUpdate(c.Message()); ok {
			a.deliver(up)
		}
		return nil
	})
	b.Handle(tele.OnCallback, func(c tele.Context) error {
		if up, ok := callbackUpdate(c.Callback()); ok {
			a.deliver(up)
		}
		return nil
	})
	return a, nil
}

// Start begins long polling; updates go to out and are dropped when out is full.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if a.cfg.Offline {
		return errors.New("telegram: offline adapter cannot poll")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup != nil {
		return nil
	}
	a.out = out
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))))

	a.sup.Go0("telegram.poll", func(context.Context) {
		// returns once bot.Stop is called
		a.bot.Start()
	})
	a.sup.Go0("telegram.stop", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	a.sup.Go0("telegram.drops", func(c context.Context) {
		t := time.NewTicker(dropReportEvery)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDrops(cap(out))
				return
			case <-t.C:
				a.reportDrops(cap(out))
			}
		}
	})

	a.log.Info("polling started", logx.Duration("timeout", a.cfg.PollTimeout))
	return nil
}

// Stop ends polling. A getUpdates call still in flight is abandoned after a short grace.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	a.sup, a.out = nil, nil
	a.mu.Unlock()
	if sup == nil {
		return nil
	}

	sup.Cancel()
	wctx, cancel := context.WithTimeout(ctx, stopGrace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		a.log.Warn("telegram poller did not stop in time", logx.Err(err))
	}
	a.log.Info("polling stopped")
	return nil
}

func (a *Adapter) deliver(up kit.Update) {
	a.mu.Lock()
	out := a.out
	a.mu.Unlock()
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.dropped.Add(1)
	}
}

func (a *Adapter) reportDrops(capacity int) {
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("updates dropped; consumer is behind", logx.Uint64("count", n), logx.Int("chan_cap", capacity))
	}
}
