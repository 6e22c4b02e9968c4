package orchestrator

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"time"

	"castbot/internal/eventbus"
	"castbot/internal/schedule"
	"castbot/pkg/logx"
)

// Source is the read side of the schedule document.
type Source interface {
	Fingerprint() (schedule.Fingerprint, error)
	Load(ctx context.Context) ([]schedule.Entry, bool)
}

// Reconciler installs triggers for document entries it has not seen yet.
// The document is re-read only when its fingerprint changes.
type Reconciler struct {
	src Source
	reg *Registry
	bus eventbus.Bus
	log logx.Logger

	mu   sync.Mutex
	last schedule.Fingerprint
	have bool
}

func NewReconciler(src Source, reg *Registry, bus eventbus.Bus, log logx.Logger) *Reconciler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reconciler{src: src, reg: reg, bus: bus, log: log}
}

// Invalidate makes the next Tick re-read the document.
func (r *Reconciler) Invalidate() {
	r.mu.Lock()
	r.have = false
	r.mu.Unlock()
}

// Tick reconciles once and returns the number of triggers registered.
func (r *Reconciler) Tick(ctx context.Context, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	fp, err := r.src.Fingerprint()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.log.Warn("schedule stat failed", logx.Err(err))
		}
		r.have = false
		return 0
	}
	if r.have && fp.Equal(r.last) {
		return 0
	}

	entries, ok := r.src.Load(ctx)
	if !ok {
		// fingerprint stays uncommitted so the next tick retries
		return 0
	}

	added := 0
	for _, e := range entries {
		if !sameDay(e.Start, now) || !e.Start.After(now) {
			continue
		}
		t := TriggerFor(e)
		if !r.reg.Register(t) {
			continue
		}
		added++
		r.log.Info("trigger registered",
			logx.Int("id", e.ID), logx.String("title", e.Title), logx.String("user", e.User),
			logx.Time("fire_at", e.Start))
		if r.bus != nil {
			r.bus.Publish(eventbus.Event{Type: eventbus.TypeTriggerRegistered, Time: now, Data: t})
		}
	}

	r.last, r.have = fp, true
	r.log.Debug("schedule reconciled", logx.Int("entries", len(entries)), logx.Int("added", added), logx.Int("registry", r.reg.Len()))
	return added
}
