package orchestrator

import (
	"sort"
	"sync"
	"time"

	"castbot/internal/schedule"
)

type State int

const (
	Pending State = iota
	Fired
	Discarded
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fired:
		return "fired"
	case Discarded:
		return "discarded"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Key identifies a trigger across re-reads of the document: start|title|user.
type Key string

func KeyFor(start time.Time, title, user string) Key {
	return Key(start.Format(schedule.Layout) + "|" + title + "|" + user)
}

// Trigger is one pending playback. Triggers are one-shot.
type Trigger struct {
	Key     Key       `json:"key"`
	EntryID int       `json:"entry_id"`
	FireAt  time.Time `json:"fire_at"`
	Path    string    `json:"path"`
	Title   string    `json:"title"`
	User    string    `json:"user"`
	State   State     `json:"state"`
}

func TriggerFor(e schedule.Entry) Trigger {
	return Trigger{
		Key:     KeyFor(e.Start, e.Title, e.User),
		EntryID: e.ID,
		FireAt:  e.Start,
		Path:    e.Path,
		Title:   e.Title,
		User:    e.User,
		State:   Pending,
	}
}

// Registry holds every trigger of the current day. Fired and discarded triggers
// stay until pruned so their keys keep deduplicating.
type Registry struct {
	mu     sync.RWMutex
	byKey  map[Key]*Trigger
	safety time.Duration
}

// NewRegistry returns an empty registry. safety hides triggers this close to
// firing from Upcoming.
func NewRegistry(safety time.Duration) *Registry {
	return &Registry{byKey: map[Key]*Trigger{}, safety: safety}
}

func (r *Registry) Seen(k Key) bool {
	r.mu.RLock()
	_, ok := r.byKey[k]
	r.mu.RUnlock()
	return ok
}

// Register adds t as pending. It reports false when the key already exists.
func (r *Registry) Register(t Trigger) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[t.Key]; ok {
		return false
	}
	t.State = Pending
	r.byKey[t.Key] = &t
	return true
}

// DueNow returns pending triggers with FireAt <= at, earliest first.
func (r *Registry) DueNow(at time.Time) []Trigger {
	return r.collect(func(t *Trigger) bool {
		return t.State == Pending && !t.FireAt.After(at)
	})
}

// Upcoming returns pending triggers on at's calendar day that fire after
// at+safety and no later than at+horizon. horizon <= 0 means the rest of the day.
func (r *Registry) Upcoming(at time.Time, horizon time.Duration) []Trigger {
	from := at.Add(r.safety)
	return r.collect(func(t *Trigger) bool {
		if t.State != Pending || !t.FireAt.After(from) || !sameDay(t.FireAt, at) {
			return false
		}
		return horizon <= 0 || !t.FireAt.After(at.Add(horizon))
	})
}

func (r *Registry) MarkFired(k Key) bool { return r.transition(k, Fired) }

func (r *Registry) Discard(k Key) bool { return r.transition(k, Discarded) }

func (r *Registry) transition(k Key, to State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byKey[k]
	if !ok || t.State != Pending {
		return false
	}
	t.State = to
	return true
}

// Prune forgets triggers from days before now's day. Pending ones among them
// were missed and are simply dropped.
func (r *Registry) Prune(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, t := range r.byKey {
		if dayBefore(t.FireAt, now) {
			delete(r.byKey, k)
			n++
		}
	}
	return n
}

// Snapshot returns every trigger, earliest first.
func (r *Registry) Snapshot() []Trigger {
	return r.collect(func(*Trigger) bool { return true })
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

// Counts returns the number of triggers per state.
func (r *Registry) Counts() map[State]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[State]int{}
	for _, t := range r.byKey {
		out[t.State]++
	}
	return out
}

func (r *Registry) collect(keep func(*Trigger) bool) []Trigger {
	r.mu.RLock()
	out := make([]Trigger, 0, len(r.byKey))
	for _, t := range r.byKey {
		if keep(t) {
			out = append(out, *t)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].FireAt.Before(out[j].FireAt)
		}
		return out[i].EntryID < out[j].EntryID
	})
	return out
}

// sameDay compares calendar dates in ref's location.
func sameDay(t, ref time.Time) bool {
	t = t.In(ref.Location())
	y1, m1, d1 := t.Date()
	y2, m2, d2 := ref.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// dayBefore reports whether t falls on a calendar day before ref's.
func dayBefore(t, ref time.Time) bool {
	t = t.In(ref.Location())
	y1, m1, d1 := t.Date()
	y2, m2, d2 := ref.Date()
	return time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC).Before(time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC))
}
