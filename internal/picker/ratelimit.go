package picker

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// startLimiter allows one /start per user per interval.
type startLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	users    map[int64]*rate.Limiter
}

func newStartLimiter(interval time.Duration) *startLimiter {
	return &startLimiter{interval: interval, users: map[int64]*rate.Limiter{}}
}

// SetInterval applies a new interval. Existing per-user state is dropped.
func (l *startLimiter) SetInterval(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d == l.interval {
		return
	}
	l.interval = d
	l.users = map[int64]*rate.Limiter{}
}

// Wait reports how long user must wait before /start is allowed again.
// Zero means allowed, and the call counts as a use.
func (l *startLimiter) Wait(user int64, now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.interval <= 0 {
		return 0
	}
	lim, ok := l.users[user]
	if !ok {
		l.prune(now)
		lim = rate.NewLimiter(rate.Every(l.interval), 1)
		l.users[user] = lim
	}
	r := lim.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return d
	}
	return 0
}

// prune forgets users whose limiter has fully refilled.
func (l *startLimiter) prune(now time.Time) {
	if len(l.users) < 1024 {
		return
	}
	for id, lim := range l.users {
		if lim.TokensAt(now) >= 1 {
			delete(l.users, id)
		}
	}
}

// waitText renders "⏳ Try again after 4 min 10 sec"; minutes are omitted under one minute.
func waitText(d time.Duration) string {
	mins := int(d / time.Minute)
	secs := int((d % time.Minute) / time.Second)
	if mins > 0 {
		return fmt.Sprintf("⏳ Try again after %d min %d sec", mins, secs)
	}
	return fmt.Sprintf("⏳ Try again after %d sec", secs)
}
