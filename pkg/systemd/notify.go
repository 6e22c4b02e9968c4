// Package systemd speaks the sd_notify protocol. Outside a systemd unit
// (NOTIFY_SOCKET unset) every call is a no-op.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"castbot/pkg/logx"
)

// Notifier sends readiness, shutdown and watchdog states to the service manager.
type Notifier struct {
	log      logx.Logger
	notify   func(state string) (bool, error)
	watchdog func() (time.Duration, error)
}

func New(log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{
		log:      log,
		notify:   func(state string) (bool, error) { return daemon.SdNotify(false, state) },
		watchdog: func() (time.Duration, error) { return daemon.SdWatchdogEnabled(false) },
	}
}

func (n *Notifier) send(state string) bool {
	sent, err := n.notify(state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	return sent
}

func (n *Notifier) Ready() {
	if n.send(daemon.SdNotifyReady) {
		n.log.Debug("notified systemd: ready")
	}
}

func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(s string) { n.send("STATUS=" + s) }

// WatchdogInterval is WatchdogSec from the unit, or 0 when the watchdog is off.
func (n *Notifier) WatchdogInterval() time.Duration {
	d, err := n.watchdog()
	if err != nil {
		n.log.Warn("watchdog config unreadable", logx.Err(err))
		return 0
	}
	return d
}

// RunWatchdog pings the watchdog at half the configured interval while healthy
// reports true. A stalled process stops pinging and systemd restarts it.
// It returns immediately when the watchdog is off.
func (n *Notifier) RunWatchdog(ctx context.Context, healthy func() bool) error {
	interval := n.WatchdogInterval()
	if interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil && !healthy() {
				n.log.Warn("unhealthy; skipping watchdog ping")
				continue
			}
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
