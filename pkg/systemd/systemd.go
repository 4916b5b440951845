// Package systemd reports service state to systemd through sd_notify.
// Every call is a no-op when the process was not started by systemd.
package systemd

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify messages. The zero value is disabled.
type Notifier struct {
	enabled bool
	send    func(state string) (bool, error)
}

// New returns a notifier; enabled=false gives a no-op one.
func New(enabled bool) *Notifier {
	return &Notifier{
		enabled: enabled,
		send:    func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
}

func (n *Notifier) notify(state string) error {
	if n == nil || !n.enabled || n.send == nil {
		return nil
	}
	_, err := n.send(state)
	return err
}

// Ready tells systemd startup finished (Type=notify units).
func (n *Notifier) Ready() error { return n.notify(daemon.SdNotifyReady) }

// Stopping tells systemd shutdown has begun.
func (n *Notifier) Stopping() error { return n.notify(daemon.SdNotifyStopping) }

// Watchdog pings the service watchdog.
func (n *Notifier) Watchdog() error { return n.notify(daemon.SdNotifyWatchdog) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(msg string) error { return n.notify("STATUS=" + msg) }

// WatchdogInterval returns the configured WatchdogSec, or 0 when the
// watchdog is off for this process.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return d
}
