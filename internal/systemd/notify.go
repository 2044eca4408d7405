package systemd

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier reports daemon lifecycle to systemd. Outside of systemd
// (no NOTIFY_SOCKET) every call is a no-op.
type Notifier struct {
	send func(state string) (bool, error)
}

// NewNotifier returns a notifier using the process's NOTIFY_SOCKET.
func NewNotifier() *Notifier {
	return &Notifier{send: func(state string) (bool, error) {
		return daemon.SdNotify(false, state)
	}}
}

// Ready signals that startup finished.
func (n *Notifier) Ready() error {
	_, err := n.send(daemon.SdNotifyReady)
	return err
}

// Stopping signals that shutdown began.
func (n *Notifier) Stopping() error {
	_, err := n.send(daemon.SdNotifyStopping)
	return err
}

// Watchdog pets the service watchdog.
func (n *Notifier) Watchdog() error {
	_, err := n.send(daemon.SdNotifyWatchdog)
	return err
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(status string) error {
	_, err := n.send("STATUS=" + status)
	return err
}

// WatchdogInterval returns the configured watchdog timeout, or zero when the
// watchdog is disabled for this process.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return d
}
