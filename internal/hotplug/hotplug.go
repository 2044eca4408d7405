//go:build linux

// Package hotplug listens for kernel uevents over netlink so a replugged
// indicator can be reopened as soon as it comes back.
package hotplug

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// Uevent actions.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionBind   = "bind"
)

// Subsystems the indicator shows up under.
const (
	SubsystemHidraw = "hidraw"
	SubsystemUSB    = "usb"
	SubsystemLEDs   = "leds"
)

// Event is one kernel uevent.
type Event struct {
	Action    string // "add", "remove", "bind", ...
	KObj      string // /devices/pci0000:00/...
	Subsystem string
	DevType   string
	DevName   string // e.g. "hidraw3"
	DevPath   string
	Env       map[string]string
}

// Monitor reads uevents from the kernel broadcast group.
type Monitor struct {
	fd        int
	filters   map[string]struct{}
	filtersMu sync.RWMutex
}

const kernelBroadcastGroup = 1

// NewMonitor opens a NETLINK_KOBJECT_UEVENT socket.
func NewMonitor() (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, err
	}

	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: kernelBroadcastGroup}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, err
	}

	// A receive timeout lets Run notice cancellation
	tv := unix.Timeval{Sec: 1}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &Monitor{fd: fd, filters: make(map[string]struct{})}, nil
}

// AddSubsystemFilter restricts events to the given subsystem. With no
// filters every event passes.
func (m *Monitor) AddSubsystemFilter(subsystem string) {
	m.filtersMu.Lock()
	m.filters[subsystem] = struct{}{}
	m.filtersMu.Unlock()
}

func (m *Monitor) accepts(subsystem string) bool {
	m.filtersMu.RLock()
	defer m.filtersMu.RUnlock()
	if len(m.filters) == 0 {
		return true
	}
	_, ok := m.filters[subsystem]
	return ok
}

func (m *Monitor) Close() error {
	return unix.Close(m.fd)
}

// Run sends events until ctx is cancelled or the socket fails. The events
// channel is closed when Run returns.
func (m *Monitor) Run(ctx context.Context, events chan<- Event) error {
	defer close(events)

	buf := make([]byte, 8192)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, _, err := unix.Recvfrom(m.fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}

		event := ParseUEvent(buf[:n])
		if event == nil || !m.accepts(event.Subsystem) {
			continue
		}

		select {
		case events <- *event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ParseUEvent parses "ACTION@KOBJ\0KEY=VALUE\0...". It returns nil for
// anything that is not a uevent.
func ParseUEvent(data []byte) *Event {
	if len(data) == 0 {
		return nil
	}

	// udevd rebroadcasts with a binary "libudev" header in front
	if bytes.HasPrefix(data, []byte("libudev")) {
		for i := 0; i < len(data)-1; i++ {
			if data[i] != 0 {
				continue
			}
			rest := data[i+1:]
			header := rest
			if end := bytes.IndexByte(rest, 0); end >= 0 {
				header = rest[:end]
			}
			if idx := bytes.IndexByte(header, '@'); idx > 0 && idx < 20 {
				data = rest
				break
			}
		}
	}

	parts := bytes.Split(data, []byte{0})
	if len(parts[0]) == 0 {
		return nil
	}

	action, kobj, ok := strings.Cut(string(parts[0]), "@")
	if !ok || action == "" {
		return nil
	}

	event := &Event{Action: action, KObj: kobj, Env: make(map[string]string)}
	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(string(part), "=")
		if !ok || key == "" {
			continue
		}
		event.Env[key] = value

		switch key {
		case "SUBSYSTEM":
			event.Subsystem = value
		case "DEVTYPE":
			event.DevType = value
		case "DEVNAME":
			event.DevName = value
		case "DEVPATH":
			event.DevPath = value
		}
	}
	return event
}
