package events

import (
	"time"

	"github.com/smazurov/lwalight/internal/display"
	"github.com/smazurov/lwalight/internal/status"
)

// Event type constants for kelindar/event.
const (
	TypeReadingUpdated uint32 = iota + 1
	TypeStateChanged
	TypeCycleCompleted
	TypeDeviceWriteFailed
	TypeDeviceReattached
	TypeChartReloaded
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ReadingUpdated carries the reading a poller produced for the cycle.
type ReadingUpdated struct {
	Reading status.Reading
	At      time.Time
}

// Type returns the event type identifier for ReadingUpdated.
func (e ReadingUpdated) Type() uint32 { return TypeReadingUpdated }

// StateChanged is published when the display state differs from the
// previous cycle. From is zero-valued on the first cycle, with First set.
type StateChanged struct {
	From    display.State
	To      display.State
	First   bool
	Cause   string
	Command display.Command
	At      time.Time
}

// Type returns the event type identifier for StateChanged.
func (e StateChanged) Type() uint32 { return TypeStateChanged }

// CycleCompleted summarises one monitoring cycle.
type CycleCompleted struct {
	State    display.State
	Command  display.Command
	Missed   []string // sources that did not answer before the deadline
	Duration time.Duration
	Applied  bool
	At       time.Time
}

// Type returns the event type identifier for CycleCompleted.
func (e CycleCompleted) Type() uint32 { return TypeCycleCompleted }

// DeviceWriteFailed is published when a command could not be shown.
type DeviceWriteFailed struct {
	Device  string
	Command display.Command
	Error   string
	At      time.Time
}

// Type returns the event type identifier for DeviceWriteFailed.
func (e DeviceWriteFailed) Type() uint32 { return TypeDeviceWriteFailed }

// DeviceReattached is published after a hotplug event reopened the indicator.
type DeviceReattached struct {
	Device string
	At     time.Time
}

// Type returns the event type identifier for DeviceReattached.
func (e DeviceReattached) Type() uint32 { return TypeDeviceReattached }

// ChartReloaded is published when a new color chart was accepted or rejected.
type ChartReloaded struct {
	Path  string
	Error string // empty when the chart was accepted
	At    time.Time
}

// Type returns the event type identifier for ChartReloaded.
func (e ChartReloaded) Type() uint32 { return TypeChartReloaded }
