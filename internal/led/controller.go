// Package led drives the status indicator: a USB BlinkStick through hidraw,
// a multicolor LED through sysfs, or nothing at all.
package led

import (
	"errors"

	"github.com/smazurov/lwalight/internal/display"
)

var (
	// ErrWriteFailed means a command could not be written to the device.
	ErrWriteFailed = errors.New("indicator write failed")
	// ErrNotFound means no matching device is attached.
	ErrNotFound = errors.New("indicator not found")
)

// Controller shows display commands on an indicator.
type Controller interface {
	// Apply shows cmd until the next Apply. Re-applying the same command keeps
	// a running blink in phase. Errors wrap ErrWriteFailed.
	Apply(cmd display.Command) error

	// Name identifies the device in logs.
	Name() string

	// Close releases the device. The indicator keeps its last state.
	Close() error
}

// Reattacher is implemented by controllers that can reopen a replugged device.
type Reattacher interface {
	Reattach()
}
