//go:build linux

package hotplug

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// USBProduct matches a USB device uevent PRODUCT value ("20a0/41e5/201").
func USBProduct(vendor, product uint16) func(Event) bool {
	prefix := fmt.Sprintf("%x/%x/", vendor, product)
	return func(e Event) bool {
		return strings.HasPrefix(strings.ToLower(e.Env["PRODUCT"]), prefix)
	}
}

// IsAttach reports whether e announces a device that an indicator may sit
// behind: a new hidraw node, an added or bound USB device matching usb, or a
// new LED class device.
func IsAttach(e Event, usb func(Event) bool) bool {
	if e.Action != ActionAdd && e.Action != ActionBind {
		return false
	}
	switch e.Subsystem {
	case SubsystemHidraw, SubsystemLEDs:
		return e.Action == ActionAdd
	case SubsystemUSB:
		return usb == nil || usb(e)
	default:
		return false
	}
}

// Watch calls onAttach once per burst of attach events. One replug emits
// several uevents (usb, hid, hidraw), so attach events are settled for
// settle before the callback runs. Watch returns when events is closed or
// ctx is done.
func Watch(ctx context.Context, events <-chan Event, settle time.Duration, usb func(Event) bool, logger *slog.Logger, onAttach func()) {
	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case e, ok := <-events:
			if !ok {
				return
			}
			if !IsAttach(e, usb) {
				continue
			}
			logger.Debug("Device attached", "subsystem", e.Subsystem, "devname", e.DevName, "action", e.Action)
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(settle)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			logger.Info("Indicator hotplug detected, reattaching")
			onAttach()
		}
	}
}
