package led

import (
	"fmt"
	"log/slog"
	"strings"
)

// Indicator kinds.
const (
	KindBlinkStick = "blinkstick"
	KindSysfs      = "sysfs"
	KindNone       = "none"
	KindAuto       = "auto"
)

// Options selects and addresses the indicator.
type Options struct {
	Kind      string
	Serial    string // BlinkStick serial; first stick when empty
	SysfsPath string // multicolor LED directory; auto-detected when empty
}

// New opens the configured indicator. A missing device is an error so the
// daemon refuses to start without its only output.
func New(opts Options, logger *slog.Logger) (Controller, error) {
	kind := strings.ToLower(strings.TrimSpace(opts.Kind))
	switch kind {
	case KindBlinkStick, "":
		return openBlinkStick(opts.Serial, logger)

	case KindSysfs:
		return openSysfs(opts.SysfsPath, logger)

	case KindNone, "noop":
		logger.Info("No indicator configured, commands are only logged")
		return NewNoop(logger), nil

	case KindAuto:
		if c, err := openBlinkStick(opts.Serial, logger); err == nil {
			return c, nil
		}
		if c, err := openSysfs(opts.SysfsPath, logger); err == nil {
			return c, nil
		}
		return nil, fmt.Errorf("%w: neither a BlinkStick nor a multicolor LED is present", ErrNotFound)

	default:
		return nil, fmt.Errorf("unknown indicator kind %q", opts.Kind)
	}
}

func openBlinkStick(serial string, logger *slog.Logger) (Controller, error) {
	stick := newBlinkStick(serial, logger)
	node, err := stick.locate()
	if err != nil {
		return nil, err
	}
	logger.Info("Using BlinkStick indicator", "node", node, "serial", serial)
	return newBlinker("blinkstick:"+node, stick, logger), nil
}

func openSysfs(path string, logger *slog.Logger) (Controller, error) {
	if path == "" {
		detected, err := DetectMulticolorLED()
		if err != nil {
			return nil, err
		}
		path = detected
	}
	s, err := newSysfs(path, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Using sysfs indicator", "path", path)
	return s, nil
}
