package led

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/smazurov/lwalight/internal/display"
)

var sysfsLEDPath = "/sys/class/leds"

// sysfs drives a Linux multicolor LED class device. Blinking is done by the
// kernel timer trigger, so no goroutine is needed.
type sysfs struct {
	dir    string
	logger *slog.Logger

	order         []string // channel names from multi_index
	maxBrightness int

	last    display.Command
	applied bool
}

func newSysfs(dir string, logger *slog.Logger) (*sysfs, error) {
	if _, err := os.Stat(filepath.Join(dir, "multi_intensity")); err != nil {
		return nil, fmt.Errorf("%w: %s is not a multicolor LED: %w", ErrNotFound, dir, err)
	}

	s := &sysfs{dir: dir, logger: logger, order: []string{"red", "green", "blue"}, maxBrightness: 255}

	if data, err := os.ReadFile(filepath.Join(dir, "multi_index")); err == nil {
		if fields := strings.Fields(string(data)); len(fields) > 0 {
			s.order = fields
		}
	}
	if data, err := os.ReadFile(filepath.Join(dir, "max_brightness")); err == nil {
		if n, convErr := strconv.Atoi(strings.TrimSpace(string(data))); convErr == nil && n > 0 {
			s.maxBrightness = n
		}
	}
	return s, nil
}

// DetectMulticolorLED returns the first multicolor LED under /sys/class/leds.
func DetectMulticolorLED() (string, error) {
	return detectMulticolorLED(sysfsLEDPath)
}

func detectMulticolorLED(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	for _, entry := range entries {
		dir := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, "multi_intensity")); err == nil {
			return dir, nil
		}
	}
	return "", fmt.Errorf("%w: no multicolor LED under %s", ErrNotFound, root)
}

func (s *sysfs) Name() string { return "sysfs:" + filepath.Base(s.dir) }

func (s *sysfs) Apply(cmd display.Command) error {
	if s.applied && cmd == s.last {
		// Rewriting the trigger would restart the blink phase
		if err := s.write("multi_intensity", s.intensity(cmd.Color)); err != nil {
			s.applied = false
			return err
		}
		return nil
	}

	if err := s.apply(cmd); err != nil {
		s.applied = false
		return err
	}
	s.last, s.applied = cmd, true
	return nil
}

func (s *sysfs) apply(cmd display.Command) error {
	if err := s.write("trigger", "none"); err != nil {
		return err
	}
	if cmd.Pattern == display.PatternOff {
		return s.write("brightness", "0")
	}
	if err := s.write("multi_intensity", s.intensity(cmd.Color)); err != nil {
		return err
	}
	if err := s.write("brightness", strconv.Itoa(s.maxBrightness)); err != nil {
		return err
	}

	half := HalfPeriod(cmd.Pattern)
	if half == 0 {
		return nil
	}
	ms := strconv.FormatInt(half.Milliseconds(), 10)
	if err := s.write("trigger", "timer"); err != nil {
		return err
	}
	if err := s.write("delay_on", ms); err != nil {
		return err
	}
	return s.write("delay_off", ms)
}

// intensity orders the color channels as multi_index lists them.
func (s *sysfs) intensity(c display.Color) string {
	values := make([]string, len(s.order))
	for i, name := range s.order {
		var v uint8
		switch name {
		case "red":
			v = c.R
		case "green":
			v = c.G
		case "blue":
			v = c.B
		}
		values[i] = strconv.Itoa(int(v))
	}
	return strings.Join(values, " ")
}

func (s *sysfs) write(attr, value string) error {
	path := filepath.Join(s.dir, attr)
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("LED attribute missing", "path", path)
		}
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, path, err)
	}
	return nil
}

func (s *sysfs) Close() error { return nil }
