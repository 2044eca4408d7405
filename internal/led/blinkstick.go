package led

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/smazurov/lwalight/internal/display"
)

// BlinkStick USB identifiers.
const (
	BlinkStickVendorID  = 0x20a0
	BlinkStickProductID = 0x41e5
)

const (
	hidrawClassPath = "/sys/class/hidraw"
	devPath         = "/dev"
	colorReportID   = 1
)

// HidrawDevice is a BlinkStick found under /sys/class/hidraw.
type HidrawDevice struct {
	Node   string // e.g. /dev/hidraw3
	Serial string
}

// FindBlinkSticks lists attached BlinkSticks, in hidraw order.
func FindBlinkSticks() ([]HidrawDevice, error) {
	return findBlinkSticks(hidrawClassPath, devPath)
}

func findBlinkSticks(classDir, devDir string) ([]HidrawDevice, error) {
	entries, err := os.ReadDir(classDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list hidraw devices: %w", err)
	}

	var found []HidrawDevice
	for _, entry := range entries {
		uevent := filepath.Join(classDir, entry.Name(), "device", "uevent")
		vendor, product, serial, err := readHIDUevent(uevent)
		if err != nil {
			continue
		}
		if vendor != BlinkStickVendorID || product != BlinkStickProductID {
			continue
		}
		found = append(found, HidrawDevice{
			Node:   filepath.Join(devDir, entry.Name()),
			Serial: serial,
		})
	}
	return found, nil
}

// readHIDUevent parses HID_ID=0003:000020A0:000041E5 and HID_UNIQ=<serial>.
func readHIDUevent(path string) (vendor, product uint32, serial string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, "", err
	}
	defer f.Close()

	var haveID bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "HID_ID":
			var bus uint32
			if _, scanErr := fmt.Sscanf(value, "%x:%x:%x", &bus, &vendor, &product); scanErr != nil {
				return 0, 0, "", fmt.Errorf("malformed HID_ID %q: %w", value, scanErr)
			}
			haveID = true
		case "HID_UNIQ":
			serial = value
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, "", err
	}
	if !haveID {
		return 0, 0, "", fmt.Errorf("no HID_ID in %s", path)
	}
	return vendor, product, serial, nil
}

// hidiocsfeature builds HIDIOCSFEATURE(n) = _IOC(_IOC_READ|_IOC_WRITE, 'H', 0x06, n).
func hidiocsfeature(n int) uintptr {
	return uintptr(3)<<30 | uintptr(n)<<16 | uintptr('H')<<8 | 0x06
}

func sendFeatureReport(f *os.File, report []byte) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), hidiocsfeature(len(report)), uintptr(unsafe.Pointer(&report[0])))
	if errno != 0 {
		return errno
	}
	return nil
}

// blinkStick is a single BlinkStick pixel. The handle is opened on first use
// and dropped after any failed write, so an unplugged stick is picked up
// again once it returns.
type blinkStick struct {
	serial string
	logger *slog.Logger

	find  func() ([]HidrawDevice, error)
	open  func(node string) (*os.File, error)
	write func(f *os.File, report []byte) error

	mu   sync.Mutex
	file *os.File
	node string
}

func newBlinkStick(serial string, logger *slog.Logger) *blinkStick {
	return &blinkStick{
		serial: serial,
		logger: logger,
		find:   FindBlinkSticks,
		open: func(node string) (*os.File, error) {
			return os.OpenFile(node, os.O_RDWR, 0)
		},
		write: sendFeatureReport,
	}
}

// locate returns the hidraw node of the configured stick.
func (b *blinkStick) locate() (string, error) {
	devices, err := b.find()
	if err != nil {
		return "", err
	}
	for _, d := range devices {
		if b.serial == "" || d.Serial == b.serial {
			return d.Node, nil
		}
	}
	if b.serial != "" {
		return "", fmt.Errorf("%w: no BlinkStick with serial %q", ErrNotFound, b.serial)
	}
	return "", fmt.Errorf("%w: no BlinkStick attached", ErrNotFound)
}

func (b *blinkStick) ensureOpen() error {
	if b.file != nil {
		return nil
	}
	node, err := b.locate()
	if err != nil {
		return err
	}
	f, err := b.open(node)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", node, err)
	}
	b.file, b.node = f, node
	b.logger.Info("BlinkStick opened", "node", node, "serial", b.serial)
	return nil
}

func (b *blinkStick) SetColor(c display.Color) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureOpen(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	report := []byte{colorReportID, c.R, c.G, c.B}
	if err := b.write(b.file, report); err != nil {
		b.resetLocked()
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, b.nodeOrUnknown(), err)
	}
	return nil
}

func (b *blinkStick) nodeOrUnknown() string {
	if b.node == "" {
		return "blinkstick"
	}
	return b.node
}

func (b *blinkStick) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

func (b *blinkStick) resetLocked() {
	if b.file != nil {
		_ = b.file.Close()
		b.file = nil
	}
}

func (b *blinkStick) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	return err
}
