package led

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/lwalight/internal/display"
)

// Blink half periods: the time spent on, and then off.
const (
	SlowBlinkHalfPeriod = 500 * time.Millisecond
	FastBlinkHalfPeriod = 125 * time.Millisecond
)

// HalfPeriod returns the on (and off) time of a blinking pattern, or zero.
func HalfPeriod(p display.Pattern) time.Duration {
	switch p {
	case display.PatternSlowBlink:
		return SlowBlinkHalfPeriod
	case display.PatternFastBlink:
		return FastBlinkHalfPeriod
	default:
		return 0
	}
}

// pixel is a device that can only show a steady color.
type pixel interface {
	SetColor(c display.Color) error
	// Reset drops the device handle so the next SetColor reopens it.
	Reset()
	Close() error
}

type applyRequest struct {
	cmd   display.Command
	reply chan error
}

// blinker produces blink patterns on a pixel with timed color writes. A
// single goroutine owns the pixel; Apply and Reattach talk to it over channels.
type blinker struct {
	name   string
	px     pixel
	logger *slog.Logger

	apply    chan applyRequest
	reattach chan struct{}
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

func newBlinker(name string, px pixel, logger *slog.Logger) *blinker {
	b := &blinker{
		name:     name,
		px:       px,
		logger:   logger,
		apply:    make(chan applyRequest),
		reattach: make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *blinker) Name() string { return b.name }

// Apply hands cmd to the blink goroutine and waits for the first write.
func (b *blinker) Apply(cmd display.Command) error {
	req := applyRequest{cmd: cmd, reply: make(chan error, 1)}
	select {
	case b.apply <- req:
	case <-b.done:
		return errors.New("indicator closed")
	}
	return <-req.reply
}

// Reattach makes the next write reopen the device.
func (b *blinker) Reattach() {
	select {
	case b.reattach <- struct{}{}:
	default:
	}
}

func (b *blinker) Close() error {
	b.once.Do(func() { close(b.done) })
	<-b.stopped
	return b.px.Close()
}

func (b *blinker) run() {
	defer close(b.stopped)

	var (
		current display.Command
		lit     bool
		failing bool
		ticker  *time.Ticker
		tick    <-chan time.Time
	)
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
	}
	defer stopTicker()

	write := func(c display.Color) error {
		err := b.px.SetColor(c)
		switch {
		case err != nil && !failing:
			failing = true
			b.logger.Warn("Indicator write failed", "device", b.name, "error", err)
		case err == nil && failing:
			failing = false
			b.logger.Info("Indicator write recovered", "device", b.name)
		}
		return err
	}

	for {
		select {
		case <-b.done:
			return

		case <-b.reattach:
			b.px.Reset()
			// Restore the current phase on the new handle
			if current.Pattern != display.PatternOff {
				color := display.Black
				if lit {
					color = current.Color
				}
				_ = write(color)
			}

		case req := <-b.apply:
			if req.cmd == current && ticker != nil {
				// Same blink pattern: keep the phase, just prove the device is there
				color := display.Black
				if lit {
					color = current.Color
				}
				req.reply <- write(color)
				continue
			}

			current = req.cmd
			stopTicker()
			if current.Pattern == display.PatternOff {
				lit = false
				req.reply <- write(display.Black)
				continue
			}

			lit = true
			req.reply <- write(current.Color)
			if half := HalfPeriod(current.Pattern); half > 0 {
				ticker = time.NewTicker(half)
				tick = ticker.C
			}

		case <-tick:
			lit = !lit
			color := display.Black
			if lit {
				color = current.Color
			}
			_ = write(color)
		}
	}
}
