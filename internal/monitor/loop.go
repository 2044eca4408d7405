// Package monitor runs the status cycle: poll every source under a deadline,
// aggregate the snapshot into a display state, encode it and show it.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/smazurov/lwalight/internal/aggregate"
	"github.com/smazurov/lwalight/internal/display"
	"github.com/smazurov/lwalight/internal/events"
	"github.com/smazurov/lwalight/internal/led"
	"github.com/smazurov/lwalight/internal/status"
)

// Phase is the lifecycle position of a Loop.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseShuttingDown
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseShuttingDown:
		return "shutting_down"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrAlreadyRunning is returned by Run on a loop that was started before.
var ErrAlreadyRunning = errors.New("monitor loop already started")

// Poller yields one reading per call. *poller.Poller implements it.
type Poller interface {
	ID() string
	Poll(ctx context.Context) status.Reading
	Missed(now time.Time) status.Reading
}

// Result is the outcome of one cycle.
type Result struct {
	Snapshot status.Snapshot
	Decision aggregate.Decision
	Command  display.Command
	Missed   []string
	ApplyErr error
	// Aborted is set when the cycle was cancelled before the command was applied.
	Aborted  bool
	Started  time.Time
	Duration time.Duration
}

// Config holds the loop timing.
type Config struct {
	Interval time.Duration
	Deadline time.Duration // per cycle; defaults to Interval
}

// Loop is the periodic status loop.
type Loop struct {
	cfg        Config
	pollers    []Poller
	aggregator *aggregate.Aggregator
	encoder    atomic.Pointer[display.Encoder]
	controller led.Controller
	bus        *events.Bus
	logger     *slog.Logger
	now        func() time.Time
	afterCycle func(Result)

	phase atomic.Int32

	// Touched only by the goroutine running cycles.
	last       display.State
	hasLast    bool
	applyFails int
}

// Option customizes a Loop.
type Option func(*Loop)

// WithBus publishes readings, state changes and device failures on bus.
func WithBus(bus *events.Bus) Option {
	return func(l *Loop) { l.bus = bus }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// WithAfterCycle registers a hook called after each completed cycle.
func WithAfterCycle(fn func(Result)) Option {
	return func(l *Loop) { l.afterCycle = fn }
}

// New creates a loop. The controller is owned by the loop from here on and
// closed when Run returns.
func New(cfg Config, pollers []Poller, agg *aggregate.Aggregator, enc *display.Encoder, ctrl led.Controller, logger *slog.Logger, opts ...Option) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = cfg.Interval
	}
	l := &Loop{
		cfg:        cfg,
		pollers:    pollers,
		aggregator: agg,
		controller: ctrl,
		logger:     logger,
		now:        time.Now,
	}
	l.encoder.Store(enc)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Phase returns the current lifecycle phase.
func (l *Loop) Phase() Phase {
	return Phase(l.phase.Load())
}

// SetEncoder swaps the encoder used from the next cycle on.
func (l *Loop) SetEncoder(enc *display.Encoder) {
	l.encoder.Store(enc)
}

// Encoder returns the encoder currently in use.
func (l *Loop) Encoder() *display.Encoder {
	return l.encoder.Load()
}

// Run cycles once immediately and then every interval until ctx is
// cancelled. On the way out the indicator is turned off and closed.
func (l *Loop) Run(ctx context.Context) error {
	if !l.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseRunning)) {
		return ErrAlreadyRunning
	}
	l.logger.Info("Monitor loop started",
		"sources", len(l.pollers),
		"interval", l.cfg.Interval,
		"deadline", l.cfg.Deadline,
		"device", l.controller.Name())

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	l.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		case <-ticker.C:
			l.Cycle(ctx)
		}
	}
}

func (l *Loop) shutdown() {
	l.phase.Store(int32(PhaseShuttingDown))
	l.logger.Info("Monitor loop shutting down")

	if err := l.controller.Apply(display.Off); err != nil {
		l.logger.Warn("Failed to turn indicator off", "error", err)
	}
	if err := l.controller.Close(); err != nil {
		l.logger.Warn("Failed to close indicator", "error", err)
	}

	l.phase.Store(int32(PhaseStopped))
	l.logger.Info("Monitor loop stopped")
}

// Cycle runs one poll-aggregate-encode-apply round.
func (l *Loop) Cycle(ctx context.Context) Result {
	started := l.now()
	snap, missed := l.Collect(ctx)

	res := Result{Snapshot: snap, Missed: missed, Started: started}
	if ctx.Err() != nil {
		res.Aborted = true
		res.Duration = l.now().Sub(started)
		return res
	}

	now := l.now()
	res.Decision = l.aggregator.Decide(snap, now)
	res.Command = l.encoder.Load().Encode(res.Decision.State)
	res.ApplyErr = l.controller.Apply(res.Command)
	res.Duration = l.now().Sub(started)

	l.report(res, now)
	if l.afterCycle != nil {
		l.afterCycle(res)
	}
	return res
}

// Collect polls every source concurrently and waits until all have answered
// or the cycle deadline passes. Sources that did not answer in time
// contribute their fallback reading and are listed in missed.
func (l *Loop) Collect(ctx context.Context) (status.Snapshot, []string) {
	cctx, cancel := context.WithTimeout(ctx, l.cfg.Deadline)
	defer cancel()

	type polled struct {
		id      string
		reading status.Reading
	}
	results := make(chan polled, len(l.pollers))
	for _, p := range l.pollers {
		go func(p Poller) {
			results <- polled{id: p.ID(), reading: p.Poll(cctx)}
		}(p)
	}

	snap := make(status.Snapshot, len(l.pollers))
collect:
	for range l.pollers {
		select {
		case r := <-results:
			snap[r.id] = r.reading
		case <-cctx.Done():
			break collect
		}
	}

	var missed []string
	if len(snap) < len(l.pollers) {
		now := l.now()
		for _, p := range l.pollers {
			if _, ok := snap[p.ID()]; ok {
				continue
			}
			snap[p.ID()] = p.Missed(now)
			missed = append(missed, p.ID())
		}
	}
	return snap, missed
}

func (l *Loop) report(res Result, now time.Time) {
	state := res.Decision.State
	changed := !l.hasLast || state != l.last

	if len(res.Missed) > 0 {
		l.logger.Warn("Sources missed the cycle deadline", "sources", res.Missed, "deadline", l.cfg.Deadline)
	}

	if changed {
		l.logger.Info("Display state changed",
			"from", l.previousName(),
			"to", state.String(),
			"cause", res.Decision.Cause,
			"command", res.Command.String())
		for _, line := range SummaryLines(res.Snapshot, res.Decision, now) {
			l.logger.Info(line)
		}
	} else {
		l.logger.Debug("Cycle complete", "state", state.String(), "duration", res.Duration)
	}

	if res.ApplyErr != nil {
		l.applyFails++
		if l.applyFails == 1 {
			l.logger.Warn("Failed to update indicator", "device", l.controller.Name(), "error", res.ApplyErr)
		} else {
			l.logger.Debug("Indicator still failing", "device", l.controller.Name(), "failures", l.applyFails)
		}
	} else if l.applyFails > 0 {
		l.logger.Info("Indicator updated again", "device", l.controller.Name(), "after_failures", l.applyFails)
		l.applyFails = 0
	}

	if l.bus != nil {
		for _, id := range res.Snapshot.IDs() {
			l.bus.Publish(events.ReadingUpdated{Reading: res.Snapshot[id], At: now})
		}
		if changed {
			l.bus.Publish(events.StateChanged{
				From:    l.last,
				To:      state,
				First:   !l.hasLast,
				Cause:   res.Decision.Cause,
				Command: res.Command,
				At:      now,
			})
		}
		if res.ApplyErr != nil {
			l.bus.Publish(events.DeviceWriteFailed{
				Device:  l.controller.Name(),
				Command: res.Command,
				Error:   res.ApplyErr.Error(),
				At:      now,
			})
		}
		l.bus.Publish(events.CycleCompleted{
			State:    state,
			Command:  res.Command,
			Missed:   res.Missed,
			Duration: res.Duration,
			Applied:  res.ApplyErr == nil,
			At:       now,
		})
	}

	l.last, l.hasLast = state, true
}

func (l *Loop) previousName() string {
	if !l.hasLast {
		return "none"
	}
	return l.last.String()
}

// Reattach forwards a hotplug notification to the controller and publishes
// it. Controllers that cannot reattach ignore it.
func (l *Loop) Reattach() {
	r, ok := l.controller.(led.Reattacher)
	if !ok {
		return
	}
	r.Reattach()
	if l.bus != nil {
		l.bus.Publish(events.DeviceReattached{Device: l.controller.Name(), At: l.now()})
	}
}
