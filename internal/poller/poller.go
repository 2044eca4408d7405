// Package poller wraps a status source with timeout, retry and
// last-known-good fallback so that one poll always yields a reading.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/smazurov/lwalight/internal/sources"
	"github.com/smazurov/lwalight/internal/status"
)

// minAttemptBudget is the least cycle time worth spending on a retry.
const minAttemptBudget = 250 * time.Millisecond

// Config holds the polling parameters of one source.
type Config struct {
	Role      status.Role
	Timeout   time.Duration // per attempt, capped by the remaining cycle budget
	Retries   int           // additional attempts after the first
	Backoff   BackoffConfig
	Interval  time.Duration // minimum time between fetch rounds; zero polls every cycle
	Freshness time.Duration // maximum age of the last good value used as fallback
}

// Attempt describes the outcome of one fetch attempt.
type Attempt struct {
	SourceID string
	Number   int
	Err      error
	Duration time.Duration
}

// Poller polls one source. Poll and Missed are safe for concurrent use.
type Poller struct {
	src    sources.Source
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	rng    *rand.Rand

	// OnAttempt, when set, observes every fetch attempt.
	OnAttempt func(Attempt)

	mu          sync.Mutex
	inFlight    bool
	lastGood    status.Reading
	hasGood     bool
	current     status.Reading
	lastAttempt time.Time
}

// Option customizes a Poller.
type Option func(*Poller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// WithSleep replaces the backoff wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) { p.sleep = sleep }
}

// WithRand sets the jitter source.
func WithRand(rng *rand.Rand) Option {
	return func(p *Poller) { p.rng = rng }
}

// New returns a poller for src.
func New(src sources.Source, cfg Config, logger *slog.Logger, opts ...Option) *Poller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	p := &Poller{
		src:    src,
		cfg:    cfg,
		logger: logger.With("source", src.ID()),
		now:    time.Now,
		sleep:  sleepContext,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.current = p.unknown("not polled yet")
	return p
}

// ID returns the source id.
func (p *Poller) ID() string {
	return p.src.ID()
}

// Source returns the wrapped source.
func (p *Poller) Source() sources.Source {
	return p.src
}

// Poll fetches the source with retries and returns a reading. It never fails:
// when every attempt fails the last good value is returned marked stale, or
// Unknown once that value is older than the freshness threshold.
func (p *Poller) Poll(ctx context.Context) status.Reading {
	p.mu.Lock()
	now := p.now()
	if p.cfg.Interval > 0 && !p.lastAttempt.IsZero() && now.Sub(p.lastAttempt) < p.cfg.Interval {
		r := p.current
		p.mu.Unlock()
		return r
	}
	if p.inFlight {
		r := p.fallbackLocked(now, "previous fetch still running")
		p.mu.Unlock()
		p.observe(Attempt{SourceID: p.ID(), Number: 0, Err: sources.ErrTimeout})
		return r
	}
	p.inFlight = true
	p.lastAttempt = now
	p.mu.Unlock()

	obs, err := p.fetchWithRetry(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false

	now = p.now()
	if err != nil {
		p.current = p.fallbackLocked(now, err.Error())
		return p.current
	}

	p.lastGood = status.Reading{
		SourceID:  p.ID(),
		Role:      p.cfg.Role,
		Value:     obs.Value,
		FetchedAt: now,
		Freshness: p.cfg.Freshness,
		Detail:    obs.Detail,
	}
	p.hasGood = true
	p.current = p.lastGood
	return p.current
}

// Missed returns the reading to use when a poll did not finish in time.
func (p *Poller) Missed(now time.Time) status.Reading {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fallbackLocked(now, "poll did not finish before the cycle deadline")
}

func (p *Poller) fallbackLocked(now time.Time, reason string) status.Reading {
	if p.hasGood && (p.cfg.Freshness <= 0 || now.Sub(p.lastGood.FetchedAt) <= p.cfg.Freshness) {
		r := p.lastGood
		r.Stale = true
		r.Err = reason
		return r
	}
	r := p.unknown(reason)
	if p.hasGood {
		r.FetchedAt = p.lastGood.FetchedAt
		r.Detail = p.lastGood.Detail
	}
	return r
}

func (p *Poller) unknown(reason string) status.Reading {
	return status.Reading{
		SourceID:  p.ID(),
		Role:      p.cfg.Role,
		Value:     status.ValueUnknown,
		Stale:     true,
		Freshness: p.cfg.Freshness,
		Err:       reason,
	}
}

func (p *Poller) fetchWithRetry(ctx context.Context) (sources.Observation, error) {
	attempts := 1 + p.cfg.Retries
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := NextBackoffDelay(p.cfg.Backoff, attempt-1, p.rng)
			if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay+minAttemptBudget {
				p.logger.Debug("Skipping retry, cycle budget exhausted", "attempt", attempt, "error", lastErr)
				break
			}
			if err := p.sleep(ctx, delay); err != nil {
				break
			}
		}

		start := time.Now()
		obs, err := p.attempt(ctx)
		p.observe(Attempt{SourceID: p.ID(), Number: attempt, Err: err, Duration: time.Since(start)})
		if err == nil {
			if attempt > 1 {
				p.logger.Debug("Fetch succeeded after retry", "attempt", attempt)
			}
			return obs, nil
		}

		lastErr = err
		p.logger.Debug("Fetch attempt failed", "attempt", attempt, "of", attempts, "error", err)
		if ctx.Err() != nil {
			break
		}
	}

	p.logger.Warn("Source unavailable", "error", lastErr)
	return sources.Observation{}, lastErr
}

// attempt runs one fetch under the per-attempt timeout. A panicking source
// counts as a failed attempt.
func (p *Poller) attempt(ctx context.Context) (obs sources.Observation, err error) {
	actx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: source panicked: %v", sources.ErrUnavailable, r)
		}
	}()

	obs, err = p.src.Fetch(actx)
	if err != nil && !errors.Is(err, sources.ErrTimeout) && !errors.Is(err, sources.ErrUnavailable) {
		if errors.Is(actx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", sources.ErrTimeout, err)
		} else {
			err = fmt.Errorf("%w: %w", sources.ErrUnavailable, err)
		}
	}
	return obs, err
}

func (p *Poller) observe(a Attempt) {
	if p.OnAttempt != nil {
		p.OnAttempt(a)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
