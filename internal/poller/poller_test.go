package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/lwalight/internal/sources"
	"github.com/smazurov/lwalight/internal/status"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeSource returns scripted results in order, repeating the last one.
type fakeSource struct {
	mu      sync.Mutex
	results []result
	calls   atomic.Int32
}

type result struct {
	obs   sources.Observation
	err   error
	block bool // wait for ctx cancellation
	hang  chan struct{}
	panic bool
}

func (f *fakeSource) ID() string { return "fake" }

func (f *fakeSource) Fetch(ctx context.Context) (sources.Observation, error) {
	n := int(f.calls.Add(1)) - 1
	f.mu.Lock()
	r := f.results[min(n, len(f.results)-1)]
	f.mu.Unlock()

	switch {
	case r.panic:
		panic("boom")
	case r.hang != nil:
		<-r.hang
		return r.obs, r.err
	case r.block:
		<-ctx.Done()
		return sources.Observation{}, ctx.Err()
	}
	return r.obs, r.err
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func noSleep(context.Context, time.Duration) error { return nil }

var (
	nominal = result{obs: sources.Observation{Value: status.ValueNominal, Detail: "All subsystems are normal"}}
	failed  = result{err: sources.ErrUnavailable}
)

func TestPollSuccess(t *testing.T) {
	clk := newClock()
	src := &fakeSource{results: []result{nominal}}
	p := New(src, Config{Role: status.RoleStation, Freshness: time.Minute}, discard, WithClock(clk.Now))

	r := p.Poll(context.Background())
	if r.Value != status.ValueNominal || r.Stale || !r.FetchedAt.Equal(clk.Now()) {
		t.Errorf("Poll() = %+v", r)
	}
	if r.Role != status.RoleStation || r.SourceID != "fake" || r.Freshness != time.Minute {
		t.Errorf("reading metadata = %+v", r)
	}
}

func TestPollRetriesThenSucceeds(t *testing.T) {
	src := &fakeSource{results: []result{failed, failed, nominal}}
	var delays []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	var attempts []Attempt
	p := New(src, Config{
		Retries: 2,
		Backoff: BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2},
	}, discard, WithSleep(sleep))
	p.OnAttempt = func(a Attempt) { attempts = append(attempts, a) }

	r := p.Poll(context.Background())
	if r.Value != status.ValueNominal || r.Stale {
		t.Fatalf("Poll() = %+v, want fresh nominal", r)
	}
	if got := src.calls.Load(); got != 3 {
		t.Errorf("Fetch called %d times, want 3", got)
	}
	if len(delays) != 2 || delays[0] != 100*time.Millisecond || delays[1] != 200*time.Millisecond {
		t.Errorf("backoff delays = %v, want [100ms 200ms]", delays)
	}
	if len(attempts) != 3 || attempts[0].Err == nil || attempts[2].Err != nil {
		t.Errorf("attempts = %+v", attempts)
	}
}

func TestPollFallback(t *testing.T) {
	clk := newClock()
	src := &fakeSource{results: []result{nominal, failed}}
	p := New(src, Config{Retries: 1, Freshness: time.Minute}, discard, WithClock(clk.Now), WithSleep(noSleep))

	good := p.Poll(context.Background())

	clk.Advance(30 * time.Second)
	r := p.Poll(context.Background())
	if r.Value != status.ValueNominal || !r.Stale || !r.FetchedAt.Equal(good.FetchedAt) {
		t.Errorf("within freshness: Poll() = %+v, want stale nominal", r)
	}
	if r.Err == "" {
		t.Error("stale reading should carry the failure reason")
	}

	clk.Advance(time.Minute)
	r = p.Poll(context.Background())
	if r.Value != status.ValueUnknown || !r.Stale {
		t.Errorf("past freshness: Poll() = %+v, want stale unknown", r)
	}
	if !r.FetchedAt.Equal(good.FetchedAt) {
		t.Errorf("FetchedAt = %s, want last good %s", r.FetchedAt, good.FetchedAt)
	}
}

func TestPollNeverSucceeded(t *testing.T) {
	p := New(&fakeSource{results: []result{failed}}, Config{Retries: 3}, discard, WithSleep(noSleep))

	r := p.Poll(context.Background())
	if r.Value != status.ValueUnknown || !r.Stale || !r.FetchedAt.IsZero() {
		t.Errorf("Poll() = %+v, want unknown with zero FetchedAt", r)
	}
}

func TestPollAllAttemptsTimeOut(t *testing.T) {
	clk := newClock()
	src := &fakeSource{results: []result{nominal, {block: true}}}
	p := New(src, Config{
		Timeout:   20 * time.Millisecond,
		Retries:   2,
		Backoff:   BackoffConfig{InitialDelay: 5 * time.Millisecond},
		Freshness: time.Minute,
	}, discard, WithClock(clk.Now))

	p.Poll(context.Background())
	clk.Advance(10 * time.Second)

	budget := 500 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	var timeouts atomic.Int32
	p.OnAttempt = func(a Attempt) {
		if errors.Is(a.Err, sources.ErrTimeout) {
			timeouts.Add(1)
		}
	}

	start := time.Now()
	r := p.Poll(ctx)
	if elapsed := time.Since(start); elapsed >= budget {
		t.Errorf("Poll took %s, want under the %s cycle budget", elapsed, budget)
	}
	if r.Value != status.ValueNominal || !r.Stale {
		t.Errorf("Poll() = %+v, want stale nominal", r)
	}
	if got := timeouts.Load(); got != 3 {
		t.Errorf("timed out attempts = %d, want 3", got)
	}
}

func TestPollSkipsRetryWithoutBudget(t *testing.T) {
	src := &fakeSource{results: []result{failed}}
	p := New(src, Config{
		Timeout: 40 * time.Millisecond,
		Retries: 5,
		Backoff: BackoffConfig{InitialDelay: 30 * time.Millisecond},
	}, discard)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p.Poll(ctx)

	if got := src.calls.Load(); got != 1 {
		t.Errorf("Fetch called %d times, want 1", got)
	}
}

func TestPollInterval(t *testing.T) {
	clk := newClock()
	src := &fakeSource{results: []result{nominal}}
	p := New(src, Config{Interval: 3 * time.Minute}, discard, WithClock(clk.Now))

	first := p.Poll(context.Background())
	clk.Advance(time.Minute)
	cached := p.Poll(context.Background())
	if src.calls.Load() != 1 {
		t.Errorf("Fetch called %d times within interval, want 1", src.calls.Load())
	}
	if cached != first {
		t.Errorf("cached reading = %+v, want %+v", cached, first)
	}

	clk.Advance(2 * time.Minute)
	p.Poll(context.Background())
	if src.calls.Load() != 2 {
		t.Errorf("Fetch called %d times after interval, want 2", src.calls.Load())
	}
}

func TestPollHungFetch(t *testing.T) {
	hang := make(chan struct{})
	src := &fakeSource{results: []result{nominal, {hang: hang, obs: sources.Observation{Value: status.ValueWarning}}}}
	p := New(src, Config{Freshness: time.Hour}, discard)

	p.Poll(context.Background())

	done := make(chan status.Reading, 1)
	go func() { done <- p.Poll(context.Background()) }()

	// Wait until the hung fetch has started
	deadline := time.Now().Add(2 * time.Second)
	for src.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	r := p.Poll(context.Background())
	if r.Value != status.ValueNominal || !r.Stale {
		t.Errorf("Poll() during hung fetch = %+v, want stale nominal", r)
	}
	if src.calls.Load() != 2 {
		t.Errorf("Fetch called %d times, want 2", src.calls.Load())
	}

	close(hang)
	if late := <-done; late.Value != status.ValueWarning {
		t.Errorf("late fetch = %+v, want warning", late)
	}
}

func TestPollRecoversPanic(t *testing.T) {
	p := New(&fakeSource{results: []result{{panic: true}}}, Config{}, discard)

	r := p.Poll(context.Background())
	if r.Value != status.ValueUnknown || !r.Stale {
		t.Errorf("Poll() = %+v, want stale unknown", r)
	}
}

func TestMissed(t *testing.T) {
	clk := newClock()
	p := New(&fakeSource{results: []result{nominal}}, Config{Freshness: time.Minute}, discard, WithClock(clk.Now))

	if r := p.Missed(clk.Now()); r.Value != status.ValueUnknown {
		t.Errorf("Missed() before any poll = %+v", r)
	}
	p.Poll(context.Background())
	if r := p.Missed(clk.Now().Add(10 * time.Second)); r.Value != status.ValueNominal || !r.Stale {
		t.Errorf("Missed() = %+v, want stale nominal", r)
	}
}

func TestNextBackoffDelay(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 500 * time.Millisecond, MaxDelay: 3 * time.Second, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{4, 3 * time.Second},
		{10, 3 * time.Second},
	}
	for _, tt := range tests {
		if got := NextBackoffDelay(cfg, tt.attempt, nil); got != tt.want {
			t.Errorf("NextBackoffDelay(attempt=%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}

	if got := NextBackoffDelay(BackoffConfig{}, 3, nil); got != 0 {
		t.Errorf("zero config = %s, want 0", got)
	}

	cfg.Jitter = true
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		d := NextBackoffDelay(cfg, 2, rng)
		if d < 500*time.Millisecond || d >= 1500*time.Millisecond {
			t.Fatalf("jittered delay %s outside [0.5s, 1.5s)", d)
		}
	}
}
