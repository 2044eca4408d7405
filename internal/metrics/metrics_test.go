package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/lwalight/internal/display"
	"github.com/smazurov/lwalight/internal/events"
	"github.com/smazurov/lwalight/internal/sources"
	"github.com/smazurov/lwalight/internal/status"
)

func exported(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lwalight.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func assertLine(t *testing.T, text, line string) {
	t.Helper()
	for _, l := range strings.Split(text, "\n") {
		if l == line {
			return
		}
	}
	t.Errorf("exported metrics missing line %q", line)
}

func TestSetDisplayState(t *testing.T) {
	SetDisplayState(display.StateCameraStalled)

	text := exported(t)
	assertLine(t, text, "lwalight_display_state 2")
	assertLine(t, text, `lwalight_display_state_info{state="camera_stalled"} 1`)
	assertLine(t, text, `lwalight_display_state_info{state="all_nominal"} 0`)
}

func TestSetReading(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	SetReading(status.Reading{
		SourceID:  "test-summary",
		Role:      status.RoleStation,
		Value:     status.ValueWarning,
		FetchedAt: now.Add(-30 * time.Second),
		Stale:     true,
	}, now)

	text := exported(t)
	assertLine(t, text, `lwalight_source_value{role="station",source="test-summary"} 2`)
	assertLine(t, text, `lwalight_source_stale{source="test-summary"} 1`)
	assertLine(t, text, `lwalight_source_age_seconds{source="test-summary"} 30`)
}

func TestAttemptResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ResultOK},
		{fmt.Errorf("attempt 1: %w", sources.ErrTimeout), ResultTimeout},
		{fmt.Errorf("attempt 1: %w", sources.ErrUnavailable), ResultError},
		{errors.New("boom"), ResultError},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := attemptResult(tt.err); got != tt.want {
				t.Errorf("attemptResult(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestObservePollAttempt(t *testing.T) {
	ObservePollAttempt("test-poll", nil, 100*time.Millisecond)
	ObservePollAttempt("test-poll", sources.ErrTimeout, time.Second)

	text := exported(t)
	assertLine(t, text, `lwalight_poll_attempts_total{result="ok",source="test-poll"} 1`)
	assertLine(t, text, `lwalight_poll_attempts_total{result="timeout",source="test-poll"} 1`)
	assertLine(t, text, `lwalight_poll_attempt_duration_seconds_count{source="test-poll"} 2`)
}

func TestWriteTextfile_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textfile", "nested", "lwalight.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("textfile not written: %v", err)
	}
}

func TestSubscribe_WritesTextfileAfterCycle(t *testing.T) {
	bus := events.New()
	path := filepath.Join(t.TempDir(), "lwalight.prom")
	unsub := Subscribe(bus, path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer unsub()

	bus.Publish(events.CycleCompleted{
		State:    display.StateStationCritical,
		Missed:   []string{"test-missed"},
		Duration: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		data, err := os.ReadFile(path)
		if err == nil && strings.Contains(string(data), `lwalight_cycle_missed_polls_total{source="test-missed"} 1`) {
			assertLine(t, string(data), "lwalight_display_state 5")
			return
		}
		select {
		case <-ctx.Done():
			t.Fatal("textfile not written after CycleCompleted")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
