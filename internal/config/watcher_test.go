package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/lwalight/internal/display"
)

type testConfig struct {
	Name  string `toml:"name"`
	Value int    `toml:"value"`
}

func loadTestConfig(path string) (testConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return testConfig{}, err
	}
	var cfg testConfig
	err = toml.Unmarshal(data, &cfg)
	return cfg, err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startWatcher[T any](t *testing.T, w *Watcher[T]) {
	t.Helper()
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("watcher.Stop failed: %v", err)
		}
	})
	// Give the watch goroutine time to start receiving events
	time.Sleep(100 * time.Millisecond)
}

func TestConfigWatcher_BasicReload(t *testing.T) {
	path := writeFile(t, "config.toml", "name = \"initial\"\nvalue = 1\n")

	received := make(chan testConfig, 1)
	w := NewConfigWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](50*time.Millisecond))
	w.OnReload(func(cfg testConfig) {
		select {
		case received <- cfg:
		default:
		}
	})
	startWatcher(t, w)

	if err := os.WriteFile(path, []byte("name = \"updated\"\nvalue = 42\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Name != "updated" || cfg.Value != 42 {
			t.Errorf("got %+v, want name=updated, value=42", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
}

func TestConfigWatcher_RenameReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chart.toml")
	if err := os.WriteFile(path, []byte("[states.all_nominal]\ncolor = \"#00ff00\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	received := make(chan display.Chart, 1)
	w := NewConfigWatcher(path, display.LoadChart, newTestLogger(), WithDebounce[display.Chart](50*time.Millisecond))
	w.OnReload(func(c display.Chart) {
		select {
		case received <- c:
		default:
		}
	})
	startWatcher(t, w)

	tmp := filepath.Join(dir, ".chart.toml.swp")
	if err := os.WriteFile(tmp, []byte("[states.all_nominal]\ncolor = \"#008800\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-received:
		if got := c[display.StateAllNominal].Color; got != (display.Color{G: 0x88}) {
			t.Errorf("all_nominal color = %s, want #008800", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload after rename")
	}
}

func TestConfigWatcher_RejectsInvalid(t *testing.T) {
	path := writeFile(t, "chart.toml", "")

	var reloads atomic.Int32
	errs := make(chan error, 1)
	w := NewConfigWatcher(path, display.LoadChart, newTestLogger(),
		WithDebounce[display.Chart](50*time.Millisecond),
		WithErrorHandler[display.Chart](func(err error) {
			select {
			case errs <- err:
			default:
			}
		}),
	)
	w.OnReload(func(display.Chart) { reloads.Add(1) })
	startWatcher(t, w)

	if err := os.WriteFile(path, []byte("[states.all_nominal]\ncolor = \"chartreuse\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errs:
		if err == nil {
			t.Error("error handler called with nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}
	if got := reloads.Load(); got != 0 {
		t.Errorf("handlers called %d times for invalid config", got)
	}
}

func TestConfigWatcher_IgnoresSiblings(t *testing.T) {
	path := writeFile(t, "config.toml", "value = 1\n")

	var reloads atomic.Int32
	w := NewConfigWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](20*time.Millisecond))
	w.OnReload(func(testConfig) { reloads.Add(1) })
	startWatcher(t, w)

	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.toml"), []byte("value = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	if got := reloads.Load(); got != 0 {
		t.Errorf("sibling file triggered %d reloads", got)
	}
}

func TestConfigWatcher_Unsubscribe(t *testing.T) {
	path := writeFile(t, "config.toml", "value = 1\n")

	var first, second atomic.Int32
	done := make(chan struct{}, 1)
	w := NewConfigWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](20*time.Millisecond))
	unsubscribe := w.OnReload(func(testConfig) { first.Add(1) })
	w.OnReload(func(testConfig) {
		second.Add(1)
		select {
		case done <- struct{}{}:
		default:
		}
	})
	unsubscribe()
	startWatcher(t, w)

	if err := os.WriteFile(path, []byte("value = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}

	if first.Load() != 0 {
		t.Error("unsubscribed handler was called")
	}
	if second.Load() == 0 {
		t.Error("subscribed handler was not called")
	}
}

func TestConfigWatcher_StartMissingDir(t *testing.T) {
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "missing", "config.toml"), loadTestConfig, newTestLogger())
	if err := w.Start(); err == nil {
		w.Stop()
		t.Fatal("Start() should fail when the directory does not exist")
	}
}

func TestConfigWatcher_StopWithoutStart(t *testing.T) {
	w := NewConfigWatcher("config.toml", func(string) (testConfig, error) {
		return testConfig{}, errors.New("unused")
	}, newTestLogger())
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() = %v", err)
	}
}
