package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/lwalight/internal/config"
	"github.com/smazurov/lwalight/internal/display"
	"github.com/smazurov/lwalight/internal/led"
	"github.com/smazurov/lwalight/internal/monitor"
	"github.com/smazurov/lwalight/internal/poller"
	"github.com/smazurov/lwalight/internal/sources"
	"github.com/smazurov/lwalight/internal/status"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testOptions(t *testing.T) *config.Options {
	t.Helper()
	opts := &config.Options{}
	config.ApplyDefaults(opts)
	dir := t.TempDir()
	opts.Config = filepath.Join(dir, "lwalight.toml")
	opts.SourcesFile = filepath.Join(dir, "sources.toml")
	opts.ChartFile = filepath.Join(dir, "chart.toml")
	opts.Device = led.KindNone
	opts.DeviceHotplug = false
	opts.Interval = "50ms"
	return opts
}

func TestBuildPipeline_StationPreset(t *testing.T) {
	opts := testOptions(t)
	opts.Station = "lwasv"

	p, err := BuildPipeline(opts)
	if err != nil {
		t.Fatalf("BuildPipeline() error = %v", err)
	}
	defer p.Close()

	var ids []string
	for _, pl := range p.Pollers {
		ids = append(ids, pl.ID())
	}
	want := "lwasv-summary,lwasv-recorders,lwasv-lasi"
	if got := strings.Join(ids, ","); got != want {
		t.Errorf("pollers = %s, want %s", got, want)
	}
	if p.Encoder.Encode(display.StateAllNominal) != display.DefaultChart()[display.StateAllNominal] {
		t.Error("missing chart file should give the default chart")
	}
}

func TestBuildPipeline_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(t *testing.T, opts *config.Options)
	}{
		{"bad interval", func(_ *testing.T, o *config.Options) { o.Interval = "soon" }},
		{"bad precedence", func(_ *testing.T, o *config.Options) { o.Precedence = "station_critical,all_nominal" }},
		{"unknown station", func(_ *testing.T, o *config.Options) { o.Station = "lwa9" }},
		{"invalid chart", func(t *testing.T, o *config.Options) {
			writeFile(t, filepath.Dir(o.ChartFile), "chart.toml", "[states.all_nominal]\ncolor = \"green\"\n")
		}},
		{"invalid sources", func(t *testing.T, o *config.Options) {
			writeFile(t, filepath.Dir(o.SourcesFile), "sources.toml", "[[sources]]\nid = \"x\"\nrole = \"station\"\nkind = \"carrier-pigeon\"\n")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t)
			tt.modify(t, opts)
			if p, err := BuildPipeline(opts); err == nil {
				p.Close()
				t.Fatal("BuildPipeline() should fail")
			}
		})
	}
}

func TestBuild_UnknownDevice(t *testing.T) {
	opts := testOptions(t)
	opts.Device = "lava-lamp"
	if a, err := Build(opts, testLogger()); err == nil {
		a.Close()
		t.Fatal("Build() should fail for an unknown device")
	}
}

func TestApp_RunWithFileSources(t *testing.T) {
	opts := testOptions(t)
	dir := filepath.Dir(opts.SourcesFile)
	stationFile := writeFile(t, dir, "station.json", `{"status": "nominal"}`)
	recorderFile := writeFile(t, dir, "recorder.txt", "active\n")
	writeFile(t, dir, "sources.toml", `
[[sources]]
id = "station"
role = "station"
kind = "file"
path = "`+stationFile+`"

[[sources]]
id = "recorder"
role = "recorder"
kind = "file"
path = "`+recorderFile+`"
`)
	opts.MetricsTextfile = filepath.Join(dir, "textfile", "lwalight.prom")

	a, err := Build(opts, testLogger())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.After(3 * time.Second)
	for {
		data, _ := os.ReadFile(opts.MetricsTextfile)
		if strings.Contains(string(data), `lwalight_display_state_info{state="recorder_active"} 1`) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("recorder_active never exported; textfile:\n%s", data)
		case <-time.After(20 * time.Millisecond):
		}
	}

	noop := a.Controller.(*led.Noop)
	if last, _ := noop.Last(); last != display.DefaultChart()[display.StateRecorderActive] {
		t.Errorf("last command = %v, want recorder_active", last)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if last, _ := noop.Last(); last != display.Off {
		t.Errorf("command after shutdown = %v, want off", last)
	}
	if a.Loop.Phase() != monitor.PhaseStopped {
		t.Errorf("phase = %s, want stopped", a.Loop.Phase())
	}
}

func TestApp_ChartReload(t *testing.T) {
	opts := testOptions(t)
	opts.Station = "lwa1"
	writeFile(t, filepath.Dir(opts.ChartFile), "chart.toml", "")

	a, err := Build(opts, testLogger())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer a.Close()

	chart := display.DefaultChart()
	chart[display.StateSourcesUnreachable] = display.Command{Color: display.Color{R: 0x10, G: 0x10, B: 0x10}, Pattern: display.PatternSolid}
	a.swapChart(chart)
	if got := a.Loop.Encoder().Encode(display.StateSourcesUnreachable); got != chart[display.StateSourcesUnreachable] {
		t.Errorf("encoder not swapped: %v", got)
	}

	bad := display.DefaultChart()
	delete(bad, display.StateAllNominal)
	a.swapChart(bad)
	if got := a.Loop.Encoder().Encode(display.StateSourcesUnreachable); got != chart[display.StateSourcesUnreachable] {
		t.Errorf("invalid chart replaced the encoder: %v", got)
	}
}

// flakySource fails a fixed number of times, then reports nominal.
type flakySource struct {
	failures int
	calls    int
}

func (f *flakySource) ID() string { return "flaky" }

func (f *flakySource) Fetch(context.Context) (sources.Observation, error) {
	f.calls++
	if f.calls <= f.failures {
		return sources.Observation{}, sources.ErrUnavailable
	}
	return sources.Observation{Value: status.ValueNominal}, nil
}

func TestDefaultPollerRetriesWithinCycle(t *testing.T) {
	sc := config.SourceConfig{ID: "flaky", Role: "station", Kind: config.KindOpScreen}.WithDefaults(5 * time.Second)
	src := &flakySource{failures: 2}
	noSleep := func(context.Context, time.Duration) error { return nil }
	p := poller.New(src, pollerConfig(sc), testLogger(), poller.WithSleep(noSleep))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r := p.Poll(ctx)

	if want := 1 + sc.RetryCount(); src.calls != want {
		t.Errorf("Fetch called %d times, want %d", src.calls, want)
	}
	if r.Value != status.ValueNominal || r.Stale {
		t.Errorf("Poll() = %+v, want fresh nominal", r)
	}
}
