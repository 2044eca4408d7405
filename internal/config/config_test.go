package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeFile(t, "lwalight.toml", `
[station]
name = "lwasv"

[loop]
interval = "10s"

[display]
chart_watch = false
precedence = ["station_critical", "station_warning", "sources_unreachable", "recorder_active", "camera_stalled", "all_nominal"]

[device]
kind = "sysfs"
`)

	opts := &Options{Config: path}
	ApplyDefaults(opts)
	opts.ChartWatch = true

	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Station != "lwasv" {
		t.Errorf("Station = %q, want lwasv", opts.Station)
	}
	if opts.Interval != "10s" {
		t.Errorf("Interval = %q, want 10s", opts.Interval)
	}
	if opts.ChartWatch {
		t.Error("ChartWatch should be false from TOML")
	}
	if opts.Device != "sysfs" {
		t.Errorf("Device = %q, want sysfs", opts.Device)
	}
	if got := opts.PrecedenceList(); len(got) != 6 || got[1] != "station_warning" {
		t.Errorf("PrecedenceList() = %v", got)
	}
	// Untouched fields keep their defaults
	if opts.LoggingLevel != "info" {
		t.Errorf("LoggingLevel = %q, want default info", opts.LoggingLevel)
	}
}

func TestLoadConfigEnvOverridesToml(t *testing.T) {
	path := writeFile(t, "lwalight.toml", `
[station]
name = "lwasv"

[device]
kind = "sysfs"
`)
	t.Setenv("LWALIGHT_STATION", "lwana")
	t.Setenv("LWALIGHT_DEVICE_HOTPLUG", "false")

	opts := &Options{Config: path, DeviceHotplug: true}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Station != "lwana" {
		t.Errorf("Station = %q, want lwana (env)", opts.Station)
	}
	if opts.DeviceHotplug {
		t.Error("DeviceHotplug should be false (env)")
	}
	if opts.Device != "sysfs" {
		t.Errorf("Device = %q, want sysfs (TOML)", opts.Device)
	}
}

func TestLoadConfigCLIWins(t *testing.T) {
	path := writeFile(t, "lwalight.toml", "[station]\nname = \"lwasv\"\n")
	t.Setenv("LWALIGHT_STATION", "lwana")

	opts := &Options{Config: path}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&opts.Station, "station", "lwa1", "")
	if err := cmd.Flags().Set("station", "lwa1"); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if opts.Station != "lwa1" {
		t.Errorf("Station = %q, want lwa1 (CLI)", opts.Station)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &Options{Config: filepath.Join(t.TempDir(), "absent.toml")}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig should not fail for missing file: %v", err)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	opts := &Options{Config: writeFile(t, "bad.toml", "[station\nname = \n")}
	if err := LoadConfig(opts, nil); err == nil {
		t.Fatal("LoadConfig should fail for invalid TOML")
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Run("env", func(t *testing.T) {
		t.Setenv("LWALIGHT_DEVICE_HOTPLUG", "sometimes")
		opts := &Options{}
		if err := LoadConfig(opts, nil); err == nil {
			t.Fatal("expected an error for a non-boolean LWALIGHT_DEVICE_HOTPLUG")
		}
	})

	t.Run("toml type", func(t *testing.T) {
		opts := &Options{Config: writeFile(t, "lwalight.toml", "[device]\nhotplug = \"yes\"\n")}
		if err := LoadConfig(opts, nil); err == nil {
			t.Fatal("expected an error for a string in a boolean option")
		}
	})

	t.Run("toml array item", func(t *testing.T) {
		opts := &Options{Config: writeFile(t, "lwalight.toml", "[display]\nprecedence = [\"station_critical\", 3]\n")}
		if err := LoadConfig(opts, nil); err == nil {
			t.Fatal("expected an error for a non-string precedence entry")
		}
	})
}

func TestApplyDefaults(t *testing.T) {
	opts := &Options{Station: "lwana"}
	ApplyDefaults(opts)

	if opts.Station != "lwana" {
		t.Errorf("Station = %q, explicit value should survive", opts.Station)
	}
	if opts.Interval != "5s" || opts.Device != "blinkstick" || !opts.ChartWatch {
		t.Errorf("defaults not applied: %+v", opts)
	}
	if opts.CycleDeadline != "" {
		t.Errorf("CycleDeadline = %q, want empty", opts.CycleDeadline)
	}
	if opts.DeviceSysfsPath != "" {
		t.Errorf("DeviceSysfsPath = %q, want empty so the LED is detected", opts.DeviceSysfsPath)
	}
}

func TestOptionsDurations(t *testing.T) {
	tests := []struct {
		name         string
		interval     string
		deadline     string
		wantInterval time.Duration
		wantDeadline time.Duration
		wantErr      bool
	}{
		{"defaults to interval", "5s", "", 5 * time.Second, 5 * time.Second, false},
		{"explicit deadline", "5s", "3s", 5 * time.Second, 3 * time.Second, false},
		{"bad interval", "soon", "", 0, 0, true},
		{"zero interval", "0s", "", 0, 0, true},
		{"bad deadline", "5s", "-1s", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &Options{Interval: tt.interval, CycleDeadline: tt.deadline}
			interval, err := opts.LoopInterval()
			if err == nil {
				var deadline time.Duration
				deadline, err = opts.Deadline()
				if err == nil && (interval != tt.wantInterval || deadline != tt.wantDeadline) {
					t.Errorf("got interval=%s deadline=%s", interval, deadline)
				}
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"device": map[string]any{
			"kind": "sysfs",
		},
		"root": "root_value",
	}

	tests := []struct {
		path     string
		expected any
	}{
		{"root", "root_value"},
		{"device.kind", "sysfs"},
		{"nonexistent", nil},
		{"device.nonexistent", nil},
		{"root.child", nil},
	}

	for _, test := range tests {
		if result := getNestedValue(data, test.path); result != test.expected {
			t.Errorf("getNestedValue(%q) = %v, expected %v", test.path, result, test.expected)
		}
	}
}

func TestSetFieldValueFromString(t *testing.T) {
	type target struct {
		StringField string
		BoolField   bool
		IntField    int
		FloatField  float64
		SliceField  []string
	}

	s := &target{}
	v := reflect.ValueOf(s).Elem()

	inputs := map[string]string{
		"StringField": "text",
		"BoolField":   "true",
		"IntField":    "123",
		"FloatField":  "0.25",
		"SliceField":  " a , b ",
	}
	for name, in := range inputs {
		if err := setFieldValueFromString(v.FieldByName(name), in); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if err := setFieldValueFromString(v.FieldByName("IntField"), "many"); err == nil {
		t.Error("expected an error for a non-numeric int")
	}

	want := target{StringField: "text", BoolField: true, IntField: 123, FloatField: 0.25, SliceField: []string{"a", "b"}}
	if !reflect.DeepEqual(*s, want) {
		t.Errorf("got %+v, want %+v", *s, want)
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := writeFile(t, "lwalight.toml", `
[logging]
level = "warn"
format = "json"
poller = "debug"
led = "error"
`)

	cfg := LoadLoggingConfig(path)
	if cfg.Level != "warn" || cfg.Format != "json" {
		t.Errorf("Level/Format = %q/%q, want warn/json", cfg.Level, cfg.Format)
	}
	if cfg.Modules["poller"] != "debug" || cfg.Modules["led"] != "error" {
		t.Errorf("Modules = %v", cfg.Modules)
	}

	if missing := LoadLoggingConfig(""); missing.Level != "info" {
		t.Errorf("default Level = %q, want info", missing.Level)
	}
}
