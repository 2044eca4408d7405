package config

import (
	"fmt"
	"strings"
	"time"
)

// Options is the process configuration. Flags are generated by humacli;
// LoadConfig overlays the TOML file and LWALIGHT_* environment variables.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"/etc/lwalight/lwalight.toml"`

	// Station and sources
	Station     string `help:"Station preset used when the sources file is absent (lwa1, lwasv, lwana)" short:"s" default:"lwa1" toml:"station.name" env:"STATION"`
	SourcesFile string `help:"Status sources file (.toml, .yaml)" default:"/etc/lwalight/sources.toml" toml:"sources.file" env:"SOURCES_FILE"`

	// Main loop
	Interval      string `help:"Time between update cycles" short:"i" default:"5s" toml:"loop.interval" env:"LOOP_INTERVAL"`
	CycleDeadline string `help:"Maximum time one cycle waits for sources (defaults to the interval)" toml:"loop.cycle_deadline" env:"LOOP_CYCLE_DEADLINE"`

	// Display
	ChartFile  string `help:"Color chart file" default:"/etc/lwalight/chart.toml" toml:"display.chart_file" env:"DISPLAY_CHART_FILE"`
	ChartWatch bool   `help:"Reload the color chart when the file changes" default:"true" toml:"display.chart_watch" env:"DISPLAY_CHART_WATCH"`
	Precedence string `help:"Comma-separated display state precedence, most severe first" toml:"display.precedence" env:"DISPLAY_PRECEDENCE"`

	// Indicator device
	Device          string `help:"Indicator type (blinkstick, sysfs, none)" short:"d" default:"blinkstick" toml:"device.kind" env:"DEVICE_KIND"`
	DeviceSerial    string `help:"BlinkStick serial number (first device when empty)" toml:"device.serial" env:"DEVICE_SERIAL"`
	DeviceSysfsPath string `help:"Multicolor LED class directory for the sysfs indicator (first multicolor LED when empty)" toml:"device.sysfs_path" env:"DEVICE_SYSFS_PATH"`
	DeviceHotplug   bool   `help:"Reattach the indicator on USB hotplug events" default:"true" toml:"device.hotplug" env:"DEVICE_HOTPLUG"`

	// Metrics
	MetricsTextfile string `help:"Write Prometheus metrics to this node_exporter textfile after every cycle" toml:"metrics.textfile" env:"METRICS_TEXTFILE"`

	// Logging
	LoggingLevel  string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
}

// LoopInterval parses Interval.
func (o *Options) LoopInterval() (time.Duration, error) {
	d, err := time.ParseDuration(o.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", o.Interval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %s", d)
	}
	return d, nil
}

// Deadline parses CycleDeadline, falling back to the loop interval.
func (o *Options) Deadline() (time.Duration, error) {
	interval, err := o.LoopInterval()
	if err != nil {
		return 0, err
	}
	if o.CycleDeadline == "" {
		return interval, nil
	}
	d, err := time.ParseDuration(o.CycleDeadline)
	if err != nil {
		return 0, fmt.Errorf("invalid cycle deadline %q: %w", o.CycleDeadline, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("cycle deadline must be positive, got %s", d)
	}
	return d, nil
}

// PrecedenceList splits Precedence into state names.
func (o *Options) PrecedenceList() []string {
	if strings.TrimSpace(o.Precedence) == "" {
		return nil
	}
	parts := strings.Split(o.Precedence, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	return names
}
