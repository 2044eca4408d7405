package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	KindOpScreen = "opscreen"
	KindImageAge = "image_age"
	KindFile     = "file"
	KindSystemd  = "systemd"
	KindModbus   = "modbus"
	KindMQTT     = "mqtt"
	KindExec     = "exec"
)

// Polling defaults applied to sources that leave them unset.
const (
	DefaultTimeout        = 10 * time.Second
	DefaultRetries        = 2
	DefaultBackoffInitial = 500 * time.Millisecond
	DefaultBackoffMax     = 5 * time.Second
	DefaultMultiplier     = 2.0
	DefaultMinFreshness   = time.Minute
)

// ErrNoSources is returned when neither a sources file nor a station preset yields any source.
var ErrNoSources = errors.New("no status sources configured")

// BackoffConfig is the retry delay schedule of one source.
type BackoffConfig struct {
	Initial    Duration `toml:"initial" yaml:"initial"`
	Max        Duration `toml:"max" yaml:"max"`
	Multiplier float64  `toml:"multiplier" yaml:"multiplier"`
	Jitter     bool     `toml:"jitter" yaml:"jitter"`
}

// SourceConfig is one [[sources]] entry.
type SourceConfig struct {
	ID   string `toml:"id" yaml:"id"`
	Role string `toml:"role" yaml:"role"`
	Kind string `toml:"kind" yaml:"kind"`

	// Polling
	Timeout   Duration      `toml:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retries   *int          `toml:"retries,omitempty" yaml:"retries,omitempty"`
	Backoff   BackoffConfig `toml:"backoff,omitempty" yaml:"backoff,omitempty"`
	Interval  Duration      `toml:"interval,omitempty" yaml:"interval,omitempty"`   // Minimum time between fetches
	Freshness Duration      `toml:"freshness,omitempty" yaml:"freshness,omitempty"` // Maximum age of a reading before it is Unknown

	// HTTP kinds (opscreen, image_age)
	URL       string `toml:"url,omitempty" yaml:"url,omitempty"`
	Field     string `toml:"field,omitempty" yaml:"field,omitempty"`         // opscreen: summary or recorders
	Recorder  string `toml:"recorder,omitempty" yaml:"recorder,omitempty"`   // opscreen recorders: only this DR (e.g. DR2)
	Recorders int    `toml:"recorders,omitempty" yaml:"recorders,omitempty"` // opscreen recorders: DR count, missing DRs read as idle

	// file
	Path   string `toml:"path,omitempty" yaml:"path,omitempty"`
	Format string `toml:"format,omitempty" yaml:"format,omitempty"`
	Key    string `toml:"key,omitempty" yaml:"key,omitempty"`

	// image_age, file, mqtt
	MaxAge Duration `toml:"max_age,omitempty" yaml:"max_age,omitempty"`

	// systemd
	Unit        string `toml:"unit,omitempty" yaml:"unit,omitempty"`
	ActiveValue string `toml:"active_value,omitempty" yaml:"active_value,omitempty"`

	// modbus
	Address      string   `toml:"address,omitempty" yaml:"address,omitempty"`
	SlaveID      uint8    `toml:"slave_id,omitempty" yaml:"slave_id,omitempty"`
	Register     uint16   `toml:"register,omitempty" yaml:"register,omitempty"`
	RegisterType string   `toml:"register_type,omitempty" yaml:"register_type,omitempty"` // holding or input
	WarningAt    *float64 `toml:"warning_at,omitempty" yaml:"warning_at,omitempty"`
	CriticalAt   *float64 `toml:"critical_at,omitempty" yaml:"critical_at,omitempty"`

	// mqtt
	Broker   string `toml:"broker,omitempty" yaml:"broker,omitempty"`
	Topic    string `toml:"topic,omitempty" yaml:"topic,omitempty"`
	Username string `toml:"username,omitempty" yaml:"username,omitempty"`
	Password string `toml:"password,omitempty" yaml:"password,omitempty"`

	// exec
	Command []string `toml:"command,omitempty" yaml:"command,omitempty"`
}

// SourcesConfig is the complete sources file.
type SourcesConfig struct {
	Sources []SourceConfig `toml:"sources" yaml:"sources"`
}

// RetryCount returns the configured retries or the default.
func (s SourceConfig) RetryCount() int {
	if s.Retries == nil {
		return DefaultRetries
	}
	return *s.Retries
}

// WithDefaults returns a copy with unset polling parameters filled in.
// loopInterval is the main loop tick and bounds the default freshness from below.
func (s SourceConfig) WithDefaults(loopInterval time.Duration) SourceConfig {
	if s.Timeout == 0 {
		s.Timeout = Duration(DefaultTimeout)
	}
	if s.Backoff.Initial == 0 {
		s.Backoff.Initial = Duration(DefaultBackoffInitial)
	}
	if s.Backoff.Max == 0 {
		s.Backoff.Max = Duration(DefaultBackoffMax)
	}
	if s.Backoff.Multiplier == 0 {
		s.Backoff.Multiplier = DefaultMultiplier
	}
	if s.Freshness == 0 {
		period := max(s.Interval.D(), loopInterval)
		s.Freshness = Duration(max(3*period, DefaultMinFreshness))
	}
	return s
}

// Validate checks the fields required by the source's kind.
func (s SourceConfig) Validate() error {
	if s.ID == "" {
		return errors.New("source id cannot be empty")
	}
	switch s.Role {
	case "station", "recorder", "camera":
	default:
		return fmt.Errorf("source %s: unknown role %q", s.ID, s.Role)
	}
	if s.Retries != nil && *s.Retries < 0 {
		return fmt.Errorf("source %s: retries must not be negative", s.ID)
	}

	require := func(field, value string) error {
		if value == "" {
			return fmt.Errorf("source %s: %s source requires %s", s.ID, s.Kind, field)
		}
		return nil
	}

	switch s.Kind {
	case KindOpScreen:
		if err := require("url", s.URL); err != nil {
			return err
		}
		switch s.Field {
		case "summary", "recorders":
		default:
			return fmt.Errorf("source %s: opscreen field must be summary or recorders, got %q", s.ID, s.Field)
		}
	case KindImageAge:
		return require("url", s.URL)
	case KindFile:
		if err := require("path", s.Path); err != nil {
			return err
		}
		switch s.Format {
		case "", "json", "yaml", "toml", "text":
		default:
			return fmt.Errorf("source %s: unknown file format %q", s.ID, s.Format)
		}
	case KindSystemd:
		return require("unit", s.Unit)
	case KindModbus:
		if err := require("address", s.Address); err != nil {
			return err
		}
		switch s.RegisterType {
		case "", "holding", "input":
		default:
			return fmt.Errorf("source %s: register_type must be holding or input", s.ID)
		}
		if s.WarningAt == nil && s.CriticalAt == nil {
			return fmt.Errorf("source %s: modbus source requires warning_at or critical_at", s.ID)
		}
	case KindMQTT:
		if err := require("broker", s.Broker); err != nil {
			return err
		}
		return require("topic", s.Topic)
	case KindExec:
		if len(s.Command) == 0 {
			return fmt.Errorf("source %s: exec source requires command", s.ID)
		}
	default:
		return fmt.Errorf("source %s: unknown kind %q", s.ID, s.Kind)
	}
	return nil
}

// Validate checks every source and id uniqueness.
func (c *SourcesConfig) Validate() error {
	if len(c.Sources) == 0 {
		return ErrNoSources
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate source id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// ParseSources decodes a sources document. format is "toml" or "yaml".
func ParseSources(data []byte, format string) (*SourcesConfig, error) {
	var cfg SourcesConfig
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse sources config: %w", err)
		}
	case "toml", "":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse sources config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported sources format %q", format)
	}
	return &cfg, nil
}

// LoadSources reads the sources file at path. When the file does not exist the
// station preset is used instead. The result is validated.
func LoadSources(path, station string) (*SourcesConfig, error) {
	var cfg *SourcesConfig

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		if cfg, err = ParseSources(data, format); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist) || path == "":
		if station == "" {
			return nil, ErrNoSources
		}
		preset, ok := StationPreset(station)
		if !ok {
			return nil, fmt.Errorf("unknown station %q", station)
		}
		cfg = &SourcesConfig{Sources: preset.Sources()}
	default:
		return nil, fmt.Errorf("failed to read sources config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
