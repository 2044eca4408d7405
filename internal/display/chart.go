package display

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Chart is the state to command table used by the encoder.
type Chart map[State]Command

// DefaultChart returns the built-in color chart.
func DefaultChart() Chart {
	return Chart{
		StateStationCritical:    {Color: Color{R: 0xff}, Pattern: PatternFastBlink},
		StateSourcesUnreachable: {Color: Color{R: 0xff, G: 0xff, B: 0xff}, Pattern: PatternSlowBlink},
		StateStationWarning:     {Color: Color{R: 0xff, G: 0x78}, Pattern: PatternSolid},
		StateCameraStalled:      {Color: Color{R: 0xa0, B: 0xff}, Pattern: PatternSlowBlink},
		StateRecorderActive:     {Color: Color{B: 0xff}, Pattern: PatternSolid},
		StateAllNominal:         {Color: Color{G: 0xff}, Pattern: PatternSolid},
	}
}

// Validate checks that every state has exactly one usable mapping.
func (c Chart) Validate() error {
	var missing []string
	for _, s := range AllStates() {
		cmd, ok := c[s]
		if !ok {
			missing = append(missing, s.String())
			continue
		}
		if cmd.Pattern != PatternOff && cmd.Color.IsBlack() {
			return fmt.Errorf("chart entry %s is black but not off", s)
		}
		if cmd.Pattern < PatternSolid || cmd.Pattern > PatternOff {
			return fmt.Errorf("chart entry %s has invalid pattern %d", s, int(cmd.Pattern))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("chart has no entry for: %s", strings.Join(missing, ", "))
	}
	for s := range c {
		if !s.Valid() {
			return fmt.Errorf("chart has entry for unknown state %d", int(s))
		}
	}
	return nil
}

// Clone returns an independent copy.
func (c Chart) Clone() Chart {
	out := make(Chart, len(c))
	for s, cmd := range c {
		out[s] = cmd
	}
	return out
}

// Scaled returns a copy with every color multiplied by brightness.
func (c Chart) Scaled(brightness float64) Chart {
	out := make(Chart, len(c))
	for s, cmd := range c {
		cmd.Color = cmd.Color.Scale(brightness)
		out[s] = cmd
	}
	return out
}

// chartFile is the on-disk layout of a chart.
type chartFile struct {
	Brightness float64               `toml:"brightness"`
	States     map[string]chartEntry `toml:"states"`
}

type chartEntry struct {
	Color   string `toml:"color"`
	Pattern string `toml:"pattern"`
}

// ParseChart decodes a TOML chart. Entries not present in the document keep
// the default chart's mapping; brightness (0, 1] scales the result.
func ParseChart(data []byte) (Chart, error) {
	var raw chartFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse chart: %w", err)
	}

	chart := DefaultChart()
	for name, entry := range raw.States {
		state, err := ParseState(name)
		if err != nil {
			return nil, err
		}
		cmd := chart[state]
		if entry.Color != "" {
			if cmd.Color, err = ParseColor(entry.Color); err != nil {
				return nil, fmt.Errorf("state %s: %w", name, err)
			}
		}
		if entry.Pattern != "" {
			if cmd.Pattern, err = ParsePattern(entry.Pattern); err != nil {
				return nil, fmt.Errorf("state %s: %w", name, err)
			}
		}
		chart[state] = cmd
	}

	if raw.Brightness < 0 || raw.Brightness > 1 {
		return nil, fmt.Errorf("brightness %v out of range (0, 1]", raw.Brightness)
	}
	if raw.Brightness > 0 {
		chart = chart.Scaled(raw.Brightness)
	}

	if err := chart.Validate(); err != nil {
		return nil, err
	}
	return chart, nil
}

// LoadChart reads a chart file. An empty path or a missing file yields the default chart.
func LoadChart(path string) (Chart, error) {
	if path == "" {
		return DefaultChart(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultChart(), nil
		}
		return nil, fmt.Errorf("failed to read chart: %w", err)
	}
	return ParseChart(data)
}
