// Package display maps the aggregated station condition onto indicator commands.
package display

import (
	"fmt"
	"strings"
)

// State is the combined condition shown on the indicator.
// The declaration order is the default severity order, least severe first.
type State int

const (
	StateAllNominal State = iota
	StateRecorderActive
	StateCameraStalled
	StateStationWarning
	StateSourcesUnreachable
	StateStationCritical
)

var stateNames = []string{
	StateAllNominal:         "all_nominal",
	StateRecorderActive:     "recorder_active",
	StateCameraStalled:      "camera_stalled",
	StateStationWarning:     "station_warning",
	StateSourcesUnreachable: "sources_unreachable",
	StateStationCritical:    "station_critical",
}

// AllStates returns every state, least severe first.
func AllStates() []State {
	out := make([]State, len(stateNames))
	for i := range stateNames {
		out[i] = State(i)
	}
	return out
}

// Valid reports whether s is a member of the enumeration.
func (s State) Valid() bool {
	return s >= 0 && int(s) < len(stateNames)
}

func (s State) String() string {
	if s.Valid() {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState converts a state name (e.g. "station_warning") into a State.
func ParseState(name string) (State, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	for i, candidate := range stateNames {
		if candidate == n {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown display state %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid display state %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
