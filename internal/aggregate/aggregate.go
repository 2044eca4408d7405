// Package aggregate reduces a snapshot of source readings to one display state.
package aggregate

import (
	"fmt"
	"strings"
	"time"

	"github.com/smazurov/lwalight/internal/display"
	"github.com/smazurov/lwalight/internal/status"
)

// Policy is the order in which state conditions are evaluated.
// The first state whose condition holds is the result.
type Policy struct {
	Precedence []display.State
}

// DefaultPolicy evaluates the most severe states first.
func DefaultPolicy() Policy {
	return Policy{Precedence: []display.State{
		display.StateStationCritical,
		display.StateSourcesUnreachable,
		display.StateStationWarning,
		display.StateRecorderActive,
		display.StateCameraStalled,
		display.StateAllNominal,
	}}
}

// ParsePolicy builds a policy from state names. An empty list is the default policy.
func ParsePolicy(names []string) (Policy, error) {
	if len(names) == 0 {
		return DefaultPolicy(), nil
	}
	p := Policy{Precedence: make([]display.State, 0, len(names))}
	for _, name := range names {
		s, err := display.ParseState(name)
		if err != nil {
			return Policy{}, err
		}
		p.Precedence = append(p.Precedence, s)
	}
	return p, p.Validate()
}

// Validate requires every state exactly once with all_nominal last,
// so that an unreachable or empty snapshot can never read as nominal.
func (p Policy) Validate() error {
	all := display.AllStates()
	if len(p.Precedence) != len(all) {
		return fmt.Errorf("precedence must list all %d states, got %d", len(all), len(p.Precedence))
	}
	seen := make(map[display.State]bool, len(all))
	for _, s := range p.Precedence {
		if !s.Valid() {
			return fmt.Errorf("precedence contains invalid state %d", int(s))
		}
		if seen[s] {
			return fmt.Errorf("precedence lists %s more than once", s)
		}
		seen[s] = true
	}
	if last := p.Precedence[len(p.Precedence)-1]; last != display.StateAllNominal {
		return fmt.Errorf("precedence must end with %s, ends with %s", display.StateAllNominal, last)
	}
	return nil
}

func (p Policy) String() string {
	names := make([]string, len(p.Precedence))
	for i, s := range p.Precedence {
		names[i] = s.String()
	}
	return strings.Join(names, " > ")
}

// Aggregator applies a validated policy to snapshots. It holds no mutable state.
type Aggregator struct {
	precedence []display.State
}

// New returns an aggregator for p.
func New(p Policy) (*Aggregator, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid precedence policy: %w", err)
	}
	return &Aggregator{precedence: append([]display.State(nil), p.Precedence...)}, nil
}

// Decision is an aggregation result with the reasoning behind it.
type Decision struct {
	State display.State
	Cause string
	// Unreachable lists source ids whose effective value was Unknown.
	Unreachable []string
}

// Aggregate returns the display state for snap evaluated at now.
func (a *Aggregator) Aggregate(snap status.Snapshot, now time.Time) display.State {
	return a.Decide(snap, now).State
}

// Decide is Aggregate with a human-readable cause.
func (a *Aggregator) Decide(snap status.Snapshot, now time.Time) Decision {
	f := summarize(snap, now)
	for _, s := range a.precedence {
		if cause, ok := f.holds(s); ok {
			return Decision{State: s, Cause: cause, Unreachable: f.unknown}
		}
	}
	// Unreachable with a validated policy since all_nominal always holds.
	return Decision{State: display.StateAllNominal, Cause: "no condition matched", Unreachable: f.unknown}
}

// facts is the per-role reduction of one snapshot.
type facts struct {
	empty           bool
	stationCount    int
	stationCritical []string
	stationWarning  []string
	recorderActive  []string
	cameraInactive  []string
	unknown         []string
	unknownRoles    []string
}

func summarize(snap status.Snapshot, now time.Time) facts {
	f := facts{empty: len(snap) == 0}
	roles := make(map[status.Role]bool)
	for _, id := range snap.IDs() {
		r := snap[id]
		v := r.Effective(now)
		if v == status.ValueUnknown {
			f.unknown = append(f.unknown, id)
			if !roles[r.Role] {
				roles[r.Role] = true
				f.unknownRoles = append(f.unknownRoles, string(r.Role))
			}
		}
		switch r.Role {
		case status.RoleStation:
			f.stationCount++
			switch v {
			case status.ValueCritical:
				f.stationCritical = append(f.stationCritical, id)
			case status.ValueWarning:
				f.stationWarning = append(f.stationWarning, id)
			}
		case status.RoleRecorder:
			if v == status.ValueActive {
				f.recorderActive = append(f.recorderActive, id)
			}
		case status.RoleCamera:
			if v == status.ValueInactive {
				f.cameraInactive = append(f.cameraInactive, id)
			}
		}
	}
	return f
}

func (f facts) holds(s display.State) (string, bool) {
	switch s {
	case display.StateStationCritical:
		if len(f.stationCritical) > 0 {
			return "station critical: " + strings.Join(f.stationCritical, ", "), true
		}
	case display.StateSourcesUnreachable:
		switch {
		case f.empty:
			return "no sources configured", true
		case f.stationCount == 0:
			return "no station source", true
		case len(f.unknown) > 0:
			return fmt.Sprintf("unknown %s: %s", strings.Join(f.unknownRoles, "/"), strings.Join(f.unknown, ", ")), true
		}
	case display.StateStationWarning:
		if len(f.stationWarning) > 0 {
			return "station warning: " + strings.Join(f.stationWarning, ", "), true
		}
	case display.StateRecorderActive:
		if len(f.recorderActive) > 0 {
			return "recording: " + strings.Join(f.recorderActive, ", "), true
		}
	case display.StateCameraStalled:
		if len(f.cameraInactive) > 0 && len(f.recorderActive) == 0 {
			return "camera stalled: " + strings.Join(f.cameraInactive, ", "), true
		}
	case display.StateAllNominal:
		return "all nominal", true
	}
	return "", false
}
