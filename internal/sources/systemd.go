package sources

import (
	"context"
	"fmt"

	"github.com/smazurov/lwalight/internal/config"
	"github.com/smazurov/lwalight/internal/status"
)

// unitSource maps a systemd unit's ActiveState onto a status value.
type unitSource struct {
	id     string
	unit   string
	active status.Value
	units  UnitStater
}

func newSystemd(cfg config.SourceConfig, units UnitStater) (*unitSource, error) {
	active := status.ValueActive
	if cfg.ActiveValue != "" {
		v, err := status.ParseValue(cfg.ActiveValue)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", cfg.ID, err)
		}
		active = v
	}
	return &unitSource{id: cfg.ID, unit: cfg.Unit, active: active, units: units}, nil
}

func (s *unitSource) ID() string { return s.id }

func (s *unitSource) Fetch(ctx context.Context) (Observation, error) {
	state, err := s.units.UnitState(ctx, s.unit)
	if err != nil {
		return Observation{}, classify(ctx, err)
	}

	detail := s.unit + " " + state
	switch state {
	case "active":
		return Observation{Value: s.active, Detail: detail}, nil
	case "inactive", "deactivating":
		return Observation{Value: status.ValueInactive, Detail: detail}, nil
	case "failed":
		return Observation{Value: status.ValueCritical, Detail: detail}, nil
	case "activating", "reloading":
		return Observation{Value: status.ValueWarning, Detail: detail}, nil
	default:
		return Observation{}, unavailable("unit %s in unexpected state %q", s.unit, state)
	}
}
