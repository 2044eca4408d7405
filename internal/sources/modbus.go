package sources

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
	"github.com/smazurov/lwalight/internal/config"
	"github.com/smazurov/lwalight/internal/status"
)

// modbusSource compares one register of a Modbus TCP device (shelter
// controller, UPS, ...) against warning and critical thresholds.
type modbusSource struct {
	id         string
	address    string
	slaveID    byte
	register   uint16
	input      bool
	warningAt  *float64
	criticalAt *float64

	read func(ctx context.Context) (uint16, error)
}

func newModbus(cfg config.SourceConfig) *modbusSource {
	slaveID := cfg.SlaveID
	if slaveID == 0 {
		slaveID = 1
	}
	s := &modbusSource{
		id:         cfg.ID,
		address:    cfg.Address,
		slaveID:    slaveID,
		register:   cfg.Register,
		input:      cfg.RegisterType == "input",
		warningAt:  cfg.WarningAt,
		criticalAt: cfg.CriticalAt,
	}
	s.read = s.readRegister
	return s
}

func (s *modbusSource) ID() string { return s.id }

func (s *modbusSource) Fetch(ctx context.Context) (Observation, error) {
	raw, err := s.read(ctx)
	if err != nil {
		return Observation{}, classify(ctx, err)
	}
	v := float64(raw)
	return Observation{Value: s.judge(v), Detail: fmt.Sprintf("register %d = %g", s.register, v)}, nil
}

// judge applies the thresholds. When critical_at is below warning_at the
// scale is inverted and low values are bad.
func (s *modbusSource) judge(v float64) status.Value {
	inverted := s.warningAt != nil && s.criticalAt != nil && *s.criticalAt < *s.warningAt
	beyond := func(threshold *float64) bool {
		if threshold == nil {
			return false
		}
		if inverted {
			return v <= *threshold
		}
		return v >= *threshold
	}

	switch {
	case beyond(s.criticalAt):
		return status.ValueCritical
	case beyond(s.warningAt):
		return status.ValueWarning
	default:
		return status.ValueNominal
	}
}

// readRegister opens a connection, reads one register and closes it again.
// The client has no context support, so the deadline becomes the handler timeout.
func (s *modbusSource) readRegister(ctx context.Context) (uint16, error) {
	h := modbus.NewTCPClientHandler(s.address)
	h.SlaveId = s.slaveID
	h.Timeout = 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		h.Timeout = time.Until(deadline)
	}
	if h.Timeout <= 0 {
		return 0, context.DeadlineExceeded
	}

	if err := h.Connect(); err != nil {
		return 0, fmt.Errorf("failed to connect to %s: %w", s.address, err)
	}
	defer h.Close()

	client := modbus.NewClient(h)
	var (
		data []byte
		err  error
	)
	if s.input {
		data, err = client.ReadInputRegisters(s.register, 1)
	} else {
		data, err = client.ReadHoldingRegisters(s.register, 1)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read register %d: %w", s.register, err)
	}
	if len(data) < 2 {
		return 0, fmt.Errorf("short register response (%d bytes)", len(data))
	}
	return binary.BigEndian.Uint16(data), nil
}
