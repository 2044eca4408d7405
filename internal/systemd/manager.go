// Package systemd talks to the service manager: unit state queries over
// D-Bus and readiness/watchdog notifications for the daemon itself.
package systemd

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Manager queries unit state via D-Bus. The connection is opened on first
// use and reopened after a failed query.
type Manager struct {
	user bool

	mu   sync.Mutex
	conn *dbus.Conn
}

// NewManager creates a manager for the system bus, or the user bus when user is set.
func NewManager(user bool) *Manager {
	return &Manager{user: user}
}

func (m *Manager) connect(ctx context.Context) (*dbus.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil && m.conn.Connected() {
		return m.conn, nil
	}

	var (
		conn *dbus.Conn
		err  error
	)
	if m.user {
		conn, err = dbus.NewUserConnectionContext(ctx)
	} else {
		conn, err = dbus.NewSystemConnectionContext(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	m.conn = conn
	return conn, nil
}

// UnitState retrieves the ActiveState property of a unit (active, inactive, failed, ...).
func (m *Manager) UnitState(ctx context.Context, unit string) (string, error) {
	conn, err := m.connect(ctx)
	if err != nil {
		return "", err
	}
	prop, err := conn.GetUnitPropertyContext(ctx, unit, "ActiveState")
	if err != nil {
		m.drop(conn)
		return "", fmt.Errorf("failed to get state of %s: %w", unit, err)
	}
	state, ok := prop.Value.Value().(string)
	if !ok {
		return "", fmt.Errorf("unexpected ActiveState type %s for %s", prop.Value.Signature(), unit)
	}
	return state, nil
}

func (m *Manager) drop(conn *dbus.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == conn {
		m.conn.Close()
		m.conn = nil
	}
}

// Close cleanly closes the D-Bus connection.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}
