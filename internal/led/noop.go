package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/lwalight/internal/display"
)

// Noop accepts every command and only logs it.
type Noop struct {
	logger *slog.Logger

	mu   sync.Mutex
	last display.Command
	n    int
}

// NewNoop returns a controller with no device behind it.
func NewNoop(logger *slog.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) Name() string { return "none" }

func (n *Noop) Apply(cmd display.Command) error {
	n.mu.Lock()
	changed := n.n == 0 || cmd != n.last
	n.last = cmd
	n.n++
	n.mu.Unlock()

	if changed {
		n.logger.Debug("Indicator command", "command", cmd.String())
	}
	return nil
}

// Last returns the most recent command and how many were applied.
func (n *Noop) Last() (display.Command, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last, n.n
}

func (n *Noop) Close() error { return nil }
