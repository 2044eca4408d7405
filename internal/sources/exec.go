package sources

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/smazurov/lwalight/internal/config"
	"github.com/smazurov/lwalight/internal/status"
)

// execSource runs a monitoring plugin and maps its exit code the way Nagios does.
type execSource struct {
	id      string
	command []string
}

func newExec(cfg config.SourceConfig) *execSource {
	return &execSource{id: cfg.ID, command: cfg.Command}
}

func (s *execSource) ID() string { return s.id }

func (s *execSource) Fetch(ctx context.Context) (Observation, error) {
	cmd := exec.CommandContext(ctx, s.command[0], s.command[1:]...)
	cmd.WaitDelay = time.Second
	out, err := cmd.Output()
	detail := firstLine(out)

	if err == nil {
		return Observation{Value: status.ValueNominal, Detail: detail}, nil
	}
	if ctx.Err() != nil {
		return Observation{}, classify(ctx, ctx.Err())
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return Observation{}, classify(ctx, err)
	}
	switch exitErr.ExitCode() {
	case 1:
		return Observation{Value: status.ValueWarning, Detail: detail}, nil
	case 2:
		return Observation{Value: status.ValueCritical, Detail: detail}, nil
	case 3:
		return Observation{}, unavailable("plugin reported UNKNOWN: %s", detail)
	default:
		return Observation{}, unavailable("plugin exited %d: %s", exitErr.ExitCode(), detail)
	}
}

func firstLine(out []byte) string {
	line, _, _ := bufio.NewReader(bytes.NewReader(out)).ReadLine()
	return strings.TrimSpace(string(line))
}
