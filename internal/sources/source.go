// Package sources implements the status sources polled by lwalight. Every
// kind satisfies Source; the kind is chosen by configuration, never by type
// inspection.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/smazurov/lwalight/internal/config"
	"github.com/smazurov/lwalight/internal/status"
)

var (
	// ErrUnavailable means the source could not produce a value.
	ErrUnavailable = errors.New("source unavailable")
	// ErrTimeout means the source did not answer in time.
	ErrTimeout = errors.New("source timeout")
)

// Observation is one successful fetch.
type Observation struct {
	Value  status.Value
	Detail string
}

// Source is a single upstream status provider.
type Source interface {
	ID() string
	// Fetch returns the current value. Failures wrap ErrUnavailable or ErrTimeout.
	Fetch(ctx context.Context) (Observation, error)
}

// UnitStater reports the ActiveState of a systemd unit.
type UnitStater interface {
	UnitState(ctx context.Context, unit string) (string, error)
}

// Deps are the shared resources sources are built with.
type Deps struct {
	HTTPClient *http.Client
	// Documents shares status documents between sources; one is created per
	// source when nil.
	Documents *Documents
	Systemd   UnitStater
	Now       func() time.Time
	Logger    *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Documents == nil {
		d.Documents = NewDocuments(d.HTTPClient, 0, d.Now)
	}
	return d
}

// Build constructs the source described by cfg.
func Build(cfg config.SourceConfig, deps Deps) (Source, error) {
	deps = deps.withDefaults()
	logger := deps.Logger.With("source", cfg.ID)

	switch cfg.Kind {
	case config.KindOpScreen:
		return newOpScreen(cfg, deps)
	case config.KindImageAge:
		return newImageAge(cfg, deps), nil
	case config.KindFile:
		return newFile(cfg, deps), nil
	case config.KindSystemd:
		if deps.Systemd == nil {
			return nil, fmt.Errorf("source %s: no systemd connection available", cfg.ID)
		}
		return newSystemd(cfg, deps.Systemd)
	case config.KindModbus:
		return newModbus(cfg), nil
	case config.KindMQTT:
		return newMQTT(cfg, deps.Now, logger), nil
	case config.KindExec:
		return newExec(cfg), nil
	default:
		return nil, fmt.Errorf("source %s: unknown kind %q", cfg.ID, cfg.Kind)
	}
}

// Close releases resources held by src, if any.
func Close(src Source) error {
	if c, ok := src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// classify wraps err with ErrTimeout or ErrUnavailable.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}
