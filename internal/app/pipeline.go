// Package app wires configuration, sources, pollers, the aggregator, the
// encoder and the indicator into a runnable daemon.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/smazurov/lwalight/internal/aggregate"
	"github.com/smazurov/lwalight/internal/config"
	"github.com/smazurov/lwalight/internal/display"
	"github.com/smazurov/lwalight/internal/logging"
	"github.com/smazurov/lwalight/internal/metrics"
	"github.com/smazurov/lwalight/internal/monitor"
	"github.com/smazurov/lwalight/internal/poller"
	"github.com/smazurov/lwalight/internal/sources"
	"github.com/smazurov/lwalight/internal/status"
	"github.com/smazurov/lwalight/internal/systemd"
)

// Pipeline is everything between the upstream sources and the display
// command. It has no indicator attached.
type Pipeline struct {
	Sources    *config.SourcesConfig
	Pollers    []*poller.Poller
	Aggregator *aggregate.Aggregator
	Encoder    *display.Encoder
	Chart      display.Chart

	built   []sources.Source
	systemd *systemd.Manager
}

// BuildPipeline loads sources, chart and precedence policy from opts.
func BuildPipeline(opts *config.Options) (*Pipeline, error) {
	interval, err := opts.LoopInterval()
	if err != nil {
		return nil, err
	}

	policy, err := aggregate.ParsePolicy(opts.PrecedenceList())
	if err != nil {
		return nil, fmt.Errorf("failed to load precedence: %w", err)
	}
	agg, err := aggregate.New(policy)
	if err != nil {
		return nil, err
	}

	chart, err := display.LoadChart(opts.ChartFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load chart: %w", err)
	}
	enc, err := display.NewEncoder(chart)
	if err != nil {
		return nil, err
	}

	srcCfg, err := config.LoadSources(opts.SourcesFile, opts.Station)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}

	p := &Pipeline{
		Sources:    srcCfg,
		Aggregator: agg,
		Encoder:    enc,
		Chart:      chart,
		systemd:    systemd.NewManager(false),
	}

	client := &http.Client{}
	deps := sources.Deps{
		HTTPClient: client,
		Documents:  sources.NewDocuments(client, 0, nil),
		Systemd:    p.systemd,
		Logger:     logging.GetLogger("sources"),
	}
	pollerLogger := logging.GetLogger("poller")

	for _, sc := range srcCfg.Sources {
		sc = sc.WithDefaults(interval)
		src, buildErr := sources.Build(sc, deps)
		if buildErr != nil {
			p.Close()
			return nil, fmt.Errorf("failed to build source %q: %w", sc.ID, buildErr)
		}
		p.built = append(p.built, src)

		pl := poller.New(src, pollerConfig(sc), pollerLogger)
		pl.OnAttempt = func(a poller.Attempt) {
			metrics.ObservePollAttempt(a.SourceID, a.Err, a.Duration)
		}
		p.Pollers = append(p.Pollers, pl)
	}

	return p, nil
}

func pollerConfig(sc config.SourceConfig) poller.Config {
	return poller.Config{
		Role:    status.Role(sc.Role),
		Timeout: sc.Timeout.D(),
		Retries: sc.RetryCount(),
		Backoff: poller.BackoffConfig{
			InitialDelay: sc.Backoff.Initial.D(),
			MaxDelay:     sc.Backoff.Max.D(),
			Multiplier:   sc.Backoff.Multiplier,
			Jitter:       sc.Backoff.Jitter,
		},
		Interval:  sc.Interval.D(),
		Freshness: sc.Freshness.D(),
	}
}

// MonitorPollers returns the pollers as the loop consumes them.
func (p *Pipeline) MonitorPollers() []monitor.Poller {
	out := make([]monitor.Poller, len(p.Pollers))
	for i, pl := range p.Pollers {
		out[i] = pl
	}
	return out
}

// LogSources writes the configured sources at info level.
func (p *Pipeline) LogSources(logger *slog.Logger) {
	for _, sc := range p.Sources.Sources {
		logger.Info("Status source", "id", sc.ID, "role", sc.Role, "kind", sc.Kind)
	}
}

// Close releases source connections.
func (p *Pipeline) Close() error {
	var errs []error
	for _, src := range p.built {
		if err := sources.Close(src); err != nil {
			errs = append(errs, fmt.Errorf("failed to close source %s: %w", src.ID(), err))
		}
	}
	p.built = nil
	if p.systemd != nil {
		p.systemd.Close()
	}
	return errors.Join(errs...)
}
