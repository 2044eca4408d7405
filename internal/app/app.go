package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/lwalight/internal/config"
	"github.com/smazurov/lwalight/internal/display"
	"github.com/smazurov/lwalight/internal/events"
	"github.com/smazurov/lwalight/internal/hotplug"
	"github.com/smazurov/lwalight/internal/led"
	"github.com/smazurov/lwalight/internal/logging"
	"github.com/smazurov/lwalight/internal/metrics"
	"github.com/smazurov/lwalight/internal/monitor"
	"github.com/smazurov/lwalight/internal/systemd"
)

// hotplugSettle is how long a burst of uevents must be quiet before the
// indicator is reopened.
const hotplugSettle = 500 * time.Millisecond

// App is the assembled daemon.
type App struct {
	Pipeline   *Pipeline
	Controller led.Controller
	Bus        *events.Bus
	Loop       *monitor.Loop

	opts     *config.Options
	interval time.Duration
	logger   *slog.Logger
	notifier *systemd.Notifier
	watcher  *config.Watcher[display.Chart]

	unsubscribe []func()
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// OpenController opens the indicator named by opts.
func OpenController(opts *config.Options) (led.Controller, error) {
	return led.New(led.Options{
		Kind:      opts.Device,
		Serial:    opts.DeviceSerial,
		SysfsPath: opts.DeviceSysfsPath,
	}, logging.GetLogger("led"))
}

// Build assembles the daemon. Any error here is a startup failure.
func Build(opts *config.Options, logger *slog.Logger) (*App, error) {
	deadline, err := opts.Deadline()
	if err != nil {
		return nil, err
	}
	interval, err := opts.LoopInterval()
	if err != nil {
		return nil, err
	}

	pipeline, err := BuildPipeline(opts)
	if err != nil {
		return nil, err
	}

	ctrl, err := OpenController(opts)
	if err != nil {
		pipeline.Close()
		return nil, fmt.Errorf("failed to open indicator: %w", err)
	}

	a := &App{
		Pipeline:   pipeline,
		Controller: ctrl,
		Bus:        events.New(),
		opts:       opts,
		interval:   interval,
		logger:     logger,
		notifier:   systemd.NewNotifier(),
	}

	a.unsubscribe = append(a.unsubscribe, metrics.Subscribe(a.Bus, opts.MetricsTextfile, logging.GetLogger("metrics")))

	a.Loop = monitor.New(
		monitor.Config{Interval: interval, Deadline: deadline},
		pipeline.MonitorPollers(),
		pipeline.Aggregator,
		pipeline.Encoder,
		ctrl,
		logging.GetLogger("monitor"),
		monitor.WithBus(a.Bus),
		monitor.WithAfterCycle(a.afterCycle),
	)

	if opts.ChartWatch && opts.ChartFile != "" {
		a.watcher = config.NewConfigWatcher(opts.ChartFile, display.LoadChart, logging.GetLogger("config"),
			config.WithErrorHandler[display.Chart](a.rejectChart))
		a.watcher.OnReload(a.swapChart)
	}

	pipeline.LogSources(logger)
	logger.Info("Indicator ready", "device", ctrl.Name())
	return a, nil
}

func (a *App) swapChart(chart display.Chart) {
	enc, err := display.NewEncoder(chart)
	if err != nil {
		a.rejectChart(err)
		return
	}
	a.Loop.SetEncoder(enc)
	a.logger.Info("Color chart reloaded", "path", a.opts.ChartFile)
	a.Bus.Publish(events.ChartReloaded{Path: a.opts.ChartFile, At: time.Now()})
}

func (a *App) rejectChart(err error) {
	a.logger.Warn("Keeping current color chart", "path", a.opts.ChartFile, "error", err)
	a.Bus.Publish(events.ChartReloaded{Path: a.opts.ChartFile, Error: err.Error(), At: time.Now()})
}

func (a *App) afterCycle(res monitor.Result) {
	if err := a.notifier.Watchdog(); err != nil {
		a.logger.Debug("Failed to notify watchdog", "error", err)
	}
	if err := a.notifier.Status(fmt.Sprintf("%s (%s)", res.Decision.State, res.Decision.Cause)); err != nil {
		a.logger.Debug("Failed to notify status", "error", err)
	}
}

// Run starts the chart watcher and hotplug monitor, then runs the loop until
// ctx is cancelled. The indicator is turned off and closed on return.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.watcher != nil {
		if err := a.watcher.Start(); err != nil {
			a.logger.Warn("Chart hot reload disabled", "path", a.opts.ChartFile, "error", err)
			a.watcher = nil
		}
	}

	if a.opts.DeviceHotplug {
		a.startHotplug(ctx)
	}

	if wd := systemd.WatchdogInterval(); wd > 0 && wd < a.interval {
		a.logger.Warn("Watchdog timeout is shorter than the loop interval", "watchdog", wd)
	}
	if err := a.notifier.Ready(); err != nil {
		a.logger.Debug("Failed to notify readiness", "error", err)
	}

	err := a.Loop.Run(ctx)

	if notifyErr := a.notifier.Stopping(); notifyErr != nil {
		a.logger.Debug("Failed to notify stopping", "error", notifyErr)
	}
	cancel()
	a.wg.Wait()
	return err
}

func (a *App) startHotplug(ctx context.Context) {
	if _, ok := a.Controller.(led.Reattacher); !ok {
		return
	}

	mon, err := hotplug.NewMonitor()
	if err != nil {
		a.logger.Warn("Hotplug monitoring unavailable", "error", err)
		return
	}
	mon.AddSubsystemFilter(hotplug.SubsystemUSB)
	mon.AddSubsystemFilter(hotplug.SubsystemHidraw)

	uevents := make(chan hotplug.Event, 16)
	hpLogger := logging.GetLogger("led")

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		defer mon.Close()
		if runErr := mon.Run(ctx, uevents); runErr != nil && !errors.Is(runErr, context.Canceled) {
			hpLogger.Warn("Hotplug monitor stopped", "error", runErr)
		}
	}()
	go func() {
		defer a.wg.Done()
		hotplug.Watch(ctx, uevents, hotplugSettle,
			hotplug.USBProduct(led.BlinkStickVendorID, led.BlinkStickProductID),
			hpLogger, a.Loop.Reattach)
	}()
}

// Close releases everything Run does not. It is safe to call more than once.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		if a.watcher != nil {
			if err := a.watcher.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		// The loop closes the controller on its way out; if it never ran, close it here.
		if a.Loop.Phase() == monitor.PhaseIdle {
			if err := a.Controller.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, unsub := range a.unsubscribe {
			unsub()
		}
		if err := a.Pipeline.Close(); err != nil {
			errs = append(errs, err)
		}
		if a.opts.MetricsTextfile != "" {
			if err := metrics.WriteTextfile(a.opts.MetricsTextfile); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

