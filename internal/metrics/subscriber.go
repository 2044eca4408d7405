package metrics

import (
	"log/slog"

	"github.com/smazurov/lwalight/internal/events"
)

// Subscribe keeps the metrics current from bus events. When textfile is set
// the registry is written out after every cycle. The returned function
// unsubscribes.
func Subscribe(bus *events.Bus, textfile string, logger *slog.Logger) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.ReadingUpdated) {
			SetReading(e.Reading, e.At)
		}),
		bus.Subscribe(func(e events.StateChanged) {
			IncStateChange(e.To)
		}),
		bus.Subscribe(func(e events.CycleCompleted) {
			SetDisplayState(e.State)
			ObserveCycle(e.Duration, e.Missed)
			if textfile == "" {
				return
			}
			if err := WriteTextfile(textfile); err != nil {
				logger.Warn("Failed to export metrics", "path", textfile, "error", err)
			}
		}),
		bus.Subscribe(func(events.DeviceWriteFailed) {
			IncDeviceWriteFailure()
		}),
		bus.Subscribe(func(events.DeviceReattached) {
			IncDeviceReattach()
		}),
		bus.Subscribe(func(e events.ChartReloaded) {
			IncChartReload(e.Error == "")
		}),
	}

	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
