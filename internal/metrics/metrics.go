// Package metrics provides Prometheus metrics for the status loop. There is
// no HTTP listener: the registry is written to a node_exporter textfile.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/lwalight/internal/display"
	"github.com/smazurov/lwalight/internal/sources"
	"github.com/smazurov/lwalight/internal/status"
)

const namespace = "lwalight"

// Poll attempt results.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultTimeout = "timeout"
)

var (
	displayState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "display",
		Name:      "state",
		Help:      "Current display state as its precedence ordinal (0 all_nominal .. 5 station_critical)",
	})

	displayStateInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "display",
		Name:      "state_info",
		Help:      "1 for the current display state, 0 for the others",
	}, []string{"state"})

	stateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "display",
		Name:      "state_changes_total",
		Help:      "Display state transitions by target state",
	}, []string{"state"})

	sourceValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "value",
		Help:      "Last reading per source (0 unknown, 1 nominal, 2 warning, 3 critical, 4 inactive, 5 active)",
	}, []string{"source", "role"})

	sourceStale = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "stale",
		Help:      "1 when the last fetch of the source failed",
	}, []string{"source"})

	sourceAge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "age_seconds",
		Help:      "Age of the fetch backing the reading",
	}, []string{"source"})

	pollAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poll",
		Name:      "attempts_total",
		Help:      "Fetch attempts by source and result",
	}, []string{"source", "result"})

	pollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "poll",
		Name:      "attempt_duration_seconds",
		Help:      "Duration of fetch attempts",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"source"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "cycle",
		Name:      "duration_seconds",
		Help:      "Duration of monitoring cycles",
		Buckets:   []float64{.01, .05, .1, .5, 1, 2.5, 5, 10},
	})

	cycleMissed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cycle",
		Name:      "missed_polls_total",
		Help:      "Polls that did not finish before the cycle deadline",
	}, []string{"source"})

	deviceWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "device",
		Name:      "write_failures_total",
		Help:      "Indicator commands that could not be written",
	})

	deviceReattaches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "device",
		Name:      "reattaches_total",
		Help:      "Indicator reopens after hotplug events",
	})

	chartReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chart",
		Name:      "reloads_total",
		Help:      "Color chart reloads by result",
	}, []string{"result"})
)

// SetDisplayState records the state shown this cycle.
func SetDisplayState(s display.State) {
	displayState.Set(float64(s))
	for _, candidate := range display.AllStates() {
		v := 0.0
		if candidate == s {
			v = 1
		}
		displayStateInfo.WithLabelValues(candidate.String()).Set(v)
	}
}

// IncStateChange counts a transition into s.
func IncStateChange(s display.State) {
	stateChanges.WithLabelValues(s.String()).Inc()
}

// SetReading records a source reading evaluated at now.
func SetReading(r status.Reading, now time.Time) {
	sourceValue.WithLabelValues(r.SourceID, string(r.Role)).Set(float64(r.Value))
	stale := 0.0
	if r.Stale {
		stale = 1
	}
	sourceStale.WithLabelValues(r.SourceID).Set(stale)
	sourceAge.WithLabelValues(r.SourceID).Set(r.Age(now).Seconds())
}

// ObservePollAttempt records one fetch attempt.
func ObservePollAttempt(source string, err error, d time.Duration) {
	pollAttempts.WithLabelValues(source, attemptResult(err)).Inc()
	if d > 0 {
		pollDuration.WithLabelValues(source).Observe(d.Seconds())
	}
}

func attemptResult(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, sources.ErrTimeout):
		return ResultTimeout
	default:
		return ResultError
	}
}

// ObserveCycle records a finished cycle and the sources it had to skip.
func ObserveCycle(d time.Duration, missed []string) {
	cycleDuration.Observe(d.Seconds())
	for _, id := range missed {
		cycleMissed.WithLabelValues(id).Inc()
	}
}

// IncDeviceWriteFailure counts a failed indicator write.
func IncDeviceWriteFailure() {
	deviceWriteFailures.Inc()
}

// IncDeviceReattach counts a hotplug reopen.
func IncDeviceReattach() {
	deviceReattaches.Inc()
}

// IncChartReload counts a chart reload; ok is false for rejected charts.
func IncChartReload(ok bool) {
	result := ResultOK
	if !ok {
		result = ResultError
	}
	chartReloads.WithLabelValues(result).Inc()
}
