package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/smazurov/lwalight/internal/config"
	"github.com/smazurov/lwalight/internal/status"
)

// opScreenEntry is one row of an OpScreen status.json document.
type opScreenEntry struct {
	Subsystem string `json:"subsystem"`
	Setting   string `json:"setting"`
	Value     any    `json:"value"`
}

func (e opScreenEntry) value() string {
	if s, ok := e.Value.(string); ok {
		return strings.TrimSpace(s)
	}
	return fmt.Sprint(e.Value)
}

// Recorder operation names as shown to operators.
const (
	OpIdle         = "Idle"
	OpSpectrometer = "Spectrometer"
	OpRecording    = "Recording"
)

// opScreen reads the station summary or the data recorder activity from an
// OpScreen status page.
type opScreen struct {
	id        string
	url       string
	field     string
	recorder  string
	recorders int
	docs      *Documents
}

func newOpScreen(cfg config.SourceConfig, deps Deps) (*opScreen, error) {
	recorder := strings.ToUpper(strings.TrimSpace(cfg.Recorder))
	if recorder != "" && !strings.HasPrefix(recorder, "DR") {
		return nil, fmt.Errorf("source %s: recorder must look like DR1, got %q", cfg.ID, cfg.Recorder)
	}
	return &opScreen{
		id:        cfg.ID,
		url:       cfg.URL,
		field:     cfg.Field,
		recorder:  recorder,
		recorders: cfg.Recorders,
		docs:      deps.Documents,
	}, nil
}

func (s *opScreen) ID() string { return s.id }

func (s *opScreen) Fetch(ctx context.Context) (Observation, error) {
	data, err := s.docs.Get(ctx, s.url)
	if err != nil {
		return Observation{}, err
	}

	var entries []opScreenEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return Observation{}, unavailable("malformed status document: %v", err)
	}

	if s.field == "recorders" {
		return s.recorderActivity(entries)
	}
	return stationSummary(entries)
}

// stationSummary reduces the SUMMARY rows: any ERROR is critical, any
// WARNING or SHUTDWN is a warning, otherwise the station is nominal.
func stationSummary(entries []opScreenEntry) (Observation, error) {
	var (
		found    bool
		errored  []string
		degraded []string
	)
	for _, e := range entries {
		if e.Setting != "SUMMARY" {
			continue
		}
		found = true
		switch e.value() {
		case "ERROR":
			errored = append(errored, e.Subsystem)
		case "WARNING", "SHUTDWN":
			degraded = append(degraded, e.Subsystem)
		}
	}
	if !found {
		return Observation{}, unavailable("status document has no SUMMARY entries")
	}

	switch {
	case len(errored) > 0:
		return Observation{
			Value:  status.ValueCritical,
			Detail: "One or more subsystems in error: " + strings.Join(errored, ", "),
		}, nil
	case len(degraded) > 0:
		return Observation{
			Value:  status.ValueWarning,
			Detail: "No errors conditions but not all subsystems are normal: " + strings.Join(degraded, ", "),
		}, nil
	default:
		return Observation{Value: status.ValueNominal, Detail: "All subsystems are normal"}, nil
	}
}

func (s *opScreen) recorderActivity(entries []opScreenEntry) (Observation, error) {
	ops := make(map[int]string)
	for n := 1; n <= s.recorders; n++ {
		ops[n] = OpIdle
	}
	for _, e := range entries {
		if e.Setting != "OP_TYPE" || !strings.HasPrefix(e.Subsystem, "DR") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Subsystem, "DR"))
		if err != nil || n < 1 {
			continue
		}
		switch e.value() {
		case "Record":
			ops[n] = OpRecording
		case "Spectrometr":
			ops[n] = OpSpectrometer
		default:
			ops[n] = OpIdle
		}
	}

	if s.recorder != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(s.recorder, "DR"))
		if err != nil {
			return Observation{}, unavailable("bad recorder name %q", s.recorder)
		}
		op, ok := ops[n]
		if !ok {
			return Observation{}, unavailable("%s not present in status document", s.recorder)
		}
		return Observation{Value: opValue(op), Detail: s.recorder + " " + op}, nil
	}

	if len(ops) == 0 {
		return Observation{}, unavailable("status document has no recorder entries")
	}

	numbers := make([]int, 0, len(ops))
	for n := range ops {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	value := status.ValueInactive
	parts := make([]string, 0, len(numbers))
	for _, n := range numbers {
		if opValue(ops[n]) == status.ValueActive {
			value = status.ValueActive
		}
		parts = append(parts, fmt.Sprintf("DR%d %s", n, ops[n]))
	}
	return Observation{Value: value, Detail: strings.Join(parts, ", ")}, nil
}

func opValue(op string) status.Value {
	if op == OpIdle {
		return status.ValueInactive
	}
	return status.ValueActive
}
