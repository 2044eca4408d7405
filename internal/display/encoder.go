package display

// Encoder maps states to indicator commands using a validated chart.
// It holds no mutable state and is safe for concurrent use.
type Encoder struct {
	chart Chart
}

// NewEncoder validates chart and returns an encoder over a private copy of it.
func NewEncoder(chart Chart) (*Encoder, error) {
	if err := chart.Validate(); err != nil {
		return nil, err
	}
	return &Encoder{chart: chart.Clone()}, nil
}

// Encode returns the command for s. Every valid state has a mapping;
// an out-of-range state is treated as the most severe one.
func (e *Encoder) Encode(s State) Command {
	if cmd, ok := e.chart[s]; ok {
		return cmd
	}
	return e.chart[StateStationCritical]
}

// Chart returns a copy of the encoder's chart.
func (e *Encoder) Chart() Chart {
	return e.chart.Clone()
}
