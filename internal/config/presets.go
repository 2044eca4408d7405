package config

import (
	"fmt"
	"sort"
	"time"
)

// statusHost serves the OpScreen pages and the lwatv images.
const statusHost = "http://lwalab.phys.unm.edu"

// Station is a known observatory station.
type Station struct {
	Name      string
	Channel   string // lwatv channel carrying the live sky image
	Recorders int    // number of data recorders (DR1..DRn)
}

var stations = map[string]Station{
	"lwa1":  {Name: "lwa1", Channel: "lwatv", Recorders: 5},
	"lwasv": {Name: "lwasv", Channel: "lwatv2", Recorders: 4},
	"lwana": {Name: "lwana", Channel: "lwatv4", Recorders: 4},
}

// StationPreset returns the station called name.
func StationPreset(name string) (Station, bool) {
	s, ok := stations[name]
	return s, ok
}

// StationNames returns the known station names in sorted order.
func StationNames() []string {
	names := make([]string, 0, len(stations))
	for name := range stations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StatusURL is the station's OpScreen status document.
func (s Station) StatusURL() string {
	return fmt.Sprintf("%s/OpScreen/%s/status.json", statusHost, s.Name)
}

// ImageURL is the station's periodically refreshed sky image.
func (s Station) ImageURL() string {
	return fmt.Sprintf("%s/%s/lwatv.png", statusHost, s.Channel)
}

// Sources returns the station summary, recorder and camera sources.
// The OpScreen page is fetched at most every three minutes.
func (s Station) Sources() []SourceConfig {
	pollInterval := Duration(180 * time.Second)
	return []SourceConfig{
		{
			ID:       s.Name + "-summary",
			Role:     "station",
			Kind:     KindOpScreen,
			URL:      s.StatusURL(),
			Field:    "summary",
			Interval: pollInterval,
		},
		{
			ID:        s.Name + "-recorders",
			Role:      "recorder",
			Kind:      KindOpScreen,
			URL:       s.StatusURL(),
			Field:     "recorders",
			Recorders: s.Recorders,
			Interval:  pollInterval,
		},
		{
			ID:       s.Name + "-lasi",
			Role:     "camera",
			Kind:     KindImageAge,
			URL:      s.ImageURL(),
			MaxAge:   Duration(120 * time.Second),
			Interval: pollInterval,
		},
	}
}
