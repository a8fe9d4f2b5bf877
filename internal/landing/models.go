package landing

import (
	"strings"
	"time"
)

// Source labels used as primary sources in the confidence table
const (
	SourceReservation = "PPR"
	SourceTelemetry   = "AFTN"
	SourceDefault     = "default"
)

// NormalizeRegistration upper-cases a registration and drops separators, so
// "f-gabc " and "FGABC" name the same aircraft
func NormalizeRegistration(reg string) string {
	reg = strings.ToUpper(strings.TrimSpace(reg))
	return strings.NewReplacer("-", "", " ", "").Replace(reg)
}

// NormalizeAirport upper-cases and trims an airport code
func NormalizeAirport(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Position is a latitude/longitude pair in decimal degrees
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Observation is one feed's report of one aircraft at one instant
type Observation struct {
	Registration   string  `json:"registration"`
	Source         string  `json:"source"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	Altitude       float64 `json:"altitude_m"`
	Velocity       float64 `json:"velocity_ms"`
	Heading        float64 `json:"heading_deg"`
	Timestamp      int64   `json:"timestamp"`
	Visible        bool    `json:"visible"`
	InvisibleSince int64   `json:"invisible_since,omitempty"`
}

// Snapshot is the last known observation of an aircraft that no source reports anymore
type Snapshot struct {
	Registration string  `json:"registration"`
	Source       string  `json:"source"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	Altitude     float64 `json:"altitude_m"`
	Velocity     float64 `json:"velocity_ms"`
	Heading      float64 `json:"heading_deg"`
	ContactTime  int64   `json:"contact_time"`
	CreatedAt    int64   `json:"created_at"`
}

// Evidence is a single source's claim that an aircraft landed at an airport
type Evidence struct {
	ID           int64     `json:"id"`
	Airport      string    `json:"airport"`
	Registration string    `json:"registration"`
	Probability  float64   `json:"probability"`
	Primary      string    `json:"primary_source"`
	Secondary    string    `json:"secondary_source"`
	Timestamp    int64     `json:"timestamp"`
	Position     *Position `json:"position,omitempty"`
}

// Record is an accepted landing
type Record struct {
	ID           int64   `json:"id"`
	Airport      string  `json:"airport"`
	Registration string  `json:"registration"`
	Time         int64   `json:"time"`
	Probability  float64 `json:"probability"`
	Sent         bool    `json:"sent"`
}

// EventTime returns the landing time as a time.Time
func (r Record) EventTime() time.Time {
	return time.Unix(r.Time, 0).UTC()
}

// Airport is a known airport with coordinates
type Airport struct {
	Name string  `json:"name"`
	Lat  float64 `json:"latitude"`
	Lon  float64 `json:"longitude"`
}

// Position returns the airport coordinates
func (a Airport) Position() Position {
	return Position{Lat: a.Lat, Lon: a.Lon}
}

// Airports indexes known airports by name
type Airports map[string]Airport

// NewAirports builds an index from a list, dropping entries without a name
func NewAirports(list []Airport) Airports {
	index := make(Airports, len(list))
	for _, a := range list {
		if a.Name == "" {
			continue
		}
		index[a.Name] = a
	}
	return index
}

// Known reports whether the airport is in the index
func (a Airports) Known(name string) bool {
	_, ok := a[name]
	return ok
}

// List returns the airports as a slice
func (a Airports) List() []Airport {
	list := make([]Airport, 0, len(a))
	for _, airport := range a {
		list = append(list, airport)
	}
	return list
}

// Telemetry is a movement message confirming an actual arrival
type Telemetry struct {
	ID           int64  `json:"id"`
	MessageID    int64  `json:"message_id"`
	Registration string `json:"registration"`
	Airport      string `json:"airport"`
	Time         int64  `json:"time"`
}
