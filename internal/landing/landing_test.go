package landing

import (
	"os"
	"path/filepath"
	"testing"
)

func testAirports() Airports {
	return NewAirports([]Airport{
		{Name: "LEXX", Lat: 40.03, Lon: -2.85},
		{Name: "LEYY", Lat: 41.0, Lon: -1.0},
	})
}

// A reservation is usable only when a known airport comes with its own timestamp.
// "departingTo known OR (airport known AND timestamp)" must not be how it is read.
func TestReservationValidity(t *testing.T) {
	known := testAirports()

	tests := []struct {
		name     string
		res      Reservation
		expected bool
	}{
		{
			name:     "Arrival at known airport",
			res:      Reservation{Registration: "N123AB", Airport: "LEXX", Arrival: 1000},
			expected: true,
		},
		{
			name:     "Departure to known airport",
			res:      Reservation{Registration: "N123AB", Airport: "ZZZZ", DepartingTo: "LEYY", Departure: 1000},
			expected: true,
		},
		{
			name:     "Known destination without departure time",
			res:      Reservation{Registration: "N123AB", Airport: "ZZZZ", DepartingTo: "LEYY", Arrival: 1000},
			expected: false,
		},
		{
			name:     "Known airport without any time",
			res:      Reservation{Registration: "N123AB", Airport: "LEXX", DepartingTo: "LEYY"},
			expected: false,
		},
		{
			name:     "Unknown airports with times",
			res:      Reservation{Registration: "N123AB", Airport: "ZZZZ", DepartingTo: "YYYY", Arrival: 1000, Departure: 900},
			expected: false,
		},
		{
			name:     "Missing registration",
			res:      Reservation{Airport: "LEXX", Arrival: 1000},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.Valid(known); got != tt.expected {
				t.Errorf("Expected valid=%v, got %v", tt.expected, got)
			}
		})
	}
}

func TestReservationSidesWindows(t *testing.T) {
	res := Reservation{Registration: "N123AB", Airport: "LEXX", DepartingTo: "LEYY", Arrival: 20000, Departure: 10000}
	sides := res.Sides(testAirports(), 10800)

	if len(sides) != 2 {
		t.Fatalf("Expected 2 sides, got %d", len(sides))
	}
	if sides[0].Airport != "LEXX" || sides[0].From != 20000-5400 || sides[0].To != 20000+5400 {
		t.Errorf("Unexpected arrival side: %+v", sides[0])
	}
	if sides[1].Airport != "LEYY" || sides[1].From != 10000 || sides[1].To != 10000+10800 {
		t.Errorf("Unexpected departure side: %+v", sides[1])
	}
}

func TestConfidenceWeight(t *testing.T) {
	table := ConfidenceTable{
		"airTracker": {"default": 80, "PPR": 95},
		"PPR":        {"default": 90},
	}

	tests := []struct {
		name      string
		primary   string
		secondary string
		weight    int
		ok        bool
	}{
		{"Exact match", "airTracker", "PPR", 95, true},
		{"Default fallback", "airTracker", "AFTN", 80, true},
		{"Default requested", "PPR", "default", 90, true},
		{"Unknown primary", "radar", "default", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, ok := table.Weight(tt.primary, tt.secondary)
			if w != tt.weight || ok != tt.ok {
				t.Errorf("Expected (%d, %v), got (%d, %v)", tt.weight, tt.ok, w, ok)
			}
		})
	}
}

func TestLoadConfidenceTable(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	if err := os.WriteFile(good, []byte(`{"airTracker":{"default":80},"AFTN":{"default":100}}`), 0644); err != nil {
		t.Fatal(err)
	}
	table, err := LoadConfidenceTable(good)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if w, _ := table.Weight("AFTN", "x"); w != 100 {
		t.Errorf("Expected AFTN weight 100, got %d", w)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"airTracker":{"default":180}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfidenceTable(bad); err == nil {
		t.Error("Expected error for out of range weight")
	}

	if _, err := LoadConfidenceTable(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestNormalizeRegistration(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"N123AB", "N123AB"},
		{" f-gabc ", "FGABC"},
		{"EC-M 12", "ECM12"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeRegistration(tt.in); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}

	if got := NormalizeAirport(" lexx"); got != "LEXX" {
		t.Errorf("Expected LEXX, got %q", got)
	}
}
