package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
[logging]
level = "debug"

[storage]
sqlite_path = "data/test.db"

[airports]
airports_db_path = "airports.csv"
codes = ["LEXX"]

[fusion]
confidence_path = "confidence.json"
approval_threshold = 0.8

[[feeds]]
name = "feedA"
url = "http://localhost/aircraft.json"
list_key = "ac"
altitude_feet = true

[feeds.fields]
registration = "r"

[feeds.auth]
type = "api_key"
header = "X-API-Key"
key = "secret"

[sequencer]
enabled = true

[[sequencer.jobs]]
name = "tracker"
cycle_seconds = 30

[[sequencer.jobs]]
name = "zone"
cycle_seconds = 180
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", sampleConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Unexpected validation error: %v", err)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("Expected debug console logging, got %+v", cfg.Logging)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.BusyBackoffSecs != 5 {
		t.Errorf("Expected sqlite defaults, got %+v", cfg.Storage)
	}
	if cfg.Tracker.InactivitySecs != 300 || cfg.Tracker.DeletionSecs != 600 || cfg.Tracker.FlightSeparationMins != 15 {
		t.Errorf("Expected tracker defaults, got %+v", cfg.Tracker)
	}
	if cfg.Zone.MinBase != 0.5 || cfg.Zone.Weight != 0.8 || cfg.Zone.Threshold != 0.75 || cfg.Zone.Source != "airTracker" {
		t.Errorf("Expected zone defaults, got %+v", cfg.Zone)
	}
	if cfg.Fusion.ApprovalThreshold != 0.8 {
		t.Errorf("Expected configured approval threshold kept, got %v", cfg.Fusion.ApprovalThreshold)
	}
	if cfg.Fusion.IdentityPenalty != 1.5 || cfg.Fusion.ReservationWindowHours != 3 || cfg.Fusion.TelemetryWindowMinutes != 20 {
		t.Errorf("Expected fusion defaults, got %+v", cfg.Fusion)
	}

	if len(cfg.Feeds) != 1 {
		t.Fatalf("Expected 1 feed, got %d", len(cfg.Feeds))
	}
	feed := cfg.Feeds[0]
	if feed.Fields.Registration != "r" || feed.Fields.Latitude != "latitude" {
		t.Errorf("Expected field names merged with defaults, got %+v", feed.Fields)
	}
	if !feed.AltitudeFeet || feed.Auth.Header != "X-API-Key" || feed.IntervalSecs != 10 {
		t.Errorf("Unexpected feed config: %+v", feed)
	}
	if len(cfg.Sequencer.Jobs) != 2 || cfg.Sequencer.Jobs[1].Name != "zone" {
		t.Errorf("Expected 2 sequenced jobs, got %+v", cfg.Sequencer.Jobs)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
}

func TestValidateRejects(t *testing.T) {
	base := func() *Config {
		return &Config{
			Airports: AirportsConfig{CSVPath: "airports.csv"},
			Fusion:   FusionConfig{ConfidencePath: "confidence.json"},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"Bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"Unknown driver", func(c *Config) { c.Storage.Driver = "oracle" }},
		{"Postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"No airport source", func(c *Config) { c.Airports.CSVPath = "" }},
		{"No confidence table", func(c *Config) { c.Fusion.ConfidencePath = "" }},
		{"Threshold out of range", func(c *Config) { c.Zone.Threshold = 1.5 }},
		{"Feed without url", func(c *Config) { c.Feeds = []FeedConfig{{Name: "a"}} }},
		{"Duplicate feed", func(c *Config) {
			c.Feeds = []FeedConfig{{Name: "a", URL: "http://x"}, {Name: "a", URL: "http://y"}}
		}},
		{"Bearer without token", func(c *Config) {
			c.Feeds = []FeedConfig{{Name: "a", URL: "http://x", Auth: AuthConfig{Type: "bearer"}}}
		}},
		{"Reservations without url", func(c *Config) { c.Reservations.Enabled = true }},
		{"Telemetry without token url", func(c *Config) {
			c.Telemetry = TelemetryConfig{Enabled: true, URL: "http://x", Username: "u"}
		}},
		{"Delivery without credentials", func(c *Config) {
			c.Delivery = DeliveryConfig{Enabled: true, URL: "http://x"}
		}},
		{"Bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"Unknown job", func(c *Config) { c.Sequencer.Jobs = []JobConfig{{Name: "weather", CycleSecs: 10}} }},
		{"Job without cycle", func(c *Config) { c.Sequencer.Jobs = []JobConfig{{Name: "fusion"}} }},
		{"Empty sequencer", func(c *Config) { c.Sequencer.Enabled = true }},
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("Expected base config to be valid, got %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoadWithFallback(t *testing.T) {
	if _, err := LoadWithFallback(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Expected error when no config exists")
	}

	path := writeFile(t, t.TempDir(), "config.toml", sampleConfig)
	cfg, err := LoadWithFallback(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Airports.CSVPath != "airports.csv" {
		t.Errorf("Expected airports path from file, got %q", cfg.Airports.CSVPath)
	}
}

func TestLoadAirportsCSV(t *testing.T) {
	csv := `"id","ident","type","name","latitude_deg","longitude_deg","elevation_ft"
1,"LEXX","small_airport","Test Field",40.03,-2.85,2000
2,"LEFF","small_airport","Other Field",41.5,-1.0,
3,"LEBAD","closed","Broken","","",
4,"LEZZ","small_airport","Far Field",45.0,-3.0,100
`
	path := writeFile(t, t.TempDir(), "airports.csv", csv)

	all, err := LoadAirportsCSV(path, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 airports with coordinates, got %+v", all)
	}
	if all[0].Name != "LEXX" || all[0].Lat != 40.03 || all[0].Lon != -2.85 {
		t.Errorf("Unexpected first airport: %+v", all[0])
	}

	some, err := LoadAirportsCSV(path, []string{"lexx", "LEFF"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(some) != 2 {
		t.Errorf("Expected filter to keep 2 airports, got %+v", some)
	}

	if _, err := LoadAirportsCSV(path, []string{"NOPE"}); err == nil {
		t.Error("Expected error when no airport is left")
	}
	if _, err := LoadAirportsCSV(filepath.Join(t.TempDir(), "missing.csv"), nil); err == nil {
		t.Error("Expected error for a missing file")
	}
}

func TestDurationHelpers(t *testing.T) {
	if Seconds(90) != 90*time.Second {
		t.Errorf("Expected 90s, got %v", Seconds(90))
	}
	if Minutes(1.5) != 90*time.Second {
		t.Errorf("Expected 90s, got %v", Minutes(1.5))
	}
	if Hours(3) != 3*time.Hour {
		t.Errorf("Expected 3h, got %v", Hours(3))
	}
}
