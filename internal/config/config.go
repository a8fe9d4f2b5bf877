package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Logging      LoggingConfig      `toml:"logging"`      // Application logging settings
	Storage      StorageConfig      `toml:"storage"`      // Shared store settings
	Airports     AirportsConfig     `toml:"airports"`     // Known airports source
	Tracker      TrackerConfig      `toml:"tracker"`      // Visibility tracker settings
	Zone         ZoneConfig         `toml:"zone"`         // Landing zone matcher settings
	Fusion       FusionConfig       `toml:"fusion"`       // Evidence fusion settings
	Feeds        []FeedConfig       `toml:"feeds"`        // Position feeds, one poller each
	Reservations ReservationsConfig `toml:"reservations"` // Reservation source
	Telemetry    TelemetryConfig    `toml:"telemetry"`    // Movement message source
	Delivery     DeliveryConfig     `toml:"delivery"`     // Landing delivery endpoint
	Server       ServerConfig       `toml:"server"`       // Status API settings
	Sequencer    SequencerConfig    `toml:"sequencer"`    // Sequential job runner settings
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level      string `toml:"level"`        // Log level: "debug", "info", "warn", or "error"
	Format     string `toml:"format"`       // Log format: "json" (structured) or "console" (human-readable)
	File       string `toml:"file"`         // Optional log file, rotated by size
	MaxSizeMB  int    `toml:"max_size_mb"`  // Rotate after this many megabytes
	MaxBackups int    `toml:"max_backups"`  // Rotated files to keep
	MaxAgeDays int    `toml:"max_age_days"` // Days to keep rotated files
	Compress   bool   `toml:"compress"`     // Gzip rotated files
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	Driver          string `toml:"driver"`            // "sqlite" or "postgres"
	SQLitePath      string `toml:"sqlite_path"`       // Database file for sqlite
	PostgresDSN     string `toml:"postgres_dsn"`      // Connection string for postgres
	BusyTimeoutMs   int    `toml:"busy_timeout_ms"`   // Driver-level lock wait for sqlite
	BusyBackoffSecs int    `toml:"busy_backoff_secs"` // Pause between busy probes
}

// AirportsConfig says where the known airports come from. Either a CSV in the
// OurAirports layout or a JSON endpoint.
type AirportsConfig struct {
	CSVPath  string   `toml:"airports_db_path"` // OurAirports CSV file
	Codes    []string `toml:"codes"`            // Optional ident filter applied to the CSV
	URL      string   `toml:"url"`              // JSON endpoint returning {"data": [...]}
	Username string   `toml:"username"`         // Basic auth for the endpoint
	Password string   `toml:"password"`
}

// TrackerConfig contains visibility tracker configuration
type TrackerConfig struct {
	CycleSecs            int     `toml:"cycle_seconds"`             // Tracker period
	InactivitySecs       int     `toml:"inactivity_seconds"`        // Silence before a source is invisible
	DeletionSecs         int     `toml:"deletion_seconds"`          // Invisible rows older than this are purged
	FlightSeparationMins int     `toml:"flight_separation_minutes"` // Disappearances closer than this are one flight
	GroundedSpeedMs      float64 `toml:"grounded_speed_ms"`         // At or below this an aircraft is on the ground
	HistoryHours         int     `toml:"history_hours"`             // Disappearance log retention
}

// ZoneConfig contains landing zone matcher configuration
type ZoneConfig struct {
	CycleSecs int     `toml:"cycle_seconds"` // Zone stage period
	MinBase   float64 `toml:"min_base"`      // Probability floor for any candidate
	Weight    float64 `toml:"weight"`        // Share divided among candidates
	Threshold float64 `toml:"threshold"`     // Candidates at or below this are dropped
	Source    string  `toml:"source"`        // Primary source label on written evidence
}

// FusionConfig contains evidence fusion configuration
type FusionConfig struct {
	CycleSecs                int     `toml:"cycle_seconds"`
	LandingTimeMinutes       float64 `toml:"landing_time_minutes"`       // Temporal similarity scale
	LandingDistanceKm        float64 `toml:"landing_distance_km"`        // Spatial similarity scale
	IdentityPenalty          float64 `toml:"identity_penalty"`           // Registration mismatch penalty
	CorrelationThreshold     float64 `toml:"correlation_threshold"`      // Similarity needed to join a cluster
	ApprovalThreshold        float64 `toml:"approval_threshold"`         // Probability needed to become a landing
	BonusPerItem             float64 `toml:"bonus_per_item"`             // Corroboration bonus per extra member
	ReservationWindowHours   float64 `toml:"reservation_window_hours"`   // Reservation tolerance window
	TelemetryWindowMinutes   float64 `toml:"telemetry_window_minutes"`   // Telemetry tolerance window
	LandingSeparationMinutes float64 `toml:"landing_separation_minutes"` // One landing per aircraft and airport within this
	ConfidencePath           string  `toml:"confidence_path"`            // Confidence table JSON file
}

// AuthConfig describes how a collaborator authenticates
type AuthConfig struct {
	Type     string `toml:"type"`     // "none", "basic", "bearer" or "api_key"
	Username string `toml:"username"` // basic
	Password string `toml:"password"` // basic
	Token    string `toml:"token"`    // bearer
	Header   string `toml:"header"`   // api_key header name
	Key      string `toml:"key"`      // api_key value
}

// FieldMap names the JSON fields of a position feed
type FieldMap struct {
	Registration string `toml:"registration"`
	Latitude     string `toml:"latitude"`
	Longitude    string `toml:"longitude"`
	Altitude     string `toml:"altitude"`
	Velocity     string `toml:"velocity"`
	Heading      string `toml:"heading"`
	Timestamp    string `toml:"timestamp"`
}

// FeedConfig describes one position feed
type FeedConfig struct {
	Name              string     `toml:"name"`                // Source label stored with observations
	URL               string     `toml:"url"`                 // Endpoint returning aircraft positions
	ListKey           string     `toml:"list_key"`            // Key of the aircraft list; empty for a top-level array
	IntervalSecs      int        `toml:"interval_seconds"`    // Poll period
	TimeoutSecs       int        `toml:"timeout_seconds"`     // HTTP timeout
	RequestsPerSecond float64    `toml:"requests_per_second"` // Client-side rate limit
	AltitudeFeet      bool       `toml:"altitude_feet"`       // Altitude reported in feet
	VelocityKnots     bool       `toml:"velocity_knots"`      // Velocity reported in knots
	Fields            FieldMap   `toml:"fields"`
	Auth              AuthConfig `toml:"auth"`
}

// ReservationsConfig describes the reservation source
type ReservationsConfig struct {
	Enabled      bool       `toml:"enabled"`
	URL          string     `toml:"url"`
	Status       string     `toml:"status"`           // Reservation status to request
	MaxAgeHours  int        `toml:"max_age_hours"`    // Look-back for afterTimestamp
	IntervalSecs int        `toml:"interval_seconds"` // Poll period
	TimeoutSecs  int        `toml:"timeout_seconds"`
	CacheSize    int        `toml:"cache_size"` // Seen reservation keys kept in memory
	Auth         AuthConfig `toml:"auth"`
}

// TelemetryConfig describes the movement message source
type TelemetryConfig struct {
	Enabled      bool   `toml:"enabled"`
	URL          string `toml:"url"`       // Message endpoint
	TokenURL     string `toml:"token_url"` // Login endpoint returning {"document": {"access_token": ...}}
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	IntervalSecs int    `toml:"interval_seconds"`
	TimeoutSecs  int    `toml:"timeout_seconds"`
	CacheSize    int    `toml:"cache_size"` // Seen message ids kept in memory
}

// DeliveryConfig describes where confirmed landings are sent
type DeliveryConfig struct {
	Enabled         bool    `toml:"enabled"`
	URL             string  `toml:"url"`
	CredentialsPath string  `toml:"credentials_path"` // JSON map of airport to password
	CreatedBy       string  `toml:"created_by"`       // Author recorded with each landing
	MinProbability  float64 `toml:"min_probability"`  // Landings below this are held back
	IntervalSecs    int     `toml:"interval_seconds"`
	TimeoutSecs     int     `toml:"timeout_seconds"`
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Host               string   `toml:"host"`                  // Host address to bind to
	Port               int      `toml:"port"`                  // HTTP port
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // Origins allowed for CORS requests
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Keep-alive idle timeout
}

// JobConfig is one sequenced component
type JobConfig struct {
	Name      string `toml:"name"`          // Component name
	CycleSecs int    `toml:"cycle_seconds"` // Minimum time between runs
}

// SequencerConfig runs components one at a time instead of concurrently
type SequencerConfig struct {
	Enabled bool        `toml:"enabled"`
	Jobs    []JobConfig `toml:"jobs"`
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback tries the preferred path, then the usual locations
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,
		"configs/config.toml",
		"config.toml",
	}

	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Seconds converts a whole number of seconds from the config
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Minutes converts a possibly fractional number of minutes from the config
func Minutes(n float64) time.Duration {
	return time.Duration(n * float64(time.Minute))
}

// Hours converts a possibly fractional number of hours from the config
func Hours(n float64) time.Duration {
	return time.Duration(n * float64(time.Hour))
}
