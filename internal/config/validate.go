package config

import (
	"fmt"
	"slices"
)

// Components that can be selected on the command line or sequenced
var Components = []string{"tracker", "zone", "fusion", "feeds", "reservations", "telemetry", "delivery", "api"}

// Validate fills defaults and checks the configuration
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if c.Airports.CSVPath == "" && c.Airports.URL == "" {
		return fmt.Errorf("airports_db_path or airports url is required")
	}
	c.defaultTracker()
	if err := c.validateZone(); err != nil {
		return err
	}
	if err := c.validateFusion(); err != nil {
		return err
	}
	if err := c.validateFeeds(); err != nil {
		return err
	}
	if err := c.validateReservations(); err != nil {
		return err
	}
	if err := c.validateTelemetry(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateSequencer()
}

func (c *Config) validateLogging() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Logging.File != "" {
		if c.Logging.MaxSizeMB <= 0 {
			c.Logging.MaxSizeMB = 100
		}
		if c.Logging.MaxBackups <= 0 {
			c.Logging.MaxBackups = 5
		}
		if c.Logging.MaxAgeDays <= 0 {
			c.Logging.MaxAgeDays = 30
		}
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			c.Storage.SQLitePath = "data/landings.db"
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("postgres_dsn is required when driver is postgres")
		}
	default:
		return fmt.Errorf("invalid storage driver: %s (must be 'sqlite' or 'postgres')", c.Storage.Driver)
	}

	if c.Storage.BusyTimeoutMs <= 0 {
		c.Storage.BusyTimeoutMs = 1000
	}
	if c.Storage.BusyBackoffSecs <= 0 {
		c.Storage.BusyBackoffSecs = 5
	}
	return nil
}

func (c *Config) defaultTracker() {
	t := &c.Tracker
	if t.CycleSecs <= 0 {
		t.CycleSecs = 30
	}
	if t.InactivitySecs <= 0 {
		t.InactivitySecs = 300
	}
	if t.DeletionSecs <= 0 {
		t.DeletionSecs = 600
	}
	if t.FlightSeparationMins <= 0 {
		t.FlightSeparationMins = 15
	}
	if t.GroundedSpeedMs <= 0 {
		t.GroundedSpeedMs = 5
	}
	if t.HistoryHours <= 0 {
		t.HistoryHours = 24
	}
}

func (c *Config) validateZone() error {
	z := &c.Zone
	if z.CycleSecs <= 0 {
		z.CycleSecs = 180
	}
	if z.MinBase == 0 {
		z.MinBase = 0.5
	}
	if z.Weight == 0 {
		z.Weight = 0.8
	}
	if z.Threshold == 0 {
		z.Threshold = 0.75
	}
	if z.Source == "" {
		z.Source = "airTracker"
	}

	for name, v := range map[string]float64{"min_base": z.MinBase, "weight": z.Weight, "threshold": z.Threshold} {
		if v < 0 || v > 1 {
			return fmt.Errorf("zone %s must be between 0 and 1: %f", name, v)
		}
	}
	return nil
}

func (c *Config) validateFusion() error {
	f := &c.Fusion
	if f.CycleSecs <= 0 {
		f.CycleSecs = 900
	}
	if f.LandingTimeMinutes <= 0 {
		f.LandingTimeMinutes = 15
	}
	if f.LandingDistanceKm <= 0 {
		f.LandingDistanceKm = 2
	}
	if f.IdentityPenalty <= 0 {
		f.IdentityPenalty = 1.5
	}
	if f.CorrelationThreshold == 0 {
		f.CorrelationThreshold = 0.5
	}
	if f.ApprovalThreshold == 0 {
		f.ApprovalThreshold = 0.75
	}
	if f.BonusPerItem == 0 {
		f.BonusPerItem = 0.05
	}
	if f.ReservationWindowHours <= 0 {
		f.ReservationWindowHours = 3
	}
	if f.TelemetryWindowMinutes <= 0 {
		f.TelemetryWindowMinutes = 20
	}
	if f.LandingSeparationMinutes <= 0 {
		f.LandingSeparationMinutes = 60
	}

	if f.ConfidencePath == "" {
		return fmt.Errorf("fusion confidence_path is required")
	}
	for name, v := range map[string]float64{
		"correlation_threshold": f.CorrelationThreshold,
		"approval_threshold":    f.ApprovalThreshold,
		"bonus_per_item":        f.BonusPerItem,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("fusion %s must be between 0 and 1: %f", name, v)
		}
	}
	return nil
}

func (c *Config) validateFeeds() error {
	names := make(map[string]bool)
	for i := range c.Feeds {
		feed := &c.Feeds[i]
		if feed.Name == "" {
			return fmt.Errorf("feed #%d: name is required", i+1)
		}
		if names[feed.Name] {
			return fmt.Errorf("feed #%d: duplicate name: %s", i+1, feed.Name)
		}
		names[feed.Name] = true

		if feed.URL == "" {
			return fmt.Errorf("feed %s: url is required", feed.Name)
		}
		if feed.IntervalSecs <= 0 {
			feed.IntervalSecs = 10
		}
		if feed.TimeoutSecs <= 0 {
			feed.TimeoutSecs = 10
		}
		if feed.RequestsPerSecond <= 0 {
			feed.RequestsPerSecond = 1
		}
		defaultFields(&feed.Fields)
		if err := validateAuth(feed.Auth); err != nil {
			return fmt.Errorf("feed %s: %w", feed.Name, err)
		}
	}
	return nil
}

func defaultFields(f *FieldMap) {
	if f.Registration == "" {
		f.Registration = "registration"
	}
	if f.Latitude == "" {
		f.Latitude = "latitude"
	}
	if f.Longitude == "" {
		f.Longitude = "longitude"
	}
	if f.Altitude == "" {
		f.Altitude = "altitude"
	}
	if f.Velocity == "" {
		f.Velocity = "velocity"
	}
	if f.Heading == "" {
		f.Heading = "heading"
	}
	if f.Timestamp == "" {
		f.Timestamp = "timestamp"
	}
}

func validateAuth(a AuthConfig) error {
	switch a.Type {
	case "", "none":
	case "basic":
		if a.Username == "" {
			return fmt.Errorf("basic auth requires a username")
		}
	case "bearer":
		if a.Token == "" {
			return fmt.Errorf("bearer auth requires a token")
		}
	case "api_key":
		if a.Header == "" || a.Key == "" {
			return fmt.Errorf("api_key auth requires header and key")
		}
	default:
		return fmt.Errorf("invalid auth type: %s", a.Type)
	}
	return nil
}

func (c *Config) validateReservations() error {
	r := &c.Reservations
	if !r.Enabled {
		return nil
	}
	if r.URL == "" {
		return fmt.Errorf("reservations url is required when enabled")
	}
	if r.Status == "" {
		r.Status = "approved"
	}
	if r.MaxAgeHours <= 0 {
		r.MaxAgeHours = 48
	}
	if r.IntervalSecs <= 0 {
		r.IntervalSecs = 300
	}
	if r.TimeoutSecs <= 0 {
		r.TimeoutSecs = 30
	}
	if r.CacheSize <= 0 {
		r.CacheSize = 4096
	}
	if err := validateAuth(r.Auth); err != nil {
		return fmt.Errorf("reservations: %w", err)
	}
	return nil
}

func (c *Config) validateTelemetry() error {
	t := &c.Telemetry
	if !t.Enabled {
		return nil
	}
	if t.URL == "" || t.TokenURL == "" {
		return fmt.Errorf("telemetry url and token_url are required when enabled")
	}
	if t.Username == "" {
		return fmt.Errorf("telemetry username is required when enabled")
	}
	if t.IntervalSecs <= 0 {
		t.IntervalSecs = 300
	}
	if t.TimeoutSecs <= 0 {
		t.TimeoutSecs = 30
	}
	if t.CacheSize <= 0 {
		t.CacheSize = 4096
	}
	return nil
}

func (c *Config) validateDelivery() error {
	d := &c.Delivery
	if !d.Enabled {
		return nil
	}
	if d.URL == "" {
		return fmt.Errorf("delivery url is required when enabled")
	}
	if d.CredentialsPath == "" {
		return fmt.Errorf("delivery credentials_path is required when enabled")
	}
	if d.CreatedBy == "" {
		d.CreatedBy = "landing-tracker"
	}
	if d.MinProbability < 0 || d.MinProbability > 1 {
		return fmt.Errorf("delivery min_probability must be between 0 and 1: %f", d.MinProbability)
	}
	if d.IntervalSecs <= 0 {
		d.IntervalSecs = 600
	}
	if d.TimeoutSecs <= 0 {
		d.TimeoutSecs = 30
	}
	return nil
}

func (c *Config) validateServer() error {
	s := &c.Server
	if s.Host == "" {
		s.Host = "127.0.0.1"
	}
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", s.Port)
	}
	if s.ReadTimeoutSecs <= 0 {
		s.ReadTimeoutSecs = 15
	}
	if s.IdleTimeoutSecs <= 0 {
		s.IdleTimeoutSecs = 60
	}
	return nil
}

func (c *Config) validateSequencer() error {
	seen := make(map[string]bool)
	for i, job := range c.Sequencer.Jobs {
		if !slices.Contains(Components, job.Name) || job.Name == "api" {
			return fmt.Errorf("sequencer job #%d: unknown component: %s", i+1, job.Name)
		}
		if seen[job.Name] {
			return fmt.Errorf("sequencer job #%d: duplicate component: %s", i+1, job.Name)
		}
		seen[job.Name] = true
		if job.CycleSecs <= 0 {
			return fmt.Errorf("sequencer job %s: cycle_seconds must be positive", job.Name)
		}
	}
	if c.Sequencer.Enabled && len(c.Sequencer.Jobs) == 0 {
		return fmt.Errorf("sequencer is enabled but has no jobs")
	}
	return nil
}
