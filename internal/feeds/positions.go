package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yegors/landing-tracker/internal/config"
	"github.com/yegors/landing-tracker/internal/landing"
	"github.com/yegors/landing-tracker/internal/physics"
	"github.com/yegors/landing-tracker/pkg/logger"
)

// PositionStore is what a position poller writes to
type PositionStore interface {
	WaitWritable(ctx context.Context) error
	UpsertObservation(ctx context.Context, o landing.Observation) error
}

// PositionPoller reads one position feed into the observation table
type PositionPoller struct {
	cfg    config.FeedConfig
	client *Client
	store  PositionStore
	logger *logger.Logger
	now    func() time.Time
}

// NewPositionPoller creates a poller for one feed
func NewPositionPoller(cfg config.FeedConfig, store PositionStore, log *logger.Logger) *PositionPoller {
	pollerLogger := log.Named("feed").With(logger.String("feed", cfg.Name))
	return &PositionPoller{
		cfg:    cfg,
		client: NewClient(config.Seconds(cfg.TimeoutSecs), cfg.RequestsPerSecond, cfg.Auth, pollerLogger),
		store:  store,
		logger: pollerLogger,
		now:    time.Now,
	}
}

// Name identifies the poller
func (p *PositionPoller) Name() string { return "feed:" + p.cfg.Name }

// RunCycle fetches the feed once and records every usable aircraft
func (p *PositionPoller) RunCycle(ctx context.Context) error {
	observations, skipped, err := p.Fetch(ctx)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		p.logger.Debug("Feed returned no aircraft", logger.Int("skipped", skipped))
		return nil
	}

	if err := p.store.WaitWritable(ctx); err != nil {
		return err
	}

	written := 0
	for _, o := range observations {
		if err := p.store.UpsertObservation(ctx, o); err != nil {
			p.logger.Error("Failed to store observation",
				logger.String("registration", o.Registration),
				logger.Error(err))
			continue
		}
		written++
	}

	p.logger.Debug("Feed polled",
		logger.Int("written", written),
		logger.Int("skipped", skipped))
	return nil
}

// Fetch reads the feed and maps each row to an observation. Rows missing a
// registration, position, altitude, velocity or heading are skipped.
func (p *PositionPoller) Fetch(ctx context.Context) ([]landing.Observation, int, error) {
	var body any
	if err := p.client.GetJSON(ctx, p.cfg.URL, nil, &body); err != nil {
		return nil, 0, fmt.Errorf("failed to fetch feed %s: %w", p.cfg.Name, err)
	}

	rows, err := p.list(body)
	if err != nil {
		return nil, 0, err
	}

	now := p.now().Unix()
	skipped := 0
	observations := make([]landing.Observation, 0, len(rows))
	for _, row := range rows {
		o, ok := p.observation(row, now)
		if !ok {
			skipped++
			continue
		}
		observations = append(observations, o)
	}
	return observations, skipped, nil
}

func (p *PositionPoller) list(body any) ([]any, error) {
	if body == nil {
		return nil, nil
	}
	if p.cfg.ListKey == "" {
		rows, ok := body.([]any)
		if !ok {
			return nil, fmt.Errorf("feed %s: expected a JSON array", p.cfg.Name)
		}
		return rows, nil
	}

	obj, ok := body.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("feed %s: expected a JSON object", p.cfg.Name)
	}
	raw, present := obj[p.cfg.ListKey]
	if !present || raw == nil {
		return nil, nil
	}
	rows, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("feed %s: %q is not a list", p.cfg.Name, p.cfg.ListKey)
	}
	return rows, nil
}

func (p *PositionPoller) observation(row any, now int64) (landing.Observation, bool) {
	m, ok := row.(map[string]any)
	if !ok {
		return landing.Observation{}, false
	}
	f := p.cfg.Fields

	reg, _ := m[f.Registration].(string)
	reg = landing.NormalizeRegistration(reg)
	if reg == "" {
		return landing.Observation{}, false
	}

	lat, ok1 := number(m[f.Latitude])
	lon, ok2 := number(m[f.Longitude])
	alt, ok3 := number(m[f.Altitude])
	vel, ok4 := number(m[f.Velocity])
	hdg, ok5 := number(m[f.Heading])
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return landing.Observation{}, false
	}
	if !physics.ValidCoordinate(lat, lon) || !physics.Finite(alt, vel, hdg) {
		return landing.Observation{}, false
	}

	ts, ok := timestamp(m[f.Timestamp])
	if !ok {
		ts = now
	}

	return landing.Observation{
		Registration: reg,
		Source:       p.cfg.Name,
		Lat:          lat,
		Lon:          lon,
		Altitude:     physics.AltitudeMeters(alt, p.cfg.AltitudeFeet),
		Velocity:     physics.SpeedMs(vel, p.cfg.VelocityKnots),
		Heading:      hdg,
		Timestamp:    ts,
		Visible:      true,
	}, true
}

// number accepts JSON numbers and numeric strings
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// timestamp accepts unix seconds, unix milliseconds or RFC3339
func timestamp(v any) (int64, bool) {
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(s)); err == nil {
			return t.Unix(), true
		}
	}
	f, ok := number(v)
	if !ok || f <= 0 {
		return 0, false
	}
	if f > 1e12 {
		f /= 1000
	}
	return int64(f), true
}
