package spatial

import (
	"context"
	"fmt"
	"time"

	"github.com/yegors/landing-tracker/internal/geometry"
	"github.com/yegors/landing-tracker/internal/landing"
	"github.com/yegors/landing-tracker/internal/physics"
	"github.com/yegors/landing-tracker/pkg/logger"
)

// Store is what the zone stage needs from the shared store
type Store interface {
	WaitWritable(ctx context.Context) error
	Snapshots(ctx context.Context) ([]landing.Snapshot, error)
	DeleteSnapshot(ctx context.Context, registration string) error
	InsertEvidence(ctx context.Context, e landing.Evidence) (int64, error)
}

// Stage turns vanished aircraft into airport evidence
type Stage struct {
	store   Store
	matcher *Matcher
	source  string
	logger  *logger.Logger
}

// NewStage creates the zone stage; source labels the evidence it writes
func NewStage(store Store, matcher *Matcher, source string, log *logger.Logger) *Stage {
	return &Stage{
		store:   store,
		matcher: matcher,
		source:  source,
		logger:  log.Named("zone"),
	}
}

// Name identifies the stage
func (s *Stage) Name() string { return "zone" }

// RunCycle consumes every pending snapshot
func (s *Stage) RunCycle(ctx context.Context) error {
	snapshots, err := s.store.Snapshots(ctx)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		return nil
	}

	if err := s.store.WaitWritable(ctx); err != nil {
		return err
	}

	var written int
	for _, snap := range snapshots {
		n, err := s.process(ctx, snap)
		if err != nil {
			s.logger.Error("Failed to process snapshot",
				logger.String("registration", snap.Registration),
				logger.Error(err))
			continue
		}
		written += n
	}

	s.logger.Info("Processed snapshots",
		logger.Int("snapshots", len(snapshots)),
		logger.Int("evidence", written))
	return nil
}

func (s *Stage) process(ctx context.Context, snap landing.Snapshot) (int, error) {
	if !validSnapshot(snap) {
		s.logger.Warn("Dropping malformed snapshot",
			logger.String("registration", snap.Registration),
			logger.Float64("lat", snap.Lat),
			logger.Float64("lon", snap.Lon))
		return 0, s.store.DeleteSnapshot(ctx, snap.Registration)
	}

	zone := geometry.NewZone(geometry.Kinematics{
		Lat:      snap.Lat,
		Lon:      snap.Lon,
		Altitude: snap.Altitude,
		Velocity: snap.Velocity,
		Heading:  snap.Heading,
	})

	candidates := s.matcher.Match(zone.Ring)
	s.logger.Debug("Matched landing zone",
		logger.String("registration", snap.Registration),
		logger.Float64("big_radius_km", zone.BigRadiusKm),
		logger.Float64("sector_deg", zone.SectorDeg),
		logger.Int("candidates", len(candidates)))

	contact := snap.ContactTime
	if contact <= 0 {
		contact = time.Now().Unix()
	}

	for _, c := range candidates {
		_, err := s.store.InsertEvidence(ctx, landing.Evidence{
			Airport:      c.Airport.Name,
			Registration: snap.Registration,
			Probability:  c.Probability,
			Primary:      s.source,
			Secondary:    landing.SourceDefault,
			Timestamp:    contact,
			Position:     &landing.Position{Lat: snap.Lat, Lon: snap.Lon},
		})
		if err != nil {
			return 0, fmt.Errorf("failed to write evidence for %s: %w", c.Airport.Name, err)
		}
	}

	return len(candidates), s.store.DeleteSnapshot(ctx, snap.Registration)
}

func validSnapshot(snap landing.Snapshot) bool {
	return physics.Finite(snap.Altitude, snap.Velocity, snap.Heading) && physics.ValidCoordinate(snap.Lat, snap.Lon)
}
