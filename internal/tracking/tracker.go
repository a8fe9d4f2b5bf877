package tracking

import (
	"context"
	"time"

	"github.com/yegors/landing-tracker/internal/landing"
	"github.com/yegors/landing-tracker/pkg/logger"
)

// Config holds the visibility windows
type Config struct {
	Inactivity       time.Duration // visible -> invisible after this long without a report
	Deletion         time.Duration // invisible rows are purged after this long
	FlightSeparation time.Duration // snapshots of one registration closer than this are the same flight
	GroundedSpeed    float64       // m/s; below this on every source the aircraft is on the ground
	History          time.Duration // how long disappearances are remembered
}

// Store is what the tracker needs from the shared store
type Store interface {
	WaitWritable(ctx context.Context) error
	Observations(ctx context.Context) ([]landing.Observation, error)
	MarkInvisible(ctx context.Context, staleBefore, now int64) (int64, error)
	DeleteInvisibleObservations(ctx context.Context, registration string) (int64, error)
	PurgeInvisible(ctx context.Context, before int64) (int64, error)
	HasDisappearance(ctx context.Context, registration string, from, to int64) (bool, error)
	SaveSnapshot(ctx context.Context, snap landing.Snapshot) error
	PruneDisappearances(ctx context.Context, before int64) (int64, error)
}

// Tracker decides when an aircraft has vanished from every feed
type Tracker struct {
	cfg    Config
	store  Store
	logger *logger.Logger
	now    func() time.Time

	// registration -> latest report above the grounded floor
	airborne map[string]int64
}

// CycleStats summarizes one tracker cycle
type CycleStats struct {
	MarkedInvisible int64
	Discarded       int64
	Snapshots       int
	Suppressed      int
	Purged          int64
}

// NewTracker creates a visibility tracker
func NewTracker(cfg Config, store Store, log *logger.Logger) *Tracker {
	return &Tracker{
		cfg:    cfg,
		store:  store,
		logger:   log.Named("tracker"),
		now:      time.Now,
		airborne: make(map[string]int64),
	}
}

// Name identifies the tracker
func (t *Tracker) Name() string { return "tracker" }

// RunCycle runs one pass at the current time
func (t *Tracker) RunCycle(ctx context.Context) error {
	stats, err := t.Step(ctx, t.now().Unix())
	if err != nil {
		return err
	}
	if stats.Snapshots > 0 || stats.Purged > 0 || stats.MarkedInvisible > 0 {
		t.logger.Info("Visibility cycle",
			logger.Int64("marked_invisible", stats.MarkedInvisible),
			logger.Int64("discarded", stats.Discarded),
			logger.Int("snapshots", stats.Snapshots),
			logger.Int("suppressed", stats.Suppressed),
			logger.Int64("purged", stats.Purged))
	}
	return nil
}

// Step runs one pass as of now (unix seconds). Every step is safe to repeat.
func (t *Tracker) Step(ctx context.Context, now int64) (CycleStats, error) {
	var stats CycleStats

	if err := t.store.WaitWritable(ctx); err != nil {
		return stats, err
	}

	// Visible -> Invisible
	marked, err := t.store.MarkInvisible(ctx, now-seconds(t.cfg.Inactivity), now)
	if err != nil {
		return stats, err
	}
	stats.MarkedInvisible = marked

	observations, err := t.store.Observations(ctx)
	if err != nil {
		return stats, err
	}

	for _, group := range groupByRegistration(observations) {
		if err := t.aggregate(ctx, group, now, &stats); err != nil {
			// One aircraft never aborts the cycle
			t.logger.Error("Failed to aggregate aircraft",
				logger.String("registration", group[0].Registration),
				logger.Error(err))
		}
	}

	purged, err := t.store.PurgeInvisible(ctx, now-seconds(t.cfg.Deletion))
	if err != nil {
		return stats, err
	}
	stats.Purged = purged

	if _, err := t.store.PruneDisappearances(ctx, now-seconds(t.cfg.History)); err != nil {
		return stats, err
	}
	for reg, last := range t.airborne {
		if last < now-seconds(t.cfg.History) {
			delete(t.airborne, reg)
		}
	}

	return stats, nil
}

func (t *Tracker) aggregate(ctx context.Context, group []landing.Observation, now int64, stats *CycleStats) error {
	registration := group[0].Registration

	grounded := t.grounded(group)
	anyVisible := false
	for _, o := range group {
		if o.Visible {
			anyVisible = true
			break
		}
	}

	if !grounded {
		t.airborne[registration] = max(t.airborne[registration], mostRecent(group).Timestamp)
	}

	if anyVisible && !grounded {
		// Still tracked by someone
		n, err := t.store.DeleteInvisibleObservations(ctx, registration)
		stats.Discarded += n
		return err
	}

	latest := mostRecent(group)
	contact := latest.Timestamp
	if contact <= 0 {
		contact = now
	}

	separation := seconds(t.cfg.FlightSeparation)
	from := contact - separation
	if grounded && anyVisible {
		// A parked aircraft that keeps reporting is the same flight until it moves again
		from = contact - seconds(t.cfg.History)
		if last, ok := t.airborne[registration]; ok && last > from {
			from = last
		}
	}
	seen, err := t.store.HasDisappearance(ctx, registration, from, contact+separation)
	if err != nil {
		return err
	}
	if seen {
		stats.Suppressed++
		return nil
	}

	if err := t.store.SaveSnapshot(ctx, landing.Snapshot{
		Registration: registration,
		Source:       latest.Source,
		Lat:          latest.Lat,
		Lon:          latest.Lon,
		Altitude:     latest.Altitude,
		Velocity:     latest.Velocity,
		Heading:      latest.Heading,
		ContactTime:  contact,
		CreatedAt:    now,
	}); err != nil {
		return err
	}
	stats.Snapshots++

	t.logger.Info("Aircraft vanished",
		logger.String("registration", registration),
		logger.String("source", latest.Source),
		logger.Int64("contact_time", contact),
		logger.Bool("grounded", grounded))

	return nil
}

// grounded reports whether every source's latest speed is below the floor
func (t *Tracker) grounded(group []landing.Observation) bool {
	if t.cfg.GroundedSpeed <= 0 {
		return false
	}
	for _, o := range group {
		if o.Velocity >= t.cfg.GroundedSpeed {
			return false
		}
	}
	return true
}

// groupByRegistration splits observations ordered by registration into groups
func groupByRegistration(observations []landing.Observation) [][]landing.Observation {
	var groups [][]landing.Observation
	for i := 0; i < len(observations); {
		j := i + 1
		for j < len(observations) && observations[j].Registration == observations[i].Registration {
			j++
		}
		groups = append(groups, observations[i:j])
		i = j
	}
	return groups
}

func mostRecent(group []landing.Observation) landing.Observation {
	latest := group[0]
	for _, o := range group[1:] {
		if o.Timestamp > latest.Timestamp {
			latest = o
		}
	}
	return latest
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
