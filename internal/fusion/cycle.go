package fusion

import (
	"context"
	"time"

	"github.com/yegors/landing-tracker/internal/landing"
	"github.com/yegors/landing-tracker/internal/storage"
	"github.com/yegors/landing-tracker/pkg/logger"
)

// Config holds the fusion thresholds and windows
type Config struct {
	Similarity           SimilarityConfig
	CorrelationThreshold float64       // pairwise similarity needed to join a cluster
	ApprovalThreshold    float64       // cluster probability needed to become a landing
	BonusPerItem         float64       // corroboration bonus per extra cluster member
	ReservationWindow    time.Duration // reservation tolerance window
	TelemetryWindow      time.Duration // telemetry tolerance window
	LandingSeparation    time.Duration // one landing per aircraft and airport within this
}

// Store is what the fusion cycle needs from the shared store
type Store interface {
	WaitWritable(ctx context.Context) error

	EvidenceAirports(ctx context.Context) ([]string, error)
	FindEvidence(ctx context.Context, q storage.EvidenceQuery) ([]landing.Evidence, error)
	InsertEvidence(ctx context.Context, e landing.Evidence) (int64, error)
	DeleteEvidence(ctx context.Context, ids ...int64) error

	FindLandings(ctx context.Context, q storage.LandingQuery) ([]landing.Record, error)
	UpsertLanding(ctx context.Context, r landing.Record, window int64) (landing.Record, storage.UpsertResult, error)
	UpdateLanding(ctx context.Context, id int64, probability float64, eventTime int64) error
	DeleteLandings(ctx context.Context, ids ...int64) error
	RepeatedRegistrations(ctx context.Context) ([]string, error)

	PendingReservations(ctx context.Context) ([]landing.Reservation, error)
	SetReservationPasses(ctx context.Context, id int64, passes int) error
	DeleteReservation(ctx context.Context, id int64) error

	PendingTelemetry(ctx context.Context) ([]landing.Telemetry, error)
	DeleteTelemetry(ctx context.Context, id int64) error
}

// Notifier is told about landings written or raised by a cycle
type Notifier interface {
	LandingRecorded(r landing.Record)
}

// CycleStats summarizes one fusion cycle
type CycleStats struct {
	Clusters     int
	Accepted     int
	Reservations int
	Telemetry    int
	Deduplicated int
}

// Cycle runs one fusion pass over the store
type Cycle struct {
	cfg        Config
	store      Store
	correlator *Correlator
	confidence landing.ConfidenceTable
	airports   landing.Airports
	notifier   Notifier
	logger     *logger.Logger
	now        func() time.Time
}

// NewCycle creates a fusion cycle
func NewCycle(cfg Config, store Store, confidence landing.ConfidenceTable, airports landing.Airports, log *logger.Logger) *Cycle {
	return &Cycle{
		cfg:        cfg,
		store:      store,
		correlator: NewCorrelator(cfg.Similarity, cfg.CorrelationThreshold, cfg.BonusPerItem, confidence),
		confidence: confidence,
		airports:   airports,
		logger:     log.Named("fusion"),
		now:        time.Now,
	}
}

// SetNotifier registers a listener for recorded landings
func (c *Cycle) SetNotifier(n Notifier) {
	c.notifier = n
}

// Name identifies the cycle
func (c *Cycle) Name() string { return "fusion" }

// RunCycle runs one pass at the current time
func (c *Cycle) RunCycle(ctx context.Context) error {
	stats, err := c.Run(ctx, c.now().Unix())
	if err != nil {
		return err
	}
	c.logger.Info("Fusion cycle",
		logger.Int("clusters", stats.Clusters),
		logger.Int("accepted", stats.Accepted),
		logger.Int("reservations", stats.Reservations),
		logger.Int("telemetry", stats.Telemetry),
		logger.Int("deduplicated", stats.Deduplicated))
	return nil
}

// Run executes correlation, reconciliation and deduplication in order as of now.
// A failing pass is logged and the following passes still run.
func (c *Cycle) Run(ctx context.Context, now int64) (CycleStats, error) {
	var stats CycleStats

	if err := c.store.WaitWritable(ctx); err != nil {
		return stats, err
	}

	passes := []struct {
		name string
		run  func(context.Context, int64, *CycleStats) error
	}{
		{"correlation", c.correlate},
		{"reservations", c.reconcileReservations},
		{"reservation evidence", c.verifyReservationEvidence},
		{"telemetry", c.reconcileTelemetry},
		{"deduplication", c.deduplicate},
	}

	for _, pass := range passes {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := pass.run(ctx, now, &stats); err != nil {
			c.logger.Error("Fusion pass failed",
				logger.String("pass", pass.name),
				logger.Error(err))
		}
	}

	return stats, nil
}

// correlate consumes every airport's evidence bucket, except items a pending
// reservation or telemetry message will settle later in the cycle
func (c *Cycle) correlate(ctx context.Context, _ int64, stats *CycleStats) error {
	airports, err := c.store.EvidenceAirports(ctx)
	if err != nil {
		return err
	}

	holds := c.pendingHolds(ctx)
	for _, airport := range airports {
		if err := c.correlateAirport(ctx, airport, holds, stats); err != nil {
			c.logger.Error("Failed to correlate airport",
				logger.String("airport", airport),
				logger.Error(err))
		}
	}
	return nil
}

func (c *Cycle) correlateAirport(ctx context.Context, airport string, holds []hold, stats *CycleStats) error {
	items, err := c.store.FindEvidence(ctx, storage.EvidenceQuery{Airport: airport})
	if err != nil {
		return err
	}

	clusters, unscorable := c.correlator.Correlate(items)
	for _, e := range unscorable {
		c.logger.Warn("Skipping evidence without confidence weight",
			logger.Int64("id", e.ID),
			logger.String("primary", e.Primary),
			logger.String("secondary", e.Secondary))
	}

	for _, cl := range clusters {
		stats.Clusters++
		if cl.Probability <= c.cfg.ApprovalThreshold {
			c.logger.Debug("Cluster below approval threshold",
				logger.String("airport", cl.Airport),
				logger.String("registration", cl.Registration),
				logger.Float64("probability", cl.Probability),
				logger.Int("members", len(cl.Members)))
			continue
		}

		rec, result, err := c.store.UpsertLanding(ctx, landing.Record{
			Airport:      cl.Airport,
			Registration: cl.Registration,
			Time:         cl.Time,
			Probability:  cl.Probability,
		}, seconds(c.cfg.LandingSeparation))
		if err != nil {
			return err
		}
		stats.Accepted++
		c.recorded(rec, result)
	}

	// The bucket is consumed whatever the outcome
	ids := make([]int64, 0, len(items))
	for _, e := range items {
		if held(holds, e) {
			continue
		}
		ids = append(ids, e.ID)
	}
	if kept := len(items) - len(ids); kept > 0 {
		c.logger.Debug("Evidence held for reconciliation",
			logger.String("airport", airport),
			logger.Int("items", kept))
	}
	return c.store.DeleteEvidence(ctx, ids...)
}

// hold is a window of evidence a pending reservation or telemetry message matches
type hold struct {
	airport      string
	registration string
	from, to     int64
	reservation  bool
}

func (h hold) covers(e landing.Evidence) bool {
	if h.reservation && e.Primary == landing.SourceReservation {
		return false
	}
	return e.Airport == h.airport && e.Registration == h.registration &&
		e.Timestamp >= h.from && e.Timestamp <= h.to
}

func held(holds []hold, e landing.Evidence) bool {
	for _, h := range holds {
		if h.covers(e) {
			return true
		}
	}
	return false
}

// pendingHolds mirrors the windows the reconciliation passes search. A failed read
// only means the cycle holds nothing back.
func (c *Cycle) pendingHolds(ctx context.Context) []hold {
	var holds []hold

	reservations, err := c.store.PendingReservations(ctx)
	if err != nil {
		c.logger.Error("Failed to load pending reservations", logger.Error(err))
	}
	window := seconds(c.cfg.ReservationWindow)
	for _, r := range reservations {
		for _, side := range r.Sides(c.airports, window) {
			holds = append(holds, hold{
				airport:      side.Airport,
				registration: r.Registration,
				from:         side.From,
				to:           side.To,
				reservation:  true,
			})
		}
	}

	messages, err := c.store.PendingTelemetry(ctx)
	if err != nil {
		c.logger.Error("Failed to load pending telemetry", logger.Error(err))
	}
	window = seconds(c.cfg.TelemetryWindow)
	for _, m := range messages {
		if !c.airports.Known(m.Airport) {
			continue
		}
		holds = append(holds, hold{
			airport:      m.Airport,
			registration: m.Registration,
			from:         m.Time - window,
			to:           m.Time + window,
		})
	}
	return holds
}

// deduplicate collapses each repeated registration's landings
func (c *Cycle) deduplicate(ctx context.Context, _ int64, stats *CycleStats) error {
	registrations, err := c.store.RepeatedRegistrations(ctx)
	if err != nil {
		return err
	}

	delta := seconds(c.cfg.LandingSeparation)
	for _, reg := range registrations {
		records, err := c.store.FindLandings(ctx, storage.LandingQuery{Registration: reg})
		if err != nil {
			c.logger.Error("Failed to load landings", logger.String("registration", reg), logger.Error(err))
			continue
		}

		plan := PlanDeduplication(records, delta)
		if err := c.store.DeleteLandings(ctx, plan.Delete...); err != nil {
			c.logger.Error("Failed to delete duplicate landings", logger.String("registration", reg), logger.Error(err))
			continue
		}
		for _, r := range plan.Retime {
			if err := c.store.UpdateLanding(ctx, r.ID, r.Probability, r.Time); err != nil {
				c.logger.Error("Failed to retime landing", logger.Int64("id", r.ID), logger.Error(err))
			}
		}
		stats.Deduplicated += len(plan.Delete)
	}
	return nil
}

func (c *Cycle) recorded(r landing.Record, result storage.UpsertResult) {
	if result == storage.LandingUnchanged {
		return
	}
	c.logger.Info("Landing recorded",
		logger.String("airport", r.Airport),
		logger.String("registration", r.Registration),
		logger.Time("time", r.EventTime()),
		logger.Float64("probability", r.Probability),
		logger.Bool("raised", result == storage.LandingRaised))
	if c.notifier != nil {
		c.notifier.LandingRecorded(r)
	}
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
