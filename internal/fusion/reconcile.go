package fusion

import (
	"context"

	"github.com/yegors/landing-tracker/internal/landing"
	"github.com/yegors/landing-tracker/internal/storage"
	"github.com/yegors/landing-tracker/pkg/logger"
)

// reconcileReservations confirms landings that a reservation backs up
func (c *Cycle) reconcileReservations(ctx context.Context, now int64, stats *CycleStats) error {
	reservations, err := c.store.PendingReservations(ctx)
	if err != nil {
		return err
	}

	for _, r := range reservations {
		if err := c.reconcileReservation(ctx, r, now); err != nil {
			c.logger.Error("Failed to reconcile reservation",
				logger.Int64("id", r.ID),
				logger.String("registration", r.Registration),
				logger.Error(err))
			continue
		}
		stats.Reservations++
	}
	return nil
}

func (c *Cycle) reconcileReservation(ctx context.Context, r landing.Reservation, now int64) error {
	window := seconds(c.cfg.ReservationWindow)

	sides := r.Sides(c.airports, window)
	if len(sides) == 0 {
		c.logger.Warn("Dropping unusable reservation",
			logger.Int64("id", r.ID),
			logger.String("registration", r.Registration),
			logger.String("airport", r.Airport),
			logger.String("departing_to", r.DepartingTo))
		return c.store.DeleteReservation(ctx, r.ID)
	}

	matched := false
	for _, side := range sides {
		found, err := c.confirmSide(ctx, r.Registration, side)
		if err != nil {
			return err
		}
		matched = matched || found
	}
	if matched {
		return c.store.DeleteReservation(ctx, r.ID)
	}

	// Nothing to confirm yet; once the reservation is past its windows on a
	// later pass it stands as evidence on its own
	passes := r.Passes + 1
	aged := true
	for _, side := range sides {
		if now <= side.To {
			aged = false
		}
	}
	if passes < 2 || !aged {
		return c.store.SetReservationPasses(ctx, r.ID, passes)
	}

	for _, side := range sides {
		pos := c.airports[side.Airport].Position()
		if _, err := c.store.InsertEvidence(ctx, landing.Evidence{
			Airport:      side.Airport,
			Registration: r.Registration,
			Probability:  1,
			Primary:      landing.SourceReservation,
			Secondary:    landing.SourceDefault,
			Timestamp:    side.At,
			Position:     &pos,
		}); err != nil {
			return err
		}
	}
	c.logger.Info("Reservation converted to evidence",
		logger.String("registration", r.Registration),
		logger.Int("sides", len(sides)))
	return c.store.DeleteReservation(ctx, r.ID)
}

// confirmSide forces matching landings to certainty and promotes matching evidence.
// Matching evidence is consumed either way.
func (c *Cycle) confirmSide(ctx context.Context, registration string, side landing.Side) (bool, error) {
	items, err := c.store.FindEvidence(ctx, storage.EvidenceQuery{
		Airport:        side.Airport,
		Registration:   registration,
		From:           side.From,
		To:             side.To,
		ExcludePrimary: landing.SourceReservation,
	})
	if err != nil {
		return false, err
	}

	records, err := c.store.FindLandings(ctx, storage.LandingQuery{
		Airport:      side.Airport,
		Registration: registration,
		From:         side.From,
		To:           side.To,
	})
	if err != nil {
		return false, err
	}

	switch {
	case len(records) > 0:
		if err := c.certify(ctx, mostProbable(records), 0); err != nil {
			return false, err
		}
	case len(items) > 0:
		if err := c.insertCertain(ctx, side.Airport, registration, latest(items)); err != nil {
			return false, err
		}
	default:
		return false, nil
	}
	return true, c.deleteEvidence(ctx, items)
}

// verifyReservationEvidence settles reservation evidence that a landing now backs up
func (c *Cycle) verifyReservationEvidence(ctx context.Context, _ int64, _ *CycleStats) error {
	items, err := c.store.FindEvidence(ctx, storage.EvidenceQuery{Primary: landing.SourceReservation})
	if err != nil {
		return err
	}

	window := seconds(c.cfg.ReservationWindow)
	for _, e := range items {
		records, err := c.store.FindLandings(ctx, storage.LandingQuery{
			Airport:      e.Airport,
			Registration: e.Registration,
			From:         e.Timestamp - window,
			To:           e.Timestamp + window,
		})
		if err != nil {
			c.logger.Error("Failed to verify reservation evidence", logger.Int64("id", e.ID), logger.Error(err))
			continue
		}
		if len(records) == 0 {
			continue
		}
		if err := c.certify(ctx, mostProbable(records), 0); err != nil {
			c.logger.Error("Failed to certify landing", logger.Int64("id", e.ID), logger.Error(err))
			continue
		}
		if err := c.store.DeleteEvidence(ctx, e.ID); err != nil {
			c.logger.Error("Failed to delete reservation evidence", logger.Int64("id", e.ID), logger.Error(err))
		}
	}
	return nil
}

// reconcileTelemetry applies movement messages, which confirm an actual arrival
func (c *Cycle) reconcileTelemetry(ctx context.Context, _ int64, stats *CycleStats) error {
	messages, err := c.store.PendingTelemetry(ctx)
	if err != nil {
		return err
	}

	for _, m := range messages {
		if !c.airports.Known(m.Airport) {
			c.logger.Warn("Dropping telemetry for unknown airport",
				logger.Int64("message_id", m.MessageID),
				logger.String("airport", m.Airport))
			if err := c.store.DeleteTelemetry(ctx, m.ID); err != nil {
				c.logger.Error("Failed to delete telemetry", logger.Int64("id", m.ID), logger.Error(err))
			}
			continue
		}

		if err := c.reconcileMessage(ctx, m); err != nil {
			c.logger.Error("Failed to reconcile telemetry",
				logger.Int64("message_id", m.MessageID),
				logger.String("registration", m.Registration),
				logger.Error(err))
			continue
		}
		if err := c.store.DeleteTelemetry(ctx, m.ID); err != nil {
			c.logger.Error("Failed to delete telemetry", logger.Int64("id", m.ID), logger.Error(err))
			continue
		}
		stats.Telemetry++
	}
	return nil
}

func (c *Cycle) reconcileMessage(ctx context.Context, m landing.Telemetry) error {
	window := seconds(c.cfg.TelemetryWindow)

	items, err := c.store.FindEvidence(ctx, storage.EvidenceQuery{
		Airport:      m.Airport,
		Registration: m.Registration,
		From:         m.Time - window,
		To:           m.Time + window,
	})
	if err != nil {
		return err
	}

	records, err := c.store.FindLandings(ctx, storage.LandingQuery{
		Airport:      m.Airport,
		Registration: m.Registration,
		From:         m.Time - window,
		To:           m.Time + window,
	})
	if err != nil {
		return err
	}

	switch {
	case len(records) > 0:
		if err := c.certify(ctx, mostProbable(records), m.Time); err != nil {
			return err
		}
		return c.deleteEvidence(ctx, items)
	case len(items) > 0:
		if err := c.deleteEvidence(ctx, items); err != nil {
			return err
		}
		return c.insertCertain(ctx, m.Airport, m.Registration, m.Time)
	}

	probability, ok := c.confidence.Apply(landing.SourceTelemetry, landing.SourceDefault, 1)
	if !ok {
		probability = 1
	}
	rec, result, err := c.store.UpsertLanding(ctx, landing.Record{
		Airport:      m.Airport,
		Registration: m.Registration,
		Time:         m.Time,
		Probability:  probability,
	}, seconds(c.cfg.LandingSeparation))
	if err != nil {
		return err
	}
	c.recorded(rec, result)
	return nil
}

// certify forces a landing to certainty, optionally moving it to a confirmed time
func (c *Cycle) certify(ctx context.Context, r landing.Record, at int64) error {
	if at == 0 {
		at = r.Time
	}
	if r.Probability >= 1 && r.Time == at {
		return nil
	}
	if err := c.store.UpdateLanding(ctx, r.ID, 1, at); err != nil {
		return err
	}
	r.Probability = 1
	r.Time = at
	c.recorded(r, storage.LandingRaised)
	return nil
}

func (c *Cycle) insertCertain(ctx context.Context, airport, registration string, at int64) error {
	rec, result, err := c.store.UpsertLanding(ctx, landing.Record{
		Airport:      airport,
		Registration: registration,
		Time:         at,
		Probability:  1,
	}, seconds(c.cfg.LandingSeparation))
	if err != nil {
		return err
	}
	c.recorded(rec, result)
	return nil
}

func (c *Cycle) deleteEvidence(ctx context.Context, items []landing.Evidence) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]int64, len(items))
	for i, e := range items {
		ids[i] = e.ID
	}
	return c.store.DeleteEvidence(ctx, ids...)
}

func latest(items []landing.Evidence) int64 {
	at := items[0].Timestamp
	for _, e := range items[1:] {
		at = max(at, e.Timestamp)
	}
	return at
}

func mostProbable(records []landing.Record) landing.Record {
	best := records[0]
	for _, r := range records[1:] {
		if r.Probability > best.Probability {
			best = r
		}
	}
	return best
}
