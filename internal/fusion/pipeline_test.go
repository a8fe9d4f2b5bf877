package fusion

import (
	"context"
	"testing"
	"time"

	"github.com/yegors/landing-tracker/internal/landing"
	"github.com/yegors/landing-tracker/internal/spatial"
	"github.com/yegors/landing-tracker/internal/tracking"
	"github.com/yegors/landing-tracker/pkg/logger"
)

// An aircraft vanishes east of LEXX, the zone stage places it there and a
// reservation later confirms the landing.
func TestDisappearanceToCertainLanding(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	const seen = 100000

	err := store.UpsertObservation(ctx, landing.Observation{
		Registration: "N123AB", Source: "feedA",
		Lat: 40.0, Lon: -3.0, Altitude: 3000, Velocity: 120, Heading: 90,
		Timestamp: seen,
	})
	if err != nil {
		t.Fatal(err)
	}

	tracker := tracking.NewTracker(tracking.Config{
		Inactivity:       5 * time.Minute,
		Deletion:         10 * time.Minute,
		FlightSeparation: 15 * time.Minute,
		GroundedSpeed:    5,
		History:          24 * time.Hour,
	}, store, logger.NewNop())
	if _, err := tracker.Step(ctx, seen+360); err != nil {
		t.Fatal(err)
	}

	matcher := spatial.NewMatcher(spatial.MatcherConfig{MinBase: 0.5, Weight: 0.8, Threshold: 0.75}, testAirports.List())
	if err := spatial.NewStage(store, matcher, "airTracker", logger.NewNop()).RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	cycle := NewCycle(testConfig, store, testConfidence, testAirports, logger.NewNop())
	cycle.SetNotifier(rec)

	mustRun(t, cycle, seen+400)

	records := landingsFor(t, store, "N123AB")
	if len(records) != 1 {
		t.Fatalf("Expected one landing, got %+v", records)
	}
	if records[0].Airport != "LEXX" || records[0].Time != seen || records[0].Probability != 0.8 {
		t.Errorf("Expected LEXX landing at 0.8, got %+v", records[0])
	}

	if _, err := store.InsertReservation(ctx, landing.Reservation{
		Airport: "LEXX", Registration: "N123AB", Arrival: seen + 1800, ReceivedAt: seen + 500,
	}); err != nil {
		t.Fatal(err)
	}
	mustRun(t, cycle, seen+900)

	records = landingsFor(t, store, "N123AB")
	if len(records) != 1 || records[0].Probability != 1 {
		t.Fatalf("Expected the landing certified, got %+v", records)
	}

	notified := len(rec.records)
	mustRun(t, cycle, seen+1800)
	if again := landingsFor(t, store, "N123AB"); len(again) != 1 || again[0] != records[0] {
		t.Errorf("Expected settled landing unchanged, got %+v", again)
	}
	if len(rec.records) != notified {
		t.Errorf("Expected no notifications on a settled store, got %d more", len(rec.records)-notified)
	}
}
