package tracking

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/yegors/landing-tracker/internal/landing"
	"github.com/yegors/landing-tracker/internal/storage"
	"github.com/yegors/landing-tracker/pkg/logger"
)

var testConfig = Config{
	Inactivity:       5 * time.Minute,
	Deletion:         10 * time.Minute,
	FlightSeparation: 15 * time.Minute,
	GroundedSpeed:    5,
	History:          24 * time.Hour,
}

func newTestTracker(t *testing.T) (*Tracker, *storage.Store) {
	t.Helper()
	store, err := storage.Open(storage.Options{
		Driver:      storage.DriverSQLite,
		SQLitePath:  filepath.Join(t.TempDir(), "tracker.db"),
		BusyBackoff: 10 * time.Millisecond,
	}, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return NewTracker(testConfig, store, logger.NewNop()), store
}

func report(t *testing.T, store *storage.Store, reg, source string, ts int64, velocity float64) {
	t.Helper()
	err := store.UpsertObservation(context.Background(), landing.Observation{
		Registration: reg, Source: source, Lat: 40, Lon: -3, Altitude: 3000,
		Velocity: velocity, Heading: 90, Timestamp: ts,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func snapshotCount(t *testing.T, store *storage.Store) int {
	t.Helper()
	snaps, err := store.Snapshots(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return len(snaps)
}

func TestStillVisibleOnAnotherSource(t *testing.T) {
	ctx := context.Background()
	tracker, store := newTestTracker(t)
	const now = 100000

	report(t, store, "N123AB", "feedA", now-400, 120) // stale
	report(t, store, "N123AB", "feedB", now-10, 120)  // fresh

	stats, err := tracker.Step(ctx, now)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if stats.Snapshots != 0 || snapshotCount(t, store) != 0 {
		t.Errorf("Expected no snapshot while another source sees the aircraft, got %d", stats.Snapshots)
	}

	observations, _ := store.Observations(ctx)
	if len(observations) != 1 || observations[0].Source != "feedB" {
		t.Errorf("Expected only the visible feedB row left, got %+v", observations)
	}
}

func TestStaleEverywhereProducesOneSnapshot(t *testing.T) {
	ctx := context.Background()
	tracker, store := newTestTracker(t)
	const now = 100000

	report(t, store, "N123AB", "feedA", now-400, 120)
	report(t, store, "N123AB", "feedB", now-350, 110)

	stats, err := tracker.Step(ctx, now)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if stats.Snapshots != 1 {
		t.Fatalf("Expected 1 snapshot, got %d", stats.Snapshots)
	}

	snaps, _ := store.Snapshots(ctx)
	if snaps[0].Source != "feedB" || snaps[0].ContactTime != now-350 {
		t.Errorf("Expected most recent observation (feedB at %d), got %+v", now-350, snaps[0])
	}

	// Re-running, with or without the snapshot consumed, emits nothing new
	stats, _ = tracker.Step(ctx, now+60)
	if stats.Snapshots != 0 || stats.Suppressed != 1 {
		t.Errorf("Expected suppressed re-run, got %+v", stats)
	}
	if err := store.DeleteSnapshot(ctx, "N123AB"); err != nil {
		t.Fatal(err)
	}
	stats, _ = tracker.Step(ctx, now+120)
	if stats.Snapshots != 0 || snapshotCount(t, store) != 0 {
		t.Errorf("Expected no new snapshot after consumption, got %+v", stats)
	}
}

func TestSecondDisappearanceWithinSeparation(t *testing.T) {
	ctx := context.Background()
	tracker, store := newTestTracker(t)
	const now = 100000

	report(t, store, "N123AB", "feedA", now-400, 120)
	if stats, _ := tracker.Step(ctx, now); stats.Snapshots != 1 {
		t.Fatalf("Expected first snapshot, got %d", stats.Snapshots)
	}
	if err := store.DeleteSnapshot(ctx, "N123AB"); err != nil {
		t.Fatal(err)
	}

	// Brief reappearance, gone again within 15 minutes of the first contact
	report(t, store, "N123AB", "feedA", now-400+300, 120)
	stats, err := tracker.Step(ctx, now+700)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Snapshots != 0 || snapshotCount(t, store) != 0 {
		t.Errorf("Expected duplicate disappearance to be suppressed, got %+v", stats)
	}

	// A separate flight hours later is a new event
	later := int64(now + 4*3600)
	report(t, store, "N123AB", "feedA", later-400, 120)
	stats, _ = tracker.Step(ctx, later)
	if stats.Snapshots != 1 {
		t.Errorf("Expected new snapshot for a later flight, got %+v", stats)
	}
}

func TestGroundedFastPath(t *testing.T) {
	ctx := context.Background()
	tracker, store := newTestTracker(t)
	const now = 100000

	report(t, store, "F-GABC", "feedA", 0, 2) // no usable timestamp
	report(t, store, "F-GABC", "feedB", 0, 1)
	report(t, store, "F-GDEF", "feedA", now-5, 1) // fresh but parked
	report(t, store, "F-GDEF", "feedB", now-5, 3)
	report(t, store, "F-GXYZ", "feedA", now-5, 2)
	report(t, store, "F-GXYZ", "feedB", now-5, 60) // still moving on one source

	stats, err := tracker.Step(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Snapshots != 2 {
		t.Fatalf("Expected the two grounded aircraft to be snapshotted, got %d", stats.Snapshots)
	}

	snaps, _ := store.Snapshots(ctx)
	if snaps[0].Registration != "F-GABC" || snaps[1].Registration != "F-GDEF" {
		t.Fatalf("Expected F-GABC and F-GDEF, got %s and %s", snaps[0].Registration, snaps[1].Registration)
	}
	if snaps[0].ContactTime != now {
		t.Errorf("Expected contact time to fall back to now, got %d", snaps[0].ContactTime)
	}
	if snaps[1].ContactTime != now-5 {
		t.Errorf("Expected contact time %d, got %d", now-5, snaps[1].ContactTime)
	}

	// Parked aircraft keep reporting; the same flight is not emitted twice
	stats, _ = tracker.Step(ctx, now+30)
	if stats.Snapshots != 0 {
		t.Errorf("Expected no new snapshots, got %d", stats.Snapshots)
	}
}

func TestInvisibleRowsArePurged(t *testing.T) {
	ctx := context.Background()
	tracker, store := newTestTracker(t)
	const now = 100000

	report(t, store, "N123AB", "feedA", now-400, 120)
	if _, err := tracker.Step(ctx, now); err != nil {
		t.Fatal(err)
	}
	if observations, _ := store.Observations(ctx); len(observations) != 1 {
		t.Fatalf("Expected the invisible row to be kept for now, got %d", len(observations))
	}

	stats, err := tracker.Step(ctx, now+11*60)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Purged != 1 {
		t.Errorf("Expected 1 purged row, got %d", stats.Purged)
	}
	if observations, _ := store.Observations(ctx); len(observations) != 0 {
		t.Errorf("Expected no observations left, got %d", len(observations))
	}
}

func TestParkedAircraftSnapshottedOncePerFlight(t *testing.T) {
	ctx := context.Background()
	tracker, store := newTestTracker(t)
	const start = 100000

	report(t, store, "N123AB", "feedA", start-600, 70)
	if _, err := tracker.Step(ctx, start-570); err != nil {
		t.Fatal(err)
	}

	snapshots := 0
	for i := int64(0); i <= 7; i++ {
		ts := start + i*600
		report(t, store, "N123AB", "feedA", ts, 1)
		stats, err := tracker.Step(ctx, ts+30)
		if err != nil {
			t.Fatal(err)
		}
		snapshots += stats.Snapshots
		// The zone stage consumes snapshots between cycles
		if err := store.DeleteSnapshot(ctx, "N123AB"); err != nil {
			t.Fatal(err)
		}
	}
	if snapshots != 1 {
		t.Fatalf("Expected 1 snapshot while parked, got %d", snapshots)
	}

	// Departs and parks again: a new flight
	report(t, store, "N123AB", "feedA", start+6000, 70)
	if _, err := tracker.Step(ctx, start+6030); err != nil {
		t.Fatal(err)
	}
	report(t, store, "N123AB", "feedA", start+9000, 1)
	stats, err := tracker.Step(ctx, start+9030)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Snapshots != 1 {
		t.Errorf("Expected a snapshot for the next flight, got %+v", stats)
	}
}
