package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/yegors/landing-tracker/internal/landing"
	"github.com/yegors/landing-tracker/internal/runner"
	"github.com/yegors/landing-tracker/internal/storage"
	"github.com/yegors/landing-tracker/pkg/logger"
)

func newTestServer(t *testing.T) (*httptest.Server, *storage.Store) {
	t.Helper()
	store, err := storage.Open(storage.Options{
		Driver:      storage.DriverSQLite,
		SQLitePath:  filepath.Join(t.TempDir(), "api.db"),
		BusyBackoff: 10 * time.Millisecond,
	}, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	statuses := func() []runner.Status {
		return []runner.Status{{Name: "fusion", Runs: 3}}
	}
	handler := NewHandler(store, statuses, func() int { return 2 }, logger.NewNop())
	server := httptest.NewServer(NewRouter(handler, nil, nil, logger.NewNop()).Routes())
	t.Cleanup(server.Close)
	return server, store
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)

	var body struct {
		Status     string          `json:"status"`
		Driver     string          `json:"driver"`
		Components []runner.Status `json:"components"`
		Clients    int             `json:"websocket_clients"`
	}
	if code := getJSON(t, server.URL+"/api/v1/health", &body); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body.Status != "ok" || body.Driver != storage.DriverSQLite {
		t.Errorf("Unexpected health: %+v", body)
	}
	if len(body.Components) != 1 || body.Components[0].Runs != 3 || body.Clients != 2 {
		t.Errorf("Expected component status and client count, got %+v", body)
	}
}

func TestLandings(t *testing.T) {
	server, store := newTestServer(t)
	ctx := context.Background()
	for _, r := range []landing.Record{
		{Airport: "LEXX", Registration: "N123AB", Time: 1000, Probability: 0.8},
		{Airport: "LEFF", Registration: "N123AB", Time: 2000, Probability: 0.9, Sent: true},
		{Airport: "LEXX", Registration: "FGABC", Time: 3000, Probability: 1},
	} {
		if _, err := store.InsertLanding(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name     string
		query    string
		code     int
		expected int
	}{
		{"All", "", http.StatusOK, 3},
		{"By registration with separator", "?registration=n-123ab", http.StatusOK, 2},
		{"By airport", "?airport=lexx", http.StatusOK, 2},
		{"Unsent only", "?unsent=true", http.StatusOK, 2},
		{"From", "?from=1500", http.StatusOK, 2},
		{"Range", "?from=1500&to=2500", http.StatusOK, 1},
		{"Limit", "?limit=1", http.StatusOK, 1},
		{"No match", "?airport=ZZZZ", http.StatusOK, 0},
		{"Bad unsent flag", "?unsent=maybe", http.StatusBadRequest, 0},
		{"Bad range", "?from=3000&to=1000", http.StatusBadRequest, 0},
		{"Bad limit", "?limit=x", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body struct {
				Landings []landing.Record `json:"landings"`
				Count    int              `json:"count"`
			}
			code := getJSON(t, server.URL+"/api/v1/landings"+tt.query, &body)
			if code != tt.code {
				t.Fatalf("Expected status %d, got %d", tt.code, code)
			}
			if code == http.StatusOK && (body.Count != tt.expected || len(body.Landings) != tt.expected) {
				t.Errorf("Expected %d landings, got %+v", tt.expected, body)
			}
		})
	}
}

func TestEvidenceObservationsSnapshots(t *testing.T) {
	server, store := newTestServer(t)
	ctx := context.Background()

	if _, err := store.InsertEvidence(ctx, landing.Evidence{
		Airport: "LEXX", Registration: "N123AB", Probability: 0.8,
		Primary: "airTracker", Secondary: "radar", Timestamp: 1000,
		Position: &landing.Position{Lat: 40, Lon: -3},
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertObservation(ctx, landing.Observation{
		Registration: "FGABC", Source: "radar", Lat: 41, Lon: -1, Timestamp: 1000, Visible: true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveSnapshot(ctx, landing.Snapshot{
		Registration: "DEFGH", Source: "radar", Lat: 40, Lon: -3, ContactTime: 900, CreatedAt: 1000,
	}); err != nil {
		t.Fatal(err)
	}

	var evidence struct {
		Evidence []landing.Evidence `json:"evidence"`
	}
	getJSON(t, server.URL+"/api/v1/evidence?airport=LEXX", &evidence)
	if len(evidence.Evidence) != 1 || evidence.Evidence[0].Position == nil {
		t.Errorf("Expected one positioned evidence item, got %+v", evidence)
	}

	var observations struct {
		Count   int `json:"count"`
		Visible int `json:"visible"`
	}
	getJSON(t, server.URL+"/api/v1/observations", &observations)
	if observations.Count != 1 || observations.Visible != 1 {
		t.Errorf("Expected one visible observation, got %+v", observations)
	}

	var snapshots struct {
		Snapshots []landing.Snapshot `json:"snapshots"`
	}
	getJSON(t, server.URL+"/api/v1/snapshots", &snapshots)
	if len(snapshots.Snapshots) != 1 || snapshots.Snapshots[0].Registration != "DEFGH" {
		t.Errorf("Expected one snapshot, got %+v", snapshots)
	}
}

func TestWebsocketRouteOptional(t *testing.T) {
	server, _ := newTestServer(t)
	if code := getJSON(t, server.URL+"/api/v1/ws", nil); code != http.StatusNotFound {
		t.Errorf("Expected 404 without a websocket handler, got %d", code)
	}
}
