package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yegors/landing-tracker/internal/config"
	"github.com/yegors/landing-tracker/internal/landing"
	"github.com/yegors/landing-tracker/internal/storage"
	"github.com/yegors/landing-tracker/pkg/logger"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(storage.Options{
		Driver:      storage.DriverSQLite,
		SQLitePath:  filepath.Join(t.TempDir(), "delivery.db"),
		BusyBackoff: 10 * time.Millisecond,
	}, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLoadCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte(`{" lexx": "secret", "LEFF": "other"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	creds, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if creds["LEXX"] != "secret" || creds["LEFF"] != "other" {
		t.Errorf("Expected normalized airport keys, got %v", creds)
	}

	if _, err := LoadCredentials(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestSenderDeliversUnsentLandings(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Payload
		users    []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || pass != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, p)
		users = append(users, user)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	store := newTestStore(t)
	ctx := context.Background()
	records := []landing.Record{
		{Airport: "LEXX", Registration: "N123AB", Time: 1700000000, Probability: 0.9},
		{Airport: "LEXX", Registration: "FGABC", Time: 1700000100, Probability: 0.3},
		{Airport: "LEFF", Registration: "DEFGH", Time: 1700000200, Probability: 1},
		{Airport: "LEXX", Registration: "DIJKL", Time: 1699990000, Probability: 1, Sent: true},
	}
	for _, r := range records {
		if _, err := store.InsertLanding(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.DeliveryConfig{URL: server.URL, CreatedBy: "landing-tracker", MinProbability: 0.5, TimeoutSecs: 1}
	// LEFF has no credentials
	sender := NewSender(cfg, Credentials{"LEXX": "secret"}, store, logger.NewNop())

	for i := 0; i < 2; i++ {
		if err := sender.RunCycle(ctx); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	if len(received) != 1 {
		t.Fatalf("Expected 1 delivery, got %+v", received)
	}
	expected := Payload{
		Airport:      "LEXX",
		Registration: "N123AB",
		LandingTime:  "2023-11-14T22:13:20Z",
		Probability:  0.9,
		CreatedBy:    "landing-tracker",
	}
	if received[0] != expected {
		t.Errorf("Expected %+v, got %+v", expected, received[0])
	}
	if users[0] != "LEXX" {
		t.Errorf("Expected airport as username, got %q", users[0])
	}

	unsent, err := store.FindLandings(ctx, storage.LandingQuery{UnsentOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(unsent) != 2 {
		t.Errorf("Expected held and uncredentialed landings to stay unsent, got %+v", unsent)
	}
}

func TestSenderKeepsFailedLandings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.InsertLanding(ctx, landing.Record{Airport: "LEXX", Registration: "N123AB", Time: 1700000000, Probability: 1}); err != nil {
		t.Fatal(err)
	}

	cfg := config.DeliveryConfig{URL: server.URL, TimeoutSecs: 1}
	sender := NewSender(cfg, Credentials{"LEXX": "secret"}, store, logger.NewNop())
	if err := sender.RunCycle(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	unsent, err := store.FindLandings(ctx, storage.LandingQuery{UnsentOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(unsent) != 1 {
		t.Errorf("Expected landing to stay unsent after a failed delivery, got %+v", unsent)
	}
}

type guardedStore struct {
	*storage.Store
	waits     int
	sentAfter []int
}

func (p *guardedStore) WaitWritable(ctx context.Context) error {
	p.waits++
	return p.Store.WaitWritable(ctx)
}

func (p *guardedStore) MarkSent(ctx context.Context, id int64) error {
	p.sentAfter = append(p.sentAfter, p.waits)
	return p.Store.MarkSent(ctx, id)
}

func TestSenderWaitsForWritableStore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := &guardedStore{Store: newTestStore(t)}
	ctx := context.Background()
	if _, err := store.InsertLanding(ctx, landing.Record{Airport: "LEXX", Registration: "N123AB", Time: 1700000000, Probability: 1}); err != nil {
		t.Fatal(err)
	}

	sender := NewSender(config.DeliveryConfig{URL: server.URL, TimeoutSecs: 1}, Credentials{"LEXX": "secret"}, store, logger.NewNop())
	if err := sender.RunCycle(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(store.sentAfter) != 1 || store.sentAfter[0] < 1 {
		t.Errorf("Expected a writable check before marking sent, got %v", store.sentAfter)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := sender.RunCycle(cancelled); err == nil {
		t.Error("Expected error when the store never becomes writable")
	}
}
