package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/yegors/landing-tracker/internal/landing"
	"github.com/yegors/landing-tracker/internal/runner"
	"github.com/yegors/landing-tracker/internal/storage"
	"github.com/yegors/landing-tracker/pkg/logger"
)

// Store is the read side of the shared store
type Store interface {
	Ping(ctx context.Context) error
	Driver() string
	FindLandings(ctx context.Context, q storage.LandingQuery) ([]landing.Record, error)
	FindEvidence(ctx context.Context, q storage.EvidenceQuery) ([]landing.Evidence, error)
	Observations(ctx context.Context) ([]landing.Observation, error)
	Snapshots(ctx context.Context) ([]landing.Snapshot, error)
}

// StatusFunc reports the state of the running components
type StatusFunc func() []runner.Status

// Handler contains the API handlers
type Handler struct {
	store    Store
	statuses StatusFunc
	clients  func() int
	logger   *logger.Logger
}

// NewHandler creates a new API handler. statuses and clients may be nil.
func NewHandler(store Store, statuses StatusFunc, clients func() int, log *logger.Logger) *Handler {
	return &Handler{
		store:    store,
		statuses: statuses,
		clients:  clients,
		logger:   log.Named("api-handler"),
	}
}

// GetHealth returns the store and component status
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	response := map[string]any{
		"driver": h.store.Driver(),
	}

	if err := h.store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		response["store_error"] = err.Error()
	}
	if h.statuses != nil {
		response["components"] = h.statuses()
	}
	if h.clients != nil {
		response["websocket_clients"] = h.clients()
	}
	response["status"] = status

	WriteJSON(w, code, response)
}

// GetLandings returns landing records filtered by registration, airport, time and sent flag
func (h *Handler) GetLandings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	limit, err := parseInt(q.Get("limit"))
	if err != nil || limit < 0 {
		http.Error(w, "Invalid limit", http.StatusBadRequest)
		return
	}
	unsent := false
	if v := q.Get("unsent"); v != "" {
		if unsent, err = strconv.ParseBool(v); err != nil {
			http.Error(w, "Invalid unsent flag", http.StatusBadRequest)
			return
		}
	}

	records, err := h.store.FindLandings(r.Context(), storage.LandingQuery{
		Airport:      landing.NormalizeAirport(q.Get("airport")),
		Registration: landing.NormalizeRegistration(q.Get("registration")),
		From:         from,
		To:           to,
		UnsentOnly:   unsent,
		Limit:        int(limit),
	})
	if err != nil {
		h.fail(w, "Failed to query landings", err)
		return
	}
	if records == nil {
		records = []landing.Record{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"landings": records,
		"count":    len(records),
	})
}

// GetEvidence returns pending evidence filtered by airport, registration and time
func (h *Handler) GetEvidence(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}

	evidence, err := h.store.FindEvidence(r.Context(), storage.EvidenceQuery{
		Airport:      landing.NormalizeAirport(q.Get("airport")),
		Registration: landing.NormalizeRegistration(q.Get("registration")),
		From:         from,
		To:           to,
	})
	if err != nil {
		h.fail(w, "Failed to query evidence", err)
		return
	}
	if evidence == nil {
		evidence = []landing.Evidence{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"evidence": evidence,
		"count":    len(evidence),
	})
}

// GetObservations returns the current observation table
func (h *Handler) GetObservations(w http.ResponseWriter, r *http.Request) {
	observations, err := h.store.Observations(r.Context())
	if err != nil {
		h.fail(w, "Failed to query observations", err)
		return
	}

	visible := 0
	for _, o := range observations {
		if o.Visible {
			visible++
		}
	}
	if observations == nil {
		observations = []landing.Observation{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"observations": observations,
		"count":        len(observations),
		"visible":      visible,
	})
}

// GetSnapshots returns snapshots waiting for the zone stage
func (h *Handler) GetSnapshots(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.store.Snapshots(r.Context())
	if err != nil {
		h.fail(w, "Failed to query snapshots", err)
		return
	}
	if snapshots == nil {
		snapshots = []landing.Snapshot{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, logger.Error(err))
	http.Error(w, msg, http.StatusInternalServerError)
}

// parseRange reads the optional from/to unix-second bounds
func parseRange(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	from, err := parseInt(r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "Invalid from", http.StatusBadRequest)
		return 0, 0, false
	}
	to, err := parseInt(r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "Invalid to", http.StatusBadRequest)
		return 0, 0, false
	}
	if from != 0 && to == 0 {
		to = 1<<62 - 1
	}
	if to != 0 && from > to {
		http.Error(w, "from is after to", http.StatusBadRequest)
		return 0, 0, false
	}
	return from, to, true
}

func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
