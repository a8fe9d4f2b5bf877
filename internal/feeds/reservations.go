package feeds

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/yegors/landing-tracker/internal/config"
	"github.com/yegors/landing-tracker/internal/landing"
	"github.com/yegors/landing-tracker/pkg/logger"
)

// ReservationStore is what the reservation poller writes to
type ReservationStore interface {
	WaitWritable(ctx context.Context) error
	InsertReservation(ctx context.Context, r landing.Reservation) (bool, error)
}

// reservationPayload is one reservation as the source serves it
type reservationPayload struct {
	Airport       string `json:"airport"`
	DepartingTo   string `json:"departingTo"`
	LicenseNumber string `json:"licenseNumber"`
	Arrival       string `json:"arrival"`
	Departure     string `json:"departure"`
}

// Layouts the reservation source has been seen to use
var reservationLayouts = []string{
	time.RFC1123,                     // Mon, 02 Jan 2006 15:04:05 UTC
	"Mon Jan 02 2006 15:04:05 -0700", // browser dates once "GMT" is removed
	time.RFC3339,
}

// ReservationPoller moves new reservations into the reservation inbox
type ReservationPoller struct {
	cfg      config.ReservationsConfig
	client   *Client
	airports landing.Airports
	seen     *lru.Cache[string, struct{}]
	store    ReservationStore
	logger   *logger.Logger
	now      func() time.Time
}

// NewReservationPoller creates the reservation poller
func NewReservationPoller(cfg config.ReservationsConfig, airports landing.Airports, store ReservationStore, log *logger.Logger) (*ReservationPoller, error) {
	seen, err := lru.New[string, struct{}](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create reservation cache: %w", err)
	}
	pollerLogger := log.Named("reservations")
	return &ReservationPoller{
		cfg:      cfg,
		client:   NewClient(config.Seconds(cfg.TimeoutSecs), 0, cfg.Auth, pollerLogger),
		airports: airports,
		seen:     seen,
		store:    store,
		logger:   pollerLogger,
		now:      time.Now,
	}, nil
}

// Name identifies the poller
func (p *ReservationPoller) Name() string { return "reservations" }

// RunCycle fetches recent reservations and stores the usable new ones
func (p *ReservationPoller) RunCycle(ctx context.Context) error {
	now := p.now()
	query := url.Values{}
	query.Set("status", p.cfg.Status)
	query.Set("afterTimestamp", strconv.FormatInt(now.Add(-time.Duration(p.cfg.MaxAgeHours)*time.Hour).Unix(), 10))
	query.Set("beforeTimestamp", strconv.FormatInt(now.Unix(), 10))

	var payload []reservationPayload
	if err := p.client.GetJSON(ctx, p.cfg.URL, query, &payload); err != nil {
		return fmt.Errorf("failed to fetch reservations: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}

	if err := p.store.WaitWritable(ctx); err != nil {
		return err
	}

	var inserted, invalid, repeated int
	for _, item := range payload {
		r, err := p.reservation(item, now.Unix())
		if err != nil || !r.Valid(p.airports) {
			invalid++
			p.logger.Debug("Dropping unusable reservation",
				logger.String("registration", item.LicenseNumber),
				logger.String("airport", item.Airport),
				logger.String("departing_to", item.DepartingTo))
			continue
		}

		key := r.Key()
		if p.seen.Contains(key) {
			repeated++
			continue
		}

		ok, err := p.store.InsertReservation(ctx, r)
		if err != nil {
			p.logger.Error("Failed to store reservation",
				logger.String("registration", r.Registration),
				logger.Error(err))
			continue
		}
		p.seen.Add(key, struct{}{})
		if ok {
			inserted++
		} else {
			repeated++
		}
	}

	p.logger.Info("Reservations polled",
		logger.Int("received", len(payload)),
		logger.Int("inserted", inserted),
		logger.Int("repeated", repeated),
		logger.Int("invalid", invalid))
	return nil
}

func (p *ReservationPoller) reservation(item reservationPayload, now int64) (landing.Reservation, error) {
	arrival, err := parseReservationTime(item.Arrival)
	if err != nil {
		return landing.Reservation{}, err
	}
	departure, err := parseReservationTime(item.Departure)
	if err != nil {
		return landing.Reservation{}, err
	}
	return landing.Reservation{
		Airport:      landing.NormalizeAirport(item.Airport),
		DepartingTo:  landing.NormalizeAirport(item.DepartingTo),
		Registration: landing.NormalizeRegistration(item.LicenseNumber),
		Arrival:      arrival,
		Departure:    departure,
		ReceivedAt:   now,
	}, nil
}

// parseReservationTime returns 0 for an empty value
func parseReservationTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	// Browser dates look like "Tue Mar 14 2023 10:00:00 GMT+0100 (Central European Standard Time)"
	if i := strings.Index(s, " ("); i > 0 {
		s = s[:i]
	}
	if !strings.Contains(s, ",") {
		s = strings.Replace(s, "GMT", "", 1)
	}
	for _, layout := range reservationLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("unrecognised reservation time: %q", s)
}
