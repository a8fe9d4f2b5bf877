package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/yegors/landing-tracker/internal/config"
	"github.com/yegors/landing-tracker/internal/feeds"
	"github.com/yegors/landing-tracker/internal/landing"
	"github.com/yegors/landing-tracker/internal/storage"
	"github.com/yegors/landing-tracker/pkg/logger"
)

// Store is what the sender reads and updates
type Store interface {
	WaitWritable(ctx context.Context) error
	UnsentAirports(ctx context.Context) ([]string, error)
	FindLandings(ctx context.Context, q storage.LandingQuery) ([]landing.Record, error)
	MarkSent(ctx context.Context, id int64) error
}

// Credentials maps an airport code to the password its account uses
type Credentials map[string]string

// LoadCredentials reads the airport credentials file
func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	creds := make(Credentials, len(raw))
	for airport, password := range raw {
		creds[landing.NormalizeAirport(airport)] = password
	}
	return creds, nil
}

// Payload is one landing as the receiving system expects it
type Payload struct {
	Airport      string  `json:"airport"`
	Registration string  `json:"registration"`
	LandingTime  string  `json:"landing_time"`
	Probability  float64 `json:"probability"`
	CreatedBy    string  `json:"created_by"`
}

// Sender posts confirmed landings to the receiving system, one account per airport
type Sender struct {
	cfg     config.DeliveryConfig
	clients map[string]*feeds.Client // per airport account
	store   Store
	logger  *logger.Logger
}

// NewSender creates a sender
func NewSender(cfg config.DeliveryConfig, creds Credentials, store Store, log *logger.Logger) *Sender {
	senderLogger := log.Named("delivery")
	clients := make(map[string]*feeds.Client, len(creds))
	for airport, password := range creds {
		auth := config.AuthConfig{Type: "basic", Username: airport, Password: password}
		clients[airport] = feeds.NewClient(config.Seconds(cfg.TimeoutSecs), 0, auth, senderLogger)
	}
	return &Sender{
		cfg:     cfg,
		clients: clients,
		store:   store,
		logger:  senderLogger,
	}
}

// Name identifies the sender
func (s *Sender) Name() string { return "delivery" }

// RunCycle sends every unsent landing that meets the minimum probability.
// A landing raised after it was sent is not sent again.
func (s *Sender) RunCycle(ctx context.Context) error {
	if err := s.store.WaitWritable(ctx); err != nil {
		return err
	}

	airports, err := s.store.UnsentAirports(ctx)
	if err != nil {
		return err
	}

	var sent, held, failed int
	for _, airport := range airports {
		client, ok := s.clients[airport]
		if !ok {
			s.logger.Warn("No credentials for airport, skipping", logger.String("airport", airport))
			continue
		}

		records, err := s.store.FindLandings(ctx, storage.LandingQuery{Airport: airport, UnsentOnly: true})
		if err != nil {
			return err
		}

		for _, r := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if r.Probability < s.cfg.MinProbability {
				held++
				continue
			}

			if err := client.PostJSON(ctx, s.cfg.URL, s.payload(r), nil); err != nil {
				failed++
				s.logger.Error("Failed to deliver landing",
					logger.Int64("landing_id", r.ID),
					logger.String("airport", airport),
					logger.String("registration", r.Registration),
					logger.Error(err))
				continue
			}
			if err := s.store.MarkSent(ctx, r.ID); err != nil {
				return err
			}
			sent++
		}
	}

	if sent > 0 || failed > 0 {
		s.logger.Info("Landings delivered",
			logger.Int("sent", sent),
			logger.Int("held", held),
			logger.Int("failed", failed))
	}
	return nil
}

func (s *Sender) payload(r landing.Record) Payload {
	return Payload{
		Airport:      r.Airport,
		Registration: r.Registration,
		LandingTime:  time.Unix(r.Time, 0).UTC().Format(time.RFC3339),
		Probability:  r.Probability,
		CreatedBy:    s.cfg.CreatedBy,
	}
}
