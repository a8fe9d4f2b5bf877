package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/yegors/landing-tracker/internal/config"
	"github.com/yegors/landing-tracker/internal/landing"
	"github.com/yegors/landing-tracker/pkg/logger"
)

const (
	telemetryCursorKey  = "telemetry_cursor"
	telemetryTimeFormat = "2006-01-02T15:04:05"
	maxMessagesPerCycle = 500
)

// TelemetryStore is what the telemetry poller writes to
type TelemetryStore interface {
	WaitWritable(ctx context.Context) error
	InsertTelemetry(ctx context.Context, m landing.Telemetry) (bool, error)
	State(ctx context.Context, name string) (string, bool, error)
	SetState(ctx context.Context, name, value string) error
}

// TokenSource logs in to the message source and caches the bearer token until
// shortly before it expires
type TokenSource struct {
	client   *Client
	url      string
	username string
	password string
	now      func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewTokenSource creates a token source for the login endpoint
func NewTokenSource(client *Client, tokenURL, username, password string) *TokenSource {
	return &TokenSource{
		client:   client,
		url:      tokenURL,
		username: username,
		password: password,
		now:      time.Now,
	}
}

// Token returns a valid token, logging in again when the cached one is stale
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expiry) {
		return s.token, nil
	}

	var resp struct {
		Document struct {
			AccessToken string      `json:"access_token"`
			ExpiresIn   json.Number `json:"expires_in"`
		} `json:"document"`
	}
	body := map[string]string{"username": s.username, "password": s.password}
	if err := s.client.PostJSON(ctx, s.url, body, &resp); err != nil {
		return "", fmt.Errorf("failed to request token: %w", err)
	}
	if resp.Document.AccessToken == "" {
		return "", fmt.Errorf("token response did not contain access_token")
	}

	s.token = resp.Document.AccessToken
	s.expiry = s.expiryFrom(resp.Document.ExpiresIn)
	return s.token, nil
}

// Invalidate drops the cached token
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// expiryFrom reads expires_in as an absolute unix time or, when small, as
// seconds from now. A 30 second margin is kept.
func (s *TokenSource) expiryFrom(v json.Number) time.Time {
	now := s.now()
	n, err := v.Int64()
	switch {
	case err != nil || n <= 0:
		return now.Add(29 * time.Minute)
	case n > 1_000_000_000:
		return time.Unix(n, 0).Add(-30 * time.Second)
	default:
		return now.Add(time.Duration(n)*time.Second - 30*time.Second)
	}
}

// telemetryPayload is a movement message as the source serves it
type telemetryPayload struct {
	Document struct {
		FlightDate string `json:"FLIGHTDATE"`
		Arrival    string `json:"TARR"`
		Callsign   string `json:"CALLSIGN"`
		Airport    string `json:"AARR"`
	} `json:"document"`
}

// TelemetryPoller reads movement messages one id at a time, starting after the
// last id it stored
type TelemetryPoller struct {
	cfg      config.TelemetryConfig
	client   *Client
	tokens   *TokenSource
	airports landing.Airports
	seen     *lru.Cache[int64, struct{}]
	store    TelemetryStore
	logger   *logger.Logger
}

// NewTelemetryPoller creates the telemetry poller
func NewTelemetryPoller(cfg config.TelemetryConfig, airports landing.Airports, store TelemetryStore, log *logger.Logger) (*TelemetryPoller, error) {
	seen, err := lru.New[int64, struct{}](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry cache: %w", err)
	}
	pollerLogger := log.Named("telemetry")
	client := NewClient(config.Seconds(cfg.TimeoutSecs), 0, config.AuthConfig{}, pollerLogger)
	return &TelemetryPoller{
		cfg:      cfg,
		client:   client,
		tokens:   NewTokenSource(client, cfg.TokenURL, cfg.Username, cfg.Password),
		airports: airports,
		seen:     seen,
		store:    store,
		logger:   pollerLogger,
	}, nil
}

// Name identifies the poller
func (p *TelemetryPoller) Name() string { return "telemetry" }

// RunCycle reads every message published since the last cycle
func (p *TelemetryPoller) RunCycle(ctx context.Context) error {
	cursor, err := p.cursor(ctx)
	if err != nil {
		return err
	}

	token, err := p.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var messages []landing.Telemetry
	start := cursor
	for cursor-start < maxMessagesPerCycle {
		var payload telemetryPayload
		query := url.Values{"id": {strconv.FormatInt(cursor, 10)}}
		err := p.client.GetJSON(ctx, p.cfg.URL, query, &payload, "Authorization", "Bearer "+token)
		if IsStatus(err, http.StatusUnauthorized) {
			p.tokens.Invalidate()
			return fmt.Errorf("telemetry token rejected: %w", err)
		}
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) {
				// No message at this id yet
				break
			}
			return fmt.Errorf("failed to fetch message %d: %w", cursor, err)
		}

		m, err := parseTelemetry(cursor, payload)
		switch {
		case err != nil:
			p.logger.Warn("Skipping unreadable message", logger.Int64("message_id", cursor), logger.Error(err))
		case !p.airports.Known(m.Airport):
			p.logger.Debug("Skipping message for unknown airport",
				logger.Int64("message_id", cursor),
				logger.String("airport", m.Airport))
		case p.seen.Contains(m.MessageID):
		default:
			messages = append(messages, m)
		}
		cursor++
	}

	if cursor == start {
		return nil
	}

	if err := p.store.WaitWritable(ctx); err != nil {
		return err
	}
	for _, m := range messages {
		if _, err := p.store.InsertTelemetry(ctx, m); err != nil {
			return fmt.Errorf("failed to store message %d: %w", m.MessageID, err)
		}
		p.seen.Add(m.MessageID, struct{}{})
	}
	if err := p.store.SetState(ctx, telemetryCursorKey, strconv.FormatInt(cursor, 10)); err != nil {
		return err
	}

	p.logger.Info("Telemetry polled",
		logger.Int64("read", cursor-start),
		logger.Int("stored", len(messages)),
		logger.Int64("next_id", cursor))
	return nil
}

func (p *TelemetryPoller) cursor(ctx context.Context) (int64, error) {
	value, ok, err := p.store.State(ctx, telemetryCursorKey)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telemetry cursor %q: %w", value, err)
	}
	return n, nil
}

// parseTelemetry reads the arrival time as UTC FLIGHTDATE and TARR
func parseTelemetry(id int64, payload telemetryPayload) (landing.Telemetry, error) {
	doc := payload.Document
	reg := landing.NormalizeRegistration(doc.Callsign)
	if reg == "" {
		return landing.Telemetry{}, fmt.Errorf("message has no callsign")
	}
	at, err := time.Parse(telemetryTimeFormat, strings.TrimSpace(doc.FlightDate)+"T"+strings.TrimSpace(doc.Arrival))
	if err != nil {
		return landing.Telemetry{}, fmt.Errorf("invalid arrival time: %w", err)
	}
	return landing.Telemetry{
		MessageID:    id,
		Registration: reg,
		Airport:      landing.NormalizeAirport(doc.Airport),
		Time:         at.Unix(),
	}, nil
}
