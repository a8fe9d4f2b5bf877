package feeds

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/yegors/landing-tracker/internal/config"
	"github.com/yegors/landing-tracker/pkg/logger"
)

// StatusError is returned for non-2xx responses
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.Code, e.URL)
}

// IsStatus reports whether err is a StatusError with the given code
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Client fetches JSON from an external source with rate limiting and authentication
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	auth       config.AuthConfig
	logger     *logger.Logger
}

// NewClient creates a client allowing requestsPerSecond requests (burst of 1)
func NewClient(timeout time.Duration, requestsPerSecond float64, auth config.AuthConfig, log *logger.Logger) *Client {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		auth:       auth,
		logger:     log.Named("http"),
	}
}

// GetJSON fetches rawURL with the query parameters and decodes the body into out.
// An empty body leaves out untouched.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, out any, headers ...string) error {
	if len(query) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("failed to parse url: %w", err)
		}
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		rawURL = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out, headers)
}

// PostJSON sends body as JSON and decodes the response into out when out is not nil
func (c *Client) PostJSON(ctx context.Context, rawURL string, body any, out any, headers ...string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out, headers)
}

// do applies extra headers given as name/value pairs, then the configured auth
// unless the caller already set Authorization
func (c *Client) do(req *http.Request, out any, headers []string) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	if req.Header.Get("Authorization") == "" {
		c.authorize(req)
	}

	c.logger.Debug("Request",
		logger.String("method", req.Method),
		logger.String("url", req.URL.Redacted()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, URL: req.URL.Redacted()}
	}

	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	switch c.auth.Type {
	case "basic":
		req.SetBasicAuth(c.auth.Username, c.auth.Password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+c.auth.Token)
	case "api_key":
		req.Header.Set(c.auth.Header, c.auth.Key)
	}
}
