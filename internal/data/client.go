package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dahamkakooza/agrogram-gateway/internal/config"
)

// Client talks to the marketplace backend API over HTTP. A circuit breaker
// sits in front of every call: once the backend is known-dead the breaker
// trips and calls fail immediately instead of burning the USSD latency
// budget waiting on the timeout.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewClient(cfg config.DataConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout.Std(),
		http:    &http.Client{},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "marketplace-api",
			Timeout: 15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("data gateway breaker state change", "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (c *Client) LatestPrice(ctx context.Context, crop, region string) (*PriceQuote, error) {
	q := url.Values{"crop": {crop}}
	if region != "" {
		q.Set("region", region)
	}
	var quote PriceQuote
	if err := c.get(ctx, "/marketplace/prices/latest", q, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

func (c *Client) Weather(ctx context.Context, region string) (*WeatherReport, error) {
	var report WeatherReport
	if err := c.get(ctx, "/recommendations/weather", url.Values{"region": {region}}, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *Client) Tip(ctx context.Context, crop string) (*Tip, error) {
	var tip Tip
	if err := c.get(ctx, "/recommendations/tips", url.Values{"crop": {crop}}, &tip); err != nil {
		return nil, err
	}
	return &tip, nil
}

func (c *Client) Balance(ctx context.Context, phone string) (*Balance, error) {
	var bal Balance
	if err := c.get(ctx, "/users/balance", url.Values{"phone": {phone}}, &bal); err != nil {
		return nil, err
	}
	return &bal, nil
}

func (c *Client) RecordCommand(ctx context.Context, rec CommandRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal command record: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/marketplace/commands", nil, bytes.NewReader(body), nil)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, method, path, query, body, out)
	})
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body io.Reader, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
