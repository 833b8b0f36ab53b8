// Package data is the gateway's only contact point with the marketplace
// backend. Every call is read-only (plus best-effort command analytics),
// bounded by a timeout, and collapses any failure into ErrUnavailable so
// callers always have a fallback path.
package data

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable reports that the marketplace backend could not answer in
// time. Callers must degrade to static fallback text, never surface it.
var ErrUnavailable = errors.New("data gateway unavailable")

// PriceQuote is the latest recorded market price for a crop in a region.
type PriceQuote struct {
	Crop       string    `json:"crop"`
	Region     string    `json:"region"`
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	Unit       string    `json:"unit"`
	RecordedAt time.Time `json:"recordedAt"`
}

// WeatherReport is a short-form forecast for a region.
type WeatherReport struct {
	Region  string `json:"region"`
	Summary string `json:"summary"`
	TempC   int    `json:"tempC"`
}

// Tip is a single farming tip for a crop.
type Tip struct {
	Crop string `json:"crop"`
	Text string `json:"text"`
}

// Balance is a farmer's marketplace account balance.
type Balance struct {
	Phone    string  `json:"phone"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// CommandRecord captures one handled SMS command for usage analytics.
type CommandRecord struct {
	Keyword    string    `json:"keyword"`
	Args       []string  `json:"args"`
	Origin     string    `json:"origin"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Gateway is the boundary to the marketplace/ML services.
type Gateway interface {
	LatestPrice(ctx context.Context, crop, region string) (*PriceQuote, error)
	Weather(ctx context.Context, region string) (*WeatherReport, error)
	Tip(ctx context.Context, crop string) (*Tip, error)
	Balance(ctx context.Context, phone string) (*Balance, error)

	// RecordCommand is fire-and-forget; failures are logged, never surfaced.
	RecordCommand(ctx context.Context, rec CommandRecord) error
}
