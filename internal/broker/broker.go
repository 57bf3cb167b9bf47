// Package broker provides the market-data gateway contract and its
// implementations.
package broker

import (
	"context"
	"time"

	"nifty-strangler/internal/models"
)

// Gateway is the market-data source the engine trades against. Prices are
// only read; orders are never routed.
type Gateway interface {
	// SpotPrice returns the underlying index LTP.
	SpotPrice(ctx context.Context) (float64, error)
	// OptionQuote returns an option LTP. errors.ErrQuoteUnavailable tells
	// the caller to fall back to a theoretical price.
	OptionQuote(ctx context.Context, symbol string) (float64, error)
	// Candles returns index OHLCV bars, oldest first.
	Candles(ctx context.Context, req CandleRequest) ([]models.Candle, error)

	NearestWeeklyExpiry(now time.Time) models.Expiry
	BuildOptionSymbol(strike int, typ models.OptionType, expiry models.Expiry) string
}

// CandleRequest represents a request for historical index bars.
type CandleRequest struct {
	Interval string // Kite interval, e.g. "5minute"
	From     time.Time
	To       time.Time
}
