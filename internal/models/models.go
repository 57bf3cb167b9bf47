// Package models provides domain models for the strangle engine.
package models

import (
	"time"
)

// Exchange represents a stock exchange segment.
type Exchange string

const (
	NSE Exchange = "NSE"
	NFO Exchange = "NFO" // F&O
)

// OrderSide represents the side of an order or leg.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Sign returns +1 for BUY and -1 for SELL.
func (s OrderSide) Sign() float64 {
	if s == OrderSideSell {
		return -1
	}
	return 1
}

// MarketStatus represents the current market status.
type MarketStatus string

const (
	MarketOpen    MarketStatus = "OPEN"
	MarketPreOpen MarketStatus = "PRE_OPEN"
	MarketClosed  MarketStatus = "CLOSED"
)

// Candle represents OHLCV data for a time period. Candles are never
// mutated after creation.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// TrendDirection is the Supertrend direction.
type TrendDirection string

const (
	TrendBullish TrendDirection = "BULLISH"
	TrendBearish TrendDirection = "BEARISH"
	TrendUnknown TrendDirection = "UNKNOWN"
)
