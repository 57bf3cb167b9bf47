package strategy

import (
	"context"
	"time"

	"nifty-strangler/internal/broker"
	errs "nifty-strangler/internal/errors"
	"nifty-strangler/internal/models"
)

// RefreshTrend recomputes the Supertrend direction and VWAP from recent
// index candles. On failure the previous values are kept.
func (e *Engine) RefreshTrend(ctx context.Context) error {
	now := e.now()
	lookback := e.cfg.Strategy.CandleLookbackDays
	if lookback <= 0 {
		lookback = 5
	}
	req := broker.CandleRequest{
		Interval: e.cfg.Strategy.CandleInterval,
		From:     now.AddDate(0, 0, -lookback),
		To:       now,
	}

	c, cancel := e.callCtx(ctx)
	candles, err := e.gateway.Candles(c, req)
	cancel()
	if err != nil {
		return errs.Wrap(err, "fetching candles")
	}

	point, err := e.trendInd.Latest(candles)
	if err != nil {
		return errs.NewDataError("supertrend", "", "calculation failed", err)
	}
	vwap, err := e.vwapInd.Latest(candles)
	if err != nil {
		return errs.NewDataError("vwap", "", "calculation failed", err)
	}

	e.mu.Lock()
	prev := e.trend
	e.trend = point.Direction
	e.vwap = vwap
	e.trendUpdated = now
	e.mu.Unlock()

	if prev != point.Direction {
		e.logger.Info().
			Str("from", string(prev)).
			Str("to", string(point.Direction)).
			Float64("supertrend", point.Value).
			Float64("vwap", vwap).
			Msg("Trend changed")
	}
	return nil
}

// Trend returns the last computed direction, VWAP and when they were
// computed.
func (e *Engine) Trend() (models.TrendDirection, float64, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trend, e.vwap, e.trendUpdated
}
