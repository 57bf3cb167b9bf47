package strategy

import (
	"context"
	"math"
	"time"

	"nifty-strangler/internal/logging"
	"nifty-strangler/internal/models"
	"nifty-strangler/internal/notify"
	"nifty-strangler/internal/pricing"
	"nifty-strangler/pkg/utils"
)

// ClosePosition closes one structure at its last marks and returns the
// realized P&L. An unknown id is a no-op returning 0.
func (e *Engine) ClosePosition(ctx context.Context, id int64, reason string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeLocked(ctx, id, reason)
}

// CloseAll closes every open structure and returns the total realized P&L.
func (e *Engine) CloseAll(ctx context.Context, reason string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeAllLocked(ctx, reason)
}

func (e *Engine) closeAllLocked(ctx context.Context, reason string) float64 {
	var total float64
	for _, id := range e.openIDsLocked() {
		total += e.closeLocked(ctx, id, reason)
	}
	return total
}

func (e *Engine) closeLocked(ctx context.Context, id int64, reason string) float64 {
	s, ok := e.ledger[id]
	if !ok {
		return 0
	}

	now := e.now()
	pnl := s.MTM()
	s.Status = models.TradeClosed
	s.CloseReason = reason
	delete(e.ledger, id)
	e.dailyPnL += pnl

	status := models.TradeClosed
	var unrealized float64
	update := models.TradeUpdate{
		ExitTime:      &now,
		RealizedPnL:   &pnl,
		UnrealizedPnL: &unrealized,
		Status:        &status,
		CloseReason:   &reason,
		Legs:          models.SnapshotLegs(s.Legs),
	}
	logger := logging.WithTradeID(e.logger, id)
	if err := e.store.UpdateTrade(ctx, id, update); err != nil {
		logger.Error().Err(err).Msg("Failed to persist close")
	}

	logging.LogExit(logger, id, reason, pnl)
	e.notify(notify.ExitAlert(id, pnl, e.cfg.Trading.Capital, reason))
	return pnl
}

// ResetDay closes everything with DAY_RESET and zeroes the daily counters.
// The next entry gate reloads today's trade count from the store.
func (e *Engine) ResetDay(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	closed := len(e.ledger)
	e.closeAllLocked(ctx, models.ReasonDayReset)
	e.ledger = make(map[int64]*models.Structure)
	e.tradesToday = 0
	e.dailyPnL = 0
	e.tradeDate = time.Time{}

	e.logger.Info().Int("closed", closed).Msg("Day reset")
}

// NetDelta returns the summed delta exposure of every open leg.
func (e *Engine) NetDelta() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.netDeltaLocked()
}

func (e *Engine) netDeltaLocked() float64 {
	var total float64
	for _, s := range e.ledger {
		total += netDelta(s.Legs)
	}
	return math.Round(total*1e4) / 1e4
}

// GammaRiskScore scores the open book at the last seen spot.
func (e *Engine) GammaRiskScore() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gammaScoreLocked()
}

func (e *Engine) gammaScoreLocked() float64 {
	var legs []models.Leg
	for _, id := range e.openIDsLocked() {
		legs = append(legs, models.SnapshotLegs(e.ledger[id].Legs)...)
	}
	return pricing.GammaRiskScore(legs, e.spot)
}

// MTM returns the combined mark-to-market of every open structure.
func (e *Engine) MTM() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mtmLocked()
}

func (e *Engine) mtmLocked() float64 {
	var total float64
	for _, s := range e.ledger {
		total += s.MTM()
	}
	return total
}

// TradeMTM returns one structure's mark-to-market, or 0 for an unknown id.
func (e *Engine) TradeMTM(id int64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.ledger[id]; ok {
		return s.MTM()
	}
	return 0
}

// Structure returns a copy of an open structure.
func (e *Engine) Structure(id int64) (models.Structure, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.ledger[id]
	if !ok {
		return models.Structure{}, false
	}
	return copyStructure(s), true
}

func copyStructure(s *models.Structure) models.Structure {
	c := *s
	c.Legs = make([]*models.Leg, len(s.Legs))
	for i, l := range s.Legs {
		leg := *l
		c.Legs[i] = &leg
	}
	return c
}

// EODSummary rolls up the closed trades of date, upserts the daily row and
// sends the report. Running it twice for a date leaves one row.
func (e *Engine) EODSummary(ctx context.Context, date time.Time) (models.DailySummary, error) {
	day := utils.TradeDate(date)
	trades, err := e.store.GetTradesForDate(ctx, day)
	if err != nil {
		return models.DailySummary{}, err
	}

	summary := models.DailySummary{
		TradeDate:   day,
		CapitalUsed: e.cfg.Trading.Capital,
	}
	first := true
	for _, t := range trades {
		if t.Status != models.TradeClosed {
			continue
		}
		summary.TotalTrades++
		summary.NetPnL += t.RealizedPnL
		if t.RealizedPnL > 0 {
			summary.WinningTrades++
		}
		if first || t.RealizedPnL < summary.MaxDrawdown {
			summary.MaxDrawdown = t.RealizedPnL
			first = false
		}
	}
	if summary.TotalTrades > 0 {
		summary.WinRate = float64(summary.WinningTrades) / float64(summary.TotalTrades) * 100
	}

	if err := e.store.UpsertDailySummary(ctx, summary); err != nil {
		return summary, err
	}

	e.logger.Info().
		Time("trade_date", day).
		Int("trades", summary.TotalTrades).
		Float64("net_pnl", summary.NetPnL).
		Float64("win_rate", summary.WinRate).
		Msg("End of day summary")
	e.notify(notify.EODReport(summary))
	return summary, nil
}
