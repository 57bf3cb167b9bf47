package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"nifty-strangler/internal/logging"
	"nifty-strangler/internal/models"
	"nifty-strangler/internal/notify"
	"nifty-strangler/internal/pricing"
	"nifty-strangler/pkg/utils"
)

// CheckEntry reports whether a new structure may be opened now and, when
// not, the first rule that refused it.
func (e *Engine) CheckEntry(ctx context.Context) (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkEntryLocked(ctx)
}

func (e *Engine) checkEntryLocked(ctx context.Context) (bool, string) {
	if e.Mode() != ModeRunning {
		return false, fmt.Sprintf("engine is %s", e.Mode())
	}

	now := e.now()
	if !utils.InWindow(now, e.sessionStart, e.sessionEnd) {
		return false, fmt.Sprintf("outside session window %s-%s", e.sessionStart, e.sessionEnd)
	}

	e.rolloverLocked(ctx, now)

	if e.tradesToday >= e.cfg.Trading.MaxTradesPerDay {
		return false, fmt.Sprintf("max trades reached (%d)", e.tradesToday)
	}

	budget := e.cfg.RiskBudget()
	if e.dailyPnL <= -budget {
		return false, fmt.Sprintf("daily loss limit hit (%.2f <= -%.2f)", e.dailyPnL, budget)
	}

	if e.trend == models.TrendUnknown {
		return false, "trend unknown"
	}

	if len(e.ledger) >= e.capacity() {
		return false, fmt.Sprintf("%d structure(s) already open", len(e.ledger))
	}

	return true, ""
}

func (e *Engine) capacity() int {
	if e.cfg.Trading.MaxOpenStructures > 0 {
		return e.cfg.Trading.MaxOpenStructures
	}
	return 1
}

// rolloverLocked reloads the trade counter from the store when the trade
// date changes. Daily P&L is left as is.
func (e *Engine) rolloverLocked(ctx context.Context, now time.Time) {
	today := utils.TradeDate(now)
	if e.tradeDate.Equal(today) {
		return
	}

	count, err := e.store.GetTradeCountToday(ctx, now)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to load today's trade count")
		count = 0
	}
	e.tradeDate = today
	e.tradesToday = count
	e.logger.Info().
		Time("trade_date", today).
		Int("trades_today", count).
		Msg("Trading day rolled over")
}

// legSpec describes one leg to open.
type legSpec struct {
	strike int
	typ    models.OptionType
	side   models.OrderSide
	hedge  bool
}

// strikesFor picks the four strikes for a new structure.
func (e *Engine) strikesFor(strategy models.StrategyType, spot, T float64, now time.Time) []legSpec {
	var ce, pe, ceHedge, peHedge int

	if strategy == models.StrategyExpiry && utils.MinutesOf(now) > e.expiryCutoff.Minutes() {
		atm := e.selector.ATM(spot)
		offset := e.cfg.Strategy.ExpiryOTMOffset
		hedge := e.cfg.Strategy.ExpiryHedgeOffset
		ce, pe = atm+offset, atm-offset
		ceHedge, peHedge = ce+hedge, pe-hedge
	} else {
		sc := e.cfg.Strategy
		ce = e.selector.FindStrikeByDelta(spot, T, sc.CEDeltaTarget, models.OptionCall)
		pe = e.selector.FindStrikeByDelta(spot, T, sc.PEDeltaTarget, models.OptionPut)
		ceHedge = e.selector.FindStrikeByDelta(spot, T, sc.HedgeDeltaTarget, models.OptionCall)
		peHedge = e.selector.FindStrikeByDelta(spot, T, sc.HedgeDeltaTarget, models.OptionPut)
	}

	return []legSpec{
		{strike: ce, typ: models.OptionCall, side: models.OrderSideSell},
		{strike: pe, typ: models.OptionPut, side: models.OrderSideSell},
		{strike: ceHedge, typ: models.OptionCall, side: models.OrderSideBuy, hedge: true},
		{strike: peHedge, typ: models.OptionPut, side: models.OrderSideBuy, hedge: true},
	}
}

// OpenPosition builds and records a four-leg structure. It returns the new
// trade id, or false when the gate, the risk check or persistence refused
// it. Nothing is added to the ledger unless all four legs are priced and
// the trade row is written.
func (e *Engine) OpenPosition(ctx context.Context, strategy models.StrategyType) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.openLocked(ctx, strategy)
}

func (e *Engine) openLocked(ctx context.Context, strategy models.StrategyType) (int64, bool) {
	logger := logging.WithOperation(e.logger, "open_position")

	if ok, reason := e.checkEntryLocked(ctx); !ok {
		logger.Info().Str("reason", reason).Msg("Entry gate closed")
		return 0, false
	}

	spot, err := e.fetchSpot(ctx)
	if err != nil || spot <= 0 {
		logger.Warn().Err(err).Msg("No spot price, skipping entry")
		return 0, false
	}
	e.spot = spot

	now := e.now()
	expiry := e.gateway.NearestWeeklyExpiry(now)
	T := e.timeToExpiry(expiry, now)
	qty := e.cfg.Quantity()

	specs := e.strikesFor(strategy, spot, T, now)
	legs := make([]*models.Leg, 0, len(specs))
	for _, sp := range specs {
		symbol := e.gateway.BuildOptionSymbol(sp.strike, sp.typ, expiry)
		px := e.quote(ctx, symbol, spot, sp.strike, T, sp.typ)
		g := e.model.DefaultGreeks(spot, sp.strike, T, sp.typ)
		legs = append(legs, models.NewLeg(symbol, sp.strike, sp.typ, sp.side, px, qty, g, sp.hedge, now))
	}
	if len(legs) != 4 {
		return 0, false
	}

	ce, pe, ceHedge, peHedge := legs[0].EntryPrice, legs[1].EntryPrice, legs[2].EntryPrice, legs[3].EntryPrice
	premium := (ce + pe - ceHedge - peHedge) * float64(qty)

	risk := math.Max(ce, pe) * float64(qty)
	budget := e.cfg.RiskBudget()
	if risk > budget {
		logger.Warn().
			Float64("risk", risk).
			Float64("budget", budget).
			Msg("Estimated loss exceeds risk budget, entry refused")
		return 0, false
	}

	snapshot := models.SnapshotLegs(legs)
	record := &models.TradeRecord{
		TradeDate:        utils.TradeDate(now),
		EntryTime:        now,
		StrategyType:     strategy,
		EntrySpot:        spot,
		Quantity:         qty,
		PremiumCollected: premium,
		Status:           models.TradeOpen,
		NetDelta:         netDelta(legs),
		GammaScore:       pricing.GammaRiskScore(snapshot, spot),
		Legs:             snapshot,
	}
	id, err := e.store.InsertTrade(ctx, record)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to persist trade, entry abandoned")
		e.notify(notify.ErrorAlert(err, "open_position"))
		return 0, false
	}

	s := &models.Structure{
		TradeID:          id,
		StrategyType:     strategy,
		Legs:             legs,
		EntrySpot:        spot,
		EntryTime:        now,
		PremiumCollected: premium,
		Status:           models.TradeOpen,
	}
	e.ledger[id] = s
	e.tradesToday++

	strikes := make([]int, len(legs))
	for i, l := range legs {
		strikes[i] = l.Strike
	}
	logging.LogEntry(logger, id, string(strategy), spot, premium, strikes)
	e.notify(notify.EntryAlert(s, risk))

	return id, true
}

func netDelta(legs []*models.Leg) float64 {
	var total float64
	for _, l := range legs {
		total += l.DeltaExposure()
	}
	return total
}
