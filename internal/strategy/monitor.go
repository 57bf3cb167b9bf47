package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	errs "nifty-strangler/internal/errors"
	"nifty-strangler/internal/logging"
	"nifty-strangler/internal/models"
	"nifty-strangler/internal/notify"
	"nifty-strangler/pkg/utils"
)

// Adjustment actions recorded in the audit trail.
const (
	ActionCloseAll    = "CLOSE_ALL"
	TriggerSpotMove   = "spot_move"
	triggerPremiumFmt = "premium_%.0f%%"
)

// MonitorPositions refreshes every open structure and applies the gamma
// defense. Overlapping calls return ErrTickInProgress without doing any
// work.
func (e *Engine) MonitorPositions(ctx context.Context) error {
	if !e.ticking.CompareAndSwap(false, true) {
		e.logger.Debug().Msg("Monitor tick skipped, previous tick still running")
		return errs.ErrTickInProgress
	}
	defer e.ticking.Store(false)

	ctx, logger := e.newTick(ctx)
	return e.monitor(ctx, logger)
}

// Tick is the scheduled heartbeat: refresh the trend, monitor open
// structures, then try a new entry. It shares the monitor's reentrancy
// guard.
func (e *Engine) Tick(ctx context.Context) error {
	if !e.ticking.CompareAndSwap(false, true) {
		e.logger.Debug().Msg("Tick skipped, previous tick still running")
		return errs.ErrTickInProgress
	}
	defer e.ticking.Store(false)

	ctx, logger := e.newTick(ctx)

	if err := e.RefreshTrend(ctx); err != nil {
		logger.Warn().Err(err).Msg("Trend refresh failed")
	}

	if err := e.monitor(ctx, logger); err != nil {
		return err
	}

	if e.Mode() != ModeRunning {
		return nil
	}
	strategy := models.StrategyGammaStrangle
	if utils.IsExpiryDay(e.now(), e.expiryWeekday) {
		strategy = models.StrategyExpiry
	}
	e.OpenPosition(ctx, strategy)
	return nil
}

func (e *Engine) newTick(ctx context.Context) (context.Context, zerolog.Logger) {
	return logging.WithTickID(ctx, e.logger, uuid.NewString())
}

func (e *Engine) monitor(ctx context.Context, logger zerolog.Logger) error {
	spot, err := e.fetchSpot(ctx)
	if err == nil && spot <= 0 {
		err = errs.ErrNoSpot
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Spot unavailable, tick skipped")
		return errs.Wrap(err, "monitor tick skipped")
	}

	e.mu.Lock()
	e.spot = spot
	ids := e.openIDsLocked()
	e.mu.Unlock()

	for _, id := range ids {
		e.monitorOne(ctx, logger, id, spot)
	}
	return nil
}

// monitorOne runs one structure's tick under the ledger lock. A panic is
// contained to this structure.
func (e *Engine) monitorOne(ctx context.Context, logger zerolog.Logger, id int64, spot float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	logger = logging.WithTradeID(logger, id)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while monitoring trade %d: %v", id, r)
			logger.Error().Err(err).Msg("Structure monitor failed")
			e.notify(notify.ErrorAlert(err, "monitor"))
		}
	}()

	s, ok := e.ledger[id]
	if !ok {
		return
	}

	now := e.now()
	expiry := e.gateway.NearestWeeklyExpiry(now)
	T := e.timeToExpiry(expiry, now)

	e.refreshLegsLocked(ctx, s, spot, T)
	pnl := s.MTM()

	update := models.TradeUpdate{
		UnrealizedPnL: &pnl,
		Legs:          models.SnapshotLegs(s.Legs),
	}
	if err := e.store.UpdateTrade(ctx, id, update); err != nil {
		logger.Error().Err(err).Msg("Failed to persist marks")
	}

	logger.Debug().
		Float64("spot", spot).
		Float64("mtm", pnl).
		Int("adjustments", s.AdjustmentCount).
		Msg("Structure marked")

	if e.defendLocked(ctx, logger, s, spot, pnl, now, T, expiry) {
		if _, open := e.ledger[id]; !open {
			return
		}
		pnl = s.MTM()
	}
	e.checkExpiryTargetsLocked(ctx, s, pnl)
}

// refreshLegsLocked fetches every leg's price concurrently, then applies
// the prices and recomputes Greeks from the implied volatility.
func (e *Engine) refreshLegsLocked(ctx context.Context, s *models.Structure, spot, T float64) {
	prices := make([]float64, len(s.Legs))

	g, gctx := errgroup.WithContext(ctx)
	limit := e.cfg.Gateway.QuoteConcurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)
	for i, l := range s.Legs {
		i, l := i, l
		g.Go(func() error {
			prices[i] = e.quote(gctx, l.Symbol, spot, l.Strike, T, l.OptionType)
			return nil
		})
	}
	_ = g.Wait()

	for i, l := range s.Legs {
		px := prices[i]
		if px <= 0 {
			continue
		}
		l.CurrentPrice = px
		iv := e.model.ImpliedVol(px, spot, l.Strike, T, l.OptionType)
		l.Greeks = e.model.Greeks(spot, l.Strike, T, iv, l.OptionType)
	}
}

// defendLocked applies the first matching defense level, checked from the
// most severe down. It reports whether anything was done.
func (e *Engine) defendLocked(ctx context.Context, logger zerolog.Logger, s *models.Structure, spot, pnl float64, now time.Time, T float64, expiry models.Expiry) bool {
	gc := e.cfg.Gamma
	move := math.Abs(spot-s.EntrySpot) / s.EntrySpot
	elapsed := now.Sub(s.EntryTime)

	// Level 3: fast large move, flatten everything.
	if move >= gc.L3SpotMove && elapsed <= gc.L3TimeWindow {
		reason := fmt.Sprintf("%.2f%% move in %.0fm", move*100, elapsed.Minutes())
		e.recordAdjustmentLocked(ctx, logger, s, 3, ActionCloseAll, reason, spot, pnl, now)
		e.closeLocked(ctx, s.TradeID, models.ReasonGammaL3)
		return true
	}

	// Level 2: a short leg has gone too far in the money. One roll per tick.
	for _, l := range s.ShortCoreLegs() {
		d := math.Abs(l.Greeks.Delta) * 100
		if d <= gc.L2DeltaLimit {
			continue
		}
		action := fmt.Sprintf("Roll %s %d to new %.0f-delta", l.OptionType, l.Strike, e.cfg.Strategy.RollDeltaTarget*100)
		reason := fmt.Sprintf("Delta %.1f > %.0f", d, gc.L2DeltaLimit)
		e.recordAdjustmentLocked(ctx, logger, s, 2, action, reason, spot, pnl, now)
		e.rollLegLocked(ctx, logger, s, l, spot, T, expiry, now)
		return true
	}

	// Level 1: roll the untested side in.
	var premiumChange float64
	if s.PremiumCollected != 0 {
		premiumChange = math.Abs(pnl) / math.Abs(s.PremiumCollected)
	}
	if move < gc.L1SpotMove && premiumChange < gc.L1PremiumPct {
		return false
	}

	untested := untestedLeg(s, spot)
	if untested == nil {
		return false
	}
	trigger := TriggerSpotMove
	if move < gc.L1SpotMove {
		trigger = fmt.Sprintf(triggerPremiumFmt, premiumChange*100)
	}
	action := fmt.Sprintf("Roll untested %s %d to new %.0f-delta", untested.OptionType, untested.Strike, e.cfg.Strategy.RollDeltaTarget*100)
	e.recordAdjustmentLocked(ctx, logger, s, 1, action, trigger, spot, pnl, now)
	e.rollLegLocked(ctx, logger, s, untested, spot, T, expiry, now)
	return true
}

// untestedLeg returns the short core leg whose strike is farthest from
// spot. The first leg wins a tie.
func untestedLeg(s *models.Structure, spot float64) *models.Leg {
	var best *models.Leg
	bestDist := -1.0
	for _, l := range s.ShortCoreLegs() {
		dist := math.Abs(float64(l.Strike) - spot)
		if dist > bestDist {
			best, bestDist = l, dist
		}
	}
	return best
}

func (e *Engine) recordAdjustmentLocked(ctx context.Context, logger zerolog.Logger, s *models.Structure, level int, action, reason string, spot, pnl float64, now time.Time) {
	rec := &models.AdjustmentRecord{
		TradeID:   s.TradeID,
		Level:     level,
		Action:    action,
		Reason:    reason,
		Spot:      spot,
		PnL:       pnl,
		Timestamp: now,
	}
	if _, err := e.store.InsertAdjustment(ctx, rec); err != nil {
		logger.Error().Err(err).Int("level", level).Msg("Failed to record adjustment")
	}
	s.AdjustmentLevel = level

	logging.LogAdjustment(logger, s.TradeID, level, action, reason, spot)
	e.notify(notify.AdjustmentAlert(s.TradeID, level, action, reason))
}

// rollLegLocked replaces old with a fresh SELL leg of the same type at the
// roll delta. The replaced leg's P&L stays folded into the structure MTM.
func (e *Engine) rollLegLocked(ctx context.Context, logger zerolog.Logger, s *models.Structure, old *models.Leg, spot, T float64, expiry models.Expiry, now time.Time) {
	strike := e.selector.FindStrikeByDelta(spot, T, e.cfg.Strategy.RollDeltaTarget, old.OptionType)
	symbol := e.gateway.BuildOptionSymbol(strike, old.OptionType, expiry)
	px := e.quote(ctx, symbol, spot, strike, T, old.OptionType)
	g := e.model.DefaultGreeks(spot, strike, T, old.OptionType)

	leg := models.NewLeg(symbol, strike, old.OptionType, models.OrderSideSell, px, old.Quantity, g, false, now)
	if !s.ReplaceLeg(old, leg) {
		logger.Error().Str("symbol", old.Symbol).Msg("Leg to roll not found in structure")
		return
	}
	s.AdjustmentCount++

	mtm := s.MTM()
	level, count := s.AdjustmentLevel, s.AdjustmentCount
	update := models.TradeUpdate{
		UnrealizedPnL:   &mtm,
		AdjustmentLevel: &level,
		AdjustmentCount: &count,
		Legs:            models.SnapshotLegs(s.Legs),
	}
	if err := e.store.UpdateTrade(ctx, s.TradeID, update); err != nil {
		logger.Error().Err(err).Msg("Failed to persist roll")
	}

	logger.Info().
		Str("from", old.Symbol).
		Str("to", symbol).
		Float64("price", px).
		Int("adjustment_count", count).
		Msg("Leg rolled")
}

// checkExpiryTargetsLocked closes an expiry-day structure at its profit
// target or stop.
func (e *Engine) checkExpiryTargetsLocked(ctx context.Context, s *models.Structure, pnl float64) bool {
	if s.StrategyType != models.StrategyExpiry || s.PremiumCollected <= 0 {
		return false
	}
	sc := e.cfg.Strategy
	switch {
	case pnl >= s.PremiumCollected*sc.ExpiryTargetPct:
		e.closeLocked(ctx, s.TradeID, models.ReasonTargetHit)
		return true
	case pnl <= -s.PremiumCollected*sc.ExpiryStopMult:
		e.closeLocked(ctx, s.TradeID, models.ReasonStopLoss)
		return true
	}
	return false
}
