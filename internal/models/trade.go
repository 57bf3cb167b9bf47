package models

import "time"

// StrategyType identifies how a structure's strikes were chosen.
type StrategyType string

const (
	StrategyGammaStrangle StrategyType = "GAMMA_STRANGLE"
	StrategyExpiry        StrategyType = "EXPIRY"
)

// TradeStatus represents the lifecycle state of a structure.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "OPEN"
	TradeClosed TradeStatus = "CLOSED"
)

// Close reasons recorded on a structure.
const (
	ReasonManual      = "MANUAL"
	ReasonForceClose  = "FORCE_CLOSE"
	ReasonDayReset    = "DAY_RESET"
	ReasonStop        = "STOP"
	ReasonGammaL3     = "GAMMA_L3"
	ReasonTargetHit   = "TARGET_HIT"
	ReasonStopLoss    = "STOP_LOSS"
	ReasonManualClose = "MANUAL_CLOSE"
)

// Leg is one option contract within a structure. EntryPrice and Quantity
// are fixed at creation; CurrentPrice and Greeks are refreshed each tick.
type Leg struct {
	Symbol       string     `json:"symbol"`
	Strike       int        `json:"strike"`
	OptionType   OptionType `json:"option_type"`
	Side         OrderSide  `json:"side"`
	EntryPrice   float64    `json:"entry_price"`
	CurrentPrice float64    `json:"current_price"`
	Quantity     int        `json:"quantity"`
	Greeks       Greeks     `json:"greeks"`
	IsHedge      bool       `json:"is_hedge"`
	EntryTime    time.Time  `json:"entry_time"`
}

// NewLeg creates a leg marked at its entry price.
func NewLeg(symbol string, strike int, typ OptionType, side OrderSide, entry float64, qty int, g Greeks, hedge bool, at time.Time) *Leg {
	return &Leg{
		Symbol:       symbol,
		Strike:       strike,
		OptionType:   typ,
		Side:         side,
		EntryPrice:   entry,
		CurrentPrice: entry,
		Quantity:     qty,
		Greeks:       g,
		IsHedge:      hedge,
		EntryTime:    at,
	}
}

// PnL returns sign(side) * (current - entry) * quantity, so a SELL leg
// gains as its price falls.
func (l *Leg) PnL() float64 {
	return l.Side.Sign() * (l.CurrentPrice - l.EntryPrice) * float64(l.Quantity)
}

// DeltaExposure returns sign(side) * delta * quantity.
func (l *Leg) DeltaExposure() float64 {
	return l.Side.Sign() * l.Greeks.Delta * float64(l.Quantity)
}

// IsShortCore reports whether the leg is a non-hedge SELL leg.
func (l *Leg) IsShortCore() bool {
	return l.Side == OrderSideSell && !l.IsHedge
}

// Structure is the set of legs opened together under one trade id.
type Structure struct {
	TradeID          int64        `json:"trade_id"`
	StrategyType     StrategyType `json:"strategy_type"`
	Legs             []*Leg       `json:"legs"`
	EntrySpot        float64      `json:"entry_spot"`
	EntryTime        time.Time    `json:"entry_time"`
	AdjustmentCount  int          `json:"adjustment_count"`
	PremiumCollected float64      `json:"premium_collected"`
	Status           TradeStatus  `json:"status"`
	AdjustmentLevel  int          `json:"adjustment_level"`
	CloseReason      string       `json:"close_reason,omitempty"`
}

// MTM sums the P&L of every leg.
func (s *Structure) MTM() float64 {
	var total float64
	for _, l := range s.Legs {
		total += l.PnL()
	}
	return total
}

// ShortCoreLegs returns the non-hedge SELL legs in ledger order.
func (s *Structure) ShortCoreLegs() []*Leg {
	var out []*Leg
	for _, l := range s.Legs {
		if l.IsShortCore() {
			out = append(out, l)
		}
	}
	return out
}

// ReplaceLeg swaps old for replacement, keeping the other legs in order.
// It reports false when old is not part of the structure.
func (s *Structure) ReplaceLeg(old, replacement *Leg) bool {
	for i, l := range s.Legs {
		if l == old {
			legs := make([]*Leg, 0, len(s.Legs))
			legs = append(legs, s.Legs[:i]...)
			legs = append(legs, s.Legs[i+1:]...)
			s.Legs = append(legs, replacement)
			return true
		}
	}
	return false
}

// AdjustmentRecord is an append-only audit entry for one defense action.
type AdjustmentRecord struct {
	ID        int64     `json:"id"`
	TradeID   int64     `json:"trade_id"`
	Level     int       `json:"level"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason"`
	Spot      float64   `json:"spot_at_adjustment"`
	PnL       float64   `json:"pnl_at_adjustment"`
	Timestamp time.Time `json:"timestamp"`
}

// TradeRecord is the persisted mirror of a structure.
type TradeRecord struct {
	ID               int64        `json:"id"`
	TradeDate        time.Time    `json:"trade_date"`
	EntryTime        time.Time    `json:"entry_time"`
	ExitTime         *time.Time   `json:"exit_time,omitempty"`
	StrategyType     StrategyType `json:"strategy_type"`
	EntrySpot        float64      `json:"entry_spot"`
	Quantity         int          `json:"quantity"`
	PremiumCollected float64      `json:"premium_collected"`
	RealizedPnL      float64      `json:"realized_pnl"`
	UnrealizedPnL    float64      `json:"unrealized_pnl"`
	Status           TradeStatus  `json:"status"`
	CloseReason      string       `json:"close_reason,omitempty"`
	AdjustmentLevel  int          `json:"adjustment_level"`
	AdjustmentCount  int          `json:"adjustment_count"`
	NetDelta         float64      `json:"net_delta"`
	GammaScore       float64      `json:"gamma_score"`
	Legs             []Leg        `json:"legs"`
}

// TradeUpdate carries the fields of a partial trade update. Nil fields are
// left untouched.
type TradeUpdate struct {
	ExitTime        *time.Time
	RealizedPnL     *float64
	UnrealizedPnL   *float64
	Status          *TradeStatus
	CloseReason     *string
	AdjustmentLevel *int
	AdjustmentCount *int
	Legs            []Leg
}

// IsEmpty reports whether the update changes nothing.
func (u TradeUpdate) IsEmpty() bool {
	return u.ExitTime == nil && u.RealizedPnL == nil && u.UnrealizedPnL == nil &&
		u.Status == nil && u.CloseReason == nil && u.AdjustmentLevel == nil &&
		u.AdjustmentCount == nil && u.Legs == nil
}

// DailySummary is the end-of-day row, keyed by date.
type DailySummary struct {
	TradeDate     time.Time `json:"trade_date"`
	TotalTrades   int       `json:"total_trades"`
	WinningTrades int       `json:"winning_trades"`
	NetPnL        float64   `json:"net_pnl"`
	MaxDrawdown   float64   `json:"max_drawdown"`
	CapitalUsed   float64   `json:"capital_used"`
	WinRate       float64   `json:"win_rate"`
}

// SnapshotLegs copies the legs by value for persistence.
func SnapshotLegs(legs []*Leg) []Leg {
	out := make([]Leg, len(legs))
	for i, l := range legs {
		out[i] = *l
	}
	return out
}
