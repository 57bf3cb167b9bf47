package strategy

import (
	"time"

	"nifty-strangler/internal/models"
)

// Status is a point-in-time view of the engine.
type Status struct {
	Mode         string                `json:"mode"`
	Spot         float64               `json:"spot"`
	Trend        models.TrendDirection `json:"trend"`
	VWAP         float64               `json:"vwap"`
	TrendUpdated time.Time             `json:"trend_updated,omitempty"`
	Open         []models.Structure    `json:"open"`
	MTM          float64               `json:"mtm"`
	DailyPnL     float64               `json:"daily_pnl"`
	NetDelta     float64               `json:"net_delta"`
	GammaScore   float64               `json:"gamma_score"`
	TradesToday  int                   `json:"trades_today"`
	At           time.Time             `json:"at"`
}

// Status returns a consistent snapshot taken under the ledger lock.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	open := make([]models.Structure, 0, len(e.ledger))
	for _, id := range e.openIDsLocked() {
		open = append(open, copyStructure(e.ledger[id]))
	}

	return Status{
		Mode:         e.Mode().String(),
		Spot:         e.spot,
		Trend:        e.trend,
		VWAP:         e.vwap,
		TrendUpdated: e.trendUpdated,
		Open:         open,
		MTM:          e.mtmLocked(),
		DailyPnL:     e.dailyPnL,
		NetDelta:     e.netDeltaLocked(),
		GammaScore:   e.gammaScoreLocked(),
		TradesToday:  e.tradesToday,
		At:           e.now(),
	}
}
