package notify

import (
	"fmt"
	"strings"

	"nifty-strangler/internal/models"
	"nifty-strangler/internal/security"
	"nifty-strangler/pkg/utils"
)

// EntryAlert describes a newly opened structure.
func EntryAlert(s *models.Structure, risk float64) Notification {
	var strikes []string
	var ceStrike, peStrike int
	for _, l := range s.ShortCoreLegs() {
		if l.OptionType.IsCall() {
			ceStrike = l.Strike
		} else {
			peStrike = l.Strike
		}
	}
	for _, l := range s.Legs {
		strikes = append(strikes, fmt.Sprintf("%s %s %d @ %.2f", l.Side, l.OptionType, l.Strike, l.EntryPrice))
	}

	name := "Supertrend Gamma Strangle"
	if s.StrategyType == models.StrategyExpiry {
		name = "Expiry Day Strangle"
	}

	msg := fmt.Sprintf(
		"Strategy: %s\nStrikes: CE %d | PE %d\nPremium Collected: %s\nRisk: %s\nSpot: %.2f\nLegs: %s",
		name, ceStrike, peStrike,
		utils.FormatIndianCurrency(s.PremiumCollected),
		utils.FormatIndianCurrency(risk),
		s.EntrySpot,
		strings.Join(strikes, "; "),
	)

	return Notification{
		Type:      NotificationEntry,
		Title:     fmt.Sprintf("ENTRY #%d", s.TradeID),
		Message:   msg,
		Timestamp: s.EntryTime,
		Data: map[string]interface{}{
			"trade_id":          s.TradeID,
			"strategy_type":     string(s.StrategyType),
			"ce_strike":         ceStrike,
			"pe_strike":         peStrike,
			"premium_collected": utils.RoundMoney(s.PremiumCollected),
			"risk":              utils.RoundMoney(risk),
			"spot":              s.EntrySpot,
		},
	}
}

// AdjustmentAlert describes a gamma defense action.
func AdjustmentAlert(tradeID int64, level int, action, reason string) Notification {
	return Notification{
		Type:    NotificationAdjustment,
		Title:   fmt.Sprintf("GAMMA ADJUSTMENT LEVEL %d", level),
		Message: fmt.Sprintf("Trade: #%d\nAction Taken: %s\nReason: %s", tradeID, action, reason),
		Data: map[string]interface{}{
			"trade_id": tradeID,
			"level":    level,
			"action":   action,
			"reason":   reason,
		},
	}
}

// ExitAlert describes a closed structure. Return is pnl as a percent of
// capital.
func ExitAlert(tradeID int64, pnl, capital float64, reason string) Notification {
	var pct float64
	if capital > 0 {
		pct = pnl / capital * 100
	}
	return Notification{
		Type:    NotificationExit,
		Title:   fmt.Sprintf("EXIT #%d", tradeID),
		Message: fmt.Sprintf("P&L: %s\nReturn %%: %.2f%%\nReason: %s", utils.FormatIndianCurrency(pnl), pct, reason),
		Data: map[string]interface{}{
			"trade_id":   tradeID,
			"pnl":        utils.RoundMoney(pnl),
			"return_pct": pct,
			"reason":     reason,
		},
	}
}

// EODReport describes the day's summary.
func EODReport(d models.DailySummary) Notification {
	return Notification{
		Type:  NotificationSummary,
		Title: "END OF DAY REPORT " + d.TradeDate.Format("2006-01-02"),
		Message: fmt.Sprintf("Total Trades: %d\nNet P&L: %s\nMax Drawdown: %s\nWin Rate: %.1f%%",
			d.TotalTrades,
			utils.FormatIndianCurrency(d.NetPnL),
			utils.FormatIndianCurrency(d.MaxDrawdown),
			d.WinRate),
		Data: map[string]interface{}{
			"date":           d.TradeDate.Format("2006-01-02"),
			"total_trades":   d.TotalTrades,
			"winning_trades": d.WinningTrades,
			"net_pnl":        utils.RoundMoney(d.NetPnL),
			"max_drawdown":   utils.RoundMoney(d.MaxDrawdown),
			"win_rate":       d.WinRate,
		},
	}
}

// ErrorAlert reports a failure the operator should see.
func ErrorAlert(err error, where string) Notification {
	msg := security.MaskString(err.Error())
	return Notification{
		Type:    NotificationError,
		Title:   "Error",
		Message: fmt.Sprintf("Context: %s\nError: %s", where, msg),
		Data: map[string]interface{}{
			"context": where,
			"error":   msg,
		},
	}
}

// InfoAlert carries a free-form operator message.
func InfoAlert(title, message string) Notification {
	return Notification{Type: NotificationInfo, Title: title, Message: message}
}
