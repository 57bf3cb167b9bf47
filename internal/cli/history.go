package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"nifty-strangler/internal/models"
	"nifty-strangler/internal/store"
	"nifty-strangler/pkg/utils"
)

func newTradesCmd(app *App) *cobra.Command {
	var (
		limit  int
		status string
		date   string
	)

	cmd := &cobra.Command{
		Use:   "trades [trade-id]",
		Short: "List recorded structures, or one with its adjustments",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.Store()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid trade id %q", args[0])
				}
				trade, err := st.GetTrade(ctx, id)
				if err != nil {
					return err
				}
				adjustments, err := st.GetAdjustments(ctx, id)
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(map[string]interface{}{
						"trade":       trade,
						"adjustments": adjustments,
					})
				}
				showTrade(output, trade, adjustments)
				return nil
			}

			filter := store.TradeFilter{Limit: limit, Status: models.TradeStatus(status)}
			if date != "" {
				day, err := time.ParseInLocation("2006-01-02", date, utils.IndiaLocation)
				if err != nil {
					return fmt.Errorf("invalid date %q: %w", date, err)
				}
				filter.StartDate, filter.EndDate = day, day
			}
			trades, err := st.ListTrades(ctx, filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Dim("No trades recorded")
				return nil
			}

			table := NewTable(output, "ID", "DATE", "STRATEGY", "SPOT", "PREMIUM", "P&L", "STATUS", "ADJ", "REASON")
			for _, t := range trades {
				pnl := t.RealizedPnL
				if t.Status == models.TradeOpen {
					pnl = t.UnrealizedPnL
				}
				table.AddRow(
					strconv.FormatInt(t.ID, 10),
					t.TradeDate.Format("2006-01-02"),
					string(t.StrategyType),
					fmt.Sprintf("%.2f", t.EntrySpot),
					utils.FormatIndianCurrency(t.PremiumCollected),
					output.FormatPnL(pnl),
					string(t.Status),
					fmt.Sprintf("L%d x%d", t.AdjustmentLevel, t.AdjustmentCount),
					t.CloseReason,
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of trades")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (OPEN, CLOSED)")
	cmd.Flags().StringVar(&date, "date", "", "filter by trade date (YYYY-MM-DD)")
	return cmd
}

func showTrade(output *Output, t *models.TradeRecord, adjustments []models.AdjustmentRecord) {
	output.Bold("Trade #%d  %s  %s", t.ID, t.StrategyType, t.Status)
	output.Printf("  Entry:    %s @ %.2f\n", t.EntryTime.Format("2006-01-02 15:04"), t.EntrySpot)
	if t.ExitTime != nil {
		output.Printf("  Exit:     %s (%s)\n", t.ExitTime.Format("2006-01-02 15:04"), t.CloseReason)
	}
	output.Printf("  Premium:  %s\n", utils.FormatIndianCurrency(t.PremiumCollected))
	output.Printf("  Realized: %s\n", output.FormatPnL(t.RealizedPnL))
	if t.Status == models.TradeOpen {
		output.Printf("  MTM:      %s\n", output.FormatPnL(t.UnrealizedPnL))
	}
	output.Printf("  Delta:    %.2f   Gamma score: %.1f\n", t.NetDelta, t.GammaScore)
	output.Println()

	legs := NewTable(output, "SYMBOL", "SIDE", "STRIKE", "ENTRY", "LAST", "DELTA", "HEDGE")
	for _, l := range t.Legs {
		legs.AddRow(
			l.Symbol,
			string(l.Side),
			strconv.Itoa(l.Strike),
			fmt.Sprintf("%.2f", l.EntryPrice),
			fmt.Sprintf("%.2f", l.CurrentPrice),
			fmt.Sprintf("%.3f", l.Greeks.Delta),
			strconv.FormatBool(l.IsHedge),
		)
	}
	legs.Render()

	if len(adjustments) == 0 {
		return
	}
	output.Println()
	adj := NewTable(output, "TIME", "LEVEL", "ACTION", "REASON", "SPOT", "P&L")
	for _, a := range adjustments {
		adj.AddRow(
			a.Timestamp.Format("15:04:05"),
			fmt.Sprintf("L%d", a.Level),
			a.Action,
			a.Reason,
			fmt.Sprintf("%.2f", a.Spot),
			output.FormatPnL(a.PnL),
		)
	}
	adj.Render()
}

func newSummaryCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show end-of-day summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.Store()
			if err != nil {
				return err
			}
			summaries, err := st.ListDailySummaries(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(summaries)
			}
			if len(summaries) == 0 {
				output.Dim("No daily summaries recorded")
				return nil
			}

			table := NewTable(output, "DATE", "TRADES", "WINS", "NET P&L", "MAX DD", "WIN RATE")
			var total float64
			for _, s := range summaries {
				total += s.NetPnL
				table.AddRow(
					s.TradeDate.Format("2006-01-02"),
					strconv.Itoa(s.TotalTrades),
					strconv.Itoa(s.WinningTrades),
					output.FormatPnL(s.NetPnL),
					utils.FormatIndianCurrency(s.MaxDrawdown),
					fmt.Sprintf("%.1f%%", s.WinRate),
				)
			}
			table.Render()
			output.Println()
			output.Printf("Total: %s over %d day(s)\n", output.FormatPnL(total), len(summaries))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 30, "number of days")
	return cmd
}
