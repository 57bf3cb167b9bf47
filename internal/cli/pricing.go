package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"nifty-strangler/internal/models"
	"nifty-strangler/internal/pricing"
)

const daysPerYear = 365.0

func parseFloats(args []string, names ...string) ([]float64, error) {
	out := make([]float64, len(names))
	for i, name := range names {
		v, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", name, args[i], err)
		}
		out[i] = v
	}
	return out, nil
}

func newGreeksCmd(app *App) *cobra.Command {
	var vol float64

	cmd := &cobra.Command{
		Use:   "greeks <spot> <strike> <days> <CE|PE>",
		Short: "Black-Scholes price and Greeks for one option",
		Example: `  strangler greeks 22000 22300 3 CE
  strangler greeks 22000 21700 3 PE --vol 0.18`,
		Args: requireArgs(4, "greeks <spot> <strike> <days> <CE|PE>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			nums, err := parseFloats(args, "spot", "strike", "days")
			if err != nil {
				return err
			}
			typ, err := models.ParseOptionType(args[3])
			if err != nil {
				return err
			}
			if vol <= 0 {
				vol = app.Config.Trading.DefaultIV
			}

			spot, strike, T := nums[0], nums[1], nums[2]/daysPerYear
			rate := app.Config.Trading.RiskFreeRate
			g, err := pricing.BlackScholesGreeks(spot, strike, T, rate, vol, typ)
			if err != nil {
				return err
			}
			price := pricing.BlackScholesPrice(spot, strike, T, rate, vol, typ)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"price":  price,
					"greeks": g,
				})
			}
			output.Bold("%s %.0f  spot %.2f  %.1f days  vol %.1f%%", typ, strike, spot, nums[2], vol*100)
			output.Printf("  Price: %.2f\n", price)
			output.Printf("  Delta: %.4f\n", g.Delta)
			output.Printf("  Gamma: %.6f\n", g.Gamma)
			output.Printf("  Theta: %.2f /day\n", g.Theta)
			output.Printf("  Vega:  %.2f /vol pt\n", g.Vega)
			return nil
		},
	}

	cmd.Flags().Float64Var(&vol, "vol", 0, "volatility (default: trading.default_iv)")
	return cmd
}

func newIVCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "iv <price> <spot> <strike> <days> <CE|PE>",
		Short:   "Implied volatility from an option price",
		Example: "  strangler iv 85 22000 22300 3 CE",
		Args:    requireArgs(5, "iv <price> <spot> <strike> <days> <CE|PE>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			nums, err := parseFloats(args, "price", "spot", "strike", "days")
			if err != nil {
				return err
			}
			typ, err := models.ParseOptionType(args[4])
			if err != nil {
				return err
			}

			tc := app.Config.Trading
			iv := pricing.ImpliedVol(nums[0], nums[1], nums[2], nums[3]/daysPerYear, tc.RiskFreeRate, typ, tc.DefaultIV)

			if output.IsJSON() {
				return output.JSON(map[string]float64{"iv": iv})
			}
			output.Printf("IV: %.2f%%\n", iv*100)
			return nil
		},
	}
}

func newStrikeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "strike <spot> <days> <delta> <CE|PE>",
		Short:   "Strike whose |delta| is closest to a target",
		Example: "  strangler strike 22000 3 0.22 CE",
		Args:    requireArgs(4, "strike <spot> <days> <delta> <CE|PE>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			nums, err := parseFloats(args, "spot", "days", "delta")
			if err != nil {
				return err
			}
			typ, err := models.ParseOptionType(args[3])
			if err != nil {
				return err
			}

			tc := app.Config.Trading
			model := pricing.NewModel(tc.RiskFreeRate, tc.DefaultIV, app.Logger)
			sel := pricing.NewSelector(model, tc.StrikeStep, app.Config.Strategy.StrikeSearchRange)
			spot, T := nums[0], nums[1]/daysPerYear
			strike := sel.FindStrikeByDelta(spot, T, nums[2], typ)
			g := model.DefaultGreeks(spot, strike, T, typ)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"atm":    sel.ATM(spot),
					"strike": strike,
					"delta":  g.Delta,
				})
			}
			output.Printf("ATM:    %d\n", sel.ATM(spot))
			output.Printf("Strike: %d %s (delta %.3f)\n", strike, typ, g.Delta)
			return nil
		},
	}
}
