// Package cli provides the command-line interface for the strangle engine.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"nifty-strangler/internal/config"
	"nifty-strangler/internal/logging"
	"nifty-strangler/internal/security"
	"nifty-strangler/internal/store"
	"nifty-strangler/pkg/utils"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies. Config and Logger are loaded
// before any command runs; the store is opened on first use.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	store store.TradeStore
}

// Store opens the trade database on first use.
func (a *App) Store() (store.TradeStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := store.NewSQLiteStore(a.Config.Store.DBPath)
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

// Close releases whatever the commands opened.
func (a *App) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() (*cobra.Command, *App) {
	app := &App{
		Config: config.Default(),
		Logger: zerolog.Nop(),
	}

	rootCmd := &cobra.Command{
		Use:   "strangler",
		Short: "NIFTY gamma strangle engine",
		Long: `strangler runs a delta-targeted NIFTY weekly strangle with hedges and a
three-level gamma defense, against Kite market data or a paper gateway.

Use 'strangler run' to start the engine and the other commands to inspect
pricing and the trade history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			app.Config = cfg
			app.Logger = logging.NewLoggerWithConfig(cfg.Logging)

			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/nifty-strangler)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newGreeksCmd(app))
	rootCmd.AddCommand(newIVCmd(app))
	rootCmd.AddCommand(newStrikeCmd(app))
	rootCmd.AddCommand(newTradesCmd(app))
	rootCmd.AddCommand(newSummaryCmd(app))
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd, app
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("strangler v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the engine configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(security.RedactConfig(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsJSON() {
				output.JSON(map[string]string{"path": dir})
			} else {
				output.Println(dir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	t := cfg.Trading
	output.Bold("Trading")
	output.Printf("  Mode:             %s\n", t.Mode)
	output.Printf("  Underlying:       %s (lot %d x %d)\n", t.Underlying, t.LotSize, t.Lots)
	output.Printf("  Capital:          %s\n", utils.FormatIndianCurrency(t.Capital))
	output.Printf("  Daily Risk:       %.1f%% (%s)\n", t.RiskPct, utils.FormatIndianCurrency(cfg.RiskBudget()))
	output.Printf("  Max Trades/Day:   %d\n", t.MaxTradesPerDay)
	output.Printf("  Session:          %s-%s IST\n", t.SessionStart, t.SessionEnd)
	output.Printf("  Expiry:           %s (cutoff %s)\n", t.ExpiryWeekday, t.ExpiryCutoff)
	output.Println()

	s := cfg.Strategy
	output.Bold("Strategy")
	output.Printf("  Short Deltas:     CE %.2f / PE %.2f\n", s.CEDeltaTarget, s.PEDeltaTarget)
	output.Printf("  Hedge Delta:      %.2f\n", s.HedgeDeltaTarget)
	output.Printf("  Roll Delta:       %.2f\n", s.RollDeltaTarget)
	output.Printf("  Supertrend:       %d x %.1f on %s\n", s.SupertrendPeriod, s.SupertrendMultiplier, s.CandleInterval)
	output.Println()

	g := cfg.Gamma
	output.Bold("Gamma Defense")
	output.Printf("  L1:               %.2f%% move or %.0f%% premium change\n", g.L1SpotMove*100, g.L1PremiumPct*100)
	output.Printf("  L2:               |delta| > %.0f\n", g.L2DeltaLimit)
	output.Printf("  L3:               %.2f%% move within %s\n", g.L3SpotMove*100, g.L3TimeWindow)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:          %v\n", cfg.Notifications.Enabled)
	output.Printf("  Level:            %s\n", cfg.Notifications.Level)
	output.Printf("  Webhook:          %v\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  Telegram:         %v\n", cfg.Notifications.Telegram.Enabled)
	output.Println()

	output.Dim("Database: %s", cfg.Store.DBPath)
}

// requireArgs is cobra.ExactArgs with a usage hint.
func requireArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("usage: %s", usage)
		}
		return nil
	}
}
