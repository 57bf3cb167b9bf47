package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nifty-strangler/internal/broker"
	"nifty-strangler/internal/config"
	errs "nifty-strangler/internal/errors"
	"nifty-strangler/internal/notify"
	"nifty-strangler/internal/resilience"
	"nifty-strangler/internal/scheduler"
	"nifty-strangler/internal/store"
	"nifty-strangler/internal/strategy"
	"nifty-strangler/pkg/utils"
)

type runOptions struct {
	startNow    bool
	keepOpen    bool
	paperSpot   float64
	shutdownTTL time.Duration
}

func newRunCmd(app *App) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine on its schedule until interrupted",
		Long: `Run the strangle engine. The scheduler starts entries at market open,
pauses them at the no-new-trades time, force closes, writes the end of day
summary and resets the day. The monitor tick runs every monitor_interval.

In paper mode fills are simulated; Kite data is used when credentials are
configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			defer app.Close()
			return runEngine(ctx, cmd, app, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.startNow, "start", false, "accept entries immediately instead of waiting for market open")
	cmd.Flags().BoolVar(&opts.keepOpen, "keep-open", false, "leave open structures untouched on shutdown")
	cmd.Flags().Float64Var(&opts.paperSpot, "spot", 0, "fixed spot price for the paper gateway")
	cmd.Flags().DurationVar(&opts.shutdownTTL, "shutdown-timeout", 15*time.Second, "time allowed for closing structures on shutdown")
	return cmd
}

func runEngine(ctx context.Context, cmd *cobra.Command, app *App, opts runOptions) error {
	cfg := app.Config
	logger := app.Logger

	st, err := app.Store()
	if err != nil {
		return err
	}

	gws, err := buildGateway(cfg, opts, logger)
	if err != nil {
		return err
	}
	gateway, stream := gws.guarded, gws.stream

	notifier := notify.NewMultiNotifier(cfg.Notifications, logger)
	notifier.AddChannel(notify.NewTerminalNotifier(cmd.OutOrStdout()))

	engine, err := strategy.NewEngine(cfg, strategy.Deps{
		Gateway:  gateway,
		Store:    st,
		Notifier: notifier,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	sched, err := scheduler.New(cfg.Scheduler, scheduler.Jobs(cfg.Scheduler), engine, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	health := newHealthMonitor(cfg, gws, st, notifier, logger)
	g.Go(func() error { return health.Run(gctx) })

	if stream != nil {
		g.Go(func() error {
			if err := connectStream(gctx, stream, gws.kite, cfg.Trading.SpotSymbol); err != nil {
				logger.Warn().Err(err).Msg("Price stream unavailable, using REST quotes")
			}
			<-gctx.Done()
			return stream.Disconnect()
		})
	}

	if opts.startNow {
		engine.Start()
	}
	sched.Start(gctx)
	if next, ok := sched.Next("market_open"); ok {
		logger.Info().Time("market_open", next).Msg("Next market open")
	}

	notifier.Send(gctx, notify.InfoAlert("ENGINE STARTED", fmt.Sprintf(
		"Trading: %s\nEngine: %s\nChannels: %v",
		cfg.Trading.Mode, engine.Mode(), notifier.Channels(),
	)))

	g.Go(func() error {
		<-gctx.Done()
		sched.Stop()
		return nil
	})

	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.shutdownTTL)
	defer cancel()
	if opts.keepOpen {
		engine.Pause()
	} else if pnl := engine.Stop(shutdownCtx); pnl != 0 {
		logger.Info().Str("pnl", utils.FormatPnL(pnl)).Msg("Closed open structures on shutdown")
	}
	engine.Wait()

	logger.Info().Msg("Engine stopped")
	if err != nil && !errs.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newHealthMonitor watches the gateway breaker, the price stream and the
// database, alerting on every status change.
func newHealthMonitor(cfg *config.Config, gws gatewaySet, st store.TradeStore, n notify.Notifier, logger zerolog.Logger) *resilience.HealthMonitor {
	interval := 4 * cfg.Scheduler.MonitorInterval
	if interval < time.Minute {
		interval = time.Minute
	}
	hm := resilience.NewHealthMonitor(resilience.HealthMonitorConfig{
		CheckInterval: interval,
		CheckTimeout:  cfg.Gateway.Timeout,
	})

	hm.RegisterComponent("gateway", resilience.BreakerHealthCheck(gws.guarded.BreakerState))
	if p, ok := st.(interface{ Ping(context.Context) error }); ok {
		hm.RegisterComponent("database", resilience.DatabaseHealthCheck(p.Ping))
	}
	if gws.stream != nil {
		stream, symbol := gws.stream, cfg.Trading.SpotSymbol
		hm.RegisterComponent("stream", resilience.StreamHealthCheck(stream.IsConnected, func(maxAge time.Duration) bool {
			_, ok := stream.LastPrice(symbol, maxAge)
			return ok
		}, interval))
	}

	hm.SetAlertCallback(func(a resilience.HealthAlert) {
		ev := logger.Warn()
		if a.Recovered() {
			ev = logger.Info()
		}
		ev.Str("component", a.Component).
			Str("from", string(a.Previous)).
			Str("to", string(a.Status)).
			Msg(a.Message)

		timeout := cfg.Notifications.Timeout
		if timeout <= 0 {
			timeout = 8 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		title := fmt.Sprintf("%s %s", strings.ToUpper(a.Component), a.Status)
		n.Send(ctx, notify.InfoAlert(title, a.Message))
	})
	return hm
}

type gatewaySet struct {
	guarded *broker.GuardedGateway
	kite    *broker.KiteGateway // nil without credentials
	stream  *broker.KiteStream  // nil without credentials
}

// buildGateway assembles the guarded market-data gateway for cfg. The Kite
// pieces are returned as well so the caller can own the stream lifecycle.
func buildGateway(cfg *config.Config, opts runOptions, logger zerolog.Logger) (gatewaySet, error) {
	var set gatewaySet

	weekday, err := utils.ParseWeekday(cfg.Trading.ExpiryWeekday)
	if err != nil {
		return set, err
	}
	sym := broker.NewSymbology(cfg.Trading.Underlying, weekday)

	var data broker.Gateway
	creds := cfg.Credentials.Kite
	if creds.APIKey != "" && creds.AccessToken != "" {
		set.stream = broker.NewKiteStream(broker.KiteStreamConfig{
			APIKey:      creds.APIKey,
			AccessToken: creds.AccessToken,
		}, logger)
		kite, err := broker.NewKiteGateway(broker.KiteConfig{
			APIKey:       creds.APIKey,
			AccessToken:  creds.AccessToken,
			SpotSymbol:   cfg.Trading.SpotSymbol,
			Symbology:    sym,
			HTTPTimeout:  cfg.Gateway.Timeout,
			Stream:       set.stream,
			StreamMaxAge: 5 * time.Second,
		}, logger)
		if err != nil {
			return set, err
		}
		set.kite = kite
		data = kite
	}

	var inner broker.Gateway
	if cfg.IsPaperMode() {
		paper := broker.NewPaperGateway(broker.PaperConfig{
			Data:       data,
			Symbology:  sym,
			StaleAfter: 2 * cfg.Scheduler.MonitorInterval,
		})
		if opts.paperSpot > 0 {
			paper.SetSpot(opts.paperSpot)
		}
		if data == nil && opts.paperSpot <= 0 {
			logger.Warn().Msg("Paper mode without Kite credentials or --spot: every tick will be skipped")
		}
		inner = paper
	} else {
		if data == nil {
			return set, fmt.Errorf("live mode needs Kite credentials: %w", errs.ErrNotAuthenticated)
		}
		inner = data
	}

	gc := cfg.Gateway
	set.guarded = broker.NewGuardedGateway(inner, broker.GuardConfig{
		Timeout: gc.Timeout,
		Retry: utils.RetryConfig{
			MaxAttempts:   gc.MaxRetries + 1,
			InitialDelay:  gc.RetryDelay,
			MaxDelay:      8 * gc.RetryDelay,
			BackoffFactor: 2,
		},
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: gc.BreakerFailures,
			SuccessThreshold: 1,
			Timeout:          gc.BreakerCooldown,
		},
	}, logger)

	return set, nil
}

// connectStream opens the ticker and subscribes the spot index.
func connectStream(ctx context.Context, stream *broker.KiteStream, kite *broker.KiteGateway, spotSymbol string) error {
	if err := stream.Connect(ctx); err != nil {
		return err
	}
	token, err := kite.InstrumentToken(ctx, spotSymbol)
	if err != nil {
		return err
	}
	stream.RegisterSymbol(spotSymbol, token)
	return stream.Subscribe([]string{spotSymbol})
}
