package broker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	errs "nifty-strangler/internal/errors"
	"nifty-strangler/internal/logging"
	"nifty-strangler/internal/models"
	"nifty-strangler/internal/resilience"
	"nifty-strangler/pkg/utils"
)

// GuardConfig bounds gateway calls.
type GuardConfig struct {
	Timeout time.Duration
	Retry   utils.RetryConfig
	Breaker resilience.CircuitBreakerConfig
}

// GuardedGateway wraps a Gateway so every call runs under a timeout, a
// circuit breaker and retry with backoff.
type GuardedGateway struct {
	inner   Gateway
	timeout time.Duration
	retry   utils.RetryConfig
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewGuardedGateway wraps inner.
func NewGuardedGateway(inner Gateway, cfg GuardConfig, logger zerolog.Logger) *GuardedGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	retry := cfg.Retry
	if retry.Retryable == nil {
		retry.Retryable = isRetryable
	}

	breakerCfg := cfg.Breaker
	if breakerCfg.IsFailure == nil {
		breakerCfg.IsFailure = isOutage
	}

	return &GuardedGateway{
		inner:   inner,
		timeout: timeout,
		retry:   retry,
		breaker: resilience.NewCircuitBreaker("market_data", breakerCfg),
		logger:  logger.With().Str("component", "gateway").Logger(),
	}
}

// isOutage reports whether err means the data source is unhealthy, as
// opposed to having no data for one symbol.
func isOutage(err error) bool {
	return !errors.Is(err, errs.ErrQuoteUnavailable) &&
		!errors.Is(err, errs.ErrDataNotFound) &&
		!errors.Is(err, errs.ErrNoSpot)
}

func isRetryable(err error) bool {
	return isOutage(err) &&
		!errors.Is(err, errs.ErrCircuitOpen) &&
		!errors.Is(err, errs.ErrNotAuthenticated) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func guardedCall[T any](ctx context.Context, g *GuardedGateway, op, symbol string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	v, err := utils.RetryWithResult(ctx, g.retry, func() (T, error) {
		return resilience.ExecuteWithResult(g.breaker, ctx, fn)
	})
	logging.LogAPICall(g.logger, op, symbol, time.Since(start), err)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = errs.Join(errs.ErrTimeout, err)
		}
		var gwErr *errs.GatewayError
		if errors.As(err, &gwErr) {
			return zero, err
		}
		return zero, errs.NewGatewayError(op, symbol, err)
	}
	return v, nil
}

// SpotPrice implements Gateway.
func (g *GuardedGateway) SpotPrice(ctx context.Context) (float64, error) {
	return guardedCall(ctx, g, "spot", "", g.inner.SpotPrice)
}

// OptionQuote implements Gateway.
func (g *GuardedGateway) OptionQuote(ctx context.Context, symbol string) (float64, error) {
	return guardedCall(ctx, g, "quote", symbol, func(ctx context.Context) (float64, error) {
		return g.inner.OptionQuote(ctx, symbol)
	})
}

// Candles implements Gateway.
func (g *GuardedGateway) Candles(ctx context.Context, req CandleRequest) ([]models.Candle, error) {
	return guardedCall(ctx, g, "candles", "", func(ctx context.Context) ([]models.Candle, error) {
		return g.inner.Candles(ctx, req)
	})
}

// NearestWeeklyExpiry implements Gateway.
func (g *GuardedGateway) NearestWeeklyExpiry(now time.Time) models.Expiry {
	return g.inner.NearestWeeklyExpiry(now)
}

// BuildOptionSymbol implements Gateway.
func (g *GuardedGateway) BuildOptionSymbol(strike int, typ models.OptionType, expiry models.Expiry) string {
	return g.inner.BuildOptionSymbol(strike, typ, expiry)
}

// BreakerState reports the circuit breaker state.
func (g *GuardedGateway) BreakerState() resilience.CircuitState {
	return g.breaker.State()
}

var _ Gateway = (*GuardedGateway)(nil)
