// Package strategy runs the gamma strangle: the entry gate, four-leg
// structure construction, the three-level gamma defense, closes and the
// end-of-day rollup. All ledger state lives in one Engine guarded by a
// single mutex.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"nifty-strangler/internal/analysis/indicators"
	"nifty-strangler/internal/broker"
	"nifty-strangler/internal/config"
	"nifty-strangler/internal/models"
	"nifty-strangler/internal/notify"
	"nifty-strangler/internal/pricing"
	"nifty-strangler/internal/store"
	"nifty-strangler/pkg/utils"
)

// Mode is the engine's global operating mode.
type Mode int32

const (
	ModeStopped Mode = iota
	ModeRunning
	ModePaused
)

func (m Mode) String() string {
	switch m {
	case ModeRunning:
		return "RUNNING"
	case ModePaused:
		return "PAUSED"
	default:
		return "STOPPED"
	}
}

// Deps are the collaborators injected into the engine.
type Deps struct {
	Gateway  broker.Gateway
	Store    store.TradeStore
	Notifier notify.Notifier // optional
	Model    *pricing.Model  // optional, built from config when nil
	Logger   zerolog.Logger
	Now      func() time.Time // optional, defaults to time.Now
}

// Engine owns the live ledger and every daily counter.
type Engine struct {
	cfg      *config.Config
	gateway  broker.Gateway
	store    store.TradeStore
	notifier notify.Notifier
	model    *pricing.Model
	selector *pricing.Selector
	trendInd *indicators.Supertrend
	vwapInd  *indicators.VWAP
	logger   zerolog.Logger
	now      func() time.Time

	sessionStart  utils.TimeOfDay
	sessionEnd    utils.TimeOfDay
	expiryCutoff  utils.TimeOfDay
	expiryWeekday time.Weekday

	mode    atomic.Int32
	ticking atomic.Bool

	mu           sync.Mutex
	ledger       map[int64]*models.Structure
	spot         float64
	trend        models.TrendDirection
	vwap         float64
	trendUpdated time.Time
	tradeDate    time.Time
	tradesToday  int
	dailyPnL     float64

	notifyWG sync.WaitGroup
}

// NewEngine validates cfg and wires the engine. The engine starts STOPPED.
func NewEngine(cfg *config.Config, deps Deps) (*Engine, error) {
	if deps.Gateway == nil || deps.Store == nil {
		return nil, fmt.Errorf("strategy engine needs a gateway and a store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	start, err := utils.ParseTimeOfDay(cfg.Trading.SessionStart)
	if err != nil {
		return nil, fmt.Errorf("session_start: %w", err)
	}
	end, err := utils.ParseTimeOfDay(cfg.Trading.SessionEnd)
	if err != nil {
		return nil, fmt.Errorf("session_end: %w", err)
	}
	cutoff, err := utils.ParseTimeOfDay(cfg.Trading.ExpiryCutoff)
	if err != nil {
		return nil, fmt.Errorf("expiry_cutoff: %w", err)
	}
	weekday, err := utils.ParseWeekday(cfg.Trading.ExpiryWeekday)
	if err != nil {
		return nil, fmt.Errorf("expiry_weekday: %w", err)
	}

	model := deps.Model
	if model == nil {
		model = pricing.NewModel(cfg.Trading.RiskFreeRate, cfg.Trading.DefaultIV, deps.Logger)
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NoOpNotifier{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		cfg:           cfg,
		gateway:       deps.Gateway,
		store:         deps.Store,
		notifier:      notifier,
		model:         model,
		selector:      pricing.NewSelector(model, cfg.Trading.StrikeStep, cfg.Strategy.StrikeSearchRange),
		trendInd:      indicators.NewSupertrend(cfg.Strategy.SupertrendPeriod, cfg.Strategy.SupertrendMultiplier),
		vwapInd:       indicators.NewVWAP(),
		logger:        deps.Logger.With().Str("component", "strategy").Logger(),
		now:           now,
		sessionStart:  start,
		sessionEnd:    end,
		expiryCutoff:  cutoff,
		expiryWeekday: weekday,
		ledger:        make(map[int64]*models.Structure),
		trend:         models.TrendUnknown,
	}, nil
}

// Mode returns the current mode.
func (e *Engine) Mode() Mode {
	return Mode(e.mode.Load())
}

func (e *Engine) setMode(m Mode) Mode {
	prev := Mode(e.mode.Swap(int32(m)))
	if prev != m {
		e.logger.Info().Str("from", prev.String()).Str("to", m.String()).Msg("Mode changed")
	}
	return prev
}

// Start accepts new entries.
func (e *Engine) Start() {
	e.setMode(ModeRunning)
}

// Pause refuses new entries; open structures are still monitored.
func (e *Engine) Pause() {
	e.setMode(ModePaused)
}

// Resume is Start after a Pause.
func (e *Engine) Resume() {
	e.setMode(ModeRunning)
}

// Stop refuses new entries and closes every open structure. A roll or
// close already in progress completes first.
func (e *Engine) Stop(ctx context.Context) float64 {
	e.setMode(ModeStopped)
	return e.CloseAll(ctx, models.ReasonStop)
}

// Wait blocks until every queued notification has been delivered or has
// timed out.
func (e *Engine) Wait() {
	e.notifyWG.Wait()
}

// notify sends n in the background under the configured timeout.
// Failures are logged and never reach the caller.
func (e *Engine) notify(n notify.Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = e.now()
	}
	timeout := e.cfg.Notifications.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	e.notifyWG.Add(1)
	go func() {
		defer e.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := e.notifier.Send(ctx, n); err != nil {
			e.logger.Warn().Err(err).Str("type", string(n.Type)).Msg("Notification failed")
		}
	}()
}

// callCtx bounds a single gateway call.
func (e *Engine) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := e.cfg.Gateway.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (e *Engine) fetchSpot(ctx context.Context) (float64, error) {
	c, cancel := e.callCtx(ctx)
	defer cancel()
	return e.gateway.SpotPrice(c)
}

// quote returns the live price of symbol, or the theoretical price when
// no usable quote exists.
func (e *Engine) quote(ctx context.Context, symbol string, spot float64, strike int, T float64, typ models.OptionType) float64 {
	c, cancel := e.callCtx(ctx)
	defer cancel()

	px, err := e.gateway.OptionQuote(c, symbol)
	if err == nil && px > 0 {
		return px
	}

	theo := e.model.TheoreticalPrice(spot, strike, T, typ)
	e.logger.Debug().
		Err(err).
		Str("symbol", symbol).
		Float64("theoretical", theo).
		Msg("Quote unavailable, using theoretical price")
	return theo
}

func (e *Engine) timeToExpiry(expiry models.Expiry, now time.Time) float64 {
	return expiry.YearsFrom(now, e.cfg.Trading.MinTimeToExpiry)
}

// openIDsLocked returns ledger ids in ascending order.
func (e *Engine) openIDsLocked() []int64 {
	ids := make([]int64, 0, len(e.ledger))
	for id := range e.ledger {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
