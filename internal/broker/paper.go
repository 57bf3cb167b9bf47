package broker

import (
	"context"
	"sync"
	"time"

	errs "nifty-strangler/internal/errors"
	"nifty-strangler/internal/models"
)

// PaperGateway serves simulated market data, optionally layered over a
// real data gateway. Manually set prices win over the data gateway; the
// last good price from the data gateway is reused for up to StaleAfter
// when it fails.
type PaperGateway struct {
	Symbology

	data       Gateway
	staleAfter time.Duration

	spot    float64
	quotes  map[string]float64
	candles []models.Candle

	// Price cache of data gateway answers
	cache *priceCache

	mu sync.RWMutex
}

// PaperConfig holds configuration for the paper gateway.
type PaperConfig struct {
	Data       Gateway // optional
	Symbology  Symbology
	StaleAfter time.Duration
	Now        func() time.Time
}

// NewPaperGateway creates a new paper gateway.
func NewPaperGateway(cfg PaperConfig) *PaperGateway {
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = time.Minute
	}
	return &PaperGateway{
		Symbology:  cfg.Symbology,
		data:       cfg.Data,
		staleAfter: staleAfter,
		quotes:     make(map[string]float64),
		cache:      newPriceCache(cfg.Now),
	}
}

// SetSpot overrides the spot price. Zero clears the override.
func (p *PaperGateway) SetSpot(price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spot = price
}

// SetQuote overrides an option price. Zero or negative clears it.
func (p *PaperGateway) SetQuote(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if price <= 0 {
		delete(p.quotes, symbol)
		return
	}
	p.quotes[symbol] = price
}

// SetCandles replaces the simulated candle history.
func (p *PaperGateway) SetCandles(candles []models.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candles = append([]models.Candle(nil), candles...)
}

// SpotPrice returns the simulated spot, else the data gateway's.
func (p *PaperGateway) SpotPrice(ctx context.Context) (float64, error) {
	p.mu.RLock()
	spot := p.spot
	p.mu.RUnlock()
	if spot > 0 {
		return spot, nil
	}

	price, err := p.fromData(ctx, spotKey, func(g Gateway) (float64, error) { return g.SpotPrice(ctx) })
	if err != nil {
		return 0, errs.NewGatewayError("spot", "", errs.ErrNoSpot)
	}
	return price, nil
}

// OptionQuote returns the simulated quote, else the data gateway's.
func (p *PaperGateway) OptionQuote(ctx context.Context, symbol string) (float64, error) {
	p.mu.RLock()
	price, ok := p.quotes[symbol]
	p.mu.RUnlock()
	if ok {
		return price, nil
	}

	price, err := p.fromData(ctx, symbol, func(g Gateway) (float64, error) { return g.OptionQuote(ctx, symbol) })
	if err != nil {
		return 0, errs.NewGatewayError("quote", symbol, errs.ErrQuoteUnavailable)
	}
	return price, nil
}

const spotKey = "__spot__"

func (p *PaperGateway) fromData(ctx context.Context, key string, fetch func(Gateway) (float64, error)) (float64, error) {
	if p.data != nil {
		price, err := fetch(p.data)
		if err == nil && price > 0 {
			p.cache.set(key, price)
			return price, nil
		}
		if cached, ok := p.cache.get(key, p.staleAfter); ok {
			return cached, nil
		}
		if err != nil {
			return 0, err
		}
	}
	return 0, errs.ErrDataNotFound
}

// Candles returns simulated candles within the request window, else the
// data gateway's.
func (p *PaperGateway) Candles(ctx context.Context, req CandleRequest) ([]models.Candle, error) {
	p.mu.RLock()
	simulated := p.candles
	p.mu.RUnlock()

	if len(simulated) == 0 {
		if p.data != nil {
			return p.data.Candles(ctx, req)
		}
		return nil, errs.NewDataError("candles", "", "no candles loaded", errs.ErrDataNotFound)
	}

	out := make([]models.Candle, 0, len(simulated))
	for _, c := range simulated {
		if !req.From.IsZero() && c.Timestamp.Before(req.From) {
			continue
		}
		if !req.To.IsZero() && c.Timestamp.After(req.To) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

var _ Gateway = (*PaperGateway)(nil)
