package broker

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	errs "nifty-strangler/internal/errors"
	"nifty-strangler/internal/models"
)

// KiteGateway reads market data from Zerodha Kite Connect.
type KiteGateway struct {
	Symbology

	client     *kiteconnect.Client
	spotSymbol string
	stream     *KiteStream
	streamAge  time.Duration
	logger     zerolog.Logger

	instruments map[string]uint32 // "EXCHANGE:TRADINGSYMBOL" -> token
	mu          sync.RWMutex
}

// KiteConfig holds configuration for the Kite gateway.
type KiteConfig struct {
	APIKey      string
	AccessToken string
	SpotSymbol  string // e.g. "NSE:NIFTY 50"
	Symbology   Symbology
	HTTPTimeout time.Duration
	// Stream, when set, serves prices younger than StreamMaxAge without a
	// REST round trip.
	Stream       *KiteStream
	StreamMaxAge time.Duration
}

// NewKiteGateway creates a Kite gateway. The access token comes from the
// daily login flow, which is handled outside this process.
func NewKiteGateway(cfg KiteConfig, logger zerolog.Logger) (*KiteGateway, error) {
	if cfg.APIKey == "" || cfg.AccessToken == "" {
		return nil, fmt.Errorf("kite api key and access token are required: %w", errs.ErrNotAuthenticated)
	}

	client := kiteconnect.New(cfg.APIKey)
	client.SetAccessToken(cfg.AccessToken)
	if cfg.HTTPTimeout > 0 {
		client.SetHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout})
	}

	streamAge := cfg.StreamMaxAge
	if streamAge <= 0 {
		streamAge = 5 * time.Second
	}

	return &KiteGateway{
		Symbology:   cfg.Symbology,
		client:      client,
		spotSymbol:  cfg.SpotSymbol,
		stream:      cfg.Stream,
		streamAge:   streamAge,
		logger:      logger.With().Str("component", "kite").Logger(),
		instruments: make(map[string]uint32),
	}, nil
}

// SpotPrice returns the index LTP.
func (k *KiteGateway) SpotPrice(ctx context.Context) (float64, error) {
	price, err := k.lastPrice(ctx, k.spotSymbol)
	if errs.Is(err, errs.ErrQuoteUnavailable) {
		return 0, errs.NewGatewayError("spot", k.spotSymbol, errs.ErrNoSpot)
	}
	return price, err
}

// OptionQuote returns the option LTP.
func (k *KiteGateway) OptionQuote(ctx context.Context, symbol string) (float64, error) {
	return k.lastPrice(ctx, symbol)
}

func (k *KiteGateway) lastPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if k.stream != nil {
		if price, ok := k.stream.LastPrice(symbol, k.streamAge); ok {
			return price, nil
		}
	}

	quotes, err := k.client.GetQuote(symbol)
	if err != nil {
		return 0, errs.NewGatewayError("quote", symbol, err)
	}

	q, ok := quotes[symbol]
	if !ok || q.LastPrice <= 0 {
		return 0, errs.NewGatewayError("quote", symbol, errs.ErrQuoteUnavailable)
	}
	return q.LastPrice, nil
}

// Candles fetches historical index bars.
func (k *KiteGateway) Candles(ctx context.Context, req CandleRequest) ([]models.Candle, error) {
	token, err := k.InstrumentToken(ctx, k.spotSymbol)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	interval := req.Interval
	if interval == "" {
		interval = "5minute"
	}

	data, err := k.client.GetHistoricalData(int(token), interval, req.From, req.To, false, false)
	if err != nil {
		return nil, errs.NewGatewayError("historical", k.spotSymbol, err)
	}

	candles := make([]models.Candle, len(data))
	for i, d := range data {
		candles[i] = models.Candle{
			Timestamp: d.Date.Time,
			Open:      d.Open,
			High:      d.High,
			Low:       d.Low,
			Close:     d.Close,
			Volume:    int64(d.Volume),
		}
	}
	return candles, nil
}

// InstrumentToken resolves "EXCHANGE:TRADINGSYMBOL" to its instrument
// token, downloading the instrument dump on a cache miss.
func (k *KiteGateway) InstrumentToken(ctx context.Context, symbol string) (uint32, error) {
	k.mu.RLock()
	token, ok := k.instruments[symbol]
	k.mu.RUnlock()
	if ok {
		return token, nil
	}

	if err := k.loadInstruments(ctx); err != nil {
		return 0, err
	}

	k.mu.RLock()
	token, ok = k.instruments[symbol]
	k.mu.RUnlock()
	if !ok {
		return 0, errs.NewDataError("instrument", symbol, "not found", errs.ErrDataNotFound)
	}
	return token, nil
}

func (k *KiteGateway) loadInstruments(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	instruments, err := k.client.GetInstruments()
	if err != nil {
		return errs.NewGatewayError("instruments", "", err)
	}

	wanted := map[string]bool{string(models.NSE): true, string(k.Symbology.Exchange): true}

	k.mu.Lock()
	for _, inst := range instruments {
		if !wanted[inst.Exchange] {
			continue
		}
		key := inst.Exchange + ":" + strings.ToUpper(inst.Tradingsymbol)
		k.instruments[key] = uint32(inst.InstrumentToken)
	}
	n := len(k.instruments)
	k.mu.Unlock()

	k.logger.Debug().Int("instruments", n).Dur("took", time.Since(start)).Msg("Instrument cache loaded")
	return nil
}

var _ Gateway = (*KiteGateway)(nil)
