package broker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kitemodels "github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"
)

// KiteStream keeps a last-price cache fed by the Kite WebSocket ticker.
type KiteStream struct {
	ticker      *kiteticker.Ticker
	apiKey      string
	accessToken string
	cache       *priceCache
	logger      zerolog.Logger

	connected    bool
	subscribed   map[uint32]bool
	symbolTokens map[string]uint32
	tokenSymbols map[uint32]string

	reconnecting bool
	maxRetries   int
	baseDelay    time.Duration

	mu      sync.RWMutex
	writeMu sync.Mutex // Protects websocket writes (Subscribe, SetMode)
}

// KiteStreamConfig holds configuration for the stream.
type KiteStreamConfig struct {
	APIKey      string
	AccessToken string
	MaxRetries  int
	BaseDelay   time.Duration
}

// NewKiteStream creates a new stream. Nothing connects until Connect.
func NewKiteStream(cfg KiteStreamConfig, logger zerolog.Logger) *KiteStream {
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}

	baseDelay := cfg.BaseDelay
	if baseDelay == 0 {
		baseDelay = time.Second
	}

	return &KiteStream{
		apiKey:       cfg.APIKey,
		accessToken:  cfg.AccessToken,
		cache:        newPriceCache(time.Now),
		logger:       logger.With().Str("component", "kite_stream").Logger(),
		subscribed:   make(map[uint32]bool),
		symbolTokens: make(map[string]uint32),
		tokenSymbols: make(map[uint32]string),
		maxRetries:   maxRetries,
		baseDelay:    baseDelay,
	}
}

// Connect establishes the WebSocket connection.
func (s *KiteStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}

	s.ticker = kiteticker.New(s.apiKey, s.accessToken)
	connectedCh := make(chan struct{})
	firstConnect := true

	s.ticker.OnConnect(func() {
		s.mu.Lock()
		s.connected = true
		s.reconnecting = false
		isFirst := firstConnect
		firstConnect = false
		s.mu.Unlock()

		select {
		case connectedCh <- struct{}{}:
		default:
		}

		if !isFirst {
			s.resubscribe()
		}
	})

	s.ticker.OnClose(func(code int, reason string) {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()

		s.logger.Warn().Int("code", code).Str("reason", reason).Msg("Ticker closed")
		go s.reconnect(ctx)
	})

	s.ticker.OnError(func(err error) {
		s.logger.Error().Err(err).Msg("Ticker error")
	})

	s.ticker.OnTick(func(tick kitemodels.Tick) {
		s.mu.RLock()
		symbol, ok := s.tokenSymbols[tick.InstrumentToken]
		s.mu.RUnlock()
		if ok && tick.LastPrice > 0 {
			s.cache.set(symbol, tick.LastPrice)
		}
	})

	s.mu.Unlock()

	go s.ticker.Serve()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-connectedCh:
		return nil
	case <-time.After(30 * time.Second):
		if !s.IsConnected() {
			return fmt.Errorf("connection timeout")
		}
		return nil
	}
}

// Disconnect closes the WebSocket connection.
func (s *KiteStream) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Close()
		s.connected = false
	}
	return nil
}

// RegisterSymbol maps a quote key to its instrument token.
func (s *KiteStream) RegisterSymbol(symbol string, token uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbolTokens[symbol] = token
	s.tokenSymbols[token] = symbol
}

// Subscribe subscribes to registered symbols; unknown symbols are skipped.
func (s *KiteStream) Subscribe(symbols []string) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return fmt.Errorf("not connected")
	}

	tokens := make([]uint32, 0, len(symbols))
	for _, symbol := range symbols {
		token, ok := s.symbolTokens[symbol]
		if !ok || s.subscribed[token] {
			continue
		}
		tokens = append(tokens, token)
		s.subscribed[token] = true
	}
	s.mu.Unlock()

	if len(tokens) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.ticker.Subscribe(tokens); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	if err := s.ticker.SetMode(kiteticker.ModeQuote, tokens); err != nil {
		return fmt.Errorf("failed to set mode: %w", err)
	}
	return nil
}

// LastPrice returns a streamed price no older than maxAge.
func (s *KiteStream) LastPrice(symbol string, maxAge time.Duration) (float64, bool) {
	return s.cache.get(symbol, maxAge)
}

// IsConnected returns whether the stream is connected.
func (s *KiteStream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// reconnect attempts to reconnect with exponential backoff.
func (s *KiteStream) reconnect(ctx context.Context) {
	s.mu.Lock()
	if s.reconnecting {
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	s.mu.Unlock()

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		delay := s.baseDelay * time.Duration(math.Pow(2, float64(attempt)))
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if s.IsConnected() {
			break
		}
		if err := s.Connect(ctx); err == nil {
			break
		}
	}

	s.mu.Lock()
	s.reconnecting = false
	connected := s.connected
	s.mu.Unlock()

	if !connected {
		s.logger.Error().Int("attempts", s.maxRetries).Msg("Ticker reconnection gave up; falling back to REST quotes")
	}
}

// resubscribe re-sends all subscriptions after a reconnect.
func (s *KiteStream) resubscribe() {
	s.mu.RLock()
	tokens := make([]uint32, 0, len(s.subscribed))
	for token := range s.subscribed {
		tokens = append(tokens, token)
	}
	s.mu.RUnlock()

	if len(tokens) == 0 {
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.ticker.Subscribe(tokens); err != nil {
		s.logger.Error().Err(err).Msg("Resubscribe failed")
		return
	}
	if err := s.ticker.SetMode(kiteticker.ModeQuote, tokens); err != nil {
		s.logger.Error().Err(err).Msg("Resubscribe set mode failed")
	}
}
