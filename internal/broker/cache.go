package broker

import (
	"sync"
	"time"
)

type cachedPrice struct {
	price float64
	at    time.Time
}

// priceCache holds the last seen price per symbol.
type priceCache struct {
	mu     sync.RWMutex
	prices map[string]cachedPrice
	now    func() time.Time
}

func newPriceCache(now func() time.Time) *priceCache {
	if now == nil {
		now = time.Now
	}
	return &priceCache{
		prices: make(map[string]cachedPrice),
		now:    now,
	}
}

func (c *priceCache) set(symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = cachedPrice{price: price, at: c.now()}
}

func (c *priceCache) delete(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.prices, symbol)
}

// get returns a positive price no older than maxAge. A zero maxAge accepts
// any age.
func (c *priceCache) get(symbol string, maxAge time.Duration) (float64, bool) {
	c.mu.RLock()
	p, ok := c.prices[symbol]
	c.mu.RUnlock()

	if !ok || p.price <= 0 {
		return 0, false
	}
	if maxAge > 0 && c.now().Sub(p.at) > maxAge {
		return 0, false
	}
	return p.price, true
}
