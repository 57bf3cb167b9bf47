package pricing

import (
	"math"

	"nifty-strangler/internal/models"
)

// Solver bounds for implied volatility.
const (
	ivInitialGuess = 0.20
	ivMaxIter      = 100
	ivMin          = 0.01
	ivMax          = 5.0
	ivPriceTol     = 0.001
	ivMinVega      = 1e-10
)

// ImpliedVol inverts Black-Scholes with Newton-Raphson, starting at 20% and
// clamping every step to [0.01, 5.0]. It stops when the price error drops
// below 0.001, when vega vanishes, or after 100 iterations, and returns
// the best estimate so far. T <= 0 or a non-positive price returns
// fallback.
func ImpliedVol(marketPrice, spot, strike, T, r float64, typ models.OptionType, fallback float64) float64 {
	if T <= 0 || marketPrice <= 0 || spot <= 0 || strike <= 0 {
		return fallback
	}

	sigma := ivInitialGuess
	for i := 0; i < ivMaxIter; i++ {
		price := BlackScholesPrice(spot, strike, T, r, sigma, typ)
		vega := rawVega(spot, strike, T, r, sigma)
		if math.Abs(vega) < ivMinVega || math.IsNaN(vega) {
			break
		}

		diff := marketPrice - price
		sigma = clamp(sigma+diff/vega, ivMin, ivMax)
		if math.Abs(diff) < ivPriceTol {
			break
		}
	}
	return sigma
}

// ImpliedVol solves for IV with the model's rate and default vol fallback.
func (m *Model) ImpliedVol(marketPrice, spot float64, strike int, T float64, typ models.OptionType) float64 {
	return ImpliedVol(marketPrice, spot, float64(strike), T, m.Rate, typ, m.DefaultVol)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(v, hi))
}
