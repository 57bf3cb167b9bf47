// Package pricing implements Black-Scholes valuation, implied volatility
// and strike selection for index options.
package pricing

import (
	"errors"
	"math"

	"github.com/rs/zerolog"

	"nifty-strangler/internal/models"
	"nifty-strangler/pkg/utils"
)

const sqrt2Pi = 2.5066282746310002

// Defaults applied when a Model is built without explicit values.
const (
	DefaultRate     = 0.065
	DefaultVol      = 0.15
	MinFallbackFill = 0.05
	daysPerYear     = 365.0
)

// ErrDegenerateInput is returned for inputs the closed form cannot price.
var ErrDegenerateInput = errors.New("degenerate pricing input")

// BlackScholesGreeks computes delta, gamma, theta (per calendar day) and
// vega (per vol point) for a European option. When T <= 0 it returns zero
// Greeks carrying vol as IV and no error. Non-positive spot, strike or vol,
// or a non-finite result, yields zero Greeks and ErrDegenerateInput.
func BlackScholesGreeks(spot, strike, T, r, vol float64, typ models.OptionType) (models.Greeks, error) {
	zero := models.Greeks{IV: vol}
	if T <= 0 {
		return zero, nil
	}
	if spot <= 0 || strike <= 0 || vol <= 0 || math.IsNaN(T) || math.IsInf(T, 0) {
		return zero, ErrDegenerateInput
	}

	sqrtT := math.Sqrt(T)
	d1 := (math.Log(spot/strike) + (r+0.5*vol*vol)*T) / (vol * sqrtT)
	d2 := d1 - vol*sqrtT
	pdf := normPDF(d1)
	discount := strike * math.Exp(-r*T)

	g := models.Greeks{
		Gamma: pdf / (spot * vol * sqrtT),
		Vega:  spot * pdf * sqrtT * 0.01,
		IV:    vol,
	}
	if typ.IsCall() {
		g.Delta = normCDF(d1)
		g.Theta = (-(spot*pdf*vol)/(2*sqrtT) - r*discount*normCDF(d2)) / daysPerYear
	} else {
		g.Delta = normCDF(d1) - 1
		g.Theta = (-(spot*pdf*vol)/(2*sqrtT) + r*discount*normCDF(-d2)) / daysPerYear
	}

	if !g.IsFinite() {
		return zero, ErrDegenerateInput
	}
	return g, nil
}

// BlackScholesPrice returns the premium of a European option. If time to
// expiry or volatility is not positive it returns intrinsic value.
func BlackScholesPrice(spot, strike, T, r, vol float64, typ models.OptionType) float64 {
	if T <= 0 || vol <= 0 || spot <= 0 || strike <= 0 {
		if typ.IsCall() {
			return math.Max(0, spot-strike)
		}
		return math.Max(0, strike-spot)
	}

	sqrtT := math.Sqrt(T)
	d1 := (math.Log(spot/strike) + (r+0.5*vol*vol)*T) / (vol * sqrtT)
	d2 := d1 - vol*sqrtT

	if typ.IsCall() {
		return spot*normCDF(d1) - strike*math.Exp(-r*T)*normCDF(d2)
	}
	return strike*math.Exp(-r*T)*normCDF(-d2) - spot*normCDF(-d1)
}

// rawVega is dPrice/dVol (per unit of vol, not per point).
func rawVega(spot, strike, T, r, vol float64) float64 {
	if T <= 0 || vol <= 0 {
		return 0
	}
	d1 := (math.Log(spot/strike) + (r+0.5*vol*vol)*T) / (vol * math.Sqrt(T))
	return spot * normPDF(d1) * math.Sqrt(T)
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / sqrt2Pi
}

func normCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}

// Model prices options with a fixed risk-free rate and reports numeric
// faults through its logger instead of returning them.
type Model struct {
	Rate       float64
	DefaultVol float64
	logger     zerolog.Logger
}

// NewModel creates a pricing model. Zero rate or vol fall back to the
// package defaults.
func NewModel(rate, defaultVol float64, logger zerolog.Logger) *Model {
	if rate == 0 {
		rate = DefaultRate
	}
	if defaultVol <= 0 {
		defaultVol = DefaultVol
	}
	return &Model{
		Rate:       rate,
		DefaultVol: defaultVol,
		logger:     logger.With().Str("component", "pricing").Logger(),
	}
}

// Greeks computes Greeks at the given vol. Degenerate inputs produce zero
// Greeks and a logged warning.
func (m *Model) Greeks(spot float64, strike int, T, vol float64, typ models.OptionType) models.Greeks {
	g, err := BlackScholesGreeks(spot, float64(strike), T, m.Rate, vol, typ)
	if err != nil {
		m.logger.Warn().
			Err(err).
			Float64("spot", spot).
			Int("strike", strike).
			Float64("t", T).
			Float64("vol", vol).
			Str("type", string(typ)).
			Msg("Greeks degenerate, using zero set")
	}
	return g
}

// DefaultGreeks computes Greeks at the model's default vol.
func (m *Model) DefaultGreeks(spot float64, strike int, T float64, typ models.OptionType) models.Greeks {
	return m.Greeks(spot, strike, T, m.DefaultVol, typ)
}

// Price returns the Black-Scholes premium.
func (m *Model) Price(spot float64, strike int, T, vol float64, typ models.OptionType) float64 {
	return BlackScholesPrice(spot, float64(strike), T, m.Rate, vol, typ)
}

// TheoreticalPrice is the fallback fill used when no live quote exists:
// the default-vol premium rounded to paise and floored at 0.05.
func (m *Model) TheoreticalPrice(spot float64, strike int, T float64, typ models.OptionType) float64 {
	p := utils.RoundMoney(m.Price(spot, strike, T, m.DefaultVol, typ))
	if math.IsNaN(p) || p < MinFallbackFill {
		return MinFallbackFill
	}
	return p
}
