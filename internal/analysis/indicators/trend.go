// Package indicators provides the trend and flow indicators used for entry
// filtering.
package indicators

import (
	"fmt"

	"nifty-strangler/internal/models"
)

// SupertrendPoint is one bar of Supertrend output.
type SupertrendPoint struct {
	Value     float64
	Direction models.TrendDirection
	Upper     float64 // final upper band
	Lower     float64 // final lower band
}

// Supertrend calculates the Supertrend indicator.
type Supertrend struct {
	atrPeriod  int
	multiplier float64
}

// NewSupertrend creates a new Supertrend indicator.
func NewSupertrend(atrPeriod int, multiplier float64) *Supertrend {
	return &Supertrend{
		atrPeriod:  atrPeriod,
		multiplier: multiplier,
	}
}

func (s *Supertrend) Name() string {
	return fmt.Sprintf("Supertrend_%d_%.1f", s.atrPeriod, s.multiplier)
}

func (s *Supertrend) Period() int {
	return s.atrPeriod
}

// Calculate returns one point per candle.
//
// The first bar has no prior state: it is seeded BULLISH with its lower
// band as the value, so a series that opens in a downtrend reports one
// spurious bullish bar. Bar 1 takes its own basic bands as final bands.
func (s *Supertrend) Calculate(candles []models.Candle) ([]SupertrendPoint, error) {
	if s.atrPeriod <= 0 || s.multiplier <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) == 0 {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	atr := ewm(trueRanges(candles), s.atrPeriod)

	upperBand := make([]float64, n)
	lowerBand := make([]float64, n)
	for i, c := range candles {
		hl2 := medianPrice(c)
		upperBand[i] = hl2 + s.multiplier*atr[i]
		lowerBand[i] = hl2 - s.multiplier*atr[i]
	}

	points := make([]SupertrendPoint, n)
	points[0] = SupertrendPoint{
		Value:     lowerBand[0],
		Direction: models.TrendBullish,
		Upper:     upperBand[0],
		Lower:     lowerBand[0],
	}

	for i := 1; i < n; i++ {
		prevClose := candles[i-1].Close
		prev := points[i-1]

		finalUpper, finalLower := upperBand[i], lowerBand[i]
		if i > 1 {
			// The running band is the previous value while that side was active.
			prevUpper := upperBand[i-1]
			if prev.Direction == models.TrendBearish {
				prevUpper = prev.Value
			}
			if !(upperBand[i] < prevUpper || prevClose > prevUpper) {
				finalUpper = prevUpper
			}

			prevLower := lowerBand[i-1]
			if prev.Direction == models.TrendBullish {
				prevLower = prev.Value
			}
			if !(lowerBand[i] > prevLower || prevClose < prevLower) {
				finalLower = prevLower
			}
		}

		last := candles[i].Close
		p := SupertrendPoint{Upper: finalUpper, Lower: finalLower}
		if prev.Direction == models.TrendBullish {
			if last < finalLower {
				p.Direction, p.Value = models.TrendBearish, finalUpper
			} else {
				p.Direction, p.Value = models.TrendBullish, finalLower
			}
		} else {
			if last > finalUpper {
				p.Direction, p.Value = models.TrendBullish, finalLower
			} else {
				p.Direction, p.Value = models.TrendBearish, finalUpper
			}
		}
		points[i] = p
	}

	return points, nil
}

// Latest returns the last point of the series.
func (s *Supertrend) Latest(candles []models.Candle) (SupertrendPoint, error) {
	points, err := s.Calculate(candles)
	if err != nil {
		return SupertrendPoint{}, err
	}
	return points[len(points)-1], nil
}
