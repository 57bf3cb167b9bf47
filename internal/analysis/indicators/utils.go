package indicators

import (
	"errors"
	"math"

	"nifty-strangler/internal/models"
)

var (
	// ErrInsufficientData is returned when there's not enough data for calculation.
	ErrInsufficientData = errors.New("insufficient data for calculation")
	// ErrInvalidPeriod is returned when the period is invalid.
	ErrInvalidPeriod = errors.New("invalid period")
)

// trueRange calculates the true range for a candle.
func trueRange(current, previous models.Candle) float64 {
	highLow := current.High - current.Low
	highClose := math.Abs(current.High - previous.Close)
	lowClose := math.Abs(current.Low - previous.Close)
	return math.Max(highLow, math.Max(highClose, lowClose))
}

// trueRanges returns the true range series. The first bar has no previous
// close, so its range is high-low.
func trueRanges(candles []models.Candle) []float64 {
	tr := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			tr[i] = c.High - c.Low
			continue
		}
		tr[i] = trueRange(c, candles[i-1])
	}
	return tr
}

// typicalPrice calculates the typical price (HLC/3) for a candle.
func typicalPrice(c models.Candle) float64 {
	return (c.High + c.Low + c.Close) / 3
}

// medianPrice calculates (high+low)/2 for a candle.
func medianPrice(c models.Candle) float64 {
	return (c.High + c.Low) / 2
}

// ewm applies exponential smoothing with alpha = 2/(span+1), seeded with
// the first value and without bias adjustment.
func ewm(values []float64, span int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2.0 / float64(span+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}
