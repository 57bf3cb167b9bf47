package indicators

import (
	"fmt"

	"nifty-strangler/internal/models"
)

// ATR calculates Average True Range, exponentially smoothed with
// span = period and seeded from the first bar.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR_%d", a.period)
}

func (a *ATR) Period() int {
	return a.period
}

func (a *ATR) Calculate(candles []models.Candle) ([]float64, error) {
	if a.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) == 0 {
		return nil, ErrInsufficientData
	}
	return ewm(trueRanges(candles), a.period), nil
}
