package indicators

import (
	"nifty-strangler/internal/models"
)

// VWAP calculates Volume Weighted Average Price, accumulated from the
// first candle with no session reset.
type VWAP struct{}

// NewVWAP creates a new VWAP indicator.
func NewVWAP() *VWAP {
	return &VWAP{}
}

func (v *VWAP) Name() string {
	return "VWAP"
}

func (v *VWAP) Period() int {
	return 1
}

// Calculate returns one value per candle. Values stay zero until the
// first candle with non-zero volume.
func (v *VWAP) Calculate(candles []models.Candle) ([]float64, error) {
	if len(candles) == 0 {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	result := make([]float64, n)

	var cumulativeTPV float64 // Cumulative Typical Price * Volume
	var cumulativeVol float64 // Cumulative Volume

	for i := 0; i < n; i++ {
		tp := typicalPrice(candles[i])
		cumulativeTPV += tp * float64(candles[i].Volume)
		cumulativeVol += float64(candles[i].Volume)

		if cumulativeVol != 0 {
			result[i] = cumulativeTPV / cumulativeVol
		}
	}

	return result, nil
}

// Latest returns the final VWAP value.
func (v *VWAP) Latest(candles []models.Candle) (float64, error) {
	values, err := v.Calculate(candles)
	if err != nil {
		return 0, err
	}
	return values[len(values)-1], nil
}
