package indicators

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"nifty-strangler/internal/models"
)

// candleGen generates valid candle data with realistic index OHLCV values
func candleGen() gopter.Gen {
	return gen.Struct(reflect.TypeOf(models.Candle{}), map[string]gopter.Gen{
		"Timestamp": gen.TimeRange(time.Now().Add(-30*24*time.Hour), time.Hour),
		"Open":      gen.Float64Range(21000.0, 23000.0),
		"High":      gen.Float64Range(21000.0, 23000.0),
		"Low":       gen.Float64Range(21000.0, 23000.0),
		"Close":     gen.Float64Range(21000.0, 23000.0),
		"Volume":    gen.Int64Range(0, 5000000),
	}).Map(normalizeCandle)
}

func normalizeCandle(c models.Candle) models.Candle {
	// Ensure OHLC constraints: High >= max(Open, Close) and Low <= min(Open, Close)
	c.High = math.Max(c.High, math.Max(c.Open, c.Close))
	c.Low = math.Min(c.Low, math.Min(c.Open, c.Close))
	if c.High <= c.Low {
		c.High = c.Low + 1.0
	}
	return c
}

// candleSliceGen generates a time-ordered slice of valid candles
func candleSliceGen(minLen, maxLen int) gopter.Gen {
	return gen.SliceOfN(maxLen, candleGen()).Map(func(candles []models.Candle) []models.Candle {
		if len(candles) == 0 {
			candles = append(candles, normalizeCandle(models.Candle{Open: 22000, High: 22010, Low: 21990, Close: 22000}))
		}
		for len(candles) < minLen {
			candles = append(candles, candles[len(candles)-1])
		}
		start := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)
		for i := range candles {
			candles[i].Timestamp = start.Add(time.Duration(i) * 5 * time.Minute)
			candles[i] = normalizeCandle(candles[i])
		}
		return candles
	})
}

func TestProperty_SupertrendDirectionAlwaysDefined(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("every bar is BULLISH or BEARISH and valued at its active band", prop.ForAll(
		func(candles []models.Candle) bool {
			points, err := NewSupertrend(10, 3).Calculate(candles)
			if err != nil || len(points) != len(candles) {
				return false
			}
			for _, p := range points {
				switch p.Direction {
				case models.TrendBullish:
					if p.Value != p.Lower {
						return false
					}
				case models.TrendBearish:
					if p.Value != p.Upper {
						return false
					}
				default:
					return false
				}
				if math.IsNaN(p.Value) {
					return false
				}
			}
			return true
		},
		candleSliceGen(2, 80),
	))

	properties.TestingRun(t)
}

func TestProperty_SupertrendBandsOrdered(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("basic band width is non-negative on the first two bars", prop.ForAll(
		func(candles []models.Candle) bool {
			points, err := NewSupertrend(10, 3).Calculate(candles)
			if err != nil {
				return false
			}
			return points[0].Upper >= points[0].Lower && points[1].Upper >= points[1].Lower
		},
		candleSliceGen(2, 40),
	))

	properties.TestingRun(t)
}

func TestProperty_VWAPWithinPriceRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("VWAP lies between the lowest low and highest high seen so far", prop.ForAll(
		func(candles []models.Candle) bool {
			values, err := NewVWAP().Calculate(candles)
			if err != nil {
				return false
			}
			lo, hi := math.Inf(1), math.Inf(-1)
			var volume int64
			for i, c := range candles {
				lo = math.Min(lo, c.Low)
				hi = math.Max(hi, c.High)
				volume += c.Volume
				if volume == 0 {
					if values[i] != 0 {
						return false
					}
					continue
				}
				if values[i] < lo-1e-6 || values[i] > hi+1e-6 {
					return false
				}
			}
			return true
		},
		candleSliceGen(1, 60),
	))

	properties.TestingRun(t)
}

func TestProperty_ATRIsNonNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("ATR values are non-negative", prop.ForAll(
		func(candles []models.Candle) bool {
			values, err := NewATR(10).Calculate(candles)
			if err != nil {
				return false
			}
			for _, v := range values {
				if v < 0 {
					return false
				}
			}
			return true
		},
		candleSliceGen(1, 100),
	))

	properties.TestingRun(t)
}

func trendCandles(closes ...float64) []models.Candle {
	start := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      c,
			High:      c + 5,
			Low:       c - 5,
			Close:     c,
			Volume:    1000,
		}
	}
	return out
}

func TestSupertrendFlipsOnBreakdown(t *testing.T) {
	var closes []float64
	for i := 0; i < 20; i++ {
		closes = append(closes, 22000+float64(i)*10)
	}
	// Collapse well below any trailing lower band.
	for i := 0; i < 5; i++ {
		closes = append(closes, 21500-float64(i)*50)
	}

	points, err := NewSupertrend(10, 3).Calculate(trendCandles(closes...))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if points[19].Direction != models.TrendBullish {
		t.Errorf("bar 19 direction = %s, want BULLISH", points[19].Direction)
	}
	if got := points[len(points)-1].Direction; got != models.TrendBearish {
		t.Errorf("last direction = %s, want BEARISH", got)
	}
}

func TestSupertrendFirstBarSeededBullish(t *testing.T) {
	points, err := NewSupertrend(10, 3).Calculate(trendCandles(22000))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if points[0].Direction != models.TrendBullish {
		t.Errorf("first bar direction = %s, want BULLISH", points[0].Direction)
	}
	if want := 22000 - 3*10.0; points[0].Value != want {
		t.Errorf("first bar value = %v, want %v", points[0].Value, want)
	}
}

func TestSupertrendRejectsBadInput(t *testing.T) {
	if _, err := NewSupertrend(0, 3).Calculate(trendCandles(1, 2)); err != ErrInvalidPeriod {
		t.Errorf("period 0: err = %v, want ErrInvalidPeriod", err)
	}
	if _, err := NewSupertrend(10, 3).Calculate(nil); err != ErrInsufficientData {
		t.Errorf("empty: err = %v, want ErrInsufficientData", err)
	}
}

func TestVWAPZeroVolumePrefix(t *testing.T) {
	candles := trendCandles(100, 110, 120)
	candles[0].Volume = 0
	values, err := NewVWAP().Calculate(candles)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if values[0] != 0 {
		t.Errorf("values[0] = %v, want 0", values[0])
	}
	if math.Abs(values[1]-110) > 1e-9 {
		t.Errorf("values[1] = %v, want 110", values[1])
	}
	if math.Abs(values[2]-115) > 1e-9 {
		t.Errorf("values[2] = %v, want 115", values[2])
	}
}
