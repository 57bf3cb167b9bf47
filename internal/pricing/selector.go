package pricing

import (
	"math"

	"nifty-strangler/internal/models"
)

// RoundToStrike rounds price to the nearest multiple of step, half away
// from zero.
func RoundToStrike(price float64, step int) int {
	if step <= 0 {
		return int(math.Round(price))
	}
	return int(math.Round(price/float64(step))) * step
}

// Selector picks strikes from a ladder centred on the at-the-money strike.
type Selector struct {
	model *Model
	step  int
	span  int
}

// NewSelector creates a selector scanning ±span points in step increments.
func NewSelector(model *Model, step, span int) *Selector {
	return &Selector{model: model, step: step, span: span}
}

// Step returns the strike step.
func (s *Selector) Step() int {
	return s.step
}

// ATM returns the at-the-money strike for spot.
func (s *Selector) ATM(spot float64) int {
	return RoundToStrike(spot, s.step)
}

// FindStrikeByDelta scans strikes from ATM-span to ATM+span upward and
// returns the one whose |delta| is closest to target. The first strict
// minimum wins, so ties resolve to the lower strike. Without a positive
// step there is no ladder and ATM is returned.
func (s *Selector) FindStrikeByDelta(spot, T, target float64, typ models.OptionType) int {
	atm := s.ATM(spot)
	if s.step <= 0 {
		return atm
	}
	best := atm
	bestDiff := math.Inf(1)

	for strike := atm - s.span; strike <= atm+s.span; strike += s.step {
		if strike <= 0 {
			continue
		}
		g := s.model.DefaultGreeks(spot, strike, T, typ)
		diff := math.Abs(math.Abs(g.Delta) - target)
		if diff < bestDiff {
			bestDiff = diff
			best = strike
		}
	}
	return best
}
