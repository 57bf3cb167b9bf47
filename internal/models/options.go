package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// OptionType is CE (call) or PE (put).
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

// IsCall reports whether the option is a call.
func (t OptionType) IsCall() bool {
	return t == OptionCall
}

// Valid reports whether t is a known option type.
func (t OptionType) Valid() bool {
	return t == OptionCall || t == OptionPut
}

// ParseOptionType accepts CE/PE as well as CALL/PUT.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CE", "CALL", "C":
		return OptionCall, nil
	case "PE", "PUT", "P":
		return OptionPut, nil
	}
	return "", fmt.Errorf("unknown option type %q", s)
}

// Greeks is an immutable set of option sensitivities computed for one
// (spot, strike, time, type) tuple. Recompute it, never patch it.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"` // per calendar day
	Vega  float64 `json:"vega"`  // per 1 vol point
	IV    float64 `json:"iv"`
}

// IsFinite reports whether every field is a finite number.
func (g Greeks) IsFinite() bool {
	for _, v := range []float64{g.Delta, g.Gamma, g.Theta, g.Vega, g.IV} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ExpiryClose is the hour and minute at which weekly options expire.
const (
	ExpiryCloseHour   = 15
	ExpiryCloseMinute = 30
)

// Expiry identifies a weekly option expiry date.
type Expiry struct {
	Date time.Time
}

// Token renders the expiry as YYMMMDD, e.g. 24JUN06.
func (e Expiry) Token() string {
	return strings.ToUpper(e.Date.Format("06Jan02"))
}

// At returns the instant of expiry (15:30 exchange time on the expiry date).
func (e Expiry) At() time.Time {
	d := e.Date
	return time.Date(d.Year(), d.Month(), d.Day(), ExpiryCloseHour, ExpiryCloseMinute, 0, 0, d.Location())
}

// IsZero reports whether the expiry is unset.
func (e Expiry) IsZero() bool {
	return e.Date.IsZero()
}

// ParseExpiry parses a YYMMMDD token in the given location.
func ParseExpiry(token string, loc *time.Location) (Expiry, error) {
	t, err := time.ParseInLocation("06Jan02", token, loc)
	if err != nil {
		return Expiry{}, fmt.Errorf("parsing expiry %q: %w", token, err)
	}
	return Expiry{Date: t}, nil
}

// YearsFrom returns the time from now to the expiry in years, floored
// at min so downstream formulas never divide by zero.
func (e Expiry) YearsFrom(now time.Time, min float64) float64 {
	t := e.At().Sub(now).Seconds() / (365 * 24 * 3600)
	if t < min {
		return min
	}
	return t
}
