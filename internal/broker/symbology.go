package broker

import (
	"fmt"
	"strings"
	"time"

	"nifty-strangler/internal/models"
	"nifty-strangler/pkg/utils"
)

// Symbology builds exchange trading symbols for index options.
type Symbology struct {
	Exchange      models.Exchange
	Underlying    string
	ExpiryWeekday time.Weekday
}

// NewSymbology creates NFO symbology for underlying.
func NewSymbology(underlying string, weekday time.Weekday) Symbology {
	return Symbology{
		Exchange:      models.NFO,
		Underlying:    strings.ToUpper(underlying),
		ExpiryWeekday: weekday,
	}
}

// NearestWeeklyExpiry returns the current weekly expiry, rolling to the
// next week after 15:00 IST on expiry day.
func (s Symbology) NearestWeeklyExpiry(now time.Time) models.Expiry {
	return utils.NearestWeeklyExpiry(now, s.ExpiryWeekday)
}

// IsMonthlyExpiry reports whether e is the last expiry of its month.
func (s Symbology) IsMonthlyExpiry(e models.Expiry) bool {
	return e.Date.AddDate(0, 0, 7).Month() != e.Date.Month()
}

// TradingSymbol renders the exchange trading symbol.
//
//	weekly:  NIFTY2460622000CE (YY, month code 1-9/O/N/D, DD)
//	monthly: NIFTY24JUN22000CE
func (s Symbology) TradingSymbol(strike int, typ models.OptionType, e models.Expiry) string {
	d := e.Date
	var expiry string
	if s.IsMonthlyExpiry(e) {
		expiry = strings.ToUpper(d.Format("06Jan"))
	} else {
		expiry = fmt.Sprintf("%s%s%02d", d.Format("06"), monthCode(d.Month()), d.Day())
	}
	return fmt.Sprintf("%s%s%d%s", s.Underlying, expiry, strike, typ)
}

// BuildOptionSymbol returns the quote key, EXCHANGE:TRADINGSYMBOL.
func (s Symbology) BuildOptionSymbol(strike int, typ models.OptionType, e models.Expiry) string {
	return string(s.Exchange) + ":" + s.TradingSymbol(strike, typ, e)
}

func monthCode(m time.Month) string {
	switch m {
	case time.October:
		return "O"
	case time.November:
		return "N"
	case time.December:
		return "D"
	default:
		return fmt.Sprintf("%d", int(m))
	}
}
