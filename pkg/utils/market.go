package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"nifty-strangler/internal/models"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// TimeOfDay is an exchange-local wall clock time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// MustTimeOfDay is ParseTimeOfDay for values already validated.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// On returns the instant of t on the calendar day of d, in d's location.
func (t TimeOfDay) On(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, d.Location())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MinutesOf returns the minutes since midnight of now in IST.
func MinutesOf(now time.Time) int {
	n := now.In(IndiaLocation)
	return n.Hour()*60 + n.Minute()
}

// InWindow reports whether now (IST) lies within [start, end] inclusive.
func InWindow(now time.Time, start, end TimeOfDay) bool {
	m := MinutesOf(now)
	return m >= start.Minutes() && m <= end.Minutes()
}

// IsWeekend reports whether now falls on Saturday or Sunday in IST.
func IsWeekend(now time.Time) bool {
	wd := now.In(IndiaLocation).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// GetMarketStatus returns the market status at now.
func GetMarketStatus(now time.Time) models.MarketStatus {
	if IsWeekend(now) {
		return models.MarketClosed
	}

	m := MinutesOf(now)

	// Pre-open: 9:00 - 9:15
	if m >= 540 && m < 555 {
		return models.MarketPreOpen
	}
	// Market open: 9:15 - 15:30
	if m >= 555 && m < 930 {
		return models.MarketOpen
	}
	return models.MarketClosed
}

// ParseWeekday parses an English weekday name such as "thursday" or "THU".
func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if key == name || key == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid weekday %q", s)
}

// TradeDate truncates now to its IST calendar date.
func TradeDate(now time.Time) time.Time {
	n := now.In(IndiaLocation)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, IndiaLocation)
}

// IsExpiryDay reports whether now (IST) falls on the weekly expiry weekday.
func IsExpiryDay(now time.Time, weekday time.Weekday) bool {
	return now.In(IndiaLocation).Weekday() == weekday
}

// NearestWeeklyExpiry returns the next expiry date on weekday. On the
// expiry day itself the current date is used until 15:00 IST, after
// which the following week's expiry is returned.
func NearestWeeklyExpiry(now time.Time, weekday time.Weekday) models.Expiry {
	n := now.In(IndiaLocation)
	days := (int(weekday) - int(n.Weekday()) + 7) % 7
	if days == 0 && n.Hour() >= 15 {
		days = 7
	}
	d := TradeDate(n).AddDate(0, 0, days)
	return models.Expiry{Date: d}
}
