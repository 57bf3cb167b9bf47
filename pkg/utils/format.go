// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RoundMoney rounds a rupee amount to paise, half away from zero.
func RoundMoney(amount float64) float64 {
	f, _ := decimal.NewFromFloat(amount).Round(2).Float64()
	return f
}

// FormatIndianCurrency formats a number in Indian currency format (lakhs, crores).
func FormatIndianCurrency(amount float64) string {
	d := decimal.NewFromFloat(amount).Round(2)
	negative := d.IsNegative()
	if negative {
		d = d.Neg()
	}

	parts := strings.SplitN(d.StringFixed(2), ".", 2)
	result := "₹" + formatIndianNumber(parts[0]) + "." + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

// formatIndianNumber groups an integer string as 12,34,567.
func formatIndianNumber(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	result := s[n-3:]
	s = s[:n-3]

	for len(s) > 0 {
		if len(s) >= 2 {
			result = s[len(s)-2:] + "," + result
			s = s[:len(s)-2]
		} else {
			result = s + "," + result
			s = ""
		}
	}

	return result
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatPnL formats a P&L amount with an explicit sign.
func FormatPnL(pnl float64) string {
	if pnl > 0 {
		return "+" + FormatIndianCurrency(pnl)
	}
	return FormatIndianCurrency(pnl)
}
