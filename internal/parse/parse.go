// Package parse resolves the relative configuration string forms the
// config file accepts — "50%", "3x", "pool", "market" — into absolute
// numbers, and reports a ConfigError-shaped error for anything else.
package parse

import (
	"fmt"
	"strconv"
	"strings"
)

// Percent parses a "N%" string into a fraction in [0, +inf). Returns
// ok=false if s is not of that form.
func Percent(s string) (frac float64, ok bool) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, false
	}
	return n / 100, true
}

// Multiplier parses a "Nx" string into N. Returns ok=false if s is not of
// that form.
func Multiplier(s string) (n float64, ok bool) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "x") && !strings.HasSuffix(s, "X") {
		return 0, false
	}
	n, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsPool reports whether s names the "pool" price source.
func IsPool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "pool")
}

// IsMarket reports whether s names the "market" price source.
func IsMarket(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "market")
}

// Absolute parses a plain numeric string.
func Absolute(s string) (float64, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parse: %q is not a number: %w", s, err)
	}
	return n, nil
}

// MinMax resolves a minPrice/maxPrice field against a reference price mp.
// "Nx" on minPrice means mp/N; "Nx" on maxPrice means mp*N; otherwise the
// field is parsed as an absolute number.
func MinMax(s string, mp float64, isMax bool) (float64, error) {
	if n, ok := Multiplier(s); ok {
		if n <= 0 {
			return 0, fmt.Errorf("parse: relative multiplier %q must be > 0", s)
		}
		if isMax {
			return mp * n, nil
		}
		return mp / n, nil
	}
	return Absolute(s)
}

// BotFunds resolves a botFunds.{buy,sell} field. Returns the resolved
// value and whether it is a percentage of account balance (true) or an
// absolute amount (false), matching the two forms in the data model:
// allocated = chainTotal * botFunds% (percent form) or
// allocated = min(value, chainTotal) (absolute form).
func BotFunds(s string) (value float64, isPercent bool, err error) {
	if frac, ok := Percent(s); ok {
		return frac, true, nil
	}
	abs, err := Absolute(s)
	if err != nil {
		return 0, false, fmt.Errorf("parse botFunds: %w", err)
	}
	return abs, false, nil
}
