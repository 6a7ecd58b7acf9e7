// Package core provides amount parsing for transaction input.
//
// Amounts are currency-agnostic and kept as exact decimals end to end; they
// are never converted to floating point.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyAmount    = errors.New("empty amount")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrNegativeAmount = errors.New("negative amount")
)

const (
	maxAmountInput    = 64
	maxIntegerDigits  = 30
	maxFractionDigits = 10
)

// ParseAmount converts user input to a non-negative decimal.
//
// Leading and trailing whitespace is ignored. Anything decimal.NewFromString
// accepts is numeric, including exponents ("1e3"), as long as the value fits
// in maxIntegerDigits integer digits and maxFractionDigits decimals. The
// bound is checked on the coefficient and exponent before any arithmetic, so
// inputs like "1e999999999" are rejected without being expanded.
//
// Examples:
//
//	ParseAmount("5000")   -> 5000, nil
//	ParseAmount("12.50")  -> 12.5, nil
//	ParseAmount("-1")     -> 0, ErrNegativeAmount
//	ParseAmount("abc")    -> 0, ErrInvalidAmount
//	ParseAmount("1e40")   -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrEmptyAmount
	}
	if len(s) > maxAmountInput {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.IsZero() {
		// "0e-999999999" is zero too; drop its exponent.
		return decimal.Zero, nil
	}
	if !withinBounds(d) {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	return d, nil
}

// withinBounds reports whether d has at most maxIntegerDigits digits before
// the point and maxFractionDigits after it.
func withinBounds(d decimal.Decimal) bool {
	exp := int64(d.Exponent())
	if exp < -maxFractionDigits {
		return false
	}
	return d.NumDigits()+int(exp) <= maxIntegerDigits
}
