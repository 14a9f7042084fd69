package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits of one token.
const Decimals = 8

// Unit is one whole token expressed in minor units.
const Unit Amount = 100_000_000

// Amount is a token quantity in integer minor units (1 token = 10^8).
type Amount int64

// Tokens converts a whole-token count into minor units.
func Tokens(n int64) Amount {
	return Amount(n) * Unit
}

// ParseAmount parses a decimal token string ("12.5") into minor units.
// Rejects negative values and precision finer than one minor unit.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a decimal amount", ErrInvalidAmount, s)
	}
	return AmountFromDecimal(d)
}

// AmountFromDecimal converts a token-denominated decimal into minor units.
func AmountFromDecimal(d decimal.Decimal) (Amount, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, d)
	}
	minor := d.Shift(Decimals)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than %d decimals", ErrInvalidAmount, d, Decimals)
	}
	return Amount(minor.IntPart()), nil
}

// Decimal returns the amount in whole tokens.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Decimals)
}

// Float returns the amount in whole tokens as float64. Display and scoring only.
func (a Amount) Float() float64 {
	f, _ := a.Decimal().Float64()
	return f
}

// String formats the amount in whole tokens, e.g. "1000.5".
func (a Amount) String() string {
	return a.Decimal().String()
}

// IsPositive reports whether the amount is strictly greater than zero.
func (a Amount) IsPositive() bool {
	return a > 0
}

// MulBps returns a × bps / 10000, floored to a minor unit.
func (a Amount) MulBps(bps int64) Amount {
	return Amount(decimal.NewFromInt(int64(a)).
		Mul(decimal.NewFromInt(bps)).
		Shift(-4).
		Floor().
		IntPart())
}

// MarshalText encodes the amount as a decimal token string.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses a decimal token string. Unlike ParseAmount it admits
// negative values so that any marshalled amount round-trips.
func (a *Amount) UnmarshalText(b []byte) error {
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("%w: %q is not a decimal amount", ErrInvalidAmount, b)
	}
	minor := d.Shift(Decimals)
	if !minor.IsInteger() {
		return fmt.Errorf("%w: %s has more than %d decimals", ErrInvalidAmount, d, Decimals)
	}
	*a = Amount(minor.IntPart())
	return nil
}
