package fixedpoint

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Parse converts a human decimal string such as "1000000.25" to its
// 18-decimal representation. More than 18 fractional digits is rejected.
func Parse(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", s, err)
	}
	return FromDecimal(d)
}

// MustParse is Parse for constants in tests and fixtures.
func MustParse(s string) *uint256.Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func FromDecimal(d decimal.Decimal) (*uint256.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %s: %w", d.String(), ErrUnderflow)
	}
	scaled := d.Shift(Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimals: %w", d.String(), Decimals, ErrPrecisionLoss)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("amount %s: %w", d.String(), ErrOverflow)
	}
	return v, nil
}

func ToDecimal(v *uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v.ToBig(), -Decimals)
}

// Format renders an 18-decimal value as a trimmed decimal string.
func Format(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return ToDecimal(v).String()
}
