// Package fixedpoint implements checked unsigned 18-decimal arithmetic on
// 256-bit integers. Every function is pure and reports arithmetic faults as
// errors instead of wrapping.
package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

// Decimals is the number of fractional digits carried by every value.
const Decimals = 18

var (
	ErrOverflow           = errors.New("arithmetic overflow")
	ErrUnderflow          = errors.New("arithmetic underflow")
	ErrDivisionByZero     = errors.New("division by zero")
	ErrNegativeSquareRoot = errors.New("square root of negative value")
	ErrPrecisionLoss      = errors.New("precision loss")
)

var (
	wad        = uint256.NewInt(1_000_000_000_000_000_000)
	wadSquared = new(uint256.Int).Mul(wad, wad)
	bpsDenom   = uint256.NewInt(10_000)
)

// One returns 1.0 in 18-decimal representation.
func One() *uint256.Int {
	return new(uint256.Int).Set(wad)
}

// FromUint64 scales a whole number of units to 18 decimals.
func FromUint64(n uint64) *uint256.Int {
	z := uint256.NewInt(n)
	return z.Mul(z, wad)
}

// Zero returns a fresh zero value.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	if x.Lt(y) {
		return nil, ErrUnderflow
	}
	return new(uint256.Int).Sub(x, y), nil
}

// Mul multiplies two raw integers.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Div is floor division of two raw integers.
func Div(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Div(x, y), nil
}

// MulDiv returns floor(x*y/d) using a 512-bit intermediate product.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulWad multiplies two 18-decimal values, rounding down.
func MulWad(x, y *uint256.Int) (*uint256.Int, error) {
	return MulDiv(x, y, wad)
}

// DivWad divides two 18-decimal values, rounding down.
func DivWad(x, y *uint256.Int) (*uint256.Int, error) {
	return MulDiv(x, wad, y)
}

// Sum adds all values with overflow checking.
func Sum(values []*uint256.Int) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, v := range values {
		if _, overflow := total.AddOverflow(total, v); overflow {
			return nil, ErrOverflow
		}
	}
	return total, nil
}

// AbsDiff returns |x - y|.
func AbsDiff(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return new(uint256.Int).Sub(y, x)
	}
	return new(uint256.Int).Sub(x, y)
}

func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return new(uint256.Int).Set(x)
	}
	return new(uint256.Int).Set(y)
}

func Max(x, y *uint256.Int) *uint256.Int {
	if x.Gt(y) {
		return new(uint256.Int).Set(x)
	}
	return new(uint256.Int).Set(y)
}

// BasisPoints returns floor(value * bp / 10000).
func BasisPoints(value *uint256.Int, bp uint64) (*uint256.Int, error) {
	return MulDiv(value, uint256.NewInt(bp), bpsDenom)
}

// DeviationBP returns |a - b| relative to b in basis points, rounded down.
// The result saturates at the maximum uint64.
func DeviationBP(a, b *uint256.Int) (uint64, error) {
	bp, err := MulDiv(AbsDiff(a, b), bpsDenom, b)
	if err != nil {
		return 0, err
	}
	if !bp.IsUint64() {
		return ^uint64(0), nil
	}
	return bp.Uint64(), nil
}

// WithinRelative reports whether |a - b| <= b * tolWad / 1e18.
func WithinRelative(a, b, tolWad *uint256.Int) bool {
	allowed, err := MulWad(b, tolWad)
	if err != nil {
		return false
	}
	return !AbsDiff(a, b).Gt(allowed)
}

// Signed is a sign and magnitude pair for intermediate results that may fall
// below zero before being validated.
type Signed struct {
	Abs *uint256.Int
	Neg bool
}

// SubSigned returns x - y without failing on underflow.
func SubSigned(x, y *uint256.Int) Signed {
	if x.Lt(y) {
		return Signed{Abs: new(uint256.Int).Sub(y, x), Neg: true}
	}
	return Signed{Abs: new(uint256.Int).Sub(x, y)}
}

// IsNegative reports whether s is strictly below zero.
func (s Signed) IsNegative() bool {
	return s.Neg && !s.Abs.IsZero()
}
