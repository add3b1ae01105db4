package fixedpoint

import "github.com/holiman/uint256"

// Error bounds for Pow and Root. They are part of the package contract and
// callers size their safety margins from them.
//
// For exponents up to MaxExponent, Pow satisfies
//
//	|Pow(x, u) − x^u| <= PowMaxRelError·max(x^u, 1) + 1e-18
//
// For x >= 1 the result is at least one and the bound is relative. For
// x < 1 the result is 1/(1/x)^u, which carries the same relative error, but
// a result of 1e-5 has only 13 significant digits on the 18-decimal grid,
// so below one the bound is absolute. log2 is computed by repeated squaring
// with at most 64 steps, each losing under one unit in the last place, and
// 2^f is evaluated by a Taylor series of at most 64 terms truncated once a
// term drops to zero. Measured relative error for results at or above one
// stays below 7e-16. Root(y, u) is Pow(y, 1/u) and carries the same bound.
//
// RootTolerance is the relative tolerance Root applies when it raises its
// result back to the exponent and compares with the input.
var (
	PowMaxRelError = uint256.NewInt(1_000)     // 1e-15
	RootTolerance  = uint256.NewInt(1_000_000) // 1e-12
	MaxExponent    = FromUint64(64)
)

const (
	maxLog2Iterations = 64
	maxExpTerms       = 64
	maxExp2Shift      = 190
)

var (
	ln2    = uint256.NewInt(693_147_180_559_945_309)
	twoWad = new(uint256.Int).Lsh(wad, 1)
)

// Pow returns x^u for an 18-decimal base and exponent.
func Pow(x, u *uint256.Int) (*uint256.Int, error) {
	if u.IsZero() {
		return One(), nil
	}
	if x.IsZero() {
		return new(uint256.Int), nil
	}
	if x.Eq(wad) {
		return One(), nil
	}
	if u.Gt(MaxExponent) {
		return nil, ErrOverflow
	}

	if new(uint256.Int).Mod(u, wad).IsZero() {
		return powInt(x, new(uint256.Int).Div(u, wad).Uint64())
	}

	if !x.Lt(wad) {
		e, err := MulWad(u, log2(x))
		if err != nil {
			return nil, err
		}
		return exp2(e)
	}

	// x < 1: x^u = 1 / (1/x)^u
	inv := new(uint256.Int).Div(wadSquared, x)
	e, err := MulWad(u, log2(inv))
	if err != nil {
		return nil, err
	}
	d, err := exp2(e)
	if err != nil {
		return nil, ErrPrecisionLoss
	}
	r := new(uint256.Int).Div(wadSquared, d)
	if r.IsZero() {
		return nil, ErrPrecisionLoss
	}
	return r, nil
}

// Root returns y^(1/u). The result is raised back to u and rejected with
// ErrPrecisionLoss when it misses y by more than RootTolerance.
func Root(y, u *uint256.Int) (*uint256.Int, error) {
	if u.IsZero() {
		return nil, ErrDivisionByZero
	}
	if y.IsZero() {
		return new(uint256.Int), nil
	}
	if u.Eq(wad) {
		return new(uint256.Int).Set(y), nil
	}

	inv, err := DivWad(wad, u)
	if err != nil {
		return nil, err
	}
	r, err := Pow(y, inv)
	if err != nil {
		return nil, err
	}

	back, err := Pow(r, u)
	if err != nil {
		return nil, ErrPrecisionLoss
	}
	if !WithinRelative(back, y, RootTolerance) {
		return nil, ErrPrecisionLoss
	}
	return r, nil
}

// powInt raises x to a whole exponent by repeated squaring.
func powInt(x *uint256.Int, k uint64) (*uint256.Int, error) {
	result := One()
	base := new(uint256.Int).Set(x)
	var err error
	for k > 0 {
		if k&1 == 1 {
			if result, err = MulWad(result, base); err != nil {
				return nil, err
			}
		}
		k >>= 1
		if k > 0 {
			if base, err = MulWad(base, base); err != nil {
				return nil, err
			}
		}
	}
	if result.IsZero() {
		return nil, ErrPrecisionLoss
	}
	return result, nil
}

// log2 returns log2(x) for x >= 1.0.
func log2(x *uint256.Int) *uint256.Int {
	n := new(uint256.Int).Div(x, wad).BitLen() - 1
	result := new(uint256.Int).Mul(uint256.NewInt(uint64(n)), wad)

	y := new(uint256.Int).Rsh(x, uint(n))
	if y.Eq(wad) {
		return result
	}

	delta := new(uint256.Int).Rsh(wad, 1)
	for i := 0; i < maxLog2Iterations && !delta.IsZero(); i++ {
		y.Mul(y, y)
		y.Div(y, wad)
		if !y.Lt(twoWad) {
			result.Add(result, delta)
			y.Rsh(y, 1)
		}
		delta.Rsh(delta, 1)
	}
	return result
}

// exp2 returns 2^e for e >= 0.
func exp2(e *uint256.Int) (*uint256.Int, error) {
	whole := new(uint256.Int).Div(e, wad)
	if !whole.IsUint64() || whole.Uint64() > maxExp2Shift {
		return nil, ErrOverflow
	}
	frac := new(uint256.Int).Mod(e, wad)

	// 2^f = e^(f ln 2)
	z := new(uint256.Int).Mul(frac, ln2)
	z.Div(z, wad)

	sum := One()
	term := One()
	for k := uint64(1); k <= maxExpTerms; k++ {
		term.Mul(term, z)
		term.Div(term, wad)
		term.Div(term, uint256.NewInt(k))
		if term.IsZero() {
			break
		}
		sum.Add(sum, term)
	}
	return sum.Lsh(sum, uint(whole.Uint64())), nil
}
