package fixedpoint

import "github.com/holiman/uint256"

// Newton's method started above the root converges in well under 16 steps
// for 256-bit inputs; the cap only guards the loop.
const maxSqrtIterations = 64

// Sqrt returns floor(sqrt(x)) for a raw integer.
func Sqrt(x *uint256.Int) (*uint256.Int, error) {
	if x.IsZero() {
		return new(uint256.Int), nil
	}

	// 2^ceil(bits/2) is never below the root, so the iteration decreases
	// monotonically and stops at the floor.
	z := new(uint256.Int).Lsh(uint256.NewInt(1), uint((x.BitLen()+1)/2))
	y := new(uint256.Int)
	for i := 0; i < maxSqrtIterations; i++ {
		y.Div(x, z)
		y.Add(y, z)
		y.Rsh(y, 1)
		if !y.Lt(z) {
			return z, nil
		}
		z.Set(y)
	}
	return nil, ErrPrecisionLoss
}

// SqrtSigned is Sqrt over a signed intermediate.
func SqrtSigned(s Signed) (*uint256.Int, error) {
	if s.IsNegative() {
		return nil, ErrNegativeSquareRoot
	}
	return Sqrt(s.Abs)
}

// SqrtWad returns sqrt(x) for an 18-decimal value as an 18-decimal value.
func SqrtWad(x *uint256.Int) (*uint256.Int, error) {
	scaled, err := Mul(x, wad)
	if err != nil {
		return nil, err
	}
	return Sqrt(scaled)
}
