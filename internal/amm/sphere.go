package amm

import (
	"errors"
	"fmt"

	"github.com/aman-zulfiqar/orbital-amm/internal/fixedpoint"
	"github.com/holiman/uint256"
)

// SphereEngine implements the invariant Σ v_k² = R² over 18-decimal
// coordinates. Squares are 18-decimal products, so R² carries the same scale.
type SphereEngine struct{}

func (SphereEngine) Kind() CurveKind { return CurveSphere }

func (SphereEngine) Term(v *uint256.Int) (*uint256.Int, error) {
	return fixedpoint.MulWad(v, v)
}

// CalculatePrice returns v_i / v_j, the ratio of the implicit gradient
// components of Σv² along the two axes.
func (SphereEngine) CalculatePrice(coords []*uint256.Int, i, j int) (*uint256.Int, error) {
	return priceRatio(coords, i, j)
}

func (e SphereEngine) VerifyConstraint(coords []*uint256.Int, rSquared *uint256.Int, toleranceBP uint64) error {
	return verifyLevel(e, coords, rSquared, toleranceBP)
}

// ComputeSwapOutput solves (v_j + out)² = R² − Σ_{k≠i,j} v_k² − (v_i − amountIn)².
// Depositing token i moves its coordinate toward the center, so v_i shrinks
// and v_j grows by the released amount. The root is floored.
func (e SphereEngine) ComputeSwapOutput(coords []*uint256.Int, rSquared *uint256.Int, i, j int, amountIn *uint256.Int) (*uint256.Int, error) {
	rest, err := swapResidual(e, coords, rSquared, i, j, amountIn)
	if err != nil {
		return nil, err
	}

	scaled, err := fixedpoint.Mul(rest.Abs, fixedpoint.One())
	if err != nil {
		return nil, err
	}
	w, err := fixedpoint.SqrtSigned(fixedpoint.Signed{Abs: scaled, Neg: rest.Neg})
	if errors.Is(err, fixedpoint.ErrNegativeSquareRoot) {
		return nil, fmt.Errorf("%w: trade leaves the sphere", ErrInsufficientLiquidity)
	}
	if err != nil {
		return nil, err
	}

	if w.Lt(coords[j]) {
		return nil, fmt.Errorf("%w: root %s below coordinate %s", ErrNoSolution,
			fixedpoint.Format(w), fixedpoint.Format(coords[j]))
	}
	return new(uint256.Int).Sub(w, coords[j]), nil
}

// SolveCenter solves n·c² − 2c·Σx + Σx² − R² = 0 for the larger root,
// in raw squared units. Flooring keeps the reserves on or inside the surface.
func (e SphereEngine) SolveCenter(reserves []*uint256.Int, rSquared *uint256.Int) (*uint256.Int, error) {
	hi, err := feasibleFloor(e, reserves, rSquared)
	if err != nil {
		return nil, err
	}

	n := uint256.NewInt(uint64(len(reserves)))
	s1, err := fixedpoint.Sum(reserves)
	if err != nil {
		return nil, err
	}
	s2 := new(uint256.Int)
	for _, x := range reserves {
		sq, err := fixedpoint.Mul(x, x)
		if err != nil {
			return nil, err
		}
		if s2, err = fixedpoint.Add(s2, sq); err != nil {
			return nil, err
		}
	}

	target, err := fixedpoint.Mul(rSquared, fixedpoint.One())
	if err != nil {
		return nil, err
	}
	s1sq, err := fixedpoint.Mul(s1, s1)
	if err != nil {
		return nil, err
	}
	nTarget, err := fixedpoint.Mul(n, target)
	if err != nil {
		return nil, err
	}
	nS2, err := fixedpoint.Mul(n, s2)
	if err != nil {
		return nil, err
	}
	pos, err := fixedpoint.Add(s1sq, nTarget)
	if err != nil {
		return nil, err
	}
	disc, err := fixedpoint.Sub(pos, nS2)
	if err != nil {
		return nil, fmt.Errorf("%w: negative discriminant", ErrNoSolution)
	}
	root, err := fixedpoint.Sqrt(disc)
	if err != nil {
		return nil, err
	}

	c, err := fixedpoint.Add(s1, root)
	if err != nil {
		return nil, err
	}
	c.Div(c, n)
	if !c.Gt(hi) {
		return nil, fmt.Errorf("%w: center %s does not exceed reserve %s", ErrNoSolution,
			fixedpoint.Format(c), fixedpoint.Format(hi))
	}
	return c, nil
}

// Scale returns sqrt(ratio) rounded up.
func (SphereEngine) Scale(ratio *uint256.Int) (*uint256.Int, error) {
	s, err := fixedpoint.SqrtWad(ratio)
	if err != nil {
		return nil, err
	}
	return s.AddUint64(s, 1), nil
}

func (SphereEngine) Balanced(q *uint256.Int) (*uint256.Int, error) {
	return fixedpoint.SqrtWad(new(uint256.Int).Rsh(q, 1))
}

// Liquidity returns the radius R.
func (SphereEngine) Liquidity(rSquared *uint256.Int) (*uint256.Int, error) {
	return fixedpoint.SqrtWad(rSquared)
}
