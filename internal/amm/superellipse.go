package amm

import (
	"errors"
	"fmt"

	"github.com/aman-zulfiqar/orbital-amm/internal/fixedpoint"
	"github.com/holiman/uint256"
)

const maxCenterIterations = 256

// SuperellipseEngine implements Σ v_k^u = K with an 18-decimal exponent u > 1.
//
// Powers and roots come from fixedpoint.Pow and fixedpoint.Root, so every
// term carries a relative error of at most fixedpoint.PowMaxRelError. Swap
// output is reduced by a margin covering that error on the whole level sum,
// which keeps rounding in the pool's favour.
type SuperellipseEngine struct {
	U *uint256.Int
}

func (SuperellipseEngine) Kind() CurveKind { return CurveSuperellipse }

// Term returns v^u. Coordinates below one token whose power underflows the
// 18-decimal scale contribute zero.
func (e SuperellipseEngine) Term(v *uint256.Int) (*uint256.Int, error) {
	t, err := fixedpoint.Pow(v, e.U)
	if errors.Is(err, fixedpoint.ErrPrecisionLoss) && v.Lt(fixedpoint.One()) {
		return new(uint256.Int), nil
	}
	return t, err
}

// CalculatePrice returns (v_i / v_j)^(u-1).
func (e SuperellipseEngine) CalculatePrice(coords []*uint256.Int, i, j int) (*uint256.Int, error) {
	ratio, err := priceRatio(coords, i, j)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Pow(ratio, new(uint256.Int).Sub(e.U, fixedpoint.One()))
}

func (e SuperellipseEngine) VerifyConstraint(coords []*uint256.Int, k *uint256.Int, toleranceBP uint64) error {
	return verifyLevel(e, coords, k, toleranceBP)
}

func (e SuperellipseEngine) ComputeSwapOutput(coords []*uint256.Int, k *uint256.Int, i, j int, amountIn *uint256.Int) (*uint256.Int, error) {
	rest, err := swapResidual(e, coords, k, i, j, amountIn)
	if err != nil {
		return nil, err
	}
	if rest.IsNegative() || rest.Abs.IsZero() {
		return nil, fmt.Errorf("%w: trade leaves the surface", ErrInsufficientLiquidity)
	}

	w, err := fixedpoint.Root(rest.Abs, e.U)
	if err != nil {
		return nil, err
	}
	margin, err := e.margin(w, k, rest.Abs, len(coords))
	if err != nil {
		return nil, err
	}

	if w.Lt(coords[j]) {
		return nil, fmt.Errorf("%w: root %s below coordinate %s", ErrNoSolution,
			fixedpoint.Format(w), fixedpoint.Format(coords[j]))
	}
	out := new(uint256.Int).Sub(w, coords[j])
	if !out.Gt(margin) {
		return new(uint256.Int), nil
	}
	return out.Sub(out, margin), nil
}

// margin bounds the error of w = T^(1/u) when T = K − Σ terms. Each of the
// n terms is off by at most PowMaxRelError·max(term, 1) + 1 wei, so T is off
// by at most PowMaxRelError·K + n·(PowMaxRelError + 1 wei). The margin is
// 2·PowMaxRelError·w·(K/T + 1) + w·n·(PowMaxRelError + 1 wei)/T + 1.
func (e SuperellipseEngine) margin(w, k, t *uint256.Int, n int) (*uint256.Int, error) {
	scaled, err := fixedpoint.MulDiv(w, k, t)
	if err != nil {
		return nil, err
	}
	if scaled, err = fixedpoint.Add(scaled, w); err != nil {
		return nil, err
	}
	twice := new(uint256.Int).Lsh(fixedpoint.PowMaxRelError, 1)
	m, err := fixedpoint.MulWad(scaled, twice)
	if err != nil {
		return nil, err
	}

	perTerm := new(uint256.Int).AddUint64(fixedpoint.PowMaxRelError, 1)
	floor, err := fixedpoint.MulDiv(w, perTerm.Mul(perTerm, uint256.NewInt(uint64(n))), t)
	if err != nil {
		return nil, err
	}
	if m, err = fixedpoint.Add(m, floor); err != nil {
		return nil, err
	}
	return m.AddUint64(m, 1), nil
}

// Scale returns ratio^(1/u) raised by twice the root's error bound.
func (e SuperellipseEngine) Scale(ratio *uint256.Int) (*uint256.Int, error) {
	s, err := fixedpoint.Root(ratio, e.U)
	if err != nil {
		return nil, err
	}
	pad, err := fixedpoint.MulWad(s, new(uint256.Int).Lsh(fixedpoint.PowMaxRelError, 1))
	if err != nil {
		return nil, err
	}
	s.Add(s, pad)
	return s.AddUint64(s, 1), nil
}

func (e SuperellipseEngine) Balanced(q *uint256.Int) (*uint256.Int, error) {
	return fixedpoint.Root(new(uint256.Int).Rsh(q, 1), e.U)
}

// Liquidity returns K^(1/u).
func (e SuperellipseEngine) Liquidity(k *uint256.Int) (*uint256.Int, error) {
	return fixedpoint.Root(k, e.U)
}
