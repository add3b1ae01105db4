package amm

import (
	"fmt"

	"github.com/aman-zulfiqar/orbital-amm/internal/fixedpoint"
	"github.com/holiman/uint256"
)

type CurveKind uint8

const (
	CurveSphere CurveKind = iota
	CurveSuperellipse
)

func (k CurveKind) String() string {
	switch k {
	case CurveSphere:
		return "sphere"
	case CurveSuperellipse:
		return "superellipse"
	default:
		return fmt.Sprintf("curve(%d)", uint8(k))
	}
}

// CurveType selects the invariant family. Exponent is the 18-decimal u of a
// superellipse and is ignored for spheres.
type CurveType struct {
	Kind     CurveKind
	Exponent *uint256.Int
}

func Sphere() CurveType {
	return CurveType{Kind: CurveSphere}
}

func Superellipse(u *uint256.Int) CurveType {
	return CurveType{Kind: CurveSuperellipse, Exponent: new(uint256.Int).Set(u)}
}

func (c CurveType) String() string {
	if c.Kind == CurveSuperellipse && c.Exponent != nil {
		return fmt.Sprintf("superellipse(u=%s)", fixedpoint.Format(c.Exponent))
	}
	return c.Kind.String()
}

// Engine is the per-curve math used by trade execution. All methods take
// pool coordinates, i.e. distances of each reserve from the pool center, and
// the local invariant parameter (R² or K) where one is needed.
type Engine interface {
	Kind() CurveKind

	// Term is the contribution f(v) of one coordinate to the level sum.
	Term(v *uint256.Int) (*uint256.Int, error)

	// CalculatePrice is the marginal rate of token i in units of token j.
	CalculatePrice(coords []*uint256.Int, i, j int) (*uint256.Int, error)

	// VerifyConstraint checks Σf(v) against param within toleranceBP.
	VerifyConstraint(coords []*uint256.Int, param *uint256.Int, toleranceBP uint64) error

	// ComputeSwapOutput returns the amount of token j released for
	// amountIn of token i, all other coordinates held fixed.
	ComputeSwapOutput(coords []*uint256.Int, param *uint256.Int, i, j int, amountIn *uint256.Int) (*uint256.Int, error)

	// SolveCenter finds the center c > max(reserves) placing the reserves on
	// the surface Σf(c - x) = param.
	SolveCenter(reserves []*uint256.Int, param *uint256.Int) (*uint256.Int, error)

	// Scale returns a factor s at or above ratio^(1/u), so that
	// Σf(s·v) >= ratio·Σf(v).
	Scale(ratio *uint256.Int) (*uint256.Int, error)

	// Balanced returns w with 2·f(w) = q.
	Balanced(q *uint256.Int) (*uint256.Int, error)

	// Liquidity maps param to a comparable radius-like scalar.
	Liquidity(param *uint256.Int) (*uint256.Int, error)
}

// NewEngine returns the math for c.
func NewEngine(c CurveType) (Engine, error) {
	switch c.Kind {
	case CurveSphere:
		return SphereEngine{}, nil
	case CurveSuperellipse:
		if c.Exponent == nil || !c.Exponent.Gt(fixedpoint.One()) {
			return nil, fmt.Errorf("%w: superellipse exponent must exceed 1", ErrInvalidParameter)
		}
		if c.Exponent.Gt(fixedpoint.MaxExponent) {
			return nil, fmt.Errorf("%w: superellipse exponent above %s", ErrInvalidParameter,
				fixedpoint.Format(fixedpoint.MaxExponent))
		}
		return SuperellipseEngine{U: new(uint256.Int).Set(c.Exponent)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown curve kind %d", ErrInvalidParameter, c.Kind)
	}
}

func checkPair(n, i, j int) error {
	if i < 0 || j < 0 || i >= n || j >= n {
		return fmt.Errorf("%w: pair (%d, %d) with %d tokens", ErrTokenIndexOutOfBounds, i, j, n)
	}
	if i == j {
		return fmt.Errorf("%w: token %d paired with itself", ErrTokenIndexOutOfBounds, i)
	}
	return nil
}

// level returns Σ f(v_k), skipping the indices in skip.
func level(e Engine, coords []*uint256.Int, skip ...int) (*uint256.Int, error) {
	total := new(uint256.Int)
outer:
	for k, v := range coords {
		for _, s := range skip {
			if k == s {
				continue outer
			}
		}
		t, err := e.Term(v)
		if err != nil {
			return nil, err
		}
		if _, overflow := total.AddOverflow(total, t); overflow {
			return nil, ErrOverflow
		}
	}
	return total, nil
}

// Level returns Σ f(v_k) over all coordinates.
func Level(e Engine, coords []*uint256.Int) (*uint256.Int, error) {
	return level(e, coords)
}

func verifyLevel(e Engine, coords []*uint256.Int, param *uint256.Int, toleranceBP uint64) error {
	actual, err := level(e, coords)
	if err != nil {
		return err
	}
	allowed, err := fixedpoint.BasisPoints(param, toleranceBP)
	if err != nil {
		return err
	}
	if fixedpoint.AbsDiff(actual, param).Gt(allowed) {
		return &ConstraintViolation{Curve: e.Kind(), Actual: actual, Expected: new(uint256.Int).Set(param)}
	}
	return nil
}

// swapResidual validates a swap and returns param - Σ_{k≠i,j} f(v_k) - f(v_i - amountIn),
// the level left for coordinate j.
func swapResidual(e Engine, coords []*uint256.Int, param *uint256.Int, i, j int, amountIn *uint256.Int) (fixedpoint.Signed, error) {
	if err := checkPair(len(coords), i, j); err != nil {
		return fixedpoint.Signed{}, err
	}
	if amountIn == nil || amountIn.IsZero() {
		return fixedpoint.Signed{}, fmt.Errorf("%w: amount in must be positive", ErrInvalidParameter)
	}
	if coords[i].IsZero() || coords[j].IsZero() {
		return fixedpoint.Signed{}, ErrZeroReserve
	}
	if !amountIn.Lt(coords[i]) {
		return fixedpoint.Signed{}, fmt.Errorf("%w: input %s reaches the curve boundary",
			ErrInsufficientLiquidity, fixedpoint.Format(amountIn))
	}

	others, err := level(e, coords, i, j)
	if err != nil {
		return fixedpoint.Signed{}, err
	}
	moved, err := e.Term(new(uint256.Int).Sub(coords[i], amountIn))
	if err != nil {
		return fixedpoint.Signed{}, err
	}
	used, err := fixedpoint.Add(others, moved)
	if err != nil {
		return fixedpoint.Signed{}, err
	}
	return fixedpoint.SubSigned(param, used), nil
}

// priceRatio validates a price query and returns v_i / v_j.
func priceRatio(coords []*uint256.Int, i, j int) (*uint256.Int, error) {
	if err := checkPair(len(coords), i, j); err != nil {
		return nil, err
	}
	if coords[i].IsZero() || coords[j].IsZero() {
		return nil, ErrZeroReserve
	}
	return fixedpoint.DivWad(coords[i], coords[j])
}

// feasibleFloor checks that the reserves fit under param with the center at
// max(reserves) and returns that max. A larger level there means no center
// can place the reserves on the surface.
func feasibleFloor(e Engine, reserves []*uint256.Int, param *uint256.Int) (*uint256.Int, error) {
	hi := new(uint256.Int)
	for _, x := range reserves {
		if x.Gt(hi) {
			hi.Set(x)
		}
	}
	coords := make([]*uint256.Int, len(reserves))
	for k, x := range reserves {
		coords[k] = new(uint256.Int).Sub(hi, x)
	}
	floor, err := level(e, coords)
	if err != nil {
		return nil, err
	}
	if !floor.Lt(param) {
		return nil, &ConstraintViolation{Curve: e.Kind(), Actual: floor, Expected: new(uint256.Int).Set(param)}
	}
	return hi, nil
}

// rescale moves the coordinates from the surface of param to the surface of
// next by scaling them about the origin, which keeps every ratio v_i/v_j and
// so every marginal price. The reserves stay put and the per-token centers
// absorb the move. The factor comes from next/param rather than the measured
// level and every scaled coordinate is rounded up, so a state at or above
// its surface stays at or above the new one.
func rescale(e Engine, reserves, coords []*uint256.Int, param, next *uint256.Int) ([]*uint256.Int, error) {
	ratio, err := fixedpoint.DivWad(next, param)
	if err != nil {
		return nil, err
	}
	s, err := e.Scale(ratio.AddUint64(ratio, 1))
	if err != nil {
		return nil, err
	}

	center := make([]*uint256.Int, len(coords))
	for k, v := range coords {
		scaled, err := fixedpoint.MulWad(v, s)
		if err != nil {
			return nil, err
		}
		if center[k], err = fixedpoint.Add(reserves[k], scaled.AddUint64(scaled, 1)); err != nil {
			return nil, err
		}
	}
	return center, nil
}
