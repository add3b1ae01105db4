package amm

import (
	"testing"

	"github.com/aman-zulfiqar/orbital-amm/internal/fixedpoint"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSphereSwapOutput(t *testing.T) {
	e := SphereEngine{}
	coords := uniform(2, 1_000_000)
	rSquared := tokens(2_000_000_000_000)

	out, err := e.ComputeSwapOutput(coords, rSquared, 0, 1, tokens(10_000))
	require.NoError(t, err)
	assert.Equal(t, "9900.985245583370205193", fixedpoint.Format(out))
	assert.True(t, out.Gt(tokens(9_900)))
	assert.False(t, out.Gt(tokens(10_000)))

	// Coordinates are not modified.
	assert.Equal(t, "1000000", fixedpoint.Format(coords[0]))
}

func TestSphereSwapOutputErrors(t *testing.T) {
	e := SphereEngine{}
	coords := uniform(3, 1_000)
	rSquared := tokens(3_000_000)

	_, err := e.ComputeSwapOutput(coords, rSquared, 0, 0, tokens(1))
	assert.ErrorIs(t, err, ErrTokenIndexOutOfBounds)

	_, err = e.ComputeSwapOutput(coords, rSquared, 0, 3, tokens(1))
	assert.ErrorIs(t, err, ErrTokenIndexOutOfBounds)

	_, err = e.ComputeSwapOutput(coords, rSquared, 0, 1, new(uint256.Int))
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = e.ComputeSwapOutput(coords, rSquared, 0, 1, tokens(1_000))
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)

	_, err = e.ComputeSwapOutput([]*uint256.Int{tokens(1), new(uint256.Int)}, rSquared, 0, 1, tokens(1))
	assert.ErrorIs(t, err, ErrZeroReserve)

	// A residual below zero has no real root.
	_, err = e.ComputeSwapOutput(coords, tokens(1_000_000), 0, 1, tokens(1))
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestSpherePrice(t *testing.T) {
	e := SphereEngine{}

	price, err := e.CalculatePrice(uniform(4, 7), 1, 3)
	require.NoError(t, err)
	assert.True(t, price.Eq(fixedpoint.One()))

	price, err = e.CalculatePrice([]*uint256.Int{tokens(2), tokens(1)}, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, "2", fixedpoint.Format(price))

	price, err = e.CalculatePrice([]*uint256.Int{tokens(2), tokens(1)}, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "0.5", fixedpoint.Format(price))

	_, err = e.CalculatePrice([]*uint256.Int{tokens(2), new(uint256.Int)}, 0, 1)
	assert.ErrorIs(t, err, ErrZeroReserve)
}

func TestSphereVerifyConstraint(t *testing.T) {
	e := SphereEngine{}
	rSquared := tokens(2_000_000_000_000)

	assert.NoError(t, e.VerifyConstraint(uniform(2, 1_000_000), rSquared, 0))

	off := []*uint256.Int{tokens(1_000_000), tokens(1_100_000)}
	err := e.VerifyConstraint(off, rSquared, DefaultToleranceBP)
	var cv *ConstraintViolation
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, CurveSphere, cv.Curve)
	assert.Equal(t, "2210000000000", fixedpoint.Format(cv.Actual))
	assert.ErrorIs(t, err, ErrSphereConstraintViolation)
	assert.Equal(t, "sphere_constraint_violation", KindOf(err))

	// A wide enough tolerance absorbs the same deviation.
	assert.NoError(t, e.VerifyConstraint(off, rSquared, 1_100))
}

func TestSphereSolveCenter(t *testing.T) {
	e := SphereEngine{}

	c, err := e.SolveCenter(uniform(2, 1_000_000), tokens(2_000_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, "2000000", fixedpoint.Format(c))

	reserves := []*uint256.Int{tokens(500), tokens(800), tokens(650), tokens(1_000)}
	rSquared := tokens(4_000_000)
	c, err = e.SolveCenter(reserves, rSquared)
	require.NoError(t, err)
	coords, err := coordinates(c, reserves)
	require.NoError(t, err)
	assert.NoError(t, e.VerifyConstraint(coords, rSquared, 1))

	_, err = e.SolveCenter([]*uint256.Int{tokens(100), tokens(1)}, tokens(10))
	assert.ErrorIs(t, err, ErrSphereConstraintViolation)
}

func TestSphereBalancedAndLiquidity(t *testing.T) {
	e := SphereEngine{}

	w, err := e.Balanced(tokens(2_000_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, "1000000", fixedpoint.Format(w))

	r, err := e.Liquidity(tokens(25))
	require.NoError(t, err)
	assert.Equal(t, "5", fixedpoint.Format(r))
}
