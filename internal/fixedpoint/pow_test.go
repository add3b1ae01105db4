package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertClose(t *testing.T, want string, got *uint256.Int) {
	t.Helper()
	w := MustParse(want)
	assert.True(t, WithinRelative(got, w, PowMaxRelError), "want %s got %s", want, Format(got))
}

func TestPowIntegerExponentIsExact(t *testing.T) {
	got, err := Pow(FromUint64(2), FromUint64(3))
	require.NoError(t, err)
	assert.Equal(t, "8", Format(got))

	got, err = Pow(MustParse("1.5"), FromUint64(2))
	require.NoError(t, err)
	assert.Equal(t, "2.25", Format(got))
}

func TestPowFractionalExponent(t *testing.T) {
	tests := []struct {
		name string
		x    string
		u    string
		want string
	}{
		{"square root", "4", "0.5", "2"},
		{"large base", "1000", "2.5", "31622776.601683793319988935"},
		{"base below one", "0.5", "1.5", "0.353553390593273762"},
		{"cube root", "27", "0.333333333333333333", "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Pow(MustParse(tt.x), MustParse(tt.u))
			require.NoError(t, err)
			if tt.name == "cube root" {
				// 1/3 is itself truncated at 18 decimals
				assert.True(t, WithinRelative(got, MustParse(tt.want), RootTolerance))
				return
			}
			assertClose(t, tt.want, got)
		})
	}
}

func TestPowEdgeCases(t *testing.T) {
	got, err := Pow(FromUint64(12345), new(uint256.Int))
	require.NoError(t, err)
	assert.True(t, got.Eq(One()))

	got, err = Pow(new(uint256.Int), MustParse("2.5"))
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = Pow(FromUint64(1_000_000_000_000), FromUint64(10))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Pow(FromUint64(1_000_000_000_000), MustParse("9.5"))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Pow(FromUint64(2), FromUint64(65))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestRoot(t *testing.T) {
	got, err := Root(FromUint64(8), FromUint64(3))
	require.NoError(t, err)
	assertClose(t, "2", got)

	got, err = Root(MustParse("31622776.601683793319988935"), MustParse("2.5"))
	require.NoError(t, err)
	assertClose(t, "1000", got)

	got, err = Root(FromUint64(5), One())
	require.NoError(t, err)
	assert.Equal(t, "5", Format(got))

	_, err = Root(FromUint64(5), new(uint256.Int))
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestRootReportsPrecisionLoss(t *testing.T) {
	// ten raw units cannot carry a 2.5th root accurately at 18 decimals
	_, err := Root(uint256.NewInt(10), MustParse("2.5"))
	assert.ErrorIs(t, err, ErrPrecisionLoss)
}

func TestPowIsDeterministic(t *testing.T) {
	x := MustParse("1234.5678")
	u := MustParse("3.7")
	a, err := Pow(x, u)
	require.NoError(t, err)
	b, err := Pow(x, u)
	require.NoError(t, err)
	assert.True(t, a.Eq(b))
}

// powBracket reports whether x^(num/den) lies within bound of got, comparing
// (got ∓ bound)^den with x^num exactly on raw 18-decimal integers.
func powBracket(x, got, bound *uint256.Int, num, den int64) bool {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	pow := func(v *big.Int, e int64) *big.Int { return new(big.Int).Exp(v, big.NewInt(e), nil) }

	// r = R/S and x = X/S, so r^den <= x^num becomes R^den·S^num <= X^num·S^den
	target := new(big.Int).Mul(pow(x.ToBig(), num), pow(scale, den))
	side := func(r *big.Int) *big.Int { return new(big.Int).Mul(pow(r, den), pow(scale, num)) }

	lo := new(big.Int).Sub(got.ToBig(), bound.ToBig())
	hi := new(big.Int).Add(got.ToBig(), bound.ToBig())
	if lo.Sign() > 0 && side(lo).Cmp(target) > 0 {
		return false
	}
	return side(hi).Cmp(target) >= 0
}

func TestPowMeetsPublishedBound(t *testing.T) {
	exponents := []struct {
		u        string
		num, den int64
	}{
		{"1.25", 5, 4},
		{"1.5", 3, 2},
		{"2.5", 5, 2},
		{"3.7", 37, 10},
		{"0.4", 2, 5},
	}
	bases := []string{"0.05", "0.5", "0.999", "1.5", "3", "1000", "1234.5678"}

	for _, e := range exponents {
		for _, b := range bases {
			x := MustParse(b)
			got, err := Pow(x, MustParse(e.u))
			require.NoError(t, err, "%s^%s", b, e.u)

			// PowMaxRelError·max(result, 1) + one unit in the last place
			bound, err := MulWad(Max(got, One()), PowMaxRelError)
			require.NoError(t, err)
			bound.AddUint64(bound, 1)

			assert.True(t, powBracket(x, got, bound, e.num, e.den), "%s^%s = %s outside ±%s",
				b, e.u, Format(got), Format(bound))
		}
	}
}

func TestPowSmallResultsAreAbsolute(t *testing.T) {
	// 0.05^3.7 is about 1.5e-5: only 13 significant digits fit on the grid,
	// so the relative error exceeds PowMaxRelError while the absolute error
	// stays within it.
	x := MustParse("0.05")
	got, err := Pow(x, MustParse("3.7"))
	require.NoError(t, err)
	assert.True(t, got.Lt(MustParse("0.001")))
	assert.True(t, powBracket(x, got, new(uint256.Int).AddUint64(PowMaxRelError, 1), 37, 10))
}
