package amm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aman-zulfiqar/orbital-amm/internal/fixedpoint"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sumSegments(segs []Segment) (in, out *uint256.Int) {
	in, out = new(uint256.Int), new(uint256.Int)
	for _, s := range segs {
		in.Add(in, s.AmountIn)
		out.Add(out, s.AmountOut)
	}
	return in, out
}

func TestExecuteSwapTwoTokens(t *testing.T) {
	p := newTwoTokenPool(t)

	info, err := p.ExecuteSwap(SwapRequest{TokenIn: 0, TokenOut: 1, AmountIn: tokens(10_000)})
	require.NoError(t, err)

	assert.Equal(t, "9900.985245583370205193", fixedpoint.Format(info.AmountOut))
	assert.True(t, info.AmountOut.Gt(tokens(9_900)))
	assert.False(t, info.AmountOut.Gt(tokens(10_000)))
	assert.Equal(t, uint64(197), info.PriceImpactBP)
	assert.True(t, info.PriceBefore.Eq(fixedpoint.One()))
	assert.Equal(t, "0.980294122358199369", fixedpoint.Format(info.PriceAfter))
	assert.Equal(t, "0.99009852455833702", fixedpoint.Format(info.ExchangeRate))

	require.Len(t, info.Segments, 1)
	assert.False(t, info.Segments[0].Crossed)
	assert.True(t, info.Segments[0].AmountIn.Eq(tokens(10_000)))

	reserves := p.Reserves()
	assert.Equal(t, "1010000", fixedpoint.Format(reserves[0]))
	assert.Equal(t, "990099.014754416629794807", fixedpoint.Format(reserves[1]))
	assert.NoError(t, p.VerifyConstraint(DefaultToleranceBP))
}

func TestRoundTripNeverProfits(t *testing.T) {
	p := newTwoTokenPool(t)
	amount := tokens(10_000)

	there, err := p.ExecuteSwap(SwapRequest{TokenIn: 0, TokenOut: 1, AmountIn: amount})
	require.NoError(t, err)
	back, err := p.ExecuteSwap(SwapRequest{TokenIn: 1, TokenOut: 0, AmountIn: there.AmountOut})
	require.NoError(t, err)

	assert.False(t, back.AmountOut.Gt(amount))
	assert.NoError(t, p.VerifyConstraint(DefaultToleranceBP))
}

func TestOutputHasDiminishingReturns(t *testing.T) {
	p := newTwoTokenPool(t)

	var prevOut, prevStep *uint256.Int
	var prevImpact uint64
	for n := uint64(5_000); n <= 100_000; n += 5_000 {
		info, err := p.Quote(SwapRequest{TokenIn: 0, TokenOut: 1, AmountIn: tokens(n)})
		require.NoError(t, err)

		if prevOut != nil {
			require.False(t, info.AmountOut.Lt(prevOut), "amount out fell at %d", n)
			step := new(uint256.Int).Sub(info.AmountOut, prevOut)
			if prevStep != nil {
				assert.False(t, step.Gt(prevStep), "marginal output grew at %d", n)
			}
			prevStep = step
			assert.GreaterOrEqual(t, info.PriceImpactBP, prevImpact)
		}
		prevOut, prevImpact = info.AmountOut, info.PriceImpactBP
	}
}

// newBandedPair is the two-token pool with a thin band just above parity,
// so moderate trades enter the band and then leave it.
func newBandedPair(t *testing.T) *PoolState {
	t.Helper()
	p, err := NewPoolState(PoolConfig{
		Reserves:  uniform(2, 1_000_000),
		Curve:     Sphere(),
		Invariant: tokens(2_000_000_000_000),
		Ticks: []Tick{{
			Lower:     tokens(2_000_050),
			Upper:     tokens(2_000_200),
			Liquidity: tokens(1_000_000_000_000),
		}},
	})
	require.NoError(t, err)
	return p
}

func TestRoundTripThroughTickNeverProfits(t *testing.T) {
	for _, n := range []uint64{5_000, 9_000, 20_000, 45_000} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			p := newBandedPair(t)
			amount := tokens(n)

			there, err := p.ExecuteSwap(SwapRequest{TokenIn: 0, TokenOut: 1, AmountIn: amount})
			require.NoError(t, err)
			back, err := p.ExecuteSwap(SwapRequest{TokenIn: 1, TokenOut: 0, AmountIn: there.AmountOut})
			require.NoError(t, err)

			assert.Equal(t, len(there.Segments), len(back.Segments))
			assert.False(t, back.AmountOut.Gt(amount), "paid %s, got back %s",
				fixedpoint.Format(amount), fixedpoint.Format(back.AmountOut))
			assert.NoError(t, p.VerifyConstraint(DefaultToleranceBP))
		})
	}
}

func TestRoundTripAcrossBothBoundaries(t *testing.T) {
	p := newBandedPair(t)
	amount := tokens(20_000)

	there, err := p.ExecuteSwap(SwapRequest{TokenIn: 0, TokenOut: 1, AmountIn: amount})
	require.NoError(t, err)
	require.Len(t, there.Segments, 3)
	assert.True(t, there.Segments[0].Crossed)
	assert.True(t, there.Segments[1].Crossed)
	assert.Equal(t, "3000000000000", fixedpoint.Format(there.Segments[1].Liquidity))

	back, err := p.ExecuteSwap(SwapRequest{TokenIn: 1, TokenOut: 0, AmountIn: there.AmountOut})
	require.NoError(t, err)
	require.Len(t, back.Segments, 3)
	assert.False(t, back.AmountOut.Gt(amount))
	assert.False(t, p.Ticks()[0].Active)
}

func TestOutputHasDiminishingReturnsAcrossTicks(t *testing.T) {
	p := newBandedPair(t)

	var prevOut, prevStep *uint256.Int
	var prevImpact uint64
	maxSegments := 0
	for n := uint64(5_000); n <= 30_000; n += 500 {
		info, err := p.Quote(SwapRequest{TokenIn: 0, TokenOut: 1, AmountIn: tokens(n)})
		require.NoError(t, err)
		if len(info.Segments) > maxSegments {
			maxSegments = len(info.Segments)
		}

		if prevOut != nil {
			require.False(t, info.AmountOut.Lt(prevOut), "amount out fell at %d", n)
			step := new(uint256.Int).Sub(info.AmountOut, prevOut)
			if prevStep != nil {
				assert.False(t, step.Gt(prevStep), "marginal output grew at %d: %s > %s (%d segments)",
					n, fixedpoint.Format(step), fixedpoint.Format(prevStep), len(info.Segments))
			}
			prevStep = step
			assert.GreaterOrEqual(t, info.PriceImpactBP, prevImpact, "impact fell at %d", n)
		}
		prevOut, prevImpact = info.AmountOut, info.PriceImpactBP
	}
	assert.Equal(t, 3, maxSegments, "the sweep should enter and leave the band")
}

func TestCrossingKeepsMarginalPrice(t *testing.T) {
	p := newBandedPair(t)

	// Walk up to the band in small steps and record the price on each side.
	var below *uint256.Int
	for !p.Ticks()[0].Active {
		price, err := p.CalculatePrice(0, 1)
		require.NoError(t, err)
		below = price
		_, err = p.ExecuteSwap(SwapRequest{TokenIn: 0, TokenOut: 1, AmountIn: tokens(10)})
		require.NoError(t, err)
	}
	above, err := p.CalculatePrice(0, 1)
	require.NoError(t, err)

	assert.True(t, above.Lt(below), "price rose across the boundary: %s -> %s",
		fixedpoint.Format(below), fixedpoint.Format(above))
	dev, err := fixedpoint.DeviationBP(above, below)
	require.NoError(t, err)
	assert.LessOrEqual(t, dev, uint64(1))
}

func TestSlippageLeavesStateUntouched(t *testing.T) {
	p := newTwoTokenPool(t)
	reserves := p.Reserves()

	_, err := p.ExecuteSwap(SwapRequest{
		TokenIn:      0,
		TokenOut:     1,
		AmountIn:     tokens(10_000),
		MinAmountOut: tokens(10_000),
	})
	var slip *SlippageError
	require.ErrorAs(t, err, &slip)
	assert.ErrorIs(t, err, ErrSlippageExceeded)
	assert.Equal(t, "slippage_exceeded", KindOf(err))
	assert.Equal(t, "9900.985245583370205193", fixedpoint.Format(slip.Actual))
	assert.True(t, slip.Minimum.Eq(tokens(10_000)))

	assert.Equal(t, reserves, p.Reserves())
	assert.Equal(t, "2000000", fixedpoint.Format(p.Center()[0]))

	_, err = p.ExecuteSwap(SwapRequest{
		TokenIn:      0,
		TokenOut:     1,
		AmountIn:     tokens(10_000),
		MinAmountOut: tokens(9_900),
	})
	assert.NoError(t, err)
}

func TestPriceImpactLimit(t *testing.T) {
	p := newTwoTokenPool(t)
	req := SwapRequest{TokenIn: 0, TokenOut: 1, AmountIn: tokens(10_000), MaxPriceImpactBP: 100}

	_, err := p.ExecuteSwap(req)
	var impact *PriceImpactError
	require.ErrorAs(t, err, &impact)
	assert.Equal(t, uint64(197), impact.ActualBP)
	assert.Equal(t, uint64(100), impact.MaximumBP)
	assert.Equal(t, "excessive_price_impact", KindOf(err))
	assert.Equal(t, "1000000", fixedpoint.Format(p.Reserves()[0]))

	req.MaxPriceImpactBP = 200
	_, err = p.ExecuteSwap(req)
	assert.NoError(t, err)
}

func TestQuoteDoesNotMutate(t *testing.T) {
	p := newFiveTokenPool(t, parityTick())
	center := p.Center()

	quote, err := p.Quote(SwapRequest{TokenIn: 0, TokenOut: 2, AmountIn: tokens(10_000)})
	require.NoError(t, err)
	assert.Equal(t, center, p.Center())
	assert.True(t, p.Ticks()[0].Active)
	assert.Equal(t, "1000000", fixedpoint.Format(p.Reserves()[0]))

	info, err := p.ExecuteSwap(SwapRequest{TokenIn: 0, TokenOut: 2, AmountIn: tokens(10_000)})
	require.NoError(t, err)
	assert.Equal(t, quote, info)
}

func TestSwapRejectsBadRequests(t *testing.T) {
	p := newTwoTokenPool(t)

	tests := []struct {
		name string
		req  SwapRequest
		want error
	}{
		{"same token", SwapRequest{TokenIn: 1, TokenOut: 1, AmountIn: tokens(1)}, ErrTokenIndexOutOfBounds},
		{"unknown token", SwapRequest{TokenIn: 0, TokenOut: 2, AmountIn: tokens(1)}, ErrTokenIndexOutOfBounds},
		{"negative index", SwapRequest{TokenIn: -1, TokenOut: 0, AmountIn: tokens(1)}, ErrTokenIndexOutOfBounds},
		{"missing amount", SwapRequest{TokenIn: 0, TokenOut: 1}, ErrInvalidParameter},
		{"zero amount", SwapRequest{TokenIn: 0, TokenOut: 1, AmountIn: new(uint256.Int)}, ErrInvalidParameter},
		{"beyond the curve", SwapRequest{TokenIn: 0, TokenOut: 1, AmountIn: tokens(1_000_000)}, ErrInsufficientLiquidity},
		{"far beyond the curve", SwapRequest{TokenIn: 0, TokenOut: 1, AmountIn: tokens(20_000_000)}, ErrInsufficientLiquidity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ExecuteSwap(tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, "1000000", fixedpoint.Format(p.Reserves()[0]))
	assert.Equal(t, "1000000", fixedpoint.Format(p.Reserves()[1]))
}

func TestTickCrossingCouplesUntradedTokens(t *testing.T) {
	p := newFiveTokenPool(t, parityTick())
	size := tokens(1)

	marginalBefore, err := p.CalculatePrice(1, 3)
	require.NoError(t, err)
	effectiveBefore, err := p.EffectivePrice(1, 3, size)
	require.NoError(t, err)

	info, err := p.ExecuteSwap(SwapRequest{TokenIn: 0, TokenOut: 2, AmountIn: tokens(10_000)})
	require.NoError(t, err)

	require.Len(t, info.Segments, 2)
	assert.True(t, info.Segments[0].Crossed)
	assert.Equal(t, "5050000000000", fixedpoint.Format(info.Segments[0].Liquidity))
	assert.False(t, info.Segments[1].Crossed)
	assert.Equal(t, "5000000000000", fixedpoint.Format(info.Segments[1].Liquidity))

	in, out := sumSegments(info.Segments)
	assert.True(t, in.Eq(tokens(10_000)))
	assert.True(t, out.Eq(info.AmountOut))
	assert.True(t, info.AmountOut.Gt(tokens(9_900)))

	assert.False(t, p.Ticks()[0].Active)
	crossed, err := IsCrossed(p.Reserves(), p.Ticks()[0])
	require.NoError(t, err)
	assert.True(t, crossed)
	assert.NoError(t, p.VerifyConstraint(DefaultToleranceBP))

	// The marginal price is a ratio of coordinates, and tokens 1 and 3 keep
	// equal coordinates, so that ratio stays at one. The coupling shows in
	// their execution rate, which falls because the local curve lost the
	// tick's depth.
	marginalAfter, err := p.CalculatePrice(1, 3)
	require.NoError(t, err)
	assert.True(t, marginalBefore.Eq(marginalAfter))

	effectiveAfter, err := p.EffectivePrice(1, 3, size)
	require.NoError(t, err)
	assert.True(t, effectiveAfter.Lt(effectiveBefore),
		"before %s after %s", fixedpoint.Format(effectiveBefore), fixedpoint.Format(effectiveAfter))
}

func TestReverseTradeReentersAndLeavesTick(t *testing.T) {
	p := newFiveTokenPool(t, parityTick())
	_, err := p.ExecuteSwap(SwapRequest{TokenIn: 0, TokenOut: 2, AmountIn: tokens(10_000)})
	require.NoError(t, err)

	info, err := p.ExecuteSwap(SwapRequest{TokenIn: 2, TokenOut: 0, AmountIn: tokens(20_000)})
	require.NoError(t, err)

	require.Len(t, info.Segments, 3)
	assert.True(t, info.Segments[0].Crossed)
	assert.True(t, info.Segments[1].Crossed)
	assert.False(t, info.Segments[2].Crossed)
	assert.Equal(t, "5050000000000", fixedpoint.Format(info.Segments[1].Liquidity))

	in, out := sumSegments(info.Segments)
	assert.True(t, in.Eq(tokens(20_000)))
	assert.True(t, out.Eq(info.AmountOut))

	assert.False(t, p.Ticks()[0].Active)
	assert.NoError(t, p.VerifyConstraint(DefaultToleranceBP))
}

func TestExecuteSwapIsDeterministic(t *testing.T) {
	a := newFiveTokenPool(t, parityTick())
	b := a.Clone()
	req := SwapRequest{TokenIn: 4, TokenOut: 1, AmountIn: tokens(12_345)}

	first, err := a.ExecuteSwap(req)
	require.NoError(t, err)
	second, err := b.ExecuteSwap(req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, a.Reserves(), b.Reserves())
	assert.Equal(t, a.Center(), b.Center())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("boom"), "internal"},
		{ErrNoSolution, "no_solution"},
		{fmt.Errorf("wrapped: %w", ErrZeroReserve), "zero_reserve"},
		{&TickOverlapError{A: 0, B: 1}, "tick_overlap"},
		{&InvalidTickError{Index: 2, Reason: "x"}, "invalid_tick"},
		{fixedpoint.ErrOverflow, "overflow"},
		{&InvariantError{Err: &ConstraintViolation{Curve: CurveSphere}}, "invariant_violation"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err))
	}
}

func TestInvariantErrorMatchesCause(t *testing.T) {
	err := error(&InvariantError{Err: &ConstraintViolation{
		Curve:    CurveSuperellipse,
		Actual:   tokens(2),
		Expected: tokens(1),
	}})

	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.ErrorIs(t, err, ErrSuperellipseConstraintViolation)
	var cv *ConstraintViolation
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "invariant violation after trade: superellipse constraint violation: actual 2, expected 1", err.Error())
}
