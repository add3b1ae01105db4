package amm

import (
	"fmt"

	"github.com/aman-zulfiqar/orbital-amm/internal/fixedpoint"
	"github.com/holiman/uint256"
)

// SwapRequest asks for AmountIn of TokenIn to be exchanged for TokenOut.
type SwapRequest struct {
	TokenIn      int
	TokenOut     int
	AmountIn     *uint256.Int
	MinAmountOut *uint256.Int
	// MaxPriceImpactBP rejects trades that move the marginal price further
	// than this. Zero disables the check.
	MaxPriceImpactBP uint64
}

// Segment is the part of a trade absorbed under one liquidity composition.
type Segment struct {
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
	// Liquidity is the local invariant parameter used for the segment.
	Liquidity *uint256.Int
	// Crossed is set when the segment ends just past a tick boundary.
	Crossed bool
}

// TradeInfo is the receipt of one trade. Prices are 18-decimal rates of
// TokenIn in units of TokenOut.
type TradeInfo struct {
	AmountIn      *uint256.Int
	AmountOut     *uint256.Int
	PriceBefore   *uint256.Int
	PriceAfter    *uint256.Int
	PriceImpactBP uint64
	ExchangeRate  *uint256.Int
	Segments      []Segment
}

// tradeState is one snapshot of the segment fold. Steps never modify a
// snapshot in place.
type tradeState struct {
	reserves  []*uint256.Int
	center    []*uint256.Int
	active    []int
	param     *uint256.Int
	remaining *uint256.Int
	out       *uint256.Int
	segments  []Segment
}

// ExecuteSwap runs the trade and commits it. On any error the pool is left
// exactly as it was.
func (p *PoolState) ExecuteSwap(req SwapRequest) (*TradeInfo, error) {
	info, final, err := p.simulate(req)
	if err != nil {
		return nil, err
	}
	p.reserves = final.reserves
	p.center = final.center
	markActive(p.ticks, final.active)
	return info, nil
}

// Quote runs the trade without committing it.
func (p *PoolState) Quote(req SwapRequest) (*TradeInfo, error) {
	info, _, err := p.simulate(req)
	return info, err
}

// EffectivePrice returns the execution rate of a trade of token i for
// token j. Unlike CalculatePrice it reflects the depth of the local curve.
func (p *PoolState) EffectivePrice(i, j int, size *uint256.Int) (*uint256.Int, error) {
	info, err := p.Quote(SwapRequest{TokenIn: i, TokenOut: j, AmountIn: size})
	if err != nil {
		return nil, err
	}
	return info.ExchangeRate, nil
}

func (p *PoolState) simulate(req SwapRequest) (*TradeInfo, *tradeState, error) {
	in, out := req.TokenIn, req.TokenOut
	if err := checkPair(len(p.reserves), in, out); err != nil {
		return nil, nil, err
	}
	if req.AmountIn == nil || req.AmountIn.IsZero() {
		return nil, nil, fmt.Errorf("%w: amount in must be positive", ErrInvalidParameter)
	}
	minOut := new(uint256.Int)
	if req.MinAmountOut != nil {
		minOut.Set(req.MinAmountOut)
	}

	priceBefore, err := p.CalculatePrice(in, out)
	if err != nil {
		return nil, nil, err
	}

	sum, err := ReserveSum(p.reserves)
	if err != nil {
		return nil, nil, err
	}
	active := activeSet(p.ticks, sum)
	param, err := localParam(p.invariant, p.ticks, active)
	if err != nil {
		return nil, nil, err
	}

	state := &tradeState{
		reserves:  cloneInts(p.reserves),
		center:    cloneInts(p.center),
		active:    active,
		param:     param,
		remaining: cloneInt(req.AmountIn),
		out:       new(uint256.Int),
	}

	// The reserve sum falls then rises along a trade, so each boundary is
	// crossed at most twice.
	maxSegments := 4*len(p.ticks) + 2
	for !state.remaining.IsZero() {
		if len(state.segments) >= maxSegments {
			return nil, nil, fmt.Errorf("%w: more than %d segments", ErrUnexpectedTickCrossing, maxSegments)
		}
		if state, err = p.step(state, in, out); err != nil {
			return nil, nil, err
		}
	}

	coords, err := coordinates(state.center, state.reserves)
	if err != nil {
		return nil, nil, err
	}
	if err := p.engine.VerifyConstraint(coords, state.param, p.toleranceBP); err != nil {
		return nil, nil, &InvariantError{Err: err}
	}

	if state.out.Lt(minOut) {
		return nil, nil, &SlippageError{Actual: cloneInt(state.out), Minimum: minOut}
	}

	priceAfter, err := p.engine.CalculatePrice(coords, in, out)
	if err != nil {
		return nil, nil, err
	}
	impact, err := fixedpoint.DeviationBP(priceAfter, priceBefore)
	if err != nil {
		return nil, nil, err
	}
	if req.MaxPriceImpactBP > 0 && impact > req.MaxPriceImpactBP {
		return nil, nil, &PriceImpactError{ActualBP: impact, MaximumBP: req.MaxPriceImpactBP}
	}
	rate, err := fixedpoint.DivWad(state.out, req.AmountIn)
	if err != nil {
		return nil, nil, err
	}

	return &TradeInfo{
		AmountIn:      cloneInt(req.AmountIn),
		AmountOut:     cloneInt(state.out),
		PriceBefore:   priceBefore,
		PriceAfter:    priceAfter,
		PriceImpactBP: impact,
		ExchangeRate:  rate,
		Segments:      state.segments,
	}, state, nil
}

// step absorbs as much of the remaining input as the current composition
// allows and returns the next snapshot.
func (p *PoolState) step(s *tradeState, in, out int) (*tradeState, error) {
	coords, err := coordinates(s.center, s.reserves)
	if err != nil {
		return nil, err
	}
	sum, err := ReserveSum(s.reserves)
	if err != nil {
		return nil, err
	}
	lower, upper := regionBounds(p.ticks, sum)

	// sumAfter is the reserve sum once d has been absorbed. An error marks
	// a point the current curve cannot reach.
	sumAfter := func(d *uint256.Int) (*uint256.Int, error) {
		got, err := p.engine.ComputeSwapOutput(coords, s.param, in, out, d)
		if err != nil {
			return nil, err
		}
		if !got.Lt(s.reserves[out]) {
			return nil, ErrInsufficientLiquidity
		}
		next, err := fixedpoint.Add(sum, d)
		if err != nil {
			return nil, err
		}
		return next.Sub(next, got), nil
	}

	turn, err := p.turningPoint(coords, s.param, in, out)
	if err != nil {
		return nil, err
	}
	if turn.Gt(s.remaining) {
		turn.Set(s.remaining)
	}

	amount := cloneInt(s.remaining)
	crossed := false
	if lower != nil && !turn.IsZero() {
		below := func(d *uint256.Int) bool {
			v, err := sumAfter(d)
			return err != nil || v.Lt(lower)
		}
		if below(turn) {
			amount, crossed = firstTrue(new(uint256.Int), turn, below), true
		}
	}
	if !crossed && upper != nil && turn.Lt(s.remaining) {
		above := func(d *uint256.Int) bool {
			v, err := sumAfter(d)
			return err != nil || !v.Lt(upper)
		}
		if above(s.remaining) {
			amount, crossed = firstTrue(turn, s.remaining, above), true
		}
	}

	got, err := p.engine.ComputeSwapOutput(coords, s.param, in, out, amount)
	if err != nil {
		return nil, err
	}
	if got.Eq(s.reserves[out]) {
		return nil, fmt.Errorf("%w: token %d drained", ErrZeroReserve, out)
	}
	if got.Gt(s.reserves[out]) {
		return nil, fmt.Errorf("%w: output %s exceeds reserve %s", ErrInsufficientLiquidity,
			fixedpoint.Format(got), fixedpoint.Format(s.reserves[out]))
	}

	reserves := cloneInts(s.reserves)
	if reserves[in], err = fixedpoint.Add(reserves[in], amount); err != nil {
		return nil, err
	}
	reserves[out] = new(uint256.Int).Sub(reserves[out], got)

	total, err := fixedpoint.Add(s.out, got)
	if err != nil {
		return nil, err
	}
	segments := make([]Segment, len(s.segments), len(s.segments)+1)
	copy(segments, s.segments)
	segments = append(segments, Segment{
		AmountIn:  cloneInt(amount),
		AmountOut: cloneInt(got),
		Liquidity: cloneInt(s.param),
		Crossed:   crossed,
	})

	next := &tradeState{
		reserves:  reserves,
		center:    s.center,
		active:    s.active,
		param:     s.param,
		remaining: new(uint256.Int).Sub(s.remaining, amount),
		out:       total,
		segments:  segments,
	}

	newSum, err := ReserveSum(reserves)
	if err != nil {
		return nil, err
	}
	newActive := activeSet(p.ticks, newSum)
	if !crossed {
		if !sameSet(newActive, s.active) {
			return nil, fmt.Errorf("%w: composition changed inside a segment", ErrUnexpectedTickCrossing)
		}
		return next, nil
	}
	if sameSet(newActive, s.active) {
		return nil, fmt.Errorf("%w: boundary crossed without a composition change", ErrUnexpectedTickCrossing)
	}

	// Reserves are continuous across the boundary. The coordinates are
	// scaled onto the surface of the new composition, so the marginal price
	// is continuous too and only the depth of the curve changes.
	param, err := localParam(p.invariant, p.ticks, newActive)
	if err != nil {
		return nil, err
	}
	moved, err := coordinates(s.center, reserves)
	if err != nil {
		return nil, err
	}
	center, err := rescale(p.engine, reserves, moved, s.param, param)
	if err != nil {
		return nil, err
	}
	next.center = center
	next.active = newActive
	next.param = param
	return next, nil
}

// turningPoint returns the input at which the in and out coordinates meet.
// The reserve sum along the trajectory is smallest there: it falls before
// and rises after. Zero when the trade starts past that point.
func (p *PoolState) turningPoint(coords []*uint256.Int, param *uint256.Int, in, out int) (*uint256.Int, error) {
	others, err := level(p.engine, coords, in, out)
	if err != nil {
		return nil, err
	}
	q := fixedpoint.SubSigned(param, others)
	if q.IsNegative() || q.Abs.IsZero() {
		return new(uint256.Int), nil
	}
	w, err := p.engine.Balanced(q.Abs)
	if err != nil {
		return nil, err
	}
	if !coords[in].Gt(w) {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Sub(coords[in], w), nil
}

// firstTrue returns the smallest d in (lo, hi] with pred(d), given that
// pred(hi) holds and pred is monotone on the interval.
func firstTrue(lo, hi *uint256.Int, pred func(*uint256.Int) bool) *uint256.Int {
	a, b := cloneInt(lo), cloneInt(hi)
	for {
		gap := new(uint256.Int).Sub(b, a)
		if !gap.GtUint64(1) {
			return b
		}
		mid := new(uint256.Int).Add(a, gap.Rsh(gap, 1))
		if pred(mid) {
			b = mid
		} else {
			a = mid
		}
	}
}
