package amm

import (
	"fmt"

	"github.com/aman-zulfiqar/orbital-amm/internal/fixedpoint"
	"github.com/holiman/uint256"
)

const (
	MinTokens = 2
	MaxTokens = 1000

	// DefaultToleranceBP absorbs rounding in constraint checks.
	DefaultToleranceBP = 10
)

// PoolConfig describes a pool at deployment time.
type PoolConfig struct {
	// Reserves are the token holdings, 18-decimal, one per token index.
	Reserves []*uint256.Int
	Curve    CurveType
	// Invariant is the interior parameter: R² for spheres, K for
	// superellipses.
	Invariant *uint256.Int
	Ticks     []Tick
	// ToleranceBP defaults to DefaultToleranceBP when zero.
	ToleranceBP uint64
	// Center is optional and applies to every token. When set the reserves
	// must already lie on the curve around it; otherwise it is solved from
	// the reserves.
	Center *uint256.Int
}

// PoolState is the state of one pool. The invariant is evaluated on the
// coordinates v_k = c_k − x_k, so a deposit of token k moves v_k toward zero
// and a withdrawal moves it away. A pool starts with the same center for
// every token; the per-token centers drift apart when the active composition
// changes, since the coordinates are then rescaled with the reserves held
// fixed.
//
// A PoolState is not safe for concurrent mutation. Read-only methods may run
// concurrently with each other between writes.
type PoolState struct {
	reserves    []*uint256.Int
	curve       CurveType
	engine      Engine
	invariant   *uint256.Int
	ticks       []Tick
	center      []*uint256.Int
	toleranceBP uint64
}

// NewPoolState validates cfg and builds a pool. Validation is all or
// nothing.
func NewPoolState(cfg PoolConfig) (*PoolState, error) {
	n := len(cfg.Reserves)
	if n < MinTokens || n > MaxTokens {
		return nil, fmt.Errorf("%w: %d tokens, want %d..%d", ErrInvalidTokenCount, n, MinTokens, MaxTokens)
	}
	engine, err := NewEngine(cfg.Curve)
	if err != nil {
		return nil, err
	}
	if cfg.Invariant == nil || cfg.Invariant.IsZero() {
		return nil, fmt.Errorf("%w: invariant parameter must be positive", ErrInvalidParameter)
	}
	for i, r := range cfg.Reserves {
		if r == nil || r.IsZero() {
			return nil, fmt.Errorf("%w: token %d", ErrZeroReserve, i)
		}
	}
	if err := ValidateTicks(cfg.Ticks); err != nil {
		return nil, err
	}

	tolerance := cfg.ToleranceBP
	if tolerance == 0 {
		tolerance = DefaultToleranceBP
	}

	p := &PoolState{
		reserves:    cloneInts(cfg.Reserves),
		curve:       cfg.Curve,
		engine:      engine,
		invariant:   new(uint256.Int).Set(cfg.Invariant),
		ticks:       cloneTicks(cfg.Ticks),
		toleranceBP: tolerance,
	}

	sum, err := ReserveSum(p.reserves)
	if err != nil {
		return nil, err
	}
	active := activeSet(p.ticks, sum)
	param, err := localParam(p.invariant, p.ticks, active)
	if err != nil {
		return nil, err
	}

	c := cfg.Center
	if c == nil {
		if c, err = engine.SolveCenter(p.reserves, param); err != nil {
			return nil, err
		}
	}
	p.center = uniformCenter(c, n)
	if cfg.Center != nil {
		coords, err := coordinates(p.center, p.reserves)
		if err != nil {
			return nil, err
		}
		if err := engine.VerifyConstraint(coords, param, tolerance); err != nil {
			return nil, err
		}
	}

	markActive(p.ticks, active)
	return p, nil
}

func uniformCenter(c *uint256.Int, n int) []*uint256.Int {
	center := make([]*uint256.Int, n)
	for k := range center {
		center[k] = new(uint256.Int).Set(c)
	}
	return center
}

// coordinates returns c_k − x_k for every reserve.
func coordinates(center, reserves []*uint256.Int) ([]*uint256.Int, error) {
	coords := make([]*uint256.Int, len(reserves))
	for k, x := range reserves {
		if x.Gt(center[k]) {
			return nil, fmt.Errorf("%w: token %d holds %s beyond center %s", ErrNegativeReserve, k,
				fixedpoint.Format(x), fixedpoint.Format(center[k]))
		}
		coords[k] = new(uint256.Int).Sub(center[k], x)
	}
	return coords, nil
}

func markActive(ticks []Tick, active []int) {
	for i := range ticks {
		ticks[i].Active = false
	}
	for _, i := range active {
		ticks[i].Active = true
	}
}

func (p *PoolState) TokenCount() int { return len(p.reserves) }

func (p *PoolState) Curve() CurveType { return p.curve }

func (p *PoolState) ToleranceBP() uint64 { return p.toleranceBP }

// Reserves returns a copy of the token holdings.
func (p *PoolState) Reserves() []*uint256.Int { return cloneInts(p.reserves) }

// Ticks returns a copy of the tick set.
func (p *PoolState) Ticks() []Tick { return cloneTicks(p.ticks) }

// Invariant returns the interior parameter.
func (p *PoolState) Invariant() *uint256.Int { return cloneInt(p.invariant) }

// Center returns a copy of the per-token centers.
func (p *PoolState) Center() []*uint256.Int { return cloneInts(p.center) }

// Coordinates returns the reserves expressed relative to the center.
func (p *PoolState) Coordinates() ([]*uint256.Int, error) {
	return coordinates(p.center, p.reserves)
}

// ActiveLiquidity returns the local parameter for the current composition.
func (p *PoolState) ActiveLiquidity() (*uint256.Int, error) {
	return ActiveLiquidity(p.invariant, p.ticks, p.reserves)
}

// TotalLiquidity returns the radius-like scalar of the local parameter:
// R for spheres, K^(1/u) for superellipses.
func (p *PoolState) TotalLiquidity() (*uint256.Int, error) {
	param, err := p.ActiveLiquidity()
	if err != nil {
		return nil, err
	}
	return p.engine.Liquidity(param)
}

// CalculatePrice returns the marginal price of token i in units of token j.
func (p *PoolState) CalculatePrice(i, j int) (*uint256.Int, error) {
	coords, err := p.Coordinates()
	if err != nil {
		return nil, err
	}
	return p.engine.CalculatePrice(coords, i, j)
}

// VerifyConstraint checks the reserves against the active curve.
func (p *PoolState) VerifyConstraint(toleranceBP uint64) error {
	coords, err := p.Coordinates()
	if err != nil {
		return err
	}
	param, err := p.ActiveLiquidity()
	if err != nil {
		return err
	}
	return p.engine.VerifyConstraint(coords, param, toleranceBP)
}

// AddTick inserts a tick between trades. If the tick changes the active
// composition the coordinates are rescaled so reserves and prices stay where
// they are.
func (p *PoolState) AddTick(t Tick) error {
	t = t.Clone()
	if err := ValidateTick(len(p.ticks), t); err != nil {
		return err
	}
	ticks := append(cloneTicks(p.ticks), t)
	if err := ValidateTicks(ticks); err != nil {
		return err
	}
	return p.replaceTicks(ticks)
}

// RemoveTick deletes the tick at index between trades.
func (p *PoolState) RemoveTick(index int) error {
	if index < 0 || index >= len(p.ticks) {
		return &InvalidTickError{Index: index, Reason: "no such tick"}
	}
	ticks := make([]Tick, 0, len(p.ticks)-1)
	for i, t := range p.ticks {
		if i != index {
			ticks = append(ticks, t.Clone())
		}
	}
	return p.replaceTicks(ticks)
}

func (p *PoolState) replaceTicks(ticks []Tick) error {
	sum, err := ReserveSum(p.reserves)
	if err != nil {
		return err
	}
	before, err := p.ActiveLiquidity()
	if err != nil {
		return err
	}
	active := activeSet(ticks, sum)
	after, err := localParam(p.invariant, ticks, active)
	if err != nil {
		return err
	}

	center := p.center
	if !after.Eq(before) {
		coords, err := p.Coordinates()
		if err != nil {
			return err
		}
		if center, err = rescale(p.engine, p.reserves, coords, before, after); err != nil {
			return err
		}
	}

	markActive(ticks, active)
	p.ticks = ticks
	p.center = center
	return nil
}

// Clone returns a deep copy that shares nothing with p.
func (p *PoolState) Clone() *PoolState {
	return &PoolState{
		reserves:    cloneInts(p.reserves),
		curve:       CurveType{Kind: p.curve.Kind, Exponent: cloneInt(p.curve.Exponent)},
		engine:      p.engine,
		invariant:   cloneInt(p.invariant),
		ticks:       cloneTicks(p.ticks),
		center:      cloneInts(p.center),
		toleranceBP: p.toleranceBP,
	}
}
