package amm

import (
	"fmt"
	"sort"

	"github.com/aman-zulfiqar/orbital-amm/internal/fixedpoint"
	"github.com/holiman/uint256"
)

// Tick is a band of concentrated liquidity between two parallel hyperplanes
// normal to the equal-price direction: it contains every reserve vector whose
// component sum s satisfies Lower <= s < Upper. Liquidity is added to the
// local invariant parameter (R² or K) while the pool sits inside the band.
type Tick struct {
	Lower     *uint256.Int
	Upper     *uint256.Int
	Liquidity *uint256.Int
	Active    bool
}

func (t Tick) Clone() Tick {
	return Tick{
		Lower:     cloneInt(t.Lower),
		Upper:     cloneInt(t.Upper),
		Liquidity: cloneInt(t.Liquidity),
		Active:    t.Active,
	}
}

// Contains reports whether a reserve sum lies inside the band.
func (t Tick) Contains(sum *uint256.Int) bool {
	return !sum.Lt(t.Lower) && sum.Lt(t.Upper)
}

func (t Tick) overlaps(o Tick) bool {
	return t.Lower.Lt(o.Upper) && o.Lower.Lt(t.Upper)
}

// ValidateTick checks a single tick's bounds.
func ValidateTick(index int, t Tick) error {
	switch {
	case t.Lower == nil || t.Upper == nil:
		return &InvalidTickError{Index: index, Reason: "missing bound"}
	case !t.Lower.Lt(t.Upper):
		return &InvalidTickError{Index: index, Reason: "lower bound must be below upper bound"}
	case t.Liquidity == nil || t.Liquidity.IsZero():
		return &InvalidTickError{Index: index, Reason: "liquidity must be positive"}
	}
	return nil
}

// ValidateTicks checks every tick and their pairwise disjointness.
func ValidateTicks(ticks []Tick) error {
	for i, t := range ticks {
		if err := ValidateTick(i, t); err != nil {
			return err
		}
	}
	for i := range ticks {
		for j := i + 1; j < len(ticks); j++ {
			if ticks[i].overlaps(ticks[j]) {
				return &TickOverlapError{A: i, B: j}
			}
		}
	}
	return nil
}

// ReserveSum returns Σ x_k, the coordinate the tick bands are defined on.
func ReserveSum(reserves []*uint256.Int) (*uint256.Int, error) {
	return fixedpoint.Sum(reserves)
}

// IsCrossed reports whether reserves lie outside the tick's band.
func IsCrossed(reserves []*uint256.Int, t Tick) (bool, error) {
	sum, err := ReserveSum(reserves)
	if err != nil {
		return false, err
	}
	return !t.Contains(sum), nil
}

// ActiveLiquidity returns the interior parameter plus the liquidity of every
// tick containing reserves.
func ActiveLiquidity(interior *uint256.Int, ticks []Tick, reserves []*uint256.Int) (*uint256.Int, error) {
	sum, err := ReserveSum(reserves)
	if err != nil {
		return nil, err
	}
	return localParam(interior, ticks, activeSet(ticks, sum))
}

func activeSet(ticks []Tick, sum *uint256.Int) []int {
	var active []int
	for i, t := range ticks {
		if t.Contains(sum) {
			active = append(active, i)
		}
	}
	return active
}

func localParam(interior *uint256.Int, ticks []Tick, active []int) (*uint256.Int, error) {
	param := new(uint256.Int).Set(interior)
	for _, i := range active {
		if _, overflow := param.AddOverflow(param, ticks[i].Liquidity); overflow {
			return nil, ErrOverflow
		}
	}
	return param, nil
}

func sameSet(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// regionBounds returns the nearest tick boundaries at or below and strictly
// above sum. Either is nil when no boundary exists on that side.
func regionBounds(ticks []Tick, sum *uint256.Int) (lower, upper *uint256.Int) {
	bounds := make([]*uint256.Int, 0, 2*len(ticks))
	for _, t := range ticks {
		bounds = append(bounds, t.Lower, t.Upper)
	}
	sort.Slice(bounds, func(a, b int) bool { return bounds[a].Lt(bounds[b]) })

	for _, b := range bounds {
		if b.Gt(sum) {
			upper = b
			break
		}
		lower = b
	}
	return lower, upper
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return new(uint256.Int).Set(v)
}

func cloneInts(vs []*uint256.Int) []*uint256.Int {
	out := make([]*uint256.Int, len(vs))
	for i, v := range vs {
		out[i] = cloneInt(v)
	}
	return out
}

func cloneTicks(ticks []Tick) []Tick {
	out := make([]Tick, len(ticks))
	for i, t := range ticks {
		out[i] = t.Clone()
	}
	return out
}

func (t Tick) String() string {
	return fmt.Sprintf("[%s, %s) +%s", fixedpoint.Format(t.Lower), fixedpoint.Format(t.Upper), fixedpoint.Format(t.Liquidity))
}
