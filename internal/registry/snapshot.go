package registry

import (
	"github.com/aman-zulfiqar/orbital-amm/internal/fixedpoint"
)

type TickSnapshot struct {
	Index     int    `json:"index"`
	Lower     string `json:"lower"`
	Upper     string `json:"upper"`
	Liquidity string `json:"liquidity"`
	Active    bool   `json:"active"`
}

type TokenSnapshot struct {
	Symbol  string `json:"symbol"`
	Reserve string `json:"reserve"`
	// Center is the token's curve center; reserve and center give the
	// coordinate the invariant is evaluated on.
	Center string `json:"center"`
}

// Snapshot is a read-only view of a pool with decimal strings in token
// units.
type Snapshot struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Curve           string          `json:"curve"`
	Tokens          []TokenSnapshot `json:"tokens"`
	Invariant       string          `json:"invariant"`
	ActiveLiquidity string          `json:"active_liquidity"`
	Radius          string          `json:"radius"`
	ToleranceBP     uint64          `json:"tolerance_bp"`
	Ticks           []TickSnapshot  `json:"ticks"`
}

// snapshot must be called with p.mu held.
func (p *pool) snapshot() (*Snapshot, error) {
	active, err := p.state.ActiveLiquidity()
	if err != nil {
		return nil, err
	}
	radius, err := p.state.TotalLiquidity()
	if err != nil {
		return nil, err
	}

	reserves, center := p.state.Reserves(), p.state.Center()
	tokens := make([]TokenSnapshot, len(reserves))
	for i, r := range reserves {
		tokens[i] = TokenSnapshot{
			Symbol:  p.tokens[i],
			Reserve: fixedpoint.Format(r),
			Center:  fixedpoint.Format(center[i]),
		}
	}

	ticks := p.state.Ticks()
	tickViews := make([]TickSnapshot, len(ticks))
	for i, t := range ticks {
		tickViews[i] = TickSnapshot{
			Index:     i,
			Lower:     fixedpoint.Format(t.Lower),
			Upper:     fixedpoint.Format(t.Upper),
			Liquidity: fixedpoint.Format(t.Liquidity),
			Active:    t.Active,
		}
	}

	return &Snapshot{
		ID:              p.id,
		Name:            p.name,
		Curve:           p.state.Curve().String(),
		Tokens:          tokens,
		Invariant:       fixedpoint.Format(p.state.Invariant()),
		ActiveLiquidity: fixedpoint.Format(active),
		Radius:          fixedpoint.Format(radius),
		ToleranceBP:     p.state.ToleranceBP(),
		Ticks:           tickViews,
	}, nil
}
