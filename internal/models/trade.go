package models

import "time"

// TradeEvent is one committed trade. Amounts and prices are decimal
// strings in token units so subscribers never lose precision.
type TradeEvent struct {
	ID            string    `json:"id"`
	PoolID        string    `json:"pool_id"`
	Pool          string    `json:"pool"`
	Curve         string    `json:"curve"`
	Timestamp     time.Time `json:"timestamp"`
	TokenIn       string    `json:"token_in"`
	TokenOut      string    `json:"token_out"`
	AmountIn      string    `json:"amount_in"`
	AmountOut     string    `json:"amount_out"`
	PriceBefore   string    `json:"price_before"`
	PriceAfter    string    `json:"price_after"`
	ExchangeRate  string    `json:"exchange_rate"`
	PriceImpactBP uint64    `json:"price_impact_bp"`
	Segments      int       `json:"segments"`
	TicksCrossed  int       `json:"ticks_crossed"`
}

// Pair returns "IN/OUT".
func (e *TradeEvent) Pair() string {
	return e.TokenIn + "/" + e.TokenOut
}
