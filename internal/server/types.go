package server

import (
	"github.com/aman-zulfiqar/orbital-amm/internal/models"
	"github.com/aman-zulfiqar/orbital-amm/internal/registry"
)

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Kind    string `json:"kind,omitempty"`    // Stable engine error label
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK    bool `json:"ok"`
	Pools int  `json:"pools"`
}

type PoolsResponse struct {
	Items []*registry.Snapshot `json:"items"`
}

// PriceResponse carries the marginal price and the effective rate of a
// trade of the requested size, both as decimal strings
type PriceResponse struct {
	PoolID         string `json:"pool_id"`
	TokenIn        string `json:"token_in"`
	TokenOut       string `json:"token_out"`
	Price          string `json:"price"`
	EffectivePrice string `json:"effective_price,omitempty"`
	Size           string `json:"size,omitempty"`
}

type VerifyResponse struct {
	PoolID string `json:"pool_id"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// QuoteRequest is the body of both quote and swap calls
type QuoteRequest struct {
	TokenIn           string  `json:"token_in"`
	TokenOut          string  `json:"token_out"`
	Amount            string  `json:"amount"`                         // Token units, e.g. "1500.25"
	SlippageBps       *uint64 `json:"slippage_bps,omitempty"`         // Defaults from config
	MaxPriceImpactBps *uint64 `json:"max_price_impact_bps,omitempty"` // Defaults from config
}

type QuoteResponse struct {
	PoolID        string `json:"pool_id"`
	TokenIn       string `json:"token_in"`
	TokenOut      string `json:"token_out"`
	AmountIn      string `json:"amount_in"`
	AmountOut     string `json:"amount_out"`
	MinAmountOut  string `json:"min_amount_out"`
	PriceBefore   string `json:"price_before"`
	PriceAfter    string `json:"price_after"`
	ExchangeRate  string `json:"exchange_rate"`
	PriceImpactBP uint64 `json:"price_impact_bp"`
	SlippageBps   uint64 `json:"slippage_bps"`
	Segments      int    `json:"segments"`
	TicksCrossed  int    `json:"ticks_crossed"`
}

type SwapResponse struct {
	ExecutionID string             `json:"execution_id"`
	Quote       QuoteResponse      `json:"quote"`
	Trade       *models.TradeEvent `json:"trade"`
	TookMs      int64              `json:"took_ms"`
}

// HaltRequest sets the trading switch of one pool
type HaltRequest struct {
	Halted bool   `json:"halted"`
	Reason string `json:"reason"`
}
