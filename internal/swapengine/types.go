package swapengine

import (
	"errors"
	"time"

	"github.com/aman-zulfiqar/orbital-amm/internal/amm"
	"github.com/aman-zulfiqar/orbital-amm/internal/models"
	"github.com/holiman/uint256"
)

var (
	ErrInvalidIntent = errors.New("invalid swap intent")
	ErrPoolHalted    = errors.New("pool is halted")
	ErrRiskRejected  = errors.New("risk check rejected")
)

// SwapIntent represents a caller's trading intention
type SwapIntent struct {
	// Core swap parameters
	PoolID   string
	TokenIn  string // Token symbol or index (e.g., "USDC", "0")
	TokenOut string
	Amount   string // Amount in token units (e.g., "1500.25")

	// Optional parameters (defaults come from RiskConfig)
	SlippageBps       *uint64 // Slippage tolerance in basis points (e.g., 50 = 0.5%)
	MaxPriceImpactBps *uint64 // Max acceptable price impact (e.g., 300 = 3%)

	RequestedAt time.Time
}

// SwapParams represents validated, executable swap parameters
type SwapParams struct {
	PoolID   string
	TokenIn  string
	TokenOut string

	// 18-decimal amount
	AmountIn *uint256.Int

	// Risk parameters
	SlippageBps       uint64
	MaxPriceImpactBps uint64

	Intent   *SwapIntent
	ParsedAt time.Time
}

// QuoteResult contains detailed quote information
type QuoteResult struct {
	PoolID        string
	TokenIn       string
	TokenOut      string
	AmountIn      *uint256.Int
	AmountOut     *uint256.Int
	MinAmountOut  *uint256.Int // With slippage applied
	PriceBefore   *uint256.Int
	PriceAfter    *uint256.Int
	ExchangeRate  *uint256.Int // Output per input
	PriceImpactBP uint64
	SlippageBps   uint64
	Segments      int
	TicksCrossed  int
	QuotedAt      time.Time
}

// SwapResult is the final result returned to the caller
type SwapResult struct {
	ExecutionID string
	Quote       *QuoteResult
	Info        *amm.TradeInfo
	Event       *models.TradeEvent
	Duration    time.Duration
}

// RiskCheckResult contains risk validation outcome
type RiskCheckResult struct {
	Allowed bool
	Reason  string

	ExceedsMaxAmount    bool
	TokenNotWhitelisted bool
	WhitelistedTokens   []string

	PriceImpactTooHigh bool
	MaxPriceImpactBps  uint64
	ActualPriceImpact  uint64

	SlippageTooHigh bool
}
