package swapengine

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aman-zulfiqar/orbital-amm/internal/fixedpoint"
	"github.com/holiman/uint256"
)

// RiskConfig defines risk management parameters
type RiskConfig struct {
	// Per-transaction limit in token units; nil disables it
	MaxAmountIn *uint256.Int

	// Rolling 24h input volume per pool in token units; nil disables it
	DailyLimit *uint256.Int

	// Price impact limit
	MaxPriceImpactBps uint64 // e.g., 300 = 3%

	// Slippage constraints
	DefaultSlippageBps uint64 // e.g., 50 = 0.5%
	MaxSlippageBps     uint64 // e.g., 500 = 5%

	// Token whitelist (empty = allow all)
	AllowedTokens []string
}

// DefaultRiskConfig returns conservative risk settings
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxPriceImpactBps:  300,
		DefaultSlippageBps: 50,
		MaxSlippageBps:     500,
	}
}

// RiskManager enforces risk limits
type RiskManager struct {
	config       RiskConfig
	dailyTracker *DailyLimitTracker
}

func NewRiskManager(config RiskConfig) *RiskManager {
	return &RiskManager{
		config:       config,
		dailyTracker: NewDailyLimitTracker(),
	}
}

func (rm *RiskManager) Config() RiskConfig { return rm.config }

// CheckQuote validates a quoted swap against all risk rules. A rejection is
// reported in the result, not as an error.
func (rm *RiskManager) CheckQuote(params *SwapParams, quote *QuoteResult) *RiskCheckResult {
	result := &RiskCheckResult{
		Allowed:           true,
		MaxPriceImpactBps: params.MaxPriceImpactBps,
		WhitelistedTokens: rm.config.AllowedTokens,
		ActualPriceImpact: quote.PriceImpactBP,
	}

	// 1. Check per-transaction limit
	if rm.config.MaxAmountIn != nil && params.AmountIn.Gt(rm.config.MaxAmountIn) {
		result.Allowed = false
		result.ExceedsMaxAmount = true
		result.Reason = fmt.Sprintf("amount %s exceeds max %s per swap",
			fixedpoint.Format(params.AmountIn), fixedpoint.Format(rm.config.MaxAmountIn))
		return result
	}

	// 2. Check daily limit. Execute books the volume through ReserveDaily.
	if rm.config.DailyLimit != nil {
		used := rm.dailyTracker.Usage(params.PoolID)
		if !withinLimit(used, params.AmountIn, rm.config.DailyLimit) {
			result.Allowed = false
			result.Reason = dailyLimitReason(used, params.AmountIn, rm.config.DailyLimit)
			return result
		}
	}

	// 3. Check token whitelist
	if !rm.isTokenAllowed(params.TokenIn) || !rm.isTokenAllowed(params.TokenOut) {
		result.Allowed = false
		result.TokenNotWhitelisted = true
		result.Reason = fmt.Sprintf("token not whitelisted: %s or %s", params.TokenIn, params.TokenOut)
		return result
	}

	// 4. Check price impact
	maxImpact := params.MaxPriceImpactBps
	if rm.config.MaxPriceImpactBps > 0 && (maxImpact == 0 || maxImpact > rm.config.MaxPriceImpactBps) {
		maxImpact = rm.config.MaxPriceImpactBps
	}
	result.MaxPriceImpactBps = maxImpact
	if maxImpact > 0 && quote.PriceImpactBP > maxImpact {
		result.Allowed = false
		result.PriceImpactTooHigh = true
		result.Reason = fmt.Sprintf("price impact %d bps exceeds max %d bps", quote.PriceImpactBP, maxImpact)
		return result
	}

	// 5. Validate slippage
	if params.SlippageBps > rm.config.MaxSlippageBps {
		result.Allowed = false
		result.SlippageTooHigh = true
		result.Reason = fmt.Sprintf("slippage %d bps exceeds max %d bps", params.SlippageBps, rm.config.MaxSlippageBps)
		return result
	}

	return result
}

// ReserveDaily books params.AmountIn against the pool's daily limit. The
// check and the booking happen under one lock, so concurrent swaps cannot
// share the same headroom. Call release when the swap does not commit.
func (rm *RiskManager) ReserveDaily(params *SwapParams) (release func(), err error) {
	if rm.config.DailyLimit == nil {
		return func() {}, nil
	}
	release, used, ok := rm.dailyTracker.Reserve(params.PoolID, params.AmountIn, rm.config.DailyLimit)
	if !ok {
		return nil, errors.New(dailyLimitReason(used, params.AmountIn, rm.config.DailyLimit))
	}
	return release, nil
}

func withinLimit(used, amount, limit *uint256.Int) bool {
	total, overflow := new(uint256.Int).AddOverflow(used, amount)
	return !overflow && !total.Gt(limit)
}

func dailyLimitReason(used, amount, limit *uint256.Int) string {
	return fmt.Sprintf("daily limit exceeded: used %s + %s > %s",
		fixedpoint.Format(used), fixedpoint.Format(amount), fixedpoint.Format(limit))
}

func (rm *RiskManager) isTokenAllowed(symbol string) bool {
	if len(rm.config.AllowedTokens) == 0 {
		return true
	}
	for _, allowed := range rm.config.AllowedTokens {
		if strings.EqualFold(allowed, symbol) {
			return true
		}
	}
	return false
}

// DailyLimitTracker tracks rolling 24-hour input volume per pool
type DailyLimitTracker struct {
	mu    sync.Mutex
	swaps map[string][]*swapRecord
	now   func() time.Time
}

type swapRecord struct {
	timestamp time.Time
	amount    *uint256.Int
}

func NewDailyLimitTracker() *DailyLimitTracker {
	return &DailyLimitTracker{swaps: make(map[string][]*swapRecord), now: time.Now}
}

// Reserve books amount for poolID if the rolling volume stays within limit.
// It returns the volume used before the booking and a release func that
// drops the booking again; release is safe to call more than once.
func (t *DailyLimitTracker) Reserve(poolID string, amount, limit *uint256.Int) (release func(), used *uint256.Int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	used = t.usage(poolID)
	if !withinLimit(used, amount, limit) {
		return nil, used, false
	}
	rec := &swapRecord{timestamp: t.now(), amount: new(uint256.Int).Set(amount)}
	t.swaps[poolID] = append(t.swaps[poolID], rec)

	var once sync.Once
	return func() { once.Do(func() { t.remove(poolID, rec) }) }, used, true
}

// Usage sums the input volume of the last 24 hours, saturating on overflow.
func (t *DailyLimitTracker) Usage(poolID string) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage(poolID)
}

func (t *DailyLimitTracker) usage(poolID string) *uint256.Int {
	t.cleanup(poolID)
	total := new(uint256.Int)
	for _, s := range t.swaps[poolID] {
		if _, overflow := total.AddOverflow(total, s.amount); overflow {
			return new(uint256.Int).SetAllOne()
		}
	}
	return total
}

func (t *DailyLimitTracker) remove(poolID string, rec *swapRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	records := t.swaps[poolID]
	for i, s := range records {
		if s == rec {
			t.swaps[poolID] = append(records[:i], records[i+1:]...)
			break
		}
	}
	if len(t.swaps[poolID]) == 0 {
		delete(t.swaps, poolID)
	}
}

// cleanup must be called with t.mu held.
func (t *DailyLimitTracker) cleanup(poolID string) {
	cutoff := t.now().Add(-24 * time.Hour)
	kept := t.swaps[poolID][:0]
	for _, s := range t.swaps[poolID] {
		if s.timestamp.After(cutoff) {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(t.swaps, poolID)
		return
	}
	t.swaps[poolID] = kept
}

// ApplySlippage returns amount·(10000 − bps)/10000, rounded down.
func ApplySlippage(amount *uint256.Int, slippageBps uint64) *uint256.Int {
	if slippageBps >= 10_000 {
		return new(uint256.Int)
	}
	out, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(10_000-slippageBps))
	if overflow {
		// amount/10000·factor loses at most 10000 wei
		q := new(uint256.Int).Div(amount, uint256.NewInt(10_000))
		return q.Mul(q, uint256.NewInt(10_000-slippageBps))
	}
	return out.Div(out, uint256.NewInt(10_000))
}
