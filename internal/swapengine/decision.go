package swapengine

import (
	"fmt"
	"strings"
	"time"

	"github.com/aman-zulfiqar/orbital-amm/internal/fixedpoint"
)

type DecisionEngine struct {
	risk RiskConfig
	now  func() time.Time
}

func NewDecisionEngine(risk RiskConfig) *DecisionEngine {
	return &DecisionEngine{risk: risk, now: time.Now}
}

func (de *DecisionEngine) ValidateIntent(intent *SwapIntent) error {
	if intent == nil {
		return fmt.Errorf("%w: intent is nil", ErrInvalidIntent)
	}
	if strings.TrimSpace(intent.PoolID) == "" {
		return fmt.Errorf("%w: pool id required", ErrInvalidIntent)
	}
	if intent.TokenIn == "" || intent.TokenOut == "" {
		return fmt.Errorf("%w: input/output token required", ErrInvalidIntent)
	}
	if strings.EqualFold(intent.TokenIn, intent.TokenOut) {
		return fmt.Errorf("%w: input and output token must differ", ErrInvalidIntent)
	}
	amount, err := fixedpoint.Parse(intent.Amount)
	if err != nil {
		return fmt.Errorf("%w: amount: %v", ErrInvalidIntent, err)
	}
	if amount.IsZero() {
		return fmt.Errorf("%w: amount must be > 0", ErrInvalidIntent)
	}
	return nil
}

func (de *DecisionEngine) EnrichIntent(intent *SwapIntent) {
	if intent.RequestedAt.IsZero() {
		intent.RequestedAt = de.now()
	}
	if intent.SlippageBps == nil {
		v := de.risk.DefaultSlippageBps
		intent.SlippageBps = &v
	}
	if intent.MaxPriceImpactBps == nil {
		v := de.risk.MaxPriceImpactBps
		intent.MaxPriceImpactBps = &v
	}
}

func (de *DecisionEngine) ParseIntent(intent *SwapIntent) (*SwapParams, error) {
	if err := de.ValidateIntent(intent); err != nil {
		return nil, err
	}
	de.EnrichIntent(intent)

	amountIn, err := fixedpoint.Parse(intent.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount: %v", ErrInvalidIntent, err)
	}

	return &SwapParams{
		PoolID:            strings.TrimSpace(intent.PoolID),
		TokenIn:           intent.TokenIn,
		TokenOut:          intent.TokenOut,
		AmountIn:          amountIn,
		SlippageBps:       *intent.SlippageBps,
		MaxPriceImpactBps: *intent.MaxPriceImpactBps,
		Intent:            intent,
		ParsedAt:          de.now(),
	}, nil
}
