package swapengine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aman-zulfiqar/orbital-amm/internal/amm"
	"github.com/aman-zulfiqar/orbital-amm/internal/fixedpoint"
	"github.com/aman-zulfiqar/orbital-amm/internal/metrics"
	"github.com/aman-zulfiqar/orbital-amm/internal/models"
	"github.com/aman-zulfiqar/orbital-amm/internal/registry"
	"github.com/aman-zulfiqar/orbital-amm/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Engine is the main orchestrator for swap operations
type Engine struct {
	registry       *registry.Registry
	halts          storage.HaltStore
	publisher      storage.TradePublisher
	cache          storage.TradeCache
	store          storage.TradeStore
	metrics        *metrics.Metrics
	logger         *logrus.Logger
	decisionEngine *DecisionEngine
	riskManager    *RiskManager
	publishTimeout time.Duration

	seq atomic.Uint64
	now func() time.Time
}

// EngineDeps wires the engine. Only Registry is required; nil sinks are
// skipped.
type EngineDeps struct {
	Registry  *registry.Registry
	Halts     storage.HaltStore
	Publisher storage.TradePublisher
	Cache     storage.TradeCache
	Store     storage.TradeStore
	Metrics   *metrics.Metrics
	Logger    *logrus.Logger

	Risk           RiskConfig
	PublishTimeout time.Duration
}

func NewEngine(deps EngineDeps) (*Engine, error) {
	if deps.Registry == nil {
		return nil, errors.New("swapengine: registry is required")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(prometheus.NewRegistry(), "amm")
	}
	if deps.PublishTimeout <= 0 {
		deps.PublishTimeout = 2 * time.Second
	}
	if deps.Risk.DefaultSlippageBps > deps.Risk.MaxSlippageBps {
		return nil, fmt.Errorf("swapengine: default slippage %d bps exceeds max %d bps",
			deps.Risk.DefaultSlippageBps, deps.Risk.MaxSlippageBps)
	}

	return &Engine{
		registry:       deps.Registry,
		halts:          deps.Halts,
		publisher:      deps.Publisher,
		cache:          deps.Cache,
		store:          deps.Store,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		decisionEngine: NewDecisionEngine(deps.Risk),
		riskManager:    NewRiskManager(deps.Risk),
		publishTimeout: deps.PublishTimeout,
		now:            time.Now,
	}, nil
}

// GetQuote returns a quote for a swap intent without executing
func (e *Engine) GetQuote(ctx context.Context, intent *SwapIntent) (*QuoteResult, error) {
	params, err := e.decisionEngine.ParseIntent(intent)
	if err != nil {
		return nil, err
	}
	quote, err := e.quote(params)
	if err != nil {
		e.metrics.QuotesTotal.WithLabelValues(poolLabel(params.PoolID, err), outcome(err)).Inc()
		return nil, err
	}
	e.metrics.QuotesTotal.WithLabelValues(params.PoolID, "ok").Inc()
	return quote, nil
}

func (e *Engine) quote(params *SwapParams) (*QuoteResult, error) {
	// The impact cap is applied by the risk manager so quotes always report it.
	info, err := e.registry.Quote(params.PoolID, registry.Trade{
		TokenIn:  params.TokenIn,
		TokenOut: params.TokenOut,
		AmountIn: params.AmountIn,
	})
	if err != nil {
		return nil, err
	}
	return newQuoteResult(params, info, e.now()), nil
}

func newQuoteResult(params *SwapParams, info *amm.TradeInfo, at time.Time) *QuoteResult {
	return &QuoteResult{
		PoolID:        params.PoolID,
		TokenIn:       params.TokenIn,
		TokenOut:      params.TokenOut,
		AmountIn:      info.AmountIn,
		AmountOut:     info.AmountOut,
		MinAmountOut:  ApplySlippage(info.AmountOut, params.SlippageBps),
		PriceBefore:   info.PriceBefore,
		PriceAfter:    info.PriceAfter,
		ExchangeRate:  info.ExchangeRate,
		PriceImpactBP: info.PriceImpactBP,
		SlippageBps:   params.SlippageBps,
		Segments:      len(info.Segments),
		TicksCrossed:  ticksCrossed(info),
		QuotedAt:      at,
	}
}

// CheckRisk validates a swap intent against risk rules without executing
func (e *Engine) CheckRisk(ctx context.Context, intent *SwapIntent) (*RiskCheckResult, error) {
	params, err := e.decisionEngine.ParseIntent(intent)
	if err != nil {
		return nil, err
	}
	quote, err := e.quote(params)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	return e.riskManager.CheckQuote(params, quote), nil
}

// Execute runs a swap end to end: halt check, quote, risk, then the pool
// swap with the quoted minimum output. Sinks run after the commit and never
// undo it.
func (e *Engine) Execute(ctx context.Context, intent *SwapIntent) (*SwapResult, error) {
	start := e.now()

	params, err := e.decisionEngine.ParseIntent(intent)
	if err != nil {
		return nil, err
	}
	log := e.logger.WithFields(logrus.Fields{
		"pool_id": params.PoolID,
		"in":      params.TokenIn,
		"out":     params.TokenOut,
		"amount":  intent.Amount,
	})

	if _, err := e.registry.Tokens(params.PoolID); err != nil {
		e.recordFailure(params.PoolID, outcome(err), err)
		return nil, err
	}

	if e.halts != nil {
		halted, err := e.halts.IsHalted(ctx, params.PoolID)
		if err != nil {
			e.recordFailure(params.PoolID, "halt_check", err)
			return nil, fmt.Errorf("check halt: %w", err)
		}
		if halted {
			e.metrics.SwapsTotal.WithLabelValues(params.PoolID, "halted").Inc()
			return nil, fmt.Errorf("%w: %s", ErrPoolHalted, params.PoolID)
		}
	}

	quote, err := e.quote(params)
	if err != nil {
		e.recordFailure(params.PoolID, outcome(err), err)
		return nil, err
	}

	check := e.riskManager.CheckQuote(params, quote)
	if !check.Allowed {
		e.metrics.SwapsTotal.WithLabelValues(params.PoolID, "risk_rejected").Inc()
		log.WithField("reason", check.Reason).Info("swap rejected by risk check")
		return nil, fmt.Errorf("%w: %s", ErrRiskRejected, check.Reason)
	}
	release, err := e.riskManager.ReserveDaily(params)
	if err != nil {
		e.metrics.SwapsTotal.WithLabelValues(params.PoolID, "risk_rejected").Inc()
		log.WithError(err).Info("swap rejected by risk check")
		return nil, fmt.Errorf("%w: %v", ErrRiskRejected, err)
	}

	info, err := e.registry.Swap(params.PoolID, registry.Trade{
		TokenIn:          params.TokenIn,
		TokenOut:         params.TokenOut,
		AmountIn:         params.AmountIn,
		MinAmountOut:     quote.MinAmountOut,
		MaxPriceImpactBP: check.MaxPriceImpactBps,
	})
	if err != nil {
		release()
		e.recordFailure(params.PoolID, outcome(err), err)
		log.WithError(err).Warn("swap failed")
		return nil, err
	}

	event, err := e.newTradeEvent(params, info)
	if err != nil {
		// The trade is committed; only the event metadata is missing.
		log.WithError(err).Warn("trade event incomplete")
	}
	e.emit(event)

	duration := e.now().Sub(start)
	e.metrics.SwapsTotal.WithLabelValues(params.PoolID, "ok").Inc()
	e.metrics.SwapSegments.WithLabelValues(params.PoolID).Observe(float64(len(info.Segments)))
	e.metrics.PriceImpactBP.WithLabelValues(params.PoolID).Observe(float64(info.PriceImpactBP))
	e.metrics.SwapDuration.WithLabelValues(params.PoolID).Observe(duration.Seconds())

	log.WithFields(logrus.Fields{
		"trade_id":   event.ID,
		"amount_out": event.AmountOut,
		"impact_bp":  info.PriceImpactBP,
		"segments":   len(info.Segments),
	}).Info("swap executed")

	return &SwapResult{
		ExecutionID: event.ID,
		Quote:       newQuoteResult(params, info, quote.QuotedAt),
		Info:        info,
		Event:       event,
		Duration:    duration,
	}, nil
}

func (e *Engine) newTradeEvent(params *SwapParams, info *amm.TradeInfo) (*models.TradeEvent, error) {
	now := e.now().UTC()
	event := &models.TradeEvent{
		ID:            fmt.Sprintf("trd_%d_%d", now.UnixNano(), e.seq.Add(1)),
		PoolID:        params.PoolID,
		Timestamp:     now,
		TokenIn:       params.TokenIn,
		TokenOut:      params.TokenOut,
		AmountIn:      fixedpoint.Format(info.AmountIn),
		AmountOut:     fixedpoint.Format(info.AmountOut),
		PriceBefore:   fixedpoint.Format(info.PriceBefore),
		PriceAfter:    fixedpoint.Format(info.PriceAfter),
		ExchangeRate:  fixedpoint.Format(info.ExchangeRate),
		PriceImpactBP: info.PriceImpactBP,
		Segments:      len(info.Segments),
		TicksCrossed:  ticksCrossed(info),
	}

	snap, err := e.registry.Get(params.PoolID)
	if err != nil {
		return event, err
	}
	event.Pool = snap.Name
	event.Curve = snap.Curve
	return event, nil
}

// emit hands a committed trade to every configured sink. Failures are
// logged and counted.
func (e *Engine) emit(event *models.TradeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), e.publishTimeout)
	defer cancel()

	sink := func(name string, fn func(context.Context, *models.TradeEvent) error) {
		if err := fn(ctx, event); err != nil {
			e.metrics.SinkFailures.WithLabelValues(name).Inc()
			e.logger.WithError(err).WithFields(logrus.Fields{
				"sink":     name,
				"trade_id": event.ID,
				"pool_id":  event.PoolID,
			}).Warn("trade sink failed")
		}
	}

	if e.publisher != nil {
		sink("pubsub", e.publisher.PublishTrade)
	}
	if e.cache != nil {
		sink("recent", e.cache.AddRecentTrade)
	}
	if e.store != nil {
		sink("clickhouse", e.store.InsertTrade)
	}
}

func (e *Engine) recordFailure(poolID, label string, err error) {
	e.metrics.SwapsTotal.WithLabelValues(poolLabel(poolID, err), label).Inc()
	e.metrics.ErrorsTotal.WithLabelValues(amm.KindOf(err)).Inc()
}

// RecentTrades reads a pool's history from the cache, falling back to the
// trade store.
func (e *Engine) RecentTrades(ctx context.Context, poolID string, limit int) ([]*models.TradeEvent, error) {
	if e.cache != nil {
		trades, err := e.cache.GetRecentTrades(ctx, poolID, int64(limit))
		if err == nil {
			return trades, nil
		}
		e.logger.WithError(err).WithField("pool_id", poolID).Warn("recent trades cache read failed")
	}
	if e.store != nil {
		return e.store.RecentTrades(ctx, poolID, limit)
	}
	return []*models.TradeEvent{}, nil
}

// RiskConfig returns the limits the engine enforces.
func (e *Engine) RiskConfig() RiskConfig { return e.riskManager.Config() }

func ticksCrossed(info *amm.TradeInfo) int {
	n := 0
	for _, s := range info.Segments {
		if s.Crossed {
			n++
		}
	}
	return n
}

// poolLabel keeps caller-supplied unknown IDs out of metric labels.
func poolLabel(poolID string, err error) string {
	if errors.Is(err, registry.ErrPoolNotFound) {
		return "unknown"
	}
	return poolID
}

// outcome labels a failed swap or quote for the swaps_total metric.
func outcome(err error) string {
	switch {
	case errors.Is(err, registry.ErrPoolNotFound):
		return "not_found"
	case errors.Is(err, registry.ErrUnknownToken):
		return "unknown_token"
	default:
		return amm.KindOf(err)
	}
}
