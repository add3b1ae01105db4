package registry

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aman-zulfiqar/orbital-amm/internal/amm"
	"github.com/aman-zulfiqar/orbital-amm/internal/fixedpoint"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

var (
	ErrPoolNotFound  = errors.New("pool not found")
	ErrDuplicatePool = errors.New("pool already registered")
	ErrUnknownToken  = errors.New("unknown token")
)

// pool pairs a PoolState with the lock that serialises its trades.
// Reads share the lock; swaps and tick edits hold it exclusively.
type pool struct {
	id     string
	name   string
	tokens []string

	mu    sync.RWMutex
	state *amm.PoolState
}

// Registry owns every live pool of the process.
type Registry struct {
	mu     sync.RWMutex
	pools  map[string]*pool
	logger *logrus.Logger

	// defaultTolerance applies to definitions without tolerance_bp.
	defaultTolerance uint64
}

func New(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{pools: make(map[string]*pool), logger: logger}
}

// SetDefaultTolerance sets the tolerance given to pools registered later
// whose definition leaves tolerance_bp out. Zero keeps the engine default.
func (r *Registry) SetDefaultTolerance(bp uint64) {
	r.mu.Lock()
	r.defaultTolerance = bp
	r.mu.Unlock()
}

// Register builds the pool described by def and returns its ID.
func (r *Registry) Register(def Definition) (string, error) {
	id, err := def.ID()
	if err != nil {
		return "", err
	}
	cfg, err := def.Config()
	if err != nil {
		return "", err
	}
	if cfg.ToleranceBP == 0 {
		r.mu.RLock()
		cfg.ToleranceBP = r.defaultTolerance
		r.mu.RUnlock()
	}
	state, err := amm.NewPoolState(cfg)
	if err != nil {
		return "", fmt.Errorf("pool %s: %w", def.Name, err)
	}

	p := &pool{id: id, name: def.Name, tokens: append([]string(nil), def.Tokens...), state: state}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pools[id]; ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicatePool, id)
	}
	r.pools[id] = p

	r.logger.WithFields(logrus.Fields{
		"pool_id": id,
		"name":    def.Name,
		"curve":   state.Curve().String(),
		"tokens":  len(def.Tokens),
		"ticks":   len(def.Ticks),
	}).Info("pool registered")
	return id, nil
}

// LoadFile registers every definition in path. It stops at the first
// failure and reports how many pools were registered before it.
func (r *Registry) LoadFile(path string) (int, error) {
	defs, err := LoadDefinitions(path)
	if err != nil {
		return 0, err
	}
	for i, def := range defs {
		if _, err := r.Register(def); err != nil {
			return i, err
		}
	}
	return len(defs), nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

func (r *Registry) lookup(id string) (*pool, error) {
	r.mu.RLock()
	p, ok := r.pools[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}
	return p, nil
}

// tokenIndex resolves a symbol, case-insensitively, or a numeric index.
func (p *pool) tokenIndex(token string) (int, error) {
	token = strings.TrimSpace(token)
	for i, sym := range p.tokens {
		if strings.EqualFold(sym, token) {
			return i, nil
		}
	}
	if i, err := strconv.Atoi(token); err == nil && i >= 0 && i < len(p.tokens) {
		return i, nil
	}
	return 0, fmt.Errorf("%w: %q in pool %s", ErrUnknownToken, token, p.name)
}

func (p *pool) pair(in, out string) (int, int, error) {
	i, err := p.tokenIndex(in)
	if err != nil {
		return 0, 0, err
	}
	j, err := p.tokenIndex(out)
	if err != nil {
		return 0, 0, err
	}
	return i, j, nil
}

// Get returns a point-in-time view of one pool.
func (r *Registry) Get(id string) (*Snapshot, error) {
	p, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot()
}

// List returns snapshots of every pool ordered by name, then ID.
func (r *Registry) List() ([]*Snapshot, error) {
	r.mu.RLock()
	pools := make([]*pool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	r.mu.RUnlock()

	sort.Slice(pools, func(a, b int) bool {
		if pools[a].name != pools[b].name {
			return pools[a].name < pools[b].name
		}
		return pools[a].id < pools[b].id
	})

	out := make([]*Snapshot, 0, len(pools))
	for _, p := range pools {
		p.mu.RLock()
		s, err := p.snapshot()
		p.mu.RUnlock()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Price returns the marginal price of in quoted in out.
func (r *Registry) Price(id, in, out string) (*uint256.Int, error) {
	p, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	i, j, err := p.pair(in, out)
	if err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.CalculatePrice(i, j)
}

// EffectivePrice returns the execution rate of a trade of that size.
func (r *Registry) EffectivePrice(id, in, out string, size *uint256.Int) (*uint256.Int, error) {
	p, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	i, j, err := p.pair(in, out)
	if err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.EffectivePrice(i, j, size)
}

// Trade names a swap by token symbol.
type Trade struct {
	TokenIn          string
	TokenOut         string
	AmountIn         *uint256.Int
	MinAmountOut     *uint256.Int
	MaxPriceImpactBP uint64
}

func (p *pool) request(t Trade) (amm.SwapRequest, error) {
	i, j, err := p.pair(t.TokenIn, t.TokenOut)
	if err != nil {
		return amm.SwapRequest{}, err
	}
	return amm.SwapRequest{
		TokenIn:          i,
		TokenOut:         j,
		AmountIn:         t.AmountIn,
		MinAmountOut:     t.MinAmountOut,
		MaxPriceImpactBP: t.MaxPriceImpactBP,
	}, nil
}

// Quote simulates t without changing the pool.
func (r *Registry) Quote(id string, t Trade) (*amm.TradeInfo, error) {
	p, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	req, err := p.request(t)
	if err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Quote(req)
}

// Swap executes t. The pool is exclusively locked for the whole trade.
func (r *Registry) Swap(id string, t Trade) (*amm.TradeInfo, error) {
	p, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	req, err := p.request(t)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	info, err := p.state.ExecuteSwap(req)
	p.mu.Unlock()
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"pool_id": id,
			"in":      t.TokenIn,
			"out":     t.TokenOut,
			"kind":    amm.KindOf(err),
		}).WithError(err).Debug("swap rejected")
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"pool_id":    id,
		"in":         t.TokenIn,
		"out":        t.TokenOut,
		"amount_in":  fixedpoint.Format(info.AmountIn),
		"amount_out": fixedpoint.Format(info.AmountOut),
		"impact_bp":  info.PriceImpactBP,
		"segments":   len(info.Segments),
	}).Debug("swap executed")
	return info, nil
}

// Verify checks the pool against its active curve at its own tolerance.
func (r *Registry) Verify(id string) error {
	p, err := r.lookup(id)
	if err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.VerifyConstraint(p.state.ToleranceBP())
}

func (r *Registry) AddTick(id string, def TickDefinition) error {
	p, err := r.lookup(id)
	if err != nil {
		return err
	}
	t, err := ParseTick(def)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.state.AddTick(t); err != nil {
		return err
	}
	r.logger.WithFields(logrus.Fields{"pool_id": id, "tick": t.String()}).Info("tick added")
	return nil
}

func (r *Registry) RemoveTick(id string, index int) error {
	p, err := r.lookup(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.state.RemoveTick(index); err != nil {
		return err
	}
	r.logger.WithFields(logrus.Fields{"pool_id": id, "index": index}).Info("tick removed")
	return nil
}

// Tokens returns the symbols of a pool in index order.
func (r *Registry) Tokens(id string) ([]string, error) {
	p, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), p.tokens...), nil
}
