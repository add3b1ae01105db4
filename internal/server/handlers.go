package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/orbital-amm/internal/cache"
	"github.com/aman-zulfiqar/orbital-amm/internal/constants"
	"github.com/aman-zulfiqar/orbital-amm/internal/fixedpoint"
	"github.com/aman-zulfiqar/orbital-amm/internal/flags"
	"github.com/aman-zulfiqar/orbital-amm/internal/registry"
	"github.com/aman-zulfiqar/orbital-amm/internal/storage"
	"github.com/aman-zulfiqar/orbital-amm/internal/stream"
	"github.com/aman-zulfiqar/orbital-amm/internal/swapengine"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Registry       *registry.Registry // Live pools
	Engine         *swapengine.Engine // Quote and swap pipeline
	Halts          storage.HaltStore  // Redis-backed pool halts (optional)
	Feed           *stream.Feed       // Websocket trade feed (optional)
	DevMode        bool               // Enable detailed error responses in development
	Logger         *logrus.Logger     // Structured logger
	RequestTimeout time.Duration      // Per-request deadline for store calls
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// fail renders a domain error with its mapped status and kind label.
func (h *Handlers) fail(c echo.Context, msg string, err error) error {
	code := statusFor(err)
	if code >= http.StatusInternalServerError && h.Logger != nil {
		h.Logger.WithError(err).WithField("path", c.Path()).Error(msg)
	}
	resp := ErrorResponse{Error: msg, Code: code, Kind: kindFor(err)}
	if h.DevMode || code < http.StatusInternalServerError {
		resp.Details = err.Error()
	}
	return c.JSON(code, resp)
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// Health returns a simple health check endpoint
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{OK: true, Pools: h.Registry.Len()})
}

// Pools lists every registered pool
func (h *Handlers) Pools(c echo.Context) error {
	items, err := h.Registry.List()
	if err != nil {
		return h.fail(c, "failed to list pools", err)
	}
	if len(items) > constants.MaxPoolsListed {
		items = items[:constants.MaxPoolsListed]
	}
	return c.JSON(http.StatusOK, PoolsResponse{Items: items})
}

func (h *Handlers) Pool(c echo.Context) error {
	snap, err := h.Registry.Get(c.Param("id"))
	if err != nil {
		return h.fail(c, "failed to get pool", err)
	}
	return c.JSON(http.StatusOK, snap)
}

// Price returns the marginal price of ?in quoted in ?out, plus the
// effective rate of a trade of that size (?size, default one token)
func (h *Handlers) Price(c echo.Context) error {
	id := c.Param("id")
	in := strings.TrimSpace(c.QueryParam("in"))
	out := strings.TrimSpace(c.QueryParam("out"))
	if in == "" || out == "" {
		return h.err(c, http.StatusBadRequest, "in and out are required", map[string]any{"in": in, "out": out})
	}

	sizeStr := strings.TrimSpace(c.QueryParam("size"))
	if sizeStr == "" {
		sizeStr = constants.DefaultQuoteSize
	}
	size, err := fixedpoint.Parse(sizeStr)
	if err != nil || size.IsZero() {
		return h.err(c, http.StatusBadRequest, "invalid size", map[string]any{"size": "positive decimal"})
	}

	price, err := h.Registry.Price(id, in, out)
	if err != nil {
		return h.fail(c, "failed to get price", err)
	}
	resp := PriceResponse{PoolID: id, TokenIn: in, TokenOut: out, Price: fixedpoint.Format(price)}

	// A size larger than the pool can absorb still leaves the marginal price.
	if eff, err := h.Registry.EffectivePrice(id, in, out, size); err == nil {
		resp.EffectivePrice = fixedpoint.Format(eff)
		resp.Size = fixedpoint.Format(size)
	}
	return c.JSON(http.StatusOK, resp)
}

// Verify checks a pool's reserves against its active curve
func (h *Handlers) Verify(c echo.Context) error {
	id := c.Param("id")
	err := h.Registry.Verify(id)
	if errors.Is(err, registry.ErrPoolNotFound) {
		return h.fail(c, "pool not found", err)
	}
	resp := VerifyResponse{PoolID: id, OK: err == nil}
	if err != nil {
		resp.Error = err.Error()
		resp.Kind = kindFor(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handlers) intent(c echo.Context) (*swapengine.SwapIntent, error) {
	var req QuoteRequest
	if err := c.Bind(&req); err != nil {
		return nil, err
	}
	return &swapengine.SwapIntent{
		PoolID:            c.Param("id"),
		TokenIn:           strings.TrimSpace(req.TokenIn),
		TokenOut:          strings.TrimSpace(req.TokenOut),
		Amount:            strings.TrimSpace(req.Amount),
		SlippageBps:       req.SlippageBps,
		MaxPriceImpactBps: req.MaxPriceImpactBps,
	}, nil
}

// Quote simulates a swap without changing the pool
func (h *Handlers) Quote(c echo.Context) error {
	intent, err := h.intent(c)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	q, err := h.Engine.GetQuote(c.Request().Context(), intent)
	if err != nil {
		return h.fail(c, "quote failed", err)
	}
	return c.JSON(http.StatusOK, toQuoteResponse(q))
}

// Swap executes a swap and returns the committed trade
func (h *Handlers) Swap(c echo.Context) error {
	intent, err := h.intent(c)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), h.RequestTimeout)
	defer cancel()

	res, err := h.Engine.Execute(ctx, intent)
	if err != nil {
		return h.fail(c, "swap failed", err)
	}
	return c.JSON(http.StatusOK, SwapResponse{
		ExecutionID: res.ExecutionID,
		Quote:       toQuoteResponse(res.Quote),
		Trade:       res.Event,
		TookMs:      res.Duration.Milliseconds(),
	})
}

// Trades returns the most recent trades of a pool with optional limit parameter
// Accepts limit query parameter (default: 50, range: 1-100)
func (h *Handlers) Trades(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.Registry.Tokens(id); err != nil {
		return h.fail(c, "pool not found", err)
	}

	limit := 50
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > constants.MaxRecentTrades {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 100"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), h.RequestTimeout)
	defer cancel()

	items, err := h.Engine.RecentTrades(ctx, id, limit)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get trades", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// Stream upgrades to a websocket and relays the pool's trades as they
// are committed
func (h *Handlers) Stream(c echo.Context) error {
	if h.Feed == nil {
		return h.err(c, http.StatusServiceUnavailable, "trade feed is not configured", nil)
	}
	id := c.Param("id")
	if _, err := h.Registry.Tokens(id); err != nil {
		return h.fail(c, "pool not found", err)
	}
	// The connection is hijacked from here on; nothing can be written
	// through echo.
	if err := h.Feed.Serve(c.Response(), c.Request(), cache.PoolChannel(id)); err != nil && h.Logger != nil {
		h.Logger.WithError(err).WithField("pool_id", id).Debug("trade feed closed")
	}
	return nil
}

func (h *Handlers) haltsConfigured() bool {
	return h.Halts != nil
}

// HaltsList returns every pool halt
func (h *Handlers) HaltsList(c echo.Context) error {
	if !h.haltsConfigured() {
		return h.err(c, http.StatusServiceUnavailable, "halts are not configured", nil)
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Halts.List(ctx)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to list halts", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// HaltsGet retrieves the halt of one pool
// Returns 404 if the pool has never been halted
func (h *Handlers) HaltsGet(c echo.Context) error {
	if !h.haltsConfigured() {
		return h.err(c, http.StatusServiceUnavailable, "halts are not configured", nil)
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Halts.Get(ctx, c.Param("id"))
	if err != nil {
		return h.fail(c, "failed to get halt", err)
	}
	return c.JSON(http.StatusOK, out)
}

// HaltsSet halts or resumes trading on a registered pool
func (h *Handlers) HaltsSet(c echo.Context) error {
	if !h.haltsConfigured() {
		return h.err(c, http.StatusServiceUnavailable, "halts are not configured", nil)
	}
	id := c.Param("id")
	if _, err := h.Registry.Tokens(id); err != nil {
		return h.fail(c, "pool not found", err)
	}
	var req HaltRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Halts.Set(ctx, id, req.Halted, strings.TrimSpace(req.Reason))
	if err != nil {
		return h.fail(c, "failed to set halt", err)
	}
	if h.Logger != nil {
		h.Logger.WithFields(logrus.Fields{"pool_id": id, "halted": out.Halted, "reason": out.Reason}).Info("pool halt updated")
	}
	return c.JSON(http.StatusOK, out)
}

// HaltsDelete clears a pool halt
// Returns 204 No Content on successful deletion
func (h *Handlers) HaltsDelete(c echo.Context) error {
	if !h.haltsConfigured() {
		return h.err(c, http.StatusServiceUnavailable, "halts are not configured", nil)
	}
	id := c.Param("id")
	if err := flags.ValidatePoolID(id); err != nil {
		return h.fail(c, "invalid pool id", err)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Halts.Delete(ctx, id); err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to delete halt", nil)
	}
	return c.NoContent(http.StatusNoContent)
}

func toQuoteResponse(q *swapengine.QuoteResult) QuoteResponse {
	return QuoteResponse{
		PoolID:        q.PoolID,
		TokenIn:       q.TokenIn,
		TokenOut:      q.TokenOut,
		AmountIn:      fixedpoint.Format(q.AmountIn),
		AmountOut:     fixedpoint.Format(q.AmountOut),
		MinAmountOut:  fixedpoint.Format(q.MinAmountOut),
		PriceBefore:   fixedpoint.Format(q.PriceBefore),
		PriceAfter:    fixedpoint.Format(q.PriceAfter),
		ExchangeRate:  fixedpoint.Format(q.ExchangeRate),
		PriceImpactBP: q.PriceImpactBP,
		SlippageBps:   q.SlippageBps,
		Segments:      q.Segments,
		TicksCrossed:  q.TicksCrossed,
	}
}
