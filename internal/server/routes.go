package server

import (
	"net/http"
	"time"

	"github.com/aman-zulfiqar/orbital-amm/internal/constants"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg Config, gatherer prometheus.Gatherer) {
	// Set custom error handler for consistent JSON responses
	e.HTTPErrorHandler = NotFoundJSON()

	// Apply global middleware
	e.Use(middleware.BodyLimit(constants.MaxRequestBody))
	e.Use(apiHeaders)

	// Optional API key authentication; health and metrics stay open for monitoring
	if cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Skipper: func(c echo.Context) bool {
				p := c.Request().URL.Path
				return p == "/metrics" || p == "/v1/health"
			},
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil
			},
			// Missing and wrong keys both answer 401
			ErrorHandler: func(err error, c echo.Context) error {
				return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: http.StatusUnauthorized})
			},
		}))
	}

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// API v1 routes
	v1 := e.Group("/v1")
	v1.GET("/health", h.Health)

	pools := v1.Group("/pools")
	pools.GET("", h.Pools)
	pools.GET("/:id", h.Pool)
	pools.GET("/:id/price", h.Price)
	pools.GET("/:id/verify", h.Verify)
	pools.GET("/:id/trades", h.Trades)
	pools.GET("/:id/stream", h.Stream)
	pools.POST("/:id/quote", h.Quote)

	// Swaps mutate pools, so they are rate limited per client IP
	limit, burst := cfg.SwapRateLimit, cfg.SwapRateBurst
	if limit <= 0 {
		limit = 20
	}
	if burst <= 0 {
		burst = 40
	}
	pools.POST("/:id/swap", h.Swap, middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(limit),
			Burst:     burst,
			ExpiresIn: 2 * time.Minute,
		}),
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded", Code: http.StatusTooManyRequests})
		},
	}))

	// Pool halts CRUD endpoints
	halts := v1.Group("/halts")
	halts.GET("", h.HaltsList)
	halts.GET("/:id", h.HaltsGet)
	halts.PUT("/:id", h.HaltsSet)
	halts.DELETE("/:id", h.HaltsDelete)

	// Catch-all route for 404 responses
	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
