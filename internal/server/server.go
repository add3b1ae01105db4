package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aman-zulfiqar/orbital-amm/internal/constants"
	"github.com/aman-zulfiqar/orbital-amm/internal/metrics"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Config holds the listener and access settings of the AMM API.
type Config struct {
	Addr    string // Bind address, e.g. ":8090"
	DevMode bool   // Include error details in responses
	APIKey  string // Required on every route except health and metrics when set

	SwapRateLimit float64 // Swaps per second per client IP
	SwapRateBurst int

	// Zero values fall back to the defaults below. The trade stream is a
	// hijacked websocket and is not bound by WriteTimeout.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

const (
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 75 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

func (c Config) withDefaults() Config {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	return c
}

// Deps wires the API to the pool registry, the swap engine and telemetry.
type Deps struct {
	Handlers *Handlers
	Config   Config
	Gatherer prometheus.Gatherer // Served on /metrics; defaults to the global registry
	Metrics  *metrics.Metrics    // Request latency per route (optional)
}

// Server is the HTTP front of the pool registry.
type Server struct {
	e      *echo.Echo
	cfg    Config
	closed chan struct{}
}

// New builds the router. Handlers must carry a registry and an engine.
func New(deps Deps) (*Server, error) {
	h := deps.Handlers
	if h == nil || h.Registry == nil || h.Engine == nil {
		return nil, errors.New("server: handlers need a registry and an engine")
	}
	cfg := deps.Config.withDefaults()
	h.DevMode = h.DevMode || cfg.DevMode

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout
	e.Server.IdleTimeout = cfg.IdleTimeout

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(h.Logger, deps.Metrics))

	RegisterRoutes(e, h, cfg, deps.Gatherer)
	return &Server{e: e, cfg: cfg, closed: make(chan struct{})}, nil
}

// requestLogger logs each request through the service logger and observes
// its latency under the matched route, so pool IDs do not explode the
// label space.
func requestLogger(logger *logrus.Logger, m *metrics.Metrics) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogRoutePath: true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if m != nil {
				m.HTTPRequests.WithLabelValues(v.RoutePath, v.Method, strconv.Itoa(v.Status)).
					Observe(v.Latency.Seconds())
			}
			if logger == nil {
				return nil
			}
			entry := logger.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"request_id": v.RequestID,
			})
			switch {
			case v.Status >= http.StatusInternalServerError:
				entry.WithError(v.Error).Warn("request failed")
			default:
				entry.Debug("request")
			}
			return nil
		},
	})
}

// Start serves until Shutdown; it returns http.ErrServerClosed after a clean stop.
func (s *Server) Start() error {
	return s.e.Start(s.cfg.Addr)
}

// Handler exposes the router for in-process callers such as tests
func (s *Server) Handler() http.Handler {
	return s.e
}

// Shutdown stops accepting requests and waits for in-flight swaps, bounded
// by constants.ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	defer close(s.closed)
	ctx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
	defer cancel()
	return s.e.Shutdown(ctx)
}

// WaitClosed blocks until Shutdown has returned or ctx ends.
func (s *Server) WaitClosed(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return nil
	}
}

// apiHeaders marks every response as uncacheable JSON; quotes and prices
// are only valid for the pool state they were read from.
func apiHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set("Cache-Control", "no-store")
		h.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return next(c)
	}
}
