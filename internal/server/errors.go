package server

import (
	"errors"
	"net/http"

	"github.com/aman-zulfiqar/orbital-amm/internal/amm"
	"github.com/aman-zulfiqar/orbital-amm/internal/flags"
	"github.com/aman-zulfiqar/orbital-amm/internal/registry"
	"github.com/aman-zulfiqar/orbital-amm/internal/swapengine"
	"github.com/labstack/echo/v4"
)

// NotFoundJSON returns a custom HTTP error handler that returns JSON responses
// This ensures all errors (including 404s) have consistent JSON format
func NotFoundJSON() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		// Don't send response if already committed
		if c.Response().Committed {
			return
		}

		// Handle Echo HTTP errors (like 404, 400, etc.)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = c.JSON(he.Code, ErrorResponse{
				Error: http.StatusText(he.Code),
				Code:  he.Code,
			})
			return
		}

		// Handle all other errors as internal server error
		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  http.StatusInternalServerError,
		})
	}
}

// statusFor maps domain errors to HTTP status codes. Rejections the caller
// can fix by changing the request are 4xx; broken pool state is 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrPoolNotFound), errors.Is(err, flags.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrUnknownToken),
		errors.Is(err, registry.ErrInvalidDefinition),
		errors.Is(err, swapengine.ErrInvalidIntent),
		errors.Is(err, flags.ErrInvalidPoolID):
		return http.StatusBadRequest
	case errors.Is(err, swapengine.ErrPoolHalted):
		return http.StatusLocked
	case errors.Is(err, swapengine.ErrRiskRejected):
		return http.StatusUnprocessableEntity
	}

	switch amm.KindOf(err) {
	case "slippage_exceeded", "excessive_price_impact", "insufficient_liquidity", "no_solution":
		return http.StatusUnprocessableEntity
	case "token_index_out_of_bounds", "invalid_parameter", "invalid_tick", "tick_overlap",
		"underflow", "overflow", "precision_loss", "zero_reserve":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// kindFor labels err for clients; non-engine errors get no label.
func kindFor(err error) string {
	switch {
	case errors.Is(err, registry.ErrPoolNotFound):
		return "pool_not_found"
	case errors.Is(err, registry.ErrUnknownToken):
		return "unknown_token"
	case errors.Is(err, swapengine.ErrPoolHalted):
		return "pool_halted"
	case errors.Is(err, swapengine.ErrRiskRejected):
		return "risk_rejected"
	case errors.Is(err, swapengine.ErrInvalidIntent):
		return "invalid_intent"
	}
	if k := amm.KindOf(err); k != "internal" {
		return k
	}
	return ""
}
