package amm

import (
	"errors"
	"fmt"

	"github.com/aman-zulfiqar/orbital-amm/internal/fixedpoint"
	"github.com/holiman/uint256"
)

// Configuration errors
var (
	ErrInvalidTokenCount = errors.New("invalid token count")
	ErrInvalidTick       = errors.New("invalid tick")
	ErrTickOverlap       = errors.New("tick overlap")
	ErrInvalidParameter  = errors.New("invalid parameter")
)

// Invariant errors
var (
	ErrSphereConstraintViolation       = errors.New("sphere constraint violation")
	ErrSuperellipseConstraintViolation = errors.New("superellipse constraint violation")
	ErrInvariantViolation              = errors.New("invariant violation")
)

// Liquidity and market errors
var (
	ErrInsufficientLiquidity  = errors.New("insufficient liquidity")
	ErrExcessivePriceImpact   = errors.New("excessive price impact")
	ErrSlippageExceeded       = errors.New("slippage exceeded")
	ErrNoSolution             = errors.New("no solution")
	ErrUnexpectedTickCrossing = errors.New("unexpected tick crossing")
)

// Indexing errors
var (
	ErrTokenIndexOutOfBounds = errors.New("token index out of bounds")
	ErrZeroReserve           = errors.New("zero reserve")
	ErrNegativeReserve       = errors.New("negative reserve")
)

// Arithmetic errors are shared with the fixed-point package.
var (
	ErrOverflow           = fixedpoint.ErrOverflow
	ErrUnderflow          = fixedpoint.ErrUnderflow
	ErrDivisionByZero     = fixedpoint.ErrDivisionByZero
	ErrNegativeSquareRoot = fixedpoint.ErrNegativeSquareRoot
	ErrPrecisionLoss      = fixedpoint.ErrPrecisionLoss
)

// ConstraintViolation reports a reserve vector that misses its curve level.
type ConstraintViolation struct {
	Curve    CurveKind
	Actual   *uint256.Int
	Expected *uint256.Int
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("%s constraint violation: actual %s, expected %s",
		e.Curve, fixedpoint.Format(e.Actual), fixedpoint.Format(e.Expected))
}

func (e *ConstraintViolation) Unwrap() error {
	if e.Curve == CurveSuperellipse {
		return ErrSuperellipseConstraintViolation
	}
	return ErrSphereConstraintViolation
}

// TickOverlapError names the two ticks whose bands intersect.
type TickOverlapError struct {
	A, B int
}

func (e *TickOverlapError) Error() string {
	return fmt.Sprintf("tick overlap: ticks %d and %d intersect", e.A, e.B)
}

func (e *TickOverlapError) Unwrap() error { return ErrTickOverlap }

type InvalidTickError struct {
	Index  int
	Reason string
}

func (e *InvalidTickError) Error() string {
	return fmt.Sprintf("invalid tick %d: %s", e.Index, e.Reason)
}

func (e *InvalidTickError) Unwrap() error { return ErrInvalidTick }

// SlippageError is returned when the achievable output is below the
// caller's minimum.
type SlippageError struct {
	Actual  *uint256.Int
	Minimum *uint256.Int
}

func (e *SlippageError) Error() string {
	return fmt.Sprintf("slippage exceeded: output %s below minimum %s",
		fixedpoint.Format(e.Actual), fixedpoint.Format(e.Minimum))
}

func (e *SlippageError) Unwrap() error { return ErrSlippageExceeded }

type PriceImpactError struct {
	ActualBP  uint64
	MaximumBP uint64
}

func (e *PriceImpactError) Error() string {
	return fmt.Sprintf("excessive price impact: %d bps exceeds %d bps", e.ActualBP, e.MaximumBP)
}

func (e *PriceImpactError) Unwrap() error { return ErrExcessivePriceImpact }

// InvariantError wraps the constraint failure detected after the final
// trade segment. It matches both ErrInvariantViolation and the cause.
type InvariantError struct {
	Err error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation after trade: %v", e.Err)
}

func (e *InvariantError) Unwrap() []error {
	return []error{ErrInvariantViolation, e.Err}
}

var errorKinds = []struct {
	err  error
	kind string
}{
	// InvariantError must be classified before the constraint it wraps.
	{ErrInvariantViolation, "invariant_violation"},
	{ErrInvalidTokenCount, "invalid_token_count"},
	{ErrInvalidTick, "invalid_tick"},
	{ErrTickOverlap, "tick_overlap"},
	{ErrInvalidParameter, "invalid_parameter"},
	{ErrSphereConstraintViolation, "sphere_constraint_violation"},
	{ErrSuperellipseConstraintViolation, "superellipse_constraint_violation"},
	{ErrInsufficientLiquidity, "insufficient_liquidity"},
	{ErrExcessivePriceImpact, "excessive_price_impact"},
	{ErrSlippageExceeded, "slippage_exceeded"},
	{ErrNoSolution, "no_solution"},
	{ErrUnexpectedTickCrossing, "unexpected_tick_crossing"},
	{ErrTokenIndexOutOfBounds, "token_index_out_of_bounds"},
	{ErrZeroReserve, "zero_reserve"},
	{ErrNegativeReserve, "negative_reserve"},
	{ErrOverflow, "overflow"},
	{ErrUnderflow, "underflow"},
	{ErrDivisionByZero, "division_by_zero"},
	{ErrNegativeSquareRoot, "negative_square_root"},
	{ErrPrecisionLoss, "precision_loss"},
}

// KindOf returns a stable snake_case label for an engine error, or
// "internal" when err is not one of ours.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
