/*

This file contains the error taxonomy shared by the registry, coordinator and
router. Sentinels support errors.Is checks; carrier types attach structured
payloads (per-asset shortfalls, partial results) and unwrap to a sentinel.

*/

package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrValidation            = fmt.Errorf("validation failed")
	ErrNotFound              = fmt.Errorf("not found")
	ErrAlreadyExists         = fmt.Errorf("already exists")
	ErrInsufficientLiquidity = fmt.Errorf("insufficient liquidity")
	ErrSlippageExceeded      = fmt.Errorf("slippage exceeded")
	ErrDeadlineExceeded      = fmt.Errorf("deadline exceeded")
	ErrTransport             = fmt.Errorf("transport dispatch failed")
	ErrPartialExecution      = fmt.Errorf("partial execution")
)

// InsufficientLiquidityError carries the per-asset shortfall amounts found by
// a liquidity dry-run. It is raised by checks, not necessarily fatal to
// execution under a best-effort policy.
type InsufficientLiquidityError struct {
	Shortfalls map[string]sdkmath.Int
}

func (e *InsufficientLiquidityError) Error() string {
	return fmt.Sprintf("insufficient liquidity for %d asset(s)", len(e.Shortfalls))
}

func (e *InsufficientLiquidityError) Unwrap() error { return ErrInsufficientLiquidity }

// SlippageExceededError reports a realized or quoted price worse than the
// bound in force for the venue and size in question.
type SlippageExceededError struct {
	VenueID   string
	Denom     string
	ActualBps int64
	LimitBps  int64
}

func (e *SlippageExceededError) Error() string {
	return fmt.Sprintf("slippage %dbps exceeds limit %dbps on venue %s for %s",
		e.ActualBps, e.LimitBps, e.VenueID, e.Denom)
}

func (e *SlippageExceededError) Unwrap() error { return ErrSlippageExceeded }

// PartialExecutionError reports that some component liquidations within one
// redemption succeeded while others failed. Not a hard failure by itself: the
// request's final status is decided by the minimum-return comparison.
type PartialExecutionError struct {
	Succeeded int
	Failed    int
}

func (e *PartialExecutionError) Error() string {
	return fmt.Sprintf("partial execution: %d succeeded, %d failed", e.Succeeded, e.Failed)
}

func (e *PartialExecutionError) Unwrap() error { return ErrPartialExecution }
