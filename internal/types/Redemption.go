/*

This file contains the redemption request record, the liquidation route plan
and execution result types, and the redemption status state machine.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// RedemptionStrategy restricts the venue set used for routing.
type RedemptionStrategy string

const (
	StrategyAMMOnly       RedemptionStrategy = "AMM_ONLY"
	StrategyOrderBookOnly RedemptionStrategy = "ORDERBOOK_ONLY"
	StrategyMultiChain    RedemptionStrategy = "MULTI_CHAIN"
	StrategyOptimal       RedemptionStrategy = "OPTIMAL"
	StrategyEmergency     RedemptionStrategy = "EMERGENCY"
)

// Valid reports whether the strategy is a known value.
func (s RedemptionStrategy) Valid() bool {
	switch s {
	case StrategyAMMOnly, StrategyOrderBookOnly, StrategyMultiChain, StrategyOptimal, StrategyEmergency:
		return true
	}
	return false
}

// RedemptionPolicy decides how ExecuteRedemption treats an insufficient
// liquidity dry-run: reject up front, or execute best-effort and let the
// minimum-return check decide the final status.
type RedemptionPolicy string

const (
	PolicyRejectOnInsufficient RedemptionPolicy = "REJECT_ON_INSUFFICIENT"
	PolicyBestEffort           RedemptionPolicy = "BEST_EFFORT"
)

// RedemptionStatus is the lifecycle state of a RedemptionRequest.
type RedemptionStatus string

const (
	RedemptionPending    RedemptionStatus = "PENDING"
	RedemptionValidating RedemptionStatus = "VALIDATING"
	RedemptionRouting    RedemptionStatus = "ROUTING"
	RedemptionApproved   RedemptionStatus = "APPROVED"
	RedemptionExecuting  RedemptionStatus = "EXECUTING"
	RedemptionCompleted  RedemptionStatus = "COMPLETED"
	RedemptionFailed     RedemptionStatus = "FAILED"
	RedemptionCancelled  RedemptionStatus = "CANCELLED"
)

// IsTerminal reports whether the status ends the request lifecycle.
func (s RedemptionStatus) IsTerminal() bool {
	switch s {
	case RedemptionCompleted, RedemptionFailed, RedemptionCancelled:
		return true
	case RedemptionPending, RedemptionValidating, RedemptionRouting, RedemptionApproved, RedemptionExecuting:
		return false
	}
	return false
}

// CanTransitionTo enforces the forward-only redemption state machine.
// CANCELLED is reachable only before EXECUTING: sub-liquidations already
// submitted cannot be un-submitted.
func (s RedemptionStatus) CanTransitionTo(next RedemptionStatus) bool {
	switch s {
	case RedemptionPending:
		return next == RedemptionValidating || next == RedemptionFailed || next == RedemptionCancelled
	case RedemptionValidating:
		return next == RedemptionRouting || next == RedemptionFailed || next == RedemptionCancelled
	case RedemptionRouting:
		return next == RedemptionApproved || next == RedemptionFailed || next == RedemptionCancelled
	case RedemptionApproved:
		return next == RedemptionExecuting || next == RedemptionFailed || next == RedemptionCancelled
	case RedemptionExecuting:
		return next == RedemptionCompleted || next == RedemptionFailed
	case RedemptionCompleted, RedemptionFailed, RedemptionCancelled:
		return false
	}
	return false
}

// RouteSource is one venue allocation inside a LiquidationRoute.
type RouteSource struct {
	VenueID        string      `json:"venue_id"`
	ChainID        ChainID     `json:"chain_id"`
	Amount         sdkmath.Int `json:"amount"`
	ExpectedOutput sdkmath.Int `json:"expected_output"`
	PriceImpactBps int64       `json:"price_impact_bps"`
	Cost           sdkmath.Int `json:"cost"`
}

// LiquidationRoute is the computed plan for liquidating one component asset.
// It is immutable once routing completes. The route Amount equals the sum of
// its source amounts; it may be less than the amount implied by the fund-level
// redemption when routing is partial by design.
type LiquidationRoute struct {
	Denom               string        `json:"denom"`
	Amount              sdkmath.Int   `json:"amount"`
	Sources             []RouteSource `json:"sources"`
	TotalPriceImpactBps int64         `json:"total_price_impact_bps"`
	EstimatedCost       sdkmath.Int   `json:"estimated_cost"`
	ExecutionChain      ChainID       `json:"execution_chain"`
	RequiresCrossChain  bool          `json:"requires_cross_chain"`
}

// ComponentLiquidation is the executed result for one venue touched, recorded
// regardless of individual success or failure.
type ComponentLiquidation struct {
	Denom          string      `json:"denom"`
	Amount         sdkmath.Int `json:"amount"`
	ReceivedAmount sdkmath.Int `json:"received_amount"`
	Source         string      `json:"source"`
	PriceImpactBps int64       `json:"price_impact_bps"`
	ExecutionCost  sdkmath.Int `json:"execution_cost"`
	ChainID        ChainID     `json:"chain_id"`
	Success        bool        `json:"success"`
	Message        string      `json:"message,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// RedemptionRequest is one user redemption, mutated only by the router that
// owns it and retained for audit after reaching a terminal state.
type RedemptionRequest struct {
	ID              string                 `json:"id"`
	Requester       string                 `json:"requester"`
	FundID          string                 `json:"fund_id"`
	TokenAmount     sdkmath.Int            `json:"token_amount"`
	Strategy        RedemptionStrategy     `json:"strategy"`
	Routes          []LiquidationRoute     `json:"routes,omitempty"`
	MaxSlippageBps  int64                  `json:"max_slippage_bps"`
	MinReturnAmount sdkmath.Int            `json:"min_return_amount"`
	Status          RedemptionStatus       `json:"status"`
	Liquidations    []ComponentLiquidation `json:"liquidations,omitempty"`
	TotalReturned   sdkmath.Int            `json:"total_returned"`
	FailureReason   string                 `json:"failure_reason,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	Deadline        time.Time              `json:"deadline"`
}

// Clone returns a deep copy so callers cannot mutate router-owned state.
func (r *RedemptionRequest) Clone() RedemptionRequest {
	out := *r
	out.Routes = make([]LiquidationRoute, len(r.Routes))
	for i, rt := range r.Routes {
		cp := rt
		cp.Sources = make([]RouteSource, len(rt.Sources))
		copy(cp.Sources, rt.Sources)
		out.Routes[i] = cp
	}
	out.Liquidations = make([]ComponentLiquidation, len(r.Liquidations))
	copy(out.Liquidations, r.Liquidations)
	return out
}
