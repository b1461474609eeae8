/*

This file contains the redemption router. It owns the redemption request
lifecycle:

    PENDING -> VALIDATING -> ROUTING -> APPROVED -> EXECUTING
                                                  -> COMPLETED | FAILED

with CANCELLED reachable from any state before EXECUTING. Validation and
routing run synchronously inside RequestRedemption; execution is a separate
call so a caller can inspect the approved route before committing.

Execution never rolls back: venue fills that already happened stay happened,
and the minimum-return check against the total actually received decides the
final status.

*/

package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vaultmesh/cvc/internal/logger"
	"github.com/vaultmesh/cvc/internal/registry"
	"github.com/vaultmesh/cvc/internal/state"
	"github.com/vaultmesh/cvc/internal/types"
	"github.com/vaultmesh/cvc/internal/utils"
	"github.com/vaultmesh/cvc/internal/vault"
	"github.com/vaultmesh/cvc/internal/venue"
)

const (
	// DefaultRedemptionTimeout bounds how long an approved route stays
	// executable. Quotes go stale; an expired request must be resubmitted.
	DefaultRedemptionTimeout = time.Hour

	// DefaultEmergencySlippageBps is the price impact ceiling applied to
	// EMERGENCY routes when the operator configures nothing tighter.
	DefaultEmergencySlippageBps = 2000
)

// Router plans and executes fund redemptions against liquidity venues.
type Router struct {
	logger   zerolog.Logger
	registry *registry.Registry
	venues   venue.Provider
	ledger   vault.ShareLedger

	policy               types.RedemptionPolicy
	emergencySlippageBps int64
	localChain           types.ChainID
	timeout              time.Duration

	mu       sync.Mutex
	requests map[string]*types.RedemptionRequest
}

// Config holds the dependencies for creating a new Router.
type Config struct {
	Registry             *registry.Registry
	Venues               venue.Provider
	Ledger               vault.ShareLedger
	Policy               types.RedemptionPolicy
	EmergencySlippageBps int64
	LocalChainID         types.ChainID
	RedemptionTimeout    time.Duration
}

// New creates a router with dependency injection.
func New(cfg Config) (*Router, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if cfg.Venues == nil {
		return nil, fmt.Errorf("venue provider cannot be nil")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("share ledger cannot be nil")
	}
	if cfg.Policy == "" {
		cfg.Policy = types.PolicyBestEffort
	}
	if cfg.Policy != types.PolicyBestEffort && cfg.Policy != types.PolicyRejectOnInsufficient {
		return nil, fmt.Errorf("unknown redemption policy %q", cfg.Policy)
	}
	if cfg.EmergencySlippageBps <= 0 {
		cfg.EmergencySlippageBps = DefaultEmergencySlippageBps
	}
	if cfg.RedemptionTimeout <= 0 {
		cfg.RedemptionTimeout = DefaultRedemptionTimeout
	}

	r := &Router{
		logger:               logger.GetForComponent("redemption_router"),
		registry:             cfg.Registry,
		venues:               cfg.Venues,
		ledger:               cfg.Ledger,
		policy:               cfg.Policy,
		emergencySlippageBps: cfg.EmergencySlippageBps,
		localChain:           cfg.LocalChainID,
		timeout:              cfg.RedemptionTimeout,
		requests:             make(map[string]*types.RedemptionRequest),
	}
	r.logger.Info().
		Str("policy", string(r.policy)).
		Int64("emergencySlippageBps", r.emergencySlippageBps).
		Msg("Router created")
	return r, nil
}

// RequestRedemption validates, routes and approves a redemption in one
// synchronous pass. The requester's share balance is checked before any venue
// is queried; an oversized request never generates quote traffic.
func (r *Router) RequestRedemption(ctx context.Context, fundID, requester string, tokenAmount sdkmath.Int, strategy types.RedemptionStrategy, maxSlippageBps int64, minReturn sdkmath.Int) (types.RedemptionRequest, error) {
	if requester == "" {
		return types.RedemptionRequest{}, fmt.Errorf("%w: requester is required", types.ErrValidation)
	}
	if tokenAmount.IsNil() || !tokenAmount.IsPositive() {
		return types.RedemptionRequest{}, fmt.Errorf("%w: token amount must be positive", types.ErrValidation)
	}
	if strategy == "" {
		strategy = types.StrategyOptimal
	}
	if !strategy.Valid() {
		return types.RedemptionRequest{}, fmt.Errorf("%w: unknown strategy %q", types.ErrValidation, strategy)
	}

	cluster, err := r.registry.GetCluster(fundID)
	if err != nil {
		return types.RedemptionRequest{}, err
	}
	components := cluster.ActiveComponents()
	if len(components) == 0 {
		return types.RedemptionRequest{}, fmt.Errorf("%w: fund %s has no active components", types.ErrValidation, fundID)
	}
	if maxSlippageBps <= 0 {
		maxSlippageBps = cluster.Config.MaxSlippageBps
	}
	if maxSlippageBps <= 0 || maxSlippageBps > utils.BpsDenominator {
		return types.RedemptionRequest{}, fmt.Errorf("%w: max slippage %d bps out of (0,10000]", types.ErrValidation, maxSlippageBps)
	}
	if minReturn.IsNil() {
		minReturn = sdkmath.ZeroInt()
	}

	now := time.Now()
	req := &types.RedemptionRequest{
		ID:              uuid.New().String(),
		Requester:       requester,
		FundID:          fundID,
		TokenAmount:     tokenAmount,
		Strategy:        strategy,
		MaxSlippageBps:  maxSlippageBps,
		MinReturnAmount: minReturn,
		Status:          types.RedemptionPending,
		TotalReturned:   sdkmath.ZeroInt(),
		CreatedAt:       now,
		Deadline:        now.Add(r.timeout),
	}
	r.track(req)

	r.transition(req, types.RedemptionValidating, "")
	held, err := r.ledger.BalanceOf(fundID, requester)
	if err != nil {
		r.transition(req, types.RedemptionFailed, fmt.Sprintf("share balance lookup failed: %v", err))
		return req.Clone(), fmt.Errorf("share balance lookup failed: %w", err)
	}
	if held.LT(tokenAmount) {
		r.transition(req, types.RedemptionFailed, "redemption exceeds requester's share balance")
		return req.Clone(), fmt.Errorf("%w: requester holds %s, requested %s", types.ErrValidation, held, tokenAmount)
	}

	r.transition(req, types.RedemptionRouting, "")
	if r.policy == types.PolicyRejectOnInsufficient {
		report, err := r.CheckLiquidityAvailability(ctx, fundID, tokenAmount, strategy)
		if err != nil {
			r.transition(req, types.RedemptionFailed, fmt.Sprintf("liquidity check failed: %v", err))
			return req.Clone(), err
		}
		if !report.Sufficient {
			r.transition(req, types.RedemptionFailed, "insufficient venue liquidity")
			return req.Clone(), &types.InsufficientLiquidityError{Shortfalls: report.Shortfalls}
		}
	}

	routes, err := r.routeComponents(ctx, components, tokenAmount, strategy, maxSlippageBps)
	if err != nil {
		r.transition(req, types.RedemptionFailed, fmt.Sprintf("routing failed: %v", err))
		return req.Clone(), err
	}
	req.Routes = routes

	r.transition(req, types.RedemptionApproved, "")
	r.logger.Info().
		Str("request", req.ID).
		Str("fund", fundID).
		Str("amount", tokenAmount.String()).
		Str("strategy", string(strategy)).
		Int("routes", len(routes)).
		Msg("Redemption approved")
	return req.Clone(), nil
}

// routeComponents splits the redeemed amount across the fund's components by
// weight and routes each slice independently.
func (r *Router) routeComponents(ctx context.Context, components []types.FundComponent, tokenAmount sdkmath.Int, strategy types.RedemptionStrategy, maxSlippageBps int64) ([]types.LiquidationRoute, error) {
	routes := make([]types.LiquidationRoute, 0, len(components))
	for _, comp := range components {
		slice, err := utils.PortionBps(tokenAmount, comp.WeightBps)
		if err != nil {
			return nil, fmt.Errorf("%w: component %s weight: %v", types.ErrValidation, comp.Denom, err)
		}
		if slice.IsZero() {
			continue
		}
		route, err := r.CalculateOptimalRoute(ctx, comp.Denom, slice, strategy, maxSlippageBps)
		if err != nil {
			return nil, fmt.Errorf("routing %s: %w", comp.Denom, err)
		}
		routes = append(routes, route)
	}
	return routes, nil
}

// ExecuteRedemption runs an approved route source by source. Individual venue
// failures and slippage breaches are recorded and skipped, never rolled back.
// The request completes only when the total received clears the requester's
// minimum return.
func (r *Router) ExecuteRedemption(ctx context.Context, requestID string) (types.RedemptionRequest, error) {
	req, err := r.request(requestID)
	if err != nil {
		return types.RedemptionRequest{}, err
	}

	r.mu.Lock()
	if req.Status != types.RedemptionApproved {
		status := req.Status
		r.mu.Unlock()
		return types.RedemptionRequest{}, fmt.Errorf("%w: request %s is %s, not APPROVED", types.ErrValidation, requestID, status)
	}
	if time.Now().After(req.Deadline) {
		r.transitionLocked(req, types.RedemptionFailed, "route expired before execution")
		out := req.Clone()
		r.mu.Unlock()
		return out, fmt.Errorf("%w: request %s", types.ErrDeadlineExceeded, requestID)
	}
	r.transitionLocked(req, types.RedemptionExecuting, "")
	r.mu.Unlock()

	totalReturned := sdkmath.ZeroInt()
	var failed []string
	for _, route := range req.Routes {
		for _, src := range route.Sources {
			if time.Now().After(req.Deadline) {
				failed = append(failed, src.VenueID)
				r.appendLiquidation(req, types.ComponentLiquidation{
					Denom:     route.Denom,
					Amount:    src.Amount,
					Source:    src.VenueID,
					ChainID:   src.ChainID,
					Success:   false,
					Message:   "deadline passed before execution",
					Timestamp: time.Now(),
				})
				continue
			}

			result, execErr := r.venues.Execute(ctx, route.Denom, src.Amount, src.VenueID, req.Requester)
			liq := types.ComponentLiquidation{
				Denom:     route.Denom,
				Amount:    src.Amount,
				Source:    src.VenueID,
				ChainID:   src.ChainID,
				Timestamp: time.Now(),
			}
			if execErr != nil {
				liq.Success = false
				liq.Message = execErr.Error()
				failed = append(failed, src.VenueID)
				r.logger.Error().Err(execErr).
					Str("request", req.ID).
					Str("venue", src.VenueID).
					Str("denom", route.Denom).
					Msg("Venue execution failed")
				r.appendLiquidation(req, liq)
				continue
			}

			liq.ReceivedAmount = result.ReceivedAmount
			liq.ExecutionCost = result.Cost
			liq.PriceImpactBps = realizedImpactBps(src.ExpectedOutput, result.ReceivedAmount, src.PriceImpactBps)

			// A fill below the slippage floor is a breach, but the tokens
			// were still received; they count toward the total.
			floor := src.ExpectedOutput.
				MulRaw(utils.BpsDenominator - req.MaxSlippageBps).
				QuoRaw(utils.BpsDenominator)
			if result.ReceivedAmount.LT(floor) {
				slip := &types.SlippageExceededError{
					VenueID:   src.VenueID,
					Denom:     route.Denom,
					ActualBps: liq.PriceImpactBps,
					LimitBps:  req.MaxSlippageBps,
				}
				liq.Success = false
				liq.Message = slip.Error()
				failed = append(failed, src.VenueID)
				r.logger.Warn().
					Str("request", req.ID).
					Str("venue", src.VenueID).
					Str("expected", src.ExpectedOutput.String()).
					Str("received", result.ReceivedAmount.String()).
					Msg("Slippage limit breached")
			} else {
				liq.Success = true
			}
			totalReturned = totalReturned.Add(result.ReceivedAmount)
			r.appendLiquidation(req, liq)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	req.TotalReturned = totalReturned

	if totalReturned.GTE(req.MinReturnAmount) {
		r.transitionLocked(req, types.RedemptionCompleted, "")
		out := req.Clone()
		if len(failed) > 0 {
			return out, &types.PartialExecutionError{
				Succeeded: len(req.Liquidations) - len(failed),
				Failed:    len(failed),
			}
		}
		return out, nil
	}

	r.transitionLocked(req, types.RedemptionFailed,
		fmt.Sprintf("returned %s below minimum %s", totalReturned, req.MinReturnAmount))
	out := req.Clone()
	if len(failed) > 0 {
		return out, &types.PartialExecutionError{
			Succeeded: len(req.Liquidations) - len(failed),
			Failed:    len(failed),
		}
	}
	return out, fmt.Errorf("%w: returned %s below minimum %s", types.ErrSlippageExceeded, totalReturned, req.MinReturnAmount)
}

// realizedImpactBps estimates the realized price impact from the gap between
// expected and received output. Falls back to the quoted impact when the fill
// met or beat the quote.
func realizedImpactBps(expected, received sdkmath.Int, quotedBps int64) int64 {
	if expected.IsZero() || received.GTE(expected) {
		return quotedBps
	}
	gap := expected.Sub(received).MulRaw(utils.BpsDenominator).Quo(expected)
	return gap.Int64()
}

// CancelRedemption withdraws a request that has not started executing. Only
// the original requester may cancel.
func (r *Router) CancelRedemption(requestID, requester string) (types.RedemptionRequest, error) {
	req, err := r.request(requestID)
	if err != nil {
		return types.RedemptionRequest{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if req.Requester != requester {
		return types.RedemptionRequest{}, fmt.Errorf("%w: only the requester may cancel", types.ErrValidation)
	}
	if !req.Status.CanTransitionTo(types.RedemptionCancelled) {
		return types.RedemptionRequest{}, fmt.Errorf("%w: request %s is %s and can no longer be cancelled", types.ErrValidation, requestID, req.Status)
	}
	r.transitionLocked(req, types.RedemptionCancelled, "cancelled by requester")
	return req.Clone(), nil
}

// GetRedemption returns a copy of the request with the given id.
func (r *Router) GetRedemption(requestID string) (types.RedemptionRequest, error) {
	req, err := r.request(requestID)
	if err != nil {
		return types.RedemptionRequest{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return req.Clone(), nil
}

// Restore reloads persisted non-terminal requests at startup. Requests caught
// mid-flight by the restart are failed: validation and routing are synchronous
// and cannot resume, and an interrupted execution cannot prove which venue
// fills landed.
func (r *Router) Restore(reqs []types.RedemptionRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	interrupted := 0
	for i := range reqs {
		req := reqs[i]
		r.requests[req.ID] = &req
		switch req.Status {
		case types.RedemptionApproved:
			// Still executable until its deadline.
		case types.RedemptionPending, types.RedemptionValidating, types.RedemptionRouting, types.RedemptionExecuting:
			r.transitionLocked(&req, types.RedemptionFailed, "interrupted by restart")
			interrupted++
		}
	}
	r.logger.Info().
		Int("count", len(reqs)).
		Int("interrupted", interrupted).
		Msg("Restored open redemption requests")
}

func (r *Router) track(req *types.RedemptionRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.ID] = req
	r.persist(req)
}

func (r *Router) request(requestID string) (*types.RedemptionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: redemption %s", types.ErrNotFound, requestID)
	}
	return req, nil
}

// transition moves the request forward under the router lock.
func (r *Router) transition(req *types.RedemptionRequest, next types.RedemptionStatus, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitionLocked(req, next, reason)
}

// transitionLocked must be called with r.mu held.
func (r *Router) transitionLocked(req *types.RedemptionRequest, next types.RedemptionStatus, reason string) {
	if !req.Status.CanTransitionTo(next) {
		r.logger.Error().
			Str("request", req.ID).
			Str("from", string(req.Status)).
			Str("to", string(next)).
			Msg("Illegal redemption transition suppressed")
		return
	}
	req.Status = next
	if reason != "" {
		req.FailureReason = reason
	}
	r.persist(req)
	r.logger.Info().
		Str("request", req.ID).
		Str("status", string(next)).
		Str("reason", reason).
		Msg("Redemption transitioned")
}

func (r *Router) appendLiquidation(req *types.RedemptionRequest, liq types.ComponentLiquidation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req.Liquidations = append(req.Liquidations, liq)
	r.persist(req)
}

// persist must be called with r.mu held.
func (r *Router) persist(req *types.RedemptionRequest) {
	if !state.Ready() {
		return
	}
	if err := state.SaveRedemption(req.Clone()); err != nil {
		r.logger.Error().Err(err).Str("request", req.ID).Msg("Failed to persist redemption")
	}
}
