/*

This file contains the liquidity dry-run: a read-only estimate of whether the
venues reachable under a strategy can absorb a redemption without breaching
the fund's slippage limit. No state changes and no executions happen here.

*/

package router

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/vaultmesh/cvc/internal/types"
	"github.com/vaultmesh/cvc/internal/utils"
)

// ComponentLiquidity is the per-component breakdown inside a LiquidityReport.
type ComponentLiquidity struct {
	Denom      string      `json:"denom"`
	Required   sdkmath.Int `json:"required"`
	Absorbable sdkmath.Int `json:"absorbable"`
	Venues     int         `json:"venues"`
}

// LiquidityReport summarizes a dry-run liquidity check for one redemption
// size. Shortfalls maps each under-supplied denom to the uncovered amount.
type LiquidityReport struct {
	FundID      string                 `json:"fund_id"`
	TokenAmount sdkmath.Int            `json:"token_amount"`
	Strategy    types.RedemptionStrategy `json:"strategy"`
	Sufficient  bool                   `json:"sufficient"`
	Components  []ComponentLiquidity   `json:"components"`
	Shortfalls  map[string]sdkmath.Int `json:"shortfalls,omitempty"`
}

// CheckLiquidityAvailability estimates, per component, how much the eligible
// venues could absorb within the fund's slippage limit and compares that to
// what redeeming tokenAmount would require. Pure read: callers can run it
// speculatively before submitting a request.
func (r *Router) CheckLiquidityAvailability(ctx context.Context, fundID string, tokenAmount sdkmath.Int, strategy types.RedemptionStrategy) (LiquidityReport, error) {
	if tokenAmount.IsNil() || !tokenAmount.IsPositive() {
		return LiquidityReport{}, fmt.Errorf("%w: token amount must be positive", types.ErrValidation)
	}
	if strategy == "" {
		strategy = types.StrategyOptimal
	}
	if !strategy.Valid() {
		return LiquidityReport{}, fmt.Errorf("%w: unknown strategy %q", types.ErrValidation, strategy)
	}

	cluster, err := r.registry.GetCluster(fundID)
	if err != nil {
		return LiquidityReport{}, err
	}
	components := cluster.ActiveComponents()
	if len(components) == 0 {
		return LiquidityReport{}, fmt.Errorf("%w: fund %s has no active components", types.ErrValidation, fundID)
	}
	capBps := cluster.Config.MaxSlippageBps
	if strategy == types.StrategyEmergency {
		capBps = r.emergencySlippageBps
	}

	report := LiquidityReport{
		FundID:      fundID,
		TokenAmount: tokenAmount,
		Strategy:    strategy,
		Sufficient:  true,
		Shortfalls:  make(map[string]sdkmath.Int),
	}
	for _, comp := range components {
		required, err := utils.PortionBps(tokenAmount, comp.WeightBps)
		if err != nil {
			return LiquidityReport{}, fmt.Errorf("%w: component %s weight: %v", types.ErrValidation, comp.Denom, err)
		}
		if required.IsZero() {
			continue
		}

		absorbable, venues, err := r.absorbableFor(ctx, comp.Denom, required, strategy, capBps)
		if err != nil {
			return LiquidityReport{}, err
		}
		report.Components = append(report.Components, ComponentLiquidity{
			Denom:      comp.Denom,
			Required:   required,
			Absorbable: absorbable,
			Venues:     venues,
		})
		if absorbable.LT(required) {
			report.Sufficient = false
			report.Shortfalls[comp.Denom] = required.Sub(absorbable)
		}
	}
	if len(report.Shortfalls) == 0 {
		report.Shortfalls = nil
	}
	return report, nil
}

// absorbableFor sums what each eligible venue could take of denom within the
// impact cap. Venues that fail to quote or report depth are counted as zero.
func (r *Router) absorbableFor(ctx context.Context, denom string, required sdkmath.Int, strategy types.RedemptionStrategy, capBps int64) (sdkmath.Int, int, error) {
	venues, err := r.venues.Venues(denom)
	if err != nil {
		return sdkmath.Int{}, 0, fmt.Errorf("venue discovery for %s failed: %w", denom, err)
	}
	candidates := filterVenues(venues, strategy)

	absorbable := sdkmath.ZeroInt()
	counted := 0
	for _, v := range candidates {
		depth, err := r.venues.Depth(ctx, denom, v.ID)
		if err != nil {
			r.logger.Warn().Err(err).Str("venue", v.ID).Msg("Depth query failed during liquidity check")
			continue
		}
		if !depth.IsPositive() {
			continue
		}
		probe := required
		if probe.GT(depth) {
			probe = depth
		}
		quote, err := r.venues.Quote(ctx, denom, probe, v.ID)
		if err != nil {
			r.logger.Warn().Err(err).Str("venue", v.ID).Msg("Quote failed during liquidity check")
			continue
		}
		slice := absorbableWithin(probe, quote.PriceImpactBps, capBps)
		absorbable = absorbable.Add(slice)
		counted++
	}
	return absorbable, counted, nil
}
