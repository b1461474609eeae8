/*

This file contains the route computation: picking venues for one component
asset and splitting the liquidation amount across them.

Venues are ranked by net output for the remaining amount and filled greedily.
Each venue only takes as much as it can absorb within the slippage limit
(linear impact model), so a large liquidation naturally fans out across
venues instead of blowing through one book.

*/

package router

import (
	"context"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/vaultmesh/cvc/internal/types"
	"github.com/vaultmesh/cvc/internal/venue"
)

// CalculateOptimalRoute plans the liquidation of amount of denom under the
// given strategy and slippage limit. The returned route may cover less than
// the requested amount when venue liquidity runs out; the caller's policy
// decides whether a partial route is acceptable.
func (r *Router) CalculateOptimalRoute(ctx context.Context, denom string, amount sdkmath.Int, strategy types.RedemptionStrategy, maxSlippageBps int64) (types.LiquidationRoute, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return types.LiquidationRoute{}, fmt.Errorf("%w: route amount must be positive", types.ErrValidation)
	}

	venues, err := r.venues.Venues(denom)
	if err != nil {
		return types.LiquidationRoute{}, fmt.Errorf("venue discovery for %s failed: %w", denom, err)
	}
	candidates := filterVenues(venues, strategy)
	if len(candidates) == 0 {
		return types.LiquidationRoute{}, fmt.Errorf("%w: no venues for %s under strategy %s", types.ErrInsufficientLiquidity, denom, strategy)
	}

	if strategy == types.StrategyEmergency {
		return r.emergencyRoute(ctx, denom, amount, candidates)
	}
	return r.greedyRoute(ctx, denom, amount, candidates, maxSlippageBps)
}

// filterVenues restricts the candidate set by strategy. AMM_ONLY and
// ORDERBOOK_ONLY restrict by venue kind; OPTIMAL, MULTI_CHAIN and EMERGENCY
// consider every venue regardless of kind or chain.
func filterVenues(venues []venue.Venue, strategy types.RedemptionStrategy) []venue.Venue {
	var out []venue.Venue
	for _, v := range venues {
		switch strategy {
		case types.StrategyAMMOnly:
			if v.Kind != venue.KindAMM {
				continue
			}
		case types.StrategyOrderBookOnly:
			if v.Kind != venue.KindOrderBook {
				continue
			}
		case types.StrategyOptimal, types.StrategyMultiChain, types.StrategyEmergency:
			// All venues eligible.
		}
		out = append(out, v)
	}
	return out
}

// scoredVenue pairs a venue with its quote for the full remaining amount.
type scoredVenue struct {
	venue venue.Venue
	quote venue.Quote
	net   sdkmath.Int
}

// greedyRoute fills the amount from the best-netting venues first, bounding
// each venue's slice by what it can absorb within the slippage limit.
func (r *Router) greedyRoute(ctx context.Context, denom string, amount sdkmath.Int, candidates []venue.Venue, maxSlippageBps int64) (types.LiquidationRoute, error) {
	route := types.LiquidationRoute{
		Denom:          denom,
		Amount:         sdkmath.ZeroInt(),
		EstimatedCost:  sdkmath.ZeroInt(),
		ExecutionChain: r.localChain,
	}

	remaining := amount
	taken := make(map[string]bool, len(candidates))
	for remaining.IsPositive() {
		scored := r.scoreVenues(ctx, denom, remaining, candidates, taken)
		if len(scored) == 0 {
			break
		}
		best := scored[0]
		taken[best.venue.ID] = true

		slice := absorbableWithin(remaining, best.quote.PriceImpactBps, maxSlippageBps)
		if !slice.IsPositive() {
			continue
		}

		quote := best.quote
		if !slice.Equal(remaining) {
			// Re-quote the reduced slice so the recorded expectation matches
			// what will actually be sent to the venue.
			q, err := r.venues.Quote(ctx, denom, slice, best.venue.ID)
			if err != nil {
				r.logger.Warn().Err(err).Str("venue", best.venue.ID).Msg("Slice re-quote failed, skipping venue")
				continue
			}
			quote = q
		}

		route.Sources = append(route.Sources, types.RouteSource{
			VenueID:        best.venue.ID,
			ChainID:        best.venue.ChainID,
			Amount:         slice,
			ExpectedOutput: quote.ExpectedOutput,
			PriceImpactBps: quote.PriceImpactBps,
			Cost:           quote.Cost,
		})
		route.Amount = route.Amount.Add(slice)
		route.EstimatedCost = route.EstimatedCost.Add(quote.Cost)
		if best.venue.ChainID != r.localChain {
			route.RequiresCrossChain = true
		}
		remaining = remaining.Sub(slice)
	}

	if len(route.Sources) == 0 {
		return types.LiquidationRoute{}, fmt.Errorf("%w: no venue can absorb %s %s within %d bps", types.ErrInsufficientLiquidity, amount, denom, maxSlippageBps)
	}
	route.TotalPriceImpactBps = weightedImpactBps(route.Sources)
	if len(route.Sources) == 1 {
		route.ExecutionChain = route.Sources[0].ChainID
	}
	return route, nil
}

// emergencyRoute ignores cost optimization entirely: one fill on the deepest
// venue, bounded only by the emergency slippage ceiling.
func (r *Router) emergencyRoute(ctx context.Context, denom string, amount sdkmath.Int, candidates []venue.Venue) (types.LiquidationRoute, error) {
	var (
		deepest      venue.Venue
		deepestDepth sdkmath.Int
		found        bool
	)
	for _, v := range candidates {
		depth, err := r.venues.Depth(ctx, denom, v.ID)
		if err != nil {
			r.logger.Warn().Err(err).Str("venue", v.ID).Msg("Depth query failed during emergency routing")
			continue
		}
		if !found || depth.GT(deepestDepth) {
			deepest = v
			deepestDepth = depth
			found = true
		}
	}
	if !found || !deepestDepth.IsPositive() {
		return types.LiquidationRoute{}, fmt.Errorf("%w: no live venue for %s", types.ErrInsufficientLiquidity, denom)
	}

	slice := amount
	if slice.GT(deepestDepth) {
		slice = deepestDepth
	}
	quote, err := r.venues.Quote(ctx, denom, slice, deepest.ID)
	if err != nil {
		return types.LiquidationRoute{}, fmt.Errorf("emergency quote on %s failed: %w", deepest.ID, err)
	}
	bounded := absorbableWithin(slice, quote.PriceImpactBps, r.emergencySlippageBps)
	if !bounded.IsPositive() {
		return types.LiquidationRoute{}, fmt.Errorf("%w: deepest venue %s exceeds emergency slippage ceiling", types.ErrInsufficientLiquidity, deepest.ID)
	}
	if !bounded.Equal(slice) {
		quote, err = r.venues.Quote(ctx, denom, bounded, deepest.ID)
		if err != nil {
			return types.LiquidationRoute{}, fmt.Errorf("emergency re-quote on %s failed: %w", deepest.ID, err)
		}
	}

	return types.LiquidationRoute{
		Denom:  denom,
		Amount: bounded,
		Sources: []types.RouteSource{{
			VenueID:        deepest.ID,
			ChainID:        deepest.ChainID,
			Amount:         bounded,
			ExpectedOutput: quote.ExpectedOutput,
			PriceImpactBps: quote.PriceImpactBps,
			Cost:           quote.Cost,
		}},
		TotalPriceImpactBps: quote.PriceImpactBps,
		EstimatedCost:       quote.Cost,
		ExecutionChain:      deepest.ChainID,
		RequiresCrossChain:  deepest.ChainID != r.localChain,
	}, nil
}

// scoreVenues quotes the remaining amount on every untaken candidate and
// returns them best-net-output first. Venues that fail to quote are skipped.
func (r *Router) scoreVenues(ctx context.Context, denom string, remaining sdkmath.Int, candidates []venue.Venue, taken map[string]bool) []scoredVenue {
	var scored []scoredVenue
	for _, v := range candidates {
		if taken[v.ID] {
			continue
		}
		quote, err := r.venues.Quote(ctx, denom, remaining, v.ID)
		if err != nil {
			r.logger.Warn().Err(err).Str("venue", v.ID).Str("denom", denom).Msg("Quote failed, skipping venue")
			continue
		}
		net := quote.ExpectedOutput.Sub(quote.Cost)
		if !net.IsPositive() {
			continue
		}
		scored = append(scored, scoredVenue{venue: v, quote: quote, net: net})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].net.GT(scored[j].net) })
	return scored
}

// absorbableWithin scales the amount down so the venue's linear price impact
// stays within the cap: impact grows proportionally with size, so the venue
// can take amount * cap / impact before crossing the limit.
func absorbableWithin(amount sdkmath.Int, impactBps, capBps int64) sdkmath.Int {
	if impactBps <= capBps {
		return amount
	}
	if impactBps <= 0 {
		return amount
	}
	return amount.MulRaw(capBps).QuoRaw(impactBps)
}

// weightedImpactBps is the amount-weighted average impact across sources.
func weightedImpactBps(sources []types.RouteSource) int64 {
	total := sdkmath.ZeroInt()
	weighted := sdkmath.ZeroInt()
	for _, src := range sources {
		total = total.Add(src.Amount)
		weighted = weighted.Add(src.Amount.MulRaw(src.PriceImpactBps))
	}
	if total.IsZero() {
		return 0
	}
	return weighted.Quo(total).Int64()
}
