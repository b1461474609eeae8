/*

This file contains the rebalance analyzer. It compares each chain vault's
share of the fund's total balance against its target allocation and, when the
largest deviation crosses the fund's threshold, produces a single-hop move
from the most overweight chain to the most underweight one.

All ratio math is integer basis points; no floats touch the decision path.

*/

package analyzer

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/vaultmesh/cvc/internal/coordinator"
	"github.com/vaultmesh/cvc/internal/logger"
	"github.com/vaultmesh/cvc/internal/registry"
	"github.com/vaultmesh/cvc/internal/types"
	"github.com/vaultmesh/cvc/internal/utils"
)

// RebalancePlan is the analyzer's verdict for one fund at one point in time.
type RebalancePlan struct {
	Needed       bool          `json:"needed"`
	FundID       string        `json:"fundId"`
	FromChain    types.ChainID `json:"fromChain"`
	ToChain      types.ChainID `json:"toChain"`
	Amount       sdkmath.Int   `json:"amount"`
	DeviationBps int64         `json:"deviationBps"`
}

// Analyzer reads cluster state and drives corrective rebalances through the
// coordinator.
type Analyzer struct {
	logger      zerolog.Logger
	registry    *registry.Registry
	coordinator *coordinator.Coordinator
}

// New creates an analyzer bound to a registry and coordinator.
func New(reg *registry.Registry, coord *coordinator.Coordinator) (*Analyzer, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if coord == nil {
		return nil, fmt.Errorf("coordinator cannot be nil")
	}
	return &Analyzer{
		logger:      logger.GetForComponent("rebalance_analyzer"),
		registry:    reg,
		coordinator: coord,
	}, nil
}

// CheckRebalanceNeeded evaluates the fund's current allocation drift. It is a
// pure read: no state changes, safe to call at any time. The returned plan is
// only trustworthy as long as balances do not move, which is why the
// execution path recomputes it under the fund lock.
func (a *Analyzer) CheckRebalanceNeeded(fundID string) (RebalancePlan, error) {
	cluster, err := a.registry.GetCluster(fundID)
	if err != nil {
		return RebalancePlan{}, err
	}
	return planForCluster(&cluster), nil
}

// planForCluster computes the drift plan from a cluster snapshot.
//
// Deviation is |currentRatioBps - targetBps| per active entry. The move
// amount is half the total's worth of the largest deviation: shifting the
// full deviation from the most overweight chain tends to overshoot when the
// underweight side also drifts, so each pass closes half the gap and
// convergence takes care of the rest.
func planForCluster(cluster *types.VaultCluster) RebalancePlan {
	plan := RebalancePlan{FundID: cluster.FundID, Amount: sdkmath.ZeroInt()}

	active := cluster.ActiveEntries()
	if len(active) < 2 {
		return plan
	}
	total := cluster.TotalBalance()
	if total.IsZero() {
		return plan
	}

	var (
		largestDev  int64
		overChain   types.ChainID
		overDev     int64 = -1
		underChain  types.ChainID
		underDev    int64 = -1
		haveOver    bool
		haveUnder   bool
	)
	for _, idx := range active {
		entry := cluster.ChainVaults[idx]
		balance := entry.CurrentBalance
		if balance.IsNil() {
			balance = sdkmath.ZeroInt()
		}
		ratioBps := utils.RatioBps(balance, total)
		dev := ratioBps - entry.TargetAllocationBps
		abs := dev
		if abs < 0 {
			abs = -abs
		}
		if abs > largestDev {
			largestDev = abs
		}
		if dev > 0 && dev > overDev {
			overDev = dev
			overChain = entry.ChainID
			haveOver = true
		}
		if dev < 0 && -dev > underDev {
			underDev = -dev
			underChain = entry.ChainID
			haveUnder = true
		}
	}

	plan.DeviationBps = largestDev
	if largestDev < cluster.Config.RebalanceThresholdBps || !haveOver || !haveUnder {
		return plan
	}

	// amount = total * dev / 10000 / 2, i.e. half the drifted value.
	amount := total.MulRaw(largestDev).QuoRaw(2 * utils.BpsDenominator)
	if !amount.IsPositive() {
		return plan
	}

	plan.Needed = true
	plan.FromChain = overChain
	plan.ToChain = underChain
	plan.Amount = amount
	return plan
}

// ExecuteAutoRebalance recomputes the plan under the fund lock and executes
// it in the same critical section, so concurrent deposits or withdrawals
// cannot invalidate the plan between analysis and execution. Funds with
// AutoRebalance disabled are skipped, as are moves below the fund's minimum
// operation amount or minimum trade fraction.
func (a *Analyzer) ExecuteAutoRebalance(ctx context.Context, fundID string) (RebalancePlan, error) {
	var (
		plan    RebalancePlan
		execErr error
	)
	lockErr := a.registry.WithFundLock(fundID, func() error {
		cluster, err := a.registry.GetCluster(fundID)
		if err != nil {
			return err
		}
		if !cluster.Config.AutoRebalance {
			a.logger.Debug().Str("fund", fundID).Msg("Auto-rebalance disabled, skipping")
			plan = RebalancePlan{FundID: fundID, Amount: sdkmath.ZeroInt()}
			return nil
		}
		if a.coordinator.HasOpenRebalance(fundID) {
			a.logger.Info().Str("fund", fundID).Msg("Rebalance already in flight, skipping")
			plan = RebalancePlan{FundID: fundID, Amount: sdkmath.ZeroInt()}
			return nil
		}

		plan = planForCluster(&cluster)
		if !plan.Needed {
			return nil
		}

		if plan.Amount.LT(cluster.Config.MinOperationAmount) {
			a.logger.Info().
				Str("fund", fundID).
				Str("amount", plan.Amount.String()).
				Str("minimum", cluster.Config.MinOperationAmount.String()).
				Msg("Rebalance amount below minimum, skipping")
			plan.Needed = false
			return nil
		}
		if cluster.Config.MinTradeFracBps > 0 {
			floor := cluster.TotalBalance().MulRaw(cluster.Config.MinTradeFracBps).QuoRaw(utils.BpsDenominator)
			if plan.Amount.LT(floor) {
				a.logger.Info().
					Str("fund", fundID).
					Str("amount", plan.Amount.String()).
					Str("floor", floor.String()).
					Msg("Rebalance amount below trade fraction floor, skipping")
				plan.Needed = false
				return nil
			}
		}

		a.logger.Info().
			Str("fund", fundID).
			Uint64("fromChain", uint64(plan.FromChain)).
			Uint64("toChain", uint64(plan.ToChain)).
			Str("amount", plan.Amount.String()).
			Int64("deviationBps", plan.DeviationBps).
			Msg("Executing auto-rebalance")
		_, execErr = a.coordinator.ExecuteRebalanceLocked(ctx, fundID, plan.FromChain, plan.ToChain, plan.Amount)
		return nil
	})
	if lockErr != nil {
		return RebalancePlan{}, lockErr
	}
	return plan, execErr
}
