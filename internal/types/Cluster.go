/*

This file contains the types describing a vault cluster: the set of per-chain
vault deployments that together represent one logical index fund.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// ChainID identifies a chain a vault is deployed on.
type ChainID uint64

// FundComponent is one underlying asset of the fund with its index weight.
// Active component weights sum to 10000 bps.
type FundComponent struct {
	Denom     string `json:"denom"`
	WeightBps int64  `json:"weight_bps"`
	IsActive  bool   `json:"is_active"`
}

// ChainVaultEntry is one per-chain vault deployment of a cluster.
// Entries are appended, never removed; retirement is IsActive=false.
type ChainVaultEntry struct {
	ChainID             ChainID     `json:"chain_id"`
	VaultAddress        string      `json:"vault_address"`
	TargetAllocationBps int64       `json:"target_allocation_bps"`
	CurrentBalance      sdkmath.Int `json:"current_balance"`
	IsActive            bool        `json:"is_active"`
}

// ClusterConfig is the fund-level policy applied by the analyzer and router.
type ClusterConfig struct {
	RebalanceThresholdBps int64       `json:"rebalance_threshold_bps"`
	MinOperationAmount    sdkmath.Int `json:"min_operation_amount"`
	MaxSlippageBps        int64       `json:"max_slippage_bps"`
	AutoRebalance         bool        `json:"auto_rebalance"`
	MinTradeFracBps       int64       `json:"min_trade_frac_bps"` // skip moves below this fraction of total balance
	WithdrawFeeBps        int64       `json:"withdraw_fee_bps"`
}

// VaultCluster is the top-level record for one fund.
type VaultCluster struct {
	FundID         string            `json:"fund_id"`
	Name           string            `json:"name"`
	PrimaryChainID ChainID           `json:"primary_chain_id"`
	ChainVaults    []ChainVaultEntry `json:"chain_vaults"`
	Components     []FundComponent   `json:"components"`
	Config         ClusterConfig     `json:"config"`
	CreatedAt      time.Time         `json:"created_at"`
	IsActive       bool              `json:"is_active"`
}

// EntryForChain returns the index of the entry for the given chain, or -1.
func (c *VaultCluster) EntryForChain(chainID ChainID) int {
	for i := range c.ChainVaults {
		if c.ChainVaults[i].ChainID == chainID {
			return i
		}
	}
	return -1
}

// ActiveEntries returns the indexes of all active chain vault entries.
func (c *VaultCluster) ActiveEntries() []int {
	active := make([]int, 0, len(c.ChainVaults))
	for i := range c.ChainVaults {
		if c.ChainVaults[i].IsActive {
			active = append(active, i)
		}
	}
	return active
}

// TotalBalance sums the current balances of all active entries.
func (c *VaultCluster) TotalBalance() sdkmath.Int {
	total := sdkmath.ZeroInt()
	for i := range c.ChainVaults {
		if !c.ChainVaults[i].IsActive || c.ChainVaults[i].CurrentBalance.IsNil() {
			continue
		}
		total = total.Add(c.ChainVaults[i].CurrentBalance)
	}
	return total
}

// ActiveComponents returns the active fund components.
func (c *VaultCluster) ActiveComponents() []FundComponent {
	comps := make([]FundComponent, 0, len(c.Components))
	for _, comp := range c.Components {
		if comp.IsActive {
			comps = append(comps, comp)
		}
	}
	return comps
}

// Clone returns a deep copy so callers cannot mutate registry state.
func (c *VaultCluster) Clone() VaultCluster {
	out := *c
	out.ChainVaults = make([]ChainVaultEntry, len(c.ChainVaults))
	copy(out.ChainVaults, c.ChainVaults)
	out.Components = make([]FundComponent, len(c.Components))
	copy(out.Components, c.Components)
	return out
}
