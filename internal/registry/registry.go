/*

This file contains the vault cluster registry: the single shared mutable store
of fund -> chain -> vault mappings and per-fund policy. The coordinator is the
sole balance mutator; the analyzer and router only read. Per-fund locks
serialize every operation that plans against cluster balances.

*/

package registry

import (
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/vaultmesh/cvc/internal/logger"
	"github.com/vaultmesh/cvc/internal/state"
	"github.com/vaultmesh/cvc/internal/types"
	"github.com/vaultmesh/cvc/internal/utils"
)

// Registry stores vault clusters keyed by fund id.
type Registry struct {
	logger zerolog.Logger

	mu        sync.RWMutex
	clusters  map[string]*types.VaultCluster
	fundLocks map[string]*sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:    logger.GetForComponent("cluster_registry"),
		clusters:  make(map[string]*types.VaultCluster),
		fundLocks: make(map[string]*sync.Mutex),
	}
}

// validateClusterConfig rejects policy values the analyzer or router could
// not act on.
func validateClusterConfig(cfg types.ClusterConfig) error {
	if cfg.RebalanceThresholdBps <= 0 || cfg.RebalanceThresholdBps > utils.BpsDenominator {
		return fmt.Errorf("%w: rebalance threshold %d bps out of (0,10000]", types.ErrValidation, cfg.RebalanceThresholdBps)
	}
	if cfg.MaxSlippageBps <= 0 || cfg.MaxSlippageBps > utils.BpsDenominator {
		return fmt.Errorf("%w: max slippage %d bps out of (0,10000]", types.ErrValidation, cfg.MaxSlippageBps)
	}
	if cfg.MinOperationAmount.IsNil() || cfg.MinOperationAmount.IsNegative() {
		return fmt.Errorf("%w: min operation amount must be non-negative", types.ErrValidation)
	}
	if cfg.MinTradeFracBps < 0 || cfg.MinTradeFracBps > utils.BpsDenominator {
		return fmt.Errorf("%w: min trade fraction %d bps out of [0,10000]", types.ErrValidation, cfg.MinTradeFracBps)
	}
	if cfg.WithdrawFeeBps < 0 || cfg.WithdrawFeeBps >= utils.BpsDenominator {
		return fmt.Errorf("%w: withdraw fee %d bps out of [0,10000)", types.ErrValidation, cfg.WithdrawFeeBps)
	}
	return nil
}

// CreateCluster registers a new fund with a single primary vault at 100%
// allocation. Fails if the fund id already has an active cluster.
func (r *Registry) CreateCluster(fundID, name, primaryVault string, primaryChainID types.ChainID, cfg types.ClusterConfig) (types.VaultCluster, error) {
	if fundID == "" || name == "" || primaryVault == "" {
		return types.VaultCluster{}, fmt.Errorf("%w: fund id, name and primary vault are required", types.ErrValidation)
	}
	if err := validateClusterConfig(cfg); err != nil {
		return types.VaultCluster{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.clusters[fundID]; ok && existing.IsActive {
		return types.VaultCluster{}, fmt.Errorf("%w: cluster for fund %s", types.ErrAlreadyExists, fundID)
	}

	cluster := &types.VaultCluster{
		FundID:         fundID,
		Name:           name,
		PrimaryChainID: primaryChainID,
		ChainVaults: []types.ChainVaultEntry{{
			ChainID:             primaryChainID,
			VaultAddress:        primaryVault,
			TargetAllocationBps: utils.BpsDenominator,
			CurrentBalance:      sdkmath.ZeroInt(),
			IsActive:            true,
		}},
		Config:    cfg,
		CreatedAt: time.Now(),
		IsActive:  true,
	}
	r.clusters[fundID] = cluster
	r.persist(cluster)

	r.logger.Info().
		Str("fund", fundID).
		Str("name", name).
		Uint64("primaryChain", uint64(primaryChainID)).
		Msg("Cluster created")
	return cluster.Clone(), nil
}

// AddVaultToCluster appends a new chain vault entry, then renormalizes active
// allocations proportionally when their sum exceeds 10000 bps. A sum below
// 10000 is left alone: unallocated headroom is a caller error to avoid, not
// an invariant violation.
func (r *Registry) AddVaultToCluster(fundID string, chainID types.ChainID, vaultAddress string, targetAllocationBps int64) (types.VaultCluster, error) {
	if vaultAddress == "" {
		return types.VaultCluster{}, fmt.Errorf("%w: vault address is required", types.ErrValidation)
	}
	if targetAllocationBps <= 0 || targetAllocationBps > utils.BpsDenominator {
		return types.VaultCluster{}, fmt.Errorf("%w: target allocation %d bps out of (0,10000]", types.ErrValidation, targetAllocationBps)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cluster, err := r.activeCluster(fundID)
	if err != nil {
		return types.VaultCluster{}, err
	}
	if cluster.EntryForChain(chainID) >= 0 {
		return types.VaultCluster{}, fmt.Errorf("%w: chain %d already registered for fund %s", types.ErrValidation, chainID, fundID)
	}

	cluster.ChainVaults = append(cluster.ChainVaults, types.ChainVaultEntry{
		ChainID:             chainID,
		VaultAddress:        vaultAddress,
		TargetAllocationBps: targetAllocationBps,
		CurrentBalance:      sdkmath.ZeroInt(),
		IsActive:            true,
	})
	renormalizeAllocations(cluster)
	r.persist(cluster)

	r.logger.Info().
		Str("fund", fundID).
		Uint64("chain", uint64(chainID)).
		Int64("targetBps", targetAllocationBps).
		Msg("Vault added to cluster")
	return cluster.Clone(), nil
}

// ReactivateVault flips an entry back to active and renormalizes if the
// active sum now exceeds 10000 bps.
func (r *Registry) ReactivateVault(fundID string, chainID types.ChainID) (types.VaultCluster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cluster, err := r.activeCluster(fundID)
	if err != nil {
		return types.VaultCluster{}, err
	}
	idx := cluster.EntryForChain(chainID)
	if idx < 0 {
		return types.VaultCluster{}, fmt.Errorf("%w: no vault on chain %d for fund %s", types.ErrNotFound, chainID, fundID)
	}
	if !cluster.ChainVaults[idx].IsActive {
		cluster.ChainVaults[idx].IsActive = true
		renormalizeAllocations(cluster)
		r.persist(cluster)
		r.logger.Info().Str("fund", fundID).Uint64("chain", uint64(chainID)).Msg("Vault reactivated")
	}
	return cluster.Clone(), nil
}

// DeactivateVault retires an entry. Entries are never removed, and the
// remaining active sum is left below 10000 until the caller reallocates.
func (r *Registry) DeactivateVault(fundID string, chainID types.ChainID) (types.VaultCluster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cluster, err := r.activeCluster(fundID)
	if err != nil {
		return types.VaultCluster{}, err
	}
	idx := cluster.EntryForChain(chainID)
	if idx < 0 {
		return types.VaultCluster{}, fmt.Errorf("%w: no vault on chain %d for fund %s", types.ErrNotFound, chainID, fundID)
	}
	cluster.ChainVaults[idx].IsActive = false
	r.persist(cluster)
	r.logger.Info().Str("fund", fundID).Uint64("chain", uint64(chainID)).Msg("Vault deactivated")
	return cluster.Clone(), nil
}

// UpdateClusterConfig replaces the fund policy atomically.
func (r *Registry) UpdateClusterConfig(fundID string, cfg types.ClusterConfig) error {
	if err := validateClusterConfig(cfg); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cluster, err := r.activeCluster(fundID)
	if err != nil {
		return err
	}
	cluster.Config = cfg
	r.persist(cluster)
	r.logger.Info().Str("fund", fundID).Msg("Cluster config updated")
	return nil
}

// SetComponents replaces the fund's component list. Active weights must sum
// to exactly 10000 bps so the router can split redemption amounts.
func (r *Registry) SetComponents(fundID string, components []types.FundComponent) error {
	var sum int64
	seen := make(map[string]bool, len(components))
	for _, comp := range components {
		if comp.Denom == "" {
			return fmt.Errorf("%w: component denom is required", types.ErrValidation)
		}
		if seen[comp.Denom] {
			return fmt.Errorf("%w: duplicate component denom %s", types.ErrValidation, comp.Denom)
		}
		seen[comp.Denom] = true
		if comp.WeightBps <= 0 || comp.WeightBps > utils.BpsDenominator {
			return fmt.Errorf("%w: component %s weight %d bps out of (0,10000]", types.ErrValidation, comp.Denom, comp.WeightBps)
		}
		if comp.IsActive {
			sum += comp.WeightBps
		}
	}
	if sum != utils.BpsDenominator {
		return fmt.Errorf("%w: active component weights sum to %d bps, expected 10000", types.ErrValidation, sum)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cluster, err := r.activeCluster(fundID)
	if err != nil {
		return err
	}
	cluster.Components = make([]types.FundComponent, len(components))
	copy(cluster.Components, components)
	r.persist(cluster)
	r.logger.Info().Str("fund", fundID).Int("components", len(components)).Msg("Fund components set")
	return nil
}

// GetCluster returns a deep copy of the cluster for the fund.
func (r *Registry) GetCluster(fundID string) (types.VaultCluster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cluster, ok := r.clusters[fundID]
	if !ok || !cluster.IsActive {
		return types.VaultCluster{}, fmt.Errorf("%w: cluster for fund %s", types.ErrNotFound, fundID)
	}
	return cluster.Clone(), nil
}

// ApplyBalanceDelta adjusts one chain entry's balance. Only the coordinator
// calls this; a delta that would drive the balance negative is rejected.
func (r *Registry) ApplyBalanceDelta(fundID string, chainID types.ChainID, delta sdkmath.Int) error {
	if delta.IsNil() {
		return fmt.Errorf("%w: balance delta is nil", types.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cluster, err := r.activeCluster(fundID)
	if err != nil {
		return err
	}
	idx := cluster.EntryForChain(chainID)
	if idx < 0 {
		return fmt.Errorf("%w: no vault on chain %d for fund %s", types.ErrNotFound, chainID, fundID)
	}
	balance := cluster.ChainVaults[idx].CurrentBalance
	if balance.IsNil() {
		balance = sdkmath.ZeroInt()
	}
	next := balance.Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("%w: balance on chain %d would go negative (balance %s, delta %s)", types.ErrValidation, chainID, balance, delta)
	}
	cluster.ChainVaults[idx].CurrentBalance = next
	r.persist(cluster)

	r.logger.Debug().
		Str("fund", fundID).
		Uint64("chain", uint64(chainID)).
		Str("delta", delta.String()).
		Str("balance", next.String()).
		Msg("Balance updated")
	return nil
}

// WithFundLock serializes fn against all other balance-observing work on the
// same fund. A rebalance plan computed under the lock cannot be applied after
// a concurrent withdrawal has changed the balances it was computed from.
func (r *Registry) WithFundLock(fundID string, fn func() error) error {
	r.mu.Lock()
	lock, ok := r.fundLocks[fundID]
	if !ok {
		lock = &sync.Mutex{}
		r.fundLocks[fundID] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// Restore seeds the registry with a persisted cluster at startup.
func (r *Registry) Restore(cluster types.VaultCluster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := cluster.Clone()
	r.clusters[cluster.FundID] = &cp
}

// activeCluster must be called with r.mu held.
func (r *Registry) activeCluster(fundID string) (*types.VaultCluster, error) {
	cluster, ok := r.clusters[fundID]
	if !ok || !cluster.IsActive {
		return nil, fmt.Errorf("%w: cluster for fund %s", types.ErrNotFound, fundID)
	}
	return cluster, nil
}

// persist writes the cluster through to the audit store when one is
// configured. Must be called with r.mu held.
func (r *Registry) persist(cluster *types.VaultCluster) {
	if !state.Ready() {
		return
	}
	if err := state.SaveCluster(cluster.Clone()); err != nil {
		r.logger.Error().Err(err).Str("fund", cluster.FundID).Msg("Failed to persist cluster")
	}
}

// renormalizeAllocations scales active target allocations so they sum to
// exactly 10000 bps whenever the raw sum exceeds 10000. Largest-remainder
// rounding keeps the sum exact after integer division.
func renormalizeAllocations(cluster *types.VaultCluster) {
	active := cluster.ActiveEntries()
	if len(active) == 0 {
		return
	}
	var sum int64
	for _, idx := range active {
		sum += cluster.ChainVaults[idx].TargetAllocationBps
	}
	if sum <= utils.BpsDenominator {
		return
	}

	scaled := make([]int64, len(active))
	remainders := make([]int64, len(active))
	var scaledSum int64
	for i, idx := range active {
		raw := cluster.ChainVaults[idx].TargetAllocationBps * utils.BpsDenominator
		scaled[i] = raw / sum
		remainders[i] = raw % sum
		scaledSum += scaled[i]
	}

	// Distribute the rounding shortfall, one bps at a time, to the entries
	// with the largest remainders.
	for leftover := int64(utils.BpsDenominator) - scaledSum; leftover > 0; leftover-- {
		best := 0
		for i := range remainders {
			if remainders[i] > remainders[best] {
				best = i
			}
		}
		scaled[best]++
		remainders[best] = -1
	}

	for i, idx := range active {
		cluster.ChainVaults[idx].TargetAllocationBps = scaled[i]
	}
}
