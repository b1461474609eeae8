package analyzer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultmesh/cvc/internal/coordinator"
	"github.com/vaultmesh/cvc/internal/registry"
	"github.com/vaultmesh/cvc/internal/transport"
	"github.com/vaultmesh/cvc/internal/types"
	"github.com/vaultmesh/cvc/internal/vault"
)

type noopVault struct{}

func (noopVault) Deposit(context.Context, sdkmath.Int, string) error { return nil }
func (noopVault) Withdraw(_ context.Context, amount sdkmath.Int, _ string, _ string) (sdkmath.Int, error) {
	return amount, nil
}
func (noopVault) Harvest(context.Context) (sdkmath.Int, error) { return sdkmath.ZeroInt(), nil }

type noopProvider struct{}

func (noopProvider) Vault(string) (vault.LocalVault, error) { return noopVault{}, nil }

type recordingMessenger struct {
	mu       sync.Mutex
	messages []transport.Message
	nextID   int
}

func (m *recordingMessenger) Send(_ context.Context, msg transport.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	m.nextID++
	return fmt.Sprintf("corr-%d", m.nextID), nil
}

func (m *recordingMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// setup builds a fund on chains 1 and 2. Creation pins chain 1 at 10000 bps
// and adding chain 2 at 4000 renormalizes the pair to roughly 71/29.
func setup(t *testing.T, cfg types.ClusterConfig) (*registry.Registry, *Analyzer, *recordingMessenger) {
	t.Helper()

	reg := registry.NewRegistry()
	_, err := reg.CreateCluster("fund-1", "Test Fund", "vault-a", 1, cfg)
	require.NoError(t, err)
	_, err = reg.AddVaultToCluster("fund-1", 2, "vault-b", 4000)
	require.NoError(t, err)

	messenger := &recordingMessenger{}
	coord, err := coordinator.New(coordinator.Config{
		Registry:         reg,
		Vaults:           noopProvider{},
		Messenger:        messenger,
		LocalChainID:     1,
		HoldingAddress:   "holding-acct",
		OperationTimeout: time.Hour,
	})
	require.NoError(t, err)

	an, err := New(reg, coord)
	require.NoError(t, err)
	return reg, an, messenger
}

func seedBalances(t *testing.T, reg *registry.Registry, chain1, chain2 int64) {
	t.Helper()
	if chain1 > 0 {
		require.NoError(t, reg.ApplyBalanceDelta("fund-1", 1, sdkmath.NewInt(chain1)))
	}
	if chain2 > 0 {
		require.NoError(t, reg.ApplyBalanceDelta("fund-1", 2, sdkmath.NewInt(chain2)))
	}
}

func autoConfig() types.ClusterConfig {
	return types.ClusterConfig{
		RebalanceThresholdBps: 500,
		MinOperationAmount:    sdkmath.NewInt(1),
		MaxSlippageBps:        300,
		AutoRebalance:         true,
	}
}

func TestPlanForClusterSixtyFortyDrift(t *testing.T) {
	// 60/40 target, 80/20 actual: largest deviation 2000 bps, move half the
	// drifted value (10000 * 2000 / 20000 = 1000) from chain 1 to chain 2.
	cluster := &types.VaultCluster{
		FundID: "fund-1",
		ChainVaults: []types.ChainVaultEntry{
			{ChainID: 1, TargetAllocationBps: 6000, CurrentBalance: sdkmath.NewInt(8000), IsActive: true},
			{ChainID: 2, TargetAllocationBps: 4000, CurrentBalance: sdkmath.NewInt(2000), IsActive: true},
		},
		Config:   autoConfig(),
		IsActive: true,
	}

	plan := planForCluster(cluster)
	require.True(t, plan.Needed)
	assert.Equal(t, types.ChainID(1), plan.FromChain)
	assert.Equal(t, types.ChainID(2), plan.ToChain)
	assert.Equal(t, sdkmath.NewInt(1000), plan.Amount)
	assert.Equal(t, int64(2000), plan.DeviationBps)
}

func TestPlanForClusterUnderThreshold(t *testing.T) {
	cluster := &types.VaultCluster{
		FundID: "fund-1",
		ChainVaults: []types.ChainVaultEntry{
			{ChainID: 1, TargetAllocationBps: 6000, CurrentBalance: sdkmath.NewInt(6100), IsActive: true},
			{ChainID: 2, TargetAllocationBps: 4000, CurrentBalance: sdkmath.NewInt(3900), IsActive: true},
		},
		Config:   autoConfig(),
		IsActive: true,
	}

	plan := planForCluster(cluster)
	assert.False(t, plan.Needed)
	assert.Equal(t, int64(100), plan.DeviationBps)
}

func TestPlanForClusterZeroTotal(t *testing.T) {
	cluster := &types.VaultCluster{
		FundID: "fund-1",
		ChainVaults: []types.ChainVaultEntry{
			{ChainID: 1, TargetAllocationBps: 6000, CurrentBalance: sdkmath.ZeroInt(), IsActive: true},
			{ChainID: 2, TargetAllocationBps: 4000, CurrentBalance: sdkmath.ZeroInt(), IsActive: true},
		},
		Config:   autoConfig(),
		IsActive: true,
	}

	plan := planForCluster(cluster)
	assert.False(t, plan.Needed)
	assert.True(t, plan.Amount.IsZero())
}

func TestPlanForClusterSingleActiveEntry(t *testing.T) {
	cluster := &types.VaultCluster{
		FundID: "fund-1",
		ChainVaults: []types.ChainVaultEntry{
			{ChainID: 1, TargetAllocationBps: 10000, CurrentBalance: sdkmath.NewInt(5000), IsActive: true},
			{ChainID: 2, TargetAllocationBps: 4000, CurrentBalance: sdkmath.NewInt(5000), IsActive: false},
		},
		Config:   autoConfig(),
		IsActive: true,
	}

	plan := planForCluster(cluster)
	assert.False(t, plan.Needed)
}

func TestCheckRebalanceNeededIsPure(t *testing.T) {
	reg, an, messenger := setup(t, autoConfig())
	seedBalances(t, reg, 9000, 1000)

	plan, err := an.CheckRebalanceNeeded("fund-1")
	require.NoError(t, err)
	assert.True(t, plan.Needed)
	// A check never dispatches anything.
	assert.Equal(t, 0, messenger.count())

	_, err = an.CheckRebalanceNeeded("missing")
	require.Error(t, err)
}

func TestExecuteAutoRebalanceDispatches(t *testing.T) {
	reg, an, messenger := setup(t, autoConfig())
	seedBalances(t, reg, 9000, 1000)

	plan, err := an.ExecuteAutoRebalance(context.Background(), "fund-1")
	require.NoError(t, err)
	assert.True(t, plan.Needed)
	assert.Equal(t, types.ChainID(1), plan.FromChain)
	assert.Equal(t, types.ChainID(2), plan.ToChain)
	require.Equal(t, 1, messenger.count())

	// A second pass sees the in-flight rebalance and does not double-dispatch.
	plan, err = an.ExecuteAutoRebalance(context.Background(), "fund-1")
	require.NoError(t, err)
	assert.False(t, plan.Needed)
	assert.Equal(t, 1, messenger.count())
}

func TestExecuteAutoRebalanceDisabled(t *testing.T) {
	cfg := autoConfig()
	cfg.AutoRebalance = false
	reg, an, messenger := setup(t, cfg)
	seedBalances(t, reg, 9000, 1000)

	plan, err := an.ExecuteAutoRebalance(context.Background(), "fund-1")
	require.NoError(t, err)
	assert.False(t, plan.Needed)
	assert.Equal(t, 0, messenger.count())
}

func TestExecuteAutoRebalanceBelowMinimum(t *testing.T) {
	cfg := autoConfig()
	cfg.MinOperationAmount = sdkmath.NewInt(100000)
	reg, an, messenger := setup(t, cfg)
	seedBalances(t, reg, 9000, 1000)

	plan, err := an.ExecuteAutoRebalance(context.Background(), "fund-1")
	require.NoError(t, err)
	assert.False(t, plan.Needed)
	assert.Equal(t, 0, messenger.count())
}

func TestExecuteAutoRebalanceBelowTradeFraction(t *testing.T) {
	cfg := autoConfig()
	cfg.MinTradeFracBps = 5000
	reg, an, messenger := setup(t, cfg)
	seedBalances(t, reg, 9000, 1000)

	plan, err := an.ExecuteAutoRebalance(context.Background(), "fund-1")
	require.NoError(t, err)
	assert.False(t, plan.Needed)
	assert.Equal(t, 0, messenger.count())
}
