/*

This file contains the cross-chain operation coordinator. It creates,
dispatches and tracks operations against local vaults or the messaging
transport, and drives the operation state machine:

    PENDING -> EXECUTING -> COMPLETED | FAILED | EXPIRED

Local executions resolve synchronously within the same call; cross-chain
executions stay EXECUTING until an external reconciliation signal arrives via
CompleteRemote, or until the deadline sweep marks them EXPIRED. Failed and
expired operations are never retried automatically: the caller resubmits,
producing a new operation id, which avoids double-execution ambiguity.

*/

package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vaultmesh/cvc/internal/logger"
	"github.com/vaultmesh/cvc/internal/registry"
	"github.com/vaultmesh/cvc/internal/state"
	"github.com/vaultmesh/cvc/internal/transport"
	"github.com/vaultmesh/cvc/internal/types"
	"github.com/vaultmesh/cvc/internal/utils"
	"github.com/vaultmesh/cvc/internal/vault"
)

// DefaultOperationTimeout bounds how long a dispatched operation may stay
// EXECUTING before the reconciliation sweep can expire it.
const DefaultOperationTimeout = time.Hour

// Coordinator owns every CrossChainOperation it creates. It is the sole
// mutator of cluster balances in the registry.
type Coordinator struct {
	logger    zerolog.Logger
	registry  *registry.Registry
	vaults    vault.Provider
	messenger transport.Messenger

	localChain types.ChainID
	holding    string
	timeout    time.Duration

	seq atomic.Uint64

	mu            sync.Mutex
	ops           map[string]*types.CrossChainOperation
	byCorrelation map[string]string
}

// Config holds the dependencies for creating a new Coordinator.
type Config struct {
	Registry         *registry.Registry
	Vaults           vault.Provider
	Messenger        transport.Messenger
	LocalChainID     types.ChainID
	HoldingAddress   string
	OperationTimeout time.Duration
}

func validateConfig(cfg Config) error {
	if cfg.Registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	if cfg.Vaults == nil {
		return fmt.Errorf("vault provider cannot be nil")
	}
	if cfg.Messenger == nil {
		return fmt.Errorf("messenger cannot be nil")
	}
	if cfg.HoldingAddress == "" {
		return fmt.Errorf("holding address cannot be empty")
	}
	return nil
}

// New creates a coordinator with dependency injection.
func New(cfg Config) (*Coordinator, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("coordinator configuration validation failed: %w", err)
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = DefaultOperationTimeout
	}

	c := &Coordinator{
		logger:        logger.GetForComponent("operation_coordinator"),
		registry:      cfg.Registry,
		vaults:        cfg.Vaults,
		messenger:     cfg.Messenger,
		localChain:    cfg.LocalChainID,
		holding:       cfg.HoldingAddress,
		timeout:       cfg.OperationTimeout,
		ops:           make(map[string]*types.CrossChainOperation),
		byCorrelation: make(map[string]string),
	}

	c.logger.Info().
		Uint64("localChain", uint64(c.localChain)).
		Dur("operationTimeout", c.timeout).
		Msg("Coordinator created")
	return c, nil
}

// newOperation allocates an operation record in PENDING. The UUID identifies
// it across coordinator instances; Seq gives the per-coordinator total order.
func (c *Coordinator) newOperation(opType types.OperationType, fundID string, source, target types.ChainID, sourceVault, targetVault string, amount sdkmath.Int, user string) *types.CrossChainOperation {
	now := time.Now()
	return &types.CrossChainOperation{
		ID:          uuid.New().String(),
		Seq:         c.seq.Add(1),
		Type:        opType,
		FundID:      fundID,
		SourceChain: source,
		TargetChain: target,
		SourceVault: sourceVault,
		TargetVault: targetVault,
		Amount:      amount,
		PaidOut:     sdkmath.ZeroInt(),
		User:        user,
		Status:      types.OpPending,
		Timestamp:   now,
		Deadline:    now.Add(c.timeout),
	}
}

// transition moves an operation forward, enforcing the state machine, and
// writes the new state through to the audit store. Field writes happen under
// c.mu: readers hand out copies of tracked records under the same lock, while
// writers to one operation serialize on the fund lock.
func (c *Coordinator) transition(op *types.CrossChainOperation, next types.OperationStatus, reason string) error {
	if !op.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: operation %s cannot move %s -> %s", types.ErrValidation, op.ID, op.Status, next)
	}
	c.mu.Lock()
	op.Status = next
	if reason != "" {
		op.FailureReason = reason
	}
	c.mu.Unlock()
	c.persist(op)
	c.logger.Info().
		Str("op", op.ID).
		Str("type", string(op.Type)).
		Str("status", string(next)).
		Str("reason", reason).
		Msg("Operation transitioned")
	return nil
}

func (c *Coordinator) persist(op *types.CrossChainOperation) {
	if !state.Ready() {
		return
	}
	if err := state.SaveOperation(*op); err != nil {
		c.logger.Error().Err(err).Str("op", op.ID).Msg("Failed to persist operation")
	}
}

func (c *Coordinator) track(op *types.CrossChainOperation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops[op.ID] = op
	if op.CorrelationID != "" {
		c.byCorrelation[op.CorrelationID] = op.ID
	}
}

// validateAmount applies the common amount checks before any mutation.
func validateAmount(amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", types.ErrValidation)
	}
	return nil
}

// ExecuteDeposit deposits amount into the fund's vault on the target chain.
// Local targets resolve synchronously; remote targets are dispatched through
// the transport and stay EXECUTING until reconciled.
func (c *Coordinator) ExecuteDeposit(ctx context.Context, fundID string, targetChainID types.ChainID, amount sdkmath.Int, user string) (types.CrossChainOperation, error) {
	if err := validateAmount(amount); err != nil {
		return types.CrossChainOperation{}, err
	}
	cluster, err := c.registry.GetCluster(fundID)
	if err != nil {
		return types.CrossChainOperation{}, err
	}
	idx := cluster.EntryForChain(targetChainID)
	if idx < 0 || !cluster.ChainVaults[idx].IsActive {
		return types.CrossChainOperation{}, fmt.Errorf("%w: no active vault on chain %d for fund %s", types.ErrNotFound, targetChainID, fundID)
	}
	entry := cluster.ChainVaults[idx]

	op := c.newOperation(types.OpDeposit, fundID, c.localChain, targetChainID, "", entry.VaultAddress, amount, user)
	var execErr error
	lockErr := c.registry.WithFundLock(fundID, func() error {
		if err := c.transition(op, types.OpExecuting, ""); err != nil {
			return err
		}
		if targetChainID == c.localChain {
			execErr = c.depositLocal(ctx, op, entry.VaultAddress)
		} else {
			execErr = c.dispatch(ctx, op, transport.Message{
				Kind:        transport.KindDeposit,
				FundID:      fundID,
				TargetChain: targetChainID,
				TargetVault: entry.VaultAddress,
				Amount:      amount,
				Shares:      sdkmath.ZeroInt(),
				User:        user,
			})
		}
		return nil
	})
	if lockErr != nil {
		return types.CrossChainOperation{}, lockErr
	}
	c.track(op)
	return *op, execErr
}

// depositLocal calls the local vault directly and resolves the operation in
// the same call.
func (c *Coordinator) depositLocal(ctx context.Context, op *types.CrossChainOperation, vaultAddress string) error {
	v, err := c.vaults.Vault(vaultAddress)
	if err != nil {
		c.transition(op, types.OpFailed, fmt.Sprintf("vault resolution failed: %v", err))
		return fmt.Errorf("%w: vault %s", types.ErrNotFound, vaultAddress)
	}
	if err := v.Deposit(ctx, op.Amount, op.User); err != nil {
		c.transition(op, types.OpFailed, fmt.Sprintf("vault deposit failed: %v", err))
		return fmt.Errorf("vault deposit failed: %w", err)
	}
	if err := c.registry.ApplyBalanceDelta(op.FundID, op.TargetChain, op.Amount); err != nil {
		c.logger.Error().Err(err).Str("op", op.ID).Msg("Balance update failed after deposit")
	}
	return c.transition(op, types.OpCompleted, "")
}

// ExecuteWithdrawal withdraws amount from the fund's vault on the source
// chain, paying the user.
func (c *Coordinator) ExecuteWithdrawal(ctx context.Context, fundID string, sourceChainID types.ChainID, amount sdkmath.Int, user string) (types.CrossChainOperation, error) {
	if err := validateAmount(amount); err != nil {
		return types.CrossChainOperation{}, err
	}
	cluster, err := c.registry.GetCluster(fundID)
	if err != nil {
		return types.CrossChainOperation{}, err
	}
	idx := cluster.EntryForChain(sourceChainID)
	if idx < 0 || !cluster.ChainVaults[idx].IsActive {
		return types.CrossChainOperation{}, fmt.Errorf("%w: no active vault on chain %d for fund %s", types.ErrNotFound, sourceChainID, fundID)
	}
	entry := cluster.ChainVaults[idx]

	op := c.newOperation(types.OpWithdrawal, fundID, sourceChainID, c.localChain, entry.VaultAddress, "", amount, user)
	var execErr error
	lockErr := c.registry.WithFundLock(fundID, func() error {
		if err := c.transition(op, types.OpExecuting, ""); err != nil {
			return err
		}
		if sourceChainID == c.localChain {
			execErr = c.withdrawLocal(ctx, op, entry.VaultAddress, user, user, cluster.Config.WithdrawFeeBps)
		} else {
			execErr = c.dispatch(ctx, op, transport.Message{
				Kind:        transport.KindWithdrawal,
				FundID:      fundID,
				TargetChain: sourceChainID,
				TargetVault: entry.VaultAddress,
				Amount:      amount,
				Shares:      amount,
				User:        user,
			})
		}
		return nil
	})
	if lockErr != nil {
		return types.CrossChainOperation{}, lockErr
	}
	c.track(op)
	return *op, execErr
}

// withdrawLocal pays the recipient from the local vault, net of the fund's
// withdraw fee. The fee portion never leaves the vault.
func (c *Coordinator) withdrawLocal(ctx context.Context, op *types.CrossChainOperation, vaultAddress, recipient, owner string, feeBps int64) error {
	v, err := c.vaults.Vault(vaultAddress)
	if err != nil {
		c.transition(op, types.OpFailed, fmt.Sprintf("vault resolution failed: %v", err))
		return fmt.Errorf("%w: vault %s", types.ErrNotFound, vaultAddress)
	}
	payout := op.Amount
	if feeBps > 0 {
		payout = op.Amount.MulRaw(utils.BpsDenominator - feeBps).QuoRaw(utils.BpsDenominator)
	}
	paid, err := v.Withdraw(ctx, payout, recipient, owner)
	if err != nil {
		c.transition(op, types.OpFailed, fmt.Sprintf("vault withdrawal failed: %v", err))
		return fmt.Errorf("vault withdrawal failed: %w", err)
	}
	op.PaidOut = paid
	if err := c.registry.ApplyBalanceDelta(op.FundID, op.SourceChain, payout.Neg()); err != nil {
		c.logger.Error().Err(err).Str("op", op.ID).Msg("Balance update failed after withdrawal")
	}
	return c.transition(op, types.OpCompleted, "")
}

// dispatch hands a message to the transport. A transport error fails the
// operation immediately; it is never auto-retried.
func (c *Coordinator) dispatch(ctx context.Context, op *types.CrossChainOperation, msg transport.Message) error {
	correlationID, err := c.messenger.Send(ctx, msg)
	if err != nil {
		c.transition(op, types.OpFailed, fmt.Sprintf("dispatch failed: %v", err))
		return fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
	op.CorrelationID = correlationID
	c.persist(op)
	c.logger.Info().
		Str("op", op.ID).
		Str("correlationID", correlationID).
		Uint64("targetChain", uint64(msg.TargetChain)).
		Msg("Operation dispatched cross-chain")
	return nil
}

// ExecuteRebalance moves amount between two of the fund's chain vaults under
// the fund lock.
func (c *Coordinator) ExecuteRebalance(ctx context.Context, fundID string, fromChain, toChain types.ChainID, amount sdkmath.Int) (types.CrossChainOperation, error) {
	var (
		op  types.CrossChainOperation
		err error
	)
	lockErr := c.registry.WithFundLock(fundID, func() error {
		op, err = c.ExecuteRebalanceLocked(ctx, fundID, fromChain, toChain, amount)
		return nil
	})
	if lockErr != nil {
		return types.CrossChainOperation{}, lockErr
	}
	return op, err
}

// ExecuteRebalanceLocked is the rebalance execution path for callers that
// already hold the fund lock (the analyzer plans and executes under one lock
// so a concurrent caller observes adjusted balances, never stale ones).
func (c *Coordinator) ExecuteRebalanceLocked(ctx context.Context, fundID string, fromChain, toChain types.ChainID, amount sdkmath.Int) (types.CrossChainOperation, error) {
	if err := validateAmount(amount); err != nil {
		return types.CrossChainOperation{}, err
	}
	if fromChain == toChain {
		return types.CrossChainOperation{}, fmt.Errorf("%w: rebalance source and target chains are identical", types.ErrValidation)
	}
	cluster, err := c.registry.GetCluster(fundID)
	if err != nil {
		return types.CrossChainOperation{}, err
	}
	fromIdx := cluster.EntryForChain(fromChain)
	toIdx := cluster.EntryForChain(toChain)
	if fromIdx < 0 || !cluster.ChainVaults[fromIdx].IsActive {
		return types.CrossChainOperation{}, fmt.Errorf("%w: no active vault on chain %d for fund %s", types.ErrNotFound, fromChain, fundID)
	}
	if toIdx < 0 || !cluster.ChainVaults[toIdx].IsActive {
		return types.CrossChainOperation{}, fmt.Errorf("%w: no active vault on chain %d for fund %s", types.ErrNotFound, toChain, fundID)
	}
	from := cluster.ChainVaults[fromIdx]
	to := cluster.ChainVaults[toIdx]
	if from.CurrentBalance.LT(amount) {
		return types.CrossChainOperation{}, fmt.Errorf("%w: rebalance amount %s exceeds balance %s on chain %d", types.ErrValidation, amount, from.CurrentBalance, fromChain)
	}

	op := c.newOperation(types.OpRebalance, fundID, fromChain, toChain, from.VaultAddress, to.VaultAddress, amount, c.holding)
	if err := c.transition(op, types.OpExecuting, ""); err != nil {
		return types.CrossChainOperation{}, err
	}

	// A rebalance always spans two chains (one vault per chain), so both legs
	// are delegated to the relay as one message. Balances move only when the
	// relay confirms completion.
	execErr := c.dispatch(ctx, op, transport.Message{
		Kind:        transport.KindRebalance,
		FundID:      fundID,
		SourceChain: fromChain,
		SourceVault: from.VaultAddress,
		TargetChain: toChain,
		TargetVault: to.VaultAddress,
		Amount:      amount,
		Shares:      sdkmath.ZeroInt(),
		User:        c.holding,
	})
	c.track(op)
	return *op, execErr
}

// ExecuteHarvest collects accrued yield from the fund's vault on one chain.
func (c *Coordinator) ExecuteHarvest(ctx context.Context, fundID string, chainID types.ChainID) (types.CrossChainOperation, error) {
	cluster, err := c.registry.GetCluster(fundID)
	if err != nil {
		return types.CrossChainOperation{}, err
	}
	idx := cluster.EntryForChain(chainID)
	if idx < 0 || !cluster.ChainVaults[idx].IsActive {
		return types.CrossChainOperation{}, fmt.Errorf("%w: no active vault on chain %d for fund %s", types.ErrNotFound, chainID, fundID)
	}
	entry := cluster.ChainVaults[idx]

	op := c.newOperation(types.OpHarvest, fundID, chainID, chainID, entry.VaultAddress, entry.VaultAddress, sdkmath.ZeroInt(), c.holding)
	var execErr error
	lockErr := c.registry.WithFundLock(fundID, func() error {
		if err := c.transition(op, types.OpExecuting, ""); err != nil {
			return err
		}
		if chainID == c.localChain {
			execErr = c.harvestLocal(ctx, op, entry.VaultAddress)
		} else {
			execErr = c.dispatch(ctx, op, transport.Message{
				Kind:        transport.KindHarvest,
				FundID:      fundID,
				TargetChain: chainID,
				TargetVault: entry.VaultAddress,
				Amount:      sdkmath.ZeroInt(),
				Shares:      sdkmath.ZeroInt(),
				User:        c.holding,
			})
		}
		return nil
	})
	if lockErr != nil {
		return types.CrossChainOperation{}, lockErr
	}
	c.track(op)
	return *op, execErr
}

func (c *Coordinator) harvestLocal(ctx context.Context, op *types.CrossChainOperation, vaultAddress string) error {
	v, err := c.vaults.Vault(vaultAddress)
	if err != nil {
		c.transition(op, types.OpFailed, fmt.Sprintf("vault resolution failed: %v", err))
		return fmt.Errorf("%w: vault %s", types.ErrNotFound, vaultAddress)
	}
	harvested, err := v.Harvest(ctx)
	if err != nil {
		c.transition(op, types.OpFailed, fmt.Sprintf("harvest failed: %v", err))
		return fmt.Errorf("harvest failed: %w", err)
	}
	op.Amount = harvested
	if harvested.IsPositive() {
		if err := c.registry.ApplyBalanceDelta(op.FundID, op.TargetChain, harvested); err != nil {
			c.logger.Error().Err(err).Str("op", op.ID).Msg("Balance update failed after harvest")
		}
	}
	return c.transition(op, types.OpCompleted, "")
}

// ExecuteEmergencyExit withdraws the fund's entire balance from every active
// chain vault. One operation is created per entry; per-entry failures are
// recorded and do not roll back entries already exited.
func (c *Coordinator) ExecuteEmergencyExit(ctx context.Context, fundID string, recipient string) ([]types.CrossChainOperation, error) {
	if recipient == "" {
		return nil, fmt.Errorf("%w: recipient is required", types.ErrValidation)
	}
	cluster, err := c.registry.GetCluster(fundID)
	if err != nil {
		return nil, err
	}

	var results []types.CrossChainOperation
	lockErr := c.registry.WithFundLock(fundID, func() error {
		for _, idx := range cluster.ActiveEntries() {
			entry := cluster.ChainVaults[idx]
			if entry.CurrentBalance.IsNil() || entry.CurrentBalance.IsZero() {
				continue
			}
			op := c.newOperation(types.OpEmergencyExit, fundID, entry.ChainID, c.localChain, entry.VaultAddress, "", entry.CurrentBalance, recipient)
			if err := c.transition(op, types.OpExecuting, ""); err != nil {
				return err
			}
			if entry.ChainID == c.localChain {
				// The withdraw fee is waived when draining the fund.
				if err := c.withdrawLocal(ctx, op, entry.VaultAddress, recipient, op.FundID, 0); err != nil {
					c.logger.Error().Err(err).Str("op", op.ID).Uint64("chain", uint64(entry.ChainID)).Msg("Emergency exit leg failed")
				}
			} else {
				if err := c.dispatch(ctx, op, transport.Message{
					Kind:        transport.KindEmergencyExit,
					FundID:      fundID,
					TargetChain: entry.ChainID,
					TargetVault: entry.VaultAddress,
					Amount:      entry.CurrentBalance,
					Shares:      entry.CurrentBalance,
					User:        recipient,
				}); err != nil {
					c.logger.Error().Err(err).Str("op", op.ID).Uint64("chain", uint64(entry.ChainID)).Msg("Emergency exit dispatch failed")
				}
			}
			c.track(op)
			results = append(results, *op)
		}
		return nil
	})
	if lockErr != nil {
		return nil, lockErr
	}
	return results, nil
}

// CompleteRemote is the external reconciliation entry point: it resolves a
// dispatched operation identified by its correlation handle. Signals arriving
// after the deadline expire the operation instead of completing it.
func (c *Coordinator) CompleteRemote(correlationID string, success bool, failureReason string) (types.CrossChainOperation, error) {
	c.mu.Lock()
	opID, ok := c.byCorrelation[correlationID]
	var op *types.CrossChainOperation
	if ok {
		op = c.ops[opID]
	}
	c.mu.Unlock()
	if op == nil {
		return types.CrossChainOperation{}, fmt.Errorf("%w: no operation with correlation id %s", types.ErrNotFound, correlationID)
	}

	var result types.CrossChainOperation
	lockErr := c.registry.WithFundLock(op.FundID, func() error {
		if op.Status != types.OpExecuting {
			return fmt.Errorf("%w: operation %s is %s, not EXECUTING", types.ErrValidation, op.ID, op.Status)
		}
		if time.Now().After(op.Deadline) {
			c.transition(op, types.OpExpired, "reconciliation signal arrived after deadline")
			result = *op
			return fmt.Errorf("%w: operation %s", types.ErrDeadlineExceeded, op.ID)
		}
		if !success {
			c.transition(op, types.OpFailed, failureReason)
			result = *op
			return nil
		}
		c.applyRemoteCompletion(op)
		c.transition(op, types.OpCompleted, "")
		result = *op
		return nil
	})
	return result, lockErr
}

// applyRemoteCompletion folds a confirmed remote execution into the cluster
// balances. Must run under the fund lock.
func (c *Coordinator) applyRemoteCompletion(op *types.CrossChainOperation) {
	var err error
	switch op.Type {
	case types.OpDeposit:
		err = c.registry.ApplyBalanceDelta(op.FundID, op.TargetChain, op.Amount)
	case types.OpWithdrawal, types.OpEmergencyExit:
		err = c.registry.ApplyBalanceDelta(op.FundID, op.SourceChain, op.Amount.Neg())
	case types.OpRebalance:
		if err = c.registry.ApplyBalanceDelta(op.FundID, op.SourceChain, op.Amount.Neg()); err == nil {
			err = c.registry.ApplyBalanceDelta(op.FundID, op.TargetChain, op.Amount)
		}
	case types.OpHarvest:
		// Remote harvest yield is reported by the remote vault itself; the
		// next balance sync picks it up.
	}
	if err != nil {
		c.logger.Error().Err(err).Str("op", op.ID).Msg("Balance update failed on remote completion")
	}
}

// ReconcileExpired sweeps EXECUTING operations whose deadline has passed and
// marks them EXPIRED. Returns the number of operations expired. There is no
// background timer; callers run this on their own schedule.
func (c *Coordinator) ReconcileExpired(now time.Time) int {
	c.mu.Lock()
	var stale []*types.CrossChainOperation
	for _, op := range c.ops {
		if op.Status == types.OpExecuting && now.After(op.Deadline) {
			stale = append(stale, op)
		}
	}
	c.mu.Unlock()

	expired := 0
	for _, op := range stale {
		c.registry.WithFundLock(op.FundID, func() error {
			if op.Status == types.OpExecuting && now.After(op.Deadline) {
				c.transition(op, types.OpExpired, "deadline passed without reconciliation")
				expired++
			}
			return nil
		})
	}
	if expired > 0 {
		c.logger.Warn().Int("count", expired).Msg("Expired stale operations")
	}
	return expired
}

// HasOpenRebalance reports whether a non-terminal rebalance is in flight for
// the fund. The analyzer uses this to avoid planning a second corrective move
// before the first one's balance effects have landed.
func (c *Coordinator) HasOpenRebalance(fundID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, op := range c.ops {
		if op.FundID == fundID && op.Type == types.OpRebalance && !op.Status.IsTerminal() {
			return true
		}
	}
	return false
}

// GetOperation returns a copy of the operation with the given id.
func (c *Coordinator) GetOperation(opID string) (types.CrossChainOperation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, ok := c.ops[opID]
	if !ok {
		return types.CrossChainOperation{}, fmt.Errorf("%w: operation %s", types.ErrNotFound, opID)
	}
	return *op, nil
}

// ListOperations returns copies of all tracked operations for a fund, oldest
// first. An empty fund id returns everything.
func (c *Coordinator) ListOperations(fundID string) []types.CrossChainOperation {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []types.CrossChainOperation
	for _, op := range c.ops {
		if fundID == "" || op.FundID == fundID {
			out = append(out, *op)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Seq > out[j].Seq; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Restore reloads persisted non-terminal operations at startup and advances
// the sequence counter past everything seen.
func (c *Coordinator) Restore(ops []types.CrossChainOperation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var maxSeq uint64
	for i := range ops {
		op := ops[i]
		c.ops[op.ID] = &op
		if op.CorrelationID != "" {
			c.byCorrelation[op.CorrelationID] = op.ID
		}
		if op.Seq > maxSeq {
			maxSeq = op.Seq
		}
	}
	for {
		current := c.seq.Load()
		if current >= maxSeq || c.seq.CompareAndSwap(current, maxSeq) {
			break
		}
	}
	c.logger.Info().Int("count", len(ops)).Msg("Restored open operations")
}
