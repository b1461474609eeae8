/*

This file contains the cross-chain operation record and its status state
machine. Operations are created per lifecycle event (deposit, withdrawal,
rebalance, harvest, emergency exit) and are retained after reaching a terminal
state for audit.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// OperationType defines the kind of cross-chain operation.
type OperationType string

const (
	OpDeposit       OperationType = "DEPOSIT"
	OpWithdrawal    OperationType = "WITHDRAWAL"
	OpRebalance     OperationType = "REBALANCE"
	OpHarvest       OperationType = "HARVEST"
	OpEmergencyExit OperationType = "EMERGENCY_EXIT"
)

// OperationStatus is the lifecycle state of a CrossChainOperation.
type OperationStatus string

const (
	OpPending   OperationStatus = "PENDING"
	OpExecuting OperationStatus = "EXECUTING"
	OpCompleted OperationStatus = "COMPLETED"
	OpFailed    OperationStatus = "FAILED"
	OpExpired   OperationStatus = "EXPIRED"
)

// IsTerminal reports whether the status ends the operation lifecycle.
func (s OperationStatus) IsTerminal() bool {
	switch s {
	case OpCompleted, OpFailed, OpExpired:
		return true
	case OpPending, OpExecuting:
		return false
	}
	return false
}

// CanTransitionTo enforces monotonic forward-only transitions.
func (s OperationStatus) CanTransitionTo(next OperationStatus) bool {
	switch s {
	case OpPending:
		return next == OpExecuting || next == OpFailed || next == OpExpired
	case OpExecuting:
		return next == OpCompleted || next == OpFailed || next == OpExpired
	case OpCompleted, OpFailed, OpExpired:
		return false
	}
	return false
}

// CrossChainOperation is one deposit/withdrawal/rebalance/harvest/exit event.
// ID is a UUID; Seq is a coordinator-scoped monotonic sequence giving the
// total order of creation, so multiple coordinator instances cannot collide
// on identity while ordering stays observable. PaidOut is the net amount
// actually handed to the recipient on withdrawal-type operations, after the
// fund's withdraw fee.
type CrossChainOperation struct {
	ID            string          `json:"id"`
	Seq           uint64          `json:"seq"`
	Type          OperationType   `json:"type"`
	FundID        string          `json:"fund_id"`
	SourceChain   ChainID         `json:"source_chain"`
	TargetChain   ChainID         `json:"target_chain"`
	SourceVault   string          `json:"source_vault,omitempty"`
	TargetVault   string          `json:"target_vault,omitempty"`
	Amount        sdkmath.Int     `json:"amount"`
	PaidOut       sdkmath.Int     `json:"paid_out"`
	User          string          `json:"user"`
	Status        OperationStatus `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
	Deadline      time.Time       `json:"deadline"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
}

// IsLocal reports whether the operation executes entirely on the given chain.
func (o *CrossChainOperation) IsLocal(localChain ChainID) bool {
	return o.SourceChain == localChain && o.TargetChain == localChain
}
