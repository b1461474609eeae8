package transport

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/vaultmesh/cvc/internal/types"
)

// MessageKind tags the intent a dispatched message carries.
type MessageKind string

const (
	KindDeposit       MessageKind = "DEPOSIT"
	KindWithdrawal    MessageKind = "WITHDRAWAL"
	KindRebalance     MessageKind = "REBALANCE"
	KindHarvest       MessageKind = "HARVEST"
	KindEmergencyExit MessageKind = "EMERGENCY_EXIT"
)

// Message is one fire-and-forget dispatch to a remote vault. Completion is
// reported out of band through the coordinator's reconciliation entry point.
type Message struct {
	Kind        MessageKind   `json:"kind"`
	FundID      string        `json:"fund_id"`
	SourceChain types.ChainID `json:"source_chain,omitempty"`
	SourceVault string        `json:"source_vault,omitempty"`
	TargetChain types.ChainID `json:"target_chain"`
	TargetVault string        `json:"target_vault"`
	Amount      sdkmath.Int   `json:"amount"`
	Shares      sdkmath.Int   `json:"shares"`
	User        string        `json:"user"`
}

// Messenger abstracts "send a message to a remote vault and get a correlation
// handle back". Send returns once the message is handed off; it never waits
// for remote completion.
type Messenger interface {
	Send(ctx context.Context, msg Message) (string, error)
}
