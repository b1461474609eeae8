package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"
)

// LocalVault defines the interface for a vault deployed on the coordinator's
// local chain. Remote vaults are never called directly; they are reached
// through the messaging transport.
type LocalVault interface {
	// Deposit credits amount to the vault on behalf of user.
	Deposit(ctx context.Context, amount sdkmath.Int, user string) error

	// Withdraw debits amount from owner's holdings and pays recipient.
	// Returns the amount actually paid out (net of any vault fee).
	Withdraw(ctx context.Context, amount sdkmath.Int, recipient string, owner string) (sdkmath.Int, error)

	// Harvest collects accrued yield and returns the amount collected.
	Harvest(ctx context.Context) (sdkmath.Int, error)
}

// Provider resolves local vault handles by address.
type Provider interface {
	Vault(address string) (LocalVault, error)
}

// ShareLedger exposes fund share balances, used to validate that a redemption
// does not exceed the requester's holdings before any venue is queried.
type ShareLedger interface {
	BalanceOf(fundID string, holder string) (sdkmath.Int, error)
}
