package venue

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/vaultmesh/cvc/internal/types"
)

// Kind classifies a liquidity venue.
type Kind string

const (
	KindAMM        Kind = "AMM"
	KindOrderBook  Kind = "ORDERBOOK"
	KindCrossChain Kind = "CROSS_CHAIN"
)

// Venue describes one source of price and liquidity for an asset.
type Venue struct {
	ID      string        `json:"id"`
	Kind    Kind          `json:"kind"`
	ChainID types.ChainID `json:"chain_id"`
}

// Quote is the expected outcome of liquidating an amount on a venue.
type Quote struct {
	ExpectedOutput sdkmath.Int `json:"expected_output"`
	PriceImpactBps int64       `json:"price_impact_bps"`
	Cost           sdkmath.Int `json:"cost"`
}

// ExecutionResult is the realized outcome of a venue execution.
type ExecutionResult struct {
	ReceivedAmount sdkmath.Int `json:"received_amount"`
	Cost           sdkmath.Int `json:"cost"`
}

// Provider defines the interface the router consumes for price, liquidity and
// execution. Implementations (pooled-market adapters, order-book gateways,
// cross-chain bridges) live outside this core; only the contract matters here.
type Provider interface {
	// Venues lists the venues able to trade the given denom.
	Venues(denom string) ([]Venue, error)

	// Quote returns the expected output, price impact and execution cost for
	// liquidating amount of denom on the given venue. Read-only.
	Quote(ctx context.Context, denom string, amount sdkmath.Int, venueID string) (Quote, error)

	// Depth returns the liquidity the venue can absorb for denom.
	Depth(ctx context.Context, denom string, venueID string) (sdkmath.Int, error)

	// Execute liquidates amount of denom on the venue, crediting recipient.
	Execute(ctx context.Context, denom string, amount sdkmath.Int, venueID string, recipient string) (ExecutionResult, error)
}
