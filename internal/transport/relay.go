package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vaultmesh/cvc/internal/logger"
	"github.com/vaultmesh/cvc/internal/types"
	"github.com/vaultmesh/cvc/internal/venue"
)

// Relay service method names. The relay is the single external collaborator
// that fronts remote-vault messaging and the per-venue quote/execute adapters.
const (
	methodDispatch = "/cvc.relay.Relay/Dispatch"
	methodVenues   = "/cvc.relay.Relay/Venues"
	methodQuote    = "/cvc.relay.Relay/Quote"
	methodDepth    = "/cvc.relay.Relay/Depth"
	methodExecute  = "/cvc.relay.Relay/Execute"
	methodBalance  = "/cvc.relay.Relay/ShareBalance"

	defaultCallTimeout = 30 * time.Second
)

// jsonCodec lets the client call the relay without generated protobuf stubs.
// The relay service owns its wire format, not this client.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return "json" }

// Dial connects to a relay endpoint, picking TLS based on the port the same
// way the node connection is established.
func Dial(endpoint string) (*grpc.ClientConn, error) {
	var creds grpc.DialOption
	if strings.Contains(endpoint, ":443") {
		creds = grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))
	} else {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}
	conn, err := grpc.NewClient(endpoint, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay at %s: %w", endpoint, err)
	}
	return conn, nil
}

// RelayClient is a thin gRPC client for the relay service. It implements
// Messenger for cross-chain dispatch and venue.Provider for quote, depth and
// execute calls; it performs no routing logic of its own.
type RelayClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewRelayClient wraps an established relay connection.
func NewRelayClient(conn *grpc.ClientConn) (*RelayClient, error) {
	if conn == nil {
		return nil, fmt.Errorf("relay connection cannot be nil")
	}
	return &RelayClient{conn: conn, timeout: defaultCallTimeout}, nil
}

var relayLogger = logger.GetForComponent("relay_client")

func (r *RelayClient) invoke(ctx context.Context, method string, req, resp interface{}) error {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.conn.Invoke(callCtx, method, req, resp, grpc.ForceCodec(jsonCodec{}))
}

type dispatchRequest struct {
	Message Message `json:"message"`
}

type dispatchResponse struct {
	CorrelationID string `json:"correlation_id"`
}

// Send hands a message off to the relay and returns its correlation handle.
func (r *RelayClient) Send(ctx context.Context, msg Message) (string, error) {
	var resp dispatchResponse
	if err := r.invoke(ctx, methodDispatch, &dispatchRequest{Message: msg}, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrTransport, err)
	}
	if resp.CorrelationID == "" {
		return "", fmt.Errorf("%w: relay returned empty correlation id", types.ErrTransport)
	}
	relayLogger.Debug().
		Str("kind", string(msg.Kind)).
		Str("fund", msg.FundID).
		Uint64("targetChain", uint64(msg.TargetChain)).
		Str("correlationID", resp.CorrelationID).
		Msg("Message dispatched")
	return resp.CorrelationID, nil
}

type venuesRequest struct {
	Denom string `json:"denom"`
}

type venuesResponse struct {
	Venues []venue.Venue `json:"venues"`
}

// Venues lists the venues able to trade the given denom.
func (r *RelayClient) Venues(denom string) ([]venue.Venue, error) {
	var resp venuesResponse
	if err := r.invoke(context.Background(), methodVenues, &venuesRequest{Denom: denom}, &resp); err != nil {
		return nil, fmt.Errorf("failed to list venues for %s: %w", denom, err)
	}
	return resp.Venues, nil
}

type quoteRequest struct {
	Denom   string      `json:"denom"`
	Amount  sdkmath.Int `json:"amount"`
	VenueID string      `json:"venue_id"`
}

// Quote returns the expected liquidation outcome for amount on a venue.
func (r *RelayClient) Quote(ctx context.Context, denom string, amount sdkmath.Int, venueID string) (venue.Quote, error) {
	var resp venue.Quote
	if err := r.invoke(ctx, methodQuote, &quoteRequest{Denom: denom, Amount: amount, VenueID: venueID}, &resp); err != nil {
		return venue.Quote{}, fmt.Errorf("quote failed on venue %s for %s: %w", venueID, denom, err)
	}
	return resp, nil
}

type depthRequest struct {
	Denom   string `json:"denom"`
	VenueID string `json:"venue_id"`
}

type depthResponse struct {
	Liquidity sdkmath.Int `json:"liquidity"`
}

// Depth returns the liquidity a venue can absorb for denom.
func (r *RelayClient) Depth(ctx context.Context, denom string, venueID string) (sdkmath.Int, error) {
	var resp depthResponse
	if err := r.invoke(ctx, methodDepth, &depthRequest{Denom: denom, VenueID: venueID}, &resp); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("depth query failed on venue %s for %s: %w", venueID, denom, err)
	}
	return resp.Liquidity, nil
}

type executeRequest struct {
	Denom     string      `json:"denom"`
	Amount    sdkmath.Int `json:"amount"`
	VenueID   string      `json:"venue_id"`
	Recipient string      `json:"recipient"`
}

// Execute liquidates amount of denom on the venue, crediting recipient.
func (r *RelayClient) Execute(ctx context.Context, denom string, amount sdkmath.Int, venueID string, recipient string) (venue.ExecutionResult, error) {
	var resp venue.ExecutionResult
	if err := r.invoke(ctx, methodExecute, &executeRequest{
		Denom: denom, Amount: amount, VenueID: venueID, Recipient: recipient,
	}, &resp); err != nil {
		return venue.ExecutionResult{}, fmt.Errorf("execution failed on venue %s for %s: %w", venueID, denom, err)
	}
	return resp, nil
}

type balanceRequest struct {
	FundID string `json:"fund_id"`
	Holder string `json:"holder"`
}

type balanceResponse struct {
	Balance sdkmath.Int `json:"balance"`
}

// BalanceOf returns holder's fund share balance from the relay's ledger view.
func (r *RelayClient) BalanceOf(fundID string, holder string) (sdkmath.Int, error) {
	var resp balanceResponse
	if err := r.invoke(context.Background(), methodBalance, &balanceRequest{FundID: fundID, Holder: holder}, &resp); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("share balance query failed for %s/%s: %w", fundID, holder, err)
	}
	return resp.Balance, nil
}
