/*

This file contains the gRPC-backed local vault client. Vault contracts on the
local chain are reached through the chain node's vault gateway; one connection
serves every vault, addressed per call.

*/

package vault

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
)

const (
	methodDeposit  = "/cvc.vault.Vault/Deposit"
	methodWithdraw = "/cvc.vault.Vault/Withdraw"
	methodHarvest  = "/cvc.vault.Vault/Harvest"

	defaultCallTimeout = 30 * time.Second
)

var clientLogger = logger.GetForComponent("vault_client")

// jsonCodec mirrors the relay client's codec: JSON bodies over raw gRPC
// method invocation, no generated stubs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return "json" }

// Dial connects to the local chain's vault gateway, picking TLS based on the
// port.
func Dial(endpoint string) (*grpc.ClientConn, error) {
	var creds grpc.DialOption
	if strings.Contains(endpoint, ":443") {
		creds = grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))
	} else {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}
	conn, err := grpc.NewClient(endpoint, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to dial vault gateway at %s: %w", endpoint, err)
	}
	return conn, nil
}

// GatewayProvider resolves vault handles over one gateway connection.
type GatewayProvider struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewGatewayProvider wraps an established gateway connection.
func NewGatewayProvider(conn *grpc.ClientConn) (*GatewayProvider, error) {
	if conn == nil {
		return nil, fmt.Errorf("gateway connection cannot be nil")
	}
	return &GatewayProvider{conn: conn, timeout: defaultCallTimeout}, nil
}

// Vault returns a handle bound to one vault address.
func (p *GatewayProvider) Vault(address string) (LocalVault, error) {
	if address == "" {
		return nil, fmt.Errorf("vault address cannot be empty")
	}
	return &gatewayVault{provider: p, address: address}, nil
}

type gatewayVault struct {
	provider *GatewayProvider
	address  string
}

func (v *gatewayVault) invoke(ctx context.Context, method string, req, resp interface{}) error {
	callCtx, cancel := context.WithTimeout(ctx, v.provider.timeout)
	defer cancel()
	return v.provider.conn.Invoke(callCtx, method, req, resp, grpc.ForceCodec(jsonCodec{}))
}

type depositRequest struct {
	Vault  string      `json:"vault"`
	Amount sdkmath.Int `json:"amount"`
	User   string      `json:"user"`
}

type depositResponse struct {
	TxHash string `json:"tx_hash"`
}

func (v *gatewayVault) Deposit(ctx context.Context, amount sdkmath.Int, user string) error {
	var resp depositResponse
	if err := v.invoke(ctx, methodDeposit, &depositRequest{Vault: v.address, Amount: amount, User: user}, &resp); err != nil {
		return fmt.Errorf("deposit into vault %s failed: %w", v.address, err)
	}
	clientLogger.Debug().
		Str("vault", v.address).
		Str("amount", amount.String()).
		Str("txHash", resp.TxHash).
		Msg("Deposit executed")
	return nil
}

type withdrawRequest struct {
	Vault     string      `json:"vault"`
	Amount    sdkmath.Int `json:"amount"`
	Recipient string      `json:"recipient"`
	Owner     string      `json:"owner"`
}

type withdrawResponse struct {
	PaidOut sdkmath.Int `json:"paid_out"`
	TxHash  string      `json:"tx_hash"`
}

func (v *gatewayVault) Withdraw(ctx context.Context, amount sdkmath.Int, recipient string, owner string) (sdkmath.Int, error) {
	var resp withdrawResponse
	if err := v.invoke(ctx, methodWithdraw, &withdrawRequest{
		Vault: v.address, Amount: amount, Recipient: recipient, Owner: owner,
	}, &resp); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("withdrawal from vault %s failed: %w", v.address, err)
	}
	clientLogger.Debug().
		Str("vault", v.address).
		Str("amount", amount.String()).
		Str("paidOut", resp.PaidOut.String()).
		Str("txHash", resp.TxHash).
		Msg("Withdrawal executed")
	return resp.PaidOut, nil
}

type harvestRequest struct {
	Vault string `json:"vault"`
}

type harvestResponse struct {
	Harvested sdkmath.Int `json:"harvested"`
	TxHash    string      `json:"tx_hash"`
}

func (v *gatewayVault) Harvest(ctx context.Context) (sdkmath.Int, error) {
	var resp harvestResponse
	if err := v.invoke(ctx, methodHarvest, &harvestRequest{Vault: v.address}, &resp); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("harvest on vault %s failed: %w", v.address, err)
	}
	clientLogger.Debug().
		Str("vault", v.address).
		Str("harvested", resp.Harvested.String()).
		Str("txHash", resp.TxHash).
		Msg("Harvest executed")
	return resp.Harvested, nil
}
